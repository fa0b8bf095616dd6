package cluster

import (
	"math"
	"sort"
)

// Hierarchical is agglomerative clustering over the dense N×N distance
// matrix implied by distance = 1 - weight (spec.md §4.9). Complexity is
// O(N^3) in the worst case; this implementation is recommended for N <= 500
// per spec.md's documented limit — it holds the full distance matrix and
// scans it on every merge rather than using a nearest-neighbor chain or
// similar O(N^2 log N) structure, trading asymptotic efficiency for a much
// simpler, auditable implementation at the scale this system targets.
type Hierarchical struct{}

// Name implements Algorithm.
func (h *Hierarchical) Name() string { return "hierarchical" }

// ParameterSchema implements Algorithm.
func (h *Hierarchical) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"linkage":            "average",
		"n_clusters":         nil,
		"distance_threshold": nil,
	}
}

// Run implements Algorithm.
func (h *Hierarchical) Run(entities []int64, edges []Edge, params map[string]interface{}) (*Result, error) {
	linkage, err := requireString(params, "linkage", "average")
	if err != nil {
		return nil, err
	}
	switch linkage {
	case "ward", "complete", "average", "single":
	default:
		return nil, clusterErrorf("linkage must be one of ward|complete|average|single, got %q", linkage)
	}

	nClusters, hasN, err := optionalInt(params, "n_clusters")
	if err != nil {
		return nil, err
	}
	distThresh, hasThresh, err := optionalFloat(params, "distance_threshold")
	if err != nil {
		return nil, err
	}
	if !hasN && !hasThresh {
		return nil, missingParameter("n_clusters or distance_threshold")
	}

	order := sortedInt64s(entities)
	n := len(order)
	if n == 0 {
		return &Result{Assignments: map[int64]int{}}, nil
	}
	if n == 1 {
		return &Result{Assignments: map[int64]int{order[0]: 1}, ClusterCount: 1}, nil
	}

	idx := make(map[int64]int, n)
	for i, id := range order {
		idx[id] = i
	}
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			dist[i][j] = 1.0
		}
		dist[i][i] = 0
	}
	for _, e := range edges {
		i, ok1 := idx[e.A]
		j, ok2 := idx[e.B]
		if !ok1 || !ok2 || i == j {
			continue
		}
		d := 1 - e.Weight
		dist[i][j] = d
		dist[j][i] = d
	}

	// active[i] holds the member ids currently represented by row/col i, or
	// nil once i has been merged away.
	active := make([][]int64, n)
	alive := make([]bool, n)
	for i := range active {
		active[i] = []int64{order[i]}
		alive[i] = true
	}
	clusterCount := n

	for {
		if hasN && clusterCount <= nClusters {
			break
		}
		bi, bj, bd := -1, -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !alive[j] {
					continue
				}
				if dist[i][j] < bd {
					bd = dist[i][j]
					bi, bj = i, j
				}
			}
		}
		if bi == -1 {
			break
		}
		if hasThresh && bd > distThresh {
			break
		}
		if clusterCount <= 1 {
			break
		}

		si, sj := float64(len(active[bi])), float64(len(active[bj]))
		for k := 0; k < n; k++ {
			if !alive[k] || k == bi || k == bj {
				continue
			}
			sk := float64(len(active[k]))
			dik, djk, dij := dist[bi][k], dist[bj][k], bd
			var merged float64
			switch linkage {
			case "single":
				merged = math.Min(dik, djk)
			case "complete":
				merged = math.Max(dik, djk)
			case "average":
				merged = (si*dik + sj*djk) / (si + sj)
			case "ward":
				merged = ((si+sk)*dik + (sj+sk)*djk - sk*dij) / (si + sj + sk)
			}
			dist[bi][k] = merged
			dist[k][bi] = merged
		}
		active[bi] = append(active[bi], active[bj]...)
		alive[bj] = false
		active[bj] = nil
		clusterCount--
	}

	type comp struct{ members []int64 }
	var comps []comp
	for i := 0; i < n; i++ {
		if !alive[i] {
			continue
		}
		members := append([]int64(nil), active[i]...)
		sort.Slice(members, func(a, b int) bool { return members[a] < members[b] })
		comps = append(comps, comp{members: members})
	}
	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i].members) != len(comps[j].members) {
			return len(comps[i].members) > len(comps[j].members)
		}
		return comps[i].members[0] < comps[j].members[0]
	})

	assignments := make(map[int64]int, n)
	for i, c := range comps {
		for _, id := range c.members {
			assignments[id] = i + 1
		}
	}
	return &Result{Assignments: assignments, ClusterCount: len(comps)}, nil
}

func optionalInt(params map[string]interface{}, name string) (int, bool, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	n, err := requireInt(params, name, 0)
	return n, true, err
}

func optionalFloat(params map[string]interface{}, name string) (float64, bool, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, err := requireFloat(params, name, 0)
	return f, true, err
}
