package cluster

import "sort"

// DBSCAN implements density-based clustering over the coupling graph's
// implied similarity space: two entities are within eps of each other
// exactly when a CO_CHANGED edge connects them with distance (1 - weight)
// <= eps — the "precomputed cosine-like" metric spec.md §4.9 specifies,
// read directly off the edge set rather than recomputed from raw vectors.
// Points with fewer than min_samples such neighbors (including themselves)
// are not core points; any point never reached from a core point's
// expansion is noise (cluster 0).
type DBSCAN struct{}

// Name implements Algorithm.
func (d *DBSCAN) Name() string { return "dbscan" }

// ParameterSchema implements Algorithm.
func (d *DBSCAN) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{"eps": 0.5, "min_samples": 2}
}

// Run implements Algorithm.
func (d *DBSCAN) Run(entities []int64, edges []Edge, params map[string]interface{}) (*Result, error) {
	eps, err := requireFloat(params, "eps", 0.5)
	if err != nil {
		return nil, err
	}
	minSamples, err := requireInt(params, "min_samples", 2)
	if err != nil {
		return nil, err
	}

	neighbors := map[int64]map[int64]bool{}
	ensure := func(id int64) {
		if _, ok := neighbors[id]; !ok {
			neighbors[id] = map[int64]bool{}
		}
	}
	for _, id := range entities {
		ensure(id)
	}
	for _, e := range edges {
		if e.A == e.B {
			continue
		}
		if 1-e.Weight <= eps {
			ensure(e.A)
			ensure(e.B)
			neighbors[e.A][e.B] = true
			neighbors[e.B][e.A] = true
		}
	}

	order := sortedInt64s(entities)
	assignments := make(map[int64]int, len(order))
	visited := map[int64]bool{}
	nextCluster := 1

	neighborList := func(id int64) []int64 {
		out := make([]int64, 0, len(neighbors[id]))
		for nb := range neighbors[id] {
			out = append(out, nb)
		}
		return sortedInt64s(out)
	}
	isCore := func(id int64) bool {
		return len(neighbors[id])+1 >= minSamples
	}

	for _, id := range order {
		if visited[id] {
			continue
		}
		visited[id] = true
		nbrs := neighborList(id)
		if !isCore(id) {
			assignments[id] = 0 // tentatively noise; may be claimed as a border point below
			continue
		}

		cid := nextCluster
		nextCluster++
		assignments[id] = cid

		queue := append([]int64(nil), nbrs...)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]

			if !visited[cur] {
				visited[cur] = true
				curNbrs := neighborList(cur)
				if isCore(cur) {
					queue = append(queue, curNbrs...)
				}
			}
			if assignments[cur] == 0 {
				assignments[cur] = cid
			}
		}
	}

	clusterCount := 0
	for _, cid := range assignments {
		if cid > clusterCount {
			clusterCount = cid
		}
	}

	return &Result{Assignments: assignments, ClusterCount: clusterCount}, nil
}

