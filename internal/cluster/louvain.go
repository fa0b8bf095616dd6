package cluster

import (
	"math/rand"
	"sort"
)

// Louvain is a single-level greedy modularity-optimization clustering
// algorithm. Parameters: resolution (default 1.0), min_weight (default 0),
// random_seed (optional — controls node visitation order; ties in that
// order, and in gain comparisons, are broken by ascending entity id so
// identical input + seed always yields identical output, per spec.md
// §4.9's "Louvain" requirement).
//
// This implements the classic local-moving phase of Louvain (repeated
// passes of "move each node into the neighboring community maximizing
// modularity gain" until no node moves) without the multi-level graph
// aggregation phase of full Louvain — a documented simplification,
// adequate for the coupling graphs this system produces (edges numbering
// in the thousands, not millions) while keeping the implementation
// auditable.
type Louvain struct{}

// Name implements Algorithm.
func (l *Louvain) Name() string { return "louvain" }

// ParameterSchema implements Algorithm.
func (l *Louvain) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"resolution":  1.0,
		"min_weight":  0.0,
		"random_seed": nil,
	}
}

// Run implements Algorithm.
func (l *Louvain) Run(entities []int64, edges []Edge, params map[string]interface{}) (*Result, error) {
	resolution, err := requireFloat(params, "resolution", 1.0)
	if err != nil {
		return nil, err
	}
	minWeight, err := requireFloat(params, "min_weight", 0.0)
	if err != nil {
		return nil, err
	}
	seed := int64(42)
	if v, ok := params["random_seed"]; ok && v != nil {
		s, err := requireInt(params, "random_seed", 42)
		if err != nil {
			return nil, err
		}
		seed = int64(s)
	}

	adj := buildAdjacency(edges, minWeight)
	degree := map[int64]float64{}
	m := 0.0
	for _, e := range edges {
		if e.A == e.B || e.Weight < minWeight {
			continue
		}
		degree[e.A] += e.Weight
		degree[e.B] += e.Weight
		m += e.Weight
	}
	if m == 0 {
		// No qualifying edges: every entity is its own singleton community.
		return singletons(entities), nil
	}

	community := map[int64]int64{}
	commWeight := map[int64]float64{} // sum of degree over members of each community
	for _, id := range entities {
		community[id] = id
		commWeight[id] = degree[id]
	}

	order := sortedInt64s(entities)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for pass := 0; pass < 100; pass++ {
		moved := false
		for _, node := range order {
			curComm := community[node]
			ki := degree[node]

			// Weight from node to each neighboring community (excluding
			// node's own contribution to its current community).
			neighborWeight := map[int64]float64{}
			for nb, w := range adj[node] {
				neighborWeight[community[nb]] += w
			}

			// Remove node from its current community's weight tally while
			// evaluating candidates.
			commWeight[curComm] -= ki

			bestComm := curComm
			bestGain := gain(neighborWeight[curComm], commWeight[curComm], ki, m, resolution)
			candidates := make([]int64, 0, len(neighborWeight))
			for c := range neighborWeight {
				candidates = append(candidates, c)
			}
			sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
			for _, c := range candidates {
				g := gain(neighborWeight[c], commWeight[c], ki, m, resolution)
				if g > bestGain || (g == bestGain && c < bestComm) {
					bestGain = g
					bestComm = c
				}
			}

			community[node] = bestComm
			commWeight[bestComm] += ki
			if bestComm != curComm {
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	// Relabel communities to dense 1..N ids, ordered by size desc then by
	// smallest member id, matching ConnectedComponents' presentation order.
	groups := map[int64][]int64{}
	for _, id := range entities {
		groups[community[id]] = append(groups[community[id]], id)
	}
	type comp struct {
		members []int64
	}
	comps := make([]comp, 0, len(groups))
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		comps = append(comps, comp{members: members})
	}
	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i].members) != len(comps[j].members) {
			return len(comps[i].members) > len(comps[j].members)
		}
		return comps[i].members[0] < comps[j].members[0]
	})

	assignments := make(map[int64]int, len(entities))
	for i, c := range comps {
		for _, id := range c.members {
			assignments[id] = i + 1
		}
	}

	return &Result{
		Assignments:  assignments,
		ClusterCount: len(comps),
		Metrics:      map[string]interface{}{"modularity": modularity(entities, community, adj, m, resolution)},
	}, nil
}

// gain computes a quantity proportional to the modularity delta of placing
// a node of degree ki, connected to a candidate community by kiIn weight,
// into a community whose total degree (excluding the node) is commDegree.
// Only relative ordering across candidates matters, so the implementation
// keeps the unnormalized form (classic Louvain local-move formula).
func gain(kiIn, commDegree, ki, m, resolution float64) float64 {
	return kiIn - resolution*commDegree*ki/(2*m)
}

// modularity computes Newman's Q for the final partition, at the requested
// resolution.
func modularity(entities []int64, community map[int64]int64, adj map[int64]map[int64]float64, m, resolution float64) float64 {
	commDegree := map[int64]float64{}
	commInternal := map[int64]float64{}
	for _, id := range entities {
		c := community[id]
		for nb, w := range adj[id] {
			commDegree[c] += w
			if community[nb] == c {
				commInternal[c] += w
			}
		}
	}
	q := 0.0
	for c, internal := range commInternal {
		q += internal/(2*m) - resolution*(commDegree[c]/(2*m))*(commDegree[c]/(2*m))
	}
	return q
}

func singletons(entities []int64) *Result {
	assignments := make(map[int64]int, len(entities))
	order := sortedInt64s(entities)
	for i, id := range order {
		assignments[id] = i + 1
	}
	return &Result{Assignments: assignments, ClusterCount: len(order)}
}
