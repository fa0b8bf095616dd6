package cluster

import (
	"math/rand"
	"sort"
)

// LabelPropagation implements synchronous-label, asynchronous-update label
// propagation (spec.md §4.9): every node starts as its own label and
// repeatedly adopts the weighted-majority label among its neighbors (edges
// below min_weight excluded) until a full pass produces no change or
// max_iterations is reached. Ties are broken by smallest label id, and the
// per-iteration node visitation order is derived from random_seed, so
// identical input and seed reproduce identical output.
type LabelPropagation struct{}

// Name implements Algorithm.
func (l *LabelPropagation) Name() string { return "label_propagation" }

// ParameterSchema implements Algorithm.
func (l *LabelPropagation) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"min_weight":     0.0,
		"max_iterations": 100,
		"random_seed":    nil,
	}
}

// Run implements Algorithm.
func (l *LabelPropagation) Run(entities []int64, edges []Edge, params map[string]interface{}) (*Result, error) {
	minWeight, err := requireFloat(params, "min_weight", 0.0)
	if err != nil {
		return nil, err
	}
	maxIter, err := requireInt(params, "max_iterations", 100)
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
	label := map[int64]int64{}
	for _, id := range entities {
		label[id] = id
	}

	order := sortedInt64s(entities)
	rng := rand.New(rand.NewSource(seed))

	for iter := 0; iter < maxIter; iter++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		changed := false
		for _, id := range order {
			nbrs := adj[id]
			if len(nbrs) == 0 {
				continue
			}
			tally := map[int64]float64{}
			for nb, w := range nbrs {
				tally[label[nb]] += w
			}
			labels := make([]int64, 0, len(tally))
			for lbl := range tally {
				labels = append(labels, lbl)
			}
			sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

			best := labels[0]
			bestWeight := tally[best]
			for _, lbl := range labels[1:] {
				if tally[lbl] > bestWeight {
					bestWeight = tally[lbl]
					best = lbl
				}
			}
			if best != label[id] {
				label[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	groups := map[int64][]int64{}
	for _, id := range entities {
		groups[label[id]] = append(groups[label[id]], id)
	}
	type comp struct{ members []int64 }
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
	return &Result{Assignments: assignments, ClusterCount: len(comps)}, nil
}
