package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, []string{
		"connected_components",
		"dbscan",
		"hierarchical",
		"label_propagation",
		"louvain",
	}, r.Names())
}

func TestRegistry_UnknownAlgorithm(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("kmeans")
	require.Error(t, err)
}

func TestConnectedComponents_MinWeightGrouping(t *testing.T) {
	// Mirrors spec.md's S1-style coupling output: a.go/b.go tightly coupled,
	// c.go isolated below the threshold.
	entities := []int64{1, 2, 3}
	edges := []Edge{
		{A: 1, B: 2, Weight: 0.8},
		{A: 2, B: 3, Weight: 0.2},
	}
	algo, err := NewRegistry().Get("connected_components")
	require.NoError(t, err)

	res, err := algo.Run(entities, edges, map[string]interface{}{"min_weight": 0.5})
	require.NoError(t, err)
	require.Equal(t, 2, res.ClusterCount)
	require.Equal(t, res.Assignments[1], res.Assignments[2])
	require.NotEqual(t, res.Assignments[1], res.Assignments[3])
}

func TestHierarchical_MissingParameter(t *testing.T) {
	algo, err := NewRegistry().Get("hierarchical")
	require.NoError(t, err)
	_, err = algo.Run([]int64{1, 2}, nil, map[string]interface{}{})
	require.Error(t, err)
}

func TestHierarchical_InvalidLinkage(t *testing.T) {
	algo, err := NewRegistry().Get("hierarchical")
	require.NoError(t, err)
	_, err = algo.Run([]int64{1, 2}, nil, map[string]interface{}{
		"linkage": "median", "n_clusters": 1,
	})
	require.Error(t, err)
}

func TestLouvain_DeterministicAcrossRuns(t *testing.T) {
	entities := []int64{1, 2, 3, 4, 5, 6}
	edges := []Edge{
		{A: 1, B: 2, Weight: 0.9},
		{A: 2, B: 3, Weight: 0.8},
		{A: 1, B: 3, Weight: 0.85},
		{A: 4, B: 5, Weight: 0.9},
		{A: 5, B: 6, Weight: 0.8},
		{A: 4, B: 6, Weight: 0.85},
		{A: 3, B: 4, Weight: 0.05},
	}
	algo, err := NewRegistry().Get("louvain")
	require.NoError(t, err)

	params := map[string]interface{}{"random_seed": 7}
	first, err := algo.Run(entities, edges, params)
	require.NoError(t, err)
	second, err := algo.Run(entities, edges, params)
	require.NoError(t, err)

	require.Equal(t, first.Assignments, second.Assignments)
	require.Equal(t, first.ClusterCount, second.ClusterCount)
}

func TestLouvain_DifferentSeedStillDeterministicPerSeed(t *testing.T) {
	entities := []int64{1, 2, 3}
	edges := []Edge{{A: 1, B: 2, Weight: 0.9}, {A: 2, B: 3, Weight: 0.9}, {A: 1, B: 3, Weight: 0.9}}
	algo, err := NewRegistry().Get("louvain")
	require.NoError(t, err)

	a, err := algo.Run(entities, edges, map[string]interface{}{"random_seed": 1})
	require.NoError(t, err)
	b, err := algo.Run(entities, edges, map[string]interface{}{"random_seed": 1})
	require.NoError(t, err)
	require.Equal(t, a.Assignments, b.Assignments)
}

func TestDBSCAN_NoiseForSparsePoints(t *testing.T) {
	entities := []int64{1, 2, 3, 4}
	edges := []Edge{
		{A: 1, B: 2, Weight: 0.9},
		{A: 2, B: 3, Weight: 0.9},
		// 4 has no edges at all: always noise.
	}
	algo, err := NewRegistry().Get("dbscan")
	require.NoError(t, err)

	res, err := algo.Run(entities, edges, map[string]interface{}{"eps": 0.2, "min_samples": 3})
	require.NoError(t, err)
	require.Equal(t, 0, res.Assignments[4])
}

func TestLabelPropagation_DeterministicAcrossRuns(t *testing.T) {
	entities := []int64{1, 2, 3, 4, 5, 6}
	edges := []Edge{
		{A: 1, B: 2, Weight: 0.9},
		{A: 2, B: 3, Weight: 0.8},
		{A: 1, B: 3, Weight: 0.85},
		{A: 4, B: 5, Weight: 0.9},
		{A: 5, B: 6, Weight: 0.8},
		{A: 4, B: 6, Weight: 0.85},
	}
	algo, err := NewRegistry().Get("label_propagation")
	require.NoError(t, err)

	params := map[string]interface{}{"random_seed": 3}
	first, err := algo.Run(entities, edges, params)
	require.NoError(t, err)
	second, err := algo.Run(entities, edges, params)
	require.NoError(t, err)
	require.Equal(t, first.Assignments, second.Assignments)
	require.Equal(t, 2, first.ClusterCount)
}

func TestLabelPropagation_IsolatedNodeIsSingleton(t *testing.T) {
	entities := []int64{1, 2, 3}
	edges := []Edge{{A: 1, B: 2, Weight: 0.9}}
	algo, err := NewRegistry().Get("label_propagation")
	require.NoError(t, err)

	res, err := algo.Run(entities, edges, map[string]interface{}{"random_seed": 1})
	require.NoError(t, err)
	require.NotEqual(t, res.Assignments[1], res.Assignments[3])
	require.Equal(t, res.Assignments[1], res.Assignments[2])
}

func TestResult_ClustersGroupingOrder(t *testing.T) {
	r := &Result{Assignments: map[int64]int{1: 1, 2: 1, 3: 2}}
	clusters := r.Clusters()
	require.Equal(t, []int64{1, 2}, clusters[1])
	require.Equal(t, []int64{3}, clusters[2])
}
