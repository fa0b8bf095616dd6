// Package cluster implements the clustering registry and algorithms (C9):
// a pluggable set of graph-clustering engines that consume the edge set C7
// produces and emit cluster assignments. The registry pattern (a name ->
// constructor table populated at startup, looked up by the orchestrator) is
// grounded on the teacher's internal/graph/backend.go, which resolves a
// configured backend name to a constructor the same way.
package cluster

import (
	"sort"

	"github.com/coderisk/coupler/internal/apperrors"
)

// Edge is an undirected weighted edge between two entities, as produced by
// internal/coupling (weight is the chosen metric — typically jaccard).
type Edge struct {
	A, B   int64
	Weight float64
}

// Result is the output of one clustering run: every input entity appears in
// exactly one cluster, per spec.md §4.9's common contract. ClusterID 0 is
// reserved for the noise set on algorithms that produce one (DBSCAN).
type Result struct {
	Assignments map[int64]int // entity id -> cluster id
	ClusterCount int
	Metrics     map[string]interface{}
}

// Clusters groups Assignments by cluster id. The result is a map keyed by
// cluster id, so it carries no order of its own; each cluster's member list
// is sorted by ascending entity id.
func (r *Result) Clusters() map[int][]int64 {
	out := map[int][]int64{}
	for entity, cid := range r.Assignments {
		out[cid] = append(out[cid], entity)
	}
	for cid := range out {
		sort.Slice(out[cid], func(i, j int) bool { return out[cid][i] < out[cid][j] })
	}
	return out
}

// Algorithm is one pluggable clustering engine.
type Algorithm interface {
	// Name is the registry key (e.g. "connected_components", "louvain").
	Name() string
	// ParameterSchema returns each parameter's documented default value.
	ParameterSchema() map[string]interface{}
	// Run clusters entities using edges, honoring params (missing keys fall
	// back to ParameterSchema's defaults; unknown required parameters that
	// remain unset are an InvalidParameter error).
	Run(entities []int64, edges []Edge, params map[string]interface{}) (*Result, error)
}

// Registry maps algorithm names to implementations.
type Registry struct {
	algorithms map[string]Algorithm
}

// NewRegistry returns a Registry pre-populated with every algorithm
// spec.md §4.9 requires.
func NewRegistry() *Registry {
	r := &Registry{algorithms: map[string]Algorithm{}}
	for _, a := range []Algorithm{
		&ConnectedComponents{},
		&Louvain{},
		&Hierarchical{},
		&DBSCAN{},
		&LabelPropagation{},
	} {
		r.algorithms[a.Name()] = a
	}
	return r
}

// Get looks up an algorithm by name, returning apperrors.InputError
// (ClusterError::UnknownAlgorithm per spec.md §4.9) if unknown.
func (r *Registry) Get(name string) (Algorithm, error) {
	a, ok := r.algorithms[name]
	if !ok {
		return nil, apperrors.InputErrorf("cluster: unknown algorithm %q", name)
	}
	return a, nil
}

// Names returns every registered algorithm name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.algorithms))
	for n := range r.algorithms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// requireFloat reads a float64 parameter, falling back to def if absent,
// and erroring (InvalidParameter) if present with the wrong type.
func requireFloat(params map[string]interface{}, name string, def float64) (float64, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, apperrors.InputErrorf("cluster: parameter %q must be a number", name)
}

func requireInt(params map[string]interface{}, name string, def int) (int, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	}
	return 0, apperrors.InputErrorf("cluster: parameter %q must be an integer", name)
}

func requireString(params map[string]interface{}, name, def string) (string, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", apperrors.InputErrorf("cluster: parameter %q must be a string", name)
	}
	return s, nil
}

// buildAdjacency returns, for each node, its neighbors with weight, filtered
// to edges with Weight >= minWeight. Self-loops (A==B) are ignored.
func buildAdjacency(edges []Edge, minWeight float64) map[int64]map[int64]float64 {
	adj := map[int64]map[int64]float64{}
	ensure := func(id int64) {
		if _, ok := adj[id]; !ok {
			adj[id] = map[int64]float64{}
		}
	}
	for _, e := range edges {
		if e.A == e.B || e.Weight < minWeight {
			continue
		}
		ensure(e.A)
		ensure(e.B)
		adj[e.A][e.B] = e.Weight
		adj[e.B][e.A] = e.Weight
	}
	return adj
}

func sortedInt64s(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
