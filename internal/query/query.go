// Package query implements the read-only query surface (C11): coupling
// neighbor lookups, a coupling graph projection, and the hotspot list. Every
// function here takes a storage.Store and returns data already shaped for a
// caller (CLI or future transport) — the thin read-side projection idiom
// grounded on the teacher's internal/database/hybrid_queries.go.
package query

import (
	"context"
	"math"
	"sort"

	"github.com/coderisk/coupler/internal/apperrors"
	"github.com/coderisk/coupler/internal/models"
	"github.com/coderisk/coupler/internal/storage"
)

// candidatePoolSize bounds how many of an entity's top-weighted edges are
// fetched before re-sorting by a caller-chosen metric; generous enough that
// any plausible topk_edges_per_file retains its full neighborhood.
const candidatePoolSize = 500

// metricValue extracts the named coupling metric from a relationship's
// properties. Unknown metric names fall back to Weight (jaccard).
func metricValue(rel models.Relationship, metric string) float64 {
	switch metric {
	case "jaccard_weighted":
		return rel.Properties.JaccardWeighted
	case "p_dst_given_src":
		return rel.Properties.PDstGivenSrc
	case "p_src_given_dst":
		return rel.Properties.PSrcGivenDst
	case "pair_count":
		return rel.Properties.PairCount
	default:
		return rel.Weight
	}
}

// Coupling returns entityID's top neighbors ordered by metric descending,
// filtered to edges whose metric value is >= minWeight, per spec.md §4.11.
func Coupling(ctx context.Context, store storage.Store, entityID int64, metric string, minWeight float64, limit int) ([]models.Relationship, error) {
	rels, err := store.ListCoupling(ctx, entityID, candidatePoolSize)
	if err != nil {
		return nil, err
	}
	filtered := make([]models.Relationship, 0, len(rels))
	for _, r := range rels {
		if metricValue(r, metric) >= minWeight {
			filtered = append(filtered, r)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		mi, mj := metricValue(filtered[i], metric), metricValue(filtered[j], metric)
		if mi != mj {
			return mi > mj
		}
		if filtered[i].Src != filtered[j].Src {
			return filtered[i].Src < filtered[j].Src
		}
		return filtered[i].Dst < filtered[j].Dst
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// Graph is the coupling-graph projection centered on one entity: the
// center, its retained neighbors, and the pairwise edges among all of them.
type Graph struct {
	Center    int64
	Neighbors []int64
	Edges     []models.Relationship
}

// CouplingGraph builds the neighborhood graph around entityID: nodes are
// entityID plus its top neighbors by metric/minWeight/limit, edges are every
// relationship in repoID connecting two included nodes.
func CouplingGraph(ctx context.Context, store storage.Store, repoID string, entityID int64, metric string, minWeight float64, limit int) (*Graph, error) {
	neighbors, err := Coupling(ctx, store, entityID, metric, minWeight, limit)
	if err != nil {
		return nil, err
	}
	nodes := map[int64]struct{}{entityID: {}}
	neighborIDs := make([]int64, 0, len(neighbors))
	for _, r := range neighbors {
		other := r.Dst
		if other == entityID {
			other = r.Src
		}
		if _, ok := nodes[other]; !ok {
			nodes[other] = struct{}{}
			neighborIDs = append(neighborIDs, other)
		}
	}

	all, err := store.ListAllRelationships(ctx, repoID)
	if err != nil {
		return nil, err
	}
	var edges []models.Relationship
	for _, r := range all {
		_, srcIn := nodes[r.Src]
		_, dstIn := nodes[r.Dst]
		if srcIn && dstIn {
			edges = append(edges, r)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Src != edges[j].Src {
			return edges[i].Src < edges[j].Src
		}
		return edges[i].Dst < edges[j].Dst
	})

	return &Graph{Center: entityID, Neighbors: neighborIDs, Edges: edges}, nil
}

// Hotspot is one row of the hotspot list: an entity's activity/coupling
// summary plus its computed risk score.
type Hotspot struct {
	EntityID     int64
	Path         string
	TotalCommits int
	AuthorsCount int
	Churn        int64
	MaxCoupling  float64
	RiskScore    float64
}

// Hotspots builds the repo's hotspot list: every entity that exists at
// HEAD, combined with its aggregated coupling and a risk score computed by
// spec.md §4.11's verbatim formula. sortBy selects the ordering field
// ("risk" (default), "commits", "churn", "coupling").
func Hotspots(ctx context.Context, store storage.Store, repoID, sortBy string, limit int) ([]Hotspot, error) {
	entities, err := store.ListEntities(ctx, repoID)
	if err != nil {
		return nil, err
	}

	var live []*models.Entity
	for _, e := range entities {
		if e.ExistsAtHead {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		return nil, nil
	}

	commitCounts := make([]int, len(live))
	for i, e := range live {
		commitCounts[i] = e.Metadata.TotalCommits
	}
	sortedCommits := append([]int(nil), commitCounts...)
	sort.Ints(sortedCommits)
	percentile := func(commits int) float64 {
		// Fraction of the population at or below commits, i.e. this
		// entity's percentile rank among all entities at HEAD.
		idx := sort.SearchInts(sortedCommits, commits+1)
		return float64(idx) / float64(len(sortedCommits))
	}

	hotspots := make([]Hotspot, 0, len(live))
	for _, e := range live {
		rels, err := store.ListCoupling(ctx, e.EntityID, candidatePoolSize)
		if err != nil {
			return nil, err
		}
		maxCoupling := 0.0
		for _, r := range rels {
			if r.Weight > maxCoupling {
				maxCoupling = r.Weight
			}
		}
		churn := e.Metadata.TotalLinesAdded + e.Metadata.TotalLinesDeleted
		commitsPctile := percentile(e.Metadata.TotalCommits)

		risk := 0.3*commitsPctile*100 + 0.3*maxCoupling*100 +
			math.Min(20, float64(e.Metadata.AuthorsCount)*5) +
			math.Min(20, float64(churn)/50)
		risk = math.Min(100, risk)

		hotspots = append(hotspots, Hotspot{
			EntityID:     e.EntityID,
			Path:         e.QualifiedName,
			TotalCommits: e.Metadata.TotalCommits,
			AuthorsCount: e.Metadata.AuthorsCount,
			Churn:        churn,
			MaxCoupling:  maxCoupling,
			RiskScore:    risk,
		})
	}

	less, err := hotspotLess(sortBy)
	if err != nil {
		return nil, err
	}
	sort.Slice(hotspots, func(i, j int) bool { return less(hotspots[i], hotspots[j]) })

	if limit > 0 && len(hotspots) > limit {
		hotspots = hotspots[:limit]
	}
	return hotspots, nil
}

func hotspotLess(sortBy string) (func(a, b Hotspot) bool, error) {
	switch sortBy {
	case "", "risk":
		return func(a, b Hotspot) bool { return a.RiskScore > b.RiskScore }, nil
	case "commits":
		return func(a, b Hotspot) bool { return a.TotalCommits > b.TotalCommits }, nil
	case "churn":
		return func(a, b Hotspot) bool { return a.Churn > b.Churn }, nil
	case "coupling":
		return func(a, b Hotspot) bool { return a.MaxCoupling > b.MaxCoupling }, nil
	default:
		return nil, apperrors.InputErrorf("query: unknown sort_by %q", sortBy)
	}
}
