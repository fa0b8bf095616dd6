// Package coupling implements the edge builder (C7): weighted pair counting
// over a transaction sequence, metric computation, and per-file top-K
// retention. The weighted-aggregation-then-composite-metric shape is
// grounded on the teacher's internal/clqs/calculator.go (accumulate
// per-component scores, then combine into one weighted result) generalized
// here from a single repository-level score to a pairwise edge set.
package coupling

import (
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/coderisk/coupler/internal/changeset"
	"github.com/coderisk/coupler/internal/models"
)

// pairKey is a canonicalized (src < dst) entity pair.
type pairKey struct{ a, b int64 }

func canon(a, b int64) pairKey {
	if a < b {
		return pairKey{a, b}
	}
	return pairKey{b, a}
}

// Build runs the full C7 pipeline over txns: pair counting (pass 1), metric
// computation, min_cooccurrence filtering, and top-K retention (pass 2),
// returning the final CO_CHANGED relationship set ready for
// storage.Store.ReplaceRelationships.
//
// eligible restricts which entities may participate in pairs (spec.md
// §4.5's min_revisions filter: entities below the threshold are not
// removed from the entity table but are "ineligible to appear in pairs").
// A nil eligible map means no restriction (useful for tests operating on
// already-filtered input).
func Build(txns []changeset.Transaction, eligible map[int64]bool, opts models.AnalysisOptions) []models.Relationship {
	pairCount := map[pairKey]float64{}
	fileCount := map[int64]int64{}
	fileWeight := map[int64]float64{}

	for _, t := range txns {
		files := t.Files
		if eligible != nil {
			files = filterEligible(t.Files, eligible)
		}
		if len(files) < 2 {
			continue
		}

		w := t.Weight
		if len(files) > opts.MaxChangesetSize {
			w *= 1.0 / math.Log(1+float64(len(files)))
		}

		ids := sortedKeys(files)
		for i := 0; i < len(ids); i++ {
			fileCount[ids[i]]++
			fileWeight[ids[i]] += w
			for j := i + 1; j < len(ids); j++ {
				pairCount[canon(ids[i], ids[j])] += w
			}
		}
	}

	type candidate struct {
		key   pairKey
		pc    float64
		props models.RelationshipProps
	}
	var candidates []candidate
	for k, pc := range pairCount {
		if pc < float64(opts.MinCooccurrence) {
			continue
		}
		cA := fileCount[k.a]
		cB := fileCount[k.b]
		wA := fileWeight[k.a]
		wB := fileWeight[k.b]

		props := models.RelationshipProps{
			PairCount:       pc,
			SrcCount:        cA,
			DstCount:        cB,
		}
		if denom := float64(cA + cB) - pc; denom > 0 {
			props.Jaccard = pc / denom
		}
		if denom := wA + wB - pc; denom > 0 {
			props.JaccardWeighted = pc / denom
		}
		if cA > 0 {
			props.PDstGivenSrc = pc / float64(cA)
		}
		if cB > 0 {
			props.PSrcGivenDst = pc / float64(cB)
		}
		candidates = append(candidates, candidate{key: k, pc: pc, props: props})
	}

	// Per-entity top-K, ordered by jaccard desc, ties by pair_count desc,
	// then by (src,dst) for determinism.
	incident := map[int64][]int{} // entity id -> indices into candidates
	for i, c := range candidates {
		incident[c.key.a] = append(incident[c.key.a], i)
		incident[c.key.b] = append(incident[c.key.b], i)
	}

	less := func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.props.Jaccard != cj.props.Jaccard {
			return ci.props.Jaccard > cj.props.Jaccard
		}
		if ci.pc != cj.pc {
			return ci.pc > cj.pc
		}
		if ci.key.a != cj.key.a {
			return ci.key.a < cj.key.a
		}
		return ci.key.b < cj.key.b
	}

	// Per-entity top-K selection is independent across entities, so it runs
	// concurrently via errgroup; each goroutine only touches its own slot in
	// winners, merged into survive without locking once every goroutine has
	// returned.
	entityIDs := make([]int64, 0, len(incident))
	for id := range incident {
		entityIDs = append(entityIDs, id)
	}
	winners := make([][]int, len(entityIDs))
	var g errgroup.Group
	for i, id := range entityIDs {
		i, id := i, id
		g.Go(func() error {
			idxs := incident[id]
			sorted := append([]int(nil), idxs...)
			sort.Slice(sorted, func(a, b int) bool { return less(sorted[a], sorted[b]) })
			k := opts.TopKEdgesPerFile
			if k > len(sorted) {
				k = len(sorted)
			}
			winners[i] = sorted[:k]
			return nil
		})
	}
	_ = g.Wait()

	survive := make(map[int]bool, len(candidates))
	for _, idxs := range winners {
		for _, idx := range idxs {
			survive[idx] = true
		}
	}

	out := make([]models.Relationship, 0, len(survive))
	for i, c := range candidates {
		if !survive[i] {
			continue
		}
		out = append(out, models.Relationship{
			SourceType: models.GitSource,
			RelKind:    models.CoChanged,
			Src:        c.key.a,
			Dst:        c.key.b,
			Weight:     c.props.Jaccard,
			Properties: c.props,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Src != out[j].Src {
			return out[i].Src < out[j].Src
		}
		return out[i].Dst < out[j].Dst
	})
	return out
}

func filterEligible(files map[int64]struct{}, eligible map[int64]bool) map[int64]struct{} {
	out := make(map[int64]struct{}, len(files))
	for f := range files {
		if eligible[f] {
			out[f] = struct{}{}
		}
	}
	return out
}

func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
