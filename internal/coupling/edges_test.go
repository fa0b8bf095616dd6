package coupling_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coderisk/coupler/internal/changeset"
	"github.com/coderisk/coupler/internal/coupling"
	"github.com/coderisk/coupler/internal/models"
)

func txn(ts int64, ids ...int64) changeset.Transaction {
	files := map[int64]struct{}{}
	for _, id := range ids {
		files[id] = struct{}{}
	}
	return changeset.Transaction{Files: files, Weight: 1.0, TS: ts}
}

func findEdge(rels []models.Relationship, a, b int64) (models.Relationship, bool) {
	if a > b {
		a, b = b, a
	}
	for _, r := range rels {
		if r.Src == a && r.Dst == b {
			return r, true
		}
	}
	return models.Relationship{}, false
}

// S1 from spec.md §8: core/engine(1) <-> core/utils(2) x10,
// core/engine(1) <-> tests/test_engine(3) x10,
// core/utils(2) <-> tests/test_utils(4) x10,
// api/routes(5) <-> api/handlers(6) x5.
func TestBuild_S1Scenario(t *testing.T) {
	var txns []changeset.Transaction
	for i := 0; i < 10; i++ {
		txns = append(txns, txn(int64(i), 1, 2))
	}
	for i := 0; i < 10; i++ {
		txns = append(txns, txn(int64(10+i), 1, 3))
	}
	for i := 0; i < 10; i++ {
		txns = append(txns, txn(int64(20+i), 2, 4))
	}
	for i := 0; i < 5; i++ {
		txns = append(txns, txn(int64(30+i), 5, 6))
	}

	opts := models.DefaultAnalysisOptions()
	opts.MaxChangesetSize = 10
	opts.MinCooccurrence = 5

	rels := coupling.Build(txns, nil, opts)

	engineUtils, ok := findEdge(rels, 1, 2)
	require.True(t, ok)
	require.InDelta(t, 10.0, engineUtils.Properties.PairCount, 1e-9)
	require.InDelta(t, 10.0/30.0, engineUtils.Properties.Jaccard, 1e-9)
	require.InDelta(t, engineUtils.Properties.Jaccard, engineUtils.Properties.JaccardWeighted, 1e-9)

	routesHandlers, ok := findEdge(rels, 5, 6)
	require.True(t, ok)
	require.InDelta(t, 1.0, routesHandlers.Properties.Jaccard, 1e-9)
}

// S2 from spec.md §8: wide changesets touching core/engine(1) and config(7)
// among 11 files must not create a surviving edge between them once
// max_changeset_size=10 triggers log-dampening and min_cooccurrence=5 still
// requires real support.
func TestBuild_S2WideChangesetsDamped(t *testing.T) {
	var txns []changeset.Transaction
	for i := 0; i < 4; i++ {
		ids := []int64{1, 7}
		for f := int64(100); f < 109; f++ {
			ids = append(ids, f)
		}
		txns = append(txns, txn(int64(i), ids...))
	}

	opts := models.DefaultAnalysisOptions()
	opts.MaxChangesetSize = 10
	opts.MinCooccurrence = 5

	rels := coupling.Build(txns, nil, opts)
	_, ok := findEdge(rels, 1, 7)
	require.False(t, ok, "config must not appear among core/engine's neighbors")
}

func TestBuild_MinCooccurrenceDropsWeakPairs(t *testing.T) {
	txns := []changeset.Transaction{txn(0, 1, 2), txn(1, 1, 2)}
	opts := models.DefaultAnalysisOptions()
	opts.MinCooccurrence = 5
	rels := coupling.Build(txns, nil, opts)
	require.Empty(t, rels)
}

func TestBuild_TopKRetentionKeepsStrongestPerFile(t *testing.T) {
	// Entity 1 co-changes with 2, 3, 4 at counts 10, 8, 6 respectively (each
	// pair exclusive to those two files so jaccard ordering follows count
	// ordering directly). Entity 4 also co-changes 10 times each with 5 and
	// 6, so (1,4) is outside the top-2 of both of its endpoints; a pair in
	// either endpoint's top-K survives.
	var txns []changeset.Transaction
	for i := 0; i < 10; i++ {
		txns = append(txns, txn(int64(i), 1, 2))
	}
	for i := 0; i < 8; i++ {
		txns = append(txns, txn(int64(100+i), 1, 3))
	}
	for i := 0; i < 6; i++ {
		txns = append(txns, txn(int64(200+i), 1, 4))
	}
	for i := 0; i < 10; i++ {
		txns = append(txns, txn(int64(300+i), 4, 5))
		txns = append(txns, txn(int64(400+i), 4, 6))
	}

	opts := models.DefaultAnalysisOptions()
	opts.MinCooccurrence = 1
	opts.TopKEdgesPerFile = 2

	rels := coupling.Build(txns, nil, opts)
	_, has12 := findEdge(rels, 1, 2)
	_, has13 := findEdge(rels, 1, 3)
	_, has14 := findEdge(rels, 1, 4)
	require.True(t, has12)
	require.True(t, has13)
	require.False(t, has14, "edge beyond the top-2 of both endpoints should be dropped")
}

func TestBuild_EligibilityExcludesLowRevisionFiles(t *testing.T) {
	txns := []changeset.Transaction{txn(0, 1, 2), txn(1, 1, 2), txn(2, 1, 2), txn(3, 1, 2), txn(4, 1, 2)}
	opts := models.DefaultAnalysisOptions()
	opts.MinCooccurrence = 1

	eligible := map[int64]bool{1: true} // 2 is below min_revisions
	rels := coupling.Build(txns, eligible, opts)
	require.Empty(t, rels)
}

func TestBuild_RemovingTransactionNeverIncreasesPairCount(t *testing.T) {
	full := []changeset.Transaction{txn(0, 1, 2), txn(1, 1, 2), txn(2, 1, 2)}
	reduced := full[:2]

	opts := models.DefaultAnalysisOptions()
	opts.MinCooccurrence = 1

	fullRels := coupling.Build(full, nil, opts)
	reducedRels := coupling.Build(reduced, nil, opts)

	fullEdge, _ := findEdge(fullRels, 1, 2)
	reducedEdge, _ := findEdge(reducedRels, 1, 2)
	require.LessOrEqual(t, reducedEdge.Properties.PairCount, fullEdge.Properties.PairCount)
}
