package query_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/coderisk/coupler/internal/models"
	"github.com/coderisk/coupler/internal/query"
	"github.com/coderisk/coupler/internal/storage"
)

func newStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.sqlite"), logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.SaveRepository(context.Background(), &models.Repository{RepoID: "r1", Name: "r1"}))
	return s
}

func seedEntity(t *testing.T, store storage.Store, path string, commits, authors int, added, deleted int64) int64 {
	t.Helper()
	id, err := store.ResolveOrCreateEntity(context.Background(), "r1", path, 100)
	require.NoError(t, err)
	require.NoError(t, store.UpdateEntityMetadata(context.Background(), id, models.EntityMetadata{
		TotalCommits: commits, AuthorsCount: authors, TotalLinesAdded: added, TotalLinesDeleted: deleted,
		FirstCommitTS: 100, LastCommitTS: 200,
	}))
	// UpdateHeadStatus clears every path not in the set, so keep all
	// previously seeded entities at HEAD alongside this one.
	entities, err := store.ListEntities(context.Background(), "r1")
	require.NoError(t, err)
	head := map[string]struct{}{}
	for _, e := range entities {
		head[e.QualifiedName] = struct{}{}
	}
	require.NoError(t, store.UpdateHeadStatus(context.Background(), "r1", head))
	return id
}

func TestCoupling_FiltersByMinWeight(t *testing.T) {
	store := newStore(t)
	a := seedEntity(t, store, "a.go", 10, 2, 100, 10)
	b := seedEntity(t, store, "b.go", 10, 2, 100, 10)
	c := seedEntity(t, store, "c.go", 10, 2, 100, 10)
	require.NoError(t, store.ReplaceRelationships(context.Background(), "r1", models.GitSource, models.CoChanged, []models.Relationship{
		{SourceType: models.GitSource, RelKind: models.CoChanged, Src: a, Dst: b, Weight: 0.8,
			Properties: models.RelationshipProps{Jaccard: 0.8}},
		{SourceType: models.GitSource, RelKind: models.CoChanged, Src: a, Dst: c, Weight: 0.1,
			Properties: models.RelationshipProps{Jaccard: 0.1}},
	}))

	rels, err := query.Coupling(context.Background(), store, a, "jaccard", 0.5, 10)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, b, rels[0].Dst)
}

func TestCouplingGraph_IncludesOnlyNodeSetEdges(t *testing.T) {
	store := newStore(t)
	a := seedEntity(t, store, "a.go", 10, 2, 0, 0)
	b := seedEntity(t, store, "b.go", 10, 2, 0, 0)
	c := seedEntity(t, store, "c.go", 10, 2, 0, 0)
	require.NoError(t, store.ReplaceRelationships(context.Background(), "r1", models.GitSource, models.CoChanged, []models.Relationship{
		{SourceType: models.GitSource, RelKind: models.CoChanged, Src: a, Dst: b, Weight: 0.9,
			Properties: models.RelationshipProps{Jaccard: 0.9}},
		{SourceType: models.GitSource, RelKind: models.CoChanged, Src: b, Dst: c, Weight: 0.9,
			Properties: models.RelationshipProps{Jaccard: 0.9}},
	}))

	g, err := query.CouplingGraph(context.Background(), store, "r1", a, "jaccard", 0.0, 10)
	require.NoError(t, err)
	require.Contains(t, g.Neighbors, b)
	require.NotContains(t, g.Neighbors, c)
	// b-c is not incident on a, so it must not appear even though b is a node.
	for _, e := range g.Edges {
		require.False(t, e.Src == b && e.Dst == c)
	}
}

func TestHotspots_RiskScoreBounded(t *testing.T) {
	store := newStore(t)
	a := seedEntity(t, store, "a.go", 100, 10, 100000, 100000)
	b := seedEntity(t, store, "b.go", 1, 1, 0, 0)
	require.NoError(t, store.ReplaceRelationships(context.Background(), "r1", models.GitSource, models.CoChanged, []models.Relationship{
		{SourceType: models.GitSource, RelKind: models.CoChanged, Src: a, Dst: b, Weight: 0.99,
			Properties: models.RelationshipProps{Jaccard: 0.99}},
	}))

	hotspots, err := query.Hotspots(context.Background(), store, "r1", "risk", 10)
	require.NoError(t, err)
	require.Len(t, hotspots, 2)
	for _, h := range hotspots {
		require.GreaterOrEqual(t, h.RiskScore, 0.0)
		require.LessOrEqual(t, h.RiskScore, 100.0)
	}
	require.Equal(t, "a.go", hotspots[0].Path, "higher commit/coupling entity ranks first")
}

func TestHotspots_UnknownSortByErrors(t *testing.T) {
	store := newStore(t)
	seedEntity(t, store, "a.go", 1, 1, 0, 0)
	_, err := query.Hotspots(context.Background(), store, "r1", "bogus", 10)
	require.Error(t, err)
}
