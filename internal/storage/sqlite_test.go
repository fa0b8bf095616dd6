package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/coderisk/coupler/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	logger := logrus.New()
	logger.SetOutput(nil)
	s, err := NewSQLiteStore(path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RepositoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	repo := &models.Repository{RepoID: "repo-abc123", Name: "example", SourcePath: "/tmp/example", CreatedAt: time.Now()}
	require.NoError(t, s.SaveRepository(ctx, repo))

	got, err := s.GetRepository(ctx, repo.RepoID)
	require.NoError(t, err)
	require.Equal(t, repo.Name, got.Name)

	_, err = s.GetRepository(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ResolveOrCreateEntity_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRepository(ctx, &models.Repository{RepoID: "r1", Name: "r1", CreatedAt: time.Now()}))

	id1, err := s.ResolveOrCreateEntity(ctx, "r1", "src/main.go", 100)
	require.NoError(t, err)
	id2, err := s.ResolveOrCreateEntity(ctx, "r1", "src/main.go", 200)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	e, err := s.GetEntity(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, int64(100), e.Metadata.FirstCommitTS)
}

func TestSQLiteStore_RenameEntity_PreservesIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRepository(ctx, &models.Repository{RepoID: "r1", Name: "r1", CreatedAt: time.Now()}))

	oldID, err := s.ResolveOrCreateEntity(ctx, "r1", "old/path.go", 100)
	require.NoError(t, err)

	newID, err := s.RenameEntity(ctx, "r1", "old/path.go", "new/path.go", "deadbeef", 200)
	require.NoError(t, err)
	require.Equal(t, oldID, newID)

	e, err := s.GetEntityByPath(ctx, "r1", "new/path.go")
	require.NoError(t, err)
	require.Equal(t, oldID, e.EntityID)

	_, err = s.GetEntityByPath(ctx, "r1", "old/path.go")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ReplaceRelationshipsAndListCoupling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRepository(ctx, &models.Repository{RepoID: "r1", Name: "r1", CreatedAt: time.Now()}))

	a, _ := s.ResolveOrCreateEntity(ctx, "r1", "a.go", 1)
	b, _ := s.ResolveOrCreateEntity(ctx, "r1", "b.go", 1)
	c, _ := s.ResolveOrCreateEntity(ctx, "r1", "c.go", 1)

	err := s.ReplaceRelationships(ctx, "r1", models.GitSource, models.CoChanged, []models.Relationship{
		{SourceType: models.GitSource, RelKind: models.CoChanged, Src: a, Dst: b, Weight: 0.9,
			Properties: models.RelationshipProps{PairCount: 9}},
		{SourceType: models.GitSource, RelKind: models.CoChanged, Src: a, Dst: c, Weight: 0.2,
			Properties: models.RelationshipProps{PairCount: 2}},
	})
	require.NoError(t, err)

	rels, err := s.ListCoupling(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	require.Equal(t, b, rels[0].Dst) // highest weight first
	require.Equal(t, 9.0, rels[0].Properties.PairCount)

	// Replace again with a shrunk batch (a-c dropped); the stale row must be
	// gone, not merely left stale alongside the updated a-b weight.
	err = s.ReplaceRelationships(ctx, "r1", models.GitSource, models.CoChanged, []models.Relationship{
		{SourceType: models.GitSource, RelKind: models.CoChanged, Src: a, Dst: b, Weight: 0.95},
	})
	require.NoError(t, err)
	rels, err = s.ListCoupling(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, b, rels[0].Dst)
	require.Equal(t, 0.95, rels[0].Weight)

	// Replace with an empty batch clears everything for this repo.
	err = s.ReplaceRelationships(ctx, "r1", models.GitSource, models.CoChanged, nil)
	require.NoError(t, err)
	rels, err = s.ListCoupling(ctx, a, 10)
	require.NoError(t, err)
	require.Empty(t, rels)
}

func TestSQLiteStore_ConfigurationActivation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRepository(ctx, &models.Repository{RepoID: "r1", Name: "r1", CreatedAt: time.Now()}))

	cfg1 := &models.AnalysisConfiguration{ConfigID: "cfg1", RepoID: "r1", Name: "default", Version: 1,
		Active: true, Options: models.DefaultAnalysisOptions(), CreatedAt: time.Now()}
	cfg2 := &models.AnalysisConfiguration{ConfigID: "cfg2", RepoID: "r1", Name: "tuned", Version: 2,
		Options: models.DefaultAnalysisOptions(), CreatedAt: time.Now()}
	require.NoError(t, s.SaveConfiguration(ctx, cfg1))
	require.NoError(t, s.SaveConfiguration(ctx, cfg2))

	active, err := s.GetActiveConfiguration(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "cfg1", active.ConfigID)

	require.NoError(t, s.SetActiveConfiguration(ctx, "r1", "cfg2"))
	active, err = s.GetActiveConfiguration(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "cfg2", active.ConfigID)

	cfgs, err := s.ListConfigurations(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
}

func TestSQLiteStore_TaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRepository(ctx, &models.Repository{RepoID: "r1", Name: "r1", CreatedAt: time.Now()}))

	task := &models.AnalysisTask{TaskID: "t1", RepoID: "r1", AnalyzerKind: "coupling", State: models.TaskPending, ConfigID: "cfg1"}
	require.NoError(t, s.CreateTask(ctx, task))

	task.State = models.TaskRunning
	task.Progress = models.TaskProgress{Stage: models.StageExtracting, Percent: 42}
	require.NoError(t, s.UpdateTask(ctx, task))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, models.TaskRunning, got.State)
	require.Equal(t, 42.0, got.Progress.Percent)
}

func TestSQLiteStore_ClusterRunRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRepository(ctx, &models.Repository{RepoID: "r1", Name: "r1", CreatedAt: time.Now()}))
	a, _ := s.ResolveOrCreateEntity(ctx, "r1", "a.go", 1)
	b, _ := s.ResolveOrCreateEntity(ctx, "r1", "b.go", 1)

	run := &models.ClusterRun{RunID: "run1", RepoID: "r1", Algorithm: "union_find", CreatedAt: time.Now(), ClusterCount: 1}
	members := []models.ClusterMember{{RunID: "run1", ClusterID: 1, EntityID: a}, {RunID: "run1", ClusterID: 1, EntityID: b}}
	require.NoError(t, s.SaveClusterRun(ctx, run, members))

	got, err := s.GetClusterRun(ctx, "run1")
	require.NoError(t, err)
	require.Equal(t, "union_find", got.Algorithm)

	m, err := s.GetClusterMembers(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, m, 2)
}
