package extract_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/coderisk/coupler/internal/extract"
	"github.com/coderisk/coupler/internal/mirror"
	"github.com/coderisk/coupler/internal/models"
	"github.com/coderisk/coupler/internal/storage"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// buildRenameRepo builds a.go, then renames it to b.go in a second commit
// without modifying its content enough to defeat git's rename detection —
// the setup behind spec.md §8's S3 scenario.
func buildRenameRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "dev@example.com")
	runGit(t, dir, "config", "user.name", "Dev")

	content := make([]byte, 0, 2000)
	for i := 0; i < 200; i++ {
		content = append(content, []byte("line of content that stays stable across the rename\n")...)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), content, 0o644))
	runGit(t, dir, "add", "a.go")
	runGit(t, dir, "commit", "-q", "-m", "add a.go")

	runGit(t, dir, "mv", "a.go", "b.go")
	runGit(t, dir, "commit", "-q", "-m", "rename a.go to b.go")
	return dir
}

func newStore(t *testing.T) (storage.Store, *storage.ColumnarStore) {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.sqlite"), logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cs, err := storage.OpenColumnarStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return s, cs
}

func TestExtractor_Run_PreservesRenameIdentity(t *testing.T) {
	source := buildRenameRepo(t)
	store, columnar := newStore(t)
	require.NoError(t, store.SaveRepository(context.Background(), &models.Repository{RepoID: "r1", Name: "r1"}))

	mgr := mirror.New(t.TempDir())
	opts := models.DefaultAnalysisOptions()
	opts.MinCooccurrence = 1
	ex := extract.New(store, columnar, mgr, "r1", opts, logrus.New())

	result, err := ex.Run(context.Background(), source, nil)
	require.NoError(t, err)
	require.Equal(t, 2, result.CommitCount)
	require.Equal(t, 1, result.EntityCount, "rename must not create a second entity")

	entities, err := store.ListEntities(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, "b.go", entities[0].QualifiedName)
	require.True(t, entities[0].ExistsAtHead)
	require.Equal(t, 2, entities[0].Metadata.TotalCommits)
}

func TestExtractor_Run_NoFalseFiles(t *testing.T) {
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "dev@example.com")
	runGit(t, dir, "config", "user.name", "Dev")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hi"), 0o644))
	runGit(t, dir, "add", "README.md")
	runGit(t, dir, "commit", "-q", "-m", "docs: initial readme")

	store, columnar := newStore(t)
	require.NoError(t, store.SaveRepository(context.Background(), &models.Repository{RepoID: "r1", Name: "r1"}))
	mgr := mirror.New(t.TempDir())
	opts := models.DefaultAnalysisOptions()
	ex := extract.New(store, columnar, mgr, "r1", opts, logrus.New())

	result, err := ex.Run(context.Background(), dir, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.EntityCount)

	entities, err := store.ListEntities(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, "README.md", entities[0].QualifiedName)
}

func TestExtractor_Run_ExtensionFilterExcludesEntities(t *testing.T) {
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "dev@example.com")
	runGit(t, dir, "config", "user.name", "Dev")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("notes"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "initial")

	store, columnar := newStore(t)
	require.NoError(t, store.SaveRepository(context.Background(), &models.Repository{RepoID: "r1", Name: "r1"}))
	mgr := mirror.New(t.TempDir())
	opts := models.DefaultAnalysisOptions()
	opts.IncludeExtensions = []string{"go"}
	ex := extract.New(store, columnar, mgr, "r1", opts, logrus.New())

	result, err := ex.Run(context.Background(), dir, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.EntityCount)

	entities, err := store.ListEntities(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, "main.go", entities[0].QualifiedName)
}
