package orchestrator_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/coderisk/coupler/internal/config"
	"github.com/coderisk/coupler/internal/models"
	"github.com/coderisk/coupler/internal/orchestrator"
	"github.com/coderisk/coupler/internal/storage"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func buildRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "dev@example.com")
	runGit(t, dir, "config", "user.name", "Dev")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

func newOrchestrator(t *testing.T) (*orchestrator.Orchestrator, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.sqlite"), logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return orchestrator.New(store, cfg, logrus.New()), store
}

func TestOrchestrator_CreateRepository_SeedsDefaultConfiguration(t *testing.T) {
	o, store := newOrchestrator(t)
	repo, err := o.CreateRepository(context.Background(), "/some/path", "my-repo")
	require.NoError(t, err)
	require.NotEmpty(t, repo.RepoID)
	require.Contains(t, repo.RepoID, "my-repo")

	active, err := store.GetActiveConfiguration(context.Background(), repo.RepoID)
	require.NoError(t, err)
	require.Equal(t, "default", active.Name)
	require.True(t, active.Active)
}

func TestOrchestrator_CreateRepository_DistinctIDsForSameName(t *testing.T) {
	o, _ := newOrchestrator(t)
	a, err := o.CreateRepository(context.Background(), "/p1", "dup")
	require.NoError(t, err)
	b, err := o.CreateRepository(context.Background(), "/p2", "dup")
	require.NoError(t, err)
	require.NotEqual(t, a.RepoID, b.RepoID)
}

func TestOrchestrator_EnqueueAnalysis_RunsToCompletion(t *testing.T) {
	o, store := newOrchestrator(t)
	source := buildRepo(t)

	repo, err := o.CreateRepository(context.Background(), source, "demo")
	require.NoError(t, err)

	taskID, err := o.EnqueueAnalysis(context.Background(), repo.RepoID, "")
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		task, err := store.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		return task.State == models.TaskCompleted
	}, 5*time.Second, 20*time.Millisecond)

	task, err := store.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, 1, task.EntityCount)
}

func TestOrchestrator_CancelAnalysis_UnknownTaskErrors(t *testing.T) {
	o, _ := newOrchestrator(t)
	err := o.CancelAnalysis("does-not-exist")
	require.Error(t, err)
}

func TestOrchestrator_SubscribeProgress_ClosesOnCompletion(t *testing.T) {
	o, store := newOrchestrator(t)
	source := buildRepo(t)

	repo, err := o.CreateRepository(context.Background(), source, "demo2")
	require.NoError(t, err)
	taskID, err := o.EnqueueAnalysis(context.Background(), repo.RepoID, "")
	require.NoError(t, err)

	ch, err := o.SubscribeProgress(taskID)
	require.NoError(t, err)

	closed := false
	deadline := time.After(5 * time.Second)
	for !closed {
		select {
		case _, ok := <-ch:
			if !ok {
				closed = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for progress channel to close")
		}
	}

	task, err := store.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskCompleted, task.State)
}

func TestOrchestrator_GetHotspots_AfterAnalysis(t *testing.T) {
	o, _ := newOrchestrator(t)
	source := buildRepo(t)

	repo, err := o.CreateRepository(context.Background(), source, "demo3")
	require.NoError(t, err)
	taskID, err := o.EnqueueAnalysis(context.Background(), repo.RepoID, "")
	require.NoError(t, err)

	ch, err := o.SubscribeProgress(taskID)
	require.NoError(t, err)
	for range ch {
	}

	hotspots, err := o.GetHotspots(context.Background(), repo.RepoID, "risk", 10)
	require.NoError(t, err)
	require.Len(t, hotspots, 1)
	require.Equal(t, "main.go", hotspots[0].Path)
}
