package mirror

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initSourceRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestPrepare_ClonesThenFetches(t *testing.T) {
	source := initSourceRepo(t)
	repoRoot := t.TempDir()
	m := New(repoRoot)

	p1, err := m.Prepare(context.Background(), source)
	require.NoError(t, err)
	require.NotEmpty(t, p1.HeadOID)
	require.Contains(t, p1.HeadPaths, "a.txt")
	require.DirExists(t, filepath.Join(repoRoot, "mirror.git"))

	// Second prepare should fetch rather than re-clone, and should still
	// succeed with the repo unchanged.
	p2, err := m.Prepare(context.Background(), source)
	require.NoError(t, err)
	require.Equal(t, p1.HeadOID, p2.HeadOID)
}

func TestPrepare_EmptyRepoHasNoHead(t *testing.T) {
	source := t.TempDir()
	cmd := exec.Command("git", "init", "-q")
	cmd.Dir = source
	require.NoError(t, cmd.Run())

	repoRoot := t.TempDir()
	m := New(repoRoot)

	p, err := m.Prepare(context.Background(), source)
	require.NoError(t, err)
	require.Empty(t, p.HeadOID)
	require.Empty(t, p.HeadPaths)
}

func TestPrepare_RejectsInvalidSource(t *testing.T) {
	repoRoot := t.TempDir()
	notARepo := t.TempDir()
	m := New(repoRoot)

	_, err := m.Prepare(context.Background(), notARepo)
	require.Error(t, err)
}
