// Package mirror maintains the bare-clone mirror each analysis task reads
// from, so extraction never touches the source working tree directly
// (spec.md §4.3).
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/coderisk/coupler/internal/apperrors"
)

// Manager prepares and refreshes the mirror.git bare clone under a
// repository's data directory.
type Manager struct {
	// RepoRoot is $DATA_DIR/repos/<repo_id>.
	RepoRoot string
}

// New returns a Manager rooted at repoRoot.
func New(repoRoot string) *Manager {
	return &Manager{RepoRoot: repoRoot}
}

func (m *Manager) mirrorPath() string {
	return filepath.Join(m.RepoRoot, "mirror.git")
}

func (m *Manager) lockPath() string {
	return filepath.Join(m.RepoRoot, "mirror.lock")
}

// Prepared is the result of a successful Prepare call.
type Prepared struct {
	MirrorPath string
	HeadOID    string
	HeadPaths  map[string]struct{}
}

// Prepare ensures mirror.git exists and reflects origin's current state,
// taking an exclusive flock for the duration so no two tasks for the same
// repository race on clone/fetch (spec.md §5).
func (m *Manager) Prepare(ctx context.Context, sourcePath string) (*Prepared, error) {
	if err := os.MkdirAll(m.RepoRoot, 0o755); err != nil {
		return nil, apperrors.IOErrorf(err, "mirror: create repo root %s", m.RepoRoot)
	}

	lock := flock.New(m.lockPath())
	locked, err := lock.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return nil, apperrors.IOErrorf(err, "mirror: acquire lock %s", m.lockPath())
	}
	if !locked {
		return nil, apperrors.IOErrorf(fmt.Errorf("lock busy"), "mirror: %s is held by another task", m.lockPath())
	}
	defer lock.Unlock()

	if err := m.validateSource(ctx, sourcePath); err != nil {
		return nil, err
	}

	if _, err := os.Stat(m.mirrorPath()); os.IsNotExist(err) {
		if err := m.clone(ctx, sourcePath); err != nil {
			return nil, err
		}
	} else {
		if err := m.fetch(ctx); err != nil {
			return nil, err
		}
	}

	headOID, err := m.headOID(ctx)
	if err != nil {
		if m.unbornHEAD(ctx) {
			// Empty repository: no commits yet, so there is nothing to
			// extract (spec.md §8 boundary behavior).
			return &Prepared{MirrorPath: m.mirrorPath(), HeadOID: "", HeadPaths: map[string]struct{}{}}, nil
		}
		return nil, err
	}
	paths, err := m.headPaths(ctx)
	if err != nil {
		return nil, err
	}

	return &Prepared{MirrorPath: m.mirrorPath(), HeadOID: headOID, HeadPaths: paths}, nil
}

// unbornHEAD reports whether the mirror's HEAD points at a branch that has
// never been committed to (a freshly initialized or truly empty repository),
// as opposed to rev-parse HEAD failing for some other reason (corrupt
// git-dir, missing mirror). `git symbolic-ref` succeeds in both the unborn
// and normal case; it is the combination with a failing `rev-parse HEAD`
// that identifies "no commits yet".
func (m *Manager) unbornHEAD(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "--git-dir", m.mirrorPath(), "symbolic-ref", "-q", "HEAD")
	return cmd.Run() == nil
}

// validateSource fails with apperrors.IoError if sourcePath is not a valid
// git repository, satisfying spec.md §4.3's "Fails with MirrorError if the
// source is not a valid repository" — folded into the single IoError kind
// (see SPEC_FULL.md §7's kind remap).
func (m *Manager) validateSource(ctx context.Context, sourcePath string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", sourcePath, "rev-parse", "--git-dir")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return apperrors.IOErrorf(err, "mirror: %s is not a valid git repository: %s", sourcePath, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (m *Manager) clone(ctx context.Context, sourcePath string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--mirror", sourcePath, m.mirrorPath())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return apperrors.IOErrorf(err, "mirror: clone --mirror failed: %s", strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (m *Manager) fetch(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "--git-dir", m.mirrorPath(), "fetch", "origin")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return apperrors.IOErrorf(err, "mirror: fetch origin failed: %s", strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (m *Manager) headOID(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "--git-dir", m.mirrorPath(), "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "", apperrors.IOError(err, "mirror: rev-parse HEAD")
	}
	return strings.TrimSpace(string(out)), nil
}

func (m *Manager) headPaths(ctx context.Context) (map[string]struct{}, error) {
	cmd := exec.CommandContext(ctx, "git", "--git-dir", m.mirrorPath(), "ls-tree", "-r", "--name-only", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return nil, apperrors.IOError(err, "mirror: ls-tree HEAD")
	}
	paths := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			paths[line] = struct{}{}
		}
	}
	return paths, nil
}

// LogArgs returns the argv for the `git log --name-status -z` invocation C2
// reads from, scoped to this mirror's git-dir.
func (m *Manager) LogArgs(prettyFormat string, rangeSpec string) []string {
	args := []string{
		"--git-dir", m.mirrorPath(),
		"log", "--name-status", "--find-renames=60%", "--date-order", "-z",
		fmt.Sprintf("--pretty=format:%s", prettyFormat),
	}
	if rangeSpec != "" {
		args = append(args, rangeSpec)
	}
	return args
}
