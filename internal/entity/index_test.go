package entity_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/coderisk/coupler/internal/entity"
	"github.com/coderisk/coupler/internal/models"
	"github.com/coderisk/coupler/internal/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.sqlite"), logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.SaveRepository(context.Background(), &models.Repository{RepoID: "r1", Name: "r1"}))
	return s
}

func TestResolve_PlainChangeCreatesEntity(t *testing.T) {
	store := newTestStore(t)
	ix := entity.New(store, "r1", models.CopySeparate)

	id, err := ix.Resolve(context.Background(), models.Status("M"), "", "a.go", "c1", 100)
	require.NoError(t, err)
	require.NotZero(t, id)

	again, err := ix.Resolve(context.Background(), models.Status("M"), "", "a.go", "c2", 200)
	require.NoError(t, err)
	require.Equal(t, id, again, "same path resolves to the same entity id")
}

func TestResolve_RenamePreservesIdentity(t *testing.T) {
	store := newTestStore(t)
	ix := entity.New(store, "r1", models.CopySeparate)

	oldID, err := ix.Resolve(context.Background(), models.Status("A"), "", "a.py", "c1", 100)
	require.NoError(t, err)

	newID, err := ix.Resolve(context.Background(), models.Status("R100"), "a.py", "b.py", "c2", 200)
	require.NoError(t, err)
	require.Equal(t, oldID, newID, "rename preserves entity id")

	e, err := ix.Get(context.Background(), "b.py")
	require.NoError(t, err)
	require.Equal(t, newID, e.EntityID)
}

func TestResolve_CopyCreatesDistinctEntity(t *testing.T) {
	store := newTestStore(t)
	ix := entity.New(store, "r1", models.CopySeparate)

	srcID, err := ix.Resolve(context.Background(), models.Status("A"), "", "a.py", "c1", 100)
	require.NoError(t, err)

	copyID, err := ix.Resolve(context.Background(), models.Status("C100"), "a.py", "b.py", "c2", 200)
	require.NoError(t, err)
	require.NotEqual(t, srcID, copyID, "copy does not preserve identity by default")
}

func TestResolve_CopyInheritPolicy(t *testing.T) {
	store := newTestStore(t)
	ix := entity.New(store, "r1", models.CopyInherit)

	srcID, err := ix.Resolve(context.Background(), models.Status("A"), "", "a.py", "c1", 100)
	require.NoError(t, err)

	copyID, err := ix.Resolve(context.Background(), models.Status("C100"), "a.py", "b.py", "c2", 200)
	require.NoError(t, err)
	require.Equal(t, srcID, copyID, "copy_policy=inherit preserves identity")
}
