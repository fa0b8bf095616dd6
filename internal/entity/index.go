// Package entity implements the entity index (C4): the single owner of the
// path-to-entity_id mapping and rename lineage, assigning stable integer ids
// to files as they are observed in history. It holds no state of its own —
// internal/storage's entities/rename_lineage tables are the sole backing
// store, guarded by the store's single-writer semantics — matching the
// teacher's internal/ingestion/file_identity_mapper.go pattern of a thin
// resolver sitting directly on top of its persistence layer rather than
// keeping a shadow in-memory map.
package entity

import (
	"context"

	"github.com/coderisk/coupler/internal/apperrors"
	"github.com/coderisk/coupler/internal/models"
	"github.com/coderisk/coupler/internal/storage"
)

// Index resolves paths to stable entity ids for one repository, handling
// rename identity preservation (R###) and copy identity separation (C###)
// per spec.md §4.4.
type Index struct {
	store  storage.Store
	repoID string
	policy models.CopyPolicy
}

// New returns an Index backed by store for the given repository.
func New(store storage.Store, repoID string, policy models.CopyPolicy) *Index {
	if policy == "" {
		policy = models.CopySeparate
	}
	return &Index{store: store, repoID: repoID, policy: policy}
}

// Resolve assigns an entity id to a single change record, applying rename
// and copy semantics. For a plain add/modify/delete/etc. status it is
// equivalent to ResolveOrCreate(path). For a rename (R###) it preserves the
// old path's entity id and records lineage. For a copy (C###) it always
// creates a fresh entity for the new path, per spec.md §4.4's "copies do not
// inherit identity" rule — unless the copy_policy knob (SPEC_FULL.md §9(a))
// is set to "inherit".
func (ix *Index) Resolve(ctx context.Context, status models.Status, oldPath, newPath string, commitOID string, commitTS int64) (int64, error) {
	if len(status) == 0 {
		return 0, apperrors.InvariantErrorf("entity: empty status for path %q", newPath)
	}

	switch status[0] {
	case 'R':
		return ix.store.RenameEntity(ctx, ix.repoID, oldPath, newPath, commitOID, commitTS)
	case 'C':
		if ix.policy == models.CopyInherit {
			return ix.store.RenameEntity(ctx, ix.repoID, oldPath, newPath, commitOID, commitTS)
		}
		return ix.store.ResolveOrCreateEntity(ctx, ix.repoID, newPath, commitTS)
	default:
		return ix.store.ResolveOrCreateEntity(ctx, ix.repoID, newPath, commitTS)
	}
}

// UpdateHeadStatus marks every entity whose qualified_name is in headPaths
// as existing at HEAD, and every other entity for this repository as not,
// in a single transaction (spec.md §4.4).
func (ix *Index) UpdateHeadStatus(ctx context.Context, headPaths map[string]struct{}) error {
	return ix.store.UpdateHeadStatus(ctx, ix.repoID, headPaths)
}

// Get returns the current entity for a path, or storage.ErrNotFound.
func (ix *Index) Get(ctx context.Context, path string) (*models.Entity, error) {
	return ix.store.GetEntityByPath(ctx, ix.repoID, path)
}
