// Package storage implements the relational store (C8): the unified
// entity/relationship schema plus the ambient repository/task/configuration/
// cluster-run tables, backed by either SQLite (default) or Postgres.
package storage

import (
	"context"
	"errors"

	"github.com/coderisk/coupler/internal/models"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("not found")

// Store is the full relational surface the rest of the pipeline depends on.
// Every method is safe to call concurrently; write methods serialize through
// the underlying database's own locking (SQLite: single-writer; Postgres:
// row-level).
type Store interface {
	Close() error

	// Repositories
	SaveRepository(ctx context.Context, repo *models.Repository) error
	GetRepository(ctx context.Context, repoID string) (*models.Repository, error)
	ListRepositories(ctx context.Context) ([]*models.Repository, error)
	DeleteRepository(ctx context.Context, repoID string) error

	// Entities (C4's sole backing store)
	ResolveOrCreateEntity(ctx context.Context, repoID, qualifiedName string, firstCommitTS int64) (int64, error)
	RenameEntity(ctx context.Context, repoID, oldPath, newPath, commitOID string, commitTS int64) (int64, error)
	GetEntityByPath(ctx context.Context, repoID, qualifiedName string) (*models.Entity, error)
	GetEntity(ctx context.Context, entityID int64) (*models.Entity, error)
	ListEntities(ctx context.Context, repoID string) ([]*models.Entity, error)
	UpdateEntityMetadata(ctx context.Context, entityID int64, meta models.EntityMetadata) error
	UpdateHeadStatus(ctx context.Context, repoID string, headPaths map[string]struct{}) error

	// Relationships (C7's output). ReplaceRelationships performs the
	// atomic-swap "replace_relationships" operation spec.md §4.8 mandates:
	// every existing (source_type, rel_kind) row for repoID's entities is
	// deleted and rels inserted, in one transaction, even when rels is
	// empty (a run whose edge set shrank to nothing must still clear the
	// stale rows from the previous run).
	ReplaceRelationships(ctx context.Context, repoID string, sourceType string, relKind models.RelKind, rels []models.Relationship) error
	ListCoupling(ctx context.Context, entityID int64, topK int) ([]models.Relationship, error)
	ListAllRelationships(ctx context.Context, repoID string) ([]models.Relationship, error)

	// Analysis configurations (C10/§6.2)
	SaveConfiguration(ctx context.Context, cfg *models.AnalysisConfiguration) error
	GetActiveConfiguration(ctx context.Context, repoID string) (*models.AnalysisConfiguration, error)
	ListConfigurations(ctx context.Context, repoID string) ([]*models.AnalysisConfiguration, error)
	SetActiveConfiguration(ctx context.Context, repoID, configID string) error

	// Analysis tasks (C10)
	CreateTask(ctx context.Context, task *models.AnalysisTask) error
	UpdateTask(ctx context.Context, task *models.AnalysisTask) error
	GetTask(ctx context.Context, taskID string) (*models.AnalysisTask, error)
	ListTasks(ctx context.Context, repoID string) ([]*models.AnalysisTask, error)

	// Cluster runs (C9)
	SaveClusterRun(ctx context.Context, run *models.ClusterRun, members []models.ClusterMember) error
	GetClusterRun(ctx context.Context, runID string) (*models.ClusterRun, error)
	ListClusterRuns(ctx context.Context, repoID string) ([]*models.ClusterRun, error)
	GetClusterMembers(ctx context.Context, runID string) ([]models.ClusterMember, error)
}
