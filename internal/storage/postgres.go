package storage

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/coderisk/coupler/internal/apperrors"
	"github.com/coderisk/coupler/internal/models"
)

// PostgresStore is the shared-deployment relational store (spec.md §4.8,
// "backed by Postgres"), used when multiple analyzer workers or a web
// frontend need to see the same repositories concurrently. It implements
// the same Store surface as SQLiteStore with `$N` placeholders and
// JSONB-native columns in place of TEXT.
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPostgresStore opens a connection pool against dsn (a libpq connection
// string) via the pgx stdlib driver and applies the schema.
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, apperrors.IOErrorf(err, "connect to postgres")
	}
	db.Mapper = reflectx.NewMapperFunc("db", func(s string) string { return s })
	db.SetMaxOpenConns(20)

	s := &PostgresStore{db: db, logger: logger}
	if _, err := s.db.Exec(postgresSchema); err != nil {
		return nil, apperrors.IOErrorf(err, "init postgres schema")
	}
	return s, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// --- Repositories ---

func (s *PostgresStore) SaveRepository(ctx context.Context, repo *models.Repository) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (repo_id, name, source_path, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (repo_id) DO UPDATE SET name = excluded.name, source_path = excluded.source_path`,
		repo.RepoID, repo.Name, repo.SourcePath, repo.CreatedAt)
	return apperrors.IOError(err, "save repository")
}

func (s *PostgresStore) GetRepository(ctx context.Context, repoID string) (*models.Repository, error) {
	var r models.Repository
	err := s.db.GetContext(ctx, &r, `SELECT * FROM repositories WHERE repo_id = $1`, repoID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get repository")
	}
	return &r, nil
}

func (s *PostgresStore) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	var rs []*models.Repository
	err := s.db.SelectContext(ctx, &rs, `SELECT * FROM repositories ORDER BY created_at DESC`)
	return rs, apperrors.IOError(err, "list repositories")
}

func (s *PostgresStore) DeleteRepository(ctx context.Context, repoID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE repo_id = $1`, repoID)
	return apperrors.IOError(err, "delete repository")
}

// --- Entities ---

func (s *PostgresStore) ResolveOrCreateEntity(ctx context.Context, repoID, qualifiedName string, firstCommitTS int64) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`SELECT entity_id FROM entities WHERE repo_id = $1 AND qualified_name = $2`,
		repoID, qualifiedName)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, apperrors.IOError(err, "resolve entity")
	}

	meta := models.EntityMetadata{FirstCommitTS: firstCommitTS}
	err = s.db.GetContext(ctx, &id, `
		INSERT INTO entities (repo_id, kind, qualified_name, exists_at_head, metadata)
		VALUES ($1, $2, $3, TRUE, $4)
		RETURNING entity_id`,
		repoID, models.FileKind, qualifiedName, marshalJSON(meta))
	if err != nil {
		return 0, apperrors.IOError(err, "create entity")
	}
	return id, nil
}

func (s *PostgresStore) RenameEntity(ctx context.Context, repoID, oldPath, newPath, commitOID string, commitTS int64) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`SELECT entity_id FROM entities WHERE repo_id = $1 AND qualified_name = $2`,
		repoID, oldPath)
	if err == sql.ErrNoRows {
		return s.ResolveOrCreateEntity(ctx, repoID, newPath, commitTS)
	}
	if err != nil {
		return 0, apperrors.IOError(err, "rename entity: lookup old path")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperrors.IOError(err, "rename entity: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET qualified_name = $1 WHERE entity_id = $2`, newPath, id); err != nil {
		return 0, apperrors.IOError(err, "rename entity: update path")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE rename_lineage SET end_commit = $1 WHERE entity_id = $2 AND end_commit IS NULL`,
		commitOID, id); err != nil {
		return 0, apperrors.IOError(err, "rename entity: close prior lineage")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rename_lineage (entity_id, repo_id, path, start_commit, end_commit)
		VALUES ($1, $2, $3, $4, NULL)`,
		id, repoID, newPath, commitOID); err != nil {
		return 0, apperrors.IOError(err, "rename entity: insert lineage")
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.IOError(err, "rename entity: commit")
	}
	return id, nil
}

func (s *PostgresStore) GetEntityByPath(ctx context.Context, repoID, qualifiedName string) (*models.Entity, error) {
	var row entityRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM entities WHERE repo_id = $1 AND qualified_name = $2`, repoID, qualifiedName)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get entity by path")
	}
	return row.toModel(), nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, entityID int64) (*models.Entity, error) {
	var row entityRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM entities WHERE entity_id = $1`, entityID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get entity")
	}
	return row.toModel(), nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, repoID string) ([]*models.Entity, error) {
	var rows []entityRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM entities WHERE repo_id = $1`, repoID); err != nil {
		return nil, apperrors.IOError(err, "list entities")
	}
	out := make([]*models.Entity, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *PostgresStore) UpdateEntityMetadata(ctx context.Context, entityID int64, meta models.EntityMetadata) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entities SET metadata = $1 WHERE entity_id = $2`, marshalJSON(meta), entityID)
	return apperrors.IOError(err, "update entity metadata")
}

// UpdateHeadStatus clears and resets exists_at_head using pq.Array rather
// than the prepared-statement-per-path loop SQLite needs — Postgres can
// match an array parameter directly in the UPDATE's WHERE clause, the
// pattern the teacher's staging.go uses for its own bulk membership updates
// (`WHERE commit_id = ANY($1)`).
func (s *PostgresStore) UpdateHeadStatus(ctx context.Context, repoID string, headPaths map[string]struct{}) error {
	paths := make([]string, 0, len(headPaths))
	for p := range headPaths {
		paths = append(paths, p)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.IOError(err, "update head status: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET exists_at_head = FALSE WHERE repo_id = $1`, repoID); err != nil {
		return apperrors.IOError(err, "update head status: clear")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE entities SET exists_at_head = TRUE
		WHERE repo_id = $1 AND qualified_name = ANY($2)`,
		repoID, pq.Array(paths)); err != nil {
		return apperrors.IOError(err, "update head status: set")
	}
	return apperrors.IOError(tx.Commit(), "update head status: commit")
}

// --- Relationships ---

func (s *PostgresStore) ReplaceRelationships(ctx context.Context, repoID string, sourceType string, relKind models.RelKind, rels []models.Relationship) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.IOError(err, "replace relationships: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM relationships
		WHERE source_type = $1 AND rel_kind = $2
		AND src IN (SELECT entity_id FROM entities WHERE repo_id = $3)`,
		sourceType, string(relKind), repoID); err != nil {
		return apperrors.IOError(err, "replace relationships: delete")
	}

	if len(rels) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO relationships (source_type, rel_kind, src, dst, weight, properties)
			VALUES ($1, $2, $3, $4, $5, $6)`)
		if err != nil {
			return apperrors.IOError(err, "replace relationships: prepare")
		}
		defer stmt.Close()

		for _, rel := range rels {
			if _, err := stmt.ExecContext(ctx, rel.SourceType, string(rel.RelKind), rel.Src, rel.Dst,
				rel.Weight, marshalJSON(rel.Properties)); err != nil {
				return apperrors.IOError(err, "replace relationships: exec")
			}
		}
	}
	return apperrors.IOError(tx.Commit(), "replace relationships: commit")
}

func (s *PostgresStore) ListCoupling(ctx context.Context, entityID int64, topK int) ([]models.Relationship, error) {
	var rows []relationshipRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM relationships
		WHERE (src = $1 OR dst = $1) AND rel_kind = $2
		ORDER BY weight DESC LIMIT $3`,
		entityID, string(models.CoChanged), topK)
	if err != nil {
		return nil, apperrors.IOError(err, "list coupling")
	}
	out := make([]models.Relationship, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// ListAllRelationships resolves every entity id belonging to repoID via
// pq.Array rather than a join, so the same relationships table serves
// multiple repositories without a redundant repo_id column.
func (s *PostgresStore) ListAllRelationships(ctx context.Context, repoID string) ([]models.Relationship, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT entity_id FROM entities WHERE repo_id = $1`, repoID); err != nil {
		return nil, apperrors.IOError(err, "list all relationships: resolve entities")
	}
	var rows []relationshipRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM relationships WHERE src = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, apperrors.IOError(err, "list all relationships")
	}
	out := make([]models.Relationship, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// --- Analysis configurations ---

func (s *PostgresStore) SaveConfiguration(ctx context.Context, cfg *models.AnalysisConfiguration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_configurations
		(config_id, repo_id, name, version, active, options, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (config_id) DO UPDATE SET
			name = excluded.name, version = excluded.version,
			active = excluded.active, options = excluded.options`,
		cfg.ConfigID, cfg.RepoID, cfg.Name, cfg.Version, cfg.Active,
		marshalJSON(cfg.Options), cfg.CreatedAt)
	return apperrors.IOError(err, "save configuration")
}

func (s *PostgresStore) GetActiveConfiguration(ctx context.Context, repoID string) (*models.AnalysisConfiguration, error) {
	var row configRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM analysis_configurations WHERE repo_id = $1 AND active = TRUE`, repoID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get active configuration")
	}
	return row.toModel(), nil
}

func (s *PostgresStore) ListConfigurations(ctx context.Context, repoID string) ([]*models.AnalysisConfiguration, error) {
	var rows []configRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM analysis_configurations WHERE repo_id = $1 ORDER BY version DESC`, repoID)
	if err != nil {
		return nil, apperrors.IOError(err, "list configurations")
	}
	out := make([]*models.AnalysisConfiguration, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *PostgresStore) SetActiveConfiguration(ctx context.Context, repoID, configID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.IOError(err, "set active configuration: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE analysis_configurations SET active = FALSE WHERE repo_id = $1`, repoID); err != nil {
		return apperrors.IOError(err, "set active configuration: clear")
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE analysis_configurations SET active = TRUE WHERE repo_id = $1 AND config_id = $2`, repoID, configID)
	if err != nil {
		return apperrors.IOError(err, "set active configuration: set")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return apperrors.IOError(tx.Commit(), "set active configuration: commit")
}

// --- Analysis tasks ---

func (s *PostgresStore) CreateTask(ctx context.Context, task *models.AnalysisTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_tasks
		(task_id, repo_id, analyzer_kind, state, config_id, started_at, finished_at,
		 entity_count, relationship_count, metrics, error, progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		task.TaskID, task.RepoID, task.AnalyzerKind, string(task.State), task.ConfigID,
		task.StartedAt, task.FinishedAt, task.EntityCount, task.RelationshipCount,
		marshalJSON(task.Metrics), task.Error, marshalJSON(task.Progress))
	return apperrors.IOError(err, "create task")
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task *models.AnalysisTask) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE analysis_tasks SET state = $1, started_at = $2, finished_at = $3,
			entity_count = $4, relationship_count = $5, metrics = $6, error = $7, progress = $8
		WHERE task_id = $9`,
		string(task.State), task.StartedAt, task.FinishedAt, task.EntityCount,
		task.RelationshipCount, marshalJSON(task.Metrics), task.Error,
		marshalJSON(task.Progress), task.TaskID)
	return apperrors.IOError(err, "update task")
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (*models.AnalysisTask, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM analysis_tasks WHERE task_id = $1`, taskID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get task")
	}
	return row.toModel(), nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, repoID string) ([]*models.AnalysisTask, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM analysis_tasks WHERE repo_id = $1 ORDER BY started_at DESC`, repoID)
	if err != nil {
		return nil, apperrors.IOError(err, "list tasks")
	}
	out := make([]*models.AnalysisTask, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// --- Cluster runs ---

func (s *PostgresStore) SaveClusterRun(ctx context.Context, run *models.ClusterRun, members []models.ClusterMember) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.IOError(err, "save cluster run: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cluster_runs (run_id, repo_id, algorithm, parameters, created_at, cluster_count, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.RunID, run.RepoID, run.Algorithm, marshalJSON(run.Parameters),
		run.CreatedAt, run.ClusterCount, marshalJSON(run.Metrics)); err != nil {
		return apperrors.IOError(err, "save cluster run: insert run")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cluster_members (run_id, cluster_id, entity_id) VALUES ($1, $2, $3)`)
	if err != nil {
		return apperrors.IOError(err, "save cluster run: prepare members")
	}
	defer stmt.Close()
	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, m.RunID, m.ClusterID, m.EntityID); err != nil {
			return apperrors.IOError(err, "save cluster run: insert member")
		}
	}
	return apperrors.IOError(tx.Commit(), "save cluster run: commit")
}

func (s *PostgresStore) GetClusterRun(ctx context.Context, runID string) (*models.ClusterRun, error) {
	var row clusterRunRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM cluster_runs WHERE run_id = $1`, runID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get cluster run")
	}
	return row.toModel(), nil
}

func (s *PostgresStore) ListClusterRuns(ctx context.Context, repoID string) ([]*models.ClusterRun, error) {
	var rows []clusterRunRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM cluster_runs WHERE repo_id = $1 ORDER BY created_at DESC`, repoID)
	if err != nil {
		return nil, apperrors.IOError(err, "list cluster runs")
	}
	out := make([]*models.ClusterRun, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *PostgresStore) GetClusterMembers(ctx context.Context, runID string) ([]models.ClusterMember, error) {
	var members []models.ClusterMember
	err := s.db.SelectContext(ctx, &members,
		`SELECT run_id, cluster_id, entity_id FROM cluster_members WHERE run_id = $1`, runID)
	return members, apperrors.IOError(err, "get cluster members")
}
