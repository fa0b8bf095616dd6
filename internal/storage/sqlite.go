package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/coderisk/coupler/internal/apperrors"
	"github.com/coderisk/coupler/internal/models"
)

// SQLiteStore is the default embedded relational store (spec.md §4.8).
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path and
// applies the schema.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.IOErrorf(err, "create database directory %s", dir)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, apperrors.IOErrorf(err, "connect to sqlite %s", path)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer; avoid pool contention

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	s := &SQLiteStore{db: db, logger: logger}
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return nil, apperrors.IOErrorf(err, "init sqlite schema")
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// --- Repositories ---

func (s *SQLiteStore) SaveRepository(ctx context.Context, repo *models.Repository) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO repositories (repo_id, name, source_path, created_at)
		VALUES (?, ?, ?, ?)`,
		repo.RepoID, repo.Name, repo.SourcePath, repo.CreatedAt)
	return apperrors.IOError(err, "save repository")
}

func (s *SQLiteStore) GetRepository(ctx context.Context, repoID string) (*models.Repository, error) {
	var r models.Repository
	err := s.db.GetContext(ctx, &r, `SELECT * FROM repositories WHERE repo_id = ?`, repoID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get repository")
	}
	return &r, nil
}

func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	var rs []*models.Repository
	err := s.db.SelectContext(ctx, &rs, `SELECT * FROM repositories ORDER BY created_at DESC`)
	return rs, apperrors.IOError(err, "list repositories")
}

func (s *SQLiteStore) DeleteRepository(ctx context.Context, repoID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE repo_id = ?`, repoID)
	return apperrors.IOError(err, "delete repository")
}

// --- Entities ---

func (s *SQLiteStore) ResolveOrCreateEntity(ctx context.Context, repoID, qualifiedName string, firstCommitTS int64) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`SELECT entity_id FROM entities WHERE repo_id = ? AND qualified_name = ?`,
		repoID, qualifiedName)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, apperrors.IOError(err, "resolve entity")
	}

	meta := models.EntityMetadata{FirstCommitTS: firstCommitTS}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (repo_id, kind, qualified_name, exists_at_head, metadata)
		VALUES (?, ?, ?, 1, ?)`,
		repoID, models.FileKind, qualifiedName, marshalJSON(meta))
	if err != nil {
		return 0, apperrors.IOError(err, "create entity")
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) RenameEntity(ctx context.Context, repoID, oldPath, newPath, commitOID string, commitTS int64) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`SELECT entity_id FROM entities WHERE repo_id = ? AND qualified_name = ?`,
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
		`UPDATE entities SET qualified_name = ? WHERE entity_id = ?`, newPath, id); err != nil {
		return 0, apperrors.IOError(err, "rename entity: update path")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE rename_lineage SET end_commit = ? WHERE entity_id = ? AND end_commit IS NULL`,
		commitOID, id); err != nil {
		return 0, apperrors.IOError(err, "rename entity: close prior lineage")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rename_lineage (entity_id, repo_id, path, start_commit, end_commit)
		VALUES (?, ?, ?, ?, NULL)`,
		id, repoID, newPath, commitOID); err != nil {
		return 0, apperrors.IOError(err, "rename entity: insert lineage")
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.IOError(err, "rename entity: commit")
	}
	return id, nil
}

type entityRow struct {
	EntityID      int64  `db:"entity_id"`
	RepoID        string `db:"repo_id"`
	Kind          string `db:"kind"`
	QualifiedName string `db:"qualified_name"`
	ExistsAtHead  bool   `db:"exists_at_head"`
	Metadata      string `db:"metadata"`
}

func (r entityRow) toModel() *models.Entity {
	e := &models.Entity{
		EntityID:      r.EntityID,
		RepoID:        r.RepoID,
		Kind:          models.EntityKind(r.Kind),
		QualifiedName: r.QualifiedName,
		ExistsAtHead:  r.ExistsAtHead,
	}
	_ = unmarshalJSON(r.Metadata, &e.Metadata)
	return e
}

func (s *SQLiteStore) GetEntityByPath(ctx context.Context, repoID, qualifiedName string) (*models.Entity, error) {
	var row entityRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM entities WHERE repo_id = ? AND qualified_name = ?`, repoID, qualifiedName)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get entity by path")
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, entityID int64) (*models.Entity, error) {
	var row entityRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM entities WHERE entity_id = ?`, entityID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get entity")
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context, repoID string) ([]*models.Entity, error) {
	var rows []entityRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM entities WHERE repo_id = ?`, repoID); err != nil {
		return nil, apperrors.IOError(err, "list entities")
	}
	out := make([]*models.Entity, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *SQLiteStore) UpdateEntityMetadata(ctx context.Context, entityID int64, meta models.EntityMetadata) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entities SET metadata = ? WHERE entity_id = ?`, marshalJSON(meta), entityID)
	return apperrors.IOError(err, "update entity metadata")
}

func (s *SQLiteStore) UpdateHeadStatus(ctx context.Context, repoID string, headPaths map[string]struct{}) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.IOError(err, "update head status: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET exists_at_head = 0 WHERE repo_id = ?`, repoID); err != nil {
		return apperrors.IOError(err, "update head status: clear")
	}
	stmt, err := tx.PrepareContext(ctx,
		`UPDATE entities SET exists_at_head = 1 WHERE repo_id = ? AND qualified_name = ?`)
	if err != nil {
		return apperrors.IOError(err, "update head status: prepare")
	}
	defer stmt.Close()
	for p := range headPaths {
		if _, err := stmt.ExecContext(ctx, repoID, p); err != nil {
			return apperrors.IOError(err, "update head status: set")
		}
	}
	return apperrors.IOError(tx.Commit(), "update head status: commit")
}

// --- Relationships ---

type relationshipRow struct {
	SourceType string  `db:"source_type"`
	RelKind    string  `db:"rel_kind"`
	Src        int64   `db:"src"`
	Dst        int64   `db:"dst"`
	Weight     float64 `db:"weight"`
	Properties string  `db:"properties"`
}

func (r relationshipRow) toModel() models.Relationship {
	rel := models.Relationship{
		SourceType: r.SourceType,
		RelKind:    models.RelKind(r.RelKind),
		Src:        r.Src,
		Dst:        r.Dst,
		Weight:     r.Weight,
	}
	_ = unmarshalJSON(r.Properties, &rel.Properties)
	return rel
}

func (s *SQLiteStore) ReplaceRelationships(ctx context.Context, repoID string, sourceType string, relKind models.RelKind, rels []models.Relationship) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.IOError(err, "replace relationships: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM relationships
		WHERE source_type = ? AND rel_kind = ?
		AND src IN (SELECT entity_id FROM entities WHERE repo_id = ?)`,
		sourceType, string(relKind), repoID); err != nil {
		return apperrors.IOError(err, "replace relationships: delete")
	}

	if len(rels) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO relationships (source_type, rel_kind, src, dst, weight, properties)
			VALUES (?, ?, ?, ?, ?, ?)`)
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

func (s *SQLiteStore) ListCoupling(ctx context.Context, entityID int64, topK int) ([]models.Relationship, error) {
	var rows []relationshipRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM relationships
		WHERE (src = ? OR dst = ?) AND rel_kind = ?
		ORDER BY weight DESC LIMIT ?`,
		entityID, entityID, string(models.CoChanged), topK)
	if err != nil {
		return nil, apperrors.IOError(err, "list coupling")
	}
	out := make([]models.Relationship, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *SQLiteStore) ListAllRelationships(ctx context.Context, repoID string) ([]models.Relationship, error) {
	var rows []relationshipRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT r.* FROM relationships r
		JOIN entities e ON e.entity_id = r.src
		WHERE e.repo_id = ?`, repoID)
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

type configRow struct {
	ConfigID  string    `db:"config_id"`
	RepoID    string    `db:"repo_id"`
	Name      string    `db:"name"`
	Version   int       `db:"version"`
	Active    bool      `db:"active"`
	Options   string    `db:"options"`
	CreatedAt time.Time `db:"created_at"`
}

func (r configRow) toModel() *models.AnalysisConfiguration {
	cfg := &models.AnalysisConfiguration{
		ConfigID:  r.ConfigID,
		RepoID:    r.RepoID,
		Name:      r.Name,
		Version:   r.Version,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
	_ = unmarshalJSON(r.Options, &cfg.Options)
	return cfg
}

func (s *SQLiteStore) SaveConfiguration(ctx context.Context, cfg *models.AnalysisConfiguration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO analysis_configurations
		(config_id, repo_id, name, version, active, options, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cfg.ConfigID, cfg.RepoID, cfg.Name, cfg.Version, cfg.Active,
		marshalJSON(cfg.Options), cfg.CreatedAt)
	return apperrors.IOError(err, "save configuration")
}

func (s *SQLiteStore) GetActiveConfiguration(ctx context.Context, repoID string) (*models.AnalysisConfiguration, error) {
	var row configRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM analysis_configurations WHERE repo_id = ? AND active = 1`, repoID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get active configuration")
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) ListConfigurations(ctx context.Context, repoID string) ([]*models.AnalysisConfiguration, error) {
	var rows []configRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM analysis_configurations WHERE repo_id = ? ORDER BY version DESC`, repoID)
	if err != nil {
		return nil, apperrors.IOError(err, "list configurations")
	}
	out := make([]*models.AnalysisConfiguration, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *SQLiteStore) SetActiveConfiguration(ctx context.Context, repoID, configID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.IOError(err, "set active configuration: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE analysis_configurations SET active = 0 WHERE repo_id = ?`, repoID); err != nil {
		return apperrors.IOError(err, "set active configuration: clear")
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE analysis_configurations SET active = 1 WHERE repo_id = ? AND config_id = ?`, repoID, configID)
	if err != nil {
		return apperrors.IOError(err, "set active configuration: set")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return apperrors.IOError(tx.Commit(), "set active configuration: commit")
}

// --- Analysis tasks ---

type taskRow struct {
	TaskID            string     `db:"task_id"`
	RepoID            string     `db:"repo_id"`
	AnalyzerKind      string     `db:"analyzer_kind"`
	State             string     `db:"state"`
	ConfigID          string     `db:"config_id"`
	StartedAt         *time.Time `db:"started_at"`
	FinishedAt        *time.Time `db:"finished_at"`
	EntityCount       int        `db:"entity_count"`
	RelationshipCount int        `db:"relationship_count"`
	Metrics           string     `db:"metrics"`
	Error             string     `db:"error"`
	Progress          string     `db:"progress"`
}

func (r taskRow) toModel() *models.AnalysisTask {
	t := &models.AnalysisTask{
		TaskID:            r.TaskID,
		RepoID:            r.RepoID,
		AnalyzerKind:      r.AnalyzerKind,
		State:             models.TaskState(r.State),
		ConfigID:          r.ConfigID,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		EntityCount:       r.EntityCount,
		RelationshipCount: r.RelationshipCount,
		Error:             r.Error,
	}
	_ = unmarshalJSON(r.Metrics, &t.Metrics)
	_ = unmarshalJSON(r.Progress, &t.Progress)
	return t
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task *models.AnalysisTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_tasks
		(task_id, repo_id, analyzer_kind, state, config_id, started_at, finished_at,
		 entity_count, relationship_count, metrics, error, progress)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskID, task.RepoID, task.AnalyzerKind, string(task.State), task.ConfigID,
		task.StartedAt, task.FinishedAt, task.EntityCount, task.RelationshipCount,
		marshalJSON(task.Metrics), task.Error, marshalJSON(task.Progress))
	return apperrors.IOError(err, "create task")
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, task *models.AnalysisTask) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE analysis_tasks SET state = ?, started_at = ?, finished_at = ?,
			entity_count = ?, relationship_count = ?, metrics = ?, error = ?, progress = ?
		WHERE task_id = ?`,
		string(task.State), task.StartedAt, task.FinishedAt, task.EntityCount,
		task.RelationshipCount, marshalJSON(task.Metrics), task.Error,
		marshalJSON(task.Progress), task.TaskID)
	return apperrors.IOError(err, "update task")
}

func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*models.AnalysisTask, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM analysis_tasks WHERE task_id = ?`, taskID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get task")
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, repoID string) ([]*models.AnalysisTask, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM analysis_tasks WHERE repo_id = ? ORDER BY started_at DESC`, repoID)
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

type clusterRunRow struct {
	RunID        string    `db:"run_id"`
	RepoID       string    `db:"repo_id"`
	Algorithm    string    `db:"algorithm"`
	Parameters   string    `db:"parameters"`
	CreatedAt    time.Time `db:"created_at"`
	ClusterCount int       `db:"cluster_count"`
	Metrics      string    `db:"metrics"`
}

func (r clusterRunRow) toModel() *models.ClusterRun {
	run := &models.ClusterRun{
		RunID:        r.RunID,
		RepoID:       r.RepoID,
		Algorithm:    r.Algorithm,
		CreatedAt:    r.CreatedAt,
		ClusterCount: r.ClusterCount,
	}
	_ = unmarshalJSON(r.Parameters, &run.Parameters)
	_ = unmarshalJSON(r.Metrics, &run.Metrics)
	return run
}

func (s *SQLiteStore) SaveClusterRun(ctx context.Context, run *models.ClusterRun, members []models.ClusterMember) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.IOError(err, "save cluster run: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cluster_runs (run_id, repo_id, algorithm, parameters, created_at, cluster_count, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.RepoID, run.Algorithm, marshalJSON(run.Parameters),
		run.CreatedAt, run.ClusterCount, marshalJSON(run.Metrics)); err != nil {
		return apperrors.IOError(err, "save cluster run: insert run")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cluster_members (run_id, cluster_id, entity_id) VALUES (?, ?, ?)`)
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

func (s *SQLiteStore) GetClusterRun(ctx context.Context, runID string) (*models.ClusterRun, error) {
	var row clusterRunRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM cluster_runs WHERE run_id = ?`, runID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.IOError(err, "get cluster run")
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) ListClusterRuns(ctx context.Context, repoID string) ([]*models.ClusterRun, error) {
	var rows []clusterRunRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM cluster_runs WHERE repo_id = ? ORDER BY created_at DESC`, repoID)
	if err != nil {
		return nil, apperrors.IOError(err, "list cluster runs")
	}
	out := make([]*models.ClusterRun, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *SQLiteStore) GetClusterMembers(ctx context.Context, runID string) ([]models.ClusterMember, error) {
	var members []models.ClusterMember
	err := s.db.SelectContext(ctx, &members,
		`SELECT run_id, cluster_id, entity_id FROM cluster_members WHERE run_id = ?`, runID)
	return members, apperrors.IOError(err, "get cluster members")
}
