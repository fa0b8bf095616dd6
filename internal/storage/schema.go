package storage

// sqliteSchema creates the unified schema described in SPEC_FULL.md §4.8.
// JSON-shaped columns (metadata, properties, options, parameters, metrics)
// are stored as TEXT and marshaled/unmarshaled at the Go boundary — SQLite
// has no native JSON type, matching the teacher's own `risk_sketches`/
// `cache_metadata` tables which do the same for structured fields.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS repositories (
	repo_id     TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	source_path TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	entity_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id        TEXT NOT NULL,
	kind           TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	exists_at_head INTEGER NOT NULL DEFAULT 1,
	metadata       TEXT NOT NULL DEFAULT '{}',
	UNIQUE (repo_id, qualified_name),
	FOREIGN KEY (repo_id) REFERENCES repositories(repo_id)
);
CREATE INDEX IF NOT EXISTS idx_entities_repo ON entities(repo_id);

CREATE TABLE IF NOT EXISTS rename_lineage (
	entity_id    INTEGER NOT NULL,
	repo_id      TEXT NOT NULL,
	path         TEXT NOT NULL,
	start_commit TEXT NOT NULL,
	end_commit   TEXT,
	FOREIGN KEY (entity_id) REFERENCES entities(entity_id)
);
CREATE INDEX IF NOT EXISTS idx_lineage_entity ON rename_lineage(entity_id);
CREATE INDEX IF NOT EXISTS idx_lineage_path ON rename_lineage(repo_id, path);

CREATE TABLE IF NOT EXISTS relationships (
	source_type TEXT NOT NULL,
	rel_kind    TEXT NOT NULL,
	src         INTEGER NOT NULL,
	dst         INTEGER NOT NULL,
	weight      REAL NOT NULL,
	properties  TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (source_type, rel_kind, src, dst)
);
CREATE INDEX IF NOT EXISTS idx_rel_src ON relationships(src, weight DESC);
CREATE INDEX IF NOT EXISTS idx_rel_dst ON relationships(dst, weight DESC);

CREATE TABLE IF NOT EXISTS analysis_configurations (
	config_id  TEXT PRIMARY KEY,
	repo_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	active     INTEGER NOT NULL DEFAULT 0,
	options    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (repo_id) REFERENCES repositories(repo_id)
);
CREATE INDEX IF NOT EXISTS idx_config_repo ON analysis_configurations(repo_id);

CREATE TABLE IF NOT EXISTS analysis_tasks (
	task_id            TEXT PRIMARY KEY,
	repo_id            TEXT NOT NULL,
	analyzer_kind      TEXT NOT NULL,
	state              TEXT NOT NULL,
	config_id          TEXT NOT NULL,
	started_at         DATETIME,
	finished_at        DATETIME,
	entity_count       INTEGER NOT NULL DEFAULT 0,
	relationship_count INTEGER NOT NULL DEFAULT 0,
	metrics            TEXT NOT NULL DEFAULT '{}',
	error              TEXT,
	progress           TEXT NOT NULL DEFAULT '{}',
	FOREIGN KEY (repo_id) REFERENCES repositories(repo_id)
);
CREATE INDEX IF NOT EXISTS idx_tasks_repo ON analysis_tasks(repo_id);

CREATE TABLE IF NOT EXISTS cluster_runs (
	run_id        TEXT PRIMARY KEY,
	repo_id       TEXT NOT NULL,
	algorithm     TEXT NOT NULL,
	parameters    TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL,
	cluster_count INTEGER NOT NULL DEFAULT 0,
	metrics       TEXT NOT NULL DEFAULT '{}',
	FOREIGN KEY (repo_id) REFERENCES repositories(repo_id)
);
CREATE INDEX IF NOT EXISTS idx_clusterruns_repo ON cluster_runs(repo_id);

CREATE TABLE IF NOT EXISTS cluster_members (
	run_id     TEXT NOT NULL,
	cluster_id INTEGER NOT NULL,
	entity_id  INTEGER NOT NULL,
	PRIMARY KEY (run_id, entity_id),
	FOREIGN KEY (run_id) REFERENCES cluster_runs(run_id)
);
CREATE INDEX IF NOT EXISTS idx_clustermembers_run ON cluster_members(run_id, cluster_id);
`

// postgresSchema is the same logical schema expressed with Postgres types
// (BIGSERIAL, JSONB, TIMESTAMPTZ, BOOLEAN) in place of SQLite's TEXT/INTEGER
// approximations.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS repositories (
	repo_id     TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	source_path TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	entity_id      BIGSERIAL PRIMARY KEY,
	repo_id        TEXT NOT NULL REFERENCES repositories(repo_id),
	kind           TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	exists_at_head BOOLEAN NOT NULL DEFAULT TRUE,
	metadata       JSONB NOT NULL DEFAULT '{}',
	UNIQUE (repo_id, qualified_name)
);
CREATE INDEX IF NOT EXISTS idx_entities_repo ON entities(repo_id);

CREATE TABLE IF NOT EXISTS rename_lineage (
	entity_id    BIGINT NOT NULL REFERENCES entities(entity_id),
	repo_id      TEXT NOT NULL,
	path         TEXT NOT NULL,
	start_commit TEXT NOT NULL,
	end_commit   TEXT
);
CREATE INDEX IF NOT EXISTS idx_lineage_entity ON rename_lineage(entity_id);
CREATE INDEX IF NOT EXISTS idx_lineage_path ON rename_lineage(repo_id, path);

CREATE TABLE IF NOT EXISTS relationships (
	source_type TEXT NOT NULL,
	rel_kind    TEXT NOT NULL,
	src         BIGINT NOT NULL,
	dst         BIGINT NOT NULL,
	weight      DOUBLE PRECISION NOT NULL,
	properties  JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (source_type, rel_kind, src, dst)
);
CREATE INDEX IF NOT EXISTS idx_rel_src ON relationships(src, weight DESC);
CREATE INDEX IF NOT EXISTS idx_rel_dst ON relationships(dst, weight DESC);

CREATE TABLE IF NOT EXISTS analysis_configurations (
	config_id  TEXT PRIMARY KEY,
	repo_id    TEXT NOT NULL REFERENCES repositories(repo_id),
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT FALSE,
	options    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_config_repo ON analysis_configurations(repo_id);

CREATE TABLE IF NOT EXISTS analysis_tasks (
	task_id            TEXT PRIMARY KEY,
	repo_id            TEXT NOT NULL REFERENCES repositories(repo_id),
	analyzer_kind      TEXT NOT NULL,
	state              TEXT NOT NULL,
	config_id          TEXT NOT NULL,
	started_at         TIMESTAMPTZ,
	finished_at        TIMESTAMPTZ,
	entity_count       INTEGER NOT NULL DEFAULT 0,
	relationship_count INTEGER NOT NULL DEFAULT 0,
	metrics            JSONB NOT NULL DEFAULT '{}',
	error              TEXT,
	progress           JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_tasks_repo ON analysis_tasks(repo_id);

CREATE TABLE IF NOT EXISTS cluster_runs (
	run_id        TEXT PRIMARY KEY,
	repo_id       TEXT NOT NULL REFERENCES repositories(repo_id),
	algorithm     TEXT NOT NULL,
	parameters    JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL,
	cluster_count INTEGER NOT NULL DEFAULT 0,
	metrics       JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_clusterruns_repo ON cluster_runs(repo_id);

CREATE TABLE IF NOT EXISTS cluster_members (
	run_id     TEXT NOT NULL REFERENCES cluster_runs(run_id),
	cluster_id INTEGER NOT NULL,
	entity_id  BIGINT NOT NULL,
	PRIMARY KEY (run_id, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_clustermembers_run ON cluster_members(run_id, cluster_id);
`
