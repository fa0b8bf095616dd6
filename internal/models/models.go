// Package models holds the unified entity/relationship schema and the
// columnar commit/change record shapes shared across the mining pipeline.
package models

import "time"

// EntityKind enumerates the kinds of entity the system recognizes. Only
// "file" is produced today; the type exists so dependency/semantic
// analyzers (out of scope here) can add their own kinds later without a
// schema migration.
type EntityKind string

// FileKind is the only entity kind this implementation produces.
const FileKind EntityKind = "file"

// Entity identifies something in the code universe — at present, a file.
type Entity struct {
	EntityID      int64          `db:"entity_id" json:"entity_id"`
	RepoID        string         `db:"repo_id" json:"repo_id"`
	Kind          EntityKind     `db:"kind" json:"kind"`
	QualifiedName string         `db:"qualified_name" json:"qualified_name"`
	ExistsAtHead  bool           `db:"exists_at_head" json:"exists_at_head"`
	Metadata      EntityMetadata `db:"metadata" json:"metadata"`
}

// EntityMetadata is the semi-structured document attached to every entity.
// It is stored as JSON in the relational store (see internal/storage) and
// updated incrementally by the extractor.
type EntityMetadata struct {
	TotalCommits      int   `json:"total_commits"`
	AuthorsCount      int   `json:"authors_count"`
	TotalLinesAdded   int64 `json:"total_lines_added"`
	TotalLinesDeleted int64 `json:"total_lines_deleted"`
	FirstCommitTS     int64 `json:"first_commit_ts"`
	LastCommitTS      int64 `json:"last_commit_ts"`
}

// RelKind enumerates relationship kinds. CoChanged is the only kind this
// implementation emits.
type RelKind string

// CoChanged is the relationship kind produced by the edge builder (C7).
const CoChanged RelKind = "CO_CHANGED"

// GitSource is the source_type tag attached to every relationship this
// system produces, distinguishing it from relationships a different
// collaborator (e.g. a semantic analyzer) might write into the same store.
const GitSource = "git"

// Relationship is a directed or symmetric link between two entities. For
// CO_CHANGED, src < dst always (canonical ordering); asymmetric metrics
// carry both directions inside Properties.
type Relationship struct {
	SourceType string            `db:"source_type" json:"source_type"`
	RelKind    RelKind           `db:"rel_kind" json:"rel_kind"`
	Src        int64             `db:"src" json:"src"`
	Dst        int64             `db:"dst" json:"dst"`
	Weight     float64           `db:"weight" json:"weight"`
	Properties RelationshipProps `db:"properties" json:"properties"`
}

// RelationshipProps holds the coupling metrics for a CO_CHANGED edge.
type RelationshipProps struct {
	PairCount       float64 `json:"pair_count"`
	Jaccard         float64 `json:"jaccard"`
	JaccardWeighted float64 `json:"jaccard_weighted"`
	PDstGivenSrc    float64 `json:"p_dst_given_src"`
	PSrcGivenDst    float64 `json:"p_src_given_dst"`
	SrcCount        int64   `json:"src_count"`
	DstCount        int64   `json:"dst_count"`
}

// Commit is one row of the columnar commit table.
type Commit struct {
	CommitOID      string `json:"commit_oid"`
	RepoID         string `json:"repo_id"`
	AuthorName     string `json:"author_name"`
	AuthorEmail    string `json:"author_email"`
	AuthoredTS     int64  `json:"authored_ts"`
	CommitterTS    int64  `json:"committer_ts"`
	IsMerge        bool   `json:"is_merge"`
	ParentCount    int    `json:"parent_count"`
	MessageSubject string `json:"message_subject"`
}

// Status is a git name-status code, validated by internal/revlog.
type Status string

// Change is one row of the columnar change table: a single file touched by
// a single commit.
type Change struct {
	CommitOID    string `json:"commit_oid"`
	RepoID       string `json:"repo_id"`
	EntityID     int64  `json:"entity_id"`
	PathAtCommit string `json:"path_at_commit"`
	Status       Status `json:"status"`
	OldPath      string `json:"old_path,omitempty"`
	CommitTS     int64  `json:"commit_ts"`
	LinesAdded   int64  `json:"lines_added"`
	LinesDeleted int64  `json:"lines_deleted"`
}

// RenameLineage is one entry of a file's rename history, enabling
// point-in-time path resolution.
type RenameLineage struct {
	EntityID    int64  `db:"entity_id" json:"entity_id"`
	RepoID      string `db:"repo_id" json:"repo_id"`
	Path        string `db:"path" json:"path"`
	StartCommit string `db:"start_commit" json:"start_commit"`
	EndCommit   string `db:"end_commit" json:"end_commit,omitempty"`
}

// TaskState is the lifecycle state of an AnalysisTask.
type TaskState string

// Task lifecycle states, per the C10 state machine.
const (
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
	TaskCanceled  TaskState = "CANCELED"
)

// Stage names reported in TaskProgress.Stage during extraction.
const (
	StageMirroring     = "mirroring"
	StageExtracting    = "extracting"
	StageBuildingEdges = "building_edges"
	StageFinalizing    = "finalizing"
)

// TaskProgress is the mutable progress document embedded in a Task.
type TaskProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// TaskMetrics accumulates counters surfaced in a completed or failed task.
type TaskMetrics struct {
	ValidationIssues int               `json:"validation_issues"`
	IssueSample      []ValidationIssue `json:"issue_sample,omitempty"`
}

// AnalysisTask tracks one run of the mining pipeline for one repository.
type AnalysisTask struct {
	TaskID            string       `db:"task_id" json:"task_id"`
	RepoID            string       `db:"repo_id" json:"repo_id"`
	AnalyzerKind      string       `db:"analyzer_kind" json:"analyzer_kind"`
	State             TaskState    `db:"state" json:"state"`
	ConfigID          string       `db:"config_id" json:"config_id"`
	StartedAt         *time.Time   `db:"started_at" json:"started_at,omitempty"`
	FinishedAt        *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
	EntityCount       int          `db:"entity_count" json:"entity_count"`
	RelationshipCount int          `db:"relationship_count" json:"relationship_count"`
	Metrics           TaskMetrics  `db:"metrics" json:"metrics"`
	Error             string       `db:"error" json:"error,omitempty"`
	Progress          TaskProgress `db:"progress" json:"progress"`
}

// AnalysisConfiguration is a named, versioned option document. Exactly one
// configuration per repository is active at a time (see internal/storage's
// SetActiveConfiguration).
type AnalysisConfiguration struct {
	ConfigID  string          `db:"config_id" json:"config_id"`
	RepoID    string          `db:"repo_id" json:"repo_id"`
	Name      string          `db:"name" json:"name"`
	Version   int             `db:"version" json:"version"`
	Active    bool            `db:"active" json:"active"`
	Options   AnalysisOptions `db:"options" json:"options"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// ClusterRun records one execution of a clustering algorithm.
type ClusterRun struct {
	RunID        string                 `db:"run_id" json:"run_id"`
	RepoID       string                 `db:"repo_id" json:"repo_id"`
	Algorithm    string                 `db:"algorithm" json:"algorithm"`
	Parameters   map[string]interface{} `db:"parameters" json:"parameters"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
	ClusterCount int                    `db:"cluster_count" json:"cluster_count"`
	Metrics      map[string]interface{} `db:"metrics" json:"metrics,omitempty"`
}

// ClusterMember assigns one entity to one cluster within a run. ClusterID 0
// is reserved for the noise set on algorithms that support one (DBSCAN).
type ClusterMember struct {
	RunID     string `db:"run_id" json:"run_id"`
	ClusterID int    `db:"cluster_id" json:"cluster_id"`
	EntityID  int64  `db:"entity_id" json:"entity_id"`
}

// ValidationSeverity classifies a ValidationIssue.
type ValidationSeverity string

// Severities a path/status validator can report.
const (
	SeverityRejected ValidationSeverity = "rejected"
	SeverityAccepted ValidationSeverity = "accepted_permissive"
)

// ValidationIssue records one malformed token encountered while parsing the
// revision log.
type ValidationIssue struct {
	CommitOID string             `db:"commit_oid" json:"commit_oid"`
	Kind      string             `db:"kind" json:"kind"`
	Severity  ValidationSeverity `db:"severity" json:"severity"`
	Token     string             `db:"token" json:"token"`
	Expected  string             `db:"expected" json:"expected,omitempty"`
	Message   string             `db:"message" json:"message"`
}

// ChangesetMode selects how changes are grouped into transactions (C6).
type ChangesetMode string

// Supported changeset grouping policies.
const (
	ByCommit     ChangesetMode = "by_commit"
	ByAuthorTime ChangesetMode = "by_author_time"
	ByTicketID   ChangesetMode = "by_ticket_id"
)

// ValidationMode controls how the path/status validator (C1) reacts to a
// malformed token.
type ValidationMode string

// Validation modes, per spec §4.1.
const (
	ValidationStrict     ValidationMode = "strict"
	ValidationSoft       ValidationMode = "soft"
	ValidationPermissive ValidationMode = "permissive"
)

// CopyPolicy controls whether a copy (status C###) is treated as
// identity-preserving. See SPEC_FULL.md §9(a).
type CopyPolicy string

// Copy policies.
const (
	CopySeparate CopyPolicy = "separate"
	CopyInherit  CopyPolicy = "inherit"
)

// AnalysisOptions is the single, strongly typed configuration record for an
// analysis run — the enumerated option set in spec §6.2. Unknown keys in
// the wire format are rejected by internal/config's decoder, not silently
// ignored.
type AnalysisOptions struct {
	MinRevisions              int            `json:"min_revisions" yaml:"min_revisions"`
	MaxChangesetSize          int            `json:"max_changeset_size" yaml:"max_changeset_size"`
	ChangesetMode             ChangesetMode  `json:"changeset_mode" yaml:"changeset_mode"`
	AuthorTimeWindowHours     int            `json:"author_time_window_hours" yaml:"author_time_window_hours"`
	TicketIDPattern           string         `json:"ticket_id_pattern" yaml:"ticket_id_pattern"`
	MaxLogicalChangesetSize   int            `json:"max_logical_changeset_size" yaml:"max_logical_changeset_size"`
	MinCooccurrence           int            `json:"min_cooccurrence" yaml:"min_cooccurrence"`
	TopKEdgesPerFile          int            `json:"topk_edges_per_file" yaml:"topk_edges_per_file"`
	ComponentDepth            int            `json:"component_depth" yaml:"component_depth"`
	MinComponentCooccurrence  int            `json:"min_component_cooccurrence" yaml:"min_component_cooccurrence"`
	WindowDays                *int           `json:"window_days,omitempty" yaml:"window_days,omitempty"`
	DecayHalfLifeDays         *int           `json:"decay_half_life_days,omitempty" yaml:"decay_half_life_days,omitempty"`
	IncludePaths              []string       `json:"include_paths" yaml:"include_paths"`
	ExcludePaths              []string       `json:"exclude_paths" yaml:"exclude_paths"`
	IncludeExtensions         []string       `json:"include_extensions" yaml:"include_extensions"`
	ExcludeExtensions         []string       `json:"exclude_extensions" yaml:"exclude_extensions"`
	ValidationMode            ValidationMode `json:"validation_mode" yaml:"validation_mode"`
	MaxValidationIssuesSample int            `json:"max_validation_issues_sample" yaml:"max_validation_issues_sample"`
	CopyPolicy                CopyPolicy     `json:"copy_policy" yaml:"copy_policy"`
	NumstatEnabled            bool           `json:"numstat_enabled" yaml:"numstat_enabled"`
}

// DefaultAnalysisOptions returns the option set's documented defaults.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		MinRevisions:              5,
		MaxChangesetSize:          50,
		ChangesetMode:             ByCommit,
		AuthorTimeWindowHours:     24,
		MaxLogicalChangesetSize:   100,
		MinCooccurrence:           5,
		TopKEdgesPerFile:          50,
		ComponentDepth:            2,
		MinComponentCooccurrence:  5,
		ValidationMode:            ValidationSoft,
		MaxValidationIssuesSample: 200,
		CopyPolicy:                CopySeparate,
		NumstatEnabled:            true,
	}
}

// Repository is the ambient, non-spec record identifying a mined
// repository's source and on-disk mirror location.
type Repository struct {
	RepoID     string    `db:"repo_id" json:"repo_id"`
	Name       string    `db:"name" json:"name"`
	SourcePath string    `db:"source_path" json:"source_path"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
