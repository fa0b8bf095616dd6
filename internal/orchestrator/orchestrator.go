// Package orchestrator implements the task model and control surface (C10):
// the state machine, background workers, and progress pub/sub that turn the
// enumerated operations of spec.md §6.4 into running pipeline instances. Its
// one-goroutine-per-task shape with a central registry of cancel funcs is
// grounded on the teacher's internal/ingestion/orchestrator.go phase
// structure, generalized from one linear pipeline to many concurrently
// running, independently cancellable tasks.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/coderisk/coupler/internal/apperrors"
	"github.com/coderisk/coupler/internal/cluster"
	"github.com/coderisk/coupler/internal/config"
	"github.com/coderisk/coupler/internal/extract"
	"github.com/coderisk/coupler/internal/mirror"
	"github.com/coderisk/coupler/internal/models"
	"github.com/coderisk/coupler/internal/query"
	"github.com/coderisk/coupler/internal/storage"
)

// progressPublishInterval is the minimum spacing between two progress
// publishes for the same task, per spec.md §4.10/§5.
const progressPublishInterval = 500 * time.Millisecond

// ProgressSnapshot is the wire shape of one progress publish (spec.md §6.3).
type ProgressSnapshot struct {
	TaskID            string
	State             models.TaskState
	Stage             string
	Percent           float64
	Message           string
	EntityCount       int
	RelationshipCount int
	IssuedAt          time.Time
}

// Service is the control surface spec.md §6.4 enumerates, implemented
// directly (no transport layer, per SPEC_FULL.md §6.4 — out of scope).
type Service interface {
	CreateRepository(ctx context.Context, sourcePath, name string) (*models.Repository, error)
	ListRepositories(ctx context.Context) ([]*models.Repository, error)
	DeleteRepository(ctx context.Context, repoID string) error
	UpsertConfiguration(ctx context.Context, repoID, name string, opts models.AnalysisOptions) (string, error)
	ActivateConfiguration(ctx context.Context, repoID, configID string) error
	EnqueueAnalysis(ctx context.Context, repoID, configID string) (string, error)
	CancelAnalysis(taskID string) error
	SubscribeProgress(taskID string) (<-chan ProgressSnapshot, error)
	GetCoupling(ctx context.Context, repoID, path, metric string, minWeight float64, limit int) ([]models.Relationship, error)
	GetHotspots(ctx context.Context, repoID, sortBy string, limit int) ([]query.Hotspot, error)
	RunClustering(ctx context.Context, repoID, algorithm string, params map[string]interface{}) (*models.ClusterRun, error)
}

// taskHandle tracks the live state of one RUNNING task: its cancel func and
// the set of progress subscribers to fan out to.
type taskHandle struct {
	mu          sync.Mutex
	cancel      context.CancelFunc
	subscribers []chan ProgressSnapshot
	lastStage   string
	limiter     *rate.Limiter
}

// Orchestrator is the concrete Service implementation.
type Orchestrator struct {
	store    storage.Store
	cfg      *config.Config
	logger   *logrus.Logger
	registry *cluster.Registry

	mu    sync.Mutex
	tasks map[string]*taskHandle
}

// New returns an Orchestrator backed by store, using cfg for per-repository
// directory layout (spec.md §6.1).
func New(store storage.Store, cfg *config.Config, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{store: store, cfg: cfg, logger: logger, registry: cluster.NewRegistry(), tasks: map[string]*taskHandle{}}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// newRepoID derives a repo id from name that is stable-looking but not
// purely a lower-cased rendering of name (SPEC_FULL.md §6.4): a slug prefix
// for readability, suffixed with 8 hex characters of a sha256 digest over
// name and a fresh random nonce, so two repositories named identically
// never collide.
func newRepoID(name string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "repo"
	}
	sum := sha256.Sum256([]byte(name + uuid.NewString()))
	return slug + "-" + hex.EncodeToString(sum[:])[:8]
}

// CreateRepository registers a repository and seeds its default analysis
// configuration.
func (o *Orchestrator) CreateRepository(ctx context.Context, sourcePath, name string) (*models.Repository, error) {
	repo := &models.Repository{
		RepoID:     newRepoID(name),
		Name:       name,
		SourcePath: sourcePath,
		CreatedAt:  time.Now(),
	}
	if err := o.store.SaveRepository(ctx, repo); err != nil {
		return nil, err
	}

	defaultCfg := &models.AnalysisConfiguration{
		ConfigID:  uuid.NewString(),
		RepoID:    repo.RepoID,
		Name:      "default",
		Version:   1,
		Active:    true,
		Options:   models.DefaultAnalysisOptions(),
		CreatedAt: time.Now(),
	}
	if err := o.store.SaveConfiguration(ctx, defaultCfg); err != nil {
		return nil, err
	}
	return repo, nil
}

// ListRepositories implements Service.
func (o *Orchestrator) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	return o.store.ListRepositories(ctx)
}

// DeleteRepository implements Service.
func (o *Orchestrator) DeleteRepository(ctx context.Context, repoID string) error {
	return o.store.DeleteRepository(ctx, repoID)
}

// UpsertConfiguration saves a new, inactive analysis configuration version
// for repoID and returns its id.
func (o *Orchestrator) UpsertConfiguration(ctx context.Context, repoID, name string, opts models.AnalysisOptions) (string, error) {
	existing, err := o.store.ListConfigurations(ctx, repoID)
	if err != nil {
		return "", err
	}
	cfg := &models.AnalysisConfiguration{
		ConfigID:  uuid.NewString(),
		RepoID:    repoID,
		Name:      name,
		Version:   len(existing) + 1,
		Active:    false,
		Options:   opts,
		CreatedAt: time.Now(),
	}
	if err := o.store.SaveConfiguration(ctx, cfg); err != nil {
		return "", err
	}
	return cfg.ConfigID, nil
}

// ActivateConfiguration implements Service.
func (o *Orchestrator) ActivateConfiguration(ctx context.Context, repoID, configID string) error {
	return o.store.SetActiveConfiguration(ctx, repoID, configID)
}

// EnqueueAnalysis creates a PENDING task and launches its background
// worker, returning immediately (spec.md §4.10).
func (o *Orchestrator) EnqueueAnalysis(ctx context.Context, repoID, configID string) (string, error) {
	repo, err := o.store.GetRepository(ctx, repoID)
	if err != nil {
		return "", err
	}

	var cfg *models.AnalysisConfiguration
	if configID == "" {
		cfg, err = o.store.GetActiveConfiguration(ctx, repoID)
	} else {
		cfg, err = o.getConfiguration(ctx, repoID, configID)
	}
	if err != nil {
		return "", err
	}

	task := &models.AnalysisTask{
		TaskID:       uuid.NewString(),
		RepoID:       repoID,
		AnalyzerKind: "coupling",
		State:        models.TaskPending,
		ConfigID:     cfg.ConfigID,
	}
	if err := o.store.CreateTask(ctx, task); err != nil {
		return "", err
	}

	handle := &taskHandle{limiter: rate.NewLimiter(rate.Every(progressPublishInterval), 1)}
	o.mu.Lock()
	o.tasks[task.TaskID] = handle
	o.mu.Unlock()

	go o.run(task, repo, cfg, handle)
	return task.TaskID, nil
}

func (o *Orchestrator) getConfiguration(ctx context.Context, repoID, configID string) (*models.AnalysisConfiguration, error) {
	configs, err := o.store.ListConfigurations(ctx, repoID)
	if err != nil {
		return nil, err
	}
	for _, c := range configs {
		if c.ConfigID == configID {
			return c, nil
		}
	}
	return nil, apperrors.InputErrorf("orchestrator: config %q not found for repo %q", configID, repoID)
}

// run executes one task's full pipeline to completion, failure, or
// cancellation, updating the task row and fanning out progress throughout.
func (o *Orchestrator) run(task *models.AnalysisTask, repo *models.Repository, cfg *models.AnalysisConfiguration, handle *taskHandle) {
	ctx, cancel := context.WithCancel(context.Background())
	handle.mu.Lock()
	handle.cancel = cancel
	handle.mu.Unlock()
	defer o.forget(task.TaskID)

	now := time.Now()
	task.State = models.TaskRunning
	task.StartedAt = &now
	_ = o.store.UpdateTask(ctx, task)
	o.publish(handle, task, "")

	repoDir := o.cfg.RepoDir(repo.RepoID)
	mirrorMgr := mirror.New(repoDir)
	columnar, err := storage.OpenColumnarStore(filepath.Join(repoDir, "columnar"))
	if err != nil {
		o.finish(ctx, handle, task, nil, err)
		return
	}
	defer columnar.Close()

	ex := extract.New(o.store, columnar, mirrorMgr, repo.RepoID, cfg.Options, o.logger.WithField("task_id", task.TaskID).Logger)
	result, err := ex.Run(ctx, repo.SourcePath, func(p models.TaskProgress) {
		task.Progress = p
		o.publish(handle, task, p.Stage)
	})
	o.finish(ctx, handle, task, result, err)
}

func (o *Orchestrator) finish(ctx context.Context, handle *taskHandle, task *models.AnalysisTask, result *extract.Result, err error) {
	finishedAt := time.Now()
	task.FinishedAt = &finishedAt

	switch {
	case err == nil:
		task.State = models.TaskCompleted
		task.EntityCount = result.EntityCount
		task.RelationshipCount = result.RelationshipCount
		task.Metrics = models.TaskMetrics{ValidationIssues: result.ValidationIssues, IssueSample: result.IssueSample}
	case apperrors.IsCancelled(err):
		task.State = models.TaskCanceled
	default:
		task.State = models.TaskFailed
		task.Error = err.Error()
	}

	// UpdateTask must succeed even if ctx was cancelled, since persisting
	// the final state is the whole point of this call.
	_ = o.store.UpdateTask(context.Background(), task)
	o.publish(handle, task, task.Progress.Stage)
	o.closeSubscribers(handle)
}

// CancelAnalysis signals cooperative cancellation for a running task.
func (o *Orchestrator) CancelAnalysis(taskID string) error {
	o.mu.Lock()
	handle, ok := o.tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return apperrors.InputErrorf("orchestrator: task %q is not running", taskID)
	}
	handle.mu.Lock()
	cancel := handle.cancel
	handle.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// SubscribeProgress returns a coalescing progress stream for taskID,
// closed once the task leaves RUNNING (spec.md §4.10).
func (o *Orchestrator) SubscribeProgress(taskID string) (<-chan ProgressSnapshot, error) {
	o.mu.Lock()
	handle, ok := o.tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return nil, apperrors.InputErrorf("orchestrator: task %q is not running", taskID)
	}
	ch := make(chan ProgressSnapshot, 1)
	handle.mu.Lock()
	handle.subscribers = append(handle.subscribers, ch)
	handle.mu.Unlock()
	return ch, nil
}

// publish fans a snapshot out to every subscriber of handle, coalescing:
// a full channel drops its stale pending snapshot in favor of the new one,
// and publishes are rate-limited to progressPublishInterval (via a token
// bucket, one token per interval) unless stage changed.
func (o *Orchestrator) publish(handle *taskHandle, task *models.AnalysisTask, stage string) {
	handle.mu.Lock()
	defer handle.mu.Unlock()

	stageChanged := stage != "" && stage != handle.lastStage
	if !stageChanged && task.State == models.TaskRunning && !handle.limiter.Allow() {
		return
	}
	if stage != "" {
		handle.lastStage = stage
	}

	snap := ProgressSnapshot{
		TaskID:            task.TaskID,
		State:             task.State,
		Stage:             task.Progress.Stage,
		Percent:           task.Progress.Percent,
		Message:           task.Progress.Message,
		EntityCount:       task.EntityCount,
		RelationshipCount: task.RelationshipCount,
		IssuedAt:          time.Now(),
	}
	for _, ch := range handle.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (o *Orchestrator) closeSubscribers(handle *taskHandle) {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	for _, ch := range handle.subscribers {
		close(ch)
	}
	handle.subscribers = nil
}

func (o *Orchestrator) forget(taskID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.tasks, taskID)
}

// GetCoupling implements Service by delegating to internal/query, resolving
// path to an entity id first.
func (o *Orchestrator) GetCoupling(ctx context.Context, repoID, path, metric string, minWeight float64, limit int) ([]models.Relationship, error) {
	e, err := o.store.GetEntityByPath(ctx, repoID, path)
	if err != nil {
		return nil, err
	}
	return query.Coupling(ctx, o.store, e.EntityID, metric, minWeight, limit)
}

// GetHotspots implements Service.
func (o *Orchestrator) GetHotspots(ctx context.Context, repoID, sortBy string, limit int) ([]query.Hotspot, error) {
	return query.Hotspots(ctx, o.store, repoID, sortBy, limit)
}

// RunClustering implements Service: it looks up algorithm in the registry,
// fetches the repository's current entity/edge universe, runs the
// algorithm, and persists the resulting cluster run (C9 run() then C8
// persist, spec.md §4.9/§6.4).
func (o *Orchestrator) RunClustering(ctx context.Context, repoID, algorithm string, params map[string]interface{}) (*models.ClusterRun, error) {
	algo, err := o.registry.Get(algorithm)
	if err != nil {
		return nil, err
	}

	entityList, err := o.store.ListEntities(ctx, repoID)
	if err != nil {
		return nil, err
	}
	entities := make([]int64, 0, len(entityList))
	for _, e := range entityList {
		if e.ExistsAtHead {
			entities = append(entities, e.EntityID)
		}
	}

	rels, err := o.store.ListAllRelationships(ctx, repoID)
	if err != nil {
		return nil, err
	}
	edges := make([]cluster.Edge, 0, len(rels))
	for _, r := range rels {
		edges = append(edges, cluster.Edge{A: r.Src, B: r.Dst, Weight: r.Weight})
	}

	result, err := algo.Run(entities, edges, params)
	if err != nil {
		return nil, err
	}

	run := &models.ClusterRun{
		RunID:        uuid.NewString(),
		RepoID:       repoID,
		Algorithm:    algorithm,
		Parameters:   params,
		CreatedAt:    time.Now(),
		ClusterCount: result.ClusterCount,
		Metrics:      result.Metrics,
	}
	members := make([]models.ClusterMember, 0, len(result.Assignments))
	for entityID, clusterID := range result.Assignments {
		members = append(members, models.ClusterMember{RunID: run.RunID, ClusterID: clusterID, EntityID: entityID})
	}
	if err := o.store.SaveClusterRun(ctx, run, members); err != nil {
		return nil, err
	}
	return run, nil
}
