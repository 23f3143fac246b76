package saga

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/logixfirst/timetable-engine/internal/cluster"
	"github.com/logixfirst/timetable-engine/internal/executor"
	"github.com/logixfirst/timetable-engine/internal/ga"
	"github.com/logixfirst/timetable-engine/internal/loader"
	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/persistence"
	"github.com/logixfirst/timetable-engine/internal/progress"
	"github.com/logixfirst/timetable-engine/internal/repository"
	"github.com/logixfirst/timetable-engine/internal/rl"
	appErrors "github.com/logixfirst/timetable-engine/pkg/errors"
)

// Request is one generation job's external input (spec §6).
type Request struct {
	JobID          string
	OrganizationID string
	Semester       int
	AcademicYear   string
	TimeConfig     loader.TimeConfig
	QualityMode    string
	PolicyDir      string // on-disk root for RL policy JSON files, empty disables Stage 3
}

// Result is what the saga hands back once the job reaches a terminal
// state, enough for an optional admin callback (spec §6).
type Result struct {
	JobID          string
	Status         model.JobStatus
	Variants       []model.Variant
	GenerationTime time.Duration
}

// Controller drives one generation job end to end: load, cluster, solve,
// optimize, refine, persist, in strict sequence (spec §4.8).
type Controller struct {
	loader    *loader.Loader
	clusterer *cluster.Clusterer
	executor  *executor.Executor
	ga        *ga.Optimizer
	rl        *rl.Refiner
	persister *persistence.Persister
	jobs      *repository.JobRepository
	redis     *redis.Client
	log       *zap.Logger
}

// New wires a saga controller from its stage components.
func New(l *loader.Loader, c *cluster.Clusterer, e *executor.Executor, g *ga.Optimizer, r *rl.Refiner,
	p *persistence.Persister, jobs *repository.JobRepository, redisClient *redis.Client, log *zap.Logger) *Controller {
	return &Controller{loader: l, clusterer: c, executor: e, ga: g, rl: r, persister: p, jobs: jobs, redis: redisClient, log: log}
}

// completedSet tracks which of the six named stages finished, the basis
// for the cancelling->{cancelled,partial_success} decision (spec §4.8).
type completedSet map[model.StageName]bool

func (s completedSet) mark(stage model.StageName)     { s[stage] = true }
func (s completedSet) has(stage model.StageName) bool { return s[stage] }

// Run executes one job's full saga. The returned error is nil whenever the
// job reached a persisted terminal state (completed or partial_success);
// it is non-nil for failed and cancelled-before-cpsat outcomes, both of
// which leave nothing persisted beyond the job row's own status.
func (c *Controller) Run(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	completed := make(completedSet)
	token := NewCancellationToken(ctx, c.redis, req.JobID)
	tracker := progress.New(req.JobID, c.redis, c.log)
	tracker.Start(ctx, 500*time.Millisecond)
	defer tracker.Stop()

	if err := c.jobs.MarkRunning(ctx, req.JobID); err != nil {
		return Result{JobID: req.JobID, Status: model.StatusFailed}, err
	}

	variants, finalStatus, runErr := c.runStages(ctx, req, token, tracker, completed)
	result := Result{JobID: req.JobID, Status: finalStatus, Variants: variants, GenerationTime: time.Since(started)}

	if runErr != nil {
		c.compensate(ctx, req.JobID, runErr)
		return result, runErr
	}

	tracker.Complete("generation complete")
	_ = token.Clear(ctx)
	return result, nil
}

// runStages runs load->cluster->cpsat->ga->rl->persist in strict sequence
// (spec §5's ordering guarantee). Every safe point is checked before its
// stage begins; the executor, GA, and refiner each additionally check at
// their own internal cluster/generation/episode boundaries.
func (c *Controller) runStages(ctx context.Context, req Request, token *CancellationToken,
	tracker *progress.Tracker, completed completedSet) ([]model.Variant, model.JobStatus, error) {

	if err := token.CheckOrRaise("stage:data_load"); err != nil {
		return c.handleCancellation(ctx, req.JobID, err, nil, nil, completed)
	}
	tracker.SetStage("load_data", 0)
	instance, err := c.loader.Load(ctx, req.OrganizationID, req.Semester, req.TimeConfig)
	if err != nil {
		return nil, model.StatusFailed, appErrors.Wrap(err, appErrors.ErrDataLoad.Code, appErrors.ErrDataLoad.Status, appErrors.ErrDataLoad.Message)
	}
	completed.mark(model.StageDataLoad)

	if err := token.CheckOrRaise("stage:clustering"); err != nil {
		return c.handleCancellation(ctx, req.JobID, err, nil, instance, completed)
	}
	tracker.SetStage("clustering", 0)
	clusterResult := c.clusterer.Cluster(instance.Courses, tracker)
	completed.mark(model.StageClustering)

	if err := token.CheckOrRaise("stage:cpsat"); err != nil {
		return c.handleCancellation(ctx, req.JobID, err, nil, instance, completed)
	}
	tracker.SetStage("cpsat", len(clusterResult.Clusters))
	finalAssignment, err := c.executor.RunStage2(ctx, clusterResult.Clusters, instance, tracker, token)
	if err != nil {
		if isCancellation(err) {
			// Trapped inside Stage 2 itself: cancelOutcome(completed) still
			// resolves to cancelled since StageCPSAT isn't marked yet.
			return c.handleCancellation(ctx, req.JobID, err, nil, instance, completed)
		}
		return nil, model.StatusFailed, err
	}
	completed.mark(model.StageCPSAT)

	// From here on, cancelOutcome(completed) resolves to partial_success:
	// a trapped cancellation keeps the CP-SAT assignment and persists it
	// as the sole variant.
	cpsatOnly := []model.Variant{{
		VariantID:  req.JobID + "-cpsat-only",
		Label:      model.VariantPartialCPSAT,
		Assignment: finalAssignment,
	}}

	if err := token.CheckOrRaise("stage:ga"); err != nil {
		return c.handleCancellation(ctx, req.JobID, err, cpsatOnly, instance, completed)
	}
	tracker.SetStage("ga", 3)
	variants, err := c.ga.Optimize(ctx, finalAssignment, instance, tracker, token)
	if err != nil {
		if isCancellation(err) {
			return c.handleCancellation(ctx, req.JobID, err, cpsatOnly, instance, completed)
		}
		// GAError: Optimize recovers a single failed variant internally;
		// reaching here means all three failed, so the CP-SAT assignment
		// stands alone as the result (spec §7).
		variants = cpsatOnly
	}
	completed.mark(model.StageGA)

	if err := token.CheckOrRaise("stage:rl"); err != nil {
		return c.handleCancellation(ctx, req.JobID, err, variants, instance, completed)
	}
	tracker.SetStage("rl", len(variants))
	policy, polErr := rl.LoadPolicy(req.PolicyDir, req.Semester)
	if polErr != nil && c.log != nil {
		c.log.Warn("rl policy load failed, running stage 3 as a no-op", zap.Error(polErr))
	}
	for i := range variants {
		variants[i].Assignment = c.rl.Refine(ctx, variants[i].Assignment, instance, policy, token)
	}
	completed.mark(model.StageRL)

	tracker.SetStage("finalize", 0)
	if err := c.persister.Persist(ctx, req.JobID, bestAssignment(variants), variants, instance, model.StatusCompleted); err != nil {
		return variants, model.StatusFailed, err
	}
	completed.mark(model.StagePersistence)

	return variants, model.StatusCompleted, nil
}

// persistPartial commits a trapped-cancellation outcome as partial_success:
// the spec treats this as a genuine result, not an error, so it persists
// exactly as a normal completion would, just with status partial_success.
func (c *Controller) persistPartial(ctx context.Context, jobID string, variants []model.Variant, instance *model.ProblemInstance) ([]model.Variant, model.JobStatus, error) {
	if err := c.persister.Persist(ctx, jobID, bestAssignment(variants), variants, instance, model.StatusPartialSuccess); err != nil {
		return variants, model.StatusFailed, err
	}
	return variants, model.StatusPartialSuccess, nil
}

// cancelOutcome maps a trapped cancellation to its terminal status per
// spec §4.8: partial_success once cpsat has completed, cancelled before.
func cancelOutcome(completed completedSet) model.JobStatus {
	if completed.has(model.StageCPSAT) {
		return model.StatusPartialSuccess
	}
	return model.StatusCancelled
}

// handleCancellation is runStages' single dispatch point for a trapped
// cancellation: cancelOutcome(completed) decides whether there is anything
// worth persisting, rather than the call site guessing from its own
// position in the pipeline.
func (c *Controller) handleCancellation(ctx context.Context, jobID string, err error, variants []model.Variant,
	instance *model.ProblemInstance, completed completedSet) ([]model.Variant, model.JobStatus, error) {
	if cancelOutcome(completed) == model.StatusPartialSuccess {
		return c.persistPartial(ctx, jobID, variants, instance)
	}
	return nil, model.StatusCancelled, err
}

// bestAssignment picks the highest-scoring variant's assignment as the
// "final_assignment" persisted at top level.
func bestAssignment(variants []model.Variant) model.Assignment {
	if len(variants) == 0 {
		return model.Assignment{}
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if v.NormalizedScore > best.NormalizedScore {
			best = v
		}
	}
	return best.Assignment
}

// isCancellation reports whether err originated from a CancellationToken
// safe point (carries appErrors.ErrCancelled's code), as opposed to any
// other stage failure.
func isCancellation(err error) bool {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code == appErrors.ErrCancelled.Code
	}
	return false
}

// compensate runs spec §5's _compensate for a non-persisted terminal
// outcome: clear the cancellation flag and mark the job failed or
// cancelled in the primary store. Persisted outcomes (completed,
// partial_success) never reach here — Persist already committed their
// row update.
func (c *Controller) compensate(ctx context.Context, jobID string, cause error) {
	token := NewCancellationToken(ctx, c.redis, jobID)
	_ = token.Clear(ctx)

	if isCancellation(cause) {
		if err := c.jobs.MarkCancelled(ctx, jobID); err != nil && c.log != nil {
			c.log.Error("compensate: mark cancelled failed", zap.String("job_id", jobID), zap.Error(err))
		}
		return
	}
	if err := c.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil && c.log != nil {
		c.log.Error("compensate: mark failed failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
