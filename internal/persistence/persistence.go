package persistence

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/repository"
	"github.com/logixfirst/timetable-engine/internal/saga"
	"github.com/logixfirst/timetable-engine/internal/service"
	appErrors "github.com/logixfirst/timetable-engine/pkg/errors"
)

// summaryTTL is the cache-store result summary's lifetime (spec §4.7).
const summaryTTL = 24 * time.Hour

func summaryKey(jobID string) string { return "result:job:" + jobID }

// nowFunc is overridden in tests; production always uses time.Now.
var nowFunc = time.Now

// Persister writes the final result: one atomic primary-store transaction
// plus a best-effort cache-store summary (spec §4.7).
type Persister struct {
	jobs  *repository.JobRepository
	cache *service.CacheService
	log   *zap.Logger
}

// New builds a persister over the job repository and cache service.
func New(jobs *repository.JobRepository, cache *service.CacheService, log *zap.Logger) *Persister {
	return &Persister{jobs: jobs, cache: cache, log: log}
}

// Persist builds the timetable payload from the final assignment and the
// three GA variants, writes it to the primary store inside one transaction,
// and writes the entry-free summary to the cache store. Cancellation is
// deferred for the whole call via an AtomicSection (spec §5).
func (p *Persister) Persist(ctx context.Context, jobID string, finalAssignment model.Assignment,
	variants []model.Variant, instance *model.ProblemInstance, status model.JobStatus) error {

	var persistErr error
	_ = saga.AtomicSection("persistence", func() error {
		persistErr = p.persist(ctx, jobID, finalAssignment, variants, instance, status)
		return nil
	})
	return persistErr
}

func (p *Persister) persist(ctx context.Context, jobID string, finalAssignment model.Assignment,
	variants []model.Variant, instance *model.ProblemInstance, status model.JobStatus) error {

	built := buildEntries(finalAssignment, instance)
	if built.exceedsThreshold() {
		if p.log != nil {
			p.log.Error("assignment exceeds malformed-entry threshold",
				zap.String("job_id", jobID),
				zap.Int("malformed", built.malformedCount),
				zap.Int("total", built.totalCount))
		}
		return appErrors.ErrMalformedSolution
	}
	if p.log != nil && built.sentinelCount > 0 {
		p.log.Debug("skipped sentinel entries at persist",
			zap.String("job_id", jobID), zap.Int("count", built.sentinelCount))
	}

	variantPayloads := make([]VariantPayload, 0, len(variants))
	for i := range variants {
		variantPayloads = append(variantPayloads, buildVariantPayload(&variants[i], instance))
	}

	generatedAt := nowFunc().UTC().Format(time.RFC3339)
	data := TimetableData{
		Entries:                built.entries,
		TotalSessionsScheduled: len(built.entries),
		TotalCourses:           len(instance.Courses),
		VariantsCount:          len(variantPayloads),
		Variants:               variantPayloads,
		GeneratedAt:            generatedAt,
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to marshal timetable data")
	}

	primaryErr := p.writePrimary(ctx, jobID, string(status), payload)

	summary := summaryFromPayload(jobID, string(status), variantPayloads, generatedAt)
	if cacheErr := p.cache.Set(ctx, summaryKey(jobID), summary, summaryTTL); cacheErr != nil && p.log != nil {
		p.log.Warn("cache summary write failed", zap.String("job_id", jobID), zap.Error(cacheErr))
	}

	if primaryErr != nil {
		if p.log != nil {
			p.log.Error("primary store write failed", zap.String("job_id", jobID), zap.Error(primaryErr))
		}
		return appErrors.Wrap(primaryErr, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, appErrors.ErrPersistence.Message)
	}
	return nil
}

func (p *Persister) writePrimary(ctx context.Context, jobID, status string, payload []byte) error {
	tx, err := p.jobs.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := p.jobs.CompleteTx(ctx, tx, jobID, status, 100, payload); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
