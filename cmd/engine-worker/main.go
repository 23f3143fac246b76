// Command engine-worker is the generation pipeline's process entrypoint
// (spec §6): it builds the shared Postgres/Redis/zap/Prometheus handles
// once, then runs a small poll loop over generation_jobs, driving
// internal/saga.Controller for each claimed row. There is no HTTP API
// surface beyond the Prometheus scrape endpoint; requests are CRUD-written
// to generation_jobs by whatever system owns that table.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/logixfirst/timetable-engine/internal/cluster"
	"github.com/logixfirst/timetable-engine/internal/cpsat"
	"github.com/logixfirst/timetable-engine/internal/dto"
	"github.com/logixfirst/timetable-engine/internal/executor"
	"github.com/logixfirst/timetable-engine/internal/ga"
	"github.com/logixfirst/timetable-engine/internal/hardware"
	"github.com/logixfirst/timetable-engine/internal/loader"
	"github.com/logixfirst/timetable-engine/internal/persistence"
	"github.com/logixfirst/timetable-engine/internal/repository"
	"github.com/logixfirst/timetable-engine/internal/rl"
	"github.com/logixfirst/timetable-engine/internal/saga"
	"github.com/logixfirst/timetable-engine/internal/service"
	"github.com/logixfirst/timetable-engine/internal/telemetry"
	"github.com/logixfirst/timetable-engine/pkg/cache"
	"github.com/logixfirst/timetable-engine/pkg/config"
	"github.com/logixfirst/timetable-engine/pkg/database"
	"github.com/logixfirst/timetable-engine/pkg/jobs"
	"github.com/logixfirst/timetable-engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialise database", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	rc, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, cancellation/progress tracking degraded", "error", err)
	} else {
		redisClient = rc
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := telemetry.New()
	dataRepo := repository.NewDataRepository(db)
	jobRepo := repository.NewJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, 24*time.Hour, logr, redisClient != nil)

	profile := hardware.Detect()
	if cfg.Engine.ParallelClusters > 0 {
		profile.PhysicalCores = cfg.Engine.ParallelClusters
	}

	ld := loader.New(dataRepo, logr)
	clusterer := cluster.New(logr, profile)
	solver := cpsat.New(logr)
	exec := executor.New(solver, profile, metrics, logr)
	optimizer := ga.New(logr)
	refiner := rl.New(logr)
	persister := persistence.New(jobRepo, cacheSvc, logr)
	ctrl := saga.New(ld, clusterer, exec, optimizer, refiner, persister, jobRepo, redisClient, logr)

	validate := validator.New()

	handler := func(ctx context.Context, job jobs.Job) error {
		req, ok := job.Payload.(saga.Request)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload type", job.ID)
		}
		result, err := ctrl.Run(ctx, req)
		if err != nil {
			logr.Sugar().Errorw("generation job failed", "job_id", req.JobID, "error", err)
			return err
		}
		metrics.ObserveSolve(result.GenerationTime)
		notifyAdmin(ctx, cfg.Engine.AdminCallbackURL, result, logr)
		return nil
	}

	workers := cfg.Engine.WorkerConcurrency
	queue := jobs.NewQueue("generation", handler, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: workers * 4,
		MaxRetries: 1,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Errorw("metrics server failed", "error", err)
		}
	}()

	pollLoop(ctx, jobRepo, queue, validate, cfg.Engine.PolicyDir, cfg.Engine.PollInterval, workers, logr)

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received, draining in-flight jobs")

	var shutdownErr error
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr = multierr.Append(shutdownErr, metricsSrv.Shutdown(shutdownCtx))
	queue.Stop()
	if shutdownErr != nil {
		logr.Sugar().Warnw("shutdown completed with errors", "error", shutdownErr)
	}
}

// pollLoop claims pending generation_jobs rows on PollInterval and enqueues
// each onto the worker pool until ctx is cancelled (spec §6's poll loop).
func pollLoop(ctx context.Context, jobRepo *repository.JobRepository, queue *jobs.Queue,
	validate *validator.Validate, policyDir string, interval time.Duration, batchSize int, logr *zap.Logger) {
	if batchSize <= 0 {
		batchSize = 1
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				claimed, err := jobRepo.ClaimPending(ctx, batchSize)
				if err != nil {
					logr.Sugar().Errorw("claim pending jobs failed", "error", err)
					continue
				}
				for _, pj := range claimed {
					req, err := buildRequest(pj, policyDir, validate)
					if err != nil {
						logr.Sugar().Errorw("invalid pending job, marking failed", "job_id", pj.JobID, "error", err)
						if markErr := jobRepo.MarkFailed(ctx, pj.JobID, err.Error()); markErr != nil {
							logr.Sugar().Errorw("mark failed also failed", "job_id", pj.JobID, "error", markErr)
						}
						continue
					}
					if err := queue.Enqueue(jobs.Job{ID: pj.JobID, Type: "generation", Payload: req}); err != nil {
						logr.Sugar().Errorw("enqueue failed", "job_id", pj.JobID, "error", err)
					}
				}
			}
		}
	}()
}

// buildRequest validates and converts one claimed row into a saga.Request
// (spec §6's external-boundary validation, applied here since the worker
// has no HTTP handler of its own to do it for it).
func buildRequest(pj repository.PendingJob, policyDir string, validate *validator.Validate) (saga.Request, error) {
	var tc dto.TimeConfig
	if len(pj.TimeConfigJSON) > 0 {
		if err := json.Unmarshal(pj.TimeConfigJSON, &tc); err != nil {
			return saga.Request{}, fmt.Errorf("decode time_config: %w", err)
		}
	}

	genReq := dto.GenerationRequest{
		JobID:          pj.JobID,
		OrganizationID: pj.OrganizationID,
		Semester:       pj.Semester,
		AcademicYear:   pj.AcademicYear,
		TimeConfig:     tc,
		QualityMode:    pj.QualityMode,
	}
	if err := validate.Struct(genReq); err != nil {
		return saga.Request{}, fmt.Errorf("validate generation request: %w", err)
	}

	return genReq.ToSagaRequest(policyDir), nil
}

// notifyAdmin fires the optional admin callback (spec §6) once a job
// reaches a persisted terminal state. Failure here never fails the job:
// the result is already committed.
func notifyAdmin(ctx context.Context, url string, result saga.Result, logr *zap.Logger) {
	if url == "" {
		return
	}
	payload, err := json.Marshal(dto.FromSagaResult(result))
	if err != nil {
		logr.Sugar().Errorw("marshal admin callback payload failed", "job_id", result.JobID, "error", err)
		return
	}

	cbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(cbCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		logr.Sugar().Errorw("build admin callback request failed", "job_id", result.JobID, "error", err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		logr.Sugar().Warnw("admin callback failed", "job_id", result.JobID, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		logr.Sugar().Warnw("admin callback rejected", "job_id", result.JobID, "status", resp.StatusCode)
	}
}
