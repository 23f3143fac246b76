// Package executor implements the parallel cluster executor (spec §4.4):
// fan Stage 2's solve_cluster out across clusters within a thread budget,
// isolating per-cluster failures and falling back to sequential solving
// under memory pressure. Adapted from the teacher's pkg/jobs.Queue
// worker-pool shape (bounded workers over a job channel, cooperative
// shutdown via context) repurposed from retry-on-failure job dispatch to
// fan-out-with-isolation cluster dispatch.
package executor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/logixfirst/timetable-engine/internal/cpsat"
	"github.com/logixfirst/timetable-engine/internal/hardware"
	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/progress"
	"github.com/logixfirst/timetable-engine/internal/saga"
	"github.com/logixfirst/timetable-engine/internal/telemetry"
)

// Executor dispatches cluster solves within the hardware-derived thread
// budget (spec §4.4).
type Executor struct {
	solver  *cpsat.Solver
	profile hardware.Profile
	metrics *telemetry.Metrics
	log     *zap.Logger
}

// New builds an Executor over the given solver and hardware profile.
func New(solver *cpsat.Solver, profile hardware.Profile, metrics *telemetry.Metrics, log *zap.Logger) *Executor {
	return &Executor{solver: solver, profile: profile, metrics: metrics, log: log}
}

// clusterTask carries one cluster plus its dispatch index, for ordered
// logging only; merge order into the result map is otherwise irrelevant
// because every course belongs to exactly one cluster (spec §5).
type clusterTask struct {
	index   int
	courses []model.Course
}

// RunStage2 fans solve_cluster out across clusters, subject to the
// parallel_clusters x workers_per_cluster <= physical_cores budget, with a
// sequential fallback when available RAM is below the memory guard.
// Cancellation is checked at each cluster's dispatch boundary (a
// SafePoint); a cluster that errors or times out is sentinel-filled and
// never poisons the others.
func (e *Executor) RunStage2(ctx context.Context, clusters [][]model.Course, instance *model.ProblemInstance,
	tracker *progress.Tracker, token *saga.CancellationToken) (model.Assignment, error) {

	result := make(model.Assignment)
	if len(clusters) == 0 {
		return result, nil
	}

	parallelClusters, workersPerCluster := e.profile.ParallelBudget()
	sequential := e.profile.LowMemory()

	if e.log != nil {
		e.log.Info("stage 2 dispatch",
			zap.Int("clusters", len(clusters)),
			zap.Int("parallel_clusters", parallelClusters),
			zap.Int("workers_per_cluster", workersPerCluster),
			zap.Bool("sequential_fallback", sequential))
	}

	tasks := make(chan clusterTask, len(clusters))
	for i, c := range clusters {
		tasks <- clusterTask{index: i, courses: c}
	}
	close(tasks)

	workers := parallelClusters
	if sequential {
		workers = 1
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		completed int
		firstErr  error
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if err := saga.SafePoint(token, "stage2:cluster_dispatch", func() error { return nil }); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					continue
				}

				partial := e.solveOne(ctx, task, instance)

				mu.Lock()
				for k, v := range partial {
					result[k] = v
				}
				completed++
				if tracker != nil {
					tracker.UpdateWork(completed)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

// solveOne solves a single cluster, recovering from panics and falling back
// to sentinel-fill on infeasibility so one cluster never poisons the rest.
func (e *Executor) solveOne(ctx context.Context, task clusterTask, instance *model.ProblemInstance) (partial model.Assignment) {
	defer func() {
		if r := recover(); r != nil {
			if e.log != nil {
				e.log.Error("cluster solve panicked, sentinel-filling", zap.Int("cluster_index", task.index), zap.Any("recover", r))
			}
			partial = cpsat.Sentinel(task.courses)
			if e.metrics != nil {
				e.metrics.RecordClusterOutcome(false)
			}
		}
	}()

	if e.metrics != nil {
		e.metrics.ClusterStarted()
		defer e.metrics.ClusterFinished()
	}

	assignment, ok := e.solver.SolveCluster(ctx, task.courses, instance)
	if e.metrics != nil {
		e.metrics.RecordClusterOutcome(ok)
	}
	if !ok {
		if e.log != nil {
			e.log.Warn("cluster infeasible after full ladder, sentinel-filling", zap.Int("cluster_index", task.index), zap.Int("cluster_size", len(task.courses)))
		}
		return cpsat.Sentinel(task.courses)
	}
	return assignment
}
