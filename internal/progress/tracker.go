// Package progress implements the generation pipeline's smoothed progress
// and ETA reporting, grounded on the source's
// utils/progress_tracker.EnterpriseProgressTracker: stage boundaries are
// absolute and cumulative, progress never moves backward, and a background
// ticker (not the stages themselves) is what writes to the cache store.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/logixfirst/timetable-engine/internal/model"
)

// stageConfig is one row of spec §4.9's stage boundary table.
type stageConfig struct {
	start, end    float64
	expectedSecs  float64
}

var stageConfigs = map[model.StageName]stageConfig{
	"load_data":  {0, 5, 5},
	"clustering": {5, 10, 10},
	"cpsat":      {10, 60, 180},
	"ga":         {60, 85, 300},
	"rl":         {85, 95, 180},
	"finalize":   {95, 100, 5},
}

var stageOrder = []model.StageName{"load_data", "clustering", "cpsat", "ga", "rl", "finalize"}

// Record is the JSON shape written to the cache store and published over
// pub/sub.
type Record struct {
	JobID              string  `json:"job_id"`
	Progress           int     `json:"progress"`
	Status             string  `json:"status"`
	Stage              string  `json:"stage"`
	Message            string  `json:"message"`
	ETASeconds         int     `json:"eta_seconds"`
	Timestamp          float64 `json:"timestamp"`
}

// Tracker is the saga's progress reporter. One instance per job run.
type Tracker struct {
	jobID string
	redis *redis.Client
	log   *zap.Logger

	mu                sync.Mutex
	startTime         time.Time
	currentStage      model.StageName
	stageStartTime    time.Time
	stageStartProgress float64
	lastProgress      float64
	lastUpdateTime    time.Time
	itemsTotal        int
	itemsDone         int

	smoothedETA  float64
	lastETAValue float64
	lastETAUpdate time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a tracker for one job. Call Start to begin the ~500ms
// background ticker and Stop when the saga reaches a terminal state.
func New(jobID string, redisClient *redis.Client, log *zap.Logger) *Tracker {
	now := time.Now()
	return &Tracker{
		jobID:          jobID,
		redis:          redisClient,
		log:            log,
		startTime:      now,
		currentStage:   "load_data",
		stageStartTime: now,
		lastUpdateTime: now,
		lastETAUpdate:  now,
	}
}

// SetStage moves the tracker to a new stage boundary without jumping
// backward: if progress is already past the new stage's start, it
// continues from the current value instead of resetting.
func (t *Tracker) SetStage(stage model.StageName, totalItems int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cfg, ok := stageConfigs[stage]
	if !ok {
		return
	}
	if t.lastProgress >= cfg.start {
		t.stageStartProgress = t.lastProgress
	} else {
		t.stageStartProgress = cfg.start
		t.lastProgress = cfg.start
	}
	t.currentStage = stage
	t.stageStartTime = time.Now()
	t.itemsTotal = totalItems
	t.itemsDone = 0
}

// UpdateWork records work-based progress within the current stage (cluster
// count, GA generation, RL episode).
func (t *Tracker) UpdateWork(itemsDone int) {
	t.mu.Lock()
	t.itemsDone = itemsDone
	t.mu.Unlock()
}

// Start begins the background ~500ms ticker that writes smoothed progress
// to the cache store.
func (t *Tracker) Start(ctx context.Context, tickInterval time.Duration) {
	if tickInterval <= 0 {
		tickInterval = 500 * time.Millisecond
	}
	t.stopCh = make(chan struct{})
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stopCh:
				return
			case <-ticker.C:
				t.emit(fmt.Sprintf("Processing: %s", strings.Title(string(t.stageSnapshot()))))
			}
		}
	}()
}

// Stop halts the background ticker and waits for it to exit.
func (t *Tracker) Stop() {
	if t.stopCh == nil {
		return
	}
	close(t.stopCh)
	t.wg.Wait()
}

func (t *Tracker) stageSnapshot() model.StageName {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentStage
}

// Complete marks the job 100% complete and emits a final record.
func (t *Tracker) Complete(message string) {
	t.mu.Lock()
	t.lastProgress = 100
	t.mu.Unlock()
	t.emitForced(message, 100)
}

// Fail emits a terminal failure record.
func (t *Tracker) Fail(ctx context.Context, errMessage string) {
	rec := Record{
		JobID:     t.jobID,
		Progress:  0,
		Status:    "failed",
		Stage:     "Failed",
		Message:   errMessage,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	t.write(ctx, rec)
}

func (t *Tracker) emit(message string) {
	progress := t.calculateSmoothProgress()
	t.emitAt(message, progress)
}

func (t *Tracker) emitForced(message string, progress int) {
	t.mu.Lock()
	t.lastProgress = float64(progress)
	t.mu.Unlock()
	t.emitAt(message, progress)
}

func (t *Tracker) emitAt(message string, progress int) {
	remaining := t.calculateETA(progress)
	status := "running"
	if progress >= 100 {
		status = "completed"
	}
	rec := Record{
		JobID:      t.jobID,
		Progress:   progress,
		Status:     status,
		Stage:      string(t.stageSnapshot()),
		Message:    message,
		ETASeconds: remaining,
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
	}
	t.write(context.Background(), rec)
}

func (t *Tracker) write(ctx context.Context, rec Record) {
	if t.redis == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		if t.log != nil {
			t.log.Warn("progress record marshal failed", zap.Error(err))
		}
		return
	}
	if err := t.redis.SetEx(ctx, "progress:job:"+t.jobID, payload, time.Hour).Err(); err != nil {
		if t.log != nil {
			t.log.Warn("progress cache write failed", zap.Error(err))
		}
	}
	if err := t.redis.Publish(ctx, "progress:"+t.jobID, payload).Err(); err != nil {
		if t.log != nil {
			t.log.Warn("progress publish failed", zap.Error(err))
		}
	}
}

// calculateSmoothProgress implements the source's Chrome/TensorFlow-style
// interpolation: work-based target when item counts are known, time-based
// asymptotic target otherwise; constant-speed interpolation towards the
// target; capped at 98% until Complete() is called.
func (t *Tracker) calculateSmoothProgress() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	timeSinceLast := now.Sub(t.lastUpdateTime).Seconds()
	t.lastUpdateTime = now

	cfg, ok := stageConfigs[t.currentStage]
	if !ok {
		cfg = stageConfig{0, 100, 5}
	}
	stageStart := t.stageStartProgress
	stageEnd := cfg.end
	stageRange := stageEnd - stageStart

	var target float64
	if t.itemsTotal > 0 {
		workRatio := math.Min(1.0, float64(t.itemsDone)/float64(t.itemsTotal))
		target = stageStart + workRatio*stageRange
	} else {
		elapsed := now.Sub(t.stageStartTime).Seconds()
		expected := cfg.expectedSecs
		var ratio float64
		if elapsed < expected {
			ratio = elapsed / expected
		} else {
			overtime := elapsed - expected
			ratio = 1.0 - 0.01*math.Pow(0.5, overtime/expected)
		}
		target = stageStart + ratio*stageRange
	}
	target = math.Min(stageEnd, target)

	maxStep := 0.3 * (timeSinceLast / 0.5)
	var next float64
	if target > t.lastProgress {
		step := math.Min(maxStep, target-t.lastProgress)
		next = t.lastProgress + step
	} else {
		next = t.lastProgress + 0.03*(timeSinceLast/0.5)
	}
	next = math.Min(stageEnd, next)
	next = math.Min(98.0, next)
	t.lastProgress = next

	return int(math.Round(next))
}

// calculateETA sums remaining expected time for the current and future
// stages, smoothed with an EMA and clamped to be monotonically
// non-increasing with a 5-second tolerance.
func (t *Tracker) calculateETA(progress int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	var remaining float64
	found := false
	for _, name := range stageOrder {
		cfg := stageConfigs[name]
		if !found {
			if name == t.currentStage {
				found = true
				stageElapsed := now.Sub(t.stageStartTime).Seconds()
				stageRemaining := math.Max(1, cfg.expectedSecs-stageElapsed)
				remaining += stageRemaining
			}
			continue
		}
		remaining += cfg.expectedSecs
	}

	if progress > 90 {
		elapsed := now.Sub(t.startTime).Seconds()
		if progress > 95 && progress > 0 {
			progressBasedETA := elapsed * float64(100-progress) / float64(progress)
			remaining = math.Min(remaining, progressBasedETA)
		}
	}

	if t.smoothedETA == 0 {
		t.smoothedETA = remaining
		t.lastETAUpdate = now
	} else {
		sinceUpdate := now.Sub(t.lastETAUpdate).Seconds()
		if sinceUpdate >= 1.5 || t.smoothedETA == remaining {
			alpha := 0.2
			if sinceUpdate < 10 {
				alpha = 0.3
			}
			t.smoothedETA = (1-alpha)*t.smoothedETA + alpha*remaining
			t.lastETAUpdate = now
		}
	}

	result := math.Max(1, math.Min(900, t.smoothedETA))
	if t.lastETAValue != 0 && result > t.lastETAValue+5 {
		result = t.lastETAValue
	}
	t.lastETAValue = result

	return int(result)
}
