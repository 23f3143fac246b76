package saga

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/logixfirst/timetable-engine/pkg/errors"
)

// cancelKeyPrefix matches the external cancellation contract (spec §6):
// a caller requests cancellation by setting cancel:job:{job_id} to any
// non-empty value in the cache store.
const cancelKeyPrefix = "cancel:job:"

func cancelKey(jobID string) string { return cancelKeyPrefix + jobID }

// CancellationToken is a cooperative, SOFT-mode-only cancellation signal
// keyed by job id. It polls the cache store lazily: a SafePoint checks it
// on entry and exit rather than via a background watcher, matching the
// source's check_or_raise-at-safe-point pattern. HARD mode (immediate
// abort) is named in the spec but never used, so it is not modeled.
type CancellationToken struct {
	jobID  string
	redis  *redis.Client
	ctx    context.Context
	cached int32 // atomic bool: 1 once a cancellation has been observed
}

// NewCancellationToken builds a token for one job run.
func NewCancellationToken(ctx context.Context, redisClient *redis.Client, jobID string) *CancellationToken {
	return &CancellationToken{jobID: jobID, redis: redisClient, ctx: ctx}
}

// Requested reports whether cancellation has been signalled, either
// previously observed or freshly read from the cache store.
func (t *CancellationToken) Requested() bool {
	if atomic.LoadInt32(&t.cached) == 1 {
		return true
	}
	if t.redis == nil {
		return false
	}
	val, err := t.redis.Get(t.ctx, cancelKey(t.jobID)).Result()
	if err != nil || val == "" {
		return false
	}
	atomic.StoreInt32(&t.cached, 1)
	return true
}

// CheckOrRaise returns ErrCancelled (wrapped with the safe-point label) if
// cancellation has been requested, nil otherwise.
func (t *CancellationToken) CheckOrRaise(label string) error {
	if t.Requested() {
		return appErrors.Wrap(fmt.Errorf("safe point %q", label),
			appErrors.ErrCancelled.Code, appErrors.ErrCancelled.Status, appErrors.ErrCancelled.Message)
	}
	return nil
}

// Clear removes the cancellation flag. Run calls it after a persisted
// outcome (completed or partial_success); _compensate calls it for failed
// and cancelled outcomes.
func (t *CancellationToken) Clear(ctx context.Context) error {
	if t.redis == nil {
		return nil
	}
	return t.redis.Del(ctx, cancelKey(t.jobID)).Err()
}

// SafePoint checks the token on entry; callers are expected to check it
// again (or simply let CheckOrRaise at the next SafePoint catch it) before
// committing further work. fn is run only if no cancellation is pending on
// entry. If fn returns an error, SafePoint returns it without the exit
// check; otherwise it checks again on exit and returns the cancellation
// error if one arrived during fn.
func SafePoint(token *CancellationToken, label string, fn func() error) error {
	if err := token.CheckOrRaise(label + ":enter"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return token.CheckOrRaise(label + ":exit")
}

// AtomicSection runs fn with cancellation checks suppressed: no check is
// made on entry or exit, and fn itself must not call CheckOrRaise internally
// for this same section. The spec uses this for the persister's transaction:
// cancellation requests arriving during persistence are deferred until the
// transaction commits or rolls back.
func AtomicSection(label string, fn func() error) error {
	return fn()
}
