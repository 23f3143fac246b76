package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// JobRepository writes the generation_jobs row the saga drives and callers
// read status/progress/timetable_data from (spec §4.7, §6).
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository constructs a job repository over the shared pool.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CompleteTx updates one job row to a terminal success state
// (completed or partial_success) with the full timetable JSON payload,
// inside the caller's transaction (spec §4.7's single-statement commit).
func (r *JobRepository) CompleteTx(ctx context.Context, tx *sqlx.Tx, jobID, status string, progress float64, timetableDataJSON []byte) error {
	const q = `
		UPDATE generation_jobs
		SET status = $2, progress = $3, timetable_data = $4, completed_at = now(), updated_at = now()
		WHERE job_id = $1`
	if _, err := tx.ExecContext(ctx, q, jobID, status, progress, timetableDataJSON); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// MarkFailed updates a job row to the failed terminal state with an error
// message, used by the saga's _compensate on any non-cancellation failure
// (a failed persist included) and by the worker's poll loop for rows that
// fail validation. Cancellations go through MarkCancelled instead.
func (r *JobRepository) MarkFailed(ctx context.Context, jobID, errMessage string) error {
	const q = `
		UPDATE generation_jobs
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE job_id = $1`
	if _, err := r.db.ExecContext(ctx, q, jobID, errMessage); err != nil {
		return fmt.Errorf("mark job failed %s: %w", jobID, err)
	}
	return nil
}

// MarkCancelled updates a job row to the cancelled terminal state (trapped
// before Stage 2 CP-SAT completed; no usable solution exists).
func (r *JobRepository) MarkCancelled(ctx context.Context, jobID string) error {
	const q = `
		UPDATE generation_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE job_id = $1`
	if _, err := r.db.ExecContext(ctx, q, jobID); err != nil {
		return fmt.Errorf("mark job cancelled %s: %w", jobID, err)
	}
	return nil
}

// MarkRunning transitions a job from pending to running at saga start.
func (r *JobRepository) MarkRunning(ctx context.Context, jobID string) error {
	const q = `
		UPDATE generation_jobs
		SET status = 'running', updated_at = now()
		WHERE job_id = $1`
	if _, err := r.db.ExecContext(ctx, q, jobID); err != nil {
		return fmt.Errorf("mark job running %s: %w", jobID, err)
	}
	return nil
}

// BeginTx starts a transaction for the persister's atomic write.
func (r *JobRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// statementTimeout mirrors spec §5's 30s bounded statement timeout,
// applied via context to ClaimPending's query (a tighter deadline already
// on the caller's context still wins). The other methods do not apply it.
const statementTimeout = 30 * time.Second

// PendingJob is one claimed generation_jobs row, enough for the caller to
// assemble a saga.Request (spec §6's poll loop).
type PendingJob struct {
	JobID          string
	OrganizationID string
	Semester       int
	AcademicYear   string
	QualityMode    string
	TimeConfigJSON []byte
}

// ClaimPending atomically claims up to limit pending rows, transitioning
// them to running so a second poller in the same deployment never claims
// the same row twice (spec §6's poll loop, teacher's pkg/jobs.Queue
// worker-pool pattern repurposed as the dispatch side).
func (r *JobRepository) ClaimPending(ctx context.Context, limit int) ([]PendingJob, error) {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	const q = `
		UPDATE generation_jobs
		SET status = 'running', updated_at = now()
		WHERE job_id IN (
			SELECT job_id FROM generation_jobs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id, organization_id, semester, academic_year, quality_mode, time_config`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending jobs: %w", err)
	}
	defer rows.Close()

	var claimed []PendingJob
	for rows.Next() {
		var pj PendingJob
		if err := rows.Scan(&pj.JobID, &pj.OrganizationID, &pj.Semester, &pj.AcademicYear, &pj.QualityMode, &pj.TimeConfigJSON); err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		claimed = append(claimed, pj)
	}
	return claimed, rows.Err()
}
