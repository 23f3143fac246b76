package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJobRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestJobRepository_CompleteTxCommits(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE generation_jobs").
		WithArgs("job-1", "completed", float64(100), []byte(`{"ok":true}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.CompleteTx(ctx, tx, "job-1", "completed", 100, []byte(`{"ok":true}`)))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_MarkFailed(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	mock.ExpectExec("UPDATE generation_jobs").
		WithArgs("job-1", "boom").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), "job-1", "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_MarkCancelled(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	mock.ExpectExec("UPDATE generation_jobs").
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkCancelled(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_MarkRunning(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	mock.ExpectExec("UPDATE generation_jobs").
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkRunning(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ClaimPendingReturnsRows(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	mock.ExpectQuery("UPDATE generation_jobs").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(
			[]string{"job_id", "organization_id", "semester", "academic_year", "quality_mode", "time_config"},
		).AddRow("job-1", "org-1", 1, "2026", "balanced", []byte(`{"working_days":5}`)))

	claimed, err := repo.ClaimPending(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "job-1", claimed[0].JobID)
	assert.Equal(t, "org-1", claimed[0].OrganizationID)
	assert.Equal(t, 1, claimed[0].Semester)
	assert.NoError(t, mock.ExpectationsWereMet())
}
