package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logixfirst/timetable-engine/internal/cluster"
	"github.com/logixfirst/timetable-engine/internal/cpsat"
	"github.com/logixfirst/timetable-engine/internal/executor"
	"github.com/logixfirst/timetable-engine/internal/ga"
	"github.com/logixfirst/timetable-engine/internal/hardware"
	"github.com/logixfirst/timetable-engine/internal/loader"
	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/persistence"
	"github.com/logixfirst/timetable-engine/internal/repository"
	"github.com/logixfirst/timetable-engine/internal/rl"
	"github.com/logixfirst/timetable-engine/internal/service"
)

var (
	errNoTimeConfig = errors.New("no row")
	errBoom         = errors.New("boom")
)

type noopCacheRepo struct{}

func (noopCacheRepo) Get(ctx context.Context, key string, dest interface{}) error { return nil }
func (noopCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
func (noopCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error { return nil }

func newControllerWithMockDB(t *testing.T) (*Controller, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	data := repository.NewDataRepository(sqlxDB)
	jobs := repository.NewJobRepository(sqlxDB)
	ld := loader.New(data, nil)
	profile := hardware.Profile{}
	clusterer := cluster.New(nil, profile)
	solver := cpsat.New(nil)
	exec := executor.New(solver, profile, nil, nil)
	optimizer := ga.New(nil)
	refiner := rl.New(nil)
	cache := service.NewCacheService(noopCacheRepo{}, nil, 0, nil, true)
	persister := persistence.New(jobs, cache, nil)

	ctrl := New(ld, clusterer, exec, optimizer, refiner, persister, jobs, nil, nil)
	return ctrl, mock, func() { db.Close() }
}

func expectHappyPathQueries(mock sqlmock.Sqlmock, jobID string) {
	mock.ExpectExec("UPDATE generation_jobs").WithArgs(jobID).WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("FROM courses").WillReturnRows(
		sqlmock.NewRows([]string{
			"course_id", "offering_id", "course_code", "course_name", "department_id",
			"faculty_id", "co_faculty_ids", "credits", "duration",
			"room_type_required", "required_features", "student_ids",
		}).AddRow("c1", "o1", "CS101", "Intro", "d1", "f1", "{}", 3, 1, "lecture", "{}", "{}"))

	mock.ExpectQuery("FROM faculty").WillReturnRows(
		sqlmock.NewRows([]string{"id", "code", "name", "department_id", "max_hours_per_week", "specialization"}).
			AddRow("f1", "F1", "Dr. A", "d1", 18, "CS"))

	mock.ExpectQuery("FROM rooms").WillReturnRows(
		sqlmock.NewRows([]string{"id", "code", "name", "room_type", "capacity", "features", "department_id", "allow_cross_department_usage"}).
			AddRow("r1", "R1", "Room 1", "lecture", 40, "{}", "d1", false))

	mock.ExpectQuery("FROM students").WillReturnRows(
		sqlmock.NewRows([]string{"id", "enrollment_number", "department_id", "semester"}))

	mock.ExpectQuery("FROM timetable_configurations").WillReturnError(errNoTimeConfig)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE generation_jobs").
		WithArgs(jobID, "completed", float64(100), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func testRequest(jobID string) Request {
	return Request{
		JobID:          jobID,
		OrganizationID: "org-1",
		Semester:       1,
		AcademicYear:   "2026",
		TimeConfig:     loader.TimeConfig{WorkingDays: 5, SlotsPerDay: 8},
		QualityMode:    "balanced",
	}
}

func TestController_Run_HappyPathCompletes(t *testing.T) {
	ctrl, mock, cleanup := newControllerWithMockDB(t)
	defer cleanup()
	expectHappyPathQueries(mock, "job-1")

	result, err := ctrl.Run(context.Background(), testRequest("job-1"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, result.Status)
	assert.Len(t, result.Variants, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestController_Run_DataLoadFailureMarksFailed(t *testing.T) {
	ctrl, mock, cleanup := newControllerWithMockDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE generation_jobs").WithArgs("job-2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM courses").WillReturnError(errBoom)
	mock.ExpectQuery("FROM faculty").WillReturnError(errBoom)
	mock.ExpectQuery("FROM rooms").WillReturnError(errBoom)
	mock.ExpectQuery("FROM students").WillReturnError(errBoom)
	mock.ExpectQuery("FROM timetable_configurations").WillReturnError(errNoTimeConfig)
	mock.ExpectExec("UPDATE generation_jobs").
		WithArgs("job-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := ctrl.Run(context.Background(), testRequest("job-2"))
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelOutcome_BeforeAndAfterCPSAT(t *testing.T) {
	before := make(completedSet)
	assert.Equal(t, model.StatusCancelled, cancelOutcome(before))

	after := make(completedSet)
	after.mark(model.StageCPSAT)
	assert.Equal(t, model.StatusPartialSuccess, cancelOutcome(after))
}

func TestBestAssignment_PicksHighestNormalizedScore(t *testing.T) {
	low := model.Assignment{{CourseID: "c1"}: {TimeSlotID: "s1"}}
	high := model.Assignment{{CourseID: "c2"}: {TimeSlotID: "s2"}}
	variants := []model.Variant{
		{NormalizedScore: 40, Assignment: low},
		{NormalizedScore: 90, Assignment: high},
	}
	assert.Equal(t, high, bestAssignment(variants))
}
