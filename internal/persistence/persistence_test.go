package persistence

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/repository"
	"github.com/logixfirst/timetable-engine/internal/service"
)

type fakeCacheRepo struct {
	lastKey   string
	lastValue interface{}
}

func (f *fakeCacheRepo) Get(ctx context.Context, key string, dest interface{}) error { return nil }
func (f *fakeCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.lastKey = key
	f.lastValue = value
	return nil
}
func (f *fakeCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error { return nil }

func smallInstanceWithVariant() (*model.ProblemInstance, model.Assignment, []model.Variant) {
	courses := []model.Course{
		{ID: "c1", Code: "CS101", Name: "Intro", FacultyID: "f1"},
	}
	rooms := []model.Room{{ID: "r1", Code: "R1"}}
	slots := []model.TimeSlot{{ID: "s1", StartTime: "09:00", EndTime: "10:00"}}
	instance := &model.ProblemInstance{Courses: courses, Rooms: rooms, TimeSlots: slots}

	assignment := model.Assignment{
		{CourseID: "c1", SessionIndex: 0}: {TimeSlotID: "s1", RoomID: "r1"},
	}
	variants := []model.Variant{
		{VariantID: "v1", Label: model.VariantFacultyFriendly, Assignment: assignment, NormalizedScore: 100, Fitness: 50},
	}
	return instance, assignment, variants
}

func TestPersist_WritesPrimaryAndCache(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE generation_jobs").
		WithArgs("job-1", "completed", float64(100), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	jobs := repository.NewJobRepository(sqlxDB)
	fake := &fakeCacheRepo{}
	cache := service.NewCacheService(fake, nil, 0, nil, true)
	p := New(jobs, cache, nil)

	instance, assignment, variants := smallInstanceWithVariant()
	err = p.Persist(context.Background(), "job-1", assignment, variants, instance, model.StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, "result:job:job-1", fake.lastKey)
	summary, ok := fake.lastValue.(Summary)
	require.True(t, ok)
	assert.Len(t, summary.Variants, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_AbortsAboveMalformedThreshold(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	jobs := repository.NewJobRepository(sqlxDB)
	fake := &fakeCacheRepo{}
	cache := service.NewCacheService(fake, nil, 0, nil, true)
	p := New(jobs, cache, nil)

	instance := &model.ProblemInstance{}
	assignment := model.Assignment{
		{CourseID: "", SessionIndex: 0}: {TimeSlotID: "s1", RoomID: "r1"},
	}

	err = p.Persist(context.Background(), "job-1", assignment, nil, instance, model.StatusCompleted)
	require.Error(t, err)
}

func TestBuildEntries_SkipsSentinelAndMalformed(t *testing.T) {
	instance, assignment, _ := smallInstanceWithVariant()
	assignment[model.SessionKey{CourseID: "c1", SessionIndex: 1}] = model.SlotAssignment{TimeSlotID: model.UnscheduledSlot}

	result := buildEntries(assignment, instance)
	assert.Len(t, result.entries, 1)
	assert.Equal(t, 1, result.sentinelCount)
	assert.Equal(t, 0, result.malformedCount)
}

func TestCountConflicts_DetectsDoubleBooking(t *testing.T) {
	instance, _, _ := smallInstanceWithVariant()
	instance.Courses = append(instance.Courses, model.Course{ID: "c2", FacultyID: "f1"})

	assignment := model.Assignment{
		{CourseID: "c1", SessionIndex: 0}: {TimeSlotID: "s1", RoomID: "r1"},
		{CourseID: "c2", SessionIndex: 0}: {TimeSlotID: "s1", RoomID: "r1"},
	}
	assert.Equal(t, 2, countConflicts(assignment, instance))
}
