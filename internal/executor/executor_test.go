package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logixfirst/timetable-engine/internal/cpsat"
	"github.com/logixfirst/timetable-engine/internal/hardware"
	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/saga"
)

func twoClusterInstance() (*model.ProblemInstance, [][]model.Course) {
	courses := []model.Course{
		{ID: "c1", FacultyID: "f1", Duration: 1, RoomTypeRequired: "lecture", EnrolledCount: 20},
		{ID: "c2", FacultyID: "f2", Duration: 1, RoomTypeRequired: "lecture", EnrolledCount: 20},
	}
	faculty := map[string]model.Faculty{
		"f1": {ID: "f1", MaxHoursPerWeek: 18},
		"f2": {ID: "f2", MaxHoursPerWeek: 18},
	}
	rooms := []model.Room{
		{ID: "r1", RoomType: "lecture", Capacity: 25},
		{ID: "r2", RoomType: "lecture", Capacity: 25},
	}
	var slots []model.TimeSlot
	for i := 0; i < 8; i++ {
		slots = append(slots, model.TimeSlot{ID: model.SessionKey{CourseID: "slot", SessionIndex: i}.String(), DayOfWeek: i / 4, Period: i % 4})
	}
	instance := &model.ProblemInstance{
		Courses:            courses,
		FacultyByID:        faculty,
		Rooms:              rooms,
		TimeSlots:          slots,
		StudentCourseIndex: map[string]map[string]struct{}{},
	}
	clusters := [][]model.Course{{courses[0]}, {courses[1]}}
	return instance, clusters
}

func TestRunStage2_MergesNonOverlappingClusters(t *testing.T) {
	instance, clusters := twoClusterInstance()
	solver := cpsat.New(nil)
	ex := New(solver, hardware.Profile{PhysicalCores: 4, AvailableRAMGB: 8}, nil, nil)
	token := saga.NewCancellationToken(context.Background(), nil, "job1")

	result, err := ex.RunStage2(context.Background(), clusters, instance, nil, token)
	require.NoError(t, err)
	assert.Len(t, result, 2)
}

func TestRunStage2_EmptyClustersReturnsEmptyAssignment(t *testing.T) {
	instance, _ := twoClusterInstance()
	solver := cpsat.New(nil)
	ex := New(solver, hardware.Profile{PhysicalCores: 4, AvailableRAMGB: 8}, nil, nil)
	token := saga.NewCancellationToken(context.Background(), nil, "job1")

	result, err := ex.RunStage2(context.Background(), nil, instance, nil, token)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestRunStage2_SequentialFallbackUnderLowMemory(t *testing.T) {
	instance, clusters := twoClusterInstance()
	solver := cpsat.New(nil)
	ex := New(solver, hardware.Profile{PhysicalCores: 4, AvailableRAMGB: 1}, nil, nil)
	token := saga.NewCancellationToken(context.Background(), nil, "job1")

	result, err := ex.RunStage2(context.Background(), clusters, instance, nil, token)
	require.NoError(t, err)
	assert.Len(t, result, 2)
}
