package rl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/saga"
)

func conflictedInstance() (*model.ProblemInstance, model.Assignment) {
	courses := []model.Course{
		{ID: "c1", FacultyID: "f1", Duration: 1, RoomTypeRequired: "lecture", EnrolledCount: 20},
		{ID: "c2", FacultyID: "f1", Duration: 1, RoomTypeRequired: "lecture", EnrolledCount: 20},
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
		Rooms:              rooms,
		TimeSlots:          slots,
		StudentCourseIndex: map[string]map[string]struct{}{},
	}
	// Both courses share faculty f1 and are pinned to the same slot: a
	// faculty conflict findConflicts must detect.
	assignment := model.Assignment{
		{CourseID: "c1", SessionIndex: 0}: {TimeSlotID: slots[0].ID, RoomID: "r1"},
		{CourseID: "c2", SessionIndex: 0}: {TimeSlotID: slots[0].ID, RoomID: "r2"},
	}
	return instance, assignment
}

func TestRefine_NoPolicyIsNoOp(t *testing.T) {
	instance, assignment := conflictedInstance()
	r := New(nil)
	token := saga.NewCancellationToken(context.Background(), nil, "job1")

	out := r.Refine(context.Background(), assignment, instance, nil, token)
	assert.Equal(t, assignment, out)
}

func TestFindConflicts_DetectsFacultyDoubleBooking(t *testing.T) {
	instance, assignment := conflictedInstance()
	conflicts := findConflicts(assignment, instance)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "faculty", conflicts[0].kind)
}

func TestRefine_RepairsConflictWhenPolicyPresent(t *testing.T) {
	instance, assignment := conflictedInstance()
	policy := &Policy{Semester: 1, QTable: map[string][]float64{}}
	r := New(nil)
	token := saga.NewCancellationToken(context.Background(), nil, "job1")

	out := r.Refine(context.Background(), assignment, instance, policy, token)
	require.Len(t, out, 2)

	conflicts := findConflicts(out, instance)
	assert.Empty(t, conflicts)
}
