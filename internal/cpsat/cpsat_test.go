package cpsat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logixfirst/timetable-engine/internal/model"
)

func tinyInstance() *model.ProblemInstance {
	courses := []model.Course{
		{ID: "c1", FacultyID: "f1", DepartmentID: "d1", Duration: 1, RoomTypeRequired: "lecture", EnrolledCount: 30},
		{ID: "c2", FacultyID: "f2", DepartmentID: "d1", Duration: 1, RoomTypeRequired: "lecture", EnrolledCount: 30},
	}
	faculty := map[string]model.Faculty{
		"f1": {ID: "f1", MaxHoursPerWeek: 18},
		"f2": {ID: "f2", MaxHoursPerWeek: 18},
	}
	rooms := []model.Room{
		{ID: "r1", RoomType: "lecture", Capacity: 35, DepartmentID: "d1"},
		{ID: "r2", RoomType: "lecture", Capacity: 35, DepartmentID: "d1"},
	}
	var slots []model.TimeSlot
	id := 0
	for day := 0; day < 2; day++ {
		for period := 0; period < 4; period++ {
			slots = append(slots, model.TimeSlot{ID: model.SessionKey{CourseID: "slot", SessionIndex: id}.String(), DayOfWeek: day, Period: period})
			id++
		}
	}

	index := map[string]map[string]struct{}{
		"c1": {"s1": {}},
		"c2": {"s2": {}},
	}

	return &model.ProblemInstance{
		Courses:            courses,
		FacultyByID:        faculty,
		Rooms:              rooms,
		TimeSlots:          slots,
		StudentCourseIndex: index,
	}
}

func TestSolveCluster_FeasibleTinyInstance(t *testing.T) {
	instance := tinyInstance()
	solver := New(nil)

	assignment, ok := solver.SolveCluster(context.Background(), instance.Courses, instance)
	require.True(t, ok)
	assert.Len(t, assignment, 2)

	usedRoomSlot := make(map[string]bool)
	for _, sa := range assignment {
		key := sa.TimeSlotID + "|" + sa.RoomID
		assert.False(t, usedRoomSlot[key], "room double-booked")
		usedRoomSlot[key] = true
	}
}

func TestSolveCluster_EmptyClusterIsTriviallyFeasible(t *testing.T) {
	instance := tinyInstance()
	solver := New(nil)

	assignment, ok := solver.SolveCluster(context.Background(), nil, instance)
	require.True(t, ok)
	assert.Empty(t, assignment)
}

func TestSentinel_CoversEverySession(t *testing.T) {
	cluster := []model.Course{{ID: "c1", Duration: 3}}
	s := Sentinel(cluster)
	require.Len(t, s, 3)
	for _, sa := range s {
		assert.True(t, sa.Unscheduled())
	}
}

func TestSolveCluster_FixedSlotPinned(t *testing.T) {
	instance := tinyInstance()
	instance.Courses[0].RequiredFeatures = []string{"fixed_slot:" + instance.TimeSlots[0].ID}

	solver := New(nil)
	assignment, ok := solver.SolveCluster(context.Background(), instance.Courses, instance)
	require.True(t, ok)

	key := model.SessionKey{CourseID: "c1", SessionIndex: 0}
	assert.Equal(t, instance.TimeSlots[0].ID, assignment[key].TimeSlotID)
}
