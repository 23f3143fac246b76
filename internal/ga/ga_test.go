package ga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/saga"
)

func smallInstance() (*model.ProblemInstance, model.Assignment) {
	courses := []model.Course{
		{ID: "c1", FacultyID: "f1", Duration: 1, RoomTypeRequired: "lecture", EnrolledCount: 20},
		{ID: "c2", FacultyID: "f2", Duration: 1, RoomTypeRequired: "lecture", EnrolledCount: 20},
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
	initial := model.Assignment{
		{CourseID: "c1", SessionIndex: 0}: {TimeSlotID: slots[0].ID, RoomID: "r1"},
		{CourseID: "c2", SessionIndex: 0}: {TimeSlotID: slots[1].ID, RoomID: "r2"},
	}
	return instance, initial
}

func TestOptimize_ProducesThreeDistinctVariants(t *testing.T) {
	instance, initial := smallInstance()
	opt := New(nil)
	token := saga.NewCancellationToken(context.Background(), nil, "job1")

	variants, err := opt.Optimize(context.Background(), initial, instance, nil, token)
	require.NoError(t, err)
	require.Len(t, variants, 3)

	labels := map[model.VariantLabel]bool{}
	for _, v := range variants {
		labels[v.Label] = true
		assert.NotEmpty(t, v.VariantID)
		assert.GreaterOrEqual(t, v.NormalizedScore, 0.0)
		assert.LessOrEqual(t, v.NormalizedScore, 100.0)
	}
	assert.Len(t, labels, 3)
}

func TestOptimize_MaxFitnessVariantScoresHundred(t *testing.T) {
	instance, initial := smallInstance()
	opt := New(nil)
	token := saga.NewCancellationToken(context.Background(), nil, "job1")

	variants, err := opt.Optimize(context.Background(), initial, instance, nil, token)
	require.NoError(t, err)

	maxFitness := variants[0].Fitness
	for _, v := range variants {
		if v.Fitness > maxFitness {
			maxFitness = v.Fitness
		}
	}
	found := false
	for _, v := range variants {
		if v.Fitness == maxFitness {
			assert.InDelta(t, 100.0, v.NormalizedScore, 1e-9)
			found = true
		}
	}
	assert.True(t, found)
}

func TestOptimize_EmptyInitialAssignmentReturnsNil(t *testing.T) {
	instance, _ := smallInstance()
	opt := New(nil)
	token := saga.NewCancellationToken(context.Background(), nil, "job1")

	variants, err := opt.Optimize(context.Background(), model.Assignment{}, instance, nil, token)
	require.NoError(t, err)
	assert.Nil(t, variants)
}
