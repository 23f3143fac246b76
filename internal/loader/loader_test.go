package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTimeSlots_PopulatesClockTimesAndResetsPerDay(t *testing.T) {
	cfg := TimeConfig{
		WorkingDays:         2,
		SlotsPerDay:         4,
		StartTime:           "08:00",
		SlotDurationMinutes: 60,
		LunchBreakEnabled:   true,
		LunchBreakStart:     "12:00",
		LunchBreakEnd:       "13:00",
	}
	slots := GenerateTimeSlots(cfg)
	require.Len(t, slots, 8)

	day0 := slots[:4]
	assert.Equal(t, "08:00", day0[0].StartTime)
	assert.Equal(t, "09:00", day0[0].EndTime)
	assert.Equal(t, "11:00", day0[3].StartTime)
	assert.Equal(t, "12:00", day0[3].EndTime)

	day1 := slots[4:]
	assert.Equal(t, "08:00", day1[0].StartTime, "clock resets at the top of every day")
	assert.Equal(t, 1, day1[0].DayOfWeek)
}

func TestGenerateTimeSlots_MarksLunchOverlapWithoutOmittingTheSlot(t *testing.T) {
	cfg := TimeConfig{
		WorkingDays:         1,
		SlotsPerDay:         6,
		StartTime:           "08:00",
		SlotDurationMinutes: 60,
		LunchBreakEnabled:   true,
		LunchBreakStart:     "12:00",
		LunchBreakEnd:       "13:00",
	}
	slots := GenerateTimeSlots(cfg)
	require.Len(t, slots, 6) // lunch-overlapping slot stays in the grid, just flagged

	var lunchSlots []int
	for i, s := range slots {
		if s.IsLunch {
			lunchSlots = append(lunchSlots, i)
		}
	}
	require.Len(t, lunchSlots, 1)
	assert.Equal(t, "12:00", slots[lunchSlots[0]].StartTime)
	assert.Equal(t, "13:00", slots[lunchSlots[0]].EndTime)
}

func TestGenerateTimeSlots_DisabledLunchNeverFlagsASlot(t *testing.T) {
	cfg := TimeConfig{
		WorkingDays:         1,
		SlotsPerDay:         6,
		StartTime:           "08:00",
		SlotDurationMinutes: 60,
		LunchBreakEnabled:   false,
	}
	for _, s := range GenerateTimeSlots(cfg) {
		assert.False(t, s.IsLunch)
	}
}

func TestGenerateTimeSlots_FallsBackOnUnparsableOrEmptyTimes(t *testing.T) {
	cfg := TimeConfig{WorkingDays: 1, SlotsPerDay: 1}
	slots := GenerateTimeSlots(cfg)
	require.Len(t, slots, 1)
	assert.Equal(t, "08:00", slots[0].StartTime)
	assert.Equal(t, "09:00", slots[0].EndTime)
}

func TestParseClockMinutes_TrimsSecondsSuffix(t *testing.T) {
	assert.Equal(t, 9*60+30, parseClockMinutes("09:30:00", -1))
	assert.Equal(t, -1, parseClockMinutes("not-a-time", -1))
}
