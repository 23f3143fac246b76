// Package persistence implements the persister (spec §4.7): one atomic
// primary-store write of the full result plus one bounded cache-store
// summary, both built from a final assignment and three GA variants.
package persistence

import (
	"github.com/logixfirst/timetable-engine/internal/model"
)

// malformedThreshold is the fraction of all entries (sentinel entries
// included in the count) that may be malformed before the whole persist
// aborts (spec §4.7).
const malformedThreshold = 0.05

// TimetableEntry is one scheduled session, the JSON shape spec §6's
// timetable_data.timetable_entries array carries externally.
type TimetableEntry struct {
	CourseID     string   `json:"course_id"`
	CourseCode   string   `json:"course_code"`
	CourseName   string   `json:"course_name"`
	FacultyID    string   `json:"faculty_id"`
	RoomID       string   `json:"room_id"`
	RoomCode     string   `json:"room_code"`
	TimeSlotID   string   `json:"time_slot_id"`
	Day          int      `json:"day"`
	DayOfWeek    int      `json:"day_of_week"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	SessionNum   int      `json:"session_number"`
	StudentIDs   []string `json:"student_ids"`
	BatchIDs     []string `json:"batch_ids"`
}

// buildResult is the outcome of converting one Assignment into entries:
// the entry list plus malformed/sentinel counts for the 5% abort check.
type buildResult struct {
	entries        []TimetableEntry
	sentinelCount  int
	malformedCount int
	totalCount     int
}

// buildEntries converts an assignment into TimetableEntry rows, skipping
// sentinel (unscheduled) entries and guarding against malformed keys
// (spec §4.7's guard list).
func buildEntries(a model.Assignment, instance *model.ProblemInstance) buildResult {
	roomsByID := make(map[string]model.Room, len(instance.Rooms))
	for _, r := range instance.Rooms {
		roomsByID[r.ID] = r
	}
	slotsByID := make(map[string]model.TimeSlot, len(instance.TimeSlots))
	for _, ts := range instance.TimeSlots {
		slotsByID[ts.ID] = ts
	}

	var result buildResult
	for key, sa := range a {
		result.totalCount++

		if key.CourseID == "" {
			result.malformedCount++
			continue
		}
		if sa.Unscheduled() {
			result.sentinelCount++
			continue
		}
		if sa.TimeSlotID == "" || sa.RoomID == "" {
			result.malformedCount++
			continue
		}

		course, ok := instance.CourseByID(key.CourseID)
		if !ok {
			result.malformedCount++
			continue
		}
		room := roomsByID[sa.RoomID]
		slot := slotsByID[sa.TimeSlotID]

		result.entries = append(result.entries, TimetableEntry{
			CourseID:   course.ID,
			CourseCode: course.Code,
			CourseName: course.Name,
			FacultyID:  course.FacultyID,
			RoomID:     room.ID,
			RoomCode:   room.Code,
			TimeSlotID: slot.ID,
			Day:        slot.DayOfWeek,
			DayOfWeek:  slot.DayOfWeek,
			StartTime:  slot.StartTime,
			EndTime:    slot.EndTime,
			SessionNum: key.SessionIndex,
			StudentIDs: course.StudentIDs,
		})
	}
	return result
}

// malformedRatio is the malformed fraction against the full entry count
// (spec §4.7: "more than 5% of entries are malformed (not sentinel)" — the
// "(not sentinel)" qualifies which entries count as malformed in the
// numerator, not the denominator).
func (b buildResult) malformedRatio() float64 {
	if b.totalCount <= 0 {
		return 0
	}
	return float64(b.malformedCount) / float64(b.totalCount)
}

func (b buildResult) exceedsThreshold() bool {
	return b.malformedRatio() > malformedThreshold
}
