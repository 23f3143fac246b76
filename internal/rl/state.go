package rl

import (
	"fmt"

	"github.com/logixfirst/timetable-engine/internal/cpsat"
	"github.com/logixfirst/timetable-engine/internal/model"
)

// minActionCandidates and maxActionCandidates bound the action space per
// refinement call (spec §4.6: "2-5 valid local swaps").
const (
	minActionCandidates = 2
	maxActionCandidates = 5
)

// conflict is one detected hard-constraint violation eligible for local
// repair: a faculty or room double-booking at a shared time slot.
type conflict struct {
	key      model.SessionKey
	kind     string // "faculty" or "room"
	periodOf int
}

// findConflicts scans the assignment for faculty and room double-bookings,
// returning one conflict entry per offending session (the later session in
// iteration order is the one offered for repair).
func findConflicts(a model.Assignment, instance *model.ProblemInstance) []conflict {
	facultySlot := make(map[string]map[string]model.SessionKey)
	roomSlot := make(map[string]map[string]model.SessionKey)

	var conflicts []conflict
	for key, sa := range a {
		if sa.Unscheduled() {
			continue
		}
		course, ok := instance.CourseByID(key.CourseID)
		if !ok {
			continue
		}

		if facultySlot[course.FacultyID] == nil {
			facultySlot[course.FacultyID] = make(map[string]model.SessionKey)
		}
		if _, dup := facultySlot[course.FacultyID][sa.TimeSlotID]; dup {
			conflicts = append(conflicts, conflict{key: key, kind: "faculty"})
		} else {
			facultySlot[course.FacultyID][sa.TimeSlotID] = key
		}

		if roomSlot[sa.TimeSlotID] == nil {
			roomSlot[sa.TimeSlotID] = make(map[string]model.SessionKey)
		}
		if _, dup := roomSlot[sa.TimeSlotID][sa.RoomID]; dup {
			conflicts = append(conflicts, conflict{key: key, kind: "room"})
		} else {
			roomSlot[sa.TimeSlotID][sa.RoomID] = key
		}
	}
	return conflicts
}

// candidateSwaps returns up to maxActionCandidates alternative placements
// for the conflicted session that introduce no fresh faculty or room
// double-booking against the rest of the (unmodified) assignment.
func candidateSwaps(c conflict, a model.Assignment, domain *cpsat.Domain, instance *model.ProblemInstance) []cpsat.Candidate {
	course, ok := instance.CourseByID(c.key.CourseID)
	if !ok {
		return nil
	}

	occupiedFacultySlots := make(map[string]bool)
	occupiedRoomSlots := make(map[string]bool)
	for key, sa := range a {
		if key == c.key || sa.Unscheduled() {
			continue
		}
		if other, ok := instance.CourseByID(key.CourseID); ok && other.FacultyID == course.FacultyID {
			occupiedFacultySlots[sa.TimeSlotID] = true
		}
		occupiedRoomSlots[sa.TimeSlotID+"|"+sa.RoomID] = true
	}

	var out []cpsat.Candidate
	for _, cand := range domain.Candidates[c.key] {
		if occupiedFacultySlots[cand.TimeSlotID] {
			continue
		}
		if occupiedRoomSlots[cand.TimeSlotID+"|"+cand.RoomID] {
			continue
		}
		out = append(out, cand)
		if len(out) >= maxActionCandidates {
			break
		}
	}
	return out
}

// encodeState builds the discrete, fixed state key for one conflict and
// candidate action: conflict kind, the candidate's period band, and a
// room-utilization band. The key has exactly these three discrete
// dimensions and no others.
func encodeState(c conflict, cand cpsat.Candidate, instance *model.ProblemInstance, slotsPerDay int) string {
	periodBand := "mid"
	if ts, ok := slotByID(instance, cand.TimeSlotID); ok {
		switch {
		case ts.Period == 0:
			periodBand = "early"
		case ts.Period >= slotsPerDay-2:
			periodBand = "late"
		}
	}

	utilBand := "fit"
	if room, ok := roomByID(instance, cand.RoomID); ok {
		if course, ok := instance.CourseByID(c.key.CourseID); ok && course.EnrolledCount > 0 {
			ratio := float64(room.Capacity) / float64(course.EnrolledCount)
			switch {
			case ratio > 1.5:
				utilBand = "over"
			case ratio < 1.0:
				utilBand = "under"
			}
		}
	}

	return fmt.Sprintf("%s|%s|%s", c.kind, periodBand, utilBand)
}

func slotByID(instance *model.ProblemInstance, id string) (model.TimeSlot, bool) {
	for _, ts := range instance.TimeSlots {
		if ts.ID == id {
			return ts, true
		}
	}
	return model.TimeSlot{}, false
}

func roomByID(instance *model.ProblemInstance, id string) (model.Room, bool) {
	for _, r := range instance.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return model.Room{}, false
}

func maxSlotsPerDay(instance *model.ProblemInstance) int {
	max := 0
	for _, ts := range instance.TimeSlots {
		if ts.Period > max {
			max = ts.Period
		}
	}
	return max + 1
}
