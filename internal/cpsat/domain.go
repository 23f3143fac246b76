// Package cpsat implements Stage 2: per-cluster constraint-satisfaction
// solving with a progressive relaxation ladder (spec §4.3). No CP-SAT /
// OR-tools binding exists anywhere in the reference pack (see
// SPEC_FULL.md §4.3a and DESIGN.md's OQ-1); this package is a from-scratch
// pure-Go substitute: domain precomputation + constraint propagation +
// seeded randomized backtracking, run per strategy in the ladder.
package cpsat

import (
	"sort"
	"strings"

	"github.com/logixfirst/timetable-engine/internal/model"
)

// maxCandidateRooms bounds how many rooms are offered per (course, session)
// candidate domain, by best capacity fit (spec §4.3).
const maxCandidateRooms = 10

// Candidate is one valid (time_slot_id, room_id) tuple for a session.
type Candidate struct {
	TimeSlotID string
	RoomID     string
}

// Domain holds every session's precomputed candidate list, keyed by
// SessionKey, plus the fixed-slot pin when a course declares one.
type Domain struct {
	Candidates map[model.SessionKey][]Candidate
	FixedSlot  map[string]string // course id -> pinned time slot id
}

// BuildDomains computes the candidate set for every (course, session) pair
// in the cluster (spec §4.3's domain precomputation). Exported so Stage 2b
// (the GA) can draw mutation candidates from the same valid domains Stage 2
// solved against.
func BuildDomains(cluster []model.Course, rooms []model.Room, timeSlots []model.TimeSlot) *Domain {
	usableSlots := make([]model.TimeSlot, 0, len(timeSlots))
	for _, ts := range timeSlots {
		if !ts.IsLunch {
			usableSlots = append(usableSlots, ts)
		}
	}

	d := &Domain{
		Candidates: make(map[model.SessionKey][]Candidate),
		FixedSlot:  make(map[string]string),
	}

	for _, course := range cluster {
		candidateRooms := roomsForCourse(course, rooms)

		fixedSlot, hasFixed := course.FixedSlot()
		if hasFixed {
			d.FixedSlot[course.ID] = fixedSlot
		}

		for session := 0; session < course.Duration; session++ {
			key := model.SessionKey{CourseID: course.ID, SessionIndex: session}
			var candidates []Candidate
			for _, ts := range usableSlots {
				if hasFixed && ts.ID != fixedSlot {
					continue
				}
				for _, r := range candidateRooms {
					candidates = append(candidates, Candidate{TimeSlotID: ts.ID, RoomID: r.ID})
				}
			}
			d.Candidates[key] = candidates
		}
	}

	return d
}

// roomsForCourse filters and ranks rooms per spec §4.3's four-stage filter,
// widening (relaxing feature/department constraints) if the strict filter
// is empty, and finally capping to maxCandidateRooms by best fit.
func roomsForCourse(course model.Course, rooms []model.Room) []model.Room {
	strict := filterRooms(course, rooms, true, true)
	if len(strict) > 0 {
		return rankRooms(course, strict)
	}

	relaxedFeatures := filterRooms(course, rooms, true, false)
	if len(relaxedFeatures) > 0 {
		return rankRooms(course, relaxedFeatures)
	}

	relaxedDept := filterRooms(course, rooms, false, false)
	return rankRooms(course, relaxedDept)
}

func filterRooms(course model.Course, rooms []model.Room, requireDept, requireFeatures bool) []model.Room {
	var out []model.Room
	enrolled := float64(course.EnrolledCount)
	for _, r := range rooms {
		if enrolled > 0 {
			if !(enrolled*0.9 <= float64(r.Capacity) && float64(r.Capacity) <= enrolled*1.5) {
				continue
			}
		}
		if course.RoomTypeRequired != "" && !strings.EqualFold(r.RoomType, course.RoomTypeRequired) {
			continue
		}
		if requireDept && course.DepartmentID != "" {
			if r.DepartmentID != course.DepartmentID && !r.AllowCrossDepartmentUsage {
				continue
			}
		}
		if requireFeatures && !hasRequiredFeatures(course, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func hasRequiredFeatures(course model.Course, r model.Room) bool {
	roomFeatures := make(map[string]struct{}, len(r.Features))
	for _, f := range r.Features {
		roomFeatures[f] = struct{}{}
	}
	for _, f := range course.RequiredFeatures {
		if strings.HasPrefix(f, "fixed_slot:") {
			continue
		}
		if _, ok := roomFeatures[f]; !ok {
			return false
		}
	}
	return true
}

// rankRooms orders rooms by best capacity fit and caps the result.
func rankRooms(course model.Course, rooms []model.Room) []model.Room {
	enrolled := course.EnrolledCount
	sorted := append([]model.Room(nil), rooms...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di := absInt(sorted[i].Capacity - enrolled)
		dj := absInt(sorted[j].Capacity - enrolled)
		return di < dj
	})
	if len(sorted) > maxCandidateRooms {
		sorted = sorted[:maxCandidateRooms]
	}
	return sorted
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
