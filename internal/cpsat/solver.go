package cpsat

import (
	"context"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/logixfirst/timetable-engine/internal/model"
)

// searchSeed mirrors the spec's "deterministic search where the underlying
// library supports it" (§4.3): candidate order within a rung is shuffled
// with a fixed seed so repeated solves of the same cluster return the same
// assignment.
const searchSeed = 42

type sessionVar struct {
	key        model.SessionKey
	courseID   string
	facultyID  string
	candidates []Candidate
}

// searchState is the mutable bookkeeping threaded through backtracking.
type searchState struct {
	strategy strategy

	facultySlot map[string]map[string]bool // facultyID -> timeSlotID -> used
	roomSlot    map[string]map[string]bool // timeSlotID -> roomID -> used
	facultyHrs  map[string]int
	courseDay   map[string]map[int]int // courseID -> day -> count
	studentSlot map[string]map[string]int

	maxHours map[string]int // facultyID -> max_hours_per_week
	dayOf    map[string]int // timeSlotID -> day_of_week
	critical map[string]bool

	assignment model.Assignment
	deadline   time.Time
}

// solveRung runs one strategy rung's backtracking search over the cluster,
// returning a complete assignment or false if no feasible assignment was
// found within the rung's timeout.
func solveRung(ctx context.Context, cluster []model.Course, domain *Domain, rung strategy,
	faculty map[string]model.Faculty, timeSlots []model.TimeSlot,
	studentCourseIndex map[string]map[string]struct{}) (model.Assignment, bool) {

	vars := buildSessionVars(cluster, domain)
	if len(vars) == 0 {
		return model.Assignment{}, true
	}

	dayOf := make(map[string]int, len(timeSlots))
	for _, ts := range timeSlots {
		dayOf[ts.ID] = ts.DayOfWeek
	}

	maxHours := make(map[string]int, len(faculty))
	for id, f := range faculty {
		h := f.MaxHoursPerWeek
		if h <= 0 {
			h = 18
		}
		maxHours[id] = h
	}

	st := &searchState{
		strategy:    rung,
		facultySlot: make(map[string]map[string]bool),
		roomSlot:    make(map[string]map[string]bool),
		facultyHrs:  make(map[string]int),
		courseDay:   make(map[string]map[int]int),
		studentSlot: make(map[string]map[string]int),
		maxHours:    maxHours,
		dayOf:       dayOf,
		critical:    criticalStudents(cluster, studentCourseIndex),
		assignment:  make(model.Assignment, len(vars)),
		deadline:    time.Now().Add(rung.timeout),
	}

	// Most-constrained-variable first: fewer candidates, search sooner.
	sort.SliceStable(vars, func(i, j int) bool { return len(vars[i].candidates) < len(vars[j].candidates) })

	rng := rand.New(rand.NewPCG(searchSeed, uint64(len(vars))))
	for i := range vars {
		shuffled := append([]Candidate(nil), vars[i].candidates...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		vars[i].candidates = shuffled
	}

	ok := backtrack(ctx, st, vars, 0, studentCourseIndex)
	if !ok {
		return nil, false
	}
	return st.assignment, true
}

func buildSessionVars(cluster []model.Course, domain *Domain) []sessionVar {
	var vars []sessionVar
	for _, course := range cluster {
		for session := 0; session < course.Duration; session++ {
			key := model.SessionKey{CourseID: course.ID, SessionIndex: session}
			vars = append(vars, sessionVar{
				key:        key,
				courseID:   course.ID,
				facultyID:  course.FacultyID,
				candidates: domain.Candidates[key],
			})
		}
	}
	return vars
}

// criticalStudents marks students enrolled in at least criticalOverlapThreshold
// distinct courses within this cluster (HC4 CRITICAL mode).
func criticalStudents(cluster []model.Course, studentCourseIndex map[string]map[string]struct{}) map[string]bool {
	counts := make(map[string]int)
	for _, course := range cluster {
		for sid := range studentCourseIndex[course.ID] {
			counts[sid]++
		}
	}
	critical := make(map[string]bool)
	for sid, n := range counts {
		if n >= criticalOverlapThreshold {
			critical[sid] = true
		}
	}
	return critical
}

func backtrack(ctx context.Context, st *searchState, vars []sessionVar, idx int, studentCourseIndex map[string]map[string]struct{}) bool {
	if idx == len(vars) {
		return true
	}
	if time.Now().After(st.deadline) {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	default:
	}

	v := vars[idx]
	for _, cand := range v.candidates {
		if !canPlace(st, v, cand, studentCourseIndex) {
			continue
		}
		place(st, v, cand, studentCourseIndex)
		st.assignment[v.key] = model.SlotAssignment{TimeSlotID: cand.TimeSlotID, RoomID: cand.RoomID}

		if backtrack(ctx, st, vars, idx+1, studentCourseIndex) {
			return true
		}

		delete(st.assignment, v.key)
		unplace(st, v, cand, studentCourseIndex)
	}
	return false
}

func canPlace(st *searchState, v sessionVar, cand Candidate, studentCourseIndex map[string]map[string]struct{}) bool {
	if st.strategy.facultyConflict {
		if st.facultySlot[v.facultyID][cand.TimeSlotID] {
			return false
		}
	}
	if st.strategy.roomConflict {
		if st.roomSlot[cand.TimeSlotID][cand.RoomID] {
			return false
		}
	}
	if st.strategy.workload {
		if st.facultyHrs[v.facultyID]+1 > st.maxHours[v.facultyID] {
			return false
		}
	}
	if st.strategy.perDayCap {
		day := st.dayOf[cand.TimeSlotID]
		if st.courseDay[v.courseID][day]+1 > 2 {
			return false
		}
	}
	if st.strategy.studentMode != studentConflictNone {
		for sid := range studentCourseIndex[v.courseID] {
			if st.strategy.studentMode == studentConflictCritical && !st.critical[sid] {
				continue
			}
			if st.studentSlot[sid][cand.TimeSlotID] > 0 {
				return false
			}
		}
	}
	return true
}

func place(st *searchState, v sessionVar, cand Candidate, studentCourseIndex map[string]map[string]struct{}) {
	if st.facultySlot[v.facultyID] == nil {
		st.facultySlot[v.facultyID] = make(map[string]bool)
	}
	st.facultySlot[v.facultyID][cand.TimeSlotID] = true

	if st.roomSlot[cand.TimeSlotID] == nil {
		st.roomSlot[cand.TimeSlotID] = make(map[string]bool)
	}
	st.roomSlot[cand.TimeSlotID][cand.RoomID] = true

	st.facultyHrs[v.facultyID]++

	day := st.dayOf[cand.TimeSlotID]
	if st.courseDay[v.courseID] == nil {
		st.courseDay[v.courseID] = make(map[int]int)
	}
	st.courseDay[v.courseID][day]++

	for sid := range studentCourseIndex[v.courseID] {
		if st.studentSlot[sid] == nil {
			st.studentSlot[sid] = make(map[string]int)
		}
		st.studentSlot[sid][cand.TimeSlotID]++
	}
}

func unplace(st *searchState, v sessionVar, cand Candidate, studentCourseIndex map[string]map[string]struct{}) {
	delete(st.facultySlot[v.facultyID], cand.TimeSlotID)
	delete(st.roomSlot[cand.TimeSlotID], cand.RoomID)
	st.facultyHrs[v.facultyID]--

	day := st.dayOf[cand.TimeSlotID]
	st.courseDay[v.courseID][day]--

	for sid := range studentCourseIndex[v.courseID] {
		st.studentSlot[sid][cand.TimeSlotID]--
	}
}
