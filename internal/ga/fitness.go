package ga

import (
	"github.com/logixfirst/timetable-engine/internal/model"
)

// components is the four 0..100-scored fitness dimensions (spec §4.5)
// before the weight dot-product is applied.
type components struct {
	faculty float64
	room    float64
	spread  float64
	student float64
}

// score returns the weight dot-product, the GA's raw fitness value.
func (c components) score(w model.WeightVector) float64 {
	return c.faculty*w.Faculty + c.room*w.Room + c.spread*w.Spread + c.student*w.Student
}

// evalContext bundles the lookups fitness evaluation needs, computed once
// per run rather than rebuilt per individual.
type evalContext struct {
	slotsByID     map[string]model.TimeSlot
	roomsByID     map[string]model.Room
	courseByID    map[string]model.Course
	slotsPerDay   int
	studentCourse map[string]map[string]struct{} // course id -> student ids
}

func newEvalContext(instance *model.ProblemInstance) *evalContext {
	slotsByID := make(map[string]model.TimeSlot, len(instance.TimeSlots))
	maxPeriod := 0
	for _, ts := range instance.TimeSlots {
		slotsByID[ts.ID] = ts
		if ts.Period > maxPeriod {
			maxPeriod = ts.Period
		}
	}
	roomsByID := make(map[string]model.Room, len(instance.Rooms))
	for _, r := range instance.Rooms {
		roomsByID[r.ID] = r
	}
	courseByID := make(map[string]model.Course, len(instance.Courses))
	for _, c := range instance.Courses {
		courseByID[c.ID] = c
	}
	return &evalContext{
		slotsByID:     slotsByID,
		roomsByID:     roomsByID,
		courseByID:    courseByID,
		slotsPerDay:   maxPeriod + 1,
		studentCourse: instance.StudentCourseIndex,
	}
}

// evaluate scores one assignment across all four components.
func (ec *evalContext) evaluate(a model.Assignment) components {
	facultyScore := 100.0
	roomScore := 100.0
	slotCounts := make(map[string]int)
	studentSlot := make(map[string]map[string]int)

	for key, sa := range a {
		if sa.Unscheduled() {
			continue
		}
		slotCounts[sa.TimeSlotID]++

		if ts, ok := ec.slotsByID[sa.TimeSlotID]; ok {
			switch {
			case ts.Period == 0:
				facultyScore -= 5
			case ts.Period >= ec.slotsPerDay-2:
				facultyScore -= 3
			case ts.Period >= 1 && ts.Period <= 5:
				facultyScore += 1
			}
		}

		if r, ok := ec.roomsByID[sa.RoomID]; ok {
			if course, ok := ec.courseByID[key.CourseID]; ok {
				enrolled := float64(course.EnrolledCount)
				cap := float64(r.Capacity)
				switch {
				case enrolled > 0 && cap > enrolled*2:
					roomScore -= 5
				case enrolled > 0 && cap > enrolled*1.5:
					roomScore -= 2
				case enrolled > 0 && cap >= enrolled && cap <= enrolled*1.5:
					roomScore += 2
				}
			}
		}

		for sid := range ec.studentCourse[key.CourseID] {
			if studentSlot[sid] == nil {
				studentSlot[sid] = make(map[string]int)
			}
			studentSlot[sid][sa.TimeSlotID]++
		}
	}

	spreadScore := 100.0
	if len(slotCounts) > 0 {
		var sum, max int
		for _, n := range slotCounts {
			sum += n
			if n > max {
				max = n
			}
		}
		avg := float64(sum) / float64(len(slotCounts))
		if float64(max) > 2*avg {
			spreadScore -= (float64(max) - 2*avg) * 10
		}
	}

	studentScore := 100.0
	for _, slots := range studentSlot {
		for _, count := range slots {
			if count > 1 {
				studentScore -= float64(count-1) * 20
			}
		}
	}

	return components{
		faculty: clamp(facultyScore),
		room:    clamp(roomScore),
		spread:  clamp(spreadScore),
		student: clamp(studentScore),
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
