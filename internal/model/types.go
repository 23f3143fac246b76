// Package model holds the shared, language-level types every stage of the
// generation pipeline reads or produces. ProblemInstance is built once by
// the loader and shared read-only with every later stage; Assignment maps
// change owner (move semantics, enforced by convention) as they pass from
// stage to stage.
package model

import "fmt"

// UnscheduledSlot is the reserved sentinel slot id recorded when a cluster
// could not be solved by any strategy in the relaxation ladder. It is a
// reserved plain string; the loader's generated slot ids are decimal
// indices, so a slot lookup against the real TimeSlot set never matches it.
const UnscheduledSlot = "__UNSCHEDULED__"

// Course is a single schedulable teaching unit: a lecture section, a split
// of an oversized offering, or an original course offering unchanged.
type Course struct {
	ID               string
	Code             string
	Name             string
	DepartmentID     string
	FacultyID        string
	Credits          int
	Duration         int // sessions per week, >= 1
	RoomTypeRequired string
	RequiredFeatures []string // ordered; may include "fixed_slot:<slot_id>"
	StudentIDs       []string
	EnrolledCount    int
}

// FixedSlot returns the slot id pinned by a "fixed_slot:<id>" feature
// marker, and whether one was present.
func (c Course) FixedSlot() (string, bool) {
	const prefix = "fixed_slot:"
	for _, f := range c.RequiredFeatures {
		if len(f) > len(prefix) && f[:len(prefix)] == prefix {
			return f[len(prefix):], true
		}
	}
	return "", false
}

// Faculty is a teaching staff member.
type Faculty struct {
	ID              string
	Code            string
	Name            string
	DepartmentID    string
	MaxHoursPerWeek int // default 18
	Specialization  string
}

// Room is a bookable physical space.
type Room struct {
	ID                       string
	Code                     string
	Name                     string
	RoomType                 string
	Capacity                 int // > 0
	Features                 []string
	DepartmentID             string // "" means unset/nullable
	AllowCrossDepartmentUsage bool
}

// TimeSlot is one procedurally generated weekly period.
type TimeSlot struct {
	ID         string
	DayOfWeek  int
	Period     int
	StartTime  string
	EndTime    string
	IsLunch    bool
}

// Student is an enrolled learner.
type Student struct {
	ID                string
	EnrollmentNumber  string
	DepartmentID      string
	Semester          int
}

// SessionKey identifies one weekly meeting of one course.
type SessionKey struct {
	CourseID     string
	SessionIndex int
}

// SlotAssignment is where one session meets.
type SlotAssignment struct {
	TimeSlotID string
	RoomID     string
}

// Unscheduled reports whether this assignment carries the sentinel slot.
func (s SlotAssignment) Unscheduled() bool { return s.TimeSlotID == UnscheduledSlot }

// Assignment maps every scheduled session to where it meets. Single-writer
// per stage; ownership transfers to the next stage on exit.
type Assignment map[SessionKey]SlotAssignment

// Clone returns an independent copy, used where a stage (GA mutation,
// refiner candidate generation) must not mutate its input in place.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ProblemInstance is the immutable input to every stage after the loader.
type ProblemInstance struct {
	OrgID             string
	Semester          int
	Courses           []Course
	FacultyByID       map[string]Faculty
	Rooms             []Room
	TimeSlots         []TimeSlot
	Students          []Student
	// StudentCourseIndex maps course id to the set of enrolled student ids.
	// Computed once at loader time and shared by reference with every
	// cluster solve; must never be rebuilt per cluster.
	StudentCourseIndex map[string]map[string]struct{}
}

// CourseByID returns the course with the given id and whether it exists.
func (p *ProblemInstance) CourseByID(id string) (Course, bool) {
	for _, c := range p.Courses {
		if c.ID == id {
			return c, true
		}
	}
	return Course{}, false
}

// WeightVector is a soft-constraint objective profile; components sum to 1.
type WeightVector struct {
	Faculty float64
	Room    float64
	Spread  float64
	Student float64
}

// VariantLabel names one of the three fixed GA weight profiles.
type VariantLabel string

const (
	VariantFacultyFriendly VariantLabel = "Faculty-Friendly"
	VariantRoomEfficient   VariantLabel = "Room-Efficient"
	VariantStudentSpread   VariantLabel = "Student-Spread"
	VariantPartialCPSAT    VariantLabel = "Partial (CP-SAT only)"
)

// Variant is one candidate output schedule.
type Variant struct {
	VariantID         string
	Label             VariantLabel
	Weights           WeightVector
	Fitness           float64
	NormalizedScore   float64 // 0..100
	Assignment        Assignment
	ConflictsCount    int
	RoomUtilizationPct float64
}

// JobStatus is the GenerationJob state machine's current state (spec §4.8).
type JobStatus string

const (
	StatusPending         JobStatus = "pending"
	StatusRunning         JobStatus = "running"
	StatusCancelling      JobStatus = "cancelling"
	StatusCancelled       JobStatus = "cancelled"
	StatusCompleted       JobStatus = "completed"
	StatusFailed          JobStatus = "failed"
	StatusPartialSuccess  JobStatus = "partial_success"
)

// GenerationJob is the primary-store row driving and recording one run.
type GenerationJob struct {
	JobID        string
	OrgID        string
	Status       JobStatus
	Progress     float64
	AcademicYear string
	Semester     int
	ErrorMessage string
}

// StageName identifies one of the saga's completion-tracked stages.
type StageName string

const (
	StageDataLoad  StageName = "data_load"
	StageClustering StageName = "clustering"
	StageCPSAT     StageName = "cpsat"
	StageGA        StageName = "ga"
	StageRL        StageName = "rl"
	StagePersistence StageName = "persistence"
)

func (k SessionKey) String() string {
	return fmt.Sprintf("%s#%d", k.CourseID, k.SessionIndex)
}
