package cpsat

import "time"

// studentConflictMode is HC4's three modes (spec §4.3).
type studentConflictMode int

const (
	studentConflictAll studentConflictMode = iota
	studentConflictCritical
	studentConflictNone
)

// strategy is one rung of the relaxation ladder (spec §4.3's table).
type strategy struct {
	name            string
	studentMode     studentConflictMode
	facultyConflict bool // HC1
	roomConflict    bool // HC2
	workload        bool // HC3
	perDayCap       bool // HC5
	fixedSlot       bool // HC6
	timeout         time.Duration
}

// ladder is the strategy sequence tried in order until one is feasible.
var ladder = []strategy{
	{
		name:            "full",
		studentMode:     studentConflictAll,
		facultyConflict: true,
		roomConflict:    true,
		workload:        true,
		perDayCap:       true,
		fixedSlot:       true,
		timeout:         60 * time.Second,
	},
	{
		name:            "relaxed_student",
		studentMode:     studentConflictCritical,
		facultyConflict: true,
		roomConflict:    true,
		workload:        true,
		perDayCap:       true,
		fixedSlot:       true,
		timeout:         60 * time.Second,
	},
	{
		name:            "faculty_room_only",
		studentMode:     studentConflictNone,
		facultyConflict: true,
		roomConflict:    true,
		workload:        false,
		perDayCap:       false,
		fixedSlot:       true,
		timeout:         45 * time.Second,
	},
	{
		name:            "minimal",
		studentMode:     studentConflictNone,
		facultyConflict: true,
		roomConflict:    false,
		workload:        false,
		perDayCap:       false,
		fixedSlot:       true,
		timeout:         30 * time.Second,
	},
}

// criticalOverlapThreshold is HC4 CRITICAL mode's cluster-course-count
// cutoff: a student is guarded only if enrolled in at least this many
// courses within the cluster (spec §4.3).
const criticalOverlapThreshold = 5

// startRung picks the ladder's entry point by cluster size: larger
// clusters start further down to bound worst-case search time, as the
// spec recommends ("smaller clusters should start at strategy 0; larger
// ones may start further down").
func startRung(clusterSize int) int {
	switch {
	case clusterSize <= 10:
		return 0
	case clusterSize <= 20:
		return 1
	default:
		return 2
	}
}
