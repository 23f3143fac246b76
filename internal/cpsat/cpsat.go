package cpsat

import (
	"context"

	"go.uber.org/zap"

	"github.com/logixfirst/timetable-engine/internal/model"
)

// Solver solves one cluster at a time via the relaxation ladder.
type Solver struct {
	log *zap.Logger
}

// New builds a cluster solver.
func New(log *zap.Logger) *Solver {
	return &Solver{log: log}
}

// SolveCluster attempts every ladder rung from the cluster's starting rung
// onward, returning the first feasible assignment. A nil assignment means
// every strategy failed (spec §4.3: the caller sentinel-fills).
func (s *Solver) SolveCluster(ctx context.Context, cluster []model.Course, instance *model.ProblemInstance) (model.Assignment, bool) {
	if len(cluster) == 0 {
		return model.Assignment{}, true
	}

	domain := BuildDomains(cluster, instance.Rooms, instance.TimeSlots)

	for rung := startRung(len(cluster)); rung < len(ladder); rung++ {
		strat := ladder[rung]
		assignment, ok := solveRung(ctx, cluster, domain, strat, instance.FacultyByID, instance.TimeSlots, instance.StudentCourseIndex)
		if ok {
			if s.log != nil {
				s.log.Debug("cluster solved", zap.String("strategy", strat.name), zap.Int("cluster_size", len(cluster)))
			}
			return assignment, true
		}
		if s.log != nil {
			s.log.Debug("strategy infeasible, relaxing", zap.String("strategy", strat.name), zap.Int("cluster_size", len(cluster)))
		}
	}

	return nil, false
}

// Sentinel builds an unscheduled assignment for every session of every
// course in the cluster, used when every ladder rung fails (spec §4.3,
// §4.4's per-cluster isolation).
func Sentinel(cluster []model.Course) model.Assignment {
	out := make(model.Assignment)
	for _, course := range cluster {
		for session := 0; session < course.Duration; session++ {
			key := model.SessionKey{CourseID: course.ID, SessionIndex: session}
			out[key] = model.SlotAssignment{TimeSlotID: model.UnscheduledSlot}
		}
	}
	return out
}
