package rl

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/logixfirst/timetable-engine/internal/cpsat"
	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/saga"
)

// epsilon is frozen per spec §4.6: minimal exploration, chosen for
// determinism rather than learning (the policy itself never updates).
const epsilon = 0.05

// refineSeed keeps the epsilon-greedy coin flips reproducible across runs
// of the same job, matching the GA and clusterer's seeded-determinism
// pattern.
const refineSeed = 42

// Refiner applies Stage 3's frozen-policy local repair.
type Refiner struct {
	log *zap.Logger
}

// New builds a refiner.
func New(log *zap.Logger) *Refiner {
	return &Refiner{log: log}
}

// Refine returns a refined assignment, or the input unchanged if no policy
// is loaded or an error occurs (spec §4.6's failure mode). Cancellation is
// checked between conflict-repair episodes.
func (r *Refiner) Refine(ctx context.Context, a model.Assignment, instance *model.ProblemInstance,
	policy *Policy, token *saga.CancellationToken) model.Assignment {

	if policy == nil {
		if r.log != nil {
			r.log.Debug("no rl policy loaded, stage 3 is a no-op")
		}
		return a
	}

	conflicts := findConflicts(a, instance)
	if len(conflicts) == 0 {
		return a
	}

	domain := cpsat.BuildDomains(instance.Courses, instance.Rooms, instance.TimeSlots)
	slotsPerDay := maxSlotsPerDay(instance)
	rng := rand.New(rand.NewPCG(refineSeed, uint64(len(conflicts))))

	out := a.Clone()
	for _, c := range conflicts {
		if err := saga.SafePoint(token, "rl:episode_boundary", func() error { return nil }); err != nil {
			break
		}

		candidates := candidateSwaps(c, out, domain, instance)
		if len(candidates) < minActionCandidates {
			continue
		}

		chosen := selectAction(c, candidates, policy, instance, slotsPerDay, rng)
		old := out[c.key]
		out[c.key] = model.SlotAssignment{TimeSlotID: chosen.TimeSlotID, RoomID: chosen.RoomID}

		if r.log != nil {
			r.log.Info("rl refinement applied",
				zap.String("session", c.key.String()),
				zap.String("conflict_kind", c.kind),
				zap.String("from_slot", old.TimeSlotID),
				zap.String("to_slot", chosen.TimeSlotID))
		}
	}

	return out
}

// selectAction is epsilon-greedy: with probability epsilon pick uniformly
// at random, otherwise the candidate with the highest Q-value, ties broken
// by candidate order (spec §4.6).
func selectAction(c conflict, candidates []cpsat.Candidate, policy *Policy, instance *model.ProblemInstance, slotsPerDay int, rng *rand.Rand) cpsat.Candidate {
	if rng.Float64() < epsilon {
		return candidates[rng.IntN(len(candidates))]
	}

	best := candidates[0]
	bestQ := policy.QValue(encodeState(c, best, instance, slotsPerDay), 0)
	for i := 1; i < len(candidates); i++ {
		state := encodeState(c, candidates[i], instance, slotsPerDay)
		q := policy.QValue(state, i)
		if q > bestQ {
			bestQ = q
			best = candidates[i]
		}
	}
	return best
}
