// Package ga implements Stage 2b: genetic-algorithm soft-constraint
// optimization, run once per fixed weight profile to produce three
// candidate variants (spec §4.5).
package ga

import (
	"context"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/logixfirst/timetable-engine/internal/cpsat"
	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/progress"
	"github.com/logixfirst/timetable-engine/internal/saga"
	appErrors "github.com/logixfirst/timetable-engine/pkg/errors"
)

// Optimizer runs the three-variant GA pass over one CP-SAT assignment.
type Optimizer struct {
	log *zap.Logger
}

// New builds a variant optimizer.
func New(log *zap.Logger) *Optimizer {
	return &Optimizer{log: log}
}

// Optimize runs the GA three times, once per fixed weight profile, each
// seeded independently (spec §4.5). The caller retains the highest raw
// fitness variant as the saga's "best" input to Stage 3; all three are
// returned for persistence.
func (o *Optimizer) Optimize(ctx context.Context, initial model.Assignment, instance *model.ProblemInstance,
	tracker *progress.Tracker, token *saga.CancellationToken) ([]model.Variant, error) {

	if len(initial) == 0 {
		return nil, nil
	}

	domain := cpsat.BuildDomains(instance.Courses, instance.Rooms, instance.TimeSlots)
	ec := newEvalContext(instance)
	courseOrder, sessionsByCourse := courseIndex(instance.Courses)

	variants := make([]model.Variant, 0, len(profiles))
	var lastErr error
	for _, p := range profiles {
		v, err := o.runOne(ctx, p, initial, domain, ec, courseOrder, sessionsByCourse, tracker, token)
		if err != nil {
			if token != nil && token.Requested() {
				return nil, err
			}
			if o.log != nil {
				o.log.Warn("ga variant failed, skipping", zap.String("label", string(p.label)), zap.Error(err))
			}
			lastErr = err
			continue
		}
		variants = append(variants, v)
	}

	if len(variants) == 0 {
		return nil, appErrors.Wrap(lastErr, appErrors.ErrGA.Code, appErrors.ErrGA.Status, appErrors.ErrGA.Message)
	}

	maxFitness := variants[0].Fitness
	for _, v := range variants {
		if v.Fitness > maxFitness {
			maxFitness = v.Fitness
		}
	}
	for i := range variants {
		if maxFitness > 0 {
			variants[i].NormalizedScore = 100 * variants[i].Fitness / maxFitness
		}
	}

	return variants, nil
}

func (o *Optimizer) runOne(ctx context.Context, p profile, initial model.Assignment, domain *cpsat.Domain,
	ec *evalContext, courseOrder []string, sessionsByCourse map[string][]model.SessionKey,
	tracker *progress.Tracker, token *saga.CancellationToken) (model.Variant, error) {

	rng := rand.New(rand.NewPCG(p.seed, p.seed))
	population := initPopulation(initial, domain, rng)

	var best scored
	for gen := 0; gen < maxGenerations; gen++ {
		select {
		case <-ctx.Done():
			return model.Variant{}, ctx.Err()
		default:
		}

		evaluated := evaluatePopulation(population, ec, p.weight)
		sort.SliceStable(evaluated, func(i, j int) bool { return evaluated[i].fitness > evaluated[j].fitness })

		if evaluated[0].fitness > best.fitness || gen == 0 {
			best = evaluated[0]
		}

		if tracker != nil {
			tracker.UpdateWork(gen + 1)
		}
		if err := saga.SafePoint(token, "ga:generation_boundary", func() error { return nil }); err != nil {
			return model.Variant{}, err
		}

		population = nextGeneration(evaluated, domain, courseOrder, sessionsByCourse, rng)
	}

	return model.Variant{
		VariantID:  uuid.NewString(),
		Label:      p.label,
		Weights:    p.weight,
		Fitness:    best.fitness,
		Assignment: best.assignment,
	}, nil
}

func evaluatePopulation(population []model.Assignment, ec *evalContext, weights model.WeightVector) []scored {
	out := make([]scored, len(population))
	for i, ind := range population {
		parts := ec.evaluate(ind)
		out[i] = scored{assignment: ind, fitness: parts.score(weights), parts: parts}
	}
	return out
}

func nextGeneration(evaluated []scored, domain *cpsat.Domain, courseOrder []string,
	sessionsByCourse map[string][]model.SessionKey, rng *rand.Rand) []model.Assignment {

	next := make([]model.Assignment, 0, populationSize)
	elites := eliteCount(len(evaluated))
	for i := 0; i < elites && i < len(evaluated); i++ {
		next = append(next, evaluated[i].assignment.Clone())
	}

	for len(next) < populationSize {
		parentA := tournamentSelect(evaluated, rng)
		parentB := tournamentSelect(evaluated, rng)
		child := crossover(parentA, parentB, courseOrder, sessionsByCourse, rng)
		child = mutate(child, domain, rng)
		next = append(next, child)
	}
	return next
}

// courseIndex returns a stable course id ordering plus each course's
// session keys, both needed for crossover.
func courseIndex(courses []model.Course) ([]string, map[string][]model.SessionKey) {
	order := make([]string, 0, len(courses))
	sessions := make(map[string][]model.SessionKey, len(courses))
	for _, c := range courses {
		order = append(order, c.ID)
		keys := make([]model.SessionKey, 0, c.Duration)
		for s := 0; s < c.Duration; s++ {
			keys = append(keys, model.SessionKey{CourseID: c.ID, SessionIndex: s})
		}
		sessions[c.ID] = keys
	}
	return order, sessions
}
