package ga

import (
	"math/rand/v2"
	"sort"

	"github.com/samber/lo"

	"github.com/logixfirst/timetable-engine/internal/cpsat"
	"github.com/logixfirst/timetable-engine/internal/model"
)

// scored pairs an individual with its evaluated fitness, so selection and
// elitism never re-evaluate.
type scored struct {
	assignment model.Assignment
	fitness    float64
	parts      components
}

// initPopulation seeds the population with the incoming assignment
// unchanged, then fills the rest with single-point mutants of it (spec
// §4.5's initialization rule).
func initPopulation(initial model.Assignment, domain *cpsat.Domain, rng *rand.Rand) []model.Assignment {
	keys := lo.Keys(domain.Candidates)
	sortSessionKeys(keys)
	population := make([]model.Assignment, 0, populationSize)
	population = append(population, initial.Clone())

	for len(population) < populationSize {
		mutant := initial.Clone()
		if len(keys) > 0 {
			key := keys[rng.IntN(len(keys))]
			singlePointChange(mutant, key, domain, rng)
		}
		population = append(population, mutant)
	}
	return population
}

// singlePointChange replaces one session's slot or its room (coin flip)
// with a uniformly random candidate drawn from its precomputed domain.
func singlePointChange(a model.Assignment, key model.SessionKey, domain *cpsat.Domain, rng *rand.Rand) {
	candidates := domain.Candidates[key]
	if len(candidates) == 0 {
		return
	}
	cand := candidates[rng.IntN(len(candidates))]
	cur := a[key]
	if rng.IntN(2) == 0 {
		cur.TimeSlotID = cand.TimeSlotID
	} else {
		cur.RoomID = cand.RoomID
	}
	a[key] = cur
}

// mutate applies spec §4.5's per-gene mutation: for every (course, session)
// in the individual, with probability mutationRate replace its slot or
// room with a random valid alternative.
func mutate(a model.Assignment, domain *cpsat.Domain, rng *rand.Rand) model.Assignment {
	out := a.Clone()
	keys := make([]model.SessionKey, 0, len(out))
	for key := range out {
		keys = append(keys, key)
	}
	sortSessionKeys(keys)
	for _, key := range keys {
		if rng.Float64() < mutationRate {
			singlePointChange(out, key, domain, rng)
		}
	}
	return out
}

// sortSessionKeys orders keys by course id, then session index, so RNG
// draws are consumed in the same order on every run.
func sortSessionKeys(keys []model.SessionKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CourseID != keys[j].CourseID {
			return keys[i].CourseID < keys[j].CourseID
		}
		return keys[i].SessionIndex < keys[j].SessionIndex
	})
}

// crossover applies single-point crossover over the ordered course id list:
// courses before the pivot inherit their full session set from parent A,
// courses at or after the pivot from parent B (spec §4.5).
func crossover(a, b model.Assignment, courseOrder []string, sessionsByCourse map[string][]model.SessionKey, rng *rand.Rand) model.Assignment {
	if rng.Float64() >= crossoverRate || len(courseOrder) < 2 {
		return a.Clone()
	}
	pivot := 1 + rng.IntN(len(courseOrder)-1)

	child := make(model.Assignment, len(a))
	for i, courseID := range courseOrder {
		source := a
		if i >= pivot {
			source = b
		}
		for _, key := range sessionsByCourse[courseID] {
			if sa, ok := source[key]; ok {
				child[key] = sa
			}
		}
	}
	return child
}

// tournamentSelect picks tournamentSize individuals uniformly at random and
// returns the fittest (spec §4.5).
func tournamentSelect(pop []scored, rng *rand.Rand) model.Assignment {
	best := pop[rng.IntN(len(pop))]
	for i := 1; i < tournamentSize; i++ {
		candidate := pop[rng.IntN(len(pop))]
		if candidate.fitness > best.fitness {
			best = candidate
		}
	}
	return best.assignment
}

// eliteCount is how many top individuals carry over unchanged each
// generation (top elitismFraction, at least one).
func eliteCount(n int) int {
	count := int(float64(n) * elitismFraction)
	if count < 1 {
		count = 1
	}
	return count
}
