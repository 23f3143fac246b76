package ga

import "github.com/logixfirst/timetable-engine/internal/model"

// populationSize and maxGenerations are the GA's hard caps (spec §4.5).
const (
	populationSize = 20
	maxGenerations  = 25

	tournamentSize  = 3
	crossoverRate   = 0.8
	mutationRate    = 0.15
	elitismFraction = 0.2
)

// profile pairs one of the three fixed weight vectors with its label and
// deterministic seed (spec §4.5).
type profile struct {
	label  model.VariantLabel
	weight model.WeightVector
	seed   uint64
}

// profiles is run in this fixed order every time so the GA's sequential,
// single-process execution (spec §5) is reproducible end to end.
var profiles = []profile{
	{
		label:  model.VariantFacultyFriendly,
		weight: model.WeightVector{Faculty: 0.55, Room: 0.20, Spread: 0.15, Student: 0.10},
		seed:   42,
	},
	{
		label:  model.VariantRoomEfficient,
		weight: model.WeightVector{Faculty: 0.20, Room: 0.55, Spread: 0.15, Student: 0.10},
		seed:   55,
	},
	{
		label:  model.VariantStudentSpread,
		weight: model.WeightVector{Faculty: 0.20, Room: 0.20, Spread: 0.45, Student: 0.15},
		seed:   68,
	},
}
