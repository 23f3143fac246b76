package persistence

import (
	"github.com/logixfirst/timetable-engine/internal/model"
)

// QualityMetrics is the variants[].quality_metrics sub-block (spec §6).
type QualityMetrics struct {
	OverallScore        float64 `json:"overall_score"`
	TotalConflicts      int     `json:"total_conflicts"`
	RoomUtilizationScore float64 `json:"room_utilization_score"`
}

// Statistics is the variants[].statistics sub-block (spec §6).
type Statistics struct {
	TotalClasses   int `json:"total_classes"`
	TotalConflicts int `json:"total_conflicts"`
}

// VariantPayload is one entry of timetable_data.variants.
type VariantPayload struct {
	VariantID       string           `json:"variant_id"`
	Label           string           `json:"label"`
	Score           float64          `json:"score"`
	Fitness         float64          `json:"fitness"`
	Conflicts       int              `json:"conflicts"`
	Entries         []TimetableEntry `json:"timetable_entries"`
	RoomUtilization float64          `json:"room_utilization"`
	QualityMetrics  QualityMetrics   `json:"quality_metrics"`
	Statistics      Statistics       `json:"statistics"`
}

// countConflicts counts faculty and room double-bookings within one
// variant's own assignment (spec §4.7's conflicts_count definition).
func countConflicts(a model.Assignment, instance *model.ProblemInstance) int {
	type slotKey struct {
		holder string
		slotID string
	}
	facultySeen := make(map[slotKey]bool)
	roomSeen := make(map[slotKey]bool)
	conflicts := 0

	for key, sa := range a {
		if sa.Unscheduled() {
			continue
		}
		course, ok := instance.CourseByID(key.CourseID)
		if !ok {
			continue
		}
		fk := slotKey{holder: course.FacultyID, slotID: sa.TimeSlotID}
		if facultySeen[fk] {
			conflicts++
		} else {
			facultySeen[fk] = true
		}
		rk := slotKey{holder: sa.RoomID, slotID: sa.TimeSlotID}
		if roomSeen[rk] {
			conflicts++
		} else {
			roomSeen[rk] = true
		}
	}
	return conflicts
}

// roomUtilizationPct is rooms used / total rooms * 100 (spec §4.7).
func roomUtilizationPct(a model.Assignment, totalRooms int) float64 {
	if totalRooms == 0 {
		return 0
	}
	used := make(map[string]bool)
	for _, sa := range a {
		if sa.Unscheduled() {
			continue
		}
		used[sa.RoomID] = true
	}
	return float64(len(used)) / float64(totalRooms) * 100
}

// buildVariantPayload computes a variant's metrics and entry list and fills
// its ConflictsCount/RoomUtilizationPct fields in place for the caller to
// persist alongside.
func buildVariantPayload(v *model.Variant, instance *model.ProblemInstance) VariantPayload {
	built := buildEntries(v.Assignment, instance)
	conflicts := countConflicts(v.Assignment, instance)
	utilization := roomUtilizationPct(v.Assignment, len(instance.Rooms))

	v.ConflictsCount = conflicts
	v.RoomUtilizationPct = utilization

	return VariantPayload{
		VariantID:       v.VariantID,
		Label:           string(v.Label),
		Score:           v.NormalizedScore,
		Fitness:         v.Fitness,
		Conflicts:       conflicts,
		Entries:         built.entries,
		RoomUtilization: utilization,
		QualityMetrics: QualityMetrics{
			OverallScore:         v.NormalizedScore,
			TotalConflicts:       conflicts,
			RoomUtilizationScore: utilization,
		},
		Statistics: Statistics{
			TotalClasses:   len(built.entries),
			TotalConflicts: conflicts,
		},
	}
}
