package persistence

// TimetableData is the full timetable_data JSON payload written to the
// primary store's generation_jobs.timetable_data column (spec §6).
type TimetableData struct {
	Entries               []TimetableEntry `json:"timetable_entries"`
	TotalSessionsScheduled int             `json:"total_sessions_scheduled"`
	TotalCourses          int              `json:"total_courses"`
	VariantsCount         int              `json:"variants_count"`
	Variants              []VariantPayload `json:"variants"`
	GeneratedAt           string           `json:"generated_at"`
}

// SummaryVariant is one variant entry inside the cache-store summary: the
// same VariantPayload with the entries and fitness fields dropped (spec
// §4.7 requires entry rows never leave the primary store).
type SummaryVariant struct {
	VariantID       string         `json:"variant_id"`
	Label           string         `json:"label"`
	Score           float64        `json:"score"`
	Conflicts       int            `json:"conflicts"`
	RoomUtilization float64        `json:"room_utilization"`
	QualityMetrics  QualityMetrics `json:"quality_metrics"`
	Statistics      Statistics     `json:"statistics"`
}

// Summary is the result:job:{job_id} cache payload.
type Summary struct {
	JobID       string           `json:"job_id"`
	Status      string           `json:"status"`
	Variants    []SummaryVariant `json:"variants"`
	GeneratedAt string           `json:"generated_at"`
}

func summaryFromPayload(jobID, status string, variants []VariantPayload, generatedAt string) Summary {
	out := make([]SummaryVariant, 0, len(variants))
	for _, v := range variants {
		out = append(out, SummaryVariant{
			VariantID:       v.VariantID,
			Label:           v.Label,
			Score:           v.Score,
			Conflicts:       v.Conflicts,
			RoomUtilization: v.RoomUtilization,
			QualityMetrics:  v.QualityMetrics,
			Statistics:      v.Statistics,
		})
	}
	return Summary{JobID: jobID, Status: status, Variants: out, GeneratedAt: generatedAt}
}
