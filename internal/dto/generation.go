// Package dto holds the JSON request/response shapes the core's external
// boundary accepts and returns (spec §6), validated with
// go-playground/validator before conversion into the pipeline's internal
// types.
package dto

import (
	"github.com/logixfirst/timetable-engine/internal/loader"
	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/saga"
)

// TimeConfig is the external generation request's time_config payload
// (spec §6), distinct from loader.TimeConfig so the validation tags live
// at the boundary and never leak into the pipeline's internal type.
type TimeConfig struct {
	WorkingDays         int    `json:"working_days" validate:"required,oneof=5 6"`
	SlotsPerDay         int    `json:"slots_per_day" validate:"required,oneof=7 8 9"`
	StartTime           string `json:"start_time" validate:"required"`
	EndTime             string `json:"end_time" validate:"required"`
	SlotDurationMinutes int    `json:"slot_duration_minutes" validate:"required,min=1"`
	LunchBreakEnabled   bool   `json:"lunch_break_enabled"`
	LunchBreakStart     string `json:"lunch_break_start" validate:"required_if=LunchBreakEnabled true"`
	LunchBreakEnd       string `json:"lunch_break_end" validate:"required_if=LunchBreakEnabled true"`
}

// ToLoaderTimeConfig converts the validated external payload into the
// loader's internal TimeConfig.
func (c TimeConfig) ToLoaderTimeConfig() loader.TimeConfig {
	return loader.TimeConfig{
		WorkingDays:         c.WorkingDays,
		SlotsPerDay:         c.SlotsPerDay,
		StartTime:           c.StartTime,
		EndTime:             c.EndTime,
		SlotDurationMinutes: c.SlotDurationMinutes,
		LunchBreakEnabled:   c.LunchBreakEnabled,
		LunchBreakStart:     c.LunchBreakStart,
		LunchBreakEnd:       c.LunchBreakEnd,
	}
}

// GenerationRequest is the external generation request payload (spec §6).
type GenerationRequest struct {
	JobID          string     `json:"job_id" validate:"required,uuid4"`
	OrganizationID string     `json:"organization_id" validate:"required"`
	Semester       int        `json:"semester" validate:"required,oneof=1 2"`
	AcademicYear   string     `json:"academic_year" validate:"required"`
	TimeConfig     TimeConfig `json:"time_config" validate:"required"`
	QualityMode    string     `json:"quality_mode" validate:"required,oneof=balanced"`
}

// ToSagaRequest converts a validated GenerationRequest into the saga
// controller's internal Request, attaching the policy directory the
// caller configured for Stage 3 (spec §4.6).
func (r GenerationRequest) ToSagaRequest(policyDir string) saga.Request {
	return saga.Request{
		JobID:          r.JobID,
		OrganizationID: r.OrganizationID,
		Semester:       r.Semester,
		AcademicYear:   r.AcademicYear,
		TimeConfig:     r.TimeConfig.ToLoaderTimeConfig(),
		QualityMode:    r.QualityMode,
		PolicyDir:      policyDir,
	}
}

// VariantSummary is one entry of the GenerationResponse's variants array,
// the shape handed to the optional admin callback (spec §6).
type VariantSummary struct {
	VariantID       string  `json:"variant_id"`
	Label           string  `json:"label"`
	NormalizedScore float64 `json:"normalized_score"`
	ConflictsCount  int     `json:"conflicts_count"`
}

// GenerationResponse is the optional admin callback payload: POST
// { job_id, status, variants, generation_time } after persistence
// (spec §6).
type GenerationResponse struct {
	JobID          string           `json:"job_id"`
	Status         model.JobStatus  `json:"status"`
	Variants       []VariantSummary `json:"variants"`
	GenerationTime float64          `json:"generation_time"`
}

// FromSagaResult builds the callback payload from the saga's Result.
func FromSagaResult(res saga.Result) GenerationResponse {
	summaries := make([]VariantSummary, 0, len(res.Variants))
	for _, v := range res.Variants {
		summaries = append(summaries, VariantSummary{
			VariantID:       v.VariantID,
			Label:           string(v.Label),
			NormalizedScore: v.NormalizedScore,
			ConflictsCount:  v.ConflictsCount,
		})
	}
	return GenerationResponse{
		JobID:          res.JobID,
		Status:         res.Status,
		Variants:       summaries,
		GenerationTime: res.GenerationTime.Seconds(),
	}
}
