package dto

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() GenerationRequest {
	return GenerationRequest{
		JobID:          "11111111-1111-4111-8111-111111111111",
		OrganizationID: "org-1",
		Semester:       1,
		AcademicYear:   "2026",
		QualityMode:    "balanced",
		TimeConfig: TimeConfig{
			WorkingDays:         5,
			SlotsPerDay:         8,
			StartTime:           "08:00",
			EndTime:             "16:00",
			SlotDurationMinutes: 60,
			LunchBreakEnabled:   true,
			LunchBreakStart:     "12:00",
			LunchBreakEnd:       "13:00",
		},
	}
}

func TestGenerationRequest_ValidPasses(t *testing.T) {
	v := validator.New()
	require.NoError(t, v.Struct(validRequest()))
}

func TestGenerationRequest_InvalidSemesterFails(t *testing.T) {
	v := validator.New()
	req := validRequest()
	req.Semester = 3
	assert.Error(t, v.Struct(req))
}

func TestGenerationRequest_LunchEnabledWithoutTimesFails(t *testing.T) {
	v := validator.New()
	req := validRequest()
	req.TimeConfig.LunchBreakStart = ""
	assert.Error(t, v.Struct(req))
}

func TestGenerationRequest_ToSagaRequestCarriesPolicyDir(t *testing.T) {
	req := validRequest()
	sagaReq := req.ToSagaRequest("/policies")
	assert.Equal(t, "/policies", sagaReq.PolicyDir)
	assert.Equal(t, req.JobID, sagaReq.JobID)
	assert.Equal(t, 5, sagaReq.TimeConfig.WorkingDays)
}
