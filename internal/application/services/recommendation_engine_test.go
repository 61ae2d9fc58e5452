package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bpcare/internal/application/services"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

type engineFixture struct {
	users    *MockUserRepository
	records  *MockMedicalRecordRepository
	readings *MockBPReadingRepository
	gen      *stubGenerator
	flags    *services.FeatureFlags
	engine   *services.RecommendationEngine
}

func newEngineFixture(demo bool, fallback bool) *engineFixture {
	f := &engineFixture{
		users:    new(MockUserRepository),
		records:  new(MockMedicalRecordRepository),
		readings: new(MockBPReadingRepository),
		gen:      &stubGenerator{},
		flags:    services.NewFeatureFlags(demo),
	}
	f.engine = services.NewRecommendationEngine(f.users, f.records, f.readings, f.gen, f.flags, services.RecommendationEngineConfig{
		Model:             "gpt-4o-mini",
		HistoryDays:       30,
		HeuristicFallback: fallback,
		Location:          time.UTC,
	})
	return f
}

func (f *engineFixture) withPatient(readings ...*entities.BPReading) {
	f.users.On("GetByID", mock.Anything, "patient-1").Return(&entities.User{
		ID:      "patient-1",
		Role:    entities.UserRolePatient,
		City:    "Lagos",
		Country: "Nigeria",
	}, nil)
	f.readings.On("ListByPatient", mock.Anything, "patient-1", mock.Anything).Return(readings, nil)
	f.records.On("ListByPatient", mock.Anything, "patient-1", mock.Anything).Return([]*entities.MedicalRecord{
		{Type: entities.MedicalRecordTypeCondition, Title: "Type 2 diabetes", Status: entities.MedicalRecordStatusActive},
		{Type: entities.MedicalRecordTypeMedication, Title: "Metformin", Dosage: "500mg", Status: entities.MedicalRecordStatusOngoing},
		{Type: entities.MedicalRecordTypeAllergy, Title: "Penicillin", Status: entities.MedicalRecordStatusActive},
		{Type: entities.MedicalRecordTypeCondition, Title: "Fractured wrist", Status: entities.MedicalRecordStatusResolved},
	}, nil)
}

func reading(sys, dia int, ago time.Duration) *entities.BPReading {
	return &entities.BPReading{
		PatientID: "patient-1",
		Systolic:  sys,
		Diastolic: dia,
		Timestamp: time.Now().Add(-ago),
	}
}

func TestRecommendationEngine_Generate(t *testing.T) {
	t.Run("demo mode uses the heuristic", func(t *testing.T) {
		f := newEngineFixture(true, true)
		f.withPatient(reading(145, 95, time.Hour), reading(145, 95, 2*time.Hour), reading(145, 95, 3*time.Hour))

		rec, err := f.engine.Generate(context.Background(), "patient-1")
		require.NoError(t, err)

		assert.Equal(t, entities.RecommendationStatusPending, rec.Status)
		assert.Equal(t, entities.BPAverage{Systolic: 145, Diastolic: 95}, rec.BPAverage)
		require.Len(t, rec.Medications, 1)
		assert.Equal(t, "Amlodipine", rec.Medications[0].Name)
		assert.Equal(t, 60, rec.Confidence)
		assert.Equal(t, services.HeuristicModelName, rec.AIModel)
		assert.Equal(t, "DEMO_MODE=true (no external API used)", rec.AIPrompt)
		assert.True(t, strings.HasPrefix(rec.PatientMessage, services.RecommendationDisclaimer))
		assert.Contains(t, rec.PatientMessage, "1) Amlodipine 5mg — Once daily — ~$12.50 (high availability)")
		assert.Empty(t, rec.AssignedDoctorIDs)
		assert.NotNil(t, rec.AssignedDoctorIDs)
		assert.Equal(t, "Lagos, Nigeria", rec.Region)
		assert.Equal(t, []string{"Type 2 diabetes", "Metformin"}, rec.MedicalHistorySummary)
		assert.Equal(t, []string{"Penicillin"}, rec.Allergies)
		assert.Empty(t, f.gen.calls)
	})

	t.Run("no readings is insufficient data", func(t *testing.T) {
		f := newEngineFixture(false, true)
		f.users.On("GetByID", mock.Anything, "patient-1").Return(&entities.User{ID: "patient-1"}, nil)
		f.readings.On("ListByPatient", mock.Anything, "patient-1", mock.Anything).Return([]*entities.BPReading{}, nil)

		_, err := f.engine.Generate(context.Background(), "patient-1")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInsufficientData))
	})

	t.Run("unknown patient", func(t *testing.T) {
		f := newEngineFixture(false, true)
		f.users.On("GetByID", mock.Anything, "patient-1").Return(nil, apperrors.NewNotFoundError("user not found"))

		_, err := f.engine.Generate(context.Background(), "patient-1")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})

	t.Run("gateway not ready uses the heuristic", func(t *testing.T) {
		f := newEngineFixture(false, true)
		f.withPatient(reading(132, 82, time.Hour))

		rec, err := f.engine.Generate(context.Background(), "patient-1")
		require.NoError(t, err)
		require.Len(t, rec.Medications, 1)
		assert.Equal(t, "Hydrochlorothiazide", rec.Medications[0].Name)
		assert.Equal(t, services.HeuristicModelName, rec.AIModel)
		assert.Empty(t, f.gen.calls)
	})

	t.Run("model answer wrapped in prose", func(t *testing.T) {
		f := newEngineFixture(false, true)
		f.gen.ready = true
		f.gen.text = "Here you go:\n```json\n" + `{
			"reasoning": "Average pressure is elevated.",
			"lifestyleAdvice": ["Reduce salt"],
			"medications": [
				{"name": "Lisinopril", "dosage": "10mg", "frequency": "Once daily", "cost": "$9.40", "availability": "Medium", "sideEffects": ["Dry cough"]},
				{"name": "  ", "dosage": "1mg"}
			],
			"confidence": 130
		}` + "\n```"
		f.withPatient(reading(150, 96, time.Hour), reading(140, 90, 2*time.Hour))

		rec, err := f.engine.Generate(context.Background(), "patient-1")
		require.NoError(t, err)

		require.Len(t, rec.Medications, 1)
		med := rec.Medications[0]
		assert.Equal(t, "Lisinopril", med.Name)
		assert.InDelta(t, 9.40, med.Cost, 0.001)
		assert.Equal(t, entities.AvailabilityMedium, med.Availability)
		assert.Equal(t, 100, rec.Confidence)
		assert.Equal(t, "Lagos, Nigeria", rec.Region)
		assert.Equal(t, "gpt-4o-mini", rec.AIModel)
		assert.Contains(t, rec.AIPrompt, "Average BP: 145/93 mmHg (based on 2 readings)")
		assert.Contains(t, rec.AIPrompt, "Allergies: Penicillin")

		require.Len(t, f.gen.calls, 1)
		call := f.gen.calls[0]
		assert.True(t, call.ExpectJSON)
		assert.Equal(t, 0.3, call.Temperature)
		assert.Equal(t, 2000, call.MaxTokens)
	})

	t.Run("missing confidence and reasoning get defaults", func(t *testing.T) {
		f := newEngineFixture(false, true)
		f.gen.ready = true
		f.gen.text = `{"medications": [], "region": "West Africa"}`
		f.withPatient(reading(120, 70, time.Hour))

		rec, err := f.engine.Generate(context.Background(), "patient-1")
		require.NoError(t, err)
		assert.Equal(t, 75, rec.Confidence)
		assert.Equal(t, "No reasoning provided", rec.Reasoning)
		assert.Equal(t, "West Africa", rec.Region)
		assert.Equal(t, services.RecommendationDisclaimer, rec.PatientMessage)
	})

	t.Run("unparseable answer fails without heuristic", func(t *testing.T) {
		f := newEngineFixture(false, true)
		f.gen.ready = true
		f.gen.text = "I cannot help with that."
		f.withPatient(reading(150, 96, time.Hour))

		_, err := f.engine.Generate(context.Background(), "patient-1")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeGenerationFailed))
	})

	t.Run("provider failure falls back when enabled", func(t *testing.T) {
		f := newEngineFixture(false, true)
		f.gen.ready = true
		f.gen.err = apperrors.NewProviderUnavailableError("all AI transports failed", errors.New("503"))
		f.withPatient(reading(150, 96, time.Hour))

		rec, err := f.engine.Generate(context.Background(), "patient-1")
		require.NoError(t, err)
		assert.Equal(t, services.HeuristicModelName, rec.AIModel)
	})

	t.Run("provider failure surfaces when fallback disabled", func(t *testing.T) {
		f := newEngineFixture(false, false)
		f.gen.ready = true
		f.gen.err = apperrors.NewProviderUnavailableError("all AI transports failed", errors.New("503"))
		f.withPatient(reading(150, 96, time.Hour))

		_, err := f.engine.Generate(context.Background(), "patient-1")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeProviderUnavailable))
	})
}
