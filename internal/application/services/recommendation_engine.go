package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/providers"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultModelConfidence = 75
	defaultModelReasoning  = "No reasoning provided"
	promptReadingCount     = 7

	recommendationSystemPrompt = "You are a medical AI assistant. You provide medication recommendations based on patient data. " +
		"Always prioritize patient safety and consider all medical history, allergies, and drug interactions. " +
		"Output ONLY valid JSON, no additional text."
)

// TextGenerator is the part of the AI gateway the engine depends on
type TextGenerator interface {
	EnsureReady(ctx context.Context) bool
	Generate(ctx context.Context, req providers.CompletionRequest) (string, error)
}

// RecommendationEngineConfig holds the engine knobs
type RecommendationEngineConfig struct {
	Model       string
	HistoryDays int
	// HeuristicFallback lets a ready gateway that fails mid-generation fall
	// back to the heuristic instead of surfacing PROVIDER_UNAVAILABLE.
	HeuristicFallback bool
	Location          *time.Location
}

// RecommendationEngine turns a patient's recent readings and history into a
// pending recommendation draft. It never persists anything.
type RecommendationEngine struct {
	users    repositories.UserRepository
	records  repositories.MedicalRecordRepository
	readings repositories.BPReadingRepository
	gateway  TextGenerator
	flags    *FeatureFlags
	cfg      RecommendationEngineConfig
	now      func() time.Time
}

// NewRecommendationEngine creates a new recommendation engine
func NewRecommendationEngine(
	users repositories.UserRepository,
	records repositories.MedicalRecordRepository,
	readings repositories.BPReadingRepository,
	gateway TextGenerator,
	flags *FeatureFlags,
	cfg RecommendationEngineConfig,
) *RecommendationEngine {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 30
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &RecommendationEngine{
		users:    users,
		records:  records,
		readings: readings,
		gateway:  gateway,
		flags:    flags,
		cfg:      cfg,
		now:      time.Now,
	}
}

type patientContext struct {
	Age                *int
	Gender             string
	Region             string
	IncomeRange        string
	Conditions         []string
	CurrentMedications []string
	MedicationTitles   []string
	Allergies          []string
}

// Generate builds a pending recommendation for the patient
func (e *RecommendationEngine) Generate(ctx context.Context, patientID string) (*entities.Recommendation, error) {
	ctx, span := observability.StartSpan(ctx, "RecommendationEngine.Generate")
	defer span.End()

	patient, err := e.users.GetByID(ctx, patientID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	now := e.now()
	from := now.AddDate(0, 0, -e.cfg.HistoryDays)
	readings, err := e.readings.ListByPatient(ctx, patientID, repositories.BPReadingFilter{From: &from})
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to load BP readings: %w", err)
	}
	if len(readings) == 0 {
		return nil, apperrors.NewInsufficientDataError(
			fmt.Sprintf("no BP readings in the last %d days; record a few readings before requesting a recommendation", e.cfg.HistoryDays))
	}

	avg := averageBP(readings)

	pctx, err := e.loadPatientContext(ctx, patient, now)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	rec := &entities.Recommendation{
		PatientID:                  patientID,
		AssignedDoctorIDs:          []string{},
		PatientSelectedMedications: []entities.Medication{},
		Region:                     pctx.Region,
		Status:                     entities.RecommendationStatusPending,
		BPAverage:                  avg,
		MedicalHistorySummary:      append(append([]string{}, pctx.Conditions...), pctx.MedicationTitles...),
		Allergies:                  pctx.Allergies,
	}

	if e.flags.DemoMode() {
		e.applyHeuristic(rec, "DEMO_MODE=true (no external API used)")
	} else if !e.gateway.EnsureReady(ctx) {
		e.applyHeuristic(rec, "AI provider not ready (heuristic fallback)")
	} else {
		prompt := buildRecommendationPrompt(pctx, avg, readings, e.cfg.Location)
		text, err := e.gateway.Generate(ctx, providers.CompletionRequest{
			Model:       e.cfg.Model,
			System:      recommendationSystemPrompt,
			Prompt:      prompt,
			Temperature: 0.3,
			MaxTokens:   2000,
			ExpectJSON:  true,
		})
		switch {
		case err != nil && e.cfg.HeuristicFallback && apperrors.IsType(err, apperrors.ErrorTypeProviderUnavailable):
			observability.LoggerFromContext(ctx).Warn().Err(err).Str("patient_id", patientID).Msg("AI generation failed, using heuristic")
			e.applyHeuristic(rec, "AI provider failed during generation (heuristic fallback)")
		case err != nil:
			observability.RecordError(span, err)
			return nil, err
		default:
			if err := applyModelAnswer(rec, text, pctx.Region); err != nil {
				observability.RecordError(span, err)
				return nil, err
			}
			rec.AIModel = e.cfg.Model
			rec.AIPrompt = prompt
		}
	}

	rec.PatientMessage = buildPatientMessage(rec.Medications)

	observability.SetSpanAttributes(span,
		attribute.String("recommendation.model", rec.AIModel),
		attribute.Int("recommendation.medications", len(rec.Medications)),
	)
	return rec, nil
}

func (e *RecommendationEngine) applyHeuristic(rec *entities.Recommendation, promptNote string) {
	h := heuristicRecommendation(rec.BPAverage.Systolic, rec.BPAverage.Diastolic)
	rec.Medications = h.Medications
	rec.LifestyleAdvice = h.LifestyleAdvice
	rec.Reasoning = h.Reasoning
	rec.Confidence = h.Confidence
	rec.AIModel = HeuristicModelName
	rec.AIPrompt = promptNote
}

func (e *RecommendationEngine) loadPatientContext(ctx context.Context, patient *entities.User, now time.Time) (*patientContext, error) {
	records, err := e.records.ListByPatient(ctx, patient.ID, repositories.MedicalRecordFilter{
		Statuses: []entities.MedicalRecordStatus{entities.MedicalRecordStatusActive, entities.MedicalRecordStatusOngoing},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load medical history: %w", err)
	}

	pctx := &patientContext{
		Age:                patient.Age(now),
		Gender:             patient.Gender,
		Region:             patient.Region(),
		IncomeRange:        patient.IncomeRange,
		Conditions:         []string{},
		CurrentMedications: []string{},
		MedicationTitles:   []string{},
		Allergies:          []string{},
	}
	for _, r := range records {
		if !r.IsCurrent() {
			continue
		}
		switch r.Type {
		case entities.MedicalRecordTypeCondition:
			pctx.Conditions = append(pctx.Conditions, r.Title)
		case entities.MedicalRecordTypeMedication:
			pctx.MedicationTitles = append(pctx.MedicationTitles, r.Title)
			pctx.CurrentMedications = append(pctx.CurrentMedications, strings.TrimSpace(r.Title+" "+r.Dosage))
		case entities.MedicalRecordTypeAllergy:
			pctx.Allergies = append(pctx.Allergies, r.Title)
		}
	}
	return pctx, nil
}

func averageBP(readings []*entities.BPReading) entities.BPAverage {
	var sys, dia float64
	for _, r := range readings {
		sys += float64(r.Systolic)
		dia += float64(r.Diastolic)
	}
	n := float64(len(readings))
	return entities.BPAverage{
		Systolic:  int(math.Round(sys / n)),
		Diastolic: int(math.Round(dia / n)),
	}
}

func buildRecommendationPrompt(p *patientContext, avg entities.BPAverage, readings []*entities.BPReading, loc *time.Location) string {
	orNone := func(items []string) string {
		if len(items) == 0 {
			return "None"
		}
		return strings.Join(items, ", ")
	}
	orUnspecified := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return "Not specified"
		}
		return v
	}

	age := "Not specified"
	if p.Age != nil {
		age = strconv.Itoa(*p.Age)
	}

	var b strings.Builder
	b.WriteString("You are a medical AI assistant helping with blood pressure medication recommendations.\n\n")
	b.WriteString("Patient Context:\n")
	fmt.Fprintf(&b, "- Age: %s\n", age)
	fmt.Fprintf(&b, "- Gender: %s\n", orUnspecified(p.Gender))
	fmt.Fprintf(&b, "- Average BP: %d/%d mmHg (based on %d readings)\n", avg.Systolic, avg.Diastolic, len(readings))
	fmt.Fprintf(&b, "- Current Conditions: %s\n", orNone(p.Conditions))
	fmt.Fprintf(&b, "- Current Medications: %s\n", orNone(p.CurrentMedications))
	fmt.Fprintf(&b, "- Allergies: %s\n", orNone(p.Allergies))
	fmt.Fprintf(&b, "- Region: %s\n", orUnspecified(p.Region))
	fmt.Fprintf(&b, "- Income Range: %s\n\n", orUnspecified(p.IncomeRange))

	fmt.Fprintf(&b, "Recent BP Readings (last %d):\n", promptReadingCount)
	for i, r := range readings {
		if i == promptReadingCount {
			break
		}
		fmt.Fprintf(&b, "- %d/%d mmHg at %s\n", r.Systolic, r.Diastolic, r.Timestamp.In(loc).Format("2006-01-02"))
	}

	b.WriteString(`
Based on this information, provide a medication recommendation following this JSON format:
{
  "reasoning": "Detailed explanation of why these medications are recommended, considering patient's BP trends, medical history, allergies, and regional availability",
  "lifestyleAdvice": ["actionable lifestyle tip 1", "actionable lifestyle tip 2"],
  "medications": [
    {
      "name": "Medication Name",
      "dosage": "e.g., 5mg",
      "frequency": "e.g., Once daily",
      "cost": 12.50,
      "availability": "high|medium|low",
      "sideEffects": ["Side effect 1", "Side effect 2"]
    }
  ],
  "confidence": 85,
`)
	fmt.Fprintf(&b, "  \"region\": %q\n}\n", p.Region)
	b.WriteString(`
IMPORTANT:
- Consider drug interactions with current medications
- Avoid medications patient is allergic to
- Consider regional drug availability and cost
- Provide evidence-based recommendations
- Be conservative and prioritize safety
- Confidence should reflect certainty level (0-100)`)

	return b.String()
}

// flexibleFloat accepts numbers and numeric strings such as "12.50" or "$12.50"
type flexibleFloat struct {
	Value float64
	Set   bool
}

func (f *flexibleFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		f.Value, f.Set = n, true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		f.Value, f.Set = n, true
	}
	return nil
}

type modelMedication struct {
	Name         string        `json:"name"`
	Dosage       string        `json:"dosage"`
	Frequency    string        `json:"frequency"`
	Cost         flexibleFloat `json:"cost"`
	Availability string        `json:"availability"`
	SideEffects  []string      `json:"sideEffects"`
}

type modelRecommendation struct {
	Reasoning       string            `json:"reasoning"`
	LifestyleAdvice []string          `json:"lifestyleAdvice"`
	Medications     []modelMedication `json:"medications"`
	Confidence      flexibleFloat     `json:"confidence"`
	Region          string            `json:"region"`
}

// applyModelAnswer parses the model text into rec. An unparseable answer is a
// GENERATION_FAILED error and is never replaced by the heuristic.
func applyModelAnswer(rec *entities.Recommendation, text, patientRegion string) error {
	raw, err := extractJSONObject(text)
	if err != nil {
		return apperrors.NewGenerationFailedError("AI answer did not contain a recommendation", err)
	}

	var answer modelRecommendation
	if err := json.Unmarshal(raw, &answer); err != nil {
		return apperrors.NewGenerationFailedError("AI answer could not be parsed", err)
	}

	meds := make([]entities.Medication, 0, len(answer.Medications))
	for _, m := range answer.Medications {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		avail := entities.Availability(strings.ToLower(strings.TrimSpace(m.Availability)))
		if !avail.Valid() {
			avail = ""
		}
		sideEffects := m.SideEffects
		if sideEffects == nil {
			sideEffects = []string{}
		}
		meds = append(meds, entities.Medication{
			Name:         name,
			Dosage:       strings.TrimSpace(m.Dosage),
			Frequency:    strings.TrimSpace(m.Frequency),
			Cost:         m.Cost.Value,
			Availability: avail,
			SideEffects:  sideEffects,
		})
	}

	confidence := defaultModelConfidence
	if answer.Confidence.Set && answer.Confidence.Value > 0 {
		confidence = int(math.Round(math.Min(answer.Confidence.Value, 100)))
	}

	reasoning := strings.TrimSpace(answer.Reasoning)
	if reasoning == "" {
		reasoning = defaultModelReasoning
	}

	region := strings.TrimSpace(answer.Region)
	if region == "" {
		region = patientRegion
	}

	advice := answer.LifestyleAdvice
	if advice == nil {
		advice = []string{}
	}

	rec.Medications = meds
	rec.LifestyleAdvice = advice
	rec.Reasoning = reasoning
	rec.Confidence = confidence
	rec.Region = region
	return nil
}
