package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

const localDayLayout = "2006-01-02"

// Accepted measurement ranges
const (
	minSystolic  = 50
	maxSystolic  = 300
	minDiastolic = 30
	maxDiastolic = 200
	minHeartRate = 30
	maxHeartRate = 250
)

// ReadingInput is a reading as submitted by the patient
type ReadingInput struct {
	Systolic  int    `json:"systolic"`
	Diastolic int    `json:"diastolic"`
	HeartRate int    `json:"heart_rate"`
	Source    string `json:"source"`
	TimeSlot  string `json:"time_slot"`
	Notes     string `json:"notes"`
}

// SubmitResult is the stored reading plus the refreshed daily quota
type SubmitResult struct {
	Reading    *entities.BPReading `json:"reading"`
	TodayCount int                 `json:"today_count"`
	Remaining  int                 `json:"remaining"`
	Limit      int                 `json:"limit"`
	IsComplete bool                `json:"is_complete"`
}

// SlotProgress reports one intake slot of the day
type SlotProgress struct {
	Slot      entities.TimeSlot   `json:"slot"`
	Completed bool                `json:"completed"`
	Latest    *entities.BPReading `json:"latest,omitempty"`
}

// DailyProgress is the read view of today's intake
type DailyProgress struct {
	Date        string              `json:"date"`
	WindowStart time.Time           `json:"window_start"`
	WindowEnd   time.Time           `json:"window_end"`
	CurrentSlot entities.TimeSlot   `json:"current_slot"`
	Slots       []SlotProgress      `json:"slots"`
	TodayCount  int                 `json:"today_count"`
	Remaining   int                 `json:"remaining"`
	Limit       int                 `json:"limit"`
	IsComplete  bool                `json:"is_complete"`
	Average     *entities.BPAverage `json:"average,omitempty"`
}

// DailyAverage is the mean pressure of one local day
type DailyAverage struct {
	Date      string `json:"date"`
	Systolic  int    `json:"systolic"`
	Diastolic int    `json:"diastolic"`
	Readings  int    `json:"readings"`
}

// BPTrend summarises a patient's readings over a trailing window
type BPTrend struct {
	PatientID      string                    `json:"patient_id"`
	Days           int                       `json:"days"`
	Readings       int                       `json:"readings"`
	Average        *entities.BPAverage       `json:"average,omitempty"`
	Classification entities.BPClassification `json:"classification,omitempty"`
	Latest         *entities.BPReading       `json:"latest,omitempty"`
	Daily          []DailyAverage            `json:"daily"`
}

// IntakeScheduler enforces the daily reading quota and buckets readings into time slots
type IntakeScheduler struct {
	readings   repositories.BPReadingRepository
	links      repositories.DoctorLinkRepository
	loc        *time.Location
	dailyLimit int
	trendDays  int
	events     *WorkflowPublisher
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewIntakeScheduler creates a new intake scheduler
func NewIntakeScheduler(
	readings repositories.BPReadingRepository,
	links repositories.DoctorLinkRepository,
	loc *time.Location,
	dailyLimit int,
	trendDays int,
	events *WorkflowPublisher,
	metrics *observability.Metrics,
) *IntakeScheduler {
	if loc == nil {
		loc = time.Local
	}
	if dailyLimit <= 0 {
		dailyLimit = 5
	}
	if trendDays <= 0 {
		trendDays = 30
	}
	return &IntakeScheduler{
		readings:   readings,
		links:      links,
		loc:        loc,
		dailyLimit: dailyLimit,
		trendDays:  trendDays,
		events:     events,
		metrics:    metrics,
		now:        time.Now,
	}
}

// slotFromClock maps a local wall clock time onto the five intake slots
func slotFromClock(t time.Time) entities.TimeSlot {
	switch h := t.Hour(); {
	case h >= 6 && h < 10:
		return entities.TimeSlotMorning
	case h >= 10 && h < 14:
		return entities.TimeSlotLateMorning
	case h >= 14 && h < 18:
		return entities.TimeSlotAfternoon
	case h >= 18 && h < 21:
		return entities.TimeSlotEvening
	default:
		return entities.TimeSlotNight
	}
}

// dayWindow returns [local midnight, next local midnight) around t.
// AddDate keeps the window correct across DST changes.
func dayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// SubmitReading validates and stores a reading unless the patient already
// has the daily maximum. The quota check and insert are a single atomic write.
func (s *IntakeScheduler) SubmitReading(ctx context.Context, patientID string, in ReadingInput) (*SubmitResult, error) {
	if err := validateReading(in); err != nil {
		return nil, err
	}

	source := entities.ReadingSource(strings.ToLower(strings.TrimSpace(in.Source)))
	if source == "" {
		source = entities.ReadingSourceManual
	}

	now := s.now().In(s.loc)
	slot := entities.TimeSlot(strings.TrimSpace(in.TimeSlot))
	if slot == "" {
		slot = slotFromClock(now)
	}

	reading := &entities.BPReading{
		ID:        uuid.New().String(),
		PatientID: patientID,
		Systolic:  in.Systolic,
		Diastolic: in.Diastolic,
		HeartRate: in.HeartRate,
		Source:    source,
		Timestamp: now,
		TimeSlot:  slot,
		Notes:     strings.TrimSpace(in.Notes),
		LocalDay:  now.Format(localDayLayout),
		CreatedAt: now,
	}

	count, err := s.readings.CreateWithinDailyQuota(ctx, reading, s.dailyLimit)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeQuotaExceeded) {
			observability.RecordReading(ctx, s.metrics, string(slot), false)
		}
		return nil, err
	}

	observability.RecordReading(ctx, s.metrics, string(slot), true)
	s.events.Publish(ctx, entities.NewWorkflowEvent(
		entities.WorkflowEventReadingSubmitted, reading.ID, patientID, nil,
		map[string]interface{}{"time_slot": string(slot), "today_count": count},
	))

	return &SubmitResult{
		Reading:    reading,
		TodayCount: count,
		Remaining:  max(s.dailyLimit-count, 0),
		Limit:      s.dailyLimit,
		IsComplete: count >= s.dailyLimit,
	}, nil
}

func validateReading(in ReadingInput) error {
	switch {
	case in.Systolic < minSystolic || in.Systolic > maxSystolic:
		return apperrors.NewValidationError(fmt.Sprintf("systolic must be between %d and %d", minSystolic, maxSystolic))
	case in.Diastolic < minDiastolic || in.Diastolic > maxDiastolic:
		return apperrors.NewValidationError(fmt.Sprintf("diastolic must be between %d and %d", minDiastolic, maxDiastolic))
	case in.HeartRate != 0 && (in.HeartRate < minHeartRate || in.HeartRate > maxHeartRate):
		return apperrors.NewValidationError(fmt.Sprintf("heart rate must be between %d and %d", minHeartRate, maxHeartRate))
	}

	if src := entities.ReadingSource(strings.ToLower(strings.TrimSpace(in.Source))); src != "" && !src.Valid() {
		return apperrors.NewValidationError("source must be manual or iot")
	}
	if slot := entities.TimeSlot(strings.TrimSpace(in.TimeSlot)); slot != "" && !slot.Valid() {
		return apperrors.NewValidationError("time slot must be one of morning, late-morning, afternoon, evening, night")
	}
	return nil
}

// Progress returns today's per-slot completion without changing anything
func (s *IntakeScheduler) Progress(ctx context.Context, patientID string) (*DailyProgress, error) {
	now := s.now().In(s.loc)
	start, end := dayWindow(now, s.loc)
	day := start.Format(localDayLayout)

	readings, err := s.readings.ListByPatient(ctx, patientID, repositories.BPReadingFilter{LocalDay: day})
	if err != nil {
		return nil, fmt.Errorf("failed to load today's readings: %w", err)
	}

	latest := make(map[entities.TimeSlot]*entities.BPReading, len(entities.AllTimeSlots))
	for _, r := range readings {
		if prev, ok := latest[r.TimeSlot]; !ok || r.Timestamp.After(prev.Timestamp) {
			latest[r.TimeSlot] = r
		}
	}

	progress := &DailyProgress{
		Date:        day,
		WindowStart: start,
		WindowEnd:   end,
		CurrentSlot: slotFromClock(now),
		Slots:       make([]SlotProgress, 0, len(entities.AllTimeSlots)),
		TodayCount:  len(readings),
		Remaining:   max(s.dailyLimit-len(readings), 0),
		Limit:       s.dailyLimit,
		IsComplete:  len(readings) >= s.dailyLimit,
	}
	for _, slot := range entities.AllTimeSlots {
		r, ok := latest[slot]
		progress.Slots = append(progress.Slots, SlotProgress{Slot: slot, Completed: ok, Latest: r})
	}
	if len(readings) > 0 {
		avg := averageBP(readings)
		progress.Average = &avg
	}

	return progress, nil
}

// Trend summarises the trailing window for the patient. Doctors may read the
// trend of patients who approved a link with them.
func (s *IntakeScheduler) Trend(ctx context.Context, principal entities.Principal, patientID string, days int) (*BPTrend, error) {
	if patientID == "" {
		patientID = principal.ID
	}
	if principal.IsPatient() && patientID != principal.ID {
		return nil, apperrors.NewForbiddenError("patients can only view their own readings")
	}
	if principal.IsDoctor() {
		if err := s.requireApprovedLink(ctx, patientID, principal.ID); err != nil {
			return nil, err
		}
	}
	if days <= 0 || days > 365 {
		days = s.trendDays
	}

	from := s.now().AddDate(0, 0, -days)
	readings, err := s.readings.ListByPatient(ctx, patientID, repositories.BPReadingFilter{From: &from})
	if err != nil {
		return nil, fmt.Errorf("failed to load readings: %w", err)
	}

	trend := &BPTrend{
		PatientID: patientID,
		Days:      days,
		Readings:  len(readings),
		Daily:     []DailyAverage{},
	}
	if len(readings) == 0 {
		return trend, nil
	}

	avg := averageBP(readings)
	trend.Average = &avg
	trend.Classification = entities.ClassifyBP(avg.Systolic, avg.Diastolic)
	trend.Latest = readings[0]

	byDay := make(map[string][]*entities.BPReading)
	for _, r := range readings {
		day := r.LocalDay
		if day == "" {
			day = r.Timestamp.In(s.loc).Format(localDayLayout)
		}
		byDay[day] = append(byDay[day], r)
	}
	for day, rs := range byDay {
		dayAvg := averageBP(rs)
		trend.Daily = append(trend.Daily, DailyAverage{
			Date:      day,
			Systolic:  dayAvg.Systolic,
			Diastolic: dayAvg.Diastolic,
			Readings:  len(rs),
		})
	}
	sort.Slice(trend.Daily, func(i, j int) bool { return trend.Daily[i].Date < trend.Daily[j].Date })

	return trend, nil
}

func (s *IntakeScheduler) requireApprovedLink(ctx context.Context, patientID, doctorID string) error {
	links, err := s.links.ListByDoctor(ctx, doctorID, entities.DoctorLinkStatusApproved)
	if err != nil {
		return fmt.Errorf("failed to load doctor links: %w", err)
	}
	for _, l := range links {
		if l.PatientID == patientID {
			return nil
		}
	}
	return apperrors.NewForbiddenError("doctor is not linked to this patient")
}
