package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
	"github.com/zatekoja/bpcare/pkg/retry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// RecommendationGenerator produces unsaved recommendation drafts
type RecommendationGenerator interface {
	Generate(ctx context.Context, patientID string) (*entities.Recommendation, error)
}

// MedicationInput is a medication as submitted by a client. Cost is a
// pointer so a missing cost can be told apart from a zero cost.
type MedicationInput struct {
	Name         string   `json:"name"`
	Dosage       string   `json:"dosage"`
	Frequency    string   `json:"frequency"`
	Cost         *float64 `json:"cost"`
	Availability string   `json:"availability"`
	SideEffects  []string `json:"side_effects"`
}

// RecommendationList is a page of recommendations with per-status counts of that page
type RecommendationList struct {
	Items          []*entities.Recommendation            `json:"items"`
	CountsByStatus map[entities.RecommendationStatus]int `json:"counts_by_status"`
}

// RecommendationService owns the review lifecycle of recommendations
type RecommendationService struct {
	repo      repositories.RecommendationRepository
	links     repositories.DoctorLinkRepository
	generator RecommendationGenerator
	limiter   *RateLimiter
	events    *WorkflowPublisher
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewRecommendationService creates a new recommendation service
func NewRecommendationService(
	repo repositories.RecommendationRepository,
	links repositories.DoctorLinkRepository,
	generator RecommendationGenerator,
	limiter *RateLimiter,
	events *WorkflowPublisher,
	metrics *observability.Metrics,
) *RecommendationService {
	return &RecommendationService{
		repo:      repo,
		links:     links,
		generator: generator,
		limiter:   limiter,
		events:    events,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Generate creates and stores a pending recommendation for the patient.
// assignedDoctorIDs is optional; only doctors with an approved link are kept.
func (s *RecommendationService) Generate(ctx context.Context, patientID string, assignedDoctorIDs []string) (*entities.Recommendation, error) {
	if ok, retryAfter := s.limiter.Allow(ctx, patientID); !ok {
		return nil, apperrors.NewRateLimitedError("too many recommendation requests, please try again later", int(retryAfter.Seconds()))
	}

	rec, err := s.generator.Generate(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if len(assignedDoctorIDs) > 0 {
		approved, err := s.approvedDoctors(ctx, patientID)
		if err != nil {
			return nil, err
		}
		rec.AssignedDoctorIDs, _ = mergeAssignedDoctors(nil, assignedDoctorIDs, approved)
	}

	now := s.now()
	rec.ID = uuid.New().String()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save recommendation: %w", err)
	}

	observability.RecordRecommendationGenerated(ctx, s.metrics, rec.AIModel)
	s.events.Publish(ctx, entities.NewWorkflowEvent(
		entities.WorkflowEventRecommendationCreated, rec.ID, rec.PatientID, rec.AssignedDoctorIDs,
		map[string]interface{}{"ai_model": rec.AIModel, "confidence": rec.Confidence},
	))
	return rec, nil
}

// Approve accepts a pending recommendation. Notes are optional.
func (s *RecommendationService) Approve(ctx context.Context, id, doctorID, notes string) (*entities.Recommendation, error) {
	return s.review(ctx, id, doctorID, entities.RecommendationStatusApproved, notes, nil)
}

// Reject declines a pending recommendation. Notes are required.
func (s *RecommendationService) Reject(ctx context.Context, id, doctorID, notes string) (*entities.Recommendation, error) {
	return s.review(ctx, id, doctorID, entities.RecommendationStatusRejected, notes, nil)
}

// Modify marks a pending recommendation as modified, optionally replacing
// its medication list. Notes are required.
func (s *RecommendationService) Modify(ctx context.Context, id, doctorID, notes string, medications []MedicationInput) (*entities.Recommendation, error) {
	return s.review(ctx, id, doctorID, entities.RecommendationStatusModified, notes, medications)
}

func (s *RecommendationService) review(
	ctx context.Context,
	id, doctorID string,
	status entities.RecommendationStatus,
	notes string,
	medications []MedicationInput,
) (*entities.Recommendation, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Membership is checked before review state
	if !rec.IsAssigned(doctorID) {
		return nil, apperrors.NewForbiddenError("doctor is not assigned to this recommendation")
	}
	if rec.Status != entities.RecommendationStatusPending {
		return nil, apperrors.NewNotPendingError(fmt.Sprintf("recommendation already %s", rec.Status))
	}

	notes = strings.TrimSpace(notes)
	if status != entities.RecommendationStatusApproved && notes == "" {
		return nil, apperrors.NewValidationError("doctor notes are required")
	}

	if medications != nil {
		meds, err := toMedications(medications, false)
		if err != nil {
			return nil, err
		}
		rec.Medications = meds
		rec.PatientMessage = buildPatientMessage(meds)
	}

	now := s.now()
	rec.Status = status
	rec.DoctorID = doctorID
	rec.DoctorNotes = notes
	rec.ReviewedAt = &now
	rec.UpdatedAt = now

	if err := s.repo.Review(ctx, rec); err != nil {
		return nil, err
	}

	observability.RecordRecommendationReviewed(ctx, s.metrics, string(status))
	s.events.Publish(ctx, entities.NewWorkflowEvent(
		entities.WorkflowEventRecommendationReviewed, rec.ID, rec.PatientID, []string{doctorID},
		map[string]interface{}{"status": string(status)},
	))
	return rec, nil
}

// AssignDoctors adds approved-linked doctors to the reviewer set. Unlinked ids
// are dropped silently and repeated calls are idempotent.
func (s *RecommendationService) AssignDoctors(ctx context.Context, id, patientID string, doctorIDs []string) (*entities.Recommendation, error) {
	if len(doctorIDs) == 0 {
		return nil, apperrors.NewValidationError("at least one doctor id is required")
	}

	approved, err := s.approvedDoctors(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var (
		rec   *entities.Recommendation
		added []string
	)
	retryCfg := retry.Config{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2,
		Retryable: func(err error) bool {
			return apperrors.IsType(err, apperrors.ErrorTypeConflict)
		},
	}
	err = retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.PatientID != patientID {
			return apperrors.NewForbiddenError("recommendation belongs to another patient")
		}

		merged, newIDs := mergeAssignedDoctors(current.AssignedDoctorIDs, doctorIDs, approved)
		rec, added = current, newIDs
		if len(newIDs) == 0 {
			return nil
		}
		if err := s.repo.UpdateAssignment(ctx, current.ID, current.AssignedDoctorIDs, merged); err != nil {
			return err
		}
		current.AssignedDoctorIDs = merged
		current.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(added) > 0 {
		s.events.Publish(ctx, entities.NewWorkflowEvent(
			entities.WorkflowEventRecommendationAssigned, rec.ID, rec.PatientID, added, nil,
		))
	}
	return rec, nil
}

// SelectMedications records which recommended medications the patient wants
// reviewed. Validation is all-or-nothing: one bad entry rejects the call.
func (s *RecommendationService) SelectMedications(ctx context.Context, id, patientID string, selection []MedicationInput, doctorIDs []string) (*entities.Recommendation, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.PatientID != patientID {
		return nil, apperrors.NewForbiddenError("recommendation belongs to another patient")
	}
	if rec.Status != entities.RecommendationStatusPending {
		return nil, apperrors.NewNotPendingError(fmt.Sprintf("recommendation already %s", rec.Status))
	}
	if len(selection) == 0 {
		return nil, apperrors.NewValidationError("select at least one medication")
	}

	selected, err := toMedications(selection, true)
	if err != nil {
		return nil, err
	}

	recommended := make(map[string]bool, len(rec.Medications))
	for _, m := range rec.Medications {
		recommended[strings.ToLower(m.Name)] = true
	}
	for i, m := range selected {
		if !recommended[strings.ToLower(m.Name)] {
			return nil, apperrors.NewValidationError(fmt.Sprintf("medication %q was not recommended", m.Name)).WithDetail("index", i)
		}
	}

	var added []string
	if len(doctorIDs) > 0 {
		approved, err := s.approvedDoctors(ctx, patientID)
		if err != nil {
			return nil, err
		}
		rec.AssignedDoctorIDs, added = mergeAssignedDoctors(rec.AssignedDoctorIDs, doctorIDs, approved)
	}

	now := s.now()
	rec.PatientSelectedMedications = selected
	rec.SelectedAt = &now
	rec.UpdatedAt = now

	if err := s.repo.UpdateSelection(ctx, rec); err != nil {
		return nil, err
	}

	if len(added) > 0 {
		s.events.Publish(ctx, entities.NewWorkflowEvent(
			entities.WorkflowEventRecommendationAssigned, rec.ID, rec.PatientID, added, nil,
		))
	}
	return rec, nil
}

// Get returns a recommendation visible to the principal: patients see their
// own, doctors see those assigned to them or reviewed by them.
func (s *RecommendationService) Get(ctx context.Context, id string, principal entities.Principal) (*entities.Recommendation, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case principal.IsPatient() && rec.PatientID == principal.ID:
		return rec, nil
	case principal.IsDoctor() && (rec.IsAssigned(principal.ID) || rec.DoctorID == principal.ID):
		return rec, nil
	default:
		return nil, apperrors.NewForbiddenError("not allowed to view this recommendation")
	}
}

// ListForPatient lists the patient's recommendations, newest first
func (s *RecommendationService) ListForPatient(ctx context.Context, patientID string, status entities.RecommendationStatus, limit int) (*RecommendationList, error) {
	if status != "" && status != entities.RecommendationStatusPending && !status.IsTerminal() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown status %q", status))
	}

	items, err := s.repo.ListByPatient(ctx, patientID, repositories.RecommendationFilter{Status: status, Limit: clampLimit(limit)})
	if err != nil {
		return nil, err
	}

	counts := make(map[entities.RecommendationStatus]int)
	for _, rec := range items {
		counts[rec.Status]++
	}
	return &RecommendationList{Items: items, CountsByStatus: counts}, nil
}

// ListPendingForDoctor lists pending recommendations assigned to the doctor
func (s *RecommendationService) ListPendingForDoctor(ctx context.Context, doctorID string, limit int) ([]*entities.Recommendation, error) {
	return s.repo.ListAssignedToDoctor(ctx, doctorID, repositories.RecommendationFilter{
		Status: entities.RecommendationStatusPending,
		Limit:  clampLimit(limit),
	})
}

func (s *RecommendationService) approvedDoctors(ctx context.Context, patientID string) (map[string]bool, error) {
	links, err := s.links.ListByPatient(ctx, patientID, entities.DoctorLinkStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to load doctor links: %w", err)
	}
	approved := make(map[string]bool, len(links))
	for _, l := range links {
		approved[l.DoctorID] = true
	}
	return approved, nil
}

// mergeAssignedDoctors appends approved candidates to existing in input
// order, skipping duplicates, until the reviewer cap is reached. It returns
// the merged set and the ids that were newly added.
func mergeAssignedDoctors(existing, candidates []string, approved map[string]bool) ([]string, []string) {
	merged := make([]string, 0, entities.MaxAssignedDoctors)
	var added []string
	seen := make(map[string]bool, len(existing)+len(candidates))
	for _, id := range existing {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	for _, id := range candidates {
		id = strings.TrimSpace(id)
		if len(merged) >= entities.MaxAssignedDoctors {
			break
		}
		if id == "" || seen[id] || !approved[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, id)
		added = append(added, id)
	}
	return merged, added
}

// toMedications validates every entry before converting any of them
func toMedications(inputs []MedicationInput, requireCost bool) ([]entities.Medication, error) {
	meds := make([]entities.Medication, 0, len(inputs))
	for i, in := range inputs {
		var missing []string
		if strings.TrimSpace(in.Name) == "" {
			missing = append(missing, "name")
		}
		if strings.TrimSpace(in.Dosage) == "" {
			missing = append(missing, "dosage")
		}
		if strings.TrimSpace(in.Frequency) == "" {
			missing = append(missing, "frequency")
		}
		if requireCost && in.Cost == nil {
			missing = append(missing, "cost")
		}
		if len(missing) > 0 {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("medication %d is missing %s", i+1, strings.Join(missing, ", "))).
				WithDetail("index", i).
				WithDetail("missing", missing)
		}
		if in.Cost != nil && *in.Cost < 0 {
			return nil, apperrors.NewValidationError(fmt.Sprintf("medication %d has a negative cost", i+1)).WithDetail("index", i)
		}

		avail := entities.Availability(strings.ToLower(strings.TrimSpace(in.Availability)))
		if avail != "" && !avail.Valid() {
			return nil, apperrors.NewValidationError(fmt.Sprintf("medication %d has unknown availability %q", i+1, in.Availability)).WithDetail("index", i)
		}

		med := entities.Medication{
			Name:         strings.TrimSpace(in.Name),
			Dosage:       strings.TrimSpace(in.Dosage),
			Frequency:    strings.TrimSpace(in.Frequency),
			Availability: avail,
			SideEffects:  in.SideEffects,
		}
		if in.Cost != nil {
			med.Cost = *in.Cost
		}
		if med.SideEffects == nil {
			med.SideEffects = []string{}
		}
		meds = append(meds, med)
	}
	return meds, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}
