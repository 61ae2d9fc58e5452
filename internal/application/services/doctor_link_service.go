package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

// Reasons a requested doctor id produced no new link
const (
	LinkSkipAlreadyActive = "already_linked"
	LinkSkipDeclined      = "previously_declined"
	LinkSkipNotDoctor     = "not_a_doctor"
	LinkSkipLimitReached  = "limit_reached"
	LinkSkipSelf          = "self"
)

// SkippedDoctor explains why no link was created for a doctor id
type SkippedDoctor struct {
	DoctorID string `json:"doctor_id"`
	Reason   string `json:"reason"`
}

// LinkRequestResult is the outcome of a batch link request
type LinkRequestResult struct {
	Created     []*entities.DoctorLink `json:"created"`
	Skipped     []SkippedDoctor        `json:"skipped"`
	ActiveCount int                    `json:"active_count"`
	Limit       int                    `json:"limit"`
}

// PatientLinks groups a patient's links by status
type PatientLinks struct {
	Approved  []*entities.DoctorLink `json:"approved"`
	Requested []*entities.DoctorLink `json:"requested"`
	Declined  []*entities.DoctorLink `json:"declined"`
	Counts    map[string]int         `json:"counts"`
}

// DoctorLinkService manages patient-doctor consent links
type DoctorLinkService struct {
	links     repositories.DoctorLinkRepository
	users     repositories.UserRepository
	maxActive int
	events    *WorkflowPublisher
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewDoctorLinkService creates a new doctor link service
func NewDoctorLinkService(
	links repositories.DoctorLinkRepository,
	users repositories.UserRepository,
	maxActive int,
	events *WorkflowPublisher,
	metrics *observability.Metrics,
) *DoctorLinkService {
	if maxActive <= 0 {
		maxActive = 4
	}
	return &DoctorLinkService{
		links:     links,
		users:     users,
		maxActive: maxActive,
		events:    events,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Request asks each doctor to review the patient. Duplicates, existing pairs
// and non-doctor ids are skipped; the remaining ids consume the free capacity
// in input order.
func (s *DoctorLinkService) Request(ctx context.Context, patientID string, doctorIDs []string) (*LinkRequestResult, error) {
	if len(doctorIDs) == 0 {
		return nil, apperrors.NewValidationError("doctorIds must be a non-empty list")
	}

	existing, err := s.links.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load doctor links: %w", err)
	}
	byDoctor := make(map[string]entities.DoctorLinkStatus, len(existing))
	active := 0
	for _, l := range existing {
		byDoctor[l.DoctorID] = l.Status
		if l.Status.IsActive() {
			active++
		}
	}

	result := &LinkRequestResult{
		Created: []*entities.DoctorLink{},
		Skipped: []SkippedDoctor{},
		Limit:   s.maxActive,
	}

	seen := make(map[string]bool, len(doctorIDs))
	candidates := make([]string, 0, len(doctorIDs))
	for _, id := range doctorIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		status, linked := byDoctor[id]
		switch {
		case id == patientID:
			result.Skipped = append(result.Skipped, SkippedDoctor{DoctorID: id, Reason: LinkSkipSelf})
		case linked && status.IsActive():
			result.Skipped = append(result.Skipped, SkippedDoctor{DoctorID: id, Reason: LinkSkipAlreadyActive})
		case linked:
			result.Skipped = append(result.Skipped, SkippedDoctor{DoctorID: id, Reason: LinkSkipDeclined})
		default:
			candidates = append(candidates, id)
		}
	}

	if len(candidates) > 0 {
		doctors, err := s.users.FilterDoctorIDs(ctx, candidates)
		if err != nil {
			return nil, fmt.Errorf("failed to validate doctors: %w", err)
		}
		isDoctor := make(map[string]bool, len(doctors))
		for _, id := range doctors {
			isDoctor[id] = true
		}

		valid := candidates[:0]
		for _, id := range candidates {
			if isDoctor[id] {
				valid = append(valid, id)
			} else {
				result.Skipped = append(result.Skipped, SkippedDoctor{DoctorID: id, Reason: LinkSkipNotDoctor})
			}
		}
		candidates = valid
	}

	if len(candidates) > 0 && active < s.maxActive {
		created, err := s.links.CreateRequested(ctx, patientID, candidates, s.maxActive)
		if err != nil {
			return nil, err
		}
		result.Created = created
	}

	createdIDs := make(map[string]bool, len(result.Created))
	for _, l := range result.Created {
		createdIDs[l.DoctorID] = true
	}
	for _, id := range candidates {
		if !createdIDs[id] {
			result.Skipped = append(result.Skipped, SkippedDoctor{DoctorID: id, Reason: LinkSkipLimitReached})
		}
	}
	result.ActiveCount = active + len(result.Created)

	if len(result.Created) > 0 {
		observability.RecordDoctorLinkChange(ctx, s.metrics, string(entities.DoctorLinkStatusRequested), len(result.Created))
		doctorIDs := make([]string, 0, len(result.Created))
		for _, l := range result.Created {
			doctorIDs = append(doctorIDs, l.DoctorID)
		}
		s.events.Publish(ctx, entities.NewWorkflowEvent(
			entities.WorkflowEventLinkRequested, patientID, patientID, doctorIDs, nil,
		))
	}
	return result, nil
}

// Accept approves a requested link addressed to the doctor
func (s *DoctorLinkService) Accept(ctx context.Context, linkID, doctorID, comment string) (*entities.DoctorLink, error) {
	return s.respond(ctx, linkID, doctorID, entities.DoctorLinkStatusApproved, comment)
}

// Decline refuses a requested link addressed to the doctor. The pair stays locked afterwards.
func (s *DoctorLinkService) Decline(ctx context.Context, linkID, doctorID, comment string) (*entities.DoctorLink, error) {
	return s.respond(ctx, linkID, doctorID, entities.DoctorLinkStatusDeclined, comment)
}

func (s *DoctorLinkService) respond(ctx context.Context, linkID, doctorID string, status entities.DoctorLinkStatus, comment string) (*entities.DoctorLink, error) {
	link, err := s.links.GetByID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link.DoctorID != doctorID {
		return nil, apperrors.NewForbiddenError("link request is addressed to another doctor")
	}
	if link.Status != entities.DoctorLinkStatusRequested {
		return nil, apperrors.NewNotPendingError(fmt.Sprintf("link request already %s", link.Status))
	}

	now := s.now()
	link.Status = status
	link.RespondedAt = &now
	link.UpdatedAt = now
	if comment = strings.TrimSpace(comment); comment != "" {
		link.Comment = comment
	}

	if err := s.links.Respond(ctx, link); err != nil {
		return nil, err
	}

	observability.RecordDoctorLinkChange(ctx, s.metrics, string(status), 1)
	s.events.Publish(ctx, entities.NewWorkflowEvent(
		entities.WorkflowEventLinkResponded, link.ID, link.PatientID, []string{doctorID},
		map[string]interface{}{"status": string(status)},
	))
	return link, nil
}

// MyDoctors returns the patient's links grouped by status
func (s *DoctorLinkService) MyDoctors(ctx context.Context, patientID string) (*PatientLinks, error) {
	links, err := s.links.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	out := &PatientLinks{
		Approved:  []*entities.DoctorLink{},
		Requested: []*entities.DoctorLink{},
		Declined:  []*entities.DoctorLink{},
	}
	for _, l := range links {
		switch l.Status {
		case entities.DoctorLinkStatusApproved:
			out.Approved = append(out.Approved, l)
		case entities.DoctorLinkStatusRequested:
			out.Requested = append(out.Requested, l)
		case entities.DoctorLinkStatusDeclined:
			out.Declined = append(out.Declined, l)
		}
	}
	out.Counts = map[string]int{
		string(entities.DoctorLinkStatusApproved):  len(out.Approved),
		string(entities.DoctorLinkStatusRequested): len(out.Requested),
		string(entities.DoctorLinkStatusDeclined):  len(out.Declined),
	}
	return out, nil
}

// IncomingRequests lists links awaiting the doctor's answer
func (s *DoctorLinkService) IncomingRequests(ctx context.Context, doctorID string) ([]*entities.DoctorLink, error) {
	return s.links.ListByDoctor(ctx, doctorID, entities.DoctorLinkStatusRequested)
}

// AssignedPatients lists links the doctor approved
func (s *DoctorLinkService) AssignedPatients(ctx context.Context, doctorID string) ([]*entities.DoctorLink, error) {
	return s.links.ListByDoctor(ctx, doctorID, entities.DoctorLinkStatusApproved)
}
