package repositories

import (
	"context"

	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// DoctorLinkRepository defines the interface for consent link data operations
type DoctorLinkRepository interface {
	// CreateRequested atomically creates requested links for the candidate
	// doctors, in order, while the patient holds fewer than limit active links.
	// Pairs that already exist in any state are skipped without error.
	// It returns only the links it created.
	CreateRequested(ctx context.Context, patientID string, doctorIDs []string, limit int) ([]*entities.DoctorLink, error)

	// GetByID retrieves a link by ID
	GetByID(ctx context.Context, id string) (*entities.DoctorLink, error)

	// Respond moves a requested link to a terminal status. It fails with
	// NOT_PENDING when the link already left the requested state.
	Respond(ctx context.Context, link *entities.DoctorLink) error

	// ListByPatient retrieves links for a patient, newest request first
	ListByPatient(ctx context.Context, patientID string, statuses ...entities.DoctorLinkStatus) ([]*entities.DoctorLink, error)

	// ListByDoctor retrieves links for a doctor, newest request first
	ListByDoctor(ctx context.Context, doctorID string, statuses ...entities.DoctorLinkStatus) ([]*entities.DoctorLink, error)
}
