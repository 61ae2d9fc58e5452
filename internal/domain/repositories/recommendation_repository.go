package repositories

import (
	"context"

	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// RecommendationRepository defines the interface for recommendation data operations
type RecommendationRepository interface {
	// Create creates a new recommendation
	Create(ctx context.Context, rec *entities.Recommendation) error

	// GetByID retrieves a recommendation by ID
	GetByID(ctx context.Context, id string) (*entities.Recommendation, error)

	// Review writes the terminal review fields only if the record is still
	// pending. It fails with NOT_PENDING when another review committed first.
	Review(ctx context.Context, rec *entities.Recommendation) error

	// UpdateAssignment replaces the assigned doctor set only if it still equals
	// previous. A concurrent change fails with CONFLICT so the caller can re-merge.
	UpdateAssignment(ctx context.Context, id string, previous, next []string) error

	// UpdateSelection writes the patient's medication selection and assigned
	// doctors only if the record is still pending.
	UpdateSelection(ctx context.Context, rec *entities.Recommendation) error

	// ListByPatient retrieves recommendations for a patient, newest first
	ListByPatient(ctx context.Context, patientID string, filter RecommendationFilter) ([]*entities.Recommendation, error)

	// ListAssignedToDoctor retrieves recommendations a doctor is assigned to, newest first
	ListAssignedToDoctor(ctx context.Context, doctorID string, filter RecommendationFilter) ([]*entities.Recommendation, error)
}

// RecommendationFilter defines filters for listing recommendations
type RecommendationFilter struct {
	Status entities.RecommendationStatus
	Limit  int
}
