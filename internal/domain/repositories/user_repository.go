package repositories

import (
	"context"

	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// UserRepository defines the read operations the workflow needs on accounts
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*entities.User, error)

	// FilterDoctorIDs returns the subset of ids that belong to doctor accounts, in input order
	FilterDoctorIDs(ctx context.Context, ids []string) ([]string, error)
}
