package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

var userColumns = []interface{}{
	"id", "email", "role", "full_name", "doctor_name", "specialization",
	"date_of_birth", "gender", "city", "state", "country", "income_range",
	"created_at", "updated_at",
}

// UserAdapter reads patient and doctor accounts
type UserAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewUserAdapter creates a new user adapter
func NewUserAdapter(client *postgres.Client) repositories.UserRepository {
	return &UserAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByID retrieves a user by ID
func (a *UserAdapter) GetByID(ctx context.Context, id string) (*entities.User, error) {
	query, args, err := a.db.Select(userColumns...).
		From("users").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	user := &entities.User{}
	if err := a.client.DBX().GetContext(ctx, user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("user with id %s not found", id))
		}
		return nil, apperrors.NewInternalError("failed to get user", err)
	}
	return user, nil
}

// FilterDoctorIDs returns the ids that belong to doctor accounts, keeping input order
func (a *UserAdapter) FilterDoctorIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	query, args, err := a.db.Select("id").
		From("users").
		Where(goqu.Ex{"id": ids, "role": string(entities.UserRoleDoctor)}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var found []string
	if err := a.client.DBX().SelectContext(ctx, &found, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to filter doctors", err)
	}

	isDoctor := make(map[string]bool, len(found))
	for _, id := range found {
		isDoctor[id] = true
	}
	out := make([]string, 0, len(found))
	for _, id := range ids {
		if isDoctor[id] {
			out = append(out, id)
			isDoctor[id] = false
		}
	}
	return out, nil
}
