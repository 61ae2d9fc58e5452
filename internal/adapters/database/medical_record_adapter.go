package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

// MedicalRecordAdapter reads a patient's medical history
type MedicalRecordAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewMedicalRecordAdapter creates a new medical record adapter
func NewMedicalRecordAdapter(client *postgres.Client) repositories.MedicalRecordRepository {
	return &MedicalRecordAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListByPatient retrieves records for a patient, newest first
func (a *MedicalRecordAdapter) ListByPatient(ctx context.Context, patientID string, filter repositories.MedicalRecordFilter) ([]*entities.MedicalRecord, error) {
	where := goqu.Ex{"patient_id": patientID}
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		where["type"] = types
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where["status"] = statuses
	}

	query, args, err := a.db.Select(
		"id", "patient_id", "type", "title", "description", "status",
		"dosage", "frequency", "date", "created_at",
	).From("medical_records").
		Where(where).
		Order(goqu.I("date").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	records := []*entities.MedicalRecord{}
	if err := a.client.DBX().SelectContext(ctx, &records, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list medical records", err)
	}
	return records, nil
}
