package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

var doctorLinkColumns = []interface{}{
	"id", "patient_id", "doctor_id", "status", "requested_at",
	"responded_at", "comment", "created_at", "updated_at",
}

const (
	lockPatientRow = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	countActiveLinks = `
		SELECT COUNT(*) FROM doctor_links
		WHERE patient_id = $1 AND status IN ('requested', 'approved')
	`

	insertRequestedLink = `
		INSERT INTO doctor_links (id, patient_id, doctor_id, status, requested_at, comment, created_at, updated_at)
		VALUES ($1, $2, $3, 'requested', $4, '', $4, $4)
		ON CONFLICT (patient_id, doctor_id) DO NOTHING
		RETURNING id
	`
)

// DoctorLinkAdapter persists patient-doctor consent links
type DoctorLinkAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewDoctorLinkAdapter creates a new doctor link adapter
func NewDoctorLinkAdapter(client *postgres.Client) repositories.DoctorLinkRepository {
	return &DoctorLinkAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// CreateRequested creates requested links in order while the patient has capacity.
// The patient row lock serializes concurrent requests for the same patient.
func (a *DoctorLinkAdapter) CreateRequested(ctx context.Context, patientID string, doctorIDs []string, limit int) ([]*entities.DoctorLink, error) {
	tx, err := a.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var locked string
	if err := tx.QueryRowxContext(ctx, lockPatientRow, patientID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("user with id %s not found", patientID))
		}
		return nil, apperrors.NewInternalError("failed to lock patient", err)
	}

	var active int
	if err := tx.GetContext(ctx, &active, countActiveLinks, patientID); err != nil {
		return nil, apperrors.NewInternalError("failed to count doctor links", err)
	}

	created := []*entities.DoctorLink{}
	now := time.Now().UTC()
	for _, doctorID := range doctorIDs {
		if active >= limit {
			break
		}

		id := uuid.New().String()
		var insertedID string
		err := tx.QueryRowxContext(ctx, insertRequestedLink, id, patientID, doctorID, now).Scan(&insertedID)
		if errors.Is(err, sql.ErrNoRows) {
			// pair already exists
			continue
		}
		if err != nil {
			return nil, apperrors.NewInternalError("failed to create doctor link", err)
		}

		active++
		created = append(created, &entities.DoctorLink{
			ID:          insertedID,
			PatientID:   patientID,
			DoctorID:    doctorID,
			Status:      entities.DoctorLinkStatusRequested,
			RequestedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewInternalError("failed to commit doctor links", err)
	}
	return created, nil
}

// GetByID retrieves a link by ID
func (a *DoctorLinkAdapter) GetByID(ctx context.Context, id string) (*entities.DoctorLink, error) {
	query, args, err := a.db.Select(doctorLinkColumns...).
		From("doctor_links").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	link := &entities.DoctorLink{}
	if err := a.client.DBX().GetContext(ctx, link, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("doctor link with id %s not found", id))
		}
		return nil, apperrors.NewInternalError("failed to get doctor link", err)
	}
	return link, nil
}

// Respond writes the doctor's answer if the link is still requested
func (a *DoctorLinkAdapter) Respond(ctx context.Context, link *entities.DoctorLink) error {
	record := goqu.Record{
		"status":     string(link.Status),
		"comment":    link.Comment,
		"updated_at": link.UpdatedAt,
	}
	if link.RespondedAt != nil {
		record["responded_at"] = *link.RespondedAt
	}

	query, args, err := a.db.Update("doctor_links").
		Set(record).
		Where(goqu.Ex{"id": link.ID, "status": string(entities.DoctorLinkStatusRequested)}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update doctor link", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rows == 0 {
		return apperrors.NewNotPendingError("link request was already answered")
	}
	return nil
}

// ListByPatient retrieves links for a patient, newest request first
func (a *DoctorLinkAdapter) ListByPatient(ctx context.Context, patientID string, statuses ...entities.DoctorLinkStatus) ([]*entities.DoctorLink, error) {
	return a.list(ctx, goqu.Ex{"patient_id": patientID}, statuses)
}

// ListByDoctor retrieves links for a doctor, newest request first
func (a *DoctorLinkAdapter) ListByDoctor(ctx context.Context, doctorID string, statuses ...entities.DoctorLinkStatus) ([]*entities.DoctorLink, error) {
	return a.list(ctx, goqu.Ex{"doctor_id": doctorID}, statuses)
}

func (a *DoctorLinkAdapter) list(ctx context.Context, where goqu.Ex, statuses []entities.DoctorLinkStatus) ([]*entities.DoctorLink, error) {
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, string(s))
		}
		where["status"] = values
	}

	query, args, err := a.db.Select(doctorLinkColumns...).
		From("doctor_links").
		Where(where).
		Order(goqu.I("requested_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	links := []*entities.DoctorLink{}
	if err := a.client.DBX().SelectContext(ctx, &links, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list doctor links", err)
	}
	return links, nil
}
