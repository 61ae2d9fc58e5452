package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

var recommendationColumns = []interface{}{
	"id", "patient_id", "assigned_doctor_ids", "medications", "patient_selected_medications",
	"selected_at", "lifestyle_advice", "patient_message", "reasoning", "region", "confidence",
	"status", "doctor_id", "doctor_notes", "reviewed_at", "ai_model", "ai_prompt",
	"bp_systolic", "bp_diastolic", "medical_history_summary", "allergies",
	"created_at", "updated_at",
}

// recommendationRow is the storage shape of a recommendation. Medication
// lists are JSONB, string lists are TEXT[].
type recommendationRow struct {
	ID                         string         `db:"id"`
	PatientID                  string         `db:"patient_id"`
	AssignedDoctorIDs          pq.StringArray `db:"assigned_doctor_ids"`
	Medications                []byte         `db:"medications"`
	PatientSelectedMedications []byte         `db:"patient_selected_medications"`
	SelectedAt                 *time.Time     `db:"selected_at"`
	LifestyleAdvice            pq.StringArray `db:"lifestyle_advice"`
	PatientMessage             string         `db:"patient_message"`
	Reasoning                  string         `db:"reasoning"`
	Region                     string         `db:"region"`
	Confidence                 int            `db:"confidence"`
	Status                     string         `db:"status"`
	DoctorID                   sql.NullString `db:"doctor_id"`
	DoctorNotes                string         `db:"doctor_notes"`
	ReviewedAt                 *time.Time     `db:"reviewed_at"`
	AIModel                    string         `db:"ai_model"`
	AIPrompt                   string         `db:"ai_prompt"`
	BPSystolic                 int            `db:"bp_systolic"`
	BPDiastolic                int            `db:"bp_diastolic"`
	MedicalHistorySummary      pq.StringArray `db:"medical_history_summary"`
	Allergies                  pq.StringArray `db:"allergies"`
	CreatedAt                  time.Time      `db:"created_at"`
	UpdatedAt                  time.Time      `db:"updated_at"`
}

func (r *recommendationRow) toEntity() (*entities.Recommendation, error) {
	rec := &entities.Recommendation{
		ID:                    r.ID,
		PatientID:             r.PatientID,
		AssignedDoctorIDs:     nonNil(r.AssignedDoctorIDs),
		SelectedAt:            r.SelectedAt,
		LifestyleAdvice:       nonNil(r.LifestyleAdvice),
		PatientMessage:        r.PatientMessage,
		Reasoning:             r.Reasoning,
		Region:                r.Region,
		Confidence:            r.Confidence,
		Status:                entities.RecommendationStatus(r.Status),
		DoctorID:              r.DoctorID.String,
		DoctorNotes:           r.DoctorNotes,
		ReviewedAt:            r.ReviewedAt,
		AIModel:               r.AIModel,
		AIPrompt:              r.AIPrompt,
		BPAverage:             entities.BPAverage{Systolic: r.BPSystolic, Diastolic: r.BPDiastolic},
		MedicalHistorySummary: nonNil(r.MedicalHistorySummary),
		Allergies:             nonNil(r.Allergies),
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}

	var err error
	if rec.Medications, err = decodeMedications(r.Medications); err != nil {
		return nil, err
	}
	if rec.PatientSelectedMedications, err = decodeMedications(r.PatientSelectedMedications); err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeMedications(raw []byte) ([]entities.Medication, error) {
	meds := []entities.Medication{}
	if len(raw) == 0 {
		return meds, nil
	}
	if err := json.Unmarshal(raw, &meds); err != nil {
		return nil, fmt.Errorf("failed to decode medications: %w", err)
	}
	return meds, nil
}

func encodeMedications(meds []entities.Medication) ([]byte, error) {
	if meds == nil {
		meds = []entities.Medication{}
	}
	return json.Marshal(meds)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// RecommendationAdapter persists recommendations
type RecommendationAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewRecommendationAdapter creates a new recommendation adapter
func NewRecommendationAdapter(client *postgres.Client) repositories.RecommendationRepository {
	return &RecommendationAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts a new recommendation
func (a *RecommendationAdapter) Create(ctx context.Context, rec *entities.Recommendation) error {
	meds, err := encodeMedications(rec.Medications)
	if err != nil {
		return apperrors.NewInternalError("failed to encode medications", err)
	}
	selected, err := encodeMedications(rec.PatientSelectedMedications)
	if err != nil {
		return apperrors.NewInternalError("failed to encode medications", err)
	}

	query := `
		INSERT INTO recommendations (
			id, patient_id, assigned_doctor_ids, medications, patient_selected_medications,
			lifestyle_advice, patient_message, reasoning, region, confidence, status,
			doctor_notes, ai_model, ai_prompt, bp_systolic, bp_diastolic,
			medical_history_summary, allergies, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, '', $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err = a.client.DB().ExecContext(ctx, query,
		rec.ID,
		rec.PatientID,
		pq.Array(nonNil(rec.AssignedDoctorIDs)),
		meds,
		selected,
		pq.Array(nonNil(rec.LifestyleAdvice)),
		rec.PatientMessage,
		rec.Reasoning,
		rec.Region,
		rec.Confidence,
		string(rec.Status),
		rec.AIModel,
		rec.AIPrompt,
		rec.BPAverage.Systolic,
		rec.BPAverage.Diastolic,
		pq.Array(nonNil(rec.MedicalHistorySummary)),
		pq.Array(nonNil(rec.Allergies)),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewInternalError("failed to create recommendation", err)
	}
	return nil
}

// GetByID retrieves a recommendation by ID
func (a *RecommendationAdapter) GetByID(ctx context.Context, id string) (*entities.Recommendation, error) {
	query, args, err := a.db.Select(recommendationColumns...).
		From("recommendations").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var row recommendationRow
	if err := a.client.DBX().GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("recommendation with id %s not found", id))
		}
		return nil, apperrors.NewInternalError("failed to get recommendation", err)
	}

	rec, err := row.toEntity()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read recommendation", err)
	}
	return rec, nil
}

// Review stores the review outcome if the recommendation is still pending
func (a *RecommendationAdapter) Review(ctx context.Context, rec *entities.Recommendation) error {
	meds, err := encodeMedications(rec.Medications)
	if err != nil {
		return apperrors.NewInternalError("failed to encode medications", err)
	}

	query := `
		UPDATE recommendations SET
			status = $2, doctor_id = $3, doctor_notes = $4, reviewed_at = $5,
			medications = $6, patient_message = $7, updated_at = $8
		WHERE id = $1 AND status = 'pending'
	`
	result, err := a.client.DB().ExecContext(ctx, query,
		rec.ID,
		string(rec.Status),
		rec.DoctorID,
		rec.DoctorNotes,
		rec.ReviewedAt,
		meds,
		rec.PatientMessage,
		rec.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewInternalError("failed to review recommendation", err)
	}
	return expectOneRow(result, apperrors.NewNotPendingError("recommendation was already reviewed"))
}

// UpdateAssignment swaps the reviewer set if nobody changed it in between
func (a *RecommendationAdapter) UpdateAssignment(ctx context.Context, id string, previous, next []string) error {
	query := `
		UPDATE recommendations SET assigned_doctor_ids = $3, updated_at = $4
		WHERE id = $1 AND assigned_doctor_ids = $2
	`
	result, err := a.client.DB().ExecContext(ctx, query,
		id,
		pq.Array(nonNil(previous)),
		pq.Array(nonNil(next)),
		time.Now().UTC(),
	)
	if err != nil {
		return apperrors.NewInternalError("failed to assign doctors", err)
	}
	return expectOneRow(result, apperrors.NewConflictError("assigned doctors changed concurrently"))
}

// UpdateSelection stores the patient's selection if the recommendation is still pending
func (a *RecommendationAdapter) UpdateSelection(ctx context.Context, rec *entities.Recommendation) error {
	selected, err := encodeMedications(rec.PatientSelectedMedications)
	if err != nil {
		return apperrors.NewInternalError("failed to encode medications", err)
	}

	query := `
		UPDATE recommendations SET
			patient_selected_medications = $2, selected_at = $3,
			assigned_doctor_ids = $4, updated_at = $5
		WHERE id = $1 AND status = 'pending'
	`
	result, err := a.client.DB().ExecContext(ctx, query,
		rec.ID,
		selected,
		rec.SelectedAt,
		pq.Array(nonNil(rec.AssignedDoctorIDs)),
		rec.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewInternalError("failed to save medication selection", err)
	}
	return expectOneRow(result, apperrors.NewNotPendingError("recommendation was already reviewed"))
}

// ListByPatient retrieves a patient's recommendations, newest first
func (a *RecommendationAdapter) ListByPatient(ctx context.Context, patientID string, filter repositories.RecommendationFilter) ([]*entities.Recommendation, error) {
	return a.list(ctx, goqu.Ex{"patient_id": patientID}, filter)
}

// ListAssignedToDoctor retrieves recommendations the doctor may review, newest first
func (a *RecommendationAdapter) ListAssignedToDoctor(ctx context.Context, doctorID string, filter repositories.RecommendationFilter) ([]*entities.Recommendation, error) {
	return a.list(ctx, goqu.L("? = ANY(assigned_doctor_ids)", doctorID), filter)
}

func (a *RecommendationAdapter) list(ctx context.Context, where goqu.Expression, filter repositories.RecommendationFilter) ([]*entities.Recommendation, error) {
	ds := a.db.Select(recommendationColumns...).
		From("recommendations").
		Where(where).
		Order(goqu.I("created_at").Desc())
	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var rows []recommendationRow
	if err := a.client.DBX().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list recommendations", err)
	}

	recs := make([]*entities.Recommendation, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toEntity()
		if err != nil {
			return nil, apperrors.NewInternalError("failed to read recommendation", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func expectOneRow(result sql.Result, onZero error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rows == 0 {
		return onZero
	}
	return nil
}
