package repositories

import (
	"context"

	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// MedicalRecordRepository defines read access to a patient's history
type MedicalRecordRepository interface {
	// ListByPatient retrieves records for a patient, optionally narrowed by filter
	ListByPatient(ctx context.Context, patientID string, filter MedicalRecordFilter) ([]*entities.MedicalRecord, error)
}

// MedicalRecordFilter defines filters for listing medical records
type MedicalRecordFilter struct {
	Types    []entities.MedicalRecordType
	Statuses []entities.MedicalRecordStatus
}
