package entities

import "time"

// MedicalRecordType classifies an entry in a patient's history
type MedicalRecordType string

const (
	MedicalRecordTypeCondition  MedicalRecordType = "condition"
	MedicalRecordTypeMedication MedicalRecordType = "medication"
	MedicalRecordTypeAllergy    MedicalRecordType = "allergy"
	MedicalRecordTypeSurgery    MedicalRecordType = "surgery"
)

// MedicalRecordStatus is the clinical status of a history entry
type MedicalRecordStatus string

const (
	MedicalRecordStatusActive   MedicalRecordStatus = "active"
	MedicalRecordStatusResolved MedicalRecordStatus = "resolved"
	MedicalRecordStatusOngoing  MedicalRecordStatus = "ongoing"
)

// MedicalRecord is a single history entry. The workflow only reads these.
type MedicalRecord struct {
	ID          string              `json:"id" db:"id"`
	PatientID   string              `json:"patient_id" db:"patient_id"`
	Type        MedicalRecordType   `json:"type" db:"type"`
	Title       string              `json:"title" db:"title"`
	Description string              `json:"description" db:"description"`
	Status      MedicalRecordStatus `json:"status" db:"status"`
	Dosage      string              `json:"dosage" db:"dosage"`
	Frequency   string              `json:"frequency" db:"frequency"`
	Date        time.Time           `json:"date" db:"date"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
}

// IsCurrent reports whether the entry is still active or ongoing
func (m *MedicalRecord) IsCurrent() bool {
	return m.Status == MedicalRecordStatusActive || m.Status == MedicalRecordStatusOngoing
}
