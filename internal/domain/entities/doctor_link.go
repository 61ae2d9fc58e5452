package entities

import "time"

// DoctorLinkStatus is the consent state of a patient-doctor pair
type DoctorLinkStatus string

const (
	DoctorLinkStatusRequested DoctorLinkStatus = "requested"
	DoctorLinkStatusApproved  DoctorLinkStatus = "approved"
	DoctorLinkStatusDeclined  DoctorLinkStatus = "declined"
)

// IsActive reports whether the link counts toward the patient's cap
func (s DoctorLinkStatus) IsActive() bool {
	return s == DoctorLinkStatusRequested || s == DoctorLinkStatusApproved
}

// DoctorLink authorizes one doctor to review one patient's recommendations
// once it reaches the approved state.
type DoctorLink struct {
	ID          string           `json:"id" db:"id"`
	PatientID   string           `json:"patient_id" db:"patient_id"`
	DoctorID    string           `json:"doctor_id" db:"doctor_id"`
	Status      DoctorLinkStatus `json:"status" db:"status"`
	RequestedAt time.Time        `json:"requested_at" db:"requested_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty" db:"responded_at"`
	Comment     string           `json:"comment" db:"comment"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}
