package entities

import (
	"time"
)

// RecommendationStatus is the review state of a recommendation
type RecommendationStatus string

const (
	RecommendationStatusPending  RecommendationStatus = "pending"
	RecommendationStatusApproved RecommendationStatus = "approved"
	RecommendationStatusRejected RecommendationStatus = "rejected"
	RecommendationStatusModified RecommendationStatus = "modified"
)

// IsTerminal reports whether the status is one of the review outcomes
func (s RecommendationStatus) IsTerminal() bool {
	return s == RecommendationStatusApproved || s == RecommendationStatusRejected || s == RecommendationStatusModified
}

// Availability is the regional availability of a medication
type Availability string

const (
	AvailabilityHigh   Availability = "high"
	AvailabilityMedium Availability = "medium"
	AvailabilityLow    Availability = "low"
)

// Valid reports whether the availability is known
func (a Availability) Valid() bool {
	return a == AvailabilityHigh || a == AvailabilityMedium || a == AvailabilityLow
}

// Medication is a suggested drug with cost and availability
type Medication struct {
	Name         string       `json:"name"`
	Dosage       string       `json:"dosage"`
	Frequency    string       `json:"frequency"`
	Cost         float64      `json:"cost"`
	Availability Availability `json:"availability"`
	SideEffects  []string     `json:"side_effects"`
}

// BPAverage is the mean pressure the recommendation was based on
type BPAverage struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// MaxAssignedDoctors caps the reviewers a single recommendation can have
const MaxAssignedDoctors = 4

// Recommendation is an AI- or heuristic-generated care suggestion that
// must be reviewed by an assigned doctor.
type Recommendation struct {
	ID                         string               `json:"id"`
	PatientID                  string               `json:"patient_id"`
	AssignedDoctorIDs          []string             `json:"assigned_doctor_ids"`
	Medications                []Medication         `json:"medications"`
	PatientSelectedMedications []Medication         `json:"patient_selected_medications"`
	SelectedAt                 *time.Time           `json:"selected_at,omitempty"`
	LifestyleAdvice            []string             `json:"lifestyle_advice"`
	PatientMessage             string               `json:"patient_message"`
	Reasoning                  string               `json:"reasoning"`
	Region                     string               `json:"region"`
	Confidence                 int                  `json:"confidence"`
	Status                     RecommendationStatus `json:"status"`
	DoctorID                   string               `json:"doctor_id,omitempty"`
	DoctorNotes                string               `json:"doctor_notes"`
	ReviewedAt                 *time.Time           `json:"reviewed_at,omitempty"`
	AIModel                    string               `json:"ai_model"`
	AIPrompt                   string               `json:"ai_prompt,omitempty"`
	BPAverage                  BPAverage            `json:"bp_average"`
	MedicalHistorySummary      []string             `json:"medical_history_summary"`
	Allergies                  []string             `json:"allergies"`
	CreatedAt                  time.Time            `json:"created_at"`
	UpdatedAt                  time.Time            `json:"updated_at"`
}

// IsAssigned reports whether doctorID may review the recommendation
func (r *Recommendation) IsAssigned(doctorID string) bool {
	for _, id := range r.AssignedDoctorIDs {
		if id == doctorID {
			return true
		}
	}
	return false
}
