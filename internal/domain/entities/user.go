package entities

import (
	"strings"
	"time"
)

// UserRole distinguishes the two kinds of accounts in the system
type UserRole string

const (
	UserRolePatient UserRole = "patient"
	UserRoleDoctor  UserRole = "doctor"
)

// Valid reports whether the role is one the workflow knows about
func (r UserRole) Valid() bool {
	return r == UserRolePatient || r == UserRoleDoctor
}

// User represents a patient or doctor account. Only the fields the
// clinical workflow reads are modelled here.
type User struct {
	ID             string     `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	Role           UserRole   `json:"role" db:"role"`
	FullName       string     `json:"full_name" db:"full_name"`
	DoctorName     string     `json:"doctor_name,omitempty" db:"doctor_name"`
	Specialization string     `json:"specialization,omitempty" db:"specialization"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Gender         string     `json:"gender,omitempty" db:"gender"`
	City           string     `json:"city,omitempty" db:"city"`
	State          string     `json:"state,omitempty" db:"state"`
	Country        string     `json:"country,omitempty" db:"country"`
	IncomeRange    string     `json:"income_range,omitempty" db:"income_range"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Age returns the age in whole years at the given instant, or nil when unknown
func (u *User) Age(now time.Time) *int {
	if u.DateOfBirth == nil {
		return nil
	}
	dob := *u.DateOfBirth
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return &age
}

// Region joins the non-empty location parts, e.g. "Lagos, Lagos, Nigeria"
func (u *User) Region() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{u.City, u.State, u.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Principal is the authenticated caller as supplied by the upstream auth layer
type Principal struct {
	ID   string
	Role UserRole
}

// IsPatient reports whether the caller acts as a patient
func (p Principal) IsPatient() bool { return p.Role == UserRolePatient }

// IsDoctor reports whether the caller acts as a doctor
func (p Principal) IsDoctor() bool { return p.Role == UserRoleDoctor }
