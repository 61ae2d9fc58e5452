package entities

import "time"

// ChatRole is the author of a chat message
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of the patient assistant conversation
type ChatMessage struct {
	ID        string    `json:"id" db:"id"`
	PatientID string    `json:"patient_id" db:"patient_id"`
	Role      ChatRole  `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
