package entities

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowEventType names a state change worth telling the outside world about
type WorkflowEventType string

const (
	WorkflowEventRecommendationCreated  WorkflowEventType = "recommendation.created"
	WorkflowEventRecommendationAssigned WorkflowEventType = "recommendation.assigned"
	WorkflowEventRecommendationReviewed WorkflowEventType = "recommendation.reviewed"
	WorkflowEventLinkRequested          WorkflowEventType = "doctor_link.requested"
	WorkflowEventLinkResponded          WorkflowEventType = "doctor_link.responded"
	WorkflowEventReadingSubmitted       WorkflowEventType = "bp_reading.submitted"
)

// WorkflowEvent is published after a state change commits. Consumers such as
// notifiers live outside the workflow and subscribe through the event bus.
type WorkflowEvent struct {
	ID         string                 `json:"id"`
	Type       WorkflowEventType      `json:"type"`
	EntityID   string                 `json:"entity_id"`
	PatientID  string                 `json:"patient_id"`
	DoctorIDs  []string               `json:"doctor_ids,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// NewWorkflowEvent creates a new workflow event
func NewWorkflowEvent(eventType WorkflowEventType, entityID, patientID string, doctorIDs []string, attrs map[string]interface{}) *WorkflowEvent {
	return &WorkflowEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		EntityID:   entityID,
		PatientID:  patientID,
		DoctorIDs:  doctorIDs,
		Timestamp:  time.Now(),
		Attributes: attrs,
	}
}
