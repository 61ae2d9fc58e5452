package providers

import (
	"context"

	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to workflow events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.WorkflowEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.WorkflowEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants for different event audiences
const (
	// EventChannelWorkflow receives every workflow event
	EventChannelWorkflow = "workflow:events"

	// EventChannelPatientPrefix is the prefix for patient-specific channels
	EventChannelPatientPrefix = "patient:"

	// EventChannelDoctorPrefix is the prefix for doctor-specific channels
	EventChannelDoctorPrefix = "doctor:"
)

// GetPatientChannel returns the channel name for a specific patient
func GetPatientChannel(patientID string) string {
	return EventChannelPatientPrefix + patientID
}

// GetDoctorChannel returns the channel name for a specific doctor
func GetDoctorChannel(doctorID string) string {
	return EventChannelDoctorPrefix + doctorID
}
