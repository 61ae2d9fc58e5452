package services

import (
	"context"

	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/providers"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
)

// WorkflowPublisher fans committed state changes out to the event bus.
// Publishing is best effort: the state change already happened, so a bus
// failure is logged and never returned to the caller.
type WorkflowPublisher struct {
	bus providers.EventBus
}

// NewWorkflowPublisher creates a publisher. A nil bus makes every publish a no-op.
func NewWorkflowPublisher(bus providers.EventBus) *WorkflowPublisher {
	return &WorkflowPublisher{bus: bus}
}

// Publish sends the event to the global channel, the patient and every doctor involved
func (p *WorkflowPublisher) Publish(ctx context.Context, event *entities.WorkflowEvent) {
	if p == nil || p.bus == nil || event == nil {
		return
	}

	channels := make([]string, 0, len(event.DoctorIDs)+2)
	channels = append(channels, providers.EventChannelWorkflow)
	if event.PatientID != "" {
		channels = append(channels, providers.GetPatientChannel(event.PatientID))
	}
	for _, doctorID := range event.DoctorIDs {
		channels = append(channels, providers.GetDoctorChannel(doctorID))
	}

	logger := observability.LoggerFromContext(ctx)
	for _, channel := range channels {
		if err := p.bus.Publish(ctx, channel, event); err != nil {
			logger.Warn().Err(err).Str("channel", channel).Str("event_type", string(event.Type)).Msg("failed to publish workflow event")
		}
	}
}
