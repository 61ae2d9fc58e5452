package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zatekoja/bpcare/internal/domain/providers"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
)

const streamHeartbeatInterval = 30 * time.Second

// EventStreamHandler streams workflow events to the caller over Server-Sent Events.
// Patients receive events on their own channel, doctors on theirs.
type EventStreamHandler struct {
	eventBus  providers.EventBus
	heartbeat time.Duration

	mu      sync.Mutex
	clients int
}

// NewEventStreamHandler creates a new event stream handler
func NewEventStreamHandler(eventBus providers.EventBus) *EventStreamHandler {
	return &EventStreamHandler{eventBus: eventBus, heartbeat: streamHeartbeatInterval}
}

// Stream handles GET /api/events/stream
func (h *EventStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, "")
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	channel := providers.GetPatientChannel(principal.ID)
	if principal.IsDoctor() {
		channel = providers.GetDoctorChannel(principal.ID)
	}

	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx)

	events, err := h.eventBus.Subscribe(ctx, channel)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("failed to subscribe to workflow events")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	h.track(1)
	defer h.track(-1)

	writeEvent(w, "connected", map[string]interface{}{
		"channel":   channel,
		"timestamp": time.Now().UTC(),
	})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str("channel", channel).Msg("event stream client disconnected")
			return
		case <-ticker.C:
			writeEvent(w, "heartbeat", map[string]interface{}{"timestamp": time.Now().UTC()})
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			writeEvent(w, string(event.Type), event)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected stream clients
func (h *EventStreamHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

func (h *EventStreamHandler) track(delta int) {
	h.mu.Lock()
	h.clients += delta
	h.mu.Unlock()
}

func writeEvent(w http.ResponseWriter, eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
