package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/bpcare/internal/application/services"
	"github.com/zatekoja/bpcare/internal/domain/entities"
)

// ReadingService is the intake surface used by BPReadingHandler
type ReadingService interface {
	SubmitReading(ctx context.Context, patientID string, in services.ReadingInput) (*services.SubmitResult, error)
	Progress(ctx context.Context, patientID string) (*services.DailyProgress, error)
	Trend(ctx context.Context, principal entities.Principal, patientID string, days int) (*services.BPTrend, error)
}

// BPReadingHandler handles blood pressure intake
type BPReadingHandler struct {
	service ReadingService
	timeout time.Duration
}

// NewBPReadingHandler creates a new BP reading handler
func NewBPReadingHandler(service ReadingService, timeout time.Duration) *BPReadingHandler {
	return &BPReadingHandler{service: service, timeout: timeout}
}

// Submit handles POST /api/bp-readings
func (h *BPReadingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, entities.UserRolePatient)
	if !ok {
		return
	}

	var in services.ReadingInput
	if !decodeJSON(w, r, &in, false) {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	result, err := h.service.SubmitReading(ctx, principal.ID, in)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

// Progress handles GET /api/bp-readings/progress
func (h *BPReadingHandler) Progress(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, entities.UserRolePatient)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	progress, err := h.service.Progress(ctx, principal.ID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, progress)
}

// Trend handles GET /api/bp-readings/trend?patientId=&days=
func (h *BPReadingHandler) Trend(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, "")
	if !ok {
		return
	}

	days, err := queryInt(r, "days", 0)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	trend, err := h.service.Trend(ctx, principal, strings.TrimSpace(r.URL.Query().Get("patientId")), days)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, trend)
}
