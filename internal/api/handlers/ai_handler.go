package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/zatekoja/bpcare/internal/application/services"
)

// GatewayDiagnostics is the AI gateway surface exposed for operators
type GatewayDiagnostics interface {
	Status() services.GatewayStatus
	SelfTest(ctx context.Context) services.SelfTestResult
	Reinit(ctx context.Context) services.GatewayStatus
}

// AIHandler exposes gateway status, self-test, reinit and the demo switch
type AIHandler struct {
	gateway GatewayDiagnostics
	flags   *services.FeatureFlags
	timeout time.Duration
}

// NewAIHandler creates a new AI handler
func NewAIHandler(gateway GatewayDiagnostics, flags *services.FeatureFlags, timeout time.Duration) *AIHandler {
	return &AIHandler{gateway: gateway, flags: flags, timeout: timeout}
}

// Status handles GET /api/ai/status
func (h *AIHandler) Status(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r, ""); !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, h.gateway.Status())
}

// Test handles POST /api/ai/test
func (h *AIHandler) Test(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r, ""); !ok {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	result := h.gateway.SelfTest(ctx)
	status := http.StatusOK
	if !result.OK {
		status = http.StatusServiceUnavailable
	}
	respondWithJSON(w, status, result)
}

// Reinit handles POST /api/ai/reinit
func (h *AIHandler) Reinit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r, ""); !ok {
		return
	}

	ctx, cancel := requestContext(r, h.timeout)
	defer cancel()

	respondWithJSON(w, http.StatusOK, h.gateway.Reinit(ctx))
}

type demoModeRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetDemoMode handles PUT /api/ai/demo-mode
func (h *AIHandler) SetDemoMode(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r, ""); !ok {
		return
	}

	var req demoModeRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Enabled == nil {
		respondWithError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	h.flags.SetDemoMode(*req.Enabled)
	respondWithJSON(w, http.StatusOK, map[string]bool{"demo_mode": h.flags.DemoMode()})
}
