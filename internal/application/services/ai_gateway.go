package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zatekoja/bpcare/internal/domain/providers"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

// GatewayState is the readiness state of the AI gateway
type GatewayState string

const (
	GatewayStateUninitialized GatewayState = "uninitialized"
	GatewayStateProbing       GatewayState = "probing"
	GatewayStateReady         GatewayState = "ready"
	GatewayStateDegraded      GatewayState = "degraded"
)

// TransportFactory builds a fresh, ordered set of transports. It is called on
// the first readiness check and again after every Reset.
type TransportFactory func() ([]providers.TextTransport, error)

// AIGatewayConfig holds the static facts the gateway reports about itself
type AIGatewayConfig struct {
	Configured bool
	RecModel   string
	ChatModel  string
}

// GatewayStatus is the diagnostic view of the gateway
type GatewayStatus struct {
	Configured bool         `json:"configured"`
	Ready      bool         `json:"ready"`
	State      GatewayState `json:"state"`
	Transport  string       `json:"transport,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
	DemoMode   bool         `json:"demo_mode"`
	RecModel   string       `json:"rec_model"`
	ChatModel  string       `json:"chat_model"`
}

// SelfTestResult is the outcome of a minimal round trip through the gateway
type SelfTestResult struct {
	OK        bool   `json:"ok"`
	Transport string `json:"transport,omitempty"`
	Content   string `json:"content,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// AIGateway owns the connection state to the external text generation
// provider. Readiness is a query: EnsureReady never fails, it reports.
type AIGateway struct {
	cfg     AIGatewayConfig
	factory TransportFactory
	flags   *FeatureFlags

	// probeMu serializes probing and reset; mu guards the fields below.
	probeMu sync.Mutex
	mu      sync.RWMutex

	transports []providers.TextTransport
	active     int
	generation int
	state      GatewayState
	lastError  string
}

// NewAIGateway creates a gateway in the uninitialized state
func NewAIGateway(cfg AIGatewayConfig, factory TransportFactory, flags *FeatureFlags) *AIGateway {
	return &AIGateway{
		cfg:     cfg,
		factory: factory,
		flags:   flags,
		active:  -1,
		state:   GatewayStateUninitialized,
	}
}

// EnsureReady probes the transports in preference order until one answers.
// It is idempotent once ready and records the failure reason of every attempt.
func (g *AIGateway) EnsureReady(ctx context.Context) bool {
	g.probeMu.Lock()
	defer g.probeMu.Unlock()

	g.mu.Lock()
	if g.state == GatewayStateReady {
		g.mu.Unlock()
		return true
	}
	if !g.cfg.Configured {
		g.state = GatewayStateDegraded
		g.lastError = "API key missing"
		g.mu.Unlock()
		return false
	}
	if g.transports == nil {
		transports, err := g.factory()
		if err != nil || len(transports) == 0 {
			if err == nil {
				err = errors.New("no transports configured")
			}
			g.state = GatewayStateDegraded
			g.lastError = "init: " + err.Error()
			g.mu.Unlock()
			return false
		}
		g.transports = transports
	}
	g.state = GatewayStateProbing
	transports := g.transports
	generation := g.generation
	g.mu.Unlock()

	logger := observability.LoggerFromContext(ctx)
	for i, t := range transports {
		err := t.Probe(ctx)

		g.mu.Lock()
		if generation != g.generation {
			g.mu.Unlock()
			return false
		}
		if err == nil {
			g.active = i
			g.state = GatewayStateReady
			g.mu.Unlock()
			logger.Info().Str("transport", t.Name()).Msg("AI gateway ready")
			return true
		}
		g.lastError = fmt.Sprintf("%s probe: %v", t.Name(), err)
		g.mu.Unlock()

		logger.Warn().Err(err).Str("transport", t.Name()).Msg("AI transport probe failed")
	}

	g.mu.Lock()
	if generation == g.generation {
		g.active = -1
		g.state = GatewayStateDegraded
	}
	g.mu.Unlock()
	return false
}

// Ready reports the current readiness without probing
func (g *AIGateway) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == GatewayStateReady
}

// Status exposes the diagnostic state of the gateway
func (g *AIGateway) Status() GatewayStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	status := GatewayStatus{
		Configured: g.cfg.Configured,
		Ready:      g.state == GatewayStateReady,
		State:      g.state,
		LastError:  g.lastError,
		DemoMode:   g.flags.DemoMode(),
		RecModel:   g.cfg.RecModel,
		ChatModel:  g.cfg.ChatModel,
	}
	if g.active >= 0 && g.active < len(g.transports) {
		status.Transport = g.transports[g.active].Name()
	}
	return status
}

// Reset discards every transport and forces a fresh probe on the next EnsureReady
func (g *AIGateway) Reset() {
	g.probeMu.Lock()
	defer g.probeMu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.transports = nil
	g.active = -1
	g.generation++
	g.state = GatewayStateUninitialized
	g.lastError = ""
}

// Reinit resets the gateway and probes again right away
func (g *AIGateway) Reinit(ctx context.Context) GatewayStatus {
	g.Reset()
	g.EnsureReady(ctx)
	return g.Status()
}

// Generate runs one completion. The active transport is tried first and the
// remaining transports follow in preference order; the call fails with
// PROVIDER_UNAVAILABLE only when every transport failed.
func (g *AIGateway) Generate(ctx context.Context, req providers.CompletionRequest) (string, error) {
	if !g.EnsureReady(ctx) {
		return "", apperrors.NewProviderUnavailableError("AI provider is not available", errors.New(g.Status().LastError))
	}
	if req.Model == "" {
		req.Model = g.cfg.RecModel
	}

	g.mu.RLock()
	transports := g.transports
	active := g.active
	generation := g.generation
	g.mu.RUnlock()

	order := make([]int, 0, len(transports))
	if active >= 0 {
		order = append(order, active)
	}
	for i := range transports {
		if i != active {
			order = append(order, i)
		}
	}

	logger := observability.LoggerFromContext(ctx)
	var lastErr error
	for _, i := range order {
		t := transports[i]
		text, err := t.Complete(ctx, req)
		if err == nil {
			if i != active {
				g.mu.Lock()
				if generation == g.generation {
					g.active = i
				}
				g.mu.Unlock()
				logger.Info().Str("transport", t.Name()).Msg("AI gateway switched transport")
			}
			return text, nil
		}

		lastErr = err
		g.mu.Lock()
		if generation == g.generation {
			g.lastError = fmt.Sprintf("%s: %v", t.Name(), err)
		}
		g.mu.Unlock()
		logger.Warn().Err(err).Str("transport", t.Name()).Msg("AI transport completion failed")

		if ctx.Err() != nil {
			break
		}
	}

	g.mu.Lock()
	if generation == g.generation {
		g.active = -1
		g.state = GatewayStateDegraded
	}
	g.mu.Unlock()

	return "", apperrors.NewProviderUnavailableError("all AI transports failed", lastErr)
}

// SelfTest sends a minimal prompt through the gateway
func (g *AIGateway) SelfTest(ctx context.Context) SelfTestResult {
	if !g.cfg.Configured {
		return SelfTestResult{OK: false, Reason: "API key missing"}
	}

	text, err := g.Generate(ctx, providers.CompletionRequest{
		Model:       g.cfg.ChatModel,
		Prompt:      "ping",
		MaxTokens:   5,
		Temperature: 0,
	})
	if err != nil {
		reason := g.Status().LastError
		if reason == "" {
			reason = err.Error()
		}
		return SelfTestResult{OK: false, Reason: reason}
	}

	return SelfTestResult{OK: true, Transport: g.Status().Transport, Content: text}
}
