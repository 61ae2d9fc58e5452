package providers

import (
	"context"
	"errors"
)

// ErrTransportUnauthorized is returned by a transport when the provider rejects the credentials.
var ErrTransportUnauthorized = errors.New("text generation provider rejected credentials")

// ChatTurn is one message of a conversation sent to a text generation provider
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a single text generation call
type CompletionRequest struct {
	Model       string
	System      string
	History     []ChatTurn
	Prompt      string
	Temperature float64
	MaxTokens   int
	ExpectJSON  bool
}

// TextTransport is one way of reaching an external text generation capability.
// Transports are interchangeable strategies behind the AI gateway.
type TextTransport interface {
	// Name identifies the transport in diagnostics, e.g. "responses" or "chat".
	Name() string

	// Probe verifies the transport can reach the provider with the configured credentials.
	Probe(ctx context.Context) error

	// Complete runs one generation and returns the raw text answer.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
