package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/bpcare/internal/domain/providers"
)

// ResponsesTransport talks to the Responses API (POST /responses).
type ResponsesTransport struct {
	client *client
}

type responseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseOutput struct {
	Content []responseContent `json:"content"`
}

type responseEnvelope struct {
	OutputText string           `json:"output_text"`
	Output     []responseOutput `json:"output"`
}

// Name implements providers.TextTransport
func (t *ResponsesTransport) Name() string { return TransportResponses }

// Probe implements providers.TextTransport
func (t *ResponsesTransport) Probe(ctx context.Context) error {
	return t.client.probe(ctx, TransportResponses)
}

// Complete implements providers.TextTransport
func (t *ResponsesTransport) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	if err := t.client.wait(ctx, TransportResponses, req.Model); err != nil {
		return "", err
	}

	input := make([]providers.ChatTurn, 0, len(req.History)+2)
	if req.System != "" {
		input = append(input, providers.ChatTurn{Role: "system", Content: req.System})
	}
	input = append(input, req.History...)
	input = append(input, providers.ChatTurn{Role: "user", Content: req.Prompt})

	payload := map[string]interface{}{
		"model":       req.Model,
		"input":       input,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		payload["max_output_tokens"] = req.MaxTokens
	}
	if req.ExpectJSON {
		payload["text"] = map[string]interface{}{
			"format": map[string]string{"type": "json_object"},
		}
	}

	var envelope responseEnvelope
	start := time.Now()
	status, err := t.client.doJSON(ctx, http.MethodPost, "/responses", payload, &envelope)
	if err != nil {
		recordOpenAIMetric(ctx, TransportResponses, req.Model, status, time.Since(start), err)
		return "", err
	}

	text := strings.TrimSpace(envelope.OutputText)
	if text == "" {
		for _, out := range envelope.Output {
			for _, content := range out.Content {
				if content.Type == "output_text" && content.Text != "" {
					text = strings.TrimSpace(content.Text)
					break
				}
			}
			if text != "" {
				break
			}
		}
	}

	if text == "" {
		err := errors.New("openai response missing output text")
		recordOpenAIMetric(ctx, TransportResponses, req.Model, status, time.Since(start), err)
		return "", err
	}

	recordOpenAIMetric(ctx, TransportResponses, req.Model, status, time.Since(start), nil)
	return text, nil
}
