package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/bpcare/internal/domain/providers"
)

// ChatTransport talks to the Chat Completions API (POST /chat/completions).
type ChatTransport struct {
	client *client
}

type chatCompletionRequest struct {
	Model          string               `json:"model"`
	Messages       []providers.ChatTurn `json:"messages"`
	Temperature    float64              `json:"temperature"`
	MaxTokens      int                  `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat      `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Name implements providers.TextTransport
func (t *ChatTransport) Name() string { return TransportChat }

// Probe implements providers.TextTransport
func (t *ChatTransport) Probe(ctx context.Context) error {
	return t.client.probe(ctx, TransportChat)
}

// Complete implements providers.TextTransport
func (t *ChatTransport) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	if err := t.client.wait(ctx, TransportChat, req.Model); err != nil {
		return "", err
	}

	messages := make([]providers.ChatTurn, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, providers.ChatTurn{Role: "system", Content: req.System})
	}
	messages = append(messages, req.History...)
	messages = append(messages, providers.ChatTurn{Role: "user", Content: req.Prompt})

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ExpectJSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatCompletionResponse
	start := time.Now()
	status, err := t.client.doJSON(ctx, http.MethodPost, "/chat/completions", body, &resp)
	if err != nil {
		recordOpenAIMetric(ctx, TransportChat, req.Model, status, time.Since(start), err)
		return "", err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		err := errors.New("openai chat completion returned no content")
		recordOpenAIMetric(ctx, TransportChat, req.Model, status, time.Since(start), err)
		return "", err
	}

	recordOpenAIMetric(ctx, TransportChat, req.Model, status, time.Since(start), nil)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
