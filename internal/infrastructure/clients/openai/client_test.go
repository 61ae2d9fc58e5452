package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bpcare/internal/domain/providers"
	"github.com/zatekoja/bpcare/pkg/config"
)

func testConfig(baseURL string, transports ...string) *config.OpenAIConfig {
	return &config.OpenAIConfig{
		APIKey:       "sk-test",
		BaseURL:      baseURL,
		Organization: "org-test",
		Transports:   transports,
		RateLimitRPM: -1,
	}
}

func TestNewTransports_Order(t *testing.T) {
	transports, err := NewTransports(testConfig("http://x", "chat", "responses", "chat"), nil)
	require.NoError(t, err)
	require.Len(t, transports, 2)
	assert.Equal(t, "chat", transports[0].Name())
	assert.Equal(t, "responses", transports[1].Name())
}

func TestNewTransports_Errors(t *testing.T) {
	_, err := NewTransports(&config.OpenAIConfig{APIKey: "your-openai-api-key-here"}, nil)
	assert.Error(t, err)

	_, err = NewTransports(testConfig("http://x", "carrier-pigeon"), nil)
	assert.Error(t, err)
}

func TestProbe_SendsAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "org-test", r.Header.Get("OpenAI-Organization"))
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"}]}`))
	}))
	defer srv.Close()

	transports, err := NewTransports(testConfig(srv.URL, "responses"), srv.Client())
	require.NoError(t, err)
	assert.NoError(t, transports[0].Probe(context.Background()))
}

func TestProbe_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	transports, err := NewTransports(testConfig(srv.URL, "chat"), srv.Client())
	require.NoError(t, err)

	err = transports[0].Probe(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, providers.ErrTransportUnauthorized))
}

func TestResponsesTransport_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body["model"])
		assert.EqualValues(t, 2000, body["max_output_tokens"])
		input := body["input"].([]interface{})
		require.Len(t, input, 2)
		assert.Equal(t, "system", input[0].(map[string]interface{})["role"])
		assert.NotNil(t, body["text"])

		_, _ = w.Write([]byte(`{"output":[{"content":[{"type":"output_text","text":" {\"ok\":true} "}]}]}`))
	}))
	defer srv.Close()

	transports, err := NewTransports(testConfig(srv.URL, "responses"), srv.Client())
	require.NoError(t, err)

	text, err := transports[0].Complete(context.Background(), providers.CompletionRequest{
		Model:      "gpt-4o",
		System:     "json only",
		Prompt:     "hello",
		MaxTokens:  2000,
		ExpectJSON: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
}

func TestResponsesTransport_MissingText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":[]}`))
	}))
	defer srv.Close()

	transports, err := NewTransports(testConfig(srv.URL, "responses"), srv.Client())
	require.NoError(t, err)

	_, err = transports[0].Complete(context.Background(), providers.CompletionRequest{Model: "m", Prompt: "p"})
	assert.Error(t, err)
}

func TestChatTransport_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var body chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 3)
		assert.Equal(t, "assistant", body.Messages[1].Role)
		assert.Equal(t, "how is my bp", body.Messages[2].Content)
		assert.Nil(t, body.ResponseFormat)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Looks stable."}}]}`))
	}))
	defer srv.Close()

	transports, err := NewTransports(testConfig(srv.URL, "chat"), srv.Client())
	require.NoError(t, err)

	text, err := transports[0].Complete(context.Background(), providers.CompletionRequest{
		Model:   "gpt-4o-mini",
		History: []providers.ChatTurn{{Role: "assistant", Content: "Hi"}},
		Prompt:  "how is my bp",
	})
	require.NoError(t, err)
	assert.Equal(t, "Looks stable.", text)
}

func TestChatTransport_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	transports, err := NewTransports(testConfig(srv.URL, "chat"), srv.Client())
	require.NoError(t, err)

	_, err = transports[0].Complete(context.Background(), providers.CompletionRequest{Model: "m", Prompt: "p"})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}
