package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"content-fulfillment-service/config"
	"content-fulfillment-service/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *OpenAIClient {
	return NewOpenAIClient(config.GenerationConfig{
		BaseURL: serverURL,
		APIKey:  "sk-test",
		Model:   "gpt-4o",
		Timeout: 2 * time.Second,
	}, zerolog.Nop())
}

func chatReply(t *testing.T, title, body string) []byte {
	t.Helper()
	content, err := json.Marshal(map[string]string{"title": title, "body": body})
	require.NoError(t, err)
	reply, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": string(content)}},
		},
	})
	require.NoError(t, err)
	return reply
}

func TestOpenAIClient_Generate_Success(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatReply(t, "The Future of Cold Chain", "Article body.")) //nolint:errcheck
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.Generate(context.Background(), ports.GenerationRequest{
		Topic: "cold chain", Industry: "logistics", Tone: "professional", Sequence: 2,
	})

	require.NoError(t, err)
	assert.Equal(t, "The Future of Cold Chain", result.Title)
	assert.Equal(t, "Article body.", result.Body)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Contains(t, gotReq.Messages[1].Content, "cold chain")
	assert.Contains(t, gotReq.Messages[1].Content, "article 2")
}

func TestOpenAIClient_Generate_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Generate(context.Background(), ports.GenerationRequest{Topic: "x"})

	var ce *ports.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ports.FailureTransient, ce.Kind)
	assert.Equal(t, "generation", ce.Stage)
}

func TestOpenAIClient_Generate_RateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Generate(context.Background(), ports.GenerationRequest{Topic: "x"})

	var ce *ports.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ports.FailureTransient, ce.Kind)
}

func TestOpenAIClient_Generate_ClientErrorIsValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"content policy"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Generate(context.Background(), ports.GenerationRequest{Topic: "x"})

	var ce *ports.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ports.FailureValidation, ce.Kind)
	assert.False(t, ports.IsTransient(err))
}

func TestOpenAIClient_Generate_ConnectionRefusedIsTransient(t *testing.T) {
	// Closed server: the request cannot connect.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := newTestClient(server.URL)
	_, err := client.Generate(context.Background(), ports.GenerationRequest{Topic: "x"})

	var ce *ports.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ports.FailureTransient, ce.Kind)
}

func TestOpenAIClient_Generate_MalformedModelOutputIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reply, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "not json at all"}},
			},
		})
		w.Write(reply) //nolint:errcheck
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Generate(context.Background(), ports.GenerationRequest{Topic: "x"})

	// A fresh completion may well come back valid, so retrying makes sense.
	var ce *ports.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ports.FailureTransient, ce.Kind)
}

func TestOpenAIClient_Generate_EmptyChoicesIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[]}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Generate(context.Background(), ports.GenerationRequest{Topic: "x"})

	var ce *ports.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ports.FailureTransient, ce.Kind)
}
