package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"content-fulfillment-service/config"
	"content-fulfillment-service/internal/core/ports"

	"github.com/rs/zerolog"
)

// OpenAIClient implements ports.ContentGenerator against an OpenAI-compatible
// chat completions endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewOpenAIClient creates a new OpenAIClient.
func NewOpenAIClient(cfg config.GenerationConfig, log zerolog.Logger) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// generatedPost is the JSON shape the model is instructed to return.
type generatedPost struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

const systemPrompt = "You are a professional content writer. " +
	"Respond with a single JSON object: {\"title\": string, \"body\": string}. " +
	"The body is the full article text in plain prose, 600-900 words."

// Generate produces one article for the given request.
func (c *OpenAIClient) Generate(ctx context.Context, req ports.GenerationRequest) (*ports.GenerationResult, error) {
	userPrompt := fmt.Sprintf(
		"Write article %d of a series about %q for the %s industry. Tone: %s.",
		req.Sequence, req.Topic, req.Industry, req.Tone,
	)

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &formatSpec{Type: "json_object"},
	})
	if err != nil {
		return nil, &ports.CollaboratorError{Kind: ports.FailureValidation, Stage: "generation", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &ports.CollaboratorError{Kind: ports.FailureValidation, Stage: "generation", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts and connection errors are worth retrying.
		return nil, &ports.CollaboratorError{Kind: ports.FailureTransient, Stage: "generation", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ports.CollaboratorError{Kind: ports.FailureTransient, Stage: "generation", Err: err}
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("generation request completed")

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError("generation", resp.StatusCode, body)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, &ports.CollaboratorError{Kind: ports.FailureTransient, Stage: "generation", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(chat.Choices) == 0 {
		return nil, &ports.CollaboratorError{Kind: ports.FailureTransient, Stage: "generation", Err: fmt.Errorf("response contained no choices")}
	}

	var post generatedPost
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &post); err != nil {
		return nil, &ports.CollaboratorError{Kind: ports.FailureTransient, Stage: "generation", Err: fmt.Errorf("model output was not valid JSON: %w", err)}
	}
	if post.Title == "" || post.Body == "" {
		return nil, &ports.CollaboratorError{Kind: ports.FailureTransient, Stage: "generation", Err: fmt.Errorf("model output missing title or body")}
	}

	return &ports.GenerationResult{Title: post.Title, Body: post.Body}, nil
}

// classifyHTTPError maps an HTTP status to a retry classification. Rate
// limits and server errors are transient; other client errors mean the
// request itself is bad and repeating it cannot help.
func classifyHTTPError(stage string, status int, body []byte) *ports.CollaboratorError {
	kind := ports.FailureValidation
	if status == http.StatusTooManyRequests || status >= 500 {
		kind = ports.FailureTransient
	}
	snippet := string(body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	return &ports.CollaboratorError{
		Kind:  kind,
		Stage: stage,
		Err:   fmt.Errorf("upstream returned %d: %s", status, snippet),
	}
}
