package publishing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"content-fulfillment-service/config"
	"content-fulfillment-service/internal/core/ports"

	"github.com/rs/zerolog"
)

// WordPressClient implements ports.Publisher against the WordPress REST API
// using an application password.
type WordPressClient struct {
	baseURL     string
	username    string
	appPassword string
	httpClient  *http.Client
	log         zerolog.Logger
}

// NewWordPressClient creates a new WordPressClient.
func NewWordPressClient(cfg config.PublishingConfig, log zerolog.Logger) *WordPressClient {
	return &WordPressClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		username:    cfg.Username,
		appPassword: cfg.AppPassword,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

type createPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type createPostResponse struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

// Publish creates a published post and returns its public URL.
func (c *WordPressClient) Publish(ctx context.Context, req ports.PublishRequest) (*ports.PublishResult, error) {
	payload, err := json.Marshal(createPostRequest{
		Title:   req.Title,
		Content: req.Body,
		Status:  "publish",
	})
	if err != nil {
		return nil, &ports.CollaboratorError{Kind: ports.FailureValidation, Stage: "publish", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wp-json/wp/v2/posts", bytes.NewReader(payload))
	if err != nil {
		return nil, &ports.CollaboratorError{Kind: ports.FailureValidation, Stage: "publish", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.username, c.appPassword)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ports.CollaboratorError{Kind: ports.FailureTransient, Stage: "publish", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ports.CollaboratorError{Kind: ports.FailureTransient, Stage: "publish", Err: err}
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		kind := ports.FailureValidation
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			kind = ports.FailureTransient
		}
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &ports.CollaboratorError{
			Kind:  kind,
			Stage: "publish",
			Err:   fmt.Errorf("wordpress returned %d: %s", resp.StatusCode, snippet),
		}
	}

	var created createPostResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, &ports.CollaboratorError{Kind: ports.FailureTransient, Stage: "publish", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if created.Link == "" {
		return nil, &ports.CollaboratorError{Kind: ports.FailureTransient, Stage: "publish", Err: fmt.Errorf("response missing post link")}
	}

	c.log.Info().
		Int("post_id", created.ID).
		Str("link", created.Link).
		Msg("post published")

	return &ports.PublishResult{
		PublishedURL: created.Link,
		ExternalID:   strconv.Itoa(created.ID),
	}, nil
}
