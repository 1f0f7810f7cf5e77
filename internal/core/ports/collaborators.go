package ports

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a collaborator failure for retry policy.
type FailureKind string

const (
	// FailureTransient covers timeouts, network errors, 429 and 5xx
	// responses. The job stays retryable.
	FailureTransient FailureKind = "TRANSIENT"
	// FailureValidation covers request rejections (other 4xx). The job is
	// marked not retryable and needs human intervention.
	FailureValidation FailureKind = "VALIDATION"
)

// CollaboratorError is returned by ContentGenerator and Publisher so the
// orchestrator can set the retryable flag without knowing the transport.
type CollaboratorError struct {
	Kind  FailureKind
	Stage string // "generation" or "publish"
	Err   error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s failure: %v", e.Stage, e.Kind, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient collaborator failure.
// Unclassified errors count as transient so an unknown failure mode never
// permanently strands a job.
func IsTransient(err error) bool {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce.Kind == FailureTransient
	}
	return true
}

// GenerationRequest carries the order parameters for one content unit.
type GenerationRequest struct {
	Topic    string
	Industry string
	Tone     string
	Sequence int // position within the order, used to vary the angle
}

// GenerationResult is the produced artifact.
type GenerationResult struct {
	Title string
	Body  string
}

// ContentGenerator produces one written artifact per call.
type ContentGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// PublishRequest carries the artifact to the destination platform.
type PublishRequest struct {
	Title string
	Body  string
}

// PublishResult is the live location of the published piece.
type PublishResult struct {
	PublishedURL string
	ExternalID   string
}

// Publisher pushes an approved artifact to the content platform.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}
