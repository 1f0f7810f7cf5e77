package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a single fulfillment unit.
type JobState string

const (
	JobStateCreated        JobState = "CREATED"
	JobStateGenerating     JobState = "GENERATING"
	JobStateAwaitingReview JobState = "AWAITING_REVIEW"
	JobStatePublishing     JobState = "PUBLISHING"
	JobStateCompleted      JobState = "COMPLETED"
	JobStateFailed         JobState = "FAILED"
)

// Job is one deliverable unit of work within an order. An order with
// quantity n owns n jobs. Mutated only by the orchestrator and retry
// controller, always through a guarded state transition.
type Job struct {
	ID           uuid.UUID `json:"id"`
	OrderID      uuid.UUID `json:"order_id"`
	Sequence     int       `json:"sequence"` // 1-based position within the order
	State        JobState  `json:"state"`
	Attempts     int       `json:"attempts"`  // collaborator-call failures charged so far
	Retryable    bool      `json:"retryable"` // false after a validation failure
	FailedFrom   JobState  `json:"failed_from,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	ArtifactRef  string    `json:"artifact_ref,omitempty"`  // generated content reference
	PublishedURL string    `json:"published_url,omitempty"` // live location after publish
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsTerminal reports whether the job can never transition again.
// A FAILED job is terminal only once it is no longer retryable.
func (j *Job) IsTerminal(maxAttempts int) bool {
	if j.State == JobStateCompleted {
		return true
	}
	return j.State == JobStateFailed && !j.CanRetry(maxAttempts)
}

// CanRetry reports whether a retry of this job would be admissible:
// it must be FAILED, flagged retryable, and under the attempt ceiling.
func (j *Job) CanRetry(maxAttempts int) bool {
	return j.State == JobStateFailed && j.Retryable && j.Attempts < maxAttempts
}

// ValidTransition reports whether from -> to is a permitted job transition.
func ValidTransition(from, to JobState) bool {
	switch from {
	case JobStateCreated:
		return to == JobStateGenerating
	case JobStateGenerating:
		return to == JobStateAwaitingReview || to == JobStateFailed
	case JobStateAwaitingReview:
		return to == JobStatePublishing || to == JobStateFailed
	case JobStatePublishing:
		return to == JobStateCompleted || to == JobStateFailed
	case JobStateFailed:
		// Retry re-enters the stage the job failed from.
		return to == JobStateGenerating || to == JobStatePublishing
	default:
		return false
	}
}
