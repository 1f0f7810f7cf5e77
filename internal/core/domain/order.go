package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderState is the derived lifecycle state of an order. It is always a pure
// function of the order's job states (see DeriveOrderState) and is stored
// only as a denormalized copy for listing/filtering.
type OrderState string

const (
	OrderStateCreated        OrderState = "CREATED"
	OrderStateGenerating     OrderState = "GENERATING"
	OrderStateAwaitingReview OrderState = "AWAITING_REVIEW"
	OrderStatePublishing     OrderState = "PUBLISHING"
	OrderStateCompleted      OrderState = "COMPLETED"
	OrderStateFailed         OrderState = "FAILED"
)

// Order represents one customer purchase. Created on a verified
// payment-succeeded event and never deleted; terminal states are retained
// for audit.
type Order struct {
	ID            uuid.UUID  `json:"id"`
	PurchaseRef   string     `json:"purchase_ref"` // external payment-processor id, unique
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Topic         string     `json:"topic"`
	Industry      string     `json:"industry,omitempty"`
	Tone          string     `json:"tone,omitempty"`
	Quantity      int        `json:"quantity"` // content units purchased, one job each
	State         OrderState `json:"state"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsTerminal reports whether no further order-level transition is possible.
func (s OrderState) IsTerminal() bool {
	return s == OrderStateCompleted || s == OrderStateFailed
}

// DeriveOrderState computes an order's aggregate state from its jobs.
// COMPLETED only when every job is completed; FAILED if any job is
// permanently failed (not retryable or attempts exhausted); otherwise the
// earliest in-flight job state wins so the order reflects remaining work.
func DeriveOrderState(jobs []*Job, maxAttempts int) OrderState {
	if len(jobs) == 0 {
		return OrderStateCreated
	}

	allCompleted := true
	for _, j := range jobs {
		if j.State == JobStateFailed && !j.CanRetry(maxAttempts) {
			return OrderStateFailed
		}
		if j.State != JobStateCompleted {
			allCompleted = false
		}
	}
	if allCompleted {
		return OrderStateCompleted
	}

	// Order of precedence mirrors the pipeline: the least-advanced
	// non-terminal job determines the aggregate.
	precedence := []JobState{
		JobStateCreated,
		JobStateGenerating,
		JobStateFailed, // retryable, still in flight
		JobStateAwaitingReview,
		JobStatePublishing,
	}
	for _, s := range precedence {
		for _, j := range jobs {
			if j.State == s {
				switch s {
				case JobStateCreated:
					return OrderStateCreated
				case JobStateGenerating, JobStateFailed:
					return OrderStateGenerating
				case JobStateAwaitingReview:
					return OrderStateAwaitingReview
				case JobStatePublishing:
					return OrderStatePublishing
				}
			}
		}
	}
	return OrderStateGenerating
}
