package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventStatus is the processing status of a received webhook delivery.
type WebhookEventStatus string

const (
	WebhookEventReceived  WebhookEventStatus = "received"
	WebhookEventProcessed WebhookEventStatus = "processed"
	WebhookEventIgnored   WebhookEventStatus = "ignored"
)

// WebhookEvent records one inbound payment-processor delivery, keyed by the
// processor's event id for deduplication. Inserted in `received` state before
// any side-effecting work so a crash mid-processing leaves a durable record
// for reconciliation.
type WebhookEvent struct {
	ID         uuid.UUID          `json:"id"`
	ExternalID string             `json:"external_id"` // processor event id, unique
	EventType  string             `json:"event_type"`
	Status     WebhookEventStatus `json:"status"`
	OrderID    *uuid.UUID         `json:"order_id,omitempty"` // set once processed
	ReceivedAt time.Time          `json:"received_at"`
}

// PaymentEvent is the parsed payload of a payment-succeeded delivery.
type PaymentEvent struct {
	ExternalID    string `json:"id"`
	Type          string `json:"type"`
	PurchaseRef   string `json:"purchase_ref"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Topic         string `json:"topic"`
	Industry      string `json:"industry"`
	Tone          string `json:"tone"`
	Quantity      int    `json:"quantity"`
}
