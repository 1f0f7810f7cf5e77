package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent classifies one audit log entry.
type AuditEvent string

const (
	AuditEventOrderCreated     AuditEvent = "ORDER_CREATED"
	AuditEventStateTransition  AuditEvent = "STATE_TRANSITION"
	AuditEventGenerationOK     AuditEvent = "GENERATION_SUCCEEDED"
	AuditEventGenerationFailed AuditEvent = "GENERATION_FAILED"
	AuditEventPublishOK        AuditEvent = "PUBLISH_SUCCEEDED"
	AuditEventPublishFailed    AuditEvent = "PUBLISH_FAILED"
	AuditEventJobApproved      AuditEvent = "JOB_APPROVED"
	AuditEventRetryInitiated   AuditEvent = "RETRY_INITIATED"
	AuditEventRetryDenied      AuditEvent = "RETRY_DENIED"
)

// AuditEntry is one immutable record of a transition or external-call
// outcome. Entries are append-only: never updated, never deleted.
type AuditEntry struct {
	ID        uuid.UUID  `json:"id"`
	OrderID   uuid.UUID  `json:"order_id"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	Event     AuditEvent `json:"event"`
	FromState string     `json:"from_state,omitempty"`
	ToState   string     `json:"to_state,omitempty"`
	Detail    string     `json:"detail,omitempty"` // JSON string
	CreatedAt time.Time  `json:"created_at"`
}
