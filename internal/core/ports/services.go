package ports

import (
	"context"
	"time"

	"content-fulfillment-service/internal/core/domain"

	"github.com/google/uuid"
)

// SignatureService verifies payment-processor webhook signatures.
// The signature header carries a unix timestamp and an HMAC-SHA256 digest
// of "{timestamp}.{body}".
type SignatureService interface {
	Sign(secret string, timestamp int64, body []byte) string
	// Verify checks the digest and the timestamp tolerance window.
	// Returns SIG_001 on mismatch, SIG_002 on an expired timestamp.
	Verify(secret string, header string, body []byte, now time.Time) error
}

// EventDedupStore is the Redis-layer duplicate check (fast path). The
// database unique index on external_id remains the authority.
type EventDedupStore interface {
	// CheckAndSet atomically records the external id, returning true when
	// it is new and false when already seen.
	CheckAndSet(ctx context.Context, externalID string, ttl time.Duration) (bool, error)
}

// TaskEnqueuer hands pipeline stages to the background queue.
type TaskEnqueuer interface {
	EnqueueGeneration(ctx context.Context, jobID uuid.UUID) error
	EnqueuePublish(ctx context.Context, jobID uuid.UUID) error
	// Retry variants mark the task as already charged so the re-run does
	// not increment the attempt counter again on failure.
	EnqueueGenerationRetry(ctx context.Context, jobID uuid.UUID) error
	EnqueuePublishRetry(ctx context.Context, jobID uuid.UUID) error
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations for operator sessions.
type TokenService interface {
	Generate(username string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Username string
}

// --- Service Ports (Business Logic) ---

// IngestService handles one inbound webhook delivery end to end.
type IngestService interface {
	Ingest(ctx context.Context, rawBody []byte, signatureHeader string) (*IngestResult, error)
}

// IngestResult is the acknowledgment returned to the event source.
type IngestResult struct {
	Status    IngestStatus
	EventID   string
	OrderID   *uuid.UUID
	JobCount  int
	Duplicate bool
}

// IngestStatus classifies the ingestion outcome.
type IngestStatus string

const (
	IngestAccepted  IngestStatus = "accepted"
	IngestDuplicate IngestStatus = "duplicate"
	IngestIgnored   IngestStatus = "ignored"
)

// FulfillmentService is the orchestrator: the only mutator of order and
// job state. Stage runs are invoked by the background worker; Approve is
// invoked by the operator API.
//
// The charged flag marks a retry-initiated run: the retry controller has
// already durably incremented the attempt counter, so a failure in that run
// must not increment again.
type FulfillmentService interface {
	// RunGeneration executes the generation stage. For a fresh job it
	// first moves CREATED -> GENERATING; a retry re-enters with the job
	// already in GENERATING. Ends in AWAITING_REVIEW or FAILED.
	RunGeneration(ctx context.Context, jobID uuid.UUID, charged bool) error
	// Approve moves AWAITING_REVIEW -> PUBLISHING and enqueues the publish run.
	Approve(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)
	// RunPublish executes the publish stage for a job in PUBLISHING.
	// Ends in COMPLETED or FAILED.
	RunPublish(ctx context.Context, jobID uuid.UUID, charged bool) error
}

// RetryService re-enters the orchestrator for a failed job.
type RetryService interface {
	// Retry validates admissibility, durably pre-charges the attempt
	// counter, audits the initiation, and re-enqueues the failed stage.
	Retry(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)
}

// AuthService defines operator authentication.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// ReportingService serves the operator dashboard reads.
type ReportingService interface {
	ListOrders(ctx context.Context, params OrderListParams) ([]domain.Order, int64, error)
	GetOrderDetail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	GetStats(ctx context.Context) (*OrderStats, error)
}

// OrderDetail bundles an order with its jobs and audit trail.
type OrderDetail struct {
	Order *domain.Order
	Jobs  []*domain.Job
	Audit []domain.AuditEntry
}
