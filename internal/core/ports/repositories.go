package ports

import (
	"context"
	"errors"

	"content-fulfillment-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicatePurchaseRef is returned by OrderRepository.Create when the
// purchase_ref unique index rejects the insert, meaning a concurrent
// delivery of the same purchase created the order first.
var ErrDuplicatePurchaseRef = errors.New("purchase_ref already exists")

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByPurchaseRef(ctx context.Context, purchaseRef string) (*domain.Order, error)
	List(ctx context.Context, params OrderListParams) ([]domain.Order, int64, error)
	// UpdateState writes the denormalized aggregate state. Only called with a
	// value freshly derived from the order's jobs inside the same transaction.
	UpdateState(ctx context.Context, tx pgx.Tx, id uuid.UUID, state domain.OrderState) error
	GetStats(ctx context.Context) (*OrderStats, error)
}

// OrderListParams holds filter + pagination for listing orders.
type OrderListParams struct {
	State    *domain.OrderState
	Page     int
	PageSize int
}

// OrderStats holds aggregated counts for the operator dashboard.
// Always derived by query, never kept as a mutable counter.
type OrderStats struct {
	TotalOrders    int64
	ByState        map[domain.OrderState]int64
	TotalJobs      int64
	CompletedJobs  int64
	FailedJobs     int64
	AwaitingReview int64
}

// JobRepository defines persistence operations for jobs.
// Methods accepting pgx.Tx run inside the orchestrator's transaction blocks.
type JobRepository interface {
	Create(ctx context.Context, tx pgx.Tx, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Job, error)
	ListByOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]*domain.Job, error)
	// Transition applies a guarded state change:
	// UPDATE ... WHERE id = $id AND state = $from. Returns false when zero
	// rows matched, meaning another actor moved the job first.
	Transition(ctx context.Context, tx pgx.Tx, t JobTransition) (bool, error)
}

// JobTransition describes one guarded job mutation. Zero-valued optional
// fields leave the corresponding columns untouched.
type JobTransition struct {
	JobID        uuid.UUID
	From         domain.JobState
	To           domain.JobState
	IncAttempts  bool
	SetRetryable *bool
	FailedFrom   *domain.JobState
	LastError    *string
	ArtifactRef  *string
	PublishedURL *string
}

// AuditRepository defines append-only persistence for audit entries.
// There is deliberately no update or delete operation.
type AuditRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.AuditEntry, error)
}

// ArtifactRepository persists generated content between the generation and
// publish stages. A job's artifact_ref column points at one artifact row.
type ArtifactRepository interface {
	Save(ctx context.Context, tx pgx.Tx, artifact *domain.Artifact) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error)
}

// WebhookEventRepository defines persistence for webhook dedup records.
type WebhookEventRepository interface {
	// Insert records the event with ON CONFLICT (external_id) DO NOTHING.
	// Returns false when the external id was already recorded.
	Insert(ctx context.Context, event *domain.WebhookEvent) (bool, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.WebhookEvent, error)
	MarkProcessed(ctx context.Context, tx pgx.Tx, externalID string, orderID uuid.UUID) error
	MarkIgnored(ctx context.Context, externalID string) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
