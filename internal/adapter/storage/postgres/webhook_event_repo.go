package postgres

import (
	"context"
	"errors"
	"fmt"

	"content-fulfillment-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Insert records a received event. The unique index on external_id makes
// concurrent duplicate deliveries race cleanly: exactly one insert wins,
// the rest see zero rows affected and return false.
func (r *WebhookEventRepo) Insert(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	query := `INSERT INTO webhook_events (id, external_id, event_type, status, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, e.ID, e.ExternalID, e.EventType, e.Status, e.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByExternalID fetches a webhook event by the processor's event id.
func (r *WebhookEventRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.WebhookEvent, error) {
	query := `SELECT id, external_id, event_type, status, order_id, received_at
		FROM webhook_events WHERE external_id = $1`

	e := &domain.WebhookEvent{}
	err := r.pool.QueryRow(ctx, query, externalID).Scan(
		&e.ID, &e.ExternalID, &e.EventType, &e.Status, &e.OrderID, &e.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}

// MarkProcessed flags the event as acted on, inside the same transaction
// that created the order.
func (r *WebhookEventRepo) MarkProcessed(ctx context.Context, tx pgx.Tx, externalID string, orderID uuid.UUID) error {
	query := `UPDATE webhook_events SET status = $1, order_id = $2 WHERE external_id = $3`

	tag, err := tx.Exec(ctx, query, domain.WebhookEventProcessed, orderID, externalID)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found: %s", externalID)
	}
	return nil
}

// MarkIgnored flags an event this service does not act on (wrong type).
func (r *WebhookEventRepo) MarkIgnored(ctx context.Context, externalID string) error {
	query := `UPDATE webhook_events SET status = $1 WHERE external_id = $2`

	tag, err := r.pool.Exec(ctx, query, domain.WebhookEventIgnored, externalID)
	if err != nil {
		return fmt.Errorf("mark webhook event ignored: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found: %s", externalID)
	}
	return nil
}
