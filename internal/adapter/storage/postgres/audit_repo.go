package postgres

import (
	"context"
	"fmt"

	"content-fulfillment-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditRepo implements ports.AuditRepository. The table is append-only:
// this type deliberately exposes no update or delete operation.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Append inserts one audit entry within a database transaction, so the entry
// commits atomically with the transition it records.
func (r *AuditRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.AuditEntry) error {
	query := `INSERT INTO audit_log (id, order_id, job_id, event, from_state, to_state, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.OrderID, e.JobID, e.Event, e.FromState, e.ToState, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByOrder fetches an order's audit trail oldest first.
func (r *AuditRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.AuditEntry, error) {
	query := `SELECT id, order_id, job_id, event, from_state, to_state, detail, created_at
		FROM audit_log WHERE order_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		e := domain.AuditEntry{}
		var fromState, toState, detail *string
		err := rows.Scan(&e.ID, &e.OrderID, &e.JobID, &e.Event, &fromState, &toState, &detail, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if fromState != nil {
			e.FromState = *fromState
		}
		if toState != nil {
			e.ToState = *toState
		}
		if detail != nil {
			e.Detail = *detail
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, nil
}
