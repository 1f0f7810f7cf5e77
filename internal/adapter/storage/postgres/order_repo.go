package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"content-fulfillment-service/internal/core/domain"
	"content-fulfillment-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts a new order within a database transaction. The unique index
// on purchase_ref is the final guard against duplicate payment events.
func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	query := `INSERT INTO orders (id, purchase_ref, customer_name, customer_email, topic, industry, tone,
		quantity, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		o.ID, o.PurchaseRef, o.CustomerName, o.CustomerEmail,
		o.Topic, o.Industry, o.Tone, o.Quantity,
		o.State, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ports.ErrDuplicatePurchaseRef
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID fetches an order by UUID.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT id, purchase_ref, customer_name, customer_email, topic, industry, tone,
		quantity, state, created_at, updated_at
		FROM orders WHERE id = $1`

	return r.scanOrder(r.pool.QueryRow(ctx, query, id))
}

// GetByPurchaseRef fetches an order by its external payment reference.
func (r *OrderRepo) GetByPurchaseRef(ctx context.Context, purchaseRef string) (*domain.Order, error) {
	query := `SELECT id, purchase_ref, customer_name, customer_email, topic, industry, tone,
		quantity, state, created_at, updated_at
		FROM orders WHERE purchase_ref = $1`

	return r.scanOrder(r.pool.QueryRow(ctx, query, purchaseRef))
}

// List fetches orders with filtering and pagination.
func (r *OrderRepo) List(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.State != nil {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argIdx))
		args = append(args, *params.State)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM orders %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT id, purchase_ref, customer_name, customer_email, topic, industry, tone,
		quantity, state, created_at, updated_at
		FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o := domain.Order{}
		err := rows.Scan(
			&o.ID, &o.PurchaseRef, &o.CustomerName, &o.CustomerEmail,
			&o.Topic, &o.Industry, &o.Tone, &o.Quantity,
			&o.State, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, total, nil
}

// UpdateState writes the denormalized aggregate state within a transaction.
func (r *OrderRepo) UpdateState(ctx context.Context, tx pgx.Tx, id uuid.UUID, state domain.OrderState) error {
	query := `UPDATE orders SET state = $1, updated_at = $2 WHERE id = $3`

	tag, err := tx.Exec(ctx, query, state, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order not found: %s", id)
	}
	return nil
}

// GetStats retrieves aggregated counts for the operator dashboard.
// Counts are always derived by query so concurrent instances never drift.
func (r *OrderRepo) GetStats(ctx context.Context) (*ports.OrderStats, error) {
	stats := &ports.OrderStats{ByState: make(map[domain.OrderState]int64)}

	rows, err := r.pool.Query(ctx, `SELECT state, COUNT(*) FROM orders GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("get order stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state domain.OrderState
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan order stats row: %w", err)
		}
		stats.ByState[state] = count
		stats.TotalOrders += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order stats rows: %w", err)
	}

	query := `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE state = 'COMPLETED') AS completed,
		COUNT(*) FILTER (WHERE state = 'FAILED') AS failed,
		COUNT(*) FILTER (WHERE state = 'AWAITING_REVIEW') AS awaiting_review
		FROM jobs`
	err = r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalJobs, &stats.CompletedJobs, &stats.FailedJobs, &stats.AwaitingReview,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return stats, nil
}

// scanOrder is a helper to scan a single row into an Order.
func (r *OrderRepo) scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID, &o.PurchaseRef, &o.CustomerName, &o.CustomerEmail,
		&o.Topic, &o.Industry, &o.Tone, &o.Quantity,
		&o.State, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}
