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
)

const jobColumns = `id, order_id, sequence, state, attempts, retryable, failed_from, last_error,
		artifact_ref, published_url, created_at, updated_at`

// JobRepo implements ports.JobRepository.
type JobRepo struct {
	pool Pool
}

// NewJobRepo creates a new JobRepo.
func NewJobRepo(pool Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// Create inserts a new job within a database transaction.
func (r *JobRepo) Create(ctx context.Context, tx pgx.Tx, j *domain.Job) error {
	query := `INSERT INTO jobs (id, order_id, sequence, state, attempts, retryable, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		j.ID, j.OrderID, j.Sequence, j.State, j.Attempts, j.Retryable,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by UUID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns)
	return r.scanJob(r.pool.QueryRow(ctx, query, id))
}

// ListByOrder fetches all jobs of an order in sequence order.
func (r *JobRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE order_id = $1 ORDER BY sequence`, jobColumns)

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return r.collectJobs(rows)
}

// ListByOrderForUpdate fetches an order's jobs with row locks, used when
// recomputing the order aggregate inside a transition transaction.
func (r *JobRepo) ListByOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE order_id = $1 ORDER BY sequence FOR UPDATE`, jobColumns)

	rows, err := tx.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for update: %w", err)
	}
	defer rows.Close()
	return r.collectJobs(rows)
}

// Transition applies a guarded state change. The WHERE clause pins the
// expected pre-transition state so a concurrent actor that moved the job
// first makes this a zero-row update rather than an overwrite.
func (r *JobRepo) Transition(ctx context.Context, tx pgx.Tx, t ports.JobTransition) (bool, error) {
	sets := []string{"state = $1", "updated_at = $2"}
	args := []any{t.To, time.Now()}
	argIdx := 3

	if t.IncAttempts {
		sets = append(sets, "attempts = attempts + 1")
	}
	if t.SetRetryable != nil {
		sets = append(sets, fmt.Sprintf("retryable = $%d", argIdx))
		args = append(args, *t.SetRetryable)
		argIdx++
	}
	if t.FailedFrom != nil {
		sets = append(sets, fmt.Sprintf("failed_from = $%d", argIdx))
		args = append(args, *t.FailedFrom)
		argIdx++
	}
	if t.LastError != nil {
		sets = append(sets, fmt.Sprintf("last_error = $%d", argIdx))
		args = append(args, *t.LastError)
		argIdx++
	}
	if t.ArtifactRef != nil {
		sets = append(sets, fmt.Sprintf("artifact_ref = $%d", argIdx))
		args = append(args, *t.ArtifactRef)
		argIdx++
	}
	if t.PublishedURL != nil {
		sets = append(sets, fmt.Sprintf("published_url = $%d", argIdx))
		args = append(args, *t.PublishedURL)
		argIdx++
	}

	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE id = $%d AND state = $%d`,
		strings.Join(sets, ", "), argIdx, argIdx+1)
	args = append(args, t.JobID, t.From)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepo) collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		j, err := r.scanJobFields(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

// scanJob is a helper to scan a single row into a Job.
func (r *JobRepo) scanJob(row pgx.Row) (*domain.Job, error) {
	j, err := r.scanJobFields(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

func (r *JobRepo) scanJobFields(row pgx.Row) (*domain.Job, error) {
	j := &domain.Job{}
	var failedFrom, lastError, artifactRef, publishedURL *string
	err := row.Scan(
		&j.ID, &j.OrderID, &j.Sequence, &j.State, &j.Attempts, &j.Retryable,
		&failedFrom, &lastError, &artifactRef, &publishedURL,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if failedFrom != nil {
		j.FailedFrom = domain.JobState(*failedFrom)
	}
	if lastError != nil {
		j.LastError = *lastError
	}
	if artifactRef != nil {
		j.ArtifactRef = *artifactRef
	}
	if publishedURL != nil {
		j.PublishedURL = *publishedURL
	}
	return j, nil
}
