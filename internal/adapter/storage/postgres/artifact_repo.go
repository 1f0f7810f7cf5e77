package postgres

import (
	"context"
	"errors"
	"fmt"

	"content-fulfillment-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ArtifactRepo implements ports.ArtifactRepository.
type ArtifactRepo struct {
	pool Pool
}

// NewArtifactRepo creates a new ArtifactRepo.
func NewArtifactRepo(pool Pool) *ArtifactRepo {
	return &ArtifactRepo{pool: pool}
}

// Save inserts a generated artifact within a database transaction.
func (r *ArtifactRepo) Save(ctx context.Context, tx pgx.Tx, a *domain.Artifact) error {
	query := `INSERT INTO artifacts (id, job_id, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, query, a.ID, a.JobID, a.Title, a.Body, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// GetByID fetches an artifact by UUID.
func (r *ArtifactRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	query := `SELECT id, job_id, title, body, created_at FROM artifacts WHERE id = $1`

	a := &domain.Artifact{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.JobID, &a.Title, &a.Body, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}
