package service

import (
	"context"
	"fmt"
	"time"

	"content-fulfillment-service/internal/core/domain"
	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RetryServiceImpl implements ports.RetryService. It re-enters the
// orchestrator for a failed job, bounded by the attempt ceiling and the
// retryable flag.
type RetryServiceImpl struct {
	orderRepo   ports.OrderRepository
	jobRepo     ports.JobRepository
	auditRepo   ports.AuditRepository
	enqueuer    ports.TaskEnqueuer
	transactor  ports.DBTransactor
	maxAttempts int
	log         zerolog.Logger
}

// NewRetryService creates a new RetryServiceImpl.
func NewRetryService(
	orderRepo ports.OrderRepository,
	jobRepo ports.JobRepository,
	auditRepo ports.AuditRepository,
	enqueuer ports.TaskEnqueuer,
	transactor ports.DBTransactor,
	maxAttempts int,
	log zerolog.Logger,
) *RetryServiceImpl {
	return &RetryServiceImpl{
		orderRepo:   orderRepo,
		jobRepo:     jobRepo,
		auditRepo:   auditRepo,
		enqueuer:    enqueuer,
		transactor:  transactor,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Retry admits or denies a retry for the given job. On admission it durably
// charges the attempt counter and records retry initiation BEFORE the stage
// re-runs, so a crash mid-retry can never under-count attempts. The charged
// attempt suppresses the failure-path increment of the re-run.
func (s *RetryServiceImpl) Retry(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if job == nil {
		return nil, apperror.ErrJobNotFound()
	}

	if job.State != domain.JobStateFailed || !job.Retryable {
		s.auditDenial(ctx, job, "not retryable")
		return nil, apperror.ErrNotRetryable()
	}
	if job.Attempts >= s.maxAttempts {
		s.auditDenial(ctx, job, fmt.Sprintf("attempts exhausted (%d/%d)", job.Attempts, s.maxAttempts))
		return nil, apperror.ErrMaxAttemptsExceeded()
	}

	target := job.FailedFrom
	if target != domain.JobStateGenerating && target != domain.JobStatePublishing {
		s.auditDenial(ctx, job, fmt.Sprintf("unknown failed-from state %q", target))
		return nil, apperror.ErrNotRetryable()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// The FAILED guard makes concurrent retries race cleanly: the loser
	// sees zero rows and is rejected, so at most one retry is active.
	applied, err := s.jobRepo.Transition(ctx, dbTx, ports.JobTransition{
		JobID:       job.ID,
		From:        domain.JobStateFailed,
		To:          target,
		IncAttempts: true,
	})
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if !applied {
		return nil, apperror.ErrStateConflict()
	}

	entry := &domain.AuditEntry{
		ID:        uuid.New(),
		OrderID:   job.OrderID,
		JobID:     &job.ID,
		Event:     domain.AuditEventRetryInitiated,
		FromState: string(domain.JobStateFailed),
		ToState:   string(target),
		Detail:    detailJSON(map[string]any{"attempt": job.Attempts + 1, "max_attempts": s.maxAttempts}),
		CreatedAt: time.Now(),
	}
	if err := s.auditRepo.Append(ctx, dbTx, entry); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	jobs, err := s.jobRepo.ListByOrderForUpdate(ctx, dbTx, job.OrderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	derived := domain.DeriveOrderState(jobs, s.maxAttempts)
	if err := s.orderRepo.UpdateState(ctx, dbTx, job.OrderID, derived); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// The retry record is durable; enqueue failure only delays execution.
	var enqErr error
	if target == domain.JobStateGenerating {
		enqErr = s.enqueuer.EnqueueGenerationRetry(ctx, job.ID)
	} else {
		enqErr = s.enqueuer.EnqueuePublishRetry(ctx, job.ID)
	}
	if enqErr != nil {
		s.log.Error().Err(enqErr).Str("job_id", job.ID.String()).Msg("failed to enqueue retry task")
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("stage", string(target)).
		Int("attempt", job.Attempts+1).
		Msg("retry initiated")

	updated, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return updated, nil
}

// auditDenial records a rejected retry request. Denials are best-effort:
// they never block returning the denial to the operator.
func (s *RetryServiceImpl) auditDenial(ctx context.Context, job *domain.Job, reason string) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not audit retry denial")
		return
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry := &domain.AuditEntry{
		ID:        uuid.New(),
		OrderID:   job.OrderID,
		JobID:     &job.ID,
		Event:     domain.AuditEventRetryDenied,
		FromState: string(job.State),
		Detail:    detailJSON(map[string]any{"reason": reason, "attempts": job.Attempts}),
		CreatedAt: time.Now(),
	}
	if err := s.auditRepo.Append(ctx, dbTx, entry); err != nil {
		s.log.Warn().Err(err).Msg("could not audit retry denial")
		return
	}
	if err := dbTx.Commit(ctx); err != nil {
		s.log.Warn().Err(err).Msg("could not audit retry denial")
	}
}
