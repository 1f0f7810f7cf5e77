package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"content-fulfillment-service/internal/core/domain"
	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// FulfillmentServiceImpl implements ports.FulfillmentService. It is the only
// component that mutates order and job state. Every transition runs as a
// guarded UPDATE pinned to the expected pre-state, and every transition
// commits atomically with its audit entry and a freshly derived order
// aggregate, so the order can never drift from its jobs.
type FulfillmentServiceImpl struct {
	orderRepo    ports.OrderRepository
	jobRepo      ports.JobRepository
	auditRepo    ports.AuditRepository
	artifactRepo ports.ArtifactRepository
	generator    ports.ContentGenerator
	publisher    ports.Publisher
	enqueuer     ports.TaskEnqueuer
	transactor   ports.DBTransactor
	maxAttempts  int
	log          zerolog.Logger
}

// NewFulfillmentService creates a new FulfillmentServiceImpl.
func NewFulfillmentService(
	orderRepo ports.OrderRepository,
	jobRepo ports.JobRepository,
	auditRepo ports.AuditRepository,
	artifactRepo ports.ArtifactRepository,
	generator ports.ContentGenerator,
	publisher ports.Publisher,
	enqueuer ports.TaskEnqueuer,
	transactor ports.DBTransactor,
	maxAttempts int,
	log zerolog.Logger,
) *FulfillmentServiceImpl {
	return &FulfillmentServiceImpl{
		orderRepo:    orderRepo,
		jobRepo:      jobRepo,
		auditRepo:    auditRepo,
		artifactRepo: artifactRepo,
		generator:    generator,
		publisher:    publisher,
		enqueuer:     enqueuer,
		transactor:   transactor,
		maxAttempts:  maxAttempts,
		log:          log,
	}
}

// RunGeneration executes the generation stage for one job.
func (s *FulfillmentServiceImpl) RunGeneration(ctx context.Context, jobID uuid.UUID, charged bool) error {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if job == nil {
		return apperror.ErrJobNotFound()
	}

	if charged {
		// Retry path: the retry controller already moved the job into
		// GENERATING and charged the attempt.
		if job.State != domain.JobStateGenerating {
			return apperror.ErrStateConflict()
		}
	} else {
		// Fresh path: claim the job. A zero-row update means another
		// worker instance claimed it first.
		if err := s.commitTransition(ctx, job, ports.JobTransition{
			JobID: job.ID,
			From:  domain.JobStateCreated,
			To:    domain.JobStateGenerating,
		}, &domain.AuditEntry{
			OrderID:   job.OrderID,
			JobID:     &job.ID,
			Event:     domain.AuditEventStateTransition,
			FromState: string(domain.JobStateCreated),
			ToState:   string(domain.JobStateGenerating),
		}, nil); err != nil {
			return err
		}
	}

	order, err := s.orderRepo.GetByID(ctx, job.OrderID)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if order == nil {
		return apperror.ErrOrderNotFound()
	}

	result, genErr := s.generator.Generate(ctx, ports.GenerationRequest{
		Topic:    order.Topic,
		Industry: order.Industry,
		Tone:     order.Tone,
		Sequence: job.Sequence,
	})
	if genErr != nil {
		return s.recordFailure(ctx, job, domain.JobStateGenerating, domain.AuditEventGenerationFailed, genErr, charged)
	}

	artifact := &domain.Artifact{
		ID:        uuid.New(),
		JobID:     job.ID,
		Title:     result.Title,
		Body:      result.Body,
		CreatedAt: time.Now(),
	}
	artifactRef := artifact.ID.String()

	err = s.commitTransition(ctx, job, ports.JobTransition{
		JobID:       job.ID,
		From:        domain.JobStateGenerating,
		To:          domain.JobStateAwaitingReview,
		ArtifactRef: &artifactRef,
	}, &domain.AuditEntry{
		OrderID:   job.OrderID,
		JobID:     &job.ID,
		Event:     domain.AuditEventGenerationOK,
		FromState: string(domain.JobStateGenerating),
		ToState:   string(domain.JobStateAwaitingReview),
		Detail:    detailJSON(map[string]any{"artifact_ref": artifactRef, "title": result.Title}),
	}, artifact)
	if err != nil {
		return err
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("artifact_ref", artifactRef).
		Msg("generation completed, job awaiting review")
	return nil
}

// Approve moves a reviewed job into PUBLISHING and enqueues the publish run.
func (s *FulfillmentServiceImpl) Approve(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if job == nil {
		return nil, apperror.ErrJobNotFound()
	}
	if job.State != domain.JobStateAwaitingReview {
		return nil, apperror.ErrJobNotReviewable()
	}

	err = s.commitTransition(ctx, job, ports.JobTransition{
		JobID: job.ID,
		From:  domain.JobStateAwaitingReview,
		To:    domain.JobStatePublishing,
	}, &domain.AuditEntry{
		OrderID:   job.OrderID,
		JobID:     &job.ID,
		Event:     domain.AuditEventJobApproved,
		FromState: string(domain.JobStateAwaitingReview),
		ToState:   string(domain.JobStatePublishing),
	}, nil)
	if err != nil {
		return nil, err
	}

	if err := s.enqueuer.EnqueuePublish(ctx, job.ID); err != nil {
		// The approval is durable; the task can be re-enqueued by a
		// later approve-retry or manual requeue.
		s.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to enqueue publish task")
	}

	updated, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return updated, nil
}

// RunPublish executes the publish stage for one job.
func (s *FulfillmentServiceImpl) RunPublish(ctx context.Context, jobID uuid.UUID, charged bool) error {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if job == nil {
		return apperror.ErrJobNotFound()
	}
	if job.State != domain.JobStatePublishing {
		return apperror.ErrStateConflict()
	}
	if job.ArtifactRef == "" {
		return apperror.InternalError(fmt.Errorf("job %s has no artifact to publish", job.ID))
	}

	artifactID, err := uuid.Parse(job.ArtifactRef)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("invalid artifact ref %q: %w", job.ArtifactRef, err))
	}
	artifact, err := s.artifactRepo.GetByID(ctx, artifactID)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if artifact == nil {
		return apperror.InternalError(fmt.Errorf("artifact %s not found", artifactID))
	}

	result, pubErr := s.publisher.Publish(ctx, ports.PublishRequest{
		Title: artifact.Title,
		Body:  artifact.Body,
	})
	if pubErr != nil {
		return s.recordFailure(ctx, job, domain.JobStatePublishing, domain.AuditEventPublishFailed, pubErr, charged)
	}

	err = s.commitTransition(ctx, job, ports.JobTransition{
		JobID:        job.ID,
		From:         domain.JobStatePublishing,
		To:           domain.JobStateCompleted,
		PublishedURL: &result.PublishedURL,
	}, &domain.AuditEntry{
		OrderID:   job.OrderID,
		JobID:     &job.ID,
		Event:     domain.AuditEventPublishOK,
		FromState: string(domain.JobStatePublishing),
		ToState:   string(domain.JobStateCompleted),
		Detail:    detailJSON(map[string]any{"published_url": result.PublishedURL, "external_id": result.ExternalID}),
	}, nil)
	if err != nil {
		return err
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("published_url", result.PublishedURL).
		Msg("job published and completed")
	return nil
}

// recordFailure applies the FAILED transition for a collaborator error.
// A fresh run charges the attempt counter; a retry-initiated run was already
// charged by the retry controller.
func (s *FulfillmentServiceImpl) recordFailure(ctx context.Context, job *domain.Job, from domain.JobState, event domain.AuditEvent, cause error, charged bool) error {
	retryable := ports.IsTransient(cause)
	lastErr := cause.Error()
	attempt := job.Attempts
	if !charged {
		attempt++
	}

	kind := ports.FailureValidation
	if retryable {
		kind = ports.FailureTransient
	}

	err := s.commitTransition(ctx, job, ports.JobTransition{
		JobID:        job.ID,
		From:         from,
		To:           domain.JobStateFailed,
		IncAttempts:  !charged,
		SetRetryable: &retryable,
		FailedFrom:   &from,
		LastError:    &lastErr,
	}, &domain.AuditEntry{
		OrderID:   job.OrderID,
		JobID:     &job.ID,
		Event:     event,
		FromState: string(from),
		ToState:   string(domain.JobStateFailed),
		Detail:    detailJSON(map[string]any{"error": lastErr, "kind": string(kind), "attempt": attempt}),
	}, nil)
	if err != nil {
		return err
	}

	s.log.Warn().
		Str("job_id", job.ID.String()).
		Str("stage", string(from)).
		Str("kind", string(kind)).
		Int("attempt", attempt).
		Bool("retryable", retryable).
		Msg("stage failed, job moved to FAILED")

	// Surface the collaborator error as the structured cause.
	switch {
	case from == domain.JobStateGenerating && retryable:
		return apperror.ErrGenerationTransient(cause)
	case from == domain.JobStateGenerating:
		return apperror.ErrGenerationValidation(cause)
	case retryable:
		return apperror.ErrPublishTransient(cause)
	default:
		return apperror.ErrPublishValidation(cause)
	}
}

// commitTransition runs one guarded job transition, its audit entry, an
// optional artifact insert, and the order aggregate refresh in a single
// database transaction.
func (s *FulfillmentServiceImpl) commitTransition(ctx context.Context, job *domain.Job, t ports.JobTransition, entry *domain.AuditEntry, artifact *domain.Artifact) error {
	if !domain.ValidTransition(t.From, t.To) {
		return apperror.InternalError(fmt.Errorf("invalid job transition %s -> %s", t.From, t.To))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	applied, err := s.jobRepo.Transition(ctx, dbTx, t)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if !applied {
		return apperror.ErrStateConflict()
	}

	if artifact != nil {
		if err := s.artifactRepo.Save(ctx, dbTx, artifact); err != nil {
			return apperror.ErrDatabaseError(err)
		}
	}

	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	if err := s.auditRepo.Append(ctx, dbTx, entry); err != nil {
		return apperror.ErrDatabaseError(err)
	}

	if err := s.refreshOrderState(ctx, dbTx, job.OrderID); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// refreshOrderState recomputes the order aggregate from its jobs inside the
// caller's transaction. Reading the jobs after the transition in the same
// transaction guarantees the derived state includes the change.
func (s *FulfillmentServiceImpl) refreshOrderState(ctx context.Context, dbTx pgx.Tx, orderID uuid.UUID) error {
	jobs, err := s.jobRepo.ListByOrderForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	derived := domain.DeriveOrderState(jobs, s.maxAttempts)
	if err := s.orderRepo.UpdateState(ctx, dbTx, orderID, derived); err != nil {
		return apperror.ErrDatabaseError(err)
	}
	return nil
}

func detailJSON(fields map[string]any) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(b)
}
