package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"content-fulfillment-service/internal/core/domain"
	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IngestConfig holds the ingestion policy values.
type IngestConfig struct {
	WebhookSecret      string
	SucceededEventType string
	DedupTTL           time.Duration
	DefaultQuantity    int
}

// IngestServiceImpl implements ports.IngestService: signature verification,
// two-layer deduplication, durable event recording and order creation for
// one inbound payment webhook delivery.
type IngestServiceImpl struct {
	sigSvc     ports.SignatureService
	dedupStore ports.EventDedupStore
	eventRepo  ports.WebhookEventRepository
	orderRepo  ports.OrderRepository
	jobRepo    ports.JobRepository
	auditRepo  ports.AuditRepository
	enqueuer   ports.TaskEnqueuer
	transactor ports.DBTransactor
	cfg        IngestConfig
	log        zerolog.Logger
}

// NewIngestService creates a new IngestServiceImpl.
func NewIngestService(
	sigSvc ports.SignatureService,
	dedupStore ports.EventDedupStore,
	eventRepo ports.WebhookEventRepository,
	orderRepo ports.OrderRepository,
	jobRepo ports.JobRepository,
	auditRepo ports.AuditRepository,
	enqueuer ports.TaskEnqueuer,
	transactor ports.DBTransactor,
	cfg IngestConfig,
	log zerolog.Logger,
) *IngestServiceImpl {
	return &IngestServiceImpl{
		sigSvc:     sigSvc,
		dedupStore: dedupStore,
		eventRepo:  eventRepo,
		orderRepo:  orderRepo,
		jobRepo:    jobRepo,
		auditRepo:  auditRepo,
		enqueuer:   enqueuer,
		transactor: transactor,
		cfg:        cfg,
		log:        log,
	}
}

// Ingest processes one webhook delivery. Verification failures propagate as
// SIG errors; duplicates and foreign event types resolve to an acknowledged
// result so the processor stops redelivering.
func (s *IngestServiceImpl) Ingest(ctx context.Context, rawBody []byte, signatureHeader string) (*ports.IngestResult, error) {
	if err := s.sigSvc.Verify(s.cfg.WebhookSecret, signatureHeader, rawBody, time.Now()); err != nil {
		return nil, err
	}

	var event domain.PaymentEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, apperror.ErrMalformedEvent(err)
	}
	if event.ExternalID == "" {
		return nil, apperror.ErrMalformedEvent(fmt.Errorf("missing event id"))
	}

	// Layer 1: Redis fast path. On error fall through to the DB authority.
	fresh, err := s.dedupStore.CheckAndSet(ctx, event.ExternalID, s.cfg.DedupTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", event.ExternalID).Msg("redis dedup check failed, falling through to DB")
	} else if !fresh {
		// The cache key can outlive a delivery that died before its durable
		// insert, so a cache hit is only acked once the event store confirms
		// the record exists. No row means the earlier delivery never landed
		// and this one must process the event.
		prior, err := s.eventRepo.GetByExternalID(ctx, event.ExternalID)
		if err != nil {
			s.log.Warn().Err(err).Str("event_id", event.ExternalID).Msg("could not confirm cached duplicate, falling through to DB")
		} else if prior != nil {
			s.log.Info().Str("event_id", event.ExternalID).Msg("duplicate delivery filtered by cache")
			return &ports.IngestResult{
				Status:    ports.IngestDuplicate,
				EventID:   event.ExternalID,
				OrderID:   prior.OrderID,
				Duplicate: true,
			}, nil
		} else {
			s.log.Warn().Str("event_id", event.ExternalID).Msg("cache hit without durable record, reprocessing delivery")
		}
	}

	// Durable record before any side-effecting work: a crash after this
	// point leaves a received row for reconciliation instead of silence.
	record := &domain.WebhookEvent{
		ID:         uuid.New(),
		ExternalID: event.ExternalID,
		EventType:  event.Type,
		Status:     domain.WebhookEventReceived,
		ReceivedAt: time.Now(),
	}
	inserted, err := s.eventRepo.Insert(ctx, record)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if !inserted {
		// Layer 2: the unique index is the authority.
		s.log.Info().Str("event_id", event.ExternalID).Msg("duplicate delivery filtered by event store")
		return s.duplicateResult(ctx, event.ExternalID), nil
	}

	if event.Type != s.cfg.SucceededEventType {
		if err := s.eventRepo.MarkIgnored(ctx, event.ExternalID); err != nil {
			s.log.Warn().Err(err).Str("event_id", event.ExternalID).Msg("could not mark event ignored")
		}
		s.log.Info().Str("event_id", event.ExternalID).Str("type", event.Type).Msg("ignoring event type")
		return &ports.IngestResult{Status: ports.IngestIgnored, EventID: event.ExternalID}, nil
	}

	if event.PurchaseRef == "" || event.CustomerEmail == "" {
		return nil, apperror.ErrMalformedEvent(fmt.Errorf("missing purchase_ref or customer_email"))
	}

	// Same purchase delivered under a new event id: the purchase_ref
	// uniqueness invariant still forbids a second order.
	existing, err := s.orderRepo.GetByPurchaseRef(ctx, event.PurchaseRef)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if existing != nil {
		if err := s.eventRepo.MarkIgnored(ctx, event.ExternalID); err != nil {
			s.log.Warn().Err(err).Str("event_id", event.ExternalID).Msg("could not mark event ignored")
		}
		s.log.Info().Str("event_id", event.ExternalID).Str("purchase_ref", event.PurchaseRef).Msg("purchase already fulfilled by an earlier event")
		return &ports.IngestResult{
			Status:    ports.IngestDuplicate,
			EventID:   event.ExternalID,
			OrderID:   &existing.ID,
			Duplicate: true,
		}, nil
	}

	order, jobs, err := s.createOrder(ctx, &event)
	if err != nil {
		if errors.Is(err, ports.ErrDuplicatePurchaseRef) {
			// Lost the insert race to a concurrent delivery of the same
			// purchase under another event id.
			if err := s.eventRepo.MarkIgnored(ctx, event.ExternalID); err != nil {
				s.log.Warn().Err(err).Str("event_id", event.ExternalID).Msg("could not mark event ignored")
			}
			s.log.Info().Str("event_id", event.ExternalID).Str("purchase_ref", event.PurchaseRef).Msg("purchase fulfilled by a concurrent delivery")
			result := &ports.IngestResult{
				Status:    ports.IngestDuplicate,
				EventID:   event.ExternalID,
				Duplicate: true,
			}
			if winner, lookupErr := s.orderRepo.GetByPurchaseRef(ctx, event.PurchaseRef); lookupErr == nil && winner != nil {
				result.OrderID = &winner.ID
			}
			return result, nil
		}
		return nil, err
	}

	// Best-effort enqueue: the jobs are durably CREATED, so a lost task
	// shows up in the dashboard as a stalled job rather than lost work.
	for _, job := range jobs {
		if err := s.enqueuer.EnqueueGeneration(ctx, job.ID); err != nil {
			s.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to enqueue generation task")
		}
	}

	s.log.Info().
		Str("event_id", event.ExternalID).
		Str("order_id", order.ID.String()).
		Int("jobs", len(jobs)).
		Msg("order created from payment event")

	return &ports.IngestResult{
		Status:   ports.IngestAccepted,
		EventID:  event.ExternalID,
		OrderID:  &order.ID,
		JobCount: len(jobs),
	}, nil
}

// createOrder creates the order, its jobs and the initial audit entry, and
// marks the webhook event processed, all in one transaction.
func (s *IngestServiceImpl) createOrder(ctx context.Context, event *domain.PaymentEvent) (*domain.Order, []*domain.Job, error) {
	quantity := event.Quantity
	if quantity <= 0 {
		quantity = s.cfg.DefaultQuantity
	}

	now := time.Now()
	order := &domain.Order{
		ID:            uuid.New(),
		PurchaseRef:   event.PurchaseRef,
		CustomerName:  event.CustomerName,
		CustomerEmail: event.CustomerEmail,
		Topic:         event.Topic,
		Industry:      event.Industry,
		Tone:          event.Tone,
		Quantity:      quantity,
		State:         domain.OrderStateCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.orderRepo.Create(ctx, dbTx, order); err != nil {
		return nil, nil, apperror.ErrDatabaseError(err)
	}

	jobs := make([]*domain.Job, 0, quantity)
	for i := 1; i <= quantity; i++ {
		job := &domain.Job{
			ID:        uuid.New(),
			OrderID:   order.ID,
			Sequence:  i,
			State:     domain.JobStateCreated,
			Retryable: true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.jobRepo.Create(ctx, dbTx, job); err != nil {
			return nil, nil, apperror.ErrDatabaseError(err)
		}
		jobs = append(jobs, job)
	}

	entry := &domain.AuditEntry{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Event:     domain.AuditEventOrderCreated,
		Detail:    detailJSON(map[string]any{"purchase_ref": order.PurchaseRef, "quantity": quantity, "event_id": event.ExternalID}),
		CreatedAt: now,
	}
	if err := s.auditRepo.Append(ctx, dbTx, entry); err != nil {
		return nil, nil, apperror.ErrDatabaseError(err)
	}

	if err := s.eventRepo.MarkProcessed(ctx, dbTx, event.ExternalID, order.ID); err != nil {
		return nil, nil, apperror.ErrDatabaseError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return order, jobs, nil
}

// duplicateResult builds the acknowledgment for a replayed delivery,
// including the order it resolved to when known.
func (s *IngestServiceImpl) duplicateResult(ctx context.Context, externalID string) *ports.IngestResult {
	result := &ports.IngestResult{
		Status:    ports.IngestDuplicate,
		EventID:   externalID,
		Duplicate: true,
	}
	if prior, err := s.eventRepo.GetByExternalID(ctx, externalID); err == nil && prior != nil {
		result.OrderID = prior.OrderID
	}
	return result
}
