package service

import (
	"context"
	"testing"
	"time"

	"content-fulfillment-service/internal/core/domain"
	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/internal/core/ports/mocks"
	"content-fulfillment-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ingestTestDeps struct {
	svc        *IngestServiceImpl
	sigSvc     *mocks.MockSignatureService
	dedupStore *mocks.MockEventDedupStore
	eventRepo  *mocks.MockWebhookEventRepository
	orderRepo  *mocks.MockOrderRepository
	jobRepo    *mocks.MockJobRepository
	auditRepo  *mocks.MockAuditRepository
	enqueuer   *mocks.MockTaskEnqueuer
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupIngestService(t *testing.T) *ingestTestDeps {
	ctrl := gomock.NewController(t)
	d := &ingestTestDeps{
		sigSvc:     mocks.NewMockSignatureService(ctrl),
		dedupStore: mocks.NewMockEventDedupStore(ctrl),
		eventRepo:  mocks.NewMockWebhookEventRepository(ctrl),
		orderRepo:  mocks.NewMockOrderRepository(ctrl),
		jobRepo:    mocks.NewMockJobRepository(ctrl),
		auditRepo:  mocks.NewMockAuditRepository(ctrl),
		enqueuer:   mocks.NewMockTaskEnqueuer(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewIngestService(
		d.sigSvc, d.dedupStore, d.eventRepo,
		d.orderRepo, d.jobRepo, d.auditRepo,
		d.enqueuer, d.transactor,
		IngestConfig{
			WebhookSecret:      "whsec_test",
			SucceededEventType: "payment_intent.succeeded",
			DedupTTL:           24 * time.Hour,
			DefaultQuantity:    3,
		},
		zerolog.Nop(),
	)
	return d
}

const validPayload = `{
	"id": "evt_001",
	"type": "payment_intent.succeeded",
	"purchase_ref": "pi_abc",
	"customer_name": "Dana",
	"customer_email": "dana@example.com",
	"topic": "warehouse automation",
	"industry": "logistics",
	"tone": "professional",
	"quantity": 2
}`

func TestIngestService_Ingest_Success(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	body := []byte(validPayload)

	d.sigSvc.EXPECT().Verify("whsec_test", "sig-header", body, gomock.Any()).Return(nil)
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_001", 24*time.Hour).Return(true, nil)
	d.eventRepo.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, rec *domain.WebhookEvent) (bool, error) {
			assert.Equal(t, "evt_001", rec.ExternalID)
			assert.Equal(t, domain.WebhookEventReceived, rec.Status)
			return true, nil
		})
	d.orderRepo.EXPECT().GetByPurchaseRef(ctx, "pi_abc").Return(nil, nil)

	// One transaction: order, two jobs, audit, event marked processed.
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	var createdOrderID uuid.UUID
	d.orderRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, o *domain.Order) error {
			createdOrderID = o.ID
			assert.Equal(t, "pi_abc", o.PurchaseRef)
			assert.Equal(t, 2, o.Quantity)
			assert.Equal(t, domain.OrderStateCreated, o.State)
			return nil
		})
	seqs := make([]int, 0, 2)
	d.jobRepo.EXPECT().Create(ctx, tx, gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, j *domain.Job) error {
			seqs = append(seqs, j.Sequence)
			assert.Equal(t, domain.JobStateCreated, j.State)
			assert.True(t, j.Retryable)
			return nil
		})
	d.auditRepo.EXPECT().Append(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.AuditEntry) error {
			assert.Equal(t, domain.AuditEventOrderCreated, e.Event)
			return nil
		})
	d.eventRepo.EXPECT().MarkProcessed(ctx, tx, "evt_001", gomock.Any()).Return(nil)

	d.enqueuer.EXPECT().EnqueueGeneration(ctx, gomock.Any()).Times(2).Return(nil)

	result, err := d.svc.Ingest(ctx, body, "sig-header")
	require.NoError(t, err)
	assert.Equal(t, ports.IngestAccepted, result.Status)
	assert.Equal(t, "evt_001", result.EventID)
	assert.Equal(t, 2, result.JobCount)
	require.NotNil(t, result.OrderID)
	assert.Equal(t, createdOrderID, *result.OrderID)
	assert.Equal(t, []int{1, 2}, seqs)
}

func TestIngestService_Ingest_InvalidSignature(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	body := []byte(validPayload)

	d.sigSvc.EXPECT().Verify("whsec_test", "bad", body, gomock.Any()).
		Return(apperror.ErrSignatureInvalid())

	_, err := d.svc.Ingest(ctx, body, "bad")
	assertAppError(t, err, "SIG_001")
}

func TestIngestService_Ingest_MalformedBody(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	body := []byte(`{not json`)

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)

	_, err := d.svc.Ingest(ctx, body, "sig")
	assertAppError(t, err, "EVT_001")
}

func TestIngestService_Ingest_MissingEventID(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	body := []byte(`{"type":"payment_intent.succeeded"}`)

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)

	_, err := d.svc.Ingest(ctx, body, "sig")
	assertAppError(t, err, "EVT_001")
}

func TestIngestService_Ingest_DuplicateFilteredByCache(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	body := []byte(validPayload)
	orderID := uuid.New()

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_001", 24*time.Hour).Return(false, nil)
	d.eventRepo.EXPECT().GetByExternalID(ctx, "evt_001").Return(&domain.WebhookEvent{
		ExternalID: "evt_001",
		Status:     domain.WebhookEventProcessed,
		OrderID:    &orderID,
	}, nil)

	result, err := d.svc.Ingest(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, ports.IngestDuplicate, result.Status)
	assert.True(t, result.Duplicate)
	require.NotNil(t, result.OrderID)
	assert.Equal(t, orderID, *result.OrderID)
}

func TestIngestService_Ingest_CacheHitWithoutDurableRecordReprocesses(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	body := []byte(validPayload)

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)
	// The cache remembers the event, but the durable insert of the earlier
	// delivery never landed. The redelivery must process the event, not
	// ack it away.
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_001", 24*time.Hour).Return(false, nil)
	d.eventRepo.EXPECT().GetByExternalID(ctx, "evt_001").Return(nil, nil)

	d.eventRepo.EXPECT().Insert(ctx, gomock.Any()).Return(true, nil)
	d.orderRepo.EXPECT().GetByPurchaseRef(ctx, "pi_abc").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.jobRepo.EXPECT().Create(ctx, tx, gomock.Any()).Times(2).Return(nil)
	d.auditRepo.EXPECT().Append(ctx, tx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().MarkProcessed(ctx, tx, "evt_001", gomock.Any()).Return(nil)
	d.enqueuer.EXPECT().EnqueueGeneration(ctx, gomock.Any()).Times(2).Return(nil)

	result, err := d.svc.Ingest(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, ports.IngestAccepted, result.Status)
	assert.Equal(t, 2, result.JobCount)
}

func TestIngestService_Ingest_LosesPurchaseInsertRace(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	body := []byte(validPayload)
	winner := &domain.Order{ID: uuid.New(), PurchaseRef: "pi_abc"}

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_001", 24*time.Hour).Return(true, nil)
	d.eventRepo.EXPECT().Insert(ctx, gomock.Any()).Return(true, nil)
	// The pre-check misses the concurrent delivery; the unique index on
	// purchase_ref catches it at insert time.
	d.orderRepo.EXPECT().GetByPurchaseRef(ctx, "pi_abc").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(ports.ErrDuplicatePurchaseRef)

	d.eventRepo.EXPECT().MarkIgnored(ctx, "evt_001").Return(nil)
	d.orderRepo.EXPECT().GetByPurchaseRef(ctx, "pi_abc").Return(winner, nil)

	result, err := d.svc.Ingest(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, ports.IngestDuplicate, result.Status)
	assert.True(t, result.Duplicate)
	require.NotNil(t, result.OrderID)
	assert.Equal(t, winner.ID, *result.OrderID)
}

func TestIngestService_Ingest_DuplicateFilteredByEventStore(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	body := []byte(validPayload)

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)
	// Redis lost its key; the unique index still catches the replay.
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_001", 24*time.Hour).Return(true, nil)
	d.eventRepo.EXPECT().Insert(ctx, gomock.Any()).Return(false, nil)
	d.eventRepo.EXPECT().GetByExternalID(ctx, "evt_001").Return(&domain.WebhookEvent{
		ExternalID: "evt_001",
		Status:     domain.WebhookEventProcessed,
	}, nil)

	result, err := d.svc.Ingest(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, ports.IngestDuplicate, result.Status)
	assert.True(t, result.Duplicate)
}

func TestIngestService_Ingest_CacheErrorFallsThroughToDB(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	body := []byte(validPayload)

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_001", 24*time.Hour).Return(false, assert.AnError)
	// The DB insert remains the authority when Redis is unavailable.
	d.eventRepo.EXPECT().Insert(ctx, gomock.Any()).Return(false, nil)
	d.eventRepo.EXPECT().GetByExternalID(ctx, "evt_001").Return(nil, nil)

	result, err := d.svc.Ingest(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, ports.IngestDuplicate, result.Status)
}

func TestIngestService_Ingest_ForeignEventTypeIgnored(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	body := []byte(`{"id":"evt_002","type":"payment_intent.created"}`)

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_002", 24*time.Hour).Return(true, nil)
	d.eventRepo.EXPECT().Insert(ctx, gomock.Any()).Return(true, nil)
	d.eventRepo.EXPECT().MarkIgnored(ctx, "evt_002").Return(nil)

	result, err := d.svc.Ingest(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, ports.IngestIgnored, result.Status)
	assert.Nil(t, result.OrderID)
}

func TestIngestService_Ingest_SamePurchaseNewEventID(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	body := []byte(validPayload)
	existing := &domain.Order{ID: uuid.New(), PurchaseRef: "pi_abc"}

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_001", 24*time.Hour).Return(true, nil)
	d.eventRepo.EXPECT().Insert(ctx, gomock.Any()).Return(true, nil)
	// Fresh event id, but the purchase was already fulfilled.
	d.orderRepo.EXPECT().GetByPurchaseRef(ctx, "pi_abc").Return(existing, nil)
	d.eventRepo.EXPECT().MarkIgnored(ctx, "evt_001").Return(nil)

	result, err := d.svc.Ingest(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, ports.IngestDuplicate, result.Status)
	assert.True(t, result.Duplicate)
	require.NotNil(t, result.OrderID)
	assert.Equal(t, existing.ID, *result.OrderID)
}

func TestIngestService_Ingest_MissingPurchaseRef(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	body := []byte(`{"id":"evt_003","type":"payment_intent.succeeded","customer_email":"a@b.c"}`)

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_003", 24*time.Hour).Return(true, nil)
	d.eventRepo.EXPECT().Insert(ctx, gomock.Any()).Return(true, nil)

	_, err := d.svc.Ingest(ctx, body, "sig")
	assertAppError(t, err, "EVT_001")
}

func TestIngestService_Ingest_DefaultQuantity(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	body := []byte(`{
		"id": "evt_004",
		"type": "payment_intent.succeeded",
		"purchase_ref": "pi_def",
		"customer_email": "dana@example.com",
		"topic": "cold chain"
	}`)

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_004", 24*time.Hour).Return(true, nil)
	d.eventRepo.EXPECT().Insert(ctx, gomock.Any()).Return(true, nil)
	d.orderRepo.EXPECT().GetByPurchaseRef(ctx, "pi_def").Return(nil, nil)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, o *domain.Order) error {
			assert.Equal(t, 3, o.Quantity)
			return nil
		})
	d.jobRepo.EXPECT().Create(ctx, tx, gomock.Any()).Times(3).Return(nil)
	d.auditRepo.EXPECT().Append(ctx, tx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().MarkProcessed(ctx, tx, "evt_004", gomock.Any()).Return(nil)
	d.enqueuer.EXPECT().EnqueueGeneration(ctx, gomock.Any()).Times(3).Return(nil)

	result, err := d.svc.Ingest(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, ports.IngestAccepted, result.Status)
	assert.Equal(t, 3, result.JobCount)
}

func TestIngestService_Ingest_EnqueueFailureStillAccepted(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	body := []byte(validPayload)

	d.sigSvc.EXPECT().Verify("whsec_test", "sig", body, gomock.Any()).Return(nil)
	d.dedupStore.EXPECT().CheckAndSet(ctx, "evt_001", 24*time.Hour).Return(true, nil)
	d.eventRepo.EXPECT().Insert(ctx, gomock.Any()).Return(true, nil)
	d.orderRepo.EXPECT().GetByPurchaseRef(ctx, "pi_abc").Return(nil, nil)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.jobRepo.EXPECT().Create(ctx, tx, gomock.Any()).Times(2).Return(nil)
	d.auditRepo.EXPECT().Append(ctx, tx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().MarkProcessed(ctx, tx, "evt_001", gomock.Any()).Return(nil)

	// Jobs are durably CREATED; a broker outage must not fail the ingest.
	d.enqueuer.EXPECT().EnqueueGeneration(ctx, gomock.Any()).Times(2).Return(assert.AnError)

	result, err := d.svc.Ingest(ctx, body, "sig")
	require.NoError(t, err)
	assert.Equal(t, ports.IngestAccepted, result.Status)
}
