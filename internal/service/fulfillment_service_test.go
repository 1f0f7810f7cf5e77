package service

import (
	"context"
	"errors"
	"testing"

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

const testMaxAttempts = 3

type fulfillmentTestDeps struct {
	svc          *FulfillmentServiceImpl
	orderRepo    *mocks.MockOrderRepository
	jobRepo      *mocks.MockJobRepository
	auditRepo    *mocks.MockAuditRepository
	artifactRepo *mocks.MockArtifactRepository
	generator    *mocks.MockContentGenerator
	publisher    *mocks.MockPublisher
	enqueuer     *mocks.MockTaskEnqueuer
	transactor   *mocks.MockDBTransactor
	ctrl         *gomock.Controller
}

func setupFulfillmentService(t *testing.T) *fulfillmentTestDeps {
	ctrl := gomock.NewController(t)
	d := &fulfillmentTestDeps{
		orderRepo:    mocks.NewMockOrderRepository(ctrl),
		jobRepo:      mocks.NewMockJobRepository(ctrl),
		auditRepo:    mocks.NewMockAuditRepository(ctrl),
		artifactRepo: mocks.NewMockArtifactRepository(ctrl),
		generator:    mocks.NewMockContentGenerator(ctrl),
		publisher:    mocks.NewMockPublisher(ctrl),
		enqueuer:     mocks.NewMockTaskEnqueuer(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewFulfillmentService(
		d.orderRepo, d.jobRepo, d.auditRepo, d.artifactRepo,
		d.generator, d.publisher, d.enqueuer, d.transactor,
		testMaxAttempts, zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

// expectTransitionTx wires the transaction around one committed transition:
// begin, guarded update, audit append, aggregate refresh.
func (d *fulfillmentTestDeps) expectTransitionTx(ctx context.Context, tx pgx.Tx, job *domain.Job, check func(t ports.JobTransition)) {
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().Transition(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, tr ports.JobTransition) (bool, error) {
			if check != nil {
				check(tr)
			}
			return true, nil
		})
	d.auditRepo.EXPECT().Append(ctx, tx, gomock.Any()).Return(nil)
	d.jobRepo.EXPECT().ListByOrderForUpdate(ctx, tx, job.OrderID).Return([]*domain.Job{job}, nil)
	d.orderRepo.EXPECT().UpdateState(ctx, tx, job.OrderID, gomock.Any()).Return(nil)
}

// ==================== RunGeneration Tests ====================

func TestFulfillmentService_RunGeneration_Success(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	orderID := uuid.New()
	job := &domain.Job{
		ID: uuid.New(), OrderID: orderID, Sequence: 1,
		State: domain.JobStateCreated, Retryable: true,
	}
	order := &domain.Order{
		ID: orderID, Topic: "sustainable packaging",
		Industry: "logistics", Tone: "professional", Quantity: 1,
	}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)

	// Claim: CREATED -> GENERATING
	d.expectTransitionTx(ctx, tx, job, func(tr ports.JobTransition) {
		assert.Equal(t, domain.JobStateCreated, tr.From)
		assert.Equal(t, domain.JobStateGenerating, tr.To)
		assert.False(t, tr.IncAttempts)
	})

	d.orderRepo.EXPECT().GetByID(ctx, orderID).Return(order, nil)
	d.generator.EXPECT().Generate(ctx, ports.GenerationRequest{
		Topic: "sustainable packaging", Industry: "logistics",
		Tone: "professional", Sequence: 1,
	}).Return(&ports.GenerationResult{Title: "Post one", Body: "Body text"}, nil)

	// Outcome: GENERATING -> AWAITING_REVIEW with artifact
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().Transition(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, tr ports.JobTransition) (bool, error) {
			assert.Equal(t, domain.JobStateGenerating, tr.From)
			assert.Equal(t, domain.JobStateAwaitingReview, tr.To)
			require.NotNil(t, tr.ArtifactRef)
			return true, nil
		})
	d.artifactRepo.EXPECT().Save(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, a *domain.Artifact) error {
			assert.Equal(t, "Post one", a.Title)
			assert.Equal(t, job.ID, a.JobID)
			return nil
		})
	d.auditRepo.EXPECT().Append(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.AuditEntry) error {
			assert.Equal(t, domain.AuditEventGenerationOK, e.Event)
			return nil
		})
	d.jobRepo.EXPECT().ListByOrderForUpdate(ctx, tx, orderID).Return([]*domain.Job{job}, nil)
	d.orderRepo.EXPECT().UpdateState(ctx, tx, orderID, gomock.Any()).Return(nil)

	err := d.svc.RunGeneration(ctx, job.ID, false)
	assert.NoError(t, err)
}

func TestFulfillmentService_RunGeneration_ClaimConflict(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	job := &domain.Job{ID: uuid.New(), OrderID: uuid.New(), State: domain.JobStateCreated}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	// Another worker instance claimed the job first.
	d.jobRepo.EXPECT().Transition(ctx, tx, gomock.Any()).Return(false, nil)

	err := d.svc.RunGeneration(ctx, job.ID, false)
	assertAppError(t, err, "JOB_001")
}

func TestFulfillmentService_RunGeneration_TransientFailure(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	orderID := uuid.New()
	job := &domain.Job{
		ID: uuid.New(), OrderID: orderID, Sequence: 1,
		State: domain.JobStateCreated, Retryable: true,
	}
	order := &domain.Order{ID: orderID, Topic: "topic", Quantity: 1}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
	d.expectTransitionTx(ctx, tx, job, nil)
	d.orderRepo.EXPECT().GetByID(ctx, orderID).Return(order, nil)

	genErr := &ports.CollaboratorError{
		Kind: ports.FailureTransient, Stage: "generation",
		Err: errors.New("upstream timeout"),
	}
	d.generator.EXPECT().Generate(ctx, gomock.Any()).Return(nil, genErr)

	// Failure commit: attempt charged, retryable stays true.
	d.expectTransitionTx(ctx, tx, job, func(tr ports.JobTransition) {
		assert.Equal(t, domain.JobStateGenerating, tr.From)
		assert.Equal(t, domain.JobStateFailed, tr.To)
		assert.True(t, tr.IncAttempts)
		require.NotNil(t, tr.SetRetryable)
		assert.True(t, *tr.SetRetryable)
		require.NotNil(t, tr.FailedFrom)
		assert.Equal(t, domain.JobStateGenerating, *tr.FailedFrom)
	})

	err := d.svc.RunGeneration(ctx, job.ID, false)
	assertAppError(t, err, "GEN_001")
}

func TestFulfillmentService_RunGeneration_ValidationFailure(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	orderID := uuid.New()
	job := &domain.Job{
		ID: uuid.New(), OrderID: orderID, Sequence: 1,
		State: domain.JobStateCreated, Retryable: true,
	}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
	d.expectTransitionTx(ctx, tx, job, nil)
	d.orderRepo.EXPECT().GetByID(ctx, orderID).Return(&domain.Order{ID: orderID}, nil)

	genErr := &ports.CollaboratorError{
		Kind: ports.FailureValidation, Stage: "generation",
		Err: errors.New("prompt rejected"),
	}
	d.generator.EXPECT().Generate(ctx, gomock.Any()).Return(nil, genErr)

	// Validation failure flips retryable off.
	d.expectTransitionTx(ctx, tx, job, func(tr ports.JobTransition) {
		require.NotNil(t, tr.SetRetryable)
		assert.False(t, *tr.SetRetryable)
	})

	err := d.svc.RunGeneration(ctx, job.ID, false)
	assertAppError(t, err, "GEN_002")
}

func TestFulfillmentService_RunGeneration_ChargedRetryDoesNotIncrement(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	orderID := uuid.New()
	// Retry controller already moved the job to GENERATING and charged it.
	job := &domain.Job{
		ID: uuid.New(), OrderID: orderID, Sequence: 1,
		State: domain.JobStateGenerating, Attempts: 1, Retryable: true,
	}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
	d.orderRepo.EXPECT().GetByID(ctx, orderID).Return(&domain.Order{ID: orderID}, nil)

	genErr := &ports.CollaboratorError{
		Kind: ports.FailureTransient, Stage: "generation",
		Err: errors.New("connection reset"),
	}
	d.generator.EXPECT().Generate(ctx, gomock.Any()).Return(nil, genErr)

	d.expectTransitionTx(ctx, tx, job, func(tr ports.JobTransition) {
		assert.False(t, tr.IncAttempts, "retry-initiated run must not double-charge the attempt")
	})

	err := d.svc.RunGeneration(ctx, job.ID, true)
	assertAppError(t, err, "GEN_001")
}

func TestFulfillmentService_RunGeneration_ChargedButWrongState(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	job := &domain.Job{ID: uuid.New(), OrderID: uuid.New(), State: domain.JobStateCompleted}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)

	err := d.svc.RunGeneration(ctx, job.ID, true)
	assertAppError(t, err, "JOB_001")
}

func TestFulfillmentService_RunGeneration_JobNotFound(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	jobID := uuid.New()
	d.jobRepo.EXPECT().GetByID(ctx, jobID).Return(nil, nil)

	err := d.svc.RunGeneration(ctx, jobID, false)
	assertAppError(t, err, "JOB_002")
}

// ==================== Approve Tests ====================

func TestFulfillmentService_Approve_Success(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	orderID := uuid.New()
	job := &domain.Job{ID: uuid.New(), OrderID: orderID, State: domain.JobStateAwaitingReview}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
	d.expectTransitionTx(ctx, tx, job, func(tr ports.JobTransition) {
		assert.Equal(t, domain.JobStateAwaitingReview, tr.From)
		assert.Equal(t, domain.JobStatePublishing, tr.To)
	})
	d.enqueuer.EXPECT().EnqueuePublish(ctx, job.ID).Return(nil)
	updated := &domain.Job{ID: job.ID, OrderID: orderID, State: domain.JobStatePublishing}
	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(updated, nil)

	result, err := d.svc.Approve(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatePublishing, result.State)
}

func TestFulfillmentService_Approve_NotAwaitingReview(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	job := &domain.Job{ID: uuid.New(), OrderID: uuid.New(), State: domain.JobStateGenerating}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)

	_, err := d.svc.Approve(ctx, job.ID)
	assertAppError(t, err, "JOB_003")
}

// ==================== RunPublish Tests ====================

func TestFulfillmentService_RunPublish_Success(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	orderID := uuid.New()
	artifactID := uuid.New()
	job := &domain.Job{
		ID: uuid.New(), OrderID: orderID,
		State: domain.JobStatePublishing, ArtifactRef: artifactID.String(),
	}
	artifact := &domain.Artifact{ID: artifactID, JobID: job.ID, Title: "Post one", Body: "Body text"}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
	d.artifactRepo.EXPECT().GetByID(ctx, artifactID).Return(artifact, nil)
	d.publisher.EXPECT().Publish(ctx, ports.PublishRequest{Title: "Post one", Body: "Body text"}).
		Return(&ports.PublishResult{PublishedURL: "https://blog.example.com/?p=42", ExternalID: "42"}, nil)

	d.expectTransitionTx(ctx, tx, job, func(tr ports.JobTransition) {
		assert.Equal(t, domain.JobStatePublishing, tr.From)
		assert.Equal(t, domain.JobStateCompleted, tr.To)
		require.NotNil(t, tr.PublishedURL)
		assert.Equal(t, "https://blog.example.com/?p=42", *tr.PublishedURL)
	})

	err := d.svc.RunPublish(ctx, job.ID, false)
	assert.NoError(t, err)
}

func TestFulfillmentService_RunPublish_TransientFailureCharges(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	orderID := uuid.New()
	artifactID := uuid.New()
	job := &domain.Job{
		ID: uuid.New(), OrderID: orderID,
		State: domain.JobStatePublishing, ArtifactRef: artifactID.String(),
	}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
	d.artifactRepo.EXPECT().GetByID(ctx, artifactID).Return(&domain.Artifact{ID: artifactID}, nil)

	pubErr := &ports.CollaboratorError{
		Kind: ports.FailureTransient, Stage: "publish",
		Err: errors.New("502 bad gateway"),
	}
	d.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil, pubErr)

	d.expectTransitionTx(ctx, tx, job, func(tr ports.JobTransition) {
		assert.Equal(t, domain.JobStateFailed, tr.To)
		assert.True(t, tr.IncAttempts)
		require.NotNil(t, tr.FailedFrom)
		assert.Equal(t, domain.JobStatePublishing, *tr.FailedFrom)
	})

	err := d.svc.RunPublish(ctx, job.ID, false)
	assertAppError(t, err, "PUB_001")
}

func TestFulfillmentService_RunPublish_CompletedJobRejected(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	job := &domain.Job{ID: uuid.New(), OrderID: uuid.New(), State: domain.JobStateCompleted}

	d.jobRepo.EXPECT().GetByID(ctx, job.ID).Return(job, nil)

	err := d.svc.RunPublish(ctx, job.ID, false)
	assertAppError(t, err, "JOB_001")
}

func TestFulfillmentService_CommitTransition_RejectsInvalidPair(t *testing.T) {
	d := setupFulfillmentService(t)
	defer d.ctrl.Finish()

	// No repo expectations: the transition table rejects the pair before
	// any transaction is opened.
	job := &domain.Job{ID: uuid.New(), OrderID: uuid.New(), State: domain.JobStateCompleted}
	err := d.svc.commitTransition(context.Background(), job, ports.JobTransition{
		JobID: job.ID,
		From:  domain.JobStateCompleted,
		To:    domain.JobStateGenerating,
	}, &domain.AuditEntry{OrderID: job.OrderID, JobID: &job.ID}, nil)
	assertAppError(t, err, "SYS_001")
}
