package service

import (
	"context"
	"testing"

	"content-fulfillment-service/internal/core/domain"
	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reportingTestDeps struct {
	svc       *ReportingServiceImpl
	orderRepo *mocks.MockOrderRepository
	jobRepo   *mocks.MockJobRepository
	auditRepo *mocks.MockAuditRepository
	ctrl      *gomock.Controller
}

func setupReportingService(t *testing.T) *reportingTestDeps {
	ctrl := gomock.NewController(t)
	d := &reportingTestDeps{
		orderRepo: mocks.NewMockOrderRepository(ctrl),
		jobRepo:   mocks.NewMockJobRepository(ctrl),
		auditRepo: mocks.NewMockAuditRepository(ctrl),
		ctrl:      ctrl,
	}
	d.svc = NewReportingService(d.orderRepo, d.jobRepo, d.auditRepo, zerolog.Nop())
	return d
}

func TestReportingService_ListOrders_ClampsPagination(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.orderRepo.EXPECT().List(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
			assert.Equal(t, 1, params.Page)
			assert.Equal(t, 20, params.PageSize)
			return []domain.Order{}, 0, nil
		})

	_, _, err := d.svc.ListOrders(ctx, ports.OrderListParams{Page: 0, PageSize: 500})
	require.NoError(t, err)
}

func TestReportingService_ListOrders_PassesStateFilter(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	state := domain.OrderStateAwaitingReview
	orders := []domain.Order{{ID: uuid.New(), State: state}}

	d.orderRepo.EXPECT().List(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
			require.NotNil(t, params.State)
			assert.Equal(t, state, *params.State)
			return orders, 1, nil
		})

	got, total, err := d.svc.ListOrders(ctx, ports.OrderListParams{State: &state, Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, orders, got)
}

func TestReportingService_ListOrders_RepoError(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.orderRepo.EXPECT().List(ctx, gomock.Any()).Return(nil, int64(0), assert.AnError)

	_, _, err := d.svc.ListOrders(ctx, ports.OrderListParams{Page: 1, PageSize: 20})
	assertAppError(t, err, "SYS_001")
}

func TestReportingService_GetOrderDetail_Success(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	orderID := uuid.New()
	order := &domain.Order{ID: orderID, State: domain.OrderStateGenerating}
	jobs := []*domain.Job{{ID: uuid.New(), OrderID: orderID, Sequence: 1}}
	audit := []domain.AuditEntry{{OrderID: orderID, Event: domain.AuditEventOrderCreated}}

	d.orderRepo.EXPECT().GetByID(ctx, orderID).Return(order, nil)
	d.jobRepo.EXPECT().ListByOrder(ctx, orderID).Return(jobs, nil)
	d.auditRepo.EXPECT().ListByOrder(ctx, orderID).Return(audit, nil)

	detail, err := d.svc.GetOrderDetail(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order, detail.Order)
	assert.Equal(t, jobs, detail.Jobs)
	assert.Equal(t, audit, detail.Audit)
}

func TestReportingService_GetOrderDetail_NotFound(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	orderID := uuid.New()
	d.orderRepo.EXPECT().GetByID(ctx, orderID).Return(nil, nil)

	_, err := d.svc.GetOrderDetail(ctx, orderID)
	assertAppError(t, err, "ORD_001")
}

func TestReportingService_GetStats(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	stats := &ports.OrderStats{
		TotalOrders: 4,
		ByState:     map[domain.OrderState]int64{domain.OrderStateCompleted: 3, domain.OrderStateFailed: 1},
		TotalJobs:   12,
	}
	d.orderRepo.EXPECT().GetStats(ctx).Return(stats, nil)

	got, err := d.svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats, got)
}
