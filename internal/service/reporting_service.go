package service

import (
	"context"

	"content-fulfillment-service/internal/core/domain"
	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReportingServiceImpl implements ports.ReportingService for the operator
// dashboard. Reads only; all counts are derived by query.
type ReportingServiceImpl struct {
	orderRepo ports.OrderRepository
	jobRepo   ports.JobRepository
	auditRepo ports.AuditRepository
	log       zerolog.Logger
}

// NewReportingService creates a new ReportingServiceImpl.
func NewReportingService(orderRepo ports.OrderRepository, jobRepo ports.JobRepository, auditRepo ports.AuditRepository, log zerolog.Logger) *ReportingServiceImpl {
	return &ReportingServiceImpl{
		orderRepo: orderRepo,
		jobRepo:   jobRepo,
		auditRepo: auditRepo,
		log:       log,
	}
}

// ListOrders fetches orders filtered by state with pagination.
func (s *ReportingServiceImpl) ListOrders(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	orders, total, err := s.orderRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return orders, total, nil
}

// GetOrderDetail fetches one order with its jobs and audit trail.
func (s *ReportingServiceImpl) GetOrderDetail(ctx context.Context, orderID uuid.UUID) (*ports.OrderDetail, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound()
	}

	jobs, err := s.jobRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	audit, err := s.auditRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	return &ports.OrderDetail{
		Order: order,
		Jobs:  jobs,
		Audit: audit,
	}, nil
}

// GetStats returns aggregated dashboard counts.
func (s *ReportingServiceImpl) GetStats(ctx context.Context) (*ports.OrderStats, error) {
	stats, err := s.orderRepo.GetStats(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return stats, nil
}
