package handler

import (
	"strconv"

	"content-fulfillment-service/internal/adapter/http/dto"
	"content-fulfillment-service/internal/core/domain"
	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/pkg/apperror"
	"content-fulfillment-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const timeFormat = "2006-01-02T15:04:05Z07:00"

// OrderHandler handles operator order and job endpoints.
type OrderHandler struct {
	reportingSvc   ports.ReportingService
	fulfillmentSvc ports.FulfillmentService
	retrySvc       ports.RetryService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(reportingSvc ports.ReportingService, fulfillmentSvc ports.FulfillmentService, retrySvc ports.RetryService) *OrderHandler {
	return &OrderHandler{
		reportingSvc:   reportingSvc,
		fulfillmentSvc: fulfillmentSvc,
		retrySvc:       retrySvc,
	}
}

// ListOrders handles GET /api/v1/orders.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	params := ports.OrderListParams{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if s := c.Query("state"); s != "" {
		state := domain.OrderState(s)
		params.State = &state
	}

	orders, total, err := h.reportingSvc.ListOrders(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}

	totalPages := int(total) / params.PageSize
	if int(total)%params.PageSize != 0 {
		totalPages++
	}

	response.OK(c, dto.OrderListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	})
}

// GetOrder handles GET /api/v1/orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	detail, err := h.reportingSvc.GetOrderDetail(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	jobs := make([]dto.JobResponse, 0, len(detail.Jobs))
	for _, job := range detail.Jobs {
		jobs = append(jobs, toJobResponse(job))
	}
	audit := make([]dto.AuditEntryResponse, 0, len(detail.Audit))
	for i := range detail.Audit {
		audit = append(audit, toAuditResponse(&detail.Audit[i]))
	}

	response.OK(c, dto.OrderDetailResponse{
		Order: toOrderResponse(detail.Order),
		Jobs:  jobs,
		Audit: audit,
	})
}

// ApproveJob handles POST /api/v1/jobs/:id/approve.
func (h *OrderHandler) ApproveJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid job id"))
		return
	}

	job, err := h.fulfillmentSvc.Approve(c.Request.Context(), jobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toJobResponse(job))
}

// RetryJob handles POST /api/v1/jobs/:id/retry.
func (h *OrderHandler) RetryJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid job id"))
		return
	}

	job, err := h.retrySvc.Retry(c.Request.Context(), jobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toJobResponse(job))
}

// GetStats handles GET /api/v1/stats.
func (h *OrderHandler) GetStats(c *gin.Context) {
	stats, err := h.reportingSvc.GetStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	byState := make(map[string]int64, len(stats.ByState))
	for state, count := range stats.ByState {
		byState[string(state)] = count
	}

	response.OK(c, dto.StatsResponse{
		TotalOrders:    stats.TotalOrders,
		ByState:        byState,
		TotalJobs:      stats.TotalJobs,
		CompletedJobs:  stats.CompletedJobs,
		FailedJobs:     stats.FailedJobs,
		AwaitingReview: stats.AwaitingReview,
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func toOrderResponse(o *domain.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:            o.ID.String(),
		PurchaseRef:   o.PurchaseRef,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Topic:         o.Topic,
		Industry:      o.Industry,
		Tone:          o.Tone,
		Quantity:      o.Quantity,
		State:         string(o.State),
		CreatedAt:     o.CreatedAt.Format(timeFormat),
		UpdatedAt:     o.UpdatedAt.Format(timeFormat),
	}
}

func toJobResponse(j *domain.Job) dto.JobResponse {
	return dto.JobResponse{
		ID:           j.ID.String(),
		OrderID:      j.OrderID.String(),
		Sequence:     j.Sequence,
		State:        string(j.State),
		Attempts:     j.Attempts,
		Retryable:    j.Retryable,
		FailedFrom:   string(j.FailedFrom),
		LastError:    j.LastError,
		ArtifactRef:  j.ArtifactRef,
		PublishedURL: j.PublishedURL,
		CreatedAt:    j.CreatedAt.Format(timeFormat),
		UpdatedAt:    j.UpdatedAt.Format(timeFormat),
	}
}

func toAuditResponse(e *domain.AuditEntry) dto.AuditEntryResponse {
	resp := dto.AuditEntryResponse{
		ID:        e.ID.String(),
		Event:     string(e.Event),
		FromState: e.FromState,
		ToState:   e.ToState,
		Detail:    e.Detail,
		CreatedAt: e.CreatedAt.Format(timeFormat),
	}
	if e.JobID != nil {
		resp.JobID = e.JobID.String()
	}
	return resp
}
