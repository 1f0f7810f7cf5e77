package handler

import (
	"content-fulfillment-service/internal/adapter/http/dto"
	"content-fulfillment-service/internal/adapter/http/middleware"
	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/pkg/apperror"
	"content-fulfillment-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// WebhookHandler handles inbound payment-processor deliveries.
type WebhookHandler struct {
	ingestSvc ports.IngestService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(ingestSvc ports.IngestService) *WebhookHandler {
	return &WebhookHandler{ingestSvc: ingestSvc}
}

// HandlePaymentEvent handles POST /api/v1/webhooks/payment. The raw body is
// passed through untouched: the signature covers the exact bytes delivered.
func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	result, err := h.ingestSvc.Ingest(c.Request.Context(), body, c.GetHeader(middleware.HeaderSignature))
	if err != nil {
		response.Error(c, err)
		return
	}

	ack := dto.WebhookAckResponse{
		Status:   string(result.Status),
		EventID:  result.EventID,
		JobCount: result.JobCount,
	}
	if result.OrderID != nil {
		ack.OrderID = result.OrderID.String()
	}

	// 202 for every acknowledged outcome, duplicates and ignored types
	// included, so the processor stops redelivering.
	response.Accepted(c, ack)
}
