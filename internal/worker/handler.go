package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/pkg/apperror"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Handler processes fulfillment tasks by driving the orchestrator. Failures
// are recorded durably by the service layer, so the handler acknowledges
// every task it could decode: returning an error to asynq would buy nothing
// because retry semantics live in the retry controller.
type Handler struct {
	fulfillment ports.FulfillmentService
	log         zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(fulfillment ports.FulfillmentService, log zerolog.Logger) *Handler {
	return &Handler{fulfillment: fulfillment, log: log}
}

// Register mounts the task handlers on the mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeGenerate, h.HandleGenerate)
	mux.HandleFunc(TypePublish, h.HandlePublish)
}

// HandleGenerate runs the generation stage for the job in the payload.
func (h *Handler) HandleGenerate(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}

	log := h.log.With().Str("task", TypeGenerate).Str("job_id", payload.JobID.String()).Logger()
	log.Info().Bool("charged", payload.Charged).Msg("processing generation task")

	if err := h.fulfillment.RunGeneration(ctx, payload.JobID, payload.Charged); err != nil {
		return h.settle(log, err)
	}
	return nil
}

// HandlePublish runs the publish stage for the job in the payload.
func (h *Handler) HandlePublish(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}

	log := h.log.With().Str("task", TypePublish).Str("job_id", payload.JobID.String()).Logger()
	log.Info().Bool("charged", payload.Charged).Msg("processing publish task")

	if err := h.fulfillment.RunPublish(ctx, payload.JobID, payload.Charged); err != nil {
		return h.settle(log, err)
	}
	return nil
}

// settle decides whether a run error should fail the task. Stage failures
// and state conflicts are already durable outcomes: the job sits in FAILED
// (or was claimed by another worker) and the task is done. Infrastructure
// errors propagate so asynq records the task as failed for inspection.
func (h *Handler) settle(log zerolog.Logger, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case "GEN_001", "GEN_002", "PUB_001", "PUB_002":
			log.Warn().Err(err).Str("code", appErr.Code).Msg("stage failed, outcome recorded")
			return nil
		case "JOB_001":
			log.Info().Msg("job state changed concurrently, task skipped")
			return nil
		case "JOB_002":
			log.Warn().Msg("job no longer exists, task skipped")
			return nil
		}
	}
	log.Error().Err(err).Msg("task failed")
	return err
}

func decodePayload(t *asynq.Task) (*TaskPayload, error) {
	var payload TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	return &payload, nil
}
