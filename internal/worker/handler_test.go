package worker

import (
	"context"
	"encoding/json"
	"testing"

	"content-fulfillment-service/internal/core/ports/mocks"
	"content-fulfillment-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTask(t *testing.T, taskType string, payload TaskPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(taskType, data)
}

func TestHandler_HandleGenerate_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fulfillment := mocks.NewMockFulfillmentService(ctrl)
	h := NewHandler(fulfillment, zerolog.Nop())

	jobID := uuid.New()
	fulfillment.EXPECT().RunGeneration(gomock.Any(), jobID, false).Return(nil)

	err := h.HandleGenerate(context.Background(), newTask(t, TypeGenerate, TaskPayload{JobID: jobID}))
	assert.NoError(t, err)
}

func TestHandler_HandleGenerate_ChargedFlagForwarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fulfillment := mocks.NewMockFulfillmentService(ctrl)
	h := NewHandler(fulfillment, zerolog.Nop())

	jobID := uuid.New()
	fulfillment.EXPECT().RunGeneration(gomock.Any(), jobID, true).Return(nil)

	err := h.HandleGenerate(context.Background(), newTask(t, TypeGenerate, TaskPayload{JobID: jobID, Charged: true}))
	assert.NoError(t, err)
}

func TestHandler_HandleGenerate_StageFailureIsAcknowledged(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fulfillment := mocks.NewMockFulfillmentService(ctrl)
	h := NewHandler(fulfillment, zerolog.Nop())

	jobID := uuid.New()
	// The FAILED state is already durable; re-running via asynq would
	// bypass the retry controller.
	fulfillment.EXPECT().RunGeneration(gomock.Any(), jobID, false).
		Return(apperror.ErrGenerationTransient(assert.AnError))

	err := h.HandleGenerate(context.Background(), newTask(t, TypeGenerate, TaskPayload{JobID: jobID}))
	assert.NoError(t, err)
}

func TestHandler_HandleGenerate_StateConflictIsAcknowledged(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fulfillment := mocks.NewMockFulfillmentService(ctrl)
	h := NewHandler(fulfillment, zerolog.Nop())

	jobID := uuid.New()
	fulfillment.EXPECT().RunGeneration(gomock.Any(), jobID, false).
		Return(apperror.ErrStateConflict())

	err := h.HandleGenerate(context.Background(), newTask(t, TypeGenerate, TaskPayload{JobID: jobID}))
	assert.NoError(t, err)
}

func TestHandler_HandleGenerate_InfraErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fulfillment := mocks.NewMockFulfillmentService(ctrl)
	h := NewHandler(fulfillment, zerolog.Nop())

	jobID := uuid.New()
	fulfillment.EXPECT().RunGeneration(gomock.Any(), jobID, false).
		Return(apperror.ErrDatabaseError(assert.AnError))

	err := h.HandleGenerate(context.Background(), newTask(t, TypeGenerate, TaskPayload{JobID: jobID}))
	assert.Error(t, err)
}

func TestHandler_HandlePublish_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fulfillment := mocks.NewMockFulfillmentService(ctrl)
	h := NewHandler(fulfillment, zerolog.Nop())

	jobID := uuid.New()
	fulfillment.EXPECT().RunPublish(gomock.Any(), jobID, true).Return(nil)

	err := h.HandlePublish(context.Background(), newTask(t, TypePublish, TaskPayload{JobID: jobID, Charged: true}))
	assert.NoError(t, err)
}

func TestHandler_MalformedPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fulfillment := mocks.NewMockFulfillmentService(ctrl)
	h := NewHandler(fulfillment, zerolog.Nop())

	err := h.HandleGenerate(context.Background(), asynq.NewTask(TypeGenerate, []byte(`{broken`)))
	assert.Error(t, err)
}
