package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeGenerate = "fulfillment:generate"
	TypePublish  = "fulfillment:publish"
)

// TaskPayload carries the job id and whether the attempt was already charged
// by the retry controller. Fresh enqueues set Charged false; retry enqueues
// set it true so the re-run does not charge the attempt a second time.
type TaskPayload struct {
	JobID   uuid.UUID `json:"job_id"`
	Charged bool      `json:"charged"`
}

// Enqueuer implements ports.TaskEnqueuer on asynq. Tasks are enqueued with
// MaxRetry 0: the retry controller owns retry semantics, so a failed run must
// not be silently re-executed by the queue.
type Enqueuer struct {
	client *asynq.Client
	queue  string
}

// NewEnqueuer creates a new Enqueuer.
func NewEnqueuer(client *asynq.Client, queue string) *Enqueuer {
	return &Enqueuer{client: client, queue: queue}
}

// EnqueueGeneration enqueues a fresh generation run for the job.
func (e *Enqueuer) EnqueueGeneration(ctx context.Context, jobID uuid.UUID) error {
	return e.enqueue(ctx, TypeGenerate, TaskPayload{JobID: jobID})
}

// EnqueuePublish enqueues a fresh publish run for the job.
func (e *Enqueuer) EnqueuePublish(ctx context.Context, jobID uuid.UUID) error {
	return e.enqueue(ctx, TypePublish, TaskPayload{JobID: jobID})
}

// EnqueueGenerationRetry enqueues a generation re-run whose attempt was
// already charged.
func (e *Enqueuer) EnqueueGenerationRetry(ctx context.Context, jobID uuid.UUID) error {
	return e.enqueue(ctx, TypeGenerate, TaskPayload{JobID: jobID, Charged: true})
}

// EnqueuePublishRetry enqueues a publish re-run whose attempt was already
// charged.
func (e *Enqueuer) EnqueuePublishRetry(ctx context.Context, jobID uuid.UUID) error {
	return e.enqueue(ctx, TypePublish, TaskPayload{JobID: jobID, Charged: true})
}

func (e *Enqueuer) enqueue(ctx context.Context, taskType string, payload TaskPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling task payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(e.queue), asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("enqueuing %s for job %s: %w", taskType, payload.JobID, err)
	}
	return nil
}
