package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"content-fulfillment-service/internal/core/domain"
	"content-fulfillment-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (r *inMemoryOrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.PurchaseRef == o.PurchaseRef {
			return ports.ErrDuplicatePurchaseRef
		}
	}
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *inMemoryOrderRepo) GetByPurchaseRef(ctx context.Context, purchaseRef string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.PurchaseRef == purchaseRef {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryOrderRepo) List(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Order
	for _, o := range r.orders {
		if params.State != nil && o.State != *params.State {
			continue
		}
		result = append(result, *o)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Order{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryOrderRepo) UpdateState(ctx context.Context, tx pgx.Tx, id uuid.UUID, state domain.OrderState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order not found")
	}
	o.State = state
	o.UpdatedAt = time.Now()
	return nil
}

func (r *inMemoryOrderRepo) GetStats(ctx context.Context) (*ports.OrderStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &ports.OrderStats{ByState: make(map[domain.OrderState]int64)}
	for _, o := range r.orders {
		stats.TotalOrders++
		stats.ByState[o.State]++
	}
	return stats, nil
}

// --- In-Memory Job Repo ---

type inMemoryJobRepo struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job
}

func newInMemoryJobRepo() *inMemoryJobRepo {
	return &inMemoryJobRepo{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (r *inMemoryJobRepo) Create(ctx context.Context, tx pgx.Tx, j *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *inMemoryJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r *inMemoryJobRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listByOrderLocked(orderID), nil
}

func (r *inMemoryJobRepo) ListByOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listByOrderLocked(orderID), nil
}

func (r *inMemoryJobRepo) listByOrderLocked(orderID uuid.UUID) []*domain.Job {
	var result []*domain.Job
	for _, j := range r.jobs {
		if j.OrderID == orderID {
			cp := *j
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Sequence < result[k].Sequence })
	return result
}

// Transition applies the same optimistic guard the SQL implementation uses:
// the update only lands when the stored state still matches From.
func (r *inMemoryJobRepo) Transition(ctx context.Context, tx pgx.Tx, t ports.JobTransition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[t.JobID]
	if !ok || j.State != t.From {
		return false, nil
	}
	j.State = t.To
	j.UpdatedAt = time.Now()
	if t.IncAttempts {
		j.Attempts++
	}
	if t.SetRetryable != nil {
		j.Retryable = *t.SetRetryable
	}
	if t.FailedFrom != nil {
		j.FailedFrom = *t.FailedFrom
	}
	if t.LastError != nil {
		j.LastError = *t.LastError
	}
	if t.ArtifactRef != nil {
		j.ArtifactRef = *t.ArtifactRef
	}
	if t.PublishedURL != nil {
		j.PublishedURL = *t.PublishedURL
	}
	return true, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *inMemoryAuditRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.AuditEntry
	for _, e := range r.entries {
		if e.OrderID == orderID {
			result = append(result, e)
		}
	}
	return result, nil
}

// --- In-Memory Artifact Repo ---

type inMemoryArtifactRepo struct {
	mu        sync.RWMutex
	artifacts map[uuid.UUID]*domain.Artifact
}

func newInMemoryArtifactRepo() *inMemoryArtifactRepo {
	return &inMemoryArtifactRepo{artifacts: make(map[uuid.UUID]*domain.Artifact)}
}

func (r *inMemoryArtifactRepo) Save(ctx context.Context, tx pgx.Tx, a *domain.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.artifacts[a.ID] = &cp
	return nil
}

func (r *inMemoryArtifactRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// --- In-Memory Webhook Event Repo ---

type inMemoryWebhookEventRepo struct {
	mu     sync.RWMutex
	events map[string]*domain.WebhookEvent
}

func newInMemoryWebhookEventRepo() *inMemoryWebhookEventRepo {
	return &inMemoryWebhookEventRepo{events: make(map[string]*domain.WebhookEvent)}
}

func (r *inMemoryWebhookEventRepo) Insert(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[e.ExternalID]; exists {
		return false, nil
	}
	cp := *e
	r.events[e.ExternalID] = &cp
	return true, nil
}

func (r *inMemoryWebhookEventRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[externalID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *inMemoryWebhookEventRepo) MarkProcessed(ctx context.Context, tx pgx.Tx, externalID string, orderID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[externalID]
	if !ok {
		return fmt.Errorf("event not found")
	}
	e.Status = domain.WebhookEventProcessed
	e.OrderID = &orderID
	return nil
}

func (r *inMemoryWebhookEventRepo) MarkIgnored(ctx context.Context, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[externalID]
	if !ok {
		return fmt.Errorf("event not found")
	}
	e.Status = domain.WebhookEventIgnored
	return nil
}

// --- In-Memory Event Dedup Store ---

type inMemoryDedupStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newInMemoryDedupStore() *inMemoryDedupStore {
	return &inMemoryDedupStore{seen: make(map[string]bool)}
}

func (s *inMemoryDedupStore) CheckAndSet(ctx context.Context, externalID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[externalID] {
		return false, nil
	}
	s.seen[externalID] = true
	return true, nil
}

// --- Recording Enqueuer ---

type queuedTask struct {
	taskType string
	jobID    uuid.UUID
	charged  bool
}

// recordingEnqueuer captures tasks so tests can pump the pipeline manually.
type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []queuedTask
}

func newRecordingEnqueuer() *recordingEnqueuer {
	return &recordingEnqueuer{}
}

func (e *recordingEnqueuer) EnqueueGeneration(ctx context.Context, jobID uuid.UUID) error {
	return e.record("generate", jobID, false)
}

func (e *recordingEnqueuer) EnqueuePublish(ctx context.Context, jobID uuid.UUID) error {
	return e.record("publish", jobID, false)
}

func (e *recordingEnqueuer) EnqueueGenerationRetry(ctx context.Context, jobID uuid.UUID) error {
	return e.record("generate", jobID, true)
}

func (e *recordingEnqueuer) EnqueuePublishRetry(ctx context.Context, jobID uuid.UUID) error {
	return e.record("publish", jobID, true)
}

func (e *recordingEnqueuer) record(taskType string, jobID uuid.UUID, charged bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, queuedTask{taskType: taskType, jobID: jobID, charged: charged})
	return nil
}

func (e *recordingEnqueuer) drain() []queuedTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	tasks := e.tasks
	e.tasks = nil
	return tasks
}

// --- Scriptable Collaborators ---

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	generate func(call int, req ports.GenerationRequest) (*ports.GenerationResult, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (*ports.GenerationResult, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()
	if g.generate != nil {
		return g.generate(call, req)
	}
	return &ports.GenerationResult{
		Title: fmt.Sprintf("Post %d on %s", req.Sequence, req.Topic),
		Body:  "Generated body.",
	}, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	calls   int
	publish func(call int, req ports.PublishRequest) (*ports.PublishResult, error)
}

func (p *fakePublisher) Publish(ctx context.Context, req ports.PublishRequest) (*ports.PublishResult, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()
	if p.publish != nil {
		return p.publish(call, req)
	}
	return &ports.PublishResult{
		PublishedURL: fmt.Sprintf("https://blog.example.com/?p=%d", call),
		ExternalID:   fmt.Sprintf("%d", call),
	}, nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
