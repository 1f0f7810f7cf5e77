package dto

// LoginRequest is the request body for operator login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// WebhookAckResponse acknowledges a webhook delivery.
type WebhookAckResponse struct {
	Status   string `json:"status"` // accepted, duplicate, ignored
	EventID  string `json:"event_id"`
	OrderID  string `json:"order_id,omitempty"`
	JobCount int    `json:"job_count,omitempty"`
}

// OrderResponse is the list/detail representation of one order.
type OrderResponse struct {
	ID            string `json:"id"`
	PurchaseRef   string `json:"purchase_ref"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email"`
	Topic         string `json:"topic"`
	Industry      string `json:"industry,omitempty"`
	Tone          string `json:"tone,omitempty"`
	Quantity      int    `json:"quantity"`
	State         string `json:"state"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// JobResponse is the representation of one fulfillment job.
type JobResponse struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	Sequence     int    `json:"sequence"`
	State        string `json:"state"`
	Attempts     int    `json:"attempts"`
	Retryable    bool   `json:"retryable"`
	FailedFrom   string `json:"failed_from,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	ArtifactRef  string `json:"artifact_ref,omitempty"`
	PublishedURL string `json:"published_url,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// AuditEntryResponse is one audit trail record.
type AuditEntryResponse struct {
	ID        string `json:"id"`
	JobID     string `json:"job_id,omitempty"`
	Event     string `json:"event"`
	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state,omitempty"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// OrderDetailResponse is the full order view with jobs and audit trail.
type OrderDetailResponse struct {
	Order OrderResponse        `json:"order"`
	Jobs  []JobResponse        `json:"jobs"`
	Audit []AuditEntryResponse `json:"audit"`
}

// OrderListResponse wraps a paginated order list.
type OrderListResponse struct {
	Items      []OrderResponse `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// StatsResponse is the response for dashboard statistics.
type StatsResponse struct {
	TotalOrders    int64            `json:"total_orders"`
	ByState        map[string]int64 `json:"by_state"`
	TotalJobs      int64            `json:"total_jobs"`
	CompletedJobs  int64            `json:"completed_jobs"`
	FailedJobs     int64            `json:"failed_jobs"`
	AwaitingReview int64            `json:"awaiting_review"`
}
