package domain

import (
	"time"

	"github.com/google/uuid"
)

// Artifact is one generated content piece, written once by the generation
// stage and read by the publish stage. Regeneration on retry writes a new
// artifact rather than overwriting.
type Artifact struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
