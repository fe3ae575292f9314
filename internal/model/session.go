package model

import (
	"time"

	"github.com/google/uuid"
)

// Session is one accumulation session: a caller-owned current record
// that each processed image merges into.
type Session struct {
	ID        uuid.UUID          `json:"id"`
	Record    PrescriptionRecord `json:"record"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Extraction job lifecycle states.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusProcessed  = "processed"
	JobStatusRetry      = "retry"
	JobStatusFailed     = "failed"
)

// ExtractionJob is a queued request to extract one image and merge the
// result into a session's record. Jobs for one session are processed
// in submission order; the merge result depends on that order.
type ExtractionJob struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	SessionID uuid.UUID  `json:"session_id" db:"session_id"`
	ImageData []byte     `json:"-" db:"image_data"`
	ImageURL  string     `json:"image_url,omitempty" db:"image_url"`
	Status    string     `json:"status" db:"status"`
	Attempts  int        `json:"attempts" db:"attempts"`
	LastError *string    `json:"last_error,omitempty" db:"last_error"`
	RetryAt   *time.Time `json:"retry_at,omitempty" db:"retry_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}
