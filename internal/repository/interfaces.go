package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rxlens/rxlens-api/internal/model"
)

var ErrNotFound = errors.New("not found")

// RecordRepository is the durable store for accumulated prescription
// records, one per session.
type RecordRepository interface {
	Save(ctx context.Context, sessionID uuid.UUID, record model.PrescriptionRecord) error
	Get(ctx context.Context, sessionID uuid.UUID) (model.PrescriptionRecord, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// JobRepository queues extraction jobs for asynchronous processing.
type JobRepository interface {
	Enqueue(ctx context.Context, job *model.ExtractionJob) error
	Get(ctx context.Context, id uuid.UUID) (*model.ExtractionJob, error)
	ClaimPending(ctx context.Context, limit int) ([]*model.ExtractionJob, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, delay time.Duration) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	CountPending(ctx context.Context) (int, error)
}
