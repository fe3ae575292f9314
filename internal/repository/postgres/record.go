package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rxlens/rxlens-api/internal/model"
	"github.com/rxlens/rxlens-api/internal/repository"
)

// RecordRepository persists the accumulated record per session as a
// jsonb document. Fields absent from a stored document default to the
// sentinel on load.
type RecordRepository struct {
	db *sqlx.DB
}

func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Save(ctx context.Context, sessionID uuid.UUID, record model.PrescriptionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		INSERT INTO prescription_records (session_id, record, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (session_id)
		DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, sessionID, payload); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (r *RecordRepository) Get(ctx context.Context, sessionID uuid.UUID) (model.PrescriptionRecord, error) {
	var payload []byte
	query := `SELECT record FROM prescription_records WHERE session_id = $1`
	if err := r.db.GetContext(ctx, &payload, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PrescriptionRecord{}, repository.ErrNotFound
		}
		return model.PrescriptionRecord{}, fmt.Errorf("failed to get record: %w", err)
	}

	record, err := model.DecodePrescriptionRecord(payload)
	if err != nil {
		return model.PrescriptionRecord{}, fmt.Errorf("failed to decode stored record: %w", err)
	}
	return record, nil
}

func (r *RecordRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	query := `DELETE FROM prescription_records WHERE session_id = $1`
	if _, err := r.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}
