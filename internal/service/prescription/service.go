package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rxlens/rxlens-api/internal/email"
	"github.com/rxlens/rxlens-api/internal/extractor"
	"github.com/rxlens/rxlens-api/internal/merge"
	"github.com/rxlens/rxlens-api/internal/model"
	"github.com/rxlens/rxlens-api/internal/repository"
	"github.com/rxlens/rxlens-api/internal/session"
	apperrors "github.com/rxlens/rxlens-api/pkg/errors"
	"github.com/rxlens/rxlens-api/pkg/messaging"
	"github.com/rxlens/rxlens-api/pkg/metrics"
)

// Service orchestrates the accumulation flow: extract a candidate
// record from an image, merge it into the session's accumulated
// record, persist the result, and announce the update. The merge
// itself is pure; everything stateful lives here.
type Service struct {
	sessions  *session.Store
	extractor extractor.Extractor
	records   repository.RecordRepository
	jobs      repository.JobRepository
	broker    messaging.Broker
	emailer   email.Service
	metrics   *metrics.Metrics
	source    string
}

func NewService(
	sessions *session.Store,
	ext extractor.Extractor,
	records repository.RecordRepository,
	jobs repository.JobRepository,
	broker messaging.Broker,
	emailer email.Service,
	m *metrics.Metrics,
	source string,
) *Service {
	return &Service{
		sessions:  sessions,
		extractor: ext,
		records:   records,
		jobs:      jobs,
		broker:    broker,
		emailer:   emailer,
		metrics:   m,
		source:    source,
	}
}

// CreateSession starts a new accumulation session with the canonical
// empty record and persists it.
func (s *Service) CreateSession(ctx context.Context) (*model.Session, error) {
	sess := s.sessions.New()
	if err := s.records.Save(ctx, sess.ID, sess.Record); err != nil {
		s.sessions.Delete(sess.ID)
		return nil, fmt.Errorf("failed to persist new session: %w", err)
	}

	log.Info().Str("session_id", sess.ID.String()).Msg("session created")
	return sess, nil
}

// GetSession returns the live session, rehydrating it from the durable
// store when the cache has evicted it (or when another process, such
// as the worker, owns a session created through the API). The cache is
// kept honest by WatchRecordUpdates; the merge path never trusts it.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	sess, err := s.sessions.Get(id)
	if err == nil {
		return sess, nil
	}

	record, err := s.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("session", err)
		}
		return nil, fmt.Errorf("failed to load session record: %w", err)
	}

	sess = &model.Session{ID: id, Record: record}
	s.sessions.Put(sess)
	return sess, nil
}

// ProcessImage runs one synchronous extract-and-merge step and returns
// the new accumulated record.
func (s *Service) ProcessImage(ctx context.Context, sessionID uuid.UUID, img extractor.Image) (model.PrescriptionRecord, error) {
	if err := img.Validate(); err != nil {
		return model.PrescriptionRecord{}, apperrors.BadRequest(err.Error(), err)
	}

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return model.PrescriptionRecord{}, err
	}

	contextRecord := sess.Record.Clone()

	start := time.Now()
	candidate, err := s.extractor.Extract(ctx, img, &contextRecord)
	s.metrics.ExtractionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ExtractionsTotal.WithLabelValues("error").Inc()
		return model.PrescriptionRecord{}, apperrors.Unavailable("extraction failed", err)
	}
	s.metrics.ExtractionsTotal.WithLabelValues("ok").Inc()
	if !candidate.HasData() {
		s.metrics.FallbackRecords.Inc()
	}

	return s.ApplyExtraction(ctx, sessionID, candidate)
}

// ApplyExtraction merges a candidate record into the session's
// accumulated record, persists the result, refreshes the cache, and
// publishes the update. The candidate is normalized first so malformed
// extraction output never reaches the merge engine.
//
// The read side of the read-modify-write always goes to the durable
// store: the API and the worker are separate processes sharing one
// record, so merging into a cached copy could overwrite the other
// process's merge.
func (s *Service) ApplyExtraction(ctx context.Context, sessionID uuid.UUID, candidate model.PrescriptionRecord) (model.PrescriptionRecord, error) {
	current, err := s.records.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PrescriptionRecord{}, apperrors.NotFound("session", err)
		}
		return model.PrescriptionRecord{}, fmt.Errorf("failed to load session record: %w", err)
	}

	candidate.Normalize()
	merged := merge.MergeRecords(candidate, current)

	if err := s.records.Save(ctx, sessionID, merged); err != nil {
		return model.PrescriptionRecord{}, fmt.Errorf("failed to persist merged record: %w", err)
	}
	s.cacheRecord(sessionID, merged)

	s.metrics.MergesTotal.Inc()
	s.metrics.MedicinesTracked.Observe(float64(len(merged.Medicines)))

	if err := s.broker.Publish(ctx, messaging.ChannelRecordUpdated, messaging.RecordUpdated{
		SessionID: sessionID.String(),
		Source:    s.source,
		Record:    merged,
	}); err != nil {
		// The merge is already durable; a missed notification is not
		// worth failing the request over.
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to publish record update")
	}

	return merged, nil
}

// cacheRecord refreshes the cached session with the freshly persisted
// record, preserving session timestamps when the entry is still live.
func (s *Service) cacheRecord(id uuid.UUID, record model.PrescriptionRecord) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		sess = &model.Session{ID: id, Record: record}
	} else {
		sess.Record = record
	}
	s.sessions.Put(sess)
}

// WatchRecordUpdates follows the record.updated channel and evicts
// cached sessions merged by another process, so the next read here
// rehydrates from the durable store instead of serving a pre-merge
// record. Returns when the subscription channel closes.
func (s *Service) WatchRecordUpdates(ctx context.Context) error {
	msgs, err := s.broker.Subscribe(ctx, messaging.ChannelRecordUpdated)
	if err != nil {
		return fmt.Errorf("failed to subscribe to record updates: %w", err)
	}

	for msg := range msgs {
		var event messaging.RecordUpdated
		if err := json.Unmarshal(msg, &event); err != nil {
			log.Warn().Err(err).Msg("failed to decode record update")
			continue
		}
		if event.Source == s.source {
			continue
		}
		id, err := uuid.Parse(event.SessionID)
		if err != nil {
			continue
		}
		s.sessions.Delete(id)
		log.Debug().Str("session_id", event.SessionID).Str("source", event.Source).Msg("evicted cached session after remote merge")
	}
	return nil
}

// EnqueueImage queues an extraction job for the worker instead of
// extracting inline.
func (s *Service) EnqueueImage(ctx context.Context, sessionID uuid.UUID, img extractor.Image) (*model.ExtractionJob, error) {
	if err := img.Validate(); err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	job := &model.ExtractionJob{
		SessionID: sessionID,
		ImageData: img.Data,
		ImageURL:  img.URL,
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue extraction job: %w", err)
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("job_id", job.ID.String()).
		Msg("extraction job queued")
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, sessionID, jobID uuid.UUID) (*model.ExtractionJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("job", err)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job.SessionID != sessionID {
		return nil, apperrors.NotFound("job", nil)
	}
	return job, nil
}

// ResetSession swaps the accumulated record back to the all-sentinel
// default, in memory and in the durable store.
func (s *Service) ResetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	if _, err := s.GetSession(ctx, id); err != nil {
		return nil, err
	}

	sess, err := s.sessions.Reset(id)
	if err != nil {
		return nil, apperrors.NotFound("session", err)
	}
	if err := s.records.Save(ctx, id, sess.Record); err != nil {
		return nil, fmt.Errorf("failed to persist reset record: %w", err)
	}
	return sess, nil
}

func (s *Service) DeleteSession(ctx context.Context, id uuid.UUID) error {
	s.sessions.Delete(id)
	if err := s.records.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	log.Info().Str("session_id", id.String()).Msg("session deleted")
	return nil
}

// ShareRecord emails the consolidated record to a recipient.
func (s *Service) ShareRecord(ctx context.Context, id uuid.UUID, to string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := s.emailer.SendRecordSummary(ctx, to, sess.Record); err != nil {
		return apperrors.Unavailable("failed to send record summary", err)
	}
	s.metrics.RecordsShared.Inc()
	return nil
}
