package worker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rxlens/rxlens-api/internal/extractor"
	"github.com/rxlens/rxlens-api/internal/model"
	"github.com/rxlens/rxlens-api/internal/repository"
	"github.com/rxlens/rxlens-api/internal/service/prescription"
	"github.com/rxlens/rxlens-api/pkg/logger"
	"github.com/rxlens/rxlens-api/pkg/messaging"
	"github.com/rxlens/rxlens-api/pkg/metrics"
)

type ExtractionProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

// ExtractionProcessor drains the extraction job queue: each claimed
// job runs one extract-and-merge step against its session. Jobs are
// claimed in submission order and processed sequentially, so two
// images submitted to one session merge in the order they arrived.
type ExtractionProcessor struct {
	service *prescription.Service
	jobs    repository.JobRepository
	broker  messaging.Broker
	config  ExtractionProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewExtractionProcessor(
	service *prescription.Service,
	jobs repository.JobRepository,
	broker messaging.Broker,
	config ExtractionProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *ExtractionProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		panic("MaxRetries must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &ExtractionProcessor{
		service: service,
		jobs:    jobs,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *ExtractionProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting extraction processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down extraction processor")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process extraction batch")
			}
		}
	}
}

func (p *ExtractionProcessor) processBatch(ctx context.Context) error {
	if pending, err := p.jobs.CountPending(ctx); err == nil {
		p.metrics.JobQueueSize.Set(float64(pending))
	}

	jobs, err := p.jobs.ClaimPending(ctx, p.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}

	// The claim does not guarantee row order; restore submission order
	// so two images of one session merge in the order they arrived.
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.processJob(ctx, job)
	}

	return nil
}

func (p *ExtractionProcessor) processJob(ctx context.Context, job *model.ExtractionJob) {
	img := extractor.Image{Data: job.ImageData, URL: job.ImageURL}

	_, err := p.service.ProcessImage(ctx, job.SessionID, img)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	if err := p.jobs.MarkProcessed(ctx, job.ID); err != nil {
		p.logger.Error(err, "Failed to mark job processed")
		return
	}

	p.metrics.JobsProcessed.Inc()
	p.metrics.JobLatency.Observe(time.Since(job.CreatedAt).Seconds())
	p.logger.ZL.Info().
		Str("job_id", job.ID.String()).
		Str("session_id", job.SessionID.String()).
		Msg("extraction job processed")
}

func (p *ExtractionProcessor) handleFailure(ctx context.Context, job *model.ExtractionJob, jobErr error) {
	p.logger.ZL.Warn().
		Err(jobErr).
		Str("job_id", job.ID.String()).
		Int("attempts", job.Attempts).
		Msg("extraction job failed")

	// Attempts counts completed tries before this one.
	if job.Attempts+1 >= p.config.MaxRetries {
		if err := p.jobs.MarkFailed(ctx, job.ID, jobErr.Error()); err != nil {
			p.logger.Error(err, "Failed to mark job failed")
			return
		}
		p.metrics.JobsFailed.Inc()

		if err := p.broker.Publish(ctx, messaging.ChannelJobFailed, map[string]interface{}{
			"job_id":     job.ID.String(),
			"session_id": job.SessionID.String(),
			"error":      jobErr.Error(),
		}); err != nil {
			p.logger.Error(err, "Failed to publish job failure")
		}
		return
	}

	if err := p.jobs.MarkRetry(ctx, job.ID, jobErr.Error(), p.config.RetryDelay); err != nil {
		p.logger.Error(err, "Failed to mark job for retry")
		return
	}
	p.metrics.JobRetries.WithLabelValues("extraction_error").Inc()
}
