// Package processor runs batches of source records through the resolution
// engine with a bounded worker pool. A Redis lease guarantees a single
// active batch run per source.
package processor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/sellerdesk/peony/pkg/database"
	"github.com/sellerdesk/peony/pkg/metrics"
	"github.com/sellerdesk/peony/pkg/models"
	"github.com/sellerdesk/peony/pkg/normalizer"
	"github.com/sellerdesk/peony/pkg/redis"
	"github.com/sellerdesk/peony/pkg/tracing"
)

// Resolver resolves one source record. Satisfied by matching.Engine.
type Resolver interface {
	Resolve(ctx context.Context, record models.SourceRecord) (*models.Resolution, error)
}

// HistoryStore records the audit row for records rejected before resolution.
type HistoryStore interface {
	Create(ctx context.Context, history *models.MatchingHistory) (*models.MatchingHistory, error)
}

// Config configures the batch processor.
type Config struct {
	// WorkerCount is the number of parallel resolution workers.
	WorkerCount int

	// LockTTL is the lease duration for one batch run. A run that outlives
	// its lease loses exclusivity, so it should comfortably exceed the
	// expected batch duration.
	LockTTL time.Duration

	// LockWait bounds how long a run waits for a concurrent run to finish
	// before giving up.
	LockWait time.Duration

	// ResolveTimeout bounds the resolution of a single record. Zero disables
	// the per-record deadline.
	ResolveTimeout time.Duration
}

// DefaultConfig returns batch processing defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount:    4,
		LockTTL:        5 * time.Minute,
		LockWait:       2 * time.Second,
		ResolveTimeout: 30 * time.Second,
	}
}

// BatchProcessor fans a batch of records out over a worker pool. Each record
// resolves in its own transaction, so a failed record never poisons the rest
// of the batch.
type BatchProcessor struct {
	logger   ectologger.Logger
	resolver Resolver
	history  HistoryStore
	locker   *redis.Locker
	config   Config
}

// NewBatchProcessor creates a batch processor. locker may be nil, which
// disables the single-run-per-source lease.
func NewBatchProcessor(logger ectologger.Logger, resolver Resolver, history HistoryStore, locker *redis.Locker, config Config) *BatchProcessor {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	return &BatchProcessor{
		logger:   logger,
		resolver: resolver,
		history:  history,
		locker:   locker,
		config:   config,
	}
}

// ProcessBatch resolves every record in the batch and returns a summary
// report. Records that fail validation are skipped with a rejected history
// row; records whose resolution errors are counted as failed and stay
// eligible for the next run.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, source string, records []models.SourceRecord) (*models.BatchReport, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.BatchProcessor.ProcessBatch")
	defer span.End()

	start := time.Now()

	if p.locker != nil {
		lock, err := p.locker.TryAcquire(ctx, "batch:"+source, p.config.LockTTL, p.config.LockWait)
		if err != nil {
			if err == redis.ErrLockNotAcquired {
				return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("a batch run for source %s is already in progress", source))
			}
			return nil, err
		}
		defer func() {
			if releaseErr := lock.Release(ctx); releaseErr != nil {
				p.logger.WithContext(ctx).WithError(releaseErr).Warn("Failed to release batch lease")
			}
		}()

		// keep the lease alive for batches that outlive the TTL
		refreshCtx, stopRefresh := context.WithCancel(ctx)
		defer stopRefresh()
		go p.refreshLease(refreshCtx, lock)
	}

	report := &models.BatchReport{Total: len(records)}
	jobs := make(chan models.SourceRecord)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range jobs {
				outcome := p.processRecord(ctx, record)
				metrics.BatchRecordsTotal.WithLabelValues(outcome).Inc()
				mu.Lock()
				switch outcome {
				case models.DecisionAutoMatched:
					report.AutoMatched++
				case models.DecisionManualPending:
					report.ManualPending++
				case models.DecisionNewMaster:
					report.NewMasters++
				case outcomeAlreadyResolved:
					report.AlreadyResolved++
				case outcomeSkipped:
					report.Skipped++
				case outcomeFailed:
					report.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, record := range records {
		select {
		case jobs <- record:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	report.Finish(start)
	metrics.BatchDuration.Observe(report.Duration.Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"source":           source,
		"total":            report.Total,
		"auto_matched":     report.AutoMatched,
		"manual_pending":   report.ManualPending,
		"new_masters":      report.NewMasters,
		"already_resolved": report.AlreadyResolved,
		"skipped":          report.Skipped,
		"failed":           report.Failed,
		"status":           report.Status,
	}).Info("Batch run finished")

	return report, nil
}

const (
	outcomeAlreadyResolved = "already_resolved"
	outcomeSkipped         = "skipped"
	outcomeFailed          = "failed"
)

// refreshLease extends the batch lease periodically until the run finishes.
// Losing the lease stops the refresher; the run itself continues, since its
// per-record writes are idempotent either way.
func (p *BatchProcessor) refreshLease(ctx context.Context, lock *redis.Lock) {
	ticker := time.NewTicker(refreshInterval(p.config.LockTTL))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Extend(ctx, p.config.LockTTL); err != nil {
				p.logger.WithContext(ctx).WithError(err).Warn("Failed to extend batch lease")
				return
			}
		}
	}
}

// refreshInterval extends at a third of the TTL so two refreshes can fail
// before the lease actually expires.
func refreshInterval(ttl time.Duration) time.Duration {
	interval := ttl / 3
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func (p *BatchProcessor) processRecord(ctx context.Context, record models.SourceRecord) string {
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"source":       record.Source,
		"external_sku": record.ExternalSKU,
	})

	if err := record.Validate(); err != nil {
		p.recordSkip(ctx, record, err)
		log.WithError(err).Warn("Skipping invalid source record")
		return outcomeSkipped
	}

	if p.config.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.ResolveTimeout)
		defer cancel()
	}

	resolution, err := p.resolver.Resolve(ctx, record)
	if err != nil {
		log.WithError(err).Error("Failed to resolve source record")
		return outcomeFailed
	}

	if resolution.AlreadyResolved {
		return outcomeAlreadyResolved
	}
	return resolution.Decision
}

// recordSkip writes the rejected audit row for a record that never reached
// the engine. Best effort: a failed write only logs.
func (p *BatchProcessor) recordSkip(ctx context.Context, record models.SourceRecord, cause error) {
	norm := normalizer.Record(record.Name, record.Brand, record.Category)
	reason := fmt.Sprintf("validation failed: %v", cause)

	if _, err := p.history.Create(ctx, &models.MatchingHistory{
		Source:        record.Source,
		ExternalSKU:   record.ExternalSKU,
		InputName:     norm.Name,
		InputBrand:    norm.Brand,
		InputCategory: norm.Category,
		Candidates:    database.JSONB[[]models.CandidateScore]{Data: []models.CandidateScore{}},
		Decision:      models.DecisionRejected,
		Reason:        &reason,
	}); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to record skipped source record")
	}
}
