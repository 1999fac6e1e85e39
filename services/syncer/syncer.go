// Package syncer copies source records into the search index.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/db/kvdb"
	"github.com/meghashyamc/searchsync/db/sourcedb"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/metrics"
	"github.com/meghashyamc/searchsync/models"
	"github.com/meghashyamc/searchsync/resilience"
)

const (
	lastSyncKey = "last_sync_time"

	DefaultBatchSize = 50
	MaxBatchSize     = 500
	DefaultDays      = 7
	MaxDays          = 365

	maxSyncTime = 2 * time.Hour
)

// SourceStore is the part of the source database a sync reads from.
type SourceStore interface {
	CountRecords(ctx context.Context, filter sourcedb.Filter) (int, error)
	IterateAll(batchSize int, publishedOnly bool) sourcedb.RecordIterator
	IterateModifiedSince(since time.Time, batchSize int, publishedOnly bool) sourcedb.RecordIterator
	CheckConnection(ctx context.Context) bool
}

// IndexStore is the part of the search database a sync writes to.
type IndexStore interface {
	Upsert(ctx context.Context, doc *models.SearchDocument) error
	DeleteAll(ctx context.Context) (int, error)
	Count(ctx context.Context) (uint64, error)
	CheckConnection(ctx context.Context) bool
}

type Mapper interface {
	Map(record models.SourceRecord) (*models.SearchDocument, error)
}

// Invalidator drops cached query results once the index has changed.
type Invalidator interface {
	InvalidateResults(ctx context.Context)
}

type Options struct {
	Mode          models.SyncMode
	BatchSize     int
	Days          int
	ForceAll      bool
	ClearExisting bool
	DryRun        bool
}

type Config struct {
	Retry           resilience.RetryConfig
	StalenessWindow time.Duration
	LastSyncExpiry  time.Duration
	// Invalidator is optional.
	Invalidator Invalidator
}

// ErrWorkerStopped is returned by Start once the background worker has exited.
var ErrWorkerStopped = errors.New("sync worker has stopped")

type Service struct {
	logger  logger.Logger
	source  SourceStore
	index   IndexStore
	mapper  Mapper
	kvDB    kvdb.DB
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time

	// running is held for the whole of a run, foreground or background.
	running sync.Mutex
	runC    chan runRequest

	// stopMu orders hand-offs to the worker against its exit.
	stopMu  sync.Mutex
	stopped bool
}

type runRequest struct {
	opts Options
	run  *models.SyncRun
}

// New returns a Service whose background worker stops when ctx is done.
func New(ctx context.Context, logger logger.Logger, source SourceStore, index IndexStore, mapper Mapper, kvDB kvdb.DB, m *metrics.Metrics, cfg Config) *Service {
	s := &Service{
		logger:  logger,
		source:  source,
		index:   index,
		mapper:  mapper,
		kvDB:    kvDB,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		runC:    make(chan runRequest, 1),
	}

	go s.work(ctx)
	return s
}

// Normalize fills defaults and rejects invalid combinations without touching any store.
func (o Options) Normalize() (Options, error) {
	if o.Mode == "" {
		o.Mode = models.SyncModeFull
	}
	if o.Mode != models.SyncModeFull && o.Mode != models.SyncModeIncremental {
		return o, apperrors.Newf(apperrors.ErrValidation, "syncer.Options", "unknown sync mode %q", o.Mode)
	}
	if o.Mode == models.SyncModeIncremental && o.ForceAll {
		return o, apperrors.New(apperrors.ErrValidation, "syncer.Options", "incremental and force_all cannot be used together")
	}

	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchSize < 1 || o.BatchSize > MaxBatchSize {
		return o, apperrors.Newf(apperrors.ErrValidation, "syncer.Options", "batch size must be between 1 and %d", MaxBatchSize)
	}

	if o.Mode == models.SyncModeIncremental {
		if o.Days == 0 {
			o.Days = DefaultDays
		}
		if o.Days < 1 || o.Days > MaxDays {
			return o, apperrors.Newf(apperrors.ErrValidation, "syncer.Options", "days must be between 1 and %d", MaxDays)
		}
	}

	return o, nil
}

// Run synchronizes in the calling goroutine. A non-nil error comes with a failed or partial run.
func (s *Service) Run(ctx context.Context, opts Options) (*models.SyncRun, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	if !s.running.TryLock() {
		return nil, s.conflict()
	}
	defer s.running.Unlock()

	run := s.newRun(opts)
	err = s.execute(ctx, opts, run)
	return run, err
}

// Start hands the run to the background worker and returns its id.
func (s *Service) Start(opts Options) (string, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return "", err
	}

	if !s.running.TryLock() {
		return "", s.conflict()
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopped {
		s.running.Unlock()
		return "", ErrWorkerStopped
	}

	run := s.newRun(opts)
	s.saveRun(run)

	select {
	// This leads to s.execute being called by the worker
	case s.runC <- runRequest{opts: opts, run: run}:
		return run.RunID, nil
	default:
		s.running.Unlock()
		return "", s.conflict()
	}
}

func (s *Service) GetRun(runID string) (*models.SyncRun, error) {
	value, err := s.kvDB.Get(kvdb.SyncRunsBucket, runID)
	if err != nil {
		if errors.Is(err, kvdb.ErrNotFound) || errors.Is(err, kvdb.ErrInvalidKey) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "syncer.GetRun", "sync run %s not found", runID)
		}
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "syncer.GetRun", err)
	}

	var run models.SyncRun
	if err := json.Unmarshal([]byte(value), &run); err != nil {
		return nil, fmt.Errorf("invalid sync run %s: %w", runID, err)
	}

	return &run, nil
}

func (s *Service) Status(ctx context.Context) (*models.SyncStatus, error) {
	status := &models.SyncStatus{
		SourceConnected: s.source.CheckConnection(ctx),
		IndexConnected:  s.index.CheckConnection(ctx),
	}

	if status.SourceConnected {
		count, err := s.source.CountRecords(ctx, sourcedb.Filter{PublishedOnly: true})
		if err != nil {
			s.logger.Warn("failed to count source records", "err", err.Error())
		}
		status.TotalSourceRecords = count
	}

	if status.IndexConnected {
		count, err := s.index.Count(ctx)
		if err != nil {
			s.logger.Warn("failed to count indexed documents", "err", err.Error())
		}
		status.TotalIndexedDocuments = count
	}

	status.LastSyncTime = s.lastSyncTime()
	status.SyncNeeded = uint64(status.TotalSourceRecords) != status.TotalIndexedDocuments ||
		status.LastSyncTime == nil ||
		s.now().Sub(*status.LastSyncTime) > s.cfg.StalenessWindow

	return status, nil
}

func (s *Service) work(ctx context.Context) {
	for {
		select {
		case req := <-s.runC:
			s.runInBackground(ctx, req)
		case <-ctx.Done():
			s.logger.Info("sync worker stopped", "reason", ctx.Err())
			s.stop()
			return
		}
	}
}

// stop marks the worker as gone and fails a run that was handed over but never picked up.
func (s *Service) stop() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.stopped = true
	select {
	case req := <-s.runC:
		s.finish(req.run, ErrWorkerStopped)
		s.running.Unlock()
	default:
	}
}

func (s *Service) runInBackground(ctx context.Context, req runRequest) {
	defer s.running.Unlock()

	syncCtx, cancel := context.WithTimeout(ctx, maxSyncTime)
	defer cancel()

	if err := s.execute(syncCtx, req.opts, req.run); err != nil {
		s.logger.Error("background sync failed", "run_id", req.run.RunID, "err", err.Error())
	}
}

func (s *Service) newRun(opts Options) *models.SyncRun {
	return &models.SyncRun{
		RunID:     uuid.NewString(),
		Mode:      opts.Mode,
		BatchSize: opts.BatchSize,
		DryRun:    opts.DryRun,
		Status:    models.SyncStateRunning,
		StartedAt: s.now().UTC(),
	}
}

func (s *Service) conflict() error {
	s.logger.Warn("request to sync while a sync is already in progress")
	return apperrors.New(apperrors.ErrConflict, "syncer", "sync already in progress")
}

func (s *Service) execute(ctx context.Context, opts Options, run *models.SyncRun) error {
	s.logger.Info("starting sync", "run_id", run.RunID, "mode", opts.Mode, "batch_size", opts.BatchSize, "dry_run", opts.DryRun, "force_all", opts.ForceAll)

	err := s.syncRecords(ctx, opts, run)
	s.finish(run, err)

	if !opts.DryRun && (run.Synced > 0 || opts.ClearExisting) {
		s.invalidateResults(ctx)
	}

	if err == nil && run.Synced > 0 && !opts.DryRun {
		s.setLastSyncTime(run.FinishedAt)
	}

	return err
}

func (s *Service) syncRecords(ctx context.Context, opts Options, run *models.SyncRun) error {
	if !s.source.CheckConnection(ctx) {
		return apperrors.New(apperrors.ErrStoreUnavailable, "syncer", "source store is unreachable")
	}
	if !s.index.CheckConnection(ctx) {
		return apperrors.New(apperrors.ErrEngineUnavailable, "syncer", "search index is unreachable")
	}

	if opts.ClearExisting && !opts.DryRun {
		deleted, err := s.index.DeleteAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		s.logger.Info("cleared existing documents", "run_id", run.RunID, "deleted", deleted)
		s.invalidateResults(ctx)
	}

	iterator := s.iterator(opts)
	for {
		var batch []models.SourceRecord
		err := resilience.Retry(ctx, s.cfg.Retry, s.logger, "sync.fetch", func(ctx context.Context) error {
			var err error
			batch, err = iterator.Next(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to read source records after %d processed: %w", run.Processed, err)
		}
		if len(batch) == 0 {
			return nil
		}

		for _, record := range batch {
			s.syncRecord(ctx, opts, run, record)
		}
		s.saveRun(run)

		s.logger.Info("processed batch", "run_id", run.RunID, "processed", run.Processed, "synced", run.Synced, "skipped", run.Skipped, "errors", run.Errors)
	}
}

func (s *Service) invalidateResults(ctx context.Context) {
	if s.cfg.Invalidator != nil {
		s.cfg.Invalidator.InvalidateResults(context.WithoutCancel(ctx))
	}
}

func (s *Service) iterator(opts Options) sourcedb.RecordIterator {
	publishedOnly := !opts.ForceAll
	if opts.Mode == models.SyncModeIncremental {
		since := s.now().UTC().Add(-time.Duration(opts.Days) * 24 * time.Hour)
		return s.source.IterateModifiedSince(since, opts.BatchSize, publishedOnly)
	}
	return s.source.IterateAll(opts.BatchSize, publishedOnly)
}

// syncRecord never fails the run; each outcome only moves a counter.
func (s *Service) syncRecord(ctx context.Context, opts Options, run *models.SyncRun, record models.SourceRecord) {
	run.Processed++

	doc, err := s.mapper.Map(record)
	if err != nil {
		run.Skipped++
		s.metrics.SyncRecordsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		s.logger.Warn("skipping record", "run_id", run.RunID, "id", record.ID, "err", err.Error())
		return
	}

	if opts.DryRun {
		run.Synced++
		s.metrics.SyncRecordsTotal.WithLabelValues(metrics.OutcomeSynced).Inc()
		s.logger.Debug("dry run: would index record", "run_id", run.RunID, "id", doc.ID)
		return
	}

	err = resilience.Retry(ctx, s.cfg.Retry, s.logger, "sync.upsert", func(ctx context.Context) error {
		return s.index.Upsert(ctx, doc)
	})
	if err != nil {
		run.Errors++
		s.metrics.SyncRecordsTotal.WithLabelValues(metrics.OutcomeErrored).Inc()
		s.logger.Error("failed to index record", "run_id", run.RunID, "id", doc.ID, "err", err.Error())
		return
	}

	run.Synced++
	s.metrics.SyncRecordsTotal.WithLabelValues(metrics.OutcomeSynced).Inc()
}

func (s *Service) finish(run *models.SyncRun, err error) {
	finishedAt := s.now().UTC()
	run.FinishedAt = finishedAt
	run.ExecutionTime = roundTo2(finishedAt.Sub(run.StartedAt).Seconds())
	run.SuccessRate = successRate(run.Synced, run.Processed)
	run.Status = deriveStatus(run, err)
	run.Message = message(run, err)

	s.metrics.SyncRunsTotal.WithLabelValues(string(run.Mode), string(run.Status)).Inc()
	s.metrics.SyncDuration.Observe(finishedAt.Sub(run.StartedAt).Seconds())
	if !run.DryRun {
		if count, countErr := s.index.Count(context.Background()); countErr == nil {
			s.metrics.IndexedDocuments.Set(float64(count))
		}
	}

	s.saveRun(run)
	if err == nil && run.Status == models.SyncStatePartial {
		s.logger.Warn("sync finished with record errors", "run_id", run.RunID, "err", apperrors.New(apperrors.ErrPartialFailure, "syncer.Run", run.Message).Error())
	}
	s.logger.Info("sync finished", "run_id", run.RunID, "status", run.Status, "processed", run.Processed, "synced", run.Synced, "skipped", run.Skipped, "errors", run.Errors, "execution_time", run.ExecutionTime)
}

func deriveStatus(run *models.SyncRun, err error) models.SyncState {
	switch {
	case err != nil && run.Synced > 0:
		return models.SyncStatePartial
	case err != nil:
		return models.SyncStateFailed
	case run.Errors == 0:
		return models.SyncStateCompleted
	case run.Synced > 0:
		return models.SyncStatePartial
	default:
		return models.SyncStateFailed
	}
}

func message(run *models.SyncRun, err error) string {
	if err != nil {
		return fmt.Sprintf("sync aborted: %s", err.Error())
	}

	switch run.Status {
	case models.SyncStateCompleted:
		return fmt.Sprintf("synced %d of %d records (%d skipped)", run.Synced, run.Processed, run.Skipped)
	case models.SyncStatePartial:
		return fmt.Sprintf("synced %d of %d records with %d errors", run.Synced, run.Processed, run.Errors)
	default:
		return fmt.Sprintf("no records synced: %d errors", run.Errors)
	}
}

func successRate(synced int, processed int) float64 {
	if processed == 0 {
		return 0
	}
	return roundTo2(float64(synced) / float64(processed) * 100)
}

func roundTo2(value float64) float64 {
	return math.Round(value*100) / 100
}

func (s *Service) saveRun(run *models.SyncRun) {
	data, err := json.Marshal(run)
	if err != nil {
		s.logger.Error("failed to encode sync run", "run_id", run.RunID, "err", err.Error())
		return
	}

	if err := s.kvDB.SetWithTTL(kvdb.SyncRunsBucket, run.RunID, string(data), s.cfg.LastSyncExpiry); err != nil {
		s.logger.Error("failed to save sync run", "run_id", run.RunID, "err", err.Error())
	}
}

func (s *Service) setLastSyncTime(at time.Time) {
	if err := s.kvDB.SetWithTTL(kvdb.SyncBucket, lastSyncKey, at.UTC().Format(time.RFC3339Nano), s.cfg.LastSyncExpiry); err != nil {
		s.logger.Error("failed to save last sync time", "err", err.Error())
	}
}

func (s *Service) lastSyncTime() *time.Time {
	value, err := s.kvDB.Get(kvdb.SyncBucket, lastSyncKey)
	if err != nil {
		if !errors.Is(err, kvdb.ErrNotFound) {
			s.logger.Warn("failed to read last sync time", "err", err.Error())
		}
		return nil
	}

	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		s.logger.Warn("invalid last sync time", "value", value, "err", err.Error())
		return nil
	}

	return &at
}
