package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
	"github.com/noah-isme/attendance-offline-sync/pkg/jobs"
)

const syncSkippedMessage = "sync in progress or offline"

var errGroupsFailed = errors.New("one or more batches failed")

type syncStore interface {
	GetPendingRecords(ctx context.Context) ([]models.AttendanceRecord, error)
	MarkAsSyncedIfUnchanged(ctx context.Context, records []models.AttendanceRecord) (int, error)
	RecordFailedAttempt(ctx context.Context, ids []string) (int, error)
	GetSyncStatus(ctx context.Context, isOnline bool) (models.SyncStatus, error)
}

type batchSubmitter interface {
	SubmitBatch(ctx context.Context, batch models.AttendanceBatch) (models.BatchAck, error)
}

type connectivitySignal interface {
	IsOnline() bool
}

type statusPublisher interface {
	Publish(ctx context.Context, status models.SyncStatus)
}

// SyncConfig tunes the sync dispatcher.
type SyncConfig struct {
	Interval      time.Duration
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	MaxRetries    int
}

// SyncService uploads pending records to the remote endpoint one course/date batch at a time.
// At most one sync runs per instance; triggers are serialised through a single-worker queue.
type SyncService struct {
	store        syncStore
	remote       batchSubmitter
	connectivity connectivitySignal
	publisher    statusPublisher
	metrics      *MetricsService
	cfg          SyncConfig
	logger       *zap.Logger
	now          func() time.Time

	syncing atomic.Bool
	queue   *jobs.Queue
}

// NewSyncService wires the service. publisher and metrics may be nil.
func NewSyncService(store syncStore, remote batchSubmitter, connectivity connectivitySignal, publisher statusPublisher, metrics *MetricsService, cfg SyncConfig, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	svc := &SyncService{
		store:        store,
		remote:       remote,
		connectivity: connectivity,
		publisher:    publisher,
		metrics:      metrics,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
	svc.queue = jobs.NewQueue("sync-triggers", svc.handleTrigger, jobs.QueueConfig{
		Workers:       1,
		BufferSize:    1,
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.RetryDelay,
		MaxRetryDelay: cfg.MaxRetryDelay,
		Logger:        logger,
	})
	return svc
}

// IsSyncing reports whether a sync cycle is in flight.
func (s *SyncService) IsSyncing() bool {
	return s.syncing.Load()
}

// SyncPendingRecords runs one sync cycle.
//
// The overall result is successful when pending records could be read, even if some
// batches failed; those stay pending and are reported in Groups.
func (s *SyncService) SyncPendingRecords(ctx context.Context) models.SyncResult {
	result, _ := s.sync(ctx)
	return result
}

func (s *SyncService) sync(ctx context.Context) (models.SyncResult, error) {
	if !s.connectivity.IsOnline() || !s.syncing.CompareAndSwap(false, true) {
		return models.SyncResult{Success: false, Message: syncSkippedMessage}, nil
	}
	defer s.syncing.Store(false)

	result := models.SyncResult{CycleID: uuid.NewString(), Started: s.now().UTC()}
	logger := s.logger.With(zap.String("cycle_id", result.CycleID))

	start := time.Now()
	pending, err := s.store.GetPendingRecords(ctx)
	s.metrics.ObserveStoreOperation("get_pending_records", time.Since(start))
	if err != nil {
		logger.Error("load pending records", zap.Error(err))
		result.Message = err.Error()
		result.Finished = s.now().UTC()
		return result, err
	}
	if len(pending) == 0 {
		result.Success = true
		result.Finished = s.now().UTC()
		return result, nil
	}

	groups := models.GroupByBatch(pending)
	logger.Info("sync started", zap.Int("pending", len(pending)), zap.Int("batches", len(groups)))

	result.Groups = make([]models.GroupResult, 0, len(groups))
	for _, group := range groups {
		gr, err := s.syncGroup(ctx, logger, group)
		if err != nil {
			// Storage failure while marking aborts the cycle and reports synced 0. Batches
			// committed before the failure stay synced; their counts remain in Groups.
			result.Success = false
			result.Synced = 0
			result.Message = err.Error()
			if committed := syncedSoFar(result.Groups); committed > 0 {
				result.Message = fmt.Sprintf("%s (%d records in earlier batches were already marked synced, see groups)", err, committed)
			}
			result.Groups = append(result.Groups, gr)
			result.Finished = s.now().UTC()
			return result, err
		}
		result.Groups = append(result.Groups, gr)
		result.Synced += gr.Synced
	}

	result.Success = true
	result.Finished = s.now().UTC()
	if failed := result.FailedGroups(); failed > 0 {
		result.Message = fmt.Sprintf("%d of %d batches failed and remain pending", failed, len(groups))
		logger.Warn("sync finished with failures", zap.Int("synced", result.Synced), zap.Int("failed_batches", failed))
		return result, errGroupsFailed
	}
	logger.Info("sync finished", zap.Int("synced", result.Synced))
	return result, nil
}

func syncedSoFar(groups []models.GroupResult) int {
	total := 0
	for _, g := range groups {
		total += g.Synced
	}
	return total
}

func (s *SyncService) syncGroup(ctx context.Context, logger *zap.Logger, group models.RecordGroup) (models.GroupResult, error) {
	gr := models.GroupResult{CourseID: group.Key.CourseID, Date: group.Key.Date, Records: len(group.Records)}
	batchLogger := logger.With(zap.String("batch", group.Key.String()), zap.Int("records", len(group.Records)))

	ack, err := s.remote.SubmitBatch(ctx, group.Batch())
	if err != nil {
		gr.Error = err.Error()
		batchLogger.Warn("batch upload failed", zap.Error(err))
		if _, markErr := s.store.RecordFailedAttempt(ctx, group.IDs()); markErr != nil {
			batchLogger.Warn("record failed attempt", zap.Error(markErr))
		}
		return gr, nil
	}

	start := time.Now()
	marked, err := s.store.MarkAsSyncedIfUnchanged(ctx, group.Records)
	s.metrics.ObserveStoreOperation("mark_as_synced", time.Since(start))
	if err != nil {
		gr.Error = err.Error()
		return gr, err
	}
	gr.Success = true
	gr.Synced = marked
	batchLogger.Debug("batch acknowledged",
		zap.Int("created", ack.Created),
		zap.Int("updated", ack.Updated),
		zap.Int("marked", marked),
	)
	return gr, nil
}

// Status returns the current counts plus the connectivity flag.
func (s *SyncService) Status(ctx context.Context) (models.SyncStatus, error) {
	return s.store.GetSyncStatus(ctx, s.connectivity.IsOnline())
}

// PublishStatus re-reads the counts and pushes them to observers.
func (s *SyncService) PublishStatus(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	status, err := s.Status(ctx)
	if err != nil {
		s.logger.Warn("refresh sync status", zap.Error(err))
		return
	}
	s.publisher.Publish(ctx, status)
}

// Start launches the trigger dispatcher and the periodic timer, and queues an initial
// sync when online. It returns immediately; cancel ctx or call Stop to shut down.
func (s *SyncService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	if s.connectivity.IsOnline() {
		s.Trigger(models.TriggerStartup)
	} else {
		s.PublishStatus(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Trigger(models.TriggerInterval)
			}
		}
	}()
}

// Stop halts the dispatcher and waits for an in-flight cycle to finish.
func (s *SyncService) Stop() {
	s.queue.Stop()
}

// Trigger asks the dispatcher for a sync. It returns false when the trigger was dropped
// because a sync is running, one is already queued, or the service is offline or stopped.
func (s *SyncService) Trigger(trigger models.SyncTrigger) bool {
	if s.syncing.Load() || !s.connectivity.IsOnline() {
		return false
	}
	err := s.queue.TryEnqueue(jobs.Job{Type: string(trigger), Payload: trigger})
	if err != nil {
		if !errors.Is(err, jobs.ErrQueueFull) {
			s.logger.Debug("sync trigger dropped", zap.String("trigger", string(trigger)), zap.Error(err))
		}
		return false
	}
	return true
}

// HandleConnectivity reacts to connectivity transitions.
func (s *SyncService) HandleConnectivity(event models.ConnectivityEvent) {
	if event.Online {
		s.Trigger(models.TriggerReconnect)
		return
	}
	s.PublishStatus(context.Background())
}

func (s *SyncService) handleTrigger(ctx context.Context, job jobs.Job) error {
	trigger, _ := job.Payload.(models.SyncTrigger)
	if job.Attempt > 0 {
		trigger = models.TriggerRetryBackoff
	}
	result, err := s.sync(ctx)
	s.metrics.ObserveSyncCycle(trigger, result)
	s.PublishStatus(ctx)

	if err == nil {
		return nil
	}
	if errors.Is(err, appErrors.ErrStorageUnavailable) {
		return nil
	}
	if !s.connectivity.IsOnline() {
		return nil
	}
	return err
}
