package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	"github.com/noah-isme/attendance-offline-sync/pkg/config"
)

type retentionStore interface {
	CleanupOldRecords(ctx context.Context, retention time.Duration) (int, error)
}

type exportPruner interface {
	PruneArchive(ttl time.Duration) (int, error)
}

type statusRefresher interface {
	PublishStatus(ctx context.Context)
}

// RetentionService purges synced records that have outlived the retention window.
type RetentionService struct {
	store     retentionStore
	exports   exportPruner
	refresher statusRefresher
	metrics   *MetricsService
	cfg       config.RetentionConfig
	logger    *zap.Logger
}

// NewRetentionService constructs the janitor. exports, refresher and metrics may be nil.
func NewRetentionService(store retentionStore, exports exportPruner, refresher statusRefresher, metrics *MetricsService, cfg config.RetentionConfig, logger *zap.Logger) *RetentionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window <= 0 {
		cfg.Window = models.DefaultRetention
	}
	return &RetentionService{store: store, exports: exports, refresher: refresher, metrics: metrics, cfg: cfg, logger: logger}
}

// RunOnce deletes expired synced records and returns how many were removed. Archived
// exports past the same window are pruned as well.
func (s *RetentionService) RunOnce(ctx context.Context) (int, error) {
	deleted, err := s.store.CleanupOldRecords(ctx, s.cfg.Window)
	if err != nil {
		return 0, err
	}
	if s.exports != nil {
		if pruned, err := s.exports.PruneArchive(s.cfg.Window); err != nil {
			s.logger.Warn("prune export archive", zap.Error(err))
		} else if pruned > 0 {
			s.logger.Debug("pruned export archive", zap.Int("files", pruned))
		}
	}
	s.metrics.ObserveCleanup(deleted)
	if deleted > 0 {
		s.logger.Info("purged synced records", zap.Int("deleted", deleted), zap.Duration("retention", s.cfg.Window))
		if s.refresher != nil {
			s.refresher.PublishStatus(ctx)
		}
	}
	return deleted, nil
}

// StartCleanup boots a goroutine that purges expired records periodically.
func (s *RetentionService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Sugar().Warnw("retention cleanup failed", "error", err)
				}
			}
		}
	}()
}
