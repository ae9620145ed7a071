package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/repository"
	"github.com/noah-isme/attendance-offline-sync/internal/service"
	"github.com/noah-isme/attendance-offline-sync/pkg/cache"
	"github.com/noah-isme/attendance-offline-sync/pkg/config"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
	"github.com/noah-isme/attendance-offline-sync/pkg/remote"
	"github.com/noah-isme/attendance-offline-sync/pkg/storage"
)

const (
	ModeOffline = "offline"
	ModeDirect  = "direct"
)

// Agent owns one local store and the services built around it for a session.
type Agent struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *service.MetricsService
	Remote       *remote.Client
	Connectivity *service.ConnectivityService
	Hub          *service.StatusHub
	Attendance   *service.AttendanceService
	Exports      *service.ExportService

	// Nil in direct mode.
	Store     *repository.LocalStore
	Sync      *service.SyncService
	Retention *service.RetentionService

	statusCache *repository.StatusCacheRepository
}

// New wires the agent. When no local store can be opened it falls back to direct mode,
// where sheets go straight to the remote endpoint.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{Config: cfg, Logger: logger, Metrics: service.NewMetricsService()}

	client, err := remote.NewClient(cfg.Sync, logger.Named("remote"))
	if err != nil {
		return nil, err
	}
	a.Remote = client

	a.Connectivity = service.NewConnectivityService(cfg.Connectivity, a.Metrics, logger.Named("connectivity"))
	a.Hub = service.NewStatusHub(logger.Named("status"))
	a.Hub.AddSink("metrics", a.Metrics)

	if cfg.StatusRedis.Enabled {
		redisClient, err := cache.NewRedis(ctx, cfg.StatusRedis)
		if err != nil {
			logger.Warn("status redis disabled", zap.Error(err))
		} else {
			a.statusCache = repository.NewStatusCacheRepository(redisClient, cfg.StatusRedis.Key, cfg.StatusRedis.Channel, logger)
			a.Hub.AddSink("redis", a.statusCache)
		}
	}

	store := repository.NewLocalStore(cfg.LocalStore, validator.New(), logger.Named("store"))
	if err := store.Initialize(ctx); err != nil {
		if !errors.Is(err, appErrors.ErrStorageUnavailable) {
			return nil, err
		}
		logger.Warn("local store unavailable, running without offline support", zap.Error(err))
		a.wireDirect()
		return a, nil
	}
	a.wireOffline(store)
	return a, nil
}

func (a *Agent) wireOffline(store *repository.LocalStore) {
	cfg := a.Config
	a.Store = store
	a.Sync = service.NewSyncService(store, a.Remote, a.Connectivity, a.Hub, a.Metrics, service.SyncConfig{
		Interval:   cfg.Sync.Interval,
		RetryDelay: cfg.Sync.RetryDelay,
		MaxRetries: cfg.Sync.MaxRetries,
	}, a.Logger.Named("sync"))
	a.Connectivity.Subscribe(a.Sync.HandleConnectivity)

	archive, err := storage.NewArchive(cfg.Export.Dir)
	if err != nil {
		a.Logger.Warn("export archive disabled", zap.Error(err))
		a.Exports = service.NewExportService(store, nil, a.Logger.Named("export"), nil, nil)
	} else {
		a.Exports = service.NewExportService(store, archive, a.Logger.Named("export"), nil, nil)
	}

	a.Retention = service.NewRetentionService(store, a.Exports, a.Sync, a.Metrics, cfg.Retention, a.Logger.Named("retention"))
	a.Attendance = service.NewAttendanceService(store, store, a.Sync, a.Metrics, a.Logger.Named("attendance"))
}

func (a *Agent) wireDirect() {
	direct := service.NewDirectRecorder(a.Remote, a.Connectivity, a.Logger.Named("direct"))
	a.Attendance = service.NewAttendanceService(direct, nil, nil, a.Metrics, a.Logger.Named("attendance"))
	a.Exports = service.NewExportService(nil, nil, a.Logger.Named("export"), nil, nil)
}

// Mode reports whether records are kept locally.
func (a *Agent) Mode() string {
	if a.Store == nil {
		return ModeDirect
	}
	return ModeOffline
}

// Start launches background loops: connectivity probing, the sync dispatcher and the janitor.
func (a *Agent) Start(ctx context.Context) {
	a.Connectivity.StartProbing(ctx)
	if a.Sync == nil {
		return
	}
	a.Sync.Start(ctx)
	a.Retention.StartCleanup(ctx)
}

// Ready checks that the store still answers.
func (a *Agent) Ready(ctx context.Context) (string, error) {
	if a.Store == nil {
		return ModeDirect, nil
	}
	if _, err := a.Store.GetSyncStatus(ctx, a.Connectivity.IsOnline()); err != nil {
		return ModeOffline, err
	}
	return ModeOffline, nil
}

// Close stops the dispatcher and releases the store and Redis handles.
func (a *Agent) Close() error {
	var errs []error
	if a.Sync != nil {
		a.Sync.Stop()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.statusCache != nil {
		if err := a.statusCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
