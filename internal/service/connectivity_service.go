package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	"github.com/noah-isme/attendance-offline-sync/pkg/config"
)

// ConnectivityService tracks whether the remote endpoint is reachable and notifies
// subscribers on transitions.
type ConnectivityService struct {
	cfg     config.ConnectivityConfig
	client  *http.Client
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time

	online atomic.Bool

	mu          sync.Mutex
	subscribers []func(models.ConnectivityEvent)
}

// NewConnectivityService constructs the monitor with cfg.StartOnline as its initial state.
func NewConnectivityService(cfg config.ConnectivityConfig, metrics *MetricsService, logger *zap.Logger) *ConnectivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	svc := &ConnectivityService{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	svc.online.Store(cfg.StartOnline)
	metrics.SetOnline(cfg.StartOnline)
	return svc
}

// IsOnline reports the current connectivity signal.
func (s *ConnectivityService) IsOnline() bool {
	return s.online.Load()
}

// Subscribe registers fn for every transition. fn runs on the caller of SetOnline and must not block.
func (s *ConnectivityService) Subscribe(fn func(models.ConnectivityEvent)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// SetOnline updates the signal and returns true when it changed.
func (s *ConnectivityService) SetOnline(online bool, source string) bool {
	if s.online.Swap(online) == online {
		return false
	}
	s.metrics.SetOnline(online)

	event := models.ConnectivityEvent{Online: online, Source: source, ObservedAt: s.now().UTC()}
	if online {
		s.logger.Info("connectivity restored", zap.String("source", source))
	} else {
		s.logger.Warn("connectivity lost", zap.String("source", source))
	}

	s.mu.Lock()
	subs := append([]func(models.ConnectivityEvent){}, s.subscribers...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(event)
	}
	return true
}

// Probe checks the health URL. Any response below 500 counts as reachable.
func (s *ConnectivityService) Probe(ctx context.Context) (bool, error) {
	if s.cfg.HealthURL == "" {
		return s.IsOnline(), errors.New("health URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.HealthURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError, nil
}

// StartProbing polls the health URL until ctx is cancelled. It is a no-op without a health URL.
func (s *ConnectivityService) StartProbing(ctx context.Context) {
	if s.cfg.HealthURL == "" || s.cfg.ProbeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.ProbeInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reachable, err := s.Probe(ctx)
				if err != nil && ctx.Err() == nil {
					s.logger.Debug("connectivity probe failed", zap.Error(err))
				}
				if ctx.Err() != nil {
					return
				}
				s.SetOnline(reachable, "probe")
			}
		}
	}()
}
