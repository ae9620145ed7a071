package service

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the agent.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	syncCycles      *prometheus.CounterVec
	syncDuration    prometheus.Observer
	syncBatches     *prometheus.CounterVec
	recordsSynced   prometheus.Counter
	cleanupDeleted  prometheus.Counter
	pendingRecords  prometheus.Gauge
	syncedRecords   prometheus.Gauge
	online          prometheus.Gauge
	storeOpDuration *prometheus.HistogramVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	syncCycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sync_cycles_total",
		Help: "Sync cycles by trigger and outcome",
	}, []string{"trigger", "outcome"})

	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_sync_cycle_duration_seconds",
		Help:    "Wall time of sync cycles that reached the remote endpoint",
		Buckets: prometheus.DefBuckets,
	})

	syncBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sync_batches_total",
		Help: "Course/date batches uploaded by outcome",
	}, []string{"outcome"})

	recordsSynced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_records_synced_total",
		Help: "Records marked synced after a positive acknowledgment",
	})

	cleanupDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_records_purged_total",
		Help: "Synced records deleted by the retention janitor",
	})

	pendingRecords := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_records_pending",
		Help: "Records awaiting upload at the last status publication",
	})

	syncedRecords := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_records_synced",
		Help: "Synced records retained locally at the last status publication",
	})

	online := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_agent_online",
		Help: "1 when the agent believes the remote endpoint is reachable",
	})

	storeOpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "local_store_operation_duration_seconds",
		Help:    "Duration of local store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, syncCycles, syncDuration, syncBatches, recordsSynced,
		cleanupDeleted, pendingRecords, syncedRecords, online, storeOpDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		syncCycles:      syncCycles,
		syncDuration:    syncDuration,
		syncBatches:     syncBatches,
		recordsSynced:   recordsSynced,
		cleanupDeleted:  cleanupDeleted,
		pendingRecords:  pendingRecords,
		syncedRecords:   syncedRecords,
		online:          online,
		storeOpDuration: storeOpDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveSyncCycle records the outcome of one sync attempt.
func (m *MetricsService) ObserveSyncCycle(trigger models.SyncTrigger, result models.SyncResult) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case !result.Success && len(result.Groups) == 0 && result.Message == syncSkippedMessage:
		outcome = "skipped"
	case !result.Success:
		outcome = "error"
	case result.FailedGroups() > 0:
		outcome = "partial"
	}
	m.syncCycles.WithLabelValues(string(trigger), outcome).Inc()
	if outcome == "skipped" {
		return
	}
	if !result.Started.IsZero() && !result.Finished.IsZero() {
		m.syncDuration.Observe(result.Finished.Sub(result.Started).Seconds())
	}
	for _, g := range result.Groups {
		if g.Success {
			m.syncBatches.WithLabelValues("success").Inc()
		} else {
			m.syncBatches.WithLabelValues("failure").Inc()
		}
	}
	if result.Synced > 0 {
		m.recordsSynced.Add(float64(result.Synced))
	}
}

// ObserveCleanup counts records purged by the janitor.
func (m *MetricsService) ObserveCleanup(deleted int) {
	if m == nil || deleted <= 0 {
		return
	}
	m.cleanupDeleted.Add(float64(deleted))
}

// ObserveStoreOperation records local store timing.
func (m *MetricsService) ObserveStoreOperation(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeOpDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// SetOnline mirrors the connectivity flag.
func (m *MetricsService) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

// PublishStatus updates the status gauges; it lets the service act as a status hub sink.
func (m *MetricsService) PublishStatus(_ context.Context, status models.SyncStatus) error {
	if m == nil {
		return nil
	}
	m.pendingRecords.Set(float64(status.Pending))
	m.syncedRecords.Set(float64(status.Synced))
	m.SetOnline(status.IsOnline)
	return nil
}
