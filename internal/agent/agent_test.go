package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/pkg/config"
)

func testConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Env:          config.EnvDevelopment,
		APIPrefix:    "/api/v1",
		LocalStore:   config.LocalStoreConfig{Path: filepath.Join(dir, "attendance.db"), BusyTimeout: time.Second},
		Sync:         config.SyncConfig{EndpointURL: endpoint, CSRFToken: "token", Interval: time.Hour, RequestTimeout: 2 * time.Second, RetryDelay: 10 * time.Millisecond, MaxRetries: 1},
		Connectivity: config.ConnectivityConfig{StartOnline: true},
		Retention:    config.RetentionConfig{Window: 7 * 24 * time.Hour, CleanupInterval: time.Hour},
		Export:       config.ExportConfig{Dir: filepath.Join(dir, "exports")},
	}
}

func newEndpoint(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAgentRecordAndSyncOverHTTP(t *testing.T) {
	var hits int32
	srv := newEndpoint(t, &hits)
	a, err := New(context.Background(), testConfig(t, srv.URL), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.Equal(t, ModeOffline, a.Mode())

	router := a.Router()

	rec := do(t, router, http.MethodPost, "/api/v1/attendance", map[string]interface{}{
		"course":          7,
		"date":            "2024-03-01",
		"attendance_data": map[string]string{"101": "present", "102": "absent"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":2`)

	rec = do(t, router, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	rec = do(t, router, http.MethodGet, "/api/v1/sync/status", nil)
	assert.Contains(t, rec.Body.String(), `"pending":0`)
	assert.Contains(t, rec.Body.String(), `"synced":2`)

	rec = do(t, router, http.MethodGet, "/api/v1/attendance/records?syncStatus=synced", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
}

func TestAgentOfflineSyncMakesNoRequests(t *testing.T) {
	var hits int32
	srv := newEndpoint(t, &hits)
	a, err := New(context.Background(), testConfig(t, srv.URL), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	router := a.Router()

	rec := do(t, router, http.MethodPut, "/api/v1/connectivity", map[string]interface{}{"online": false, "source": "test"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/v1/attendance", map[string]interface{}{
		"course":          3,
		"date":            "2024-03-02",
		"attendance_data": map[string]string{"101": "late"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"offline":true`)

	rec = do(t, router, http.MethodPost, "/api/v1/sync", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestAgentFallsBackToDirectMode(t *testing.T) {
	var hits int32
	srv := newEndpoint(t, &hits)
	cfg := testConfig(t, srv.URL)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.LocalStore.Path = filepath.Join(blocker, "attendance.db")

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.Equal(t, ModeDirect, a.Mode())
	assert.Nil(t, a.Sync)

	router := a.Router()
	rec := do(t, router, http.MethodPost, "/api/v1/attendance", map[string]interface{}{
		"course":          9,
		"date":            "2024-03-03",
		"attendance_data": map[string]string{"201": "present"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	rec = do(t, router, http.MethodGet, "/api/v1/attendance/records", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/sync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ModeDirect)
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	var hits int32
	srv := newEndpoint(t, &hits)
	a, err := New(context.Background(), testConfig(t, srv.URL), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	router := a.Router()

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", nil).Code)
	rec := do(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutines_total")
}
