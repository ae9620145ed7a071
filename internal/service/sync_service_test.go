package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	"github.com/noah-isme/attendance-offline-sync/internal/repository"
	"github.com/noah-isme/attendance-offline-sync/pkg/config"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
	"github.com/noah-isme/attendance-offline-sync/pkg/remote"
)

type statusRecorder struct {
	mu       sync.Mutex
	statuses []models.SyncStatus
}

func (r *statusRecorder) Publish(ctx context.Context, status models.SyncStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *statusRecorder) last() (models.SyncStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return models.SyncStatus{}, false
	}
	return r.statuses[len(r.statuses)-1], true
}

// fakeEndpoint records batches and answers per course.
type fakeEndpoint struct {
	mu       sync.Mutex
	batches  []models.AttendanceBatch
	failures map[int64]int
	server   *httptest.Server
}

func newFakeEndpoint(t *testing.T) *fakeEndpoint {
	t.Helper()
	e := &fakeEndpoint{failures: map[int64]int{}}
	e.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch models.AttendanceBatch
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e.mu.Lock()
		e.batches = append(e.batches, batch)
		status := e.failures[batch.Course]
		e.mu.Unlock()

		switch status {
		case 0:
			_ = json.NewEncoder(w).Encode(models.BatchAck{Success: true, Created: len(batch.AttendanceData)})
		case http.StatusOK:
			_ = json.NewEncoder(w).Encode(models.BatchAck{Success: false, Error: "Course not found"})
		default:
			http.Error(w, "unavailable", status)
		}
	}))
	t.Cleanup(e.server.Close)
	return e
}

func (e *fakeEndpoint) failCourse(course int64, status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[course] = status
}

func (e *fakeEndpoint) received() []models.AttendanceBatch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.AttendanceBatch(nil), e.batches...)
}

func (e *fakeEndpoint) client(t *testing.T) *remote.Client {
	t.Helper()
	client, err := remote.NewClient(config.SyncConfig{EndpointURL: e.server.URL, CSRFToken: "tok", RequestTimeout: time.Second}, nil)
	require.NoError(t, err)
	return client
}

func newServiceTestStore(t *testing.T) *repository.LocalStore {
	t.Helper()
	store := repository.NewLocalStore(config.LocalStoreConfig{Path: filepath.Join(t.TempDir(), "attendance.db")}, nil, nil)
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newConnectivity(online bool) *ConnectivityService {
	return NewConnectivityService(config.ConnectivityConfig{StartOnline: online}, nil, nil)
}

func TestSyncSaveThenSync(t *testing.T) {
	ctx := context.Background()
	store := newServiceTestStore(t)
	endpoint := newFakeEndpoint(t)
	conn := newConnectivity(false)
	svc := NewSyncService(store, endpoint.client(t), conn, nil, nil, SyncConfig{}, nil)

	written, err := store.SaveAttendance(ctx, 1, "2025-12-22", map[string]string{"1": "Present", "2": "Absent"})
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	conn.SetOnline(true, "test")
	result := svc.SyncPendingRecords(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Synced)
	assert.NotEmpty(t, result.CycleID)

	pending, err := store.GetPendingRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	batches := endpoint.received()
	require.Len(t, batches, 1)
	assert.Equal(t, int64(1), batches[0].Course)
	assert.Equal(t, "2025-12-22", batches[0].Date)
	assert.Equal(t, map[string]string{"1": "Present", "2": "Absent"}, batches[0].AttendanceData)
}

func TestSyncPartialFailureKeepsFailedGroupPending(t *testing.T) {
	ctx := context.Background()
	store := newServiceTestStore(t)
	endpoint := newFakeEndpoint(t)
	endpoint.failCourse(1, http.StatusInternalServerError)
	svc := NewSyncService(store, endpoint.client(t), newConnectivity(true), nil, nil, SyncConfig{}, nil)

	_, err := store.SaveAttendance(ctx, 1, "2025-12-22", map[string]string{"1": "Present", "2": "Absent"})
	require.NoError(t, err)
	_, err = store.SaveAttendance(ctx, 2, "2025-12-22", map[string]string{"3": "Late"})
	require.NoError(t, err)

	result := svc.SyncPendingRecords(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Synced)
	require.Len(t, result.Groups, 2)
	assert.False(t, result.Groups[0].Success)
	assert.True(t, result.Groups[1].Success)
	assert.Equal(t, 1, result.FailedGroups())

	pending, err := store.GetPendingRecords(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, rec := range pending {
		assert.Equal(t, int64(1), rec.CourseID)
		assert.Equal(t, 1, rec.RetryCount)
	}

	status, err := store.GetSyncStatus(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Synced)
}

func TestSyncNegativeAcknowledgmentIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := newServiceTestStore(t)
	endpoint := newFakeEndpoint(t)
	endpoint.failCourse(2, http.StatusOK)
	svc := NewSyncService(store, endpoint.client(t), newConnectivity(true), nil, nil, SyncConfig{}, nil)

	_, err := store.SaveAttendance(ctx, 1, "2025-12-22", map[string]string{"1": "Present"})
	require.NoError(t, err)
	_, err = store.SaveAttendance(ctx, 2, "2025-12-22", map[string]string{"1": "Present"})
	require.NoError(t, err)

	result := svc.SyncPendingRecords(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Synced)
	assert.Contains(t, result.Groups[1].Error, "Course not found")
}

func TestSyncOfflineSaveIssuesNoRequests(t *testing.T) {
	ctx := context.Background()
	store := newServiceTestStore(t)
	endpoint := newFakeEndpoint(t)
	svc := NewSyncService(store, endpoint.client(t), newConnectivity(false), nil, nil, SyncConfig{}, nil)

	written, err := store.SaveAttendance(ctx, 1, "2025-12-22", map[string]string{"1": "Present", "2": "Absent"})
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	result := svc.SyncPendingRecords(ctx)
	assert.False(t, result.Success)
	assert.Equal(t, syncSkippedMessage, result.Message)
	assert.Empty(t, endpoint.received())

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatus{Pending: 2, Synced: 0, IsOnline: false}, status)
}

func TestSyncIssuesOneRequestPerGroup(t *testing.T) {
	ctx := context.Background()
	store := newServiceTestStore(t)
	endpoint := newFakeEndpoint(t)
	svc := NewSyncService(store, endpoint.client(t), newConnectivity(true), nil, nil, SyncConfig{}, nil)

	_, err := store.SaveAttendance(ctx, 1, "2025-12-22", map[string]string{"1": "Present", "2": "Absent"})
	require.NoError(t, err)
	_, err = store.SaveAttendance(ctx, 1, "2025-12-23", map[string]string{"1": "Late"})
	require.NoError(t, err)
	_, err = store.SaveAttendance(ctx, 4, "2025-12-22", map[string]string{"8": "Present", "9": "Present"})
	require.NoError(t, err)

	result := svc.SyncPendingRecords(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 5, result.Synced)

	batches := endpoint.received()
	require.Len(t, batches, 3)
	seen := map[models.BatchKey]int{}
	for _, b := range batches {
		seen[models.BatchKey{CourseID: b.Course, Date: b.Date}]++
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, key.String())
	}
	assert.Equal(t, int64(1), batches[0].Course)
	assert.Equal(t, "2025-12-22", batches[0].Date)
	assert.Equal(t, "2025-12-23", batches[1].Date)
	assert.Equal(t, int64(4), batches[2].Course)
}

func TestSyncWithoutPendingRecords(t *testing.T) {
	store := newServiceTestStore(t)
	endpoint := newFakeEndpoint(t)
	svc := NewSyncService(store, endpoint.client(t), newConnectivity(true), nil, nil, SyncConfig{}, nil)

	result := svc.SyncPendingRecords(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Synced)
	assert.Empty(t, endpoint.received())
}

type blockingSubmitter struct {
	entered chan struct{}
	release chan struct{}
	calls   int32
}

func (b *blockingSubmitter) SubmitBatch(ctx context.Context, batch models.AttendanceBatch) (models.BatchAck, error) {
	atomic.AddInt32(&b.calls, 1)
	b.entered <- struct{}{}
	<-b.release
	return models.BatchAck{Success: true}, nil
}

func TestSyncIsSingleFlight(t *testing.T) {
	ctx := context.Background()
	store := newServiceTestStore(t)
	submitter := &blockingSubmitter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := NewSyncService(store, submitter, newConnectivity(true), nil, nil, SyncConfig{}, nil)

	_, err := store.SaveAttendance(ctx, 1, "2025-12-22", map[string]string{"1": "Present"})
	require.NoError(t, err)

	first := make(chan models.SyncResult, 1)
	go func() { first <- svc.SyncPendingRecords(ctx) }()

	select {
	case <-submitter.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first sync never reached the endpoint")
	}
	assert.True(t, svc.IsSyncing())

	second := svc.SyncPendingRecords(ctx)
	assert.False(t, second.Success)
	assert.Equal(t, syncSkippedMessage, second.Message)
	assert.False(t, svc.Trigger(models.TriggerInterval))

	close(submitter.release)
	result := <-first
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, int32(1), atomic.LoadInt32(&submitter.calls))
	assert.False(t, svc.IsSyncing())
}

type overwritingSubmitter struct {
	store *repository.LocalStore
	once  sync.Once
}

func (o *overwritingSubmitter) SubmitBatch(ctx context.Context, batch models.AttendanceBatch) (models.BatchAck, error) {
	var err error
	o.once.Do(func() {
		time.Sleep(2 * time.Millisecond)
		_, err = o.store.SaveAttendance(ctx, batch.Course, batch.Date, map[string]string{"2": "Late"})
	})
	return models.BatchAck{Success: true}, err
}

func TestSyncKeepsRecordsOverwrittenDuringUpload(t *testing.T) {
	ctx := context.Background()
	store := newServiceTestStore(t)
	svc := NewSyncService(store, &overwritingSubmitter{store: store}, newConnectivity(true), nil, nil, SyncConfig{}, nil)

	_, err := store.SaveAttendance(ctx, 1, "2025-12-22", map[string]string{"1": "Present", "2": "Absent"})
	require.NoError(t, err)

	result := svc.SyncPendingRecords(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Synced)

	pending, err := store.GetPendingRecords(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Late", pending[0].Status)

	result = svc.SyncPendingRecords(ctx)
	assert.Equal(t, 1, result.Synced)
}

type failingStore struct {
	syncStore
	calls int32
}

func (f *failingStore) GetPendingRecords(ctx context.Context) ([]models.AttendanceRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, appErrors.WrapAs(appErrors.ErrStorage, errors.New("disk I/O error"), "")
}

func TestSyncStorageFailureReleasesGuard(t *testing.T) {
	store := &failingStore{}
	svc := NewSyncService(store, &blockingSubmitter{}, newConnectivity(true), nil, nil, SyncConfig{}, nil)

	for i := 0; i < 2; i++ {
		result := svc.SyncPendingRecords(context.Background())
		assert.False(t, result.Success)
		assert.Equal(t, 0, result.Synced)
		assert.Contains(t, result.Message, "disk I/O error")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&store.calls))
	assert.False(t, svc.IsSyncing())
}

// markFailingStore fails the nth conditional mark.
type markFailingStore struct {
	*repository.LocalStore
	failOn int
	marks  int
}

func (s *markFailingStore) MarkAsSyncedIfUnchanged(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	s.marks++
	if s.marks == s.failOn {
		return 0, appErrors.WrapAs(appErrors.ErrStorage, errors.New("database is locked"), "")
	}
	return s.LocalStore.MarkAsSyncedIfUnchanged(ctx, records)
}

func TestSyncMarkFailureReportsEarlierCommittedBatches(t *testing.T) {
	ctx := context.Background()
	store := &markFailingStore{LocalStore: newServiceTestStore(t), failOn: 2}
	_, err := store.SaveAttendance(ctx, 1, "2025-12-22", map[string]string{"1": "Present", "2": "Absent"})
	require.NoError(t, err)
	_, err = store.SaveAttendance(ctx, 2, "2025-12-22", map[string]string{"3": "Late"})
	require.NoError(t, err)

	endpoint := newFakeEndpoint(t)
	svc := NewSyncService(store, endpoint.client(t), newConnectivity(true), nil, nil, SyncConfig{}, nil)

	result := svc.SyncPendingRecords(ctx)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Synced)
	assert.Contains(t, result.Message, "database is locked")
	assert.Contains(t, result.Message, "2 records in earlier batches")
	require.Len(t, result.Groups, 2)
	assert.True(t, result.Groups[0].Success)
	assert.Equal(t, 2, result.Groups[0].Synced)
	assert.False(t, result.Groups[1].Success)

	status, err := store.GetSyncStatus(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Synced)
	assert.Equal(t, 1, status.Pending)
	assert.False(t, svc.IsSyncing())
}

func TestSyncStartSyncsAndPublishesStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newServiceTestStore(t)
	endpoint := newFakeEndpoint(t)
	recorder := &statusRecorder{}
	svc := NewSyncService(store, endpoint.client(t), newConnectivity(true), recorder, NewMetricsService(), SyncConfig{Interval: time.Hour}, nil)

	_, err := store.SaveAttendance(ctx, 1, "2025-12-22", map[string]string{"1": "Present", "2": "Absent"})
	require.NoError(t, err)

	svc.Start(ctx)
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		status, ok := recorder.last()
		return ok && status == models.SyncStatus{Pending: 0, Synced: 2, IsOnline: true}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, endpoint.received(), 1)
}

func TestSyncRunsWhenConnectivityIsRestored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newServiceTestStore(t)
	endpoint := newFakeEndpoint(t)
	conn := newConnectivity(false)
	recorder := &statusRecorder{}
	svc := NewSyncService(store, endpoint.client(t), conn, recorder, nil, SyncConfig{Interval: time.Hour}, nil)
	conn.Subscribe(svc.HandleConnectivity)

	_, err := store.SaveAttendance(ctx, 3, "2025-12-22", map[string]string{"1": "Present"})
	require.NoError(t, err)

	svc.Start(ctx)
	defer svc.Stop()

	status, ok := recorder.last()
	require.True(t, ok)
	assert.Equal(t, models.SyncStatus{Pending: 1, IsOnline: false}, status)
	assert.Empty(t, endpoint.received())

	require.True(t, conn.SetOnline(true, "test"))
	assert.Eventually(t, func() bool {
		status, ok := recorder.last()
		return ok && status.Pending == 0 && status.Synced == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncPeriodicTimerTriggersSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newServiceTestStore(t)
	endpoint := newFakeEndpoint(t)
	svc := NewSyncService(store, endpoint.client(t), newConnectivity(true), nil, nil, SyncConfig{Interval: 20 * time.Millisecond}, nil)

	svc.Start(ctx)
	defer svc.Stop()

	_, err := store.SaveAttendance(ctx, 5, "2025-12-22", map[string]string{"1": "Present"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		pending, err := store.GetPendingRecords(ctx)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
