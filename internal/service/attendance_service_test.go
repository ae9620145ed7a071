package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
)

type triggerStub struct {
	triggers  []models.SyncTrigger
	published int
}

func (s *triggerStub) Trigger(trigger models.SyncTrigger) bool {
	s.triggers = append(s.triggers, trigger)
	return true
}

func (s *triggerStub) PublishStatus(ctx context.Context) { s.published++ }

func TestAttendanceServiceRecordRequestsSync(t *testing.T) {
	store := newServiceTestStore(t)
	trigger := &triggerStub{}
	svc := NewAttendanceService(store, store, trigger, nil, nil)

	written, err := svc.Record(context.Background(), 1, " 2025-12-22 ", map[string]string{"1": "Present", "2": "Absent"})
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, []models.SyncTrigger{models.TriggerManual}, trigger.triggers)
	assert.Equal(t, 1, trigger.published)

	records, err := svc.ListRecords(context.Background(), models.RecordFilter{Date: "2025-12-22"})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestAttendanceServiceRecordValidationFailure(t *testing.T) {
	store := newServiceTestStore(t)
	trigger := &triggerStub{}
	svc := NewAttendanceService(store, store, trigger, nil, nil)

	_, err := svc.Record(context.Background(), 1, "2025-13-40", map[string]string{"1": "Present"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, trigger.triggers)
}

func TestDirectRecorderSubmitsImmediately(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	recorder := NewDirectRecorder(endpoint.client(t), newConnectivity(true), nil)
	svc := NewAttendanceService(recorder, nil, nil, nil, nil)

	written, err := svc.Record(context.Background(), 2, "2025-12-22", map[string]string{" 1 ": "Present"})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	batches := endpoint.received()
	require.Len(t, batches, 1)
	assert.Equal(t, map[string]string{"1": "Present"}, batches[0].AttendanceData)

	_, err = svc.ListRecords(context.Background(), models.RecordFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrStorageUnavailable))
}

func TestDirectRecorderRefusesWhenOffline(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	recorder := NewDirectRecorder(endpoint.client(t), newConnectivity(false), nil)

	_, err := recorder.SaveAttendance(context.Background(), 2, "2025-12-22", map[string]string{"1": "Present"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransport))
	assert.Empty(t, endpoint.received())
}

func TestDirectRecorderSurfacesRemoteFailure(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	endpoint.failCourse(2, http.StatusServiceUnavailable)
	recorder := NewDirectRecorder(endpoint.client(t), newConnectivity(true), nil)

	_, err := recorder.SaveAttendance(context.Background(), 2, "2025-12-22", map[string]string{"1": "Present"})
	assert.True(t, errors.Is(err, appErrors.ErrTransport))

	_, err = recorder.SaveAttendance(context.Background(), 2, "bad", map[string]string{"1": "Present"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestDirectRecorderRejectsAmbiguousStudentKeys(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	recorder := NewDirectRecorder(endpoint.client(t), newConnectivity(true), nil)

	for _, data := range []map[string]string{
		{"1": "Present", "01": "Absent"},
		{"1": "Present", " 1": "Absent"},
	} {
		_, err := recorder.SaveAttendance(context.Background(), 2, "2025-12-22", data)
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	}
	assert.Empty(t, endpoint.received())
}
