package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	"github.com/noah-isme/attendance-offline-sync/pkg/config"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
	"github.com/noah-isme/attendance-offline-sync/pkg/middleware/requestid"
)

func newTestClient(t *testing.T, url, token string, timeout time.Duration) *Client {
	t.Helper()
	client, err := NewClient(config.SyncConfig{EndpointURL: url, CSRFToken: token, RequestTimeout: timeout}, nil)
	require.NoError(t, err)
	return client
}

func TestSubmitBatchSendsPayloadAndHeaders(t *testing.T) {
	var received models.AttendanceBatch
	var csrf, reqID, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		csrf = r.Header.Get(CSRFHeader)
		reqID = r.Header.Get(requestid.HeaderKey)
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"success":true,"created":2,"updated":0}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL+"/instructor/api/sync-attendance/", "tok-123", time.Second)
	ctx := requestid.WithID(context.Background(), "req-1")
	ack, err := client.SubmitBatch(ctx, models.AttendanceBatch{
		Course:         1,
		Date:           "2025-12-22",
		AttendanceData: map[string]string{"1": "Present", "2": "Absent"},
	})
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, 2, ack.Created)

	assert.Equal(t, "tok-123", csrf)
	assert.Equal(t, "req-1", reqID)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, int64(1), received.Course)
	assert.Equal(t, "2025-12-22", received.Date)
	assert.Equal(t, map[string]string{"1": "Present", "2": "Absent"}, received.AttendanceData)
}

func TestSubmitBatchPicksUpServerIssuedCSRFCookie(t *testing.T) {
	calls := 0
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		seen = append(seen, r.Header.Get(CSRFHeader))
		http.SetCookie(w, &http.Cookie{Name: CSRFCookieName, Value: "rotated", Path: "/"})
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, "", time.Second)
	for i := 0; i < 2; i++ {
		_, err := client.SubmitBatch(context.Background(), models.AttendanceBatch{Course: 1, Date: "2025-12-22"})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"", "rotated"}, seen)
	assert.Equal(t, "rotated", client.CSRFToken())
}

func TestSubmitBatchFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: appErrors.ErrTransport,
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "CSRF verification failed", http.StatusForbidden)
			},
			want: appErrors.ErrTransport,
		},
		{
			name: "negative ack",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":false,"error":"Course not found"}`))
			},
			want: appErrors.ErrProtocol,
		},
		{
			name: "malformed ack",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			want: appErrors.ErrProtocol,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			client := newTestClient(t, srv.URL, "tok", time.Second)
			_, err := client.SubmitBatch(context.Background(), models.AttendanceBatch{Course: 1, Date: "2025-12-22"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestSubmitBatchTimeoutIsTransportFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := newTestClient(t, srv.URL, "", 50*time.Millisecond)
	_, err := client.SubmitBatch(context.Background(), models.AttendanceBatch{Course: 1, Date: "2025-12-22"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransport))
}

func TestNewClientRejectsRelativeEndpoint(t *testing.T) {
	_, err := NewClient(config.SyncConfig{EndpointURL: "/sync"}, nil)
	assert.Error(t, err)
}
