package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
)

// AttendanceRecorder persists or forwards one attendance sheet and returns the entries written.
type AttendanceRecorder interface {
	SaveAttendance(ctx context.Context, courseID int64, date string, attendanceData map[string]string) (int, error)
}

type recordLister interface {
	ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, error)
}

type syncTrigger interface {
	Trigger(trigger models.SyncTrigger) bool
	PublishStatus(ctx context.Context)
}

// AttendanceService is the application's write path for attendance sheets.
type AttendanceService struct {
	recorder AttendanceRecorder
	lister   recordLister
	sync     syncTrigger
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewAttendanceService constructs the service. lister and sync are nil in degraded mode.
func NewAttendanceService(recorder AttendanceRecorder, lister recordLister, sync syncTrigger, metrics *MetricsService, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{recorder: recorder, lister: lister, sync: sync, metrics: metrics, logger: logger}
}

// Record saves a sheet. With a local store the entries become pending and an upload is
// requested; the save itself never waits on the network.
func (s *AttendanceService) Record(ctx context.Context, courseID int64, date string, attendanceData map[string]string) (int, error) {
	start := time.Now()
	written, err := s.recorder.SaveAttendance(ctx, courseID, strings.TrimSpace(date), attendanceData)
	s.metrics.ObserveStoreOperation("save_attendance", time.Since(start))
	if err != nil {
		return 0, err
	}
	s.logger.Debug("attendance recorded", zap.Int64("course", courseID), zap.String("date", date), zap.Int("written", written))

	if s.sync != nil && written > 0 {
		s.sync.PublishStatus(ctx)
		s.sync.Trigger(models.TriggerManual)
	}
	return written, nil
}

// ListRecords returns local records for diagnostics.
func (s *AttendanceService) ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, error) {
	if s.lister == nil {
		return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "local records are not kept in direct mode")
	}
	return s.lister.ListRecords(ctx, filter)
}
