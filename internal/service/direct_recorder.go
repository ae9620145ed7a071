package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
)

// DirectRecorder submits sheets straight to the remote endpoint. It is used when no local
// store could be opened, so nothing is retained and an offline agent refuses writes.
type DirectRecorder struct {
	remote       batchSubmitter
	connectivity connectivitySignal
	logger       *zap.Logger
}

// NewDirectRecorder constructs a recorder without offline support.
func NewDirectRecorder(remote batchSubmitter, connectivity connectivitySignal, logger *zap.Logger) *DirectRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectRecorder{remote: remote, connectivity: connectivity, logger: logger}
}

// SaveAttendance uploads the sheet as a single batch.
func (r *DirectRecorder) SaveAttendance(ctx context.Context, courseID int64, date string, attendanceData map[string]string) (int, error) {
	if courseID <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "course must be positive")
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD")
	}
	data := make(map[string]string, len(attendanceData))
	for student, status := range attendanceData {
		key := strings.TrimSpace(student)
		if id, err := strconv.ParseInt(key, 10, 64); err != nil || id <= 0 || strconv.FormatInt(id, 10) != key {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid student id %q", student))
		}
		status = strings.TrimSpace(status)
		if status == "" {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("empty status for student %q", student))
		}
		if _, dup := data[key]; dup {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %q appears more than once", key))
		}
		data[key] = status
	}
	if len(data) == 0 {
		return 0, nil
	}
	if !r.connectivity.IsOnline() {
		return 0, appErrors.Clone(appErrors.ErrTransport, "offline and local storage is unavailable")
	}

	ack, err := r.remote.SubmitBatch(ctx, models.AttendanceBatch{Course: courseID, Date: date, AttendanceData: data})
	if err != nil {
		return 0, err
	}
	r.logger.Info("attendance submitted directly",
		zap.Int64("course", courseID),
		zap.String("date", date),
		zap.Int("created", ack.Created),
		zap.Int("updated", ack.Updated),
	)
	return len(data), nil
}
