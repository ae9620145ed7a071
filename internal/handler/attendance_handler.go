package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-offline-sync/internal/dto"
	"github.com/noah-isme/attendance-offline-sync/internal/models"
	"github.com/noah-isme/attendance-offline-sync/internal/service"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
	"github.com/noah-isme/attendance-offline-sync/pkg/response"
)

type attendanceService interface {
	Record(ctx context.Context, courseID int64, date string, attendanceData map[string]string) (int, error)
	ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, error)
}

type exportRenderer interface {
	Render(ctx context.Context, filter models.RecordFilter, format service.ExportFormat) (*service.ExportFile, error)
}

type onlineSignal interface {
	IsOnline() bool
}

// AttendanceHandler exposes the local write path and record diagnostics.
type AttendanceHandler struct {
	service      attendanceService
	exports      exportRenderer
	connectivity onlineSignal
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service attendanceService, exports exportRenderer, connectivity onlineSignal) *AttendanceHandler {
	return &AttendanceHandler{service: service, exports: exports, connectivity: connectivity}
}

// Save godoc
// @Summary Record an attendance sheet
// @Description Stores every entry as a pending record; uploads happen in the background.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.SaveAttendanceRequest true "Attendance sheet"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Save(c *gin.Context) {
	var req dto.SaveAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload"))
		return
	}

	written, err := h.service.Record(c.Request.Context(), req.Course, req.Date, req.AttendanceData)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.SaveAttendanceResponse{Written: written, Offline: !h.connectivity.IsOnline()})
}

// List godoc
// @Summary List local attendance records
// @Tags Attendance
// @Produce json
// @Param course query int false "Course ID"
// @Param date query string false "Session date (YYYY-MM-DD)"
// @Param syncStatus query string false "pending or synced"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /attendance/records [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	req, err := parseRecordList(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.service.ListRecords(c.Request.Context(), recordFilter(req))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{"count": len(records)})
}

// Export godoc
// @Summary Export local attendance records
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param course query int false "Course ID"
// @Param date query string false "Session date (YYYY-MM-DD)"
// @Param syncStatus query string false "pending or synced"
// @Success 200 {file} file
// @Router /attendance/records/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	req, err := parseRecordList(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format, err := service.ParseExportFormat(req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Render(c.Request.Context(), recordFilter(req), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
