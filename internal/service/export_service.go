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
	"github.com/noah-isme/attendance-offline-sync/pkg/export"
)

// ExportFormat selects the rendering of a diagnostics export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

var recordColumns = []export.Column{
	{Key: "id", Width: 3},
	{Key: "course"},
	{Key: "date", Width: 1.5},
	{Key: "student"},
	{Key: "status", Width: 1.5},
	{Key: "sync_status", Width: 1.2},
	{Key: "timestamp", Width: 2.5},
	{Key: "retry_count"},
}

type exportArchive interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered export ready to be served or archived.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders local records for diagnostics.
type ExportService struct {
	records recordLister
	archive exportArchive
	csv     datasetRenderer
	pdf     datasetRenderer
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportService constructs an ExportService. archive may be nil when exports are only streamed.
func NewExportService(records recordLister, archive exportArchive, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{records: records, archive: archive, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// ParseExportFormat validates a user supplied format; empty means CSV.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatPDF:
		return ExportFormatPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", raw))
	}
}

// Render builds the export for records matching filter.
func (s *ExportService) Render(ctx context.Context, filter models.RecordFilter, format ExportFormat) (*ExportFile, error) {
	if s.records == nil {
		return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "local records are not kept in direct mode")
	}
	records, err := s.records.ListRecords(ctx, filter)
	if err != nil {
		return nil, err
	}
	dataset := RecordsDataset(records)

	stamp := s.now().UTC().Format("20060102T150405Z")
	file := &ExportFile{}
	switch format {
	case ExportFormatCSV:
		file.Body, err = s.csv.Render(dataset)
		file.ContentType = "text/csv"
	case ExportFormatPDF:
		file.Body, err = s.pdf.Render(dataset)
		file.ContentType = "application/pdf"
	default:
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, err
	}
	file.Filename = fmt.Sprintf("attendance-records-%s.%s", stamp, format)
	return file, nil
}

// Archive renders the export and stores it in the archive, returning the stored path.
func (s *ExportService) Archive(ctx context.Context, filter models.RecordFilter, format ExportFormat) (string, error) {
	if s.archive == nil {
		return "", fmt.Errorf("export archive not configured")
	}
	file, err := s.Render(ctx, filter, format)
	if err != nil {
		return "", err
	}
	path, err := s.archive.Save(file.Filename, file.Body)
	if err != nil {
		return "", err
	}
	s.logger.Info("export archived", zap.String("path", path), zap.Int("bytes", len(file.Body)))
	return path, nil
}

// PruneArchive deletes archived exports older than ttl.
func (s *ExportService) PruneArchive(ttl time.Duration) (int, error) {
	if s == nil || s.archive == nil {
		return 0, nil
	}
	deleted, err := s.archive.CleanupOlderThan(ttl)
	if err != nil {
		return 0, err
	}
	return len(deleted), nil
}

// RecordsDataset converts records into a tabular dataset.
func RecordsDataset(records []models.AttendanceRecord) export.Dataset {
	rows := make([]map[string]string, 0, len(records))
	pending := 0
	for _, rec := range records {
		if rec.SyncStatus == models.SyncStatePending {
			pending++
		}
		rows = append(rows, map[string]string{
			"id":          rec.ID,
			"course":      strconv.FormatInt(rec.CourseID, 10),
			"date":        rec.Date,
			"student":     strconv.FormatInt(rec.StudentID, 10),
			"status":      rec.Status,
			"sync_status": string(rec.SyncStatus),
			"timestamp":   rec.Timestamp.UTC().Format(time.RFC3339),
			"retry_count": strconv.Itoa(rec.RetryCount),
		})
	}
	return export.Dataset{
		Title:   "Local attendance records",
		Columns: recordColumns,
		Rows:    rows,
		Summary: []string{
			fmt.Sprintf("records: %d", len(records)),
			fmt.Sprintf("pending: %d", pending),
		},
	}
}
