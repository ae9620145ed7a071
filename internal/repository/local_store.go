package repository

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	"github.com/noah-isme/attendance-offline-sync/pkg/config"
	"github.com/noah-isme/attendance-offline-sync/pkg/database"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
)

//go:embed local_store_schema.sql
var localStoreSchema string

// Schema versions:
// 1 - attendance_records with course/date/sync_status/timestamp indexes
// 2 - composite index backing the pending scan used by sync cycles
const localStoreSchemaVersion = 2

// timestampLayout is fixed-width so that string comparison orders instants.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const recordColumns = "id, course_id, date, student_id, status, sync_status, timestamp, retry_count"

type attendanceRow struct {
	ID         string `db:"id"`
	CourseID   int64  `db:"course_id"`
	Date       string `db:"date"`
	StudentID  int64  `db:"student_id"`
	Status     string `db:"status"`
	SyncStatus string `db:"sync_status"`
	Timestamp  string `db:"timestamp"`
	RetryCount int    `db:"retry_count"`
}

func (r attendanceRow) toModel() (models.AttendanceRecord, error) {
	ts, err := time.Parse(timestampLayout, r.Timestamp)
	if err != nil {
		return models.AttendanceRecord{}, fmt.Errorf("parse timestamp for %s: %w", r.ID, err)
	}
	return models.AttendanceRecord{
		ID:         r.ID,
		CourseID:   r.CourseID,
		Date:       r.Date,
		StudentID:  r.StudentID,
		Status:     r.Status,
		SyncStatus: models.SyncState(r.SyncStatus),
		Timestamp:  ts,
		RetryCount: r.RetryCount,
	}, nil
}

type attendanceSheet struct {
	CourseID int64  `validate:"gt=0"`
	Date     string `validate:"required,iso_date"`
}

type attendanceEntry struct {
	StudentID string `validate:"required,student_id"`
	Status    string `validate:"required,max=32"`
}

// LocalStore is the durable client-side store of pending and synced attendance records.
type LocalStore struct {
	cfg       config.LocalStoreConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time

	mu sync.RWMutex
	db *sqlx.DB
}

// NewLocalStore constructs a store for the configured database path. Call Initialize before use.
func NewLocalStore(cfg config.LocalStoreConfig, validate *validator.Validate, logger *zap.Logger) *LocalStore {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store := &LocalStore{cfg: cfg, validator: validate, logger: logger, now: time.Now}
	store.validator.RegisterValidation("iso_date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(models.DateLayout, fl.Field().String())
		return err == nil
	})
	store.validator.RegisterValidation("student_id", func(fl validator.FieldLevel) bool {
		raw := fl.Field().String()
		id, err := strconv.ParseInt(raw, 10, 64)
		return err == nil && id > 0 && strconv.FormatInt(id, 10) == raw
	})
	return store
}

// NewLocalStoreWithDB wraps an already opened database whose schema is managed by the caller.
func NewLocalStoreWithDB(db *sqlx.DB, validate *validator.Validate, logger *zap.Logger) *LocalStore {
	store := NewLocalStore(config.LocalStoreConfig{}, validate, logger)
	store.db = db
	return store
}

// Initialize opens the database and applies the schema. It is safe to call repeatedly.
// When no persistence medium is available it returns ErrStorageUnavailable and the
// caller should continue without offline support.
func (s *LocalStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		db, err := database.NewSQLite(s.cfg)
		if err != nil {
			return appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "")
		}
		s.db = db
	}

	if err := applyLocalSchema(ctx, s.db); err != nil {
		return appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "")
	}

	s.logger.Debug("local store ready", zap.String("path", s.cfg.Path))
	return nil
}

func applyLocalSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, localStoreSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 2 {
		if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_attendance_records_pending_batch
ON attendance_records (sync_status, course_id, date)`); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}
	if version != localStoreSchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", localStoreSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *LocalStore) handle() (*sqlx.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "local store not initialized")
	}
	return s.db, nil
}

func storageErr(op string, err error) error {
	return appErrors.WrapAs(appErrors.ErrStorage, fmt.Errorf("%s: %w", op, err), "")
}

func (s *LocalStore) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// SaveAttendance upserts one pending record per student of the sheet and returns how many
// were written. The whole sheet is written in one transaction; re-saving the same sheet
// overwrites the same rows.
func (s *LocalStore) SaveAttendance(ctx context.Context, courseID int64, date string, attendanceData map[string]string) (int, error) {
	date = strings.TrimSpace(date)
	if err := s.validator.Struct(attendanceSheet{CourseID: courseID, Date: date}); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course or date")
	}

	studentIDs := make([]string, 0, len(attendanceData))
	for studentID := range attendanceData {
		studentIDs = append(studentIDs, studentID)
	}
	sort.Strings(studentIDs)

	type pendingWrite struct {
		studentID int64
		status    string
	}
	writes := make([]pendingWrite, 0, len(studentIDs))
	seen := make(map[int64]string, len(studentIDs))
	for _, raw := range studentIDs {
		key := strings.TrimSpace(raw)
		status := strings.TrimSpace(attendanceData[raw])
		entry := attendanceEntry{StudentID: key, Status: status}
		if err := s.validator.Struct(entry); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid attendance entry for student %q", raw))
		}
		id, _ := strconv.ParseInt(key, 10, 64)
		if prev, dup := seen[id]; dup {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("students %q and %q name the same record", prev, raw))
		}
		seen[id] = raw
		writes = append(writes, pendingWrite{studentID: id, status: status})
	}
	if len(writes) == 0 {
		return 0, nil
	}

	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin save attendance", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := `INSERT INTO attendance_records (id, course_id, date, student_id, status, sync_status, timestamp, retry_count)
VALUES (?, ?, ?, ?, ?, ?, ?, 0)
ON CONFLICT (id) DO UPDATE SET status = excluded.status, sync_status = excluded.sync_status,
timestamp = excluded.timestamp, retry_count = 0`
	ts := s.timestamp()
	for _, w := range writes {
		id := models.RecordID(courseID, date, w.studentID)
		if _, err := tx.ExecContext(ctx, query, id, courseID, date, w.studentID, w.status, models.SyncStatePending, ts); err != nil {
			return 0, storageErr("save attendance", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit save attendance", err)
	}
	committed = true
	return len(writes), nil
}

// GetPendingRecords returns every record that has not been acknowledged by the remote endpoint.
func (s *LocalStore) GetPendingRecords(ctx context.Context) ([]models.AttendanceRecord, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE sync_status = ? ORDER BY course_id, date, student_id`, recordColumns)
	var rows []attendanceRow
	if err := db.SelectContext(ctx, &rows, query, models.SyncStatePending); err != nil {
		return nil, storageErr("get pending records", err)
	}
	return toModels(rows)
}

// MarkAsSynced flips the given pending records to synced. Unknown ids are skipped.
func (s *LocalStore) MarkAsSynced(ctx context.Context, ids []string) (int, error) {
	return s.updateEach(ctx, "mark as synced",
		`UPDATE attendance_records SET sync_status = ? WHERE id = ? AND sync_status = ?`,
		len(ids), func(i int) []interface{} {
			return []interface{}{models.SyncStateSynced, ids[i], models.SyncStatePending}
		})
}

// MarkAsSyncedIfUnchanged flips records to synced only while they still carry the timestamp
// they were read with, so a write that landed after the read stays pending.
func (s *LocalStore) MarkAsSyncedIfUnchanged(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	return s.updateEach(ctx, "mark as synced",
		`UPDATE attendance_records SET sync_status = ? WHERE id = ? AND sync_status = ? AND timestamp = ?`,
		len(records), func(i int) []interface{} {
			rec := records[i]
			return []interface{}{models.SyncStateSynced, rec.ID, models.SyncStatePending, rec.Timestamp.UTC().Format(timestampLayout)}
		})
}

// RecordFailedAttempt increments the retry counter of pending records after a failed upload.
func (s *LocalStore) RecordFailedAttempt(ctx context.Context, ids []string) (int, error) {
	return s.updateEach(ctx, "record failed attempt",
		`UPDATE attendance_records SET retry_count = retry_count + 1 WHERE id = ? AND sync_status = ?`,
		len(ids), func(i int) []interface{} {
			return []interface{}{ids[i], models.SyncStatePending}
		})
}

func (s *LocalStore) updateEach(ctx context.Context, op, query string, n int, args func(int) []interface{}) (int, error) {
	if n == 0 {
		return 0, nil
	}
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin "+op, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	total := 0
	for i := 0; i < n; i++ {
		res, err := tx.ExecContext(ctx, query, args(i)...)
		if err != nil {
			return 0, storageErr(op, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, storageErr(op, err)
		}
		total += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit "+op, err)
	}
	committed = true
	return total, nil
}

// GetSyncStatus counts pending and synced records; isOnline is echoed from the caller.
func (s *LocalStore) GetSyncStatus(ctx context.Context, isOnline bool) (models.SyncStatus, error) {
	status := models.SyncStatus{IsOnline: isOnline}
	db, err := s.handle()
	if err != nil {
		return status, err
	}
	var counts []struct {
		SyncStatus string `db:"sync_status"`
		Total      int    `db:"total"`
	}
	if err := db.SelectContext(ctx, &counts, `SELECT sync_status, COUNT(*) AS total FROM attendance_records GROUP BY sync_status`); err != nil {
		return status, storageErr("get sync status", err)
	}
	for _, c := range counts {
		switch models.SyncState(c.SyncStatus) {
		case models.SyncStatePending:
			status.Pending = c.Total
		case models.SyncStateSynced:
			status.Synced = c.Total
		}
	}
	return status, nil
}

// CleanupOldRecords deletes synced records older than the retention window. Pending
// records are never deleted, whatever their age.
func (s *LocalStore) CleanupOldRecords(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = models.DefaultRetention
	}
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-retention).UTC().Format(timestampLayout)
	res, err := db.ExecContext(ctx, `DELETE FROM attendance_records WHERE sync_status = ? AND timestamp < ?`, models.SyncStateSynced, cutoff)
	if err != nil {
		return 0, storageErr("cleanup old records", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("cleanup old records", err)
	}
	return int(deleted), nil
}

// ListRecords returns records matching the filter, newest first.
func (s *LocalStore) ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.CourseID != nil {
		where = append(where, "course_id = ?")
		args = append(args, *filter.CourseID)
	}
	if filter.Date != "" {
		where = append(where, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.SyncStatus != nil && filter.SyncStatus.Valid() {
		where = append(where, "sync_status = ?")
		args = append(args, *filter.SyncStatus)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 5000 {
		limit = 500
	}
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE %s ORDER BY timestamp DESC, id ASC LIMIT %d`,
		recordColumns, strings.Join(where, " AND "), limit)

	var rows []attendanceRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr("list records", err)
	}
	return toModels(rows)
}

func toModels(rows []attendanceRow) ([]models.AttendanceRecord, error) {
	records := make([]models.AttendanceRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toModel()
		if err != nil {
			return nil, storageErr("decode record", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
