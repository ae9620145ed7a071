package models

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the ISO-8601 calendar date format used for attendance sessions.
const DateLayout = "2006-01-02"

// DefaultRetention is how long synced records are kept locally.
const DefaultRetention = 7 * 24 * time.Hour

// SyncState tracks whether a record has been acknowledged by the remote authority.
type SyncState string

const (
	SyncStatePending SyncState = "pending"
	SyncStateSynced  SyncState = "synced"
)

// Valid returns true when the state is a supported value.
func (s SyncState) Valid() bool {
	switch s {
	case SyncStatePending, SyncStateSynced:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one student's mark for one course session, as held by the local store.
type AttendanceRecord struct {
	ID         string    `json:"id"`
	CourseID   int64     `json:"courseId"`
	Date       string    `json:"date"`
	StudentID  int64     `json:"studentId"`
	Status     string    `json:"status"`
	SyncStatus SyncState `json:"syncStatus"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retryCount"`
}

// RecordID builds the deterministic key for a (course, date, student) triple.
func RecordID(courseID int64, date string, studentID int64) string {
	return fmt.Sprintf("%d-%s-%d", courseID, date, studentID)
}

// Key returns the batch key the record belongs to.
func (r AttendanceRecord) Key() BatchKey {
	return BatchKey{CourseID: r.CourseID, Date: r.Date}
}

// BatchKey identifies one attendance sheet: a course on a date.
type BatchKey struct {
	CourseID int64  `json:"courseId"`
	Date     string `json:"date"`
}

// String renders the key for logs and metrics labels.
func (k BatchKey) String() string {
	return fmt.Sprintf("%d/%s", k.CourseID, k.Date)
}

// RecordGroup is the set of pending records uploaded together as one batch.
type RecordGroup struct {
	Key     BatchKey
	Records []AttendanceRecord
}

// GroupByBatch partitions records by course and date, ordered by course then date.
func GroupByBatch(records []AttendanceRecord) []RecordGroup {
	index := make(map[BatchKey]int)
	groups := make([]RecordGroup, 0)
	for _, rec := range records {
		key := rec.Key()
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, RecordGroup{Key: key})
		}
		groups[pos].Records = append(groups[pos].Records, rec)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Key.CourseID != groups[j].Key.CourseID {
			return groups[i].Key.CourseID < groups[j].Key.CourseID
		}
		return groups[i].Key.Date < groups[j].Key.Date
	})
	return groups
}

// Batch builds the upload payload for the group.
func (g RecordGroup) Batch() AttendanceBatch {
	data := make(map[string]string, len(g.Records))
	for _, rec := range g.Records {
		data[fmt.Sprintf("%d", rec.StudentID)] = rec.Status
	}
	return AttendanceBatch{Course: g.Key.CourseID, Date: g.Key.Date, AttendanceData: data}
}

// IDs lists the record ids in the group.
func (g RecordGroup) IDs() []string {
	ids := make([]string, len(g.Records))
	for i, rec := range g.Records {
		ids[i] = rec.ID
	}
	return ids
}

// AttendanceBatch is the request body accepted by the remote sync endpoint.
type AttendanceBatch struct {
	Course         int64             `json:"course"`
	Date           string            `json:"date"`
	AttendanceData map[string]string `json:"attendance_data"`
}

// BatchAck is the remote endpoint's response to a batch.
type BatchAck struct {
	Success bool   `json:"success"`
	Created int    `json:"created,omitempty"`
	Updated int    `json:"updated,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// SyncStatus is the observable status surface consumed by UI indicators.
type SyncStatus struct {
	Pending  int  `json:"pending"`
	Synced   int  `json:"synced"`
	IsOnline bool `json:"isOnline"`
}

// RecordFilter scopes diagnostic listings of local records.
type RecordFilter struct {
	CourseID   *int64
	Date       string
	SyncStatus *SyncState
	Limit      int
}
