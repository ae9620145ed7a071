package models

import "time"

// SyncTrigger names what caused a sync attempt.
type SyncTrigger string

const (
	TriggerStartup      SyncTrigger = "startup"
	TriggerReconnect    SyncTrigger = "connectivity_restored"
	TriggerInterval     SyncTrigger = "interval"
	TriggerManual       SyncTrigger = "manual"
	TriggerRetryBackoff SyncTrigger = "retry"
)

// SyncResult summarises one call to the sync operation.
//
// Success stays true when individual groups fail; their outcome is in Groups and
// the records remain pending for the next cycle.
type SyncResult struct {
	CycleID  string        `json:"cycleId,omitempty"`
	Success  bool          `json:"success"`
	Synced   int           `json:"synced"`
	Message  string        `json:"message,omitempty"`
	Groups   []GroupResult `json:"groups,omitempty"`
	Started  time.Time     `json:"startedAt"`
	Finished time.Time     `json:"finishedAt"`
}

// FailedGroups counts groups whose upload did not succeed.
func (r SyncResult) FailedGroups() int {
	failed := 0
	for _, g := range r.Groups {
		if !g.Success {
			failed++
		}
	}
	return failed
}

// GroupResult records the outcome of uploading one course/date batch.
type GroupResult struct {
	CourseID int64  `json:"courseId"`
	Date     string `json:"date"`
	Records  int    `json:"records"`
	Synced   int    `json:"synced"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// ConnectivityEvent is emitted when the online flag changes.
type ConnectivityEvent struct {
	Online     bool      `json:"online"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observedAt"`
}
