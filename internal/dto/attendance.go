package dto

// SaveAttendanceRequest is one attendance sheet as submitted by the UI. Its shape matches
// the batch accepted by the remote endpoint.
type SaveAttendanceRequest struct {
	Course         int64             `json:"course" binding:"required,gt=0"`
	Date           string            `json:"date" binding:"required"`
	AttendanceData map[string]string `json:"attendance_data" binding:"required"`
}

// SaveAttendanceResponse reports how many entries were recorded.
type SaveAttendanceResponse struct {
	Written int  `json:"written"`
	Offline bool `json:"offline"`
}

// RecordListRequest captures query filters for local record listings.
type RecordListRequest struct {
	CourseID   *int64
	Date       string
	SyncStatus string
	Limit      int
	Format     string
}
