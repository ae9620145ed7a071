package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-offline-sync/internal/dto"
	"github.com/noah-isme/attendance-offline-sync/internal/models"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
)

func parseQueryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseRecordList(c *gin.Context) (dto.RecordListRequest, error) {
	req := dto.RecordListRequest{
		Date:       strings.TrimSpace(c.Query("date")),
		SyncStatus: strings.TrimSpace(c.Query("syncStatus")),
		Limit:      parseQueryInt(c, "limit", 500),
		Format:     c.Query("format"),
	}
	if raw := strings.TrimSpace(c.Query("course")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return req, appErrors.Clone(appErrors.ErrValidation, "course must be a positive integer")
		}
		req.CourseID = &id
	}
	if req.SyncStatus != "" && !models.SyncState(req.SyncStatus).Valid() {
		return req, appErrors.Clone(appErrors.ErrValidation, "syncStatus must be pending or synced")
	}
	return req, nil
}

func recordFilter(req dto.RecordListRequest) models.RecordFilter {
	filter := models.RecordFilter{CourseID: req.CourseID, Date: req.Date, Limit: req.Limit}
	if req.SyncStatus != "" {
		state := models.SyncState(req.SyncStatus)
		filter.SyncStatus = &state
	}
	return filter
}
