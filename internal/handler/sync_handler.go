package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-offline-sync/internal/dto"
	"github.com/noah-isme/attendance-offline-sync/internal/models"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
	"github.com/noah-isme/attendance-offline-sync/pkg/response"
)

type syncService interface {
	SyncPendingRecords(ctx context.Context) models.SyncResult
	Status(ctx context.Context) (models.SyncStatus, error)
	PublishStatus(ctx context.Context)
}

type statusStream interface {
	Subscribe(buffer int) (<-chan models.SyncStatus, func())
}

type connectivityController interface {
	IsOnline() bool
	SetOnline(online bool, source string) bool
}

type retentionRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

// SyncHandler exposes sync control, status and maintenance endpoints.
type SyncHandler struct {
	sync         syncService
	stream       statusStream
	connectivity connectivityController
	retention    retentionRunner
}

// NewSyncHandler constructs the handler. sync and retention are nil when running without a local store.
func NewSyncHandler(sync syncService, stream statusStream, connectivity connectivityController, retention retentionRunner) *SyncHandler {
	return &SyncHandler{sync: sync, stream: stream, connectivity: connectivity, retention: retention}
}

func (h *SyncHandler) storeless(c *gin.Context) bool {
	if h.sync == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrStorageUnavailable, "offline storage is disabled"))
		return true
	}
	return false
}

// Sync godoc
// @Summary Upload pending records now
// @Description Returns success=false without contacting the endpoint when offline or when a sync is already running.
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /sync [post]
func (h *SyncHandler) Sync(c *gin.Context) {
	if h.storeless(c) {
		return
	}
	result := h.sync.SyncPendingRecords(c.Request.Context())
	h.sync.PublishStatus(c.Request.Context())
	status := http.StatusOK
	switch {
	case result.Success:
	case result.CycleID == "":
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	response.JSON(c, status, result)
}

// Status godoc
// @Summary Current sync status
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sync/status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	if h.storeless(c) {
		return
	}
	status, err := h.sync.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

// Stream godoc
// @Summary Stream status snapshots as server-sent events
// @Tags Sync
// @Produce text/event-stream
// @Success 200
// @Router /sync/status/stream [get]
func (h *SyncHandler) Stream(c *gin.Context) {
	if h.storeless(c) {
		return
	}
	ch, cancel := h.stream.Subscribe(8)
	defer cancel()

	if status, err := h.sync.Status(c.Request.Context()); err == nil {
		c.SSEvent("status", status)
		c.Writer.Flush()
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case status, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("status", status)
			return true
		}
	})
}

// SetConnectivity godoc
// @Summary Report a connectivity transition
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body dto.ConnectivityRequest true "Connectivity state"
// @Success 200 {object} response.Envelope
// @Router /connectivity [put]
func (h *SyncHandler) SetConnectivity(c *gin.Context) {
	var req dto.ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "online flag is required"))
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "api"
	}
	changed := h.connectivity.SetOnline(*req.Online, source)
	response.JSON(c, http.StatusOK, dto.ConnectivityResponse{Online: h.connectivity.IsOnline(), Changed: changed})
}

// Cleanup godoc
// @Summary Purge synced records past the retention window
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/cleanup [post]
func (h *SyncHandler) Cleanup(c *gin.Context) {
	if h.retention == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrStorageUnavailable, "offline storage is disabled"))
		return
	}
	deleted, err := h.retention.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CleanupResponse{Deleted: deleted})
}
