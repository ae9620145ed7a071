package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
)

// StatusSink receives every published status snapshot.
type StatusSink interface {
	PublishStatus(ctx context.Context, status models.SyncStatus) error
}

type namedSink struct {
	name string
	sink StatusSink
}

// StatusHub fans status snapshots out to sinks and live subscribers.
type StatusHub struct {
	logger *zap.Logger

	mu        sync.RWMutex
	sinks     []namedSink
	subs      map[int]chan models.SyncStatus
	nextSubID int
	latest    models.SyncStatus
	hasLatest bool
}

// NewStatusHub constructs an empty hub.
func NewStatusHub(logger *zap.Logger) *StatusHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHub{logger: logger, subs: make(map[int]chan models.SyncStatus)}
}

// AddSink registers a sink. Nil sinks are ignored.
func (h *StatusHub) AddSink(name string, sink StatusSink) {
	if sink == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, namedSink{name: name, sink: sink})
}

// Publish records the snapshot and delivers it. Sink failures are logged and do not
// stop delivery to the others; slow subscribers miss snapshots instead of blocking.
func (h *StatusHub) Publish(ctx context.Context, status models.SyncStatus) {
	h.mu.Lock()
	h.latest = status
	h.hasLatest = true
	sinks := append([]namedSink(nil), h.sinks...)
	for _, ch := range h.subs {
		select {
		case ch <- status:
		default:
		}
	}
	h.mu.Unlock()

	for _, s := range sinks {
		if err := s.sink.PublishStatus(ctx, status); err != nil {
			h.logger.Warn("status sink failed", zap.String("sink", s.name), zap.Error(err))
		}
	}
}

// Latest returns the last published snapshot.
func (h *StatusHub) Latest() (models.SyncStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.hasLatest
}

// Subscribe returns a channel of future snapshots and a cancel func that closes it.
func (h *StatusHub) Subscribe(buffer int) (<-chan models.SyncStatus, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan models.SyncStatus, buffer)

	h.mu.Lock()
	id := h.nextSubID
	h.nextSubID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
