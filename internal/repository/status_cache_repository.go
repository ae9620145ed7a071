package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	appErrors "github.com/noah-isme/attendance-offline-sync/pkg/errors"
)

// StatusCacheRepository mirrors status snapshots into Redis: the latest snapshot under a key
// for pollers and every snapshot on a pub/sub channel for live consumers.
type StatusCacheRepository struct {
	client  *redis.Client
	key     string
	channel string
	ttl     time.Duration
	logger  *zap.Logger
}

// NewStatusCacheRepository constructs the repository. A nil client turns every call into a no-op.
func NewStatusCacheRepository(client *redis.Client, key, channel string, logger *zap.Logger) *StatusCacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusCacheRepository{client: client, key: key, channel: channel, ttl: 24 * time.Hour, logger: logger}
}

// PublishStatus stores and broadcasts the snapshot.
func (r *StatusCacheRepository) PublishStatus(ctx context.Context, status models.SyncStatus) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	if r.key != "" {
		if err := r.client.Set(ctx, r.key, payload, r.ttl).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", r.key, err)
		}
	}
	if r.channel != "" {
		if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", r.channel, err)
		}
	}
	return nil
}

// LatestStatus reads the last stored snapshot.
func (r *StatusCacheRepository) LatestStatus(ctx context.Context) (models.SyncStatus, error) {
	var status models.SyncStatus
	if r.client == nil || r.key == "" {
		return status, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return status, appErrors.ErrCacheMiss
		}
		return status, fmt.Errorf("redis get %s: %w", r.key, err)
	}

	if err := json.Unmarshal(raw, &status); err != nil {
		return status, fmt.Errorf("unmarshal status for %s: %w", r.key, err)
	}
	return status, nil
}

// Close releases the underlying Redis connection if present.
func (r *StatusCacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
