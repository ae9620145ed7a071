package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/attendance-offline-sync/pkg/config"
)

const (
	dialTimeout = 2 * time.Second
	ioTimeout   = time.Second
	pingTimeout = 3 * time.Second
)

// Addr returns host:port for cfg.
func Addr(cfg config.StatusRedisConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// NewRedis connects to the Redis instance that receives status snapshots. Timeouts are
// short because publication is best effort and must never stall a sync cycle.
func NewRedis(ctx context.Context, cfg config.StatusRedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         Addr(cfg),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   "attendance-agent",
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		MaxRetries:   1,
		PoolSize:     2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", Addr(cfg), err)
	}
	return client, nil
}
