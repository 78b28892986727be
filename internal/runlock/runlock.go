// Package runlock keeps two runs from processing the same AOI at once.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/properties"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("AOI is locked by another run")

const keyPrefix = "planet-ndvi:run:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// backend is the part of redis.Client the locker uses.
type backend interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// Client wraps Redis client
type Client struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg properties.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Locker returns a locker whose locks expire after ttl.
func (c *Client) Locker(ttl time.Duration) *Locker {
	return &Locker{rdb: c.client, TTL: ttl}
}

type Locker struct {
	rdb backend
	TTL time.Duration
}

// Lock is a held AOI lock.
type Lock struct {
	key    string
	token  string
	locker *Locker
}

// Acquire takes the lock for aoi or returns ErrLocked.
func (l *Locker) Acquire(ctx context.Context, aoi string) (*Lock, error) {
	lock := &Lock{key: keyPrefix + aoi, token: uuid.NewString(), locker: l}
	ok, err := l.rdb.SetNX(ctx, lock.key, lock.token, l.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lock AOI %s: %w", aoi, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, aoi)
	}
	slog.Info("AOI lock acquired", "aoi", aoi, "ttl", l.TTL)
	return lock, nil
}

// Release drops the lock unless it already expired and was taken by
// someone else.
func (lock *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lock.locker.rdb, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release %s: %w", lock.key, err)
	}
	if n == 0 {
		slog.Warn("AOI lock was lost before release", "key", lock.key)
	}
	return nil
}
