package scanlock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"qrm-ticketing/internal/logger"
)

// RedisClient is the slice of redis used by the lock; *redis.Client
// satisfies it.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only while the caller still owns it, in one
// round trip. A lock that expired and was re-taken by another device is left
// alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) end return 0`

// Lock is a redis-backed per-payload mutex for door scans. With several
// scanner devices pointed at one store, it keeps two scans of the same
// ticket from racing into the store at the same instant; the store
// transaction stays the correctness backstop.
type Lock struct {
	Client RedisClient
	Logger *logger.Logger
	TTL    time.Duration
}

func NewLock(client RedisClient, log *logger.Logger, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Lock{Client: client, Logger: log, TTL: ttl}
}

func key(payload string) string {
	return "scan_lock:" + payload
}

// Acquire takes the lock for the payload. Returns false without error when
// another owner already holds it.
func (l *Lock) Acquire(ctx context.Context, payload, owner string) (bool, error) {
	ok, err := l.Client.SetNX(ctx, key(payload), owner, l.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire scan lock: %w", err)
	}
	if !ok && l.Logger != nil {
		l.Logger.Warn("LOCK", fmt.Sprintf("scan lock contended for %s", payload))
	}
	return ok, nil
}

// Release frees the lock only if this owner still holds it. The ownership
// check and the delete run as one script so the lock cannot change hands
// between them.
func (l *Lock) Release(ctx context.Context, payload, owner string) error {
	err := l.Client.Eval(ctx, releaseScript, []string{key(payload)}, owner).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release scan lock: %w", err)
	}
	return nil
}
