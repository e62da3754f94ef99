// Package redislock provides a distributed per-fingerprint creation lock and
// a best-effort cross-process runner-activity cache, backed by Redis. It
// generalizes the in-process per-fingerprint mutex RunnerManager uses by
// default (spec §5: "guarded by a per-fingerprint mutex") to the multi-process
// deployment case, where two processes racing on the same config fingerprint
// must still serialize runner creation.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if it still holds the token this
// process set, so a lock that expired and was re-acquired by someone else is
// never released out from under them.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Options configures a Locker.
type Options struct {
	// Redis is the connection used for locking and the activity cache.
	// Required.
	Redis *redis.Client
	// KeyPrefix namespaces lock and activity keys. Defaults to "af:runner:".
	KeyPrefix string
	// LockTTL bounds how long a held lock survives without being refreshed
	// or released, guarding against a crashed holder wedging the fingerprint
	// forever. Defaults to 10s.
	LockTTL time.Duration
}

// Locker implements a per-fingerprint distributed mutex plus a
// last-activity cache, for deployments running more than one RunnerManager
// process against the same fingerprint space.
type Locker struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// New constructs a Locker. Returns an error if opts.Redis is nil.
func New(opts Options) (*Locker, error) {
	if opts.Redis == nil {
		return nil, errors.New("redislock: redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "af:runner:"
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{redis: opts.Redis, prefix: prefix, ttl: ttl}, nil
}

// Lease is a held lock; callers must call Release when the critical section
// (typically get_or_create_runner for one fingerprint) completes.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire blocks (polling) until it holds the lock for fingerprint hash, or
// ctx is canceled. It uses SET NX PX under the hood so only one waiter
// across all processes proceeds at a time.
func (l *Locker) Acquire(ctx context.Context, hash string) (*Lease, error) {
	key := l.prefix + "lock:" + hash
	token := uuid.NewString()
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redislock: acquire %s: %w", hash, err)
		}
		if ok {
			return &Lease{locker: l, key: key, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release deletes the lock only if this lease still owns it, via a Lua
// script executed atomically against Redis.
func (lease *Lease) Release(ctx context.Context) error {
	_, err := lease.locker.redis.Eval(ctx, releaseScript, []string{lease.key}, lease.token).Result()
	if err != nil {
		return fmt.Errorf("redislock: release %s: %w", lease.key, err)
	}
	return nil
}

// MarkActivity records runnerID's last-activity timestamp in a shared cache
// so other processes' idle sweepers observe activity seen elsewhere. This is
// best-effort: a failed write only degrades idle-detection accuracy, it
// never blocks the caller's critical path.
func (l *Locker) MarkActivity(ctx context.Context, runnerID string, at time.Time) {
	key := l.prefix + "activity:" + runnerID
	_ = l.redis.Set(ctx, key, at.UnixNano(), 2*l.ttl).Err()
}

// LastActivity reads the shared last-activity timestamp for runnerID, if
// any process has recorded one within the cache's TTL window.
func (l *Locker) LastActivity(ctx context.Context, runnerID string) (time.Time, bool) {
	key := l.prefix + "activity:" + runnerID
	val, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, val), true
}
