// Package locks provides cross-process mutual exclusion backed by redis.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired indicates another holder owns the lock.
var ErrNotAcquired = errors.New("platform/locks: lock not acquired")

// Locker runs fn while holding the named lock.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Options tunes lock acquisition.
type Options struct {
	Expiry time.Duration
	Tries  int
}

// RedisLocker implements Locker on top of redsync.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts Options
}

// NewRedisLocker wires a redsync pool over the shared redis client.
func NewRedisLocker(client *redis.Client, opts Options) *RedisLocker {
	if opts.Expiry <= 0 {
		opts.Expiry = 30 * time.Second
	}
	if opts.Tries <= 0 {
		opts.Tries = 1
	}
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

// WithLock acquires key, runs fn and releases the lock. A busy lock yields ErrNotAcquired.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
	}
	defer func() {
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// Noop runs fn without any coordination. Used when redis is not configured.
type Noop struct{}

// WithLock implements Locker.
func (Noop) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}
