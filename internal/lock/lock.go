// Package lock holds per-job-type leases so two invocations of the same sync
// never walk pages concurrently.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"crmsync/internal/config"
)

const keyPrefix = "crmsync:lock:"

var (
	ErrLocked    = errors.New("lock is held by another holder")
	ErrLeaseLost = errors.New("lease expired and was taken over")
)

type Lease interface {
	// Extend resets the lease to ttl from now. It returns ErrLeaseLost when
	// the key no longer holds this lease's token.
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire returns ErrLocked when key is held and not expired.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

func Key(jobType string) string {
	return keyPrefix + strings.TrimSpace(jobType)
}

func New(ctx context.Context, cfg config.LockConfig) (Locker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return NewMemoryLocker(), nil
	case "none":
		return Noop{}, nil
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, errors.New("lock.redis_addr is required for the redis backend")
		}
		locker := NewRedisLocker(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := locker.Client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return locker, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Extend(context.Context, time.Duration) error { return nil }

func (noopLease) Release(context.Context) error { return nil }
