package runlease

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// ErrHeld is returned when the lease is already held by another run.
var ErrHeld = errors.New("run lease already held")

// Lease is a single-holder lease guarding a batch run against overlapping
// invocations. Release is safe to call after expiry.
type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

var Module = fx.Module("runlease",
	fx.Provide(New),
)

type redisLocker struct {
	locker *redislock.Client
}

func New(rdb *redis.Client) Locker {
	return &redisLocker{locker: redislock.New(rdb)}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	lock, err := l.locker.Obtain(ctx, key, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrHeld
	}
	if err != nil {
		return nil, err
	}
	return &redisLease{lock: lock}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l *redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if err == redislock.ErrLockNotHeld {
		return nil
	}
	return err
}
