package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/feeledger/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RedisLeaseManager hands out leases backed by Redis keys, shared by every
// server instance. A held lease is refreshed at half its TTL so long period
// closes do not lose it; a crashed holder's lease expires after TTL.
type RedisLeaseManager struct {
	locker     *redislock.Client
	ttl        time.Duration
	retryEvery time.Duration
	logger     *zap.Logger
}

// NewRedisLeaseManager creates a manager on a redislock client
func NewRedisLeaseManager(locker *redislock.Client, ttl, retryEvery time.Duration, logger *zap.Logger) *RedisLeaseManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLeaseManager{locker: locker, ttl: ttl, retryEvery: retryEvery, logger: logger}
}

// Acquire retries every retryEvery until the key is obtained or ctx is done
func (m *RedisLeaseManager) Acquire(ctx context.Context, key string) (shared.Lease, error) {
	l, err := m.locker.Obtain(ctx, key, m.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(m.retryEvery),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, shared.ErrLeaseNotObtained.WithDetail("key", key)
	}
	if err != nil {
		return nil, shared.NewStorageError("obtain lease", err)
	}

	lease := &redisLease{lock: l, key: key, logger: m.logger, stop: make(chan struct{})}
	lease.wg.Add(1)
	go lease.keepAlive(m.ttl)
	return lease, nil
}

type redisLease struct {
	lock     *redislock.Lock
	key      string
	logger   *zap.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
	released sync.Once
}

func (l *redisLease) keepAlive(ttl time.Duration) {
	defer l.wg.Done()
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if err := l.lock.Refresh(context.Background(), ttl, nil); err != nil {
				l.logger.Warn("Failed to refresh lease", zap.String("key", l.key), zap.Error(err))
				return
			}
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	var err error
	l.released.Do(func() {
		close(l.stop)
		l.wg.Wait()
		err = l.lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// expired while held; nothing left to release
			l.logger.Warn("Lease expired before release", zap.String("key", l.key))
			err = nil
		}
	})
	if err != nil {
		return shared.NewStorageError("release lease", err)
	}
	return nil
}

var _ shared.LeaseManager = (*RedisLeaseManager)(nil)
