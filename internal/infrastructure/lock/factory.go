package lock

import (
	"fmt"

	"github.com/bsm/redislock"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// New returns the lease manager selected by cfg.Driver.
// The redis driver requires a connected client.
func New(cfg config.LockConfig, client redis.UniversalClient, logger *zap.Logger) (shared.LeaseManager, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryLeaseManager(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("lock driver redis requires a redis client")
		}
		return NewRedisLeaseManager(redislock.New(client), cfg.TTL, cfg.RetryEvery, logger), nil
	default:
		return nil, fmt.Errorf("unknown lock driver %q", cfg.Driver)
	}
}
