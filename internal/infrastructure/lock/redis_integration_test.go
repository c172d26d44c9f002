//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLeaseManager(t *testing.T) {
	client := newRedisClient(t)
	leases := NewRedisLeaseManager(redislock.New(client), 300*time.Millisecond, 10*time.Millisecond, zap.NewNop())
	ctx := context.Background()
	key := "feeledger:student:it"

	held, err := leases.Acquire(ctx, key)
	require.NoError(t, err)

	// outlives the TTL thanks to refresh
	time.Sleep(500 * time.Millisecond)
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = leases.Acquire(waitCtx, key)
	assert.ErrorIs(t, err, shared.ErrLeaseNotObtained)

	require.NoError(t, held.Release(ctx))

	next, err := leases.Acquire(ctx, key)
	require.NoError(t, err)
	require.NoError(t, next.Release(ctx))
}
