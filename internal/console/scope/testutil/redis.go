// Package testutil provides Redis for scope store integration tests
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisInstance is a Redis server reachable by tests
type RedisInstance struct {
	Container testcontainers.Container
	Addr      string
	Client    *redis.Client
}

// StartRedis returns a Redis for the test. REDIS_ADDR selects an existing
// server; otherwise a container is started. The test is skipped in short
// mode or when neither is available.
func StartRedis(ctx context.Context, t *testing.T) *RedisInstance {
	t.Helper()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		inst, err := connect(ctx, addr)
		if err != nil {
			t.Skipf("Redis at REDIS_ADDR not reachable: %v", err)
		}
		return inst
	}

	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Redis container not available: %v", err)
	}

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get Redis endpoint: %v", err)
	}

	inst, err := connect(ctx, addr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to connect to Redis container: %v", err)
	}
	inst.Container = container
	return inst
}

func connect(ctx context.Context, addr string) (*RedisInstance, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisInstance{Addr: addr, Client: client}, nil
}

// Terminate closes the client and stops the container, if one was started
func (r *RedisInstance) Terminate(ctx context.Context) error {
	if r.Client != nil {
		r.Client.Close()
	}
	if r.Container != nil {
		return r.Container.Terminate(ctx)
	}
	return nil
}
