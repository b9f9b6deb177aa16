package suite

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
)

const (
	containerExpireSeconds = 120
	maxWaitDuration        = 120 * time.Second
)

const (
	redisPort  = "6379/tcp"
	redisImage = "redis"
	redisTag   = "alpine"
)

// Suite carries the redis-backed test environment. Every test gets a flushed
// database inside a throwaway container.
type Suite struct {
	*testing.T
	Logger *slog.Logger

	Storage *redis.Client
}

func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}
	pool.MaxWait = maxWaitDuration

	resource := startRedis(t, pool)

	redisClient := connect(ctx, t, pool, resource)

	if err = redisClient.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush database: %v", err)
	}

	return ctx, &Suite{
		T:       t,
		Logger:  logger,
		Storage: redisClient,
	}
}

// RequireTTL - asserts the key exists and expires within the given bound.
// Checkpoint keys must always age out on their own.
func (that *Suite) RequireTTL(ctx context.Context, key string, max time.Duration) {
	that.Helper()

	ttl, err := that.Storage.TTL(ctx, key).Result()
	if err != nil {
		that.Fatalf("could not read TTL for %s: %v", key, err)
	}

	if ttl <= 0 {
		that.Fatalf("key %s has no expiry (ttl=%v)", key, ttl)
	}

	if ttl > max {
		that.Fatalf("key %s expires too late: %v > %v", key, ttl, max)
	}
}

func startRedis(t *testing.T, pool *dockertest.Pool) *dockertest.Resource {
	t.Helper()

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
	}, func(config *docker.HostConfig) {
		// a stopped container goes away by itself
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start resource: %v", err)
	}

	// hard kill the container even if the test process dies
	_ = resource.Expire(containerExpireSeconds)

	t.Cleanup(func() {
		if err = pool.Purge(resource); err != nil {
			t.Fatalf("could not purge resource: %v", err)
		}
	})

	return resource
}

// connect retries because the container might not accept connections yet.
func connect(ctx context.Context, t *testing.T, pool *dockertest.Pool, resource *dockertest.Resource) *redis.Client {
	t.Helper()

	var client *redis.Client

	if err := pool.Retry(func() error {
		client = redis.NewClient(&redis.Options{
			Addr: resource.GetHostPort(redisPort),
		})
		return client.Ping(ctx).Err()
	}); err != nil {
		t.Fatalf("could not connect to redis: %v", err)
	}

	return client
}
