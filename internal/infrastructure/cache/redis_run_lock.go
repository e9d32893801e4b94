package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/erp/claimsync/internal/domain/returns"
)

// releaseScript deletes the key only while it still holds the caller's token, so an
// expired lock re-acquired by another run is never released by the first owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock implements returns.RunLock using Redis
// This is suitable for distributed deployments where several instances
// may schedule runs for the same account
type RedisRunLock struct {
	client     *redis.Client
	ownsClient bool
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisRunLock connects to Redis and creates a run lock
func NewRedisRunLock(cfg RedisConfig) (*RedisRunLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRunLock{client: client, ownsClient: true}, nil
}

// NewRedisRunLockWithClient creates a lock with an existing Redis client
// Note: The caller retains ownership of the client and is responsible for closing it
func NewRedisRunLockWithClient(client *redis.Client) *RedisRunLock {
	return &RedisRunLock{client: client}
}

// Acquire takes the lock with SET NX PX and a random token
func (l *RedisRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock %s: %w", key, err)
	}
	if !ok {
		return nil, returns.ErrRunInProgress
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release run lock %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}

// Close closes the Redis client if this lock created it
func (l *RedisRunLock) Close() error {
	if !l.ownsClient {
		return nil
	}
	return l.client.Close()
}

// Ensure RedisRunLock implements RunLock
var _ returns.RunLock = (*RedisRunLock)(nil)

// Ping checks the Redis connection
func (l *RedisRunLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
