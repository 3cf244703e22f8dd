package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLocker shares leases across instances through Redis. Acquire is a
// single SET NX PX; refresh and release compare the token first.
type RedisLocker struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisLocker connects to Redis and verifies the connection
func NewRedisLocker(cfg config.RedisConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisLockerWithClient(client, ""), nil
}

// NewRedisLockerWithClient creates a locker with an existing client
func NewRedisLockerWithClient(client *redis.Client, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "partsync:lease:"
	}
	return &RedisLocker{client: client, keyPrefix: keyPrefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	lease := newLease(key, ttl)
	ok, err := l.client.SetNX(ctx, l.keyPrefix+key, lease.Token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return lease, true, nil
}

func (l *RedisLocker) Refresh(ctx context.Context, lease *Lease) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.keyPrefix + lease.Key}, lease.Token, lease.TTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh lease %s: %w", lease.Key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *RedisLocker) Release(ctx context.Context, lease *Lease) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.keyPrefix + lease.Key}, lease.Token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", lease.Key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *RedisLocker) Held(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, l.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lease %s: %w", key, err)
	}
	return n > 0, nil
}

// Close closes the Redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

var _ Locker = (*RedisLocker)(nil)
