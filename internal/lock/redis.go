package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an expired
// lock taken over by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript renews the TTL only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker shared by every process using the same Redis. The TTL
// bounds how long a crashed holder can block others; a live holder renews it
// every ttl/3 until it unlocks.
type RedisLocker struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	poll    time.Duration
	refresh time.Duration
}

// NewRedisLocker returns a locker that namespaces keys under prefix.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:     ttl,
		poll:    50 * time.Millisecond,
		refresh: ttl / 3,
	}
}

// Lock polls SET NX until it wins or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	full := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, full, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", full, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.poll):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(full, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release must not depend on the caller's context, which may be done.
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			// On failure the TTL frees the key eventually.
			_ = releaseScript.Run(ctx, r.client, []string{full}, token).Err()
		})
	}, nil
}

// keepAlive renews the lease until stop is closed or the key is lost.
func (r *RedisLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.refresh)
			n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				// Expired or taken over; nothing left to renew.
				return
			}
			// A transient error is retried on the next tick while the TTL still runs.
		}
	}
}

// Ping checks connectivity.
func (r *RedisLocker) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
