// cartstore/redis_cartstore.go

package cartstore

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultMaxAttempts = 30

// RedisCartStore is a cart store backed by Redis. Values are plain strings
// under their key.
type RedisCartStore struct {
	client      *redis.Client
	log         logrus.FieldLogger
	maxAttempts uint64
	ttl         time.Duration
}

// RedisOption configures a RedisCartStore.
type RedisOption func(*RedisCartStore)

// WithRedisLogger sets the logger used while connecting.
func WithRedisLogger(log logrus.FieldLogger) RedisOption {
	return func(r *RedisCartStore) { r.log = log }
}

// WithMaxAttempts bounds the number of pings Initialize makes.
func WithMaxAttempts(n uint64) RedisOption {
	return func(r *RedisCartStore) { r.maxAttempts = n }
}

// WithTTL expires saved carts after d. Zero keeps them forever.
func WithTTL(d time.Duration) RedisOption {
	return func(r *RedisCartStore) { r.ttl = d }
}

// NewRedisCartStore accepts a Redis address ("hostname:port" or a redis:// URL)
// and returns a store instance.
func NewRedisCartStore(redisAddr string, opts ...RedisOption) *RedisCartStore {
	options, err := redis.ParseURL(redisAddr)
	if err != nil {
		// Not a redis:// URL, use it as a plain address.
		options = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			MaxRetries:   3,
			DialTimeout:  30 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}

	client := redis.NewClient(options)
	client.AddHook(redisotel.NewTracingHook())

	discard := logrus.New()
	discard.Out = io.Discard

	r := &RedisCartStore{
		client:      client,
		log:         discard,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize waits for Redis to answer a ping, backing off exponentially.
func (r *RedisCartStore) Initialize(ctx context.Context) error {
	r.log.Info("RedisCartStore: initializing connection")

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		if r.Ping(ctx) {
			return nil
		}
		return errors.Errorf("ping failed on attempt %d", attempt)
	}
	notify := func(err error, wait time.Duration) {
		r.log.WithError(err).Warnf("RedisCartStore: waiting %v before next attempt", wait)
	}

	var b backoff.BackOff = eb
	if r.maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, r.maxAttempts-1)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return errors.Wrapf(err, "connect to redis after %d attempts", attempt)
	}
	r.log.Infof("RedisCartStore: ping successful on attempt %d", attempt)
	return nil
}

// Get returns the value under key.
func (r *RedisCartStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis GET %s", key)
	}
	return val, nil
}

// Set stores value under key.
func (r *RedisCartStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis SET %s", key)
	}
	return nil
}

// Delete removes key.
func (r *RedisCartStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "redis DEL %s", key)
	}
	return nil
}

// Ping checks if Redis is alive.
func (r *RedisCartStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.log.WithError(err).Debug("RedisCartStore: ping failed")
		return false
	}
	return true
}

// Close releases the underlying connection pool.
func (r *RedisCartStore) Close() error {
	return r.client.Close()
}
