package common

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/beam-cloud/toolshelf/pkg/types"
)

var ErrSubscriptionClosed = errors.New("redis subscription closed")

type RedisClient struct {
	redis.UniversalClient
}

type RedisOption func(*redis.UniversalOptions)

func WithClientName(name string) RedisOption {
	return func(opts *redis.UniversalOptions) {
		opts.ClientName = name
	}
}

func NewRedisClient(cfg types.RedisConfig, options ...RedisOption) (*RedisClient, error) {
	opts := &redis.UniversalOptions{
		Addrs:           cfg.Addrs,
		Username:        cfg.Username,
		Password:        cfg.Password,
		ClientName:      cfg.ClientName,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRedirects:    cfg.MaxRedirects,
		MaxRetries:      cfg.MaxRetries,
		RouteByLatency:  cfg.RouteByLatency,
	}
	for _, opt := range options {
		opt(opts)
	}

	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
	}

	var client redis.UniversalClient
	if cfg.Mode == types.RedisModeCluster {
		client = redis.NewClusterClient(opts.Cluster())
	} else {
		client = redis.NewClient(opts.Simple())
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisClient{UniversalClient: client}, nil
}

// Subscribe waits for the subscription to be confirmed, then forwards messages
// until ctx is done or the connection drops. Exactly one error is sent on exit.
func (r *RedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan *redis.Message, <-chan error) {
	msgs := make(chan *redis.Message)
	errs := make(chan error, 1)

	pubsub := r.UniversalClient.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		close(msgs)
		errs <- err
		return msgs, errs
	}

	go func() {
		defer close(msgs)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case msg, ok := <-ch:
				if !ok {
					errs <- ErrSubscriptionClosed
					return
				}
				select {
				case msgs <- msg:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return msgs, errs
}

// RedisLock hands out named locks backed by redislock.
type RedisLock struct {
	client *RedisClient
	locks  map[string]*redislock.Lock
	mu     sync.Mutex
}

type RedisLockOptions struct {
	TtlS       int
	Retries    int
	RetryDelay time.Duration // defaults to 100ms
}

func NewRedisLock(client *RedisClient) *RedisLock {
	return &RedisLock{
		client: client,
		locks:  make(map[string]*redislock.Lock),
	}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, opts RedisLockOptions) error {
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	retry := redislock.LimitRetry(redislock.LinearBackoff(delay), opts.Retries)

	lock, err := redislock.Obtain(ctx, l.client, key, time.Duration(opts.TtlS)*time.Second, &redislock.Options{
		RetryStrategy: retry,
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.locks[key] = lock
	l.mu.Unlock()
	return nil
}

func (l *RedisLock) Release(key string) error {
	l.mu.Lock()
	lock, ok := l.locks[key]
	delete(l.locks, key)
	l.mu.Unlock()

	if !ok {
		return redislock.ErrLockNotHeld
	}
	return lock.Release(context.Background())
}
