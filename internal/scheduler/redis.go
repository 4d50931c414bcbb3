package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bindu/internal/logger"
)

// RedisConfig mirrors the teacher's cache.GoRedisConfig shape (same
// env-driven fields), adapted here from a cache client to a durable
// list-backed queue: internal/cache/go_redis.go's PoolSize/MinIdleConns/
// DialTimeout/ReadTimeout/WriteTimeout knobs, same github.com/redis/go-redis/v9
// client.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Redis holds task IDs in a single list per deployment: Enqueue is
// RPUSH, Dequeue is blocking LPOP via BLPOP with the caller's timeout,
// bounded connection pool shared across workers (spec §4.2).
type Redis struct {
	client *redis.Client
	key    string
	retry  RetryConfig
}

// RetryConfig governs exponential-backoff retry of transient Redis errors
// on both enqueue and dequeue (spec §4.2, §9).
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

// NewRedis connects to a Redis instance and returns a Scheduler backed by
// list key (one key per deployment holds every queued task ID).
func NewRedis(ctx context.Context, cfg RedisConfig, key string, retry RetryConfig) (*Redis, error) {
	if retry.Attempts <= 0 {
		retry.Attempts = 5
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 250 * time.Millisecond
	}

	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(opts)

	log := logger.WithComponent("scheduler.redis")
	delay := retry.BaseDelay
	var err error
	for attempt := 1; attempt <= retry.Attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			break
		}
		if attempt == retry.Attempts {
			return nil, fmt.Errorf("scheduler: connect to redis after %d attempts: %w", retry.Attempts, err)
		}
		log.Warn("redis connection attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		time.Sleep(delay)
		delay *= 2
	}

	if key == "" {
		key = "bindu:tasks"
	}
	return &Redis{client: client, key: key, retry: retry}, nil
}

func (r *Redis) Enqueue(ctx context.Context, taskID string) error {
	var err error
	delay := r.retry.BaseDelay
	for attempt := 1; attempt <= r.retry.Attempts; attempt++ {
		err = r.client.RPush(ctx, r.key, taskID).Err()
		if err == nil {
			return nil
		}
		if attempt == r.retry.Attempts || ctx.Err() != nil {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return fmt.Errorf("scheduler: enqueue: %w", err)
}

func (r *Redis) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	delay := r.retry.BaseDelay
	for attempt := 1; ; attempt++ {
		result, err := r.client.BLPop(ctx, timeout, r.key).Result()
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", false, err
			}
			if attempt >= r.retry.Attempts {
				return "", false, nil // retries exhausted: behave like a timeout, the worker polls again
			}
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			continue
		}
		// BLPOP returns [key, value]
		if len(result) < 2 {
			return "", false, nil
		}
		return result[1], true, nil
	}
}

func (r *Redis) Depth(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.key).Result()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Scheduler = (*Redis)(nil)
