// Package queue provides a Redis-backed wake-up channel between the API
// enqueue path and the delivery worker. The database remains the queue of
// record; Redis only shortens the worker's idle latency by nudging it the
// moment a message is enqueued. If Redis is unavailable the worker degrades
// to plain interval polling.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// nudgeKey is the Redis list the producer pushes to and the worker blocks on.
const nudgeKey = "wadispatch:nudge"

// maxPendingNudges caps the list length so a stalled worker does not let
// nudges accumulate without bound.
const maxPendingNudges = 1000

// Notifier wakes the delivery worker after a message is enqueued.
type Notifier struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewNotifier creates a Notifier backed by the given Redis client.
func NewNotifier(client *redis.Client, log zerolog.Logger) *Notifier {
	return &Notifier{client: client, log: log}
}

// Notify pushes a wake-up token. Failures are logged and swallowed: the
// worker's poll interval covers for a lost nudge.
func (n *Notifier) Notify(ctx context.Context) {
	pipe := n.client.Pipeline()
	pipe.LPush(ctx, nudgeKey, "1")
	pipe.LTrim(ctx, nudgeKey, 0, maxPendingNudges-1)
	if _, err := pipe.Exec(ctx); err != nil {
		n.log.Warn().Err(err).Msg("failed to nudge delivery worker")
	}
}

// Waiter blocks the delivery worker between polls until either a nudge
// arrives or the idle timeout elapses.
type Waiter struct {
	client *redis.Client
}

// NewWaiter creates a Waiter backed by the given Redis client.
func NewWaiter(client *redis.Client) *Waiter {
	return &Waiter{client: client}
}

// Wait blocks until a nudge arrives, the timeout elapses, or ctx is
// cancelled. A Redis error other than an empty pop falls back to sleeping
// out the remainder of the timeout so a Redis outage cannot spin the worker.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) error {
	start := time.Now()

	_, err := w.client.BLPop(ctx, timeout, nudgeKey).Result()
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	remaining := timeout - time.Since(start)
	if remaining > 0 {
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("blpop %s: %w", nudgeKey, err)
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}
