// Package redisqueue implements the domain.Queue port over a Redis list.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// listKey is the name of the FIFO list events move through between Intake
// and the Worker Pool.
const listKey = "event_queue"

// Queue pushes and pops encoded events on a single Redis list, using RPush
// for producers and BLPop for consumers so the list behaves as a FIFO.
type Queue struct {
	client     *redis.Client
	popTimeout time.Duration
}

// New constructs a Queue bound to an existing Redis client.
func New(client *redis.Client, popTimeout time.Duration) *Queue {
	if popTimeout <= 0 {
		popTimeout = time.Second
	}
	return &Queue{client: client, popTimeout: popTimeout}
}

// Push appends a batch of encoded events onto the list in one round trip.
// It is all-or-nothing: the whole batch is sent as a single multi-value
// RPush, which Redis applies as one atomic list append.
func (q *Queue) Push(ctx context.Context, encoded []string) error {
	if len(encoded) == 0 {
		return nil
	}
	args := make([]interface{}, len(encoded))
	for i, e := range encoded {
		args[i] = e
	}
	if err := q.client.RPush(ctx, listKey, args...).Err(); err != nil {
		return fmt.Errorf("op=queue.push: %w", err)
	}
	return nil
}

// Pop blocks for up to popTimeout waiting for one element. A timeout is
// reported as ok=false with a nil error, matching BLPop's semantics of
// returning redis.Nil when nothing arrived in time.
func (q *Queue) Pop(ctx context.Context) (string, bool, error) {
	res, err := q.client.BLPop(ctx, q.popTimeout, listKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("op=queue.pop: %w", err)
	}
	// BLPop returns [key, value].
	if len(res) != 2 {
		return "", false, fmt.Errorf("op=queue.pop: unexpected reply shape %v", res)
	}
	return res[1], true, nil
}

// Ping verifies connectivity for readiness and health checks.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("op=queue.ping: %w", err)
	}
	return nil
}

// Depth returns the current length of the list for the queue depth gauge.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("op=queue.depth: %w", err)
	}
	return n, nil
}
