package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Notification job types consumed by the worker.
const (
	JobPaymentReminder = "PAYMENT_REMINDER"
)

// Queue configuration. Delivery is at-least-once: failed jobs are re-enqueued
// until MaxJobAttempts is reached, after which they land on the dead-letter
// list for inspection.
const (
	emailQueueKey      = "email-queue"
	emailDeadLetterKey = "email-queue:dead"
	MaxJobAttempts     = 3
)

// NotificationJob is a typed unit of work for the notification sink.
type NotificationJob struct {
	Type     string                 `json:"type"`
	Payload  map[string]interface{} `json:"payload"`
	Attempts int                    `json:"attempts"`
}

// NotificationQueue is the engine-facing side of the notification sink. A slow
// or failing transport never blocks payment-state transitions; the worker owns
// delivery and retries.
type NotificationQueue interface {
	Enqueue(ctx context.Context, job NotificationJob) error
}

// RedisQueue is a Redis-list-backed notification queue.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job NotificationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notification job: %w", err)
	}
	if err := q.client.LPush(ctx, emailQueueKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue notification job: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available or the context is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*NotificationJob, error) {
	result, err := q.client.BRPop(ctx, 0, emailQueueKey).Result()
	if err != nil {
		return nil, err
	}
	// BRPOP returns [key, value].
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result: %v", result)
	}
	var job NotificationJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("decode notification job: %w", err)
	}
	return &job, nil
}

// Retry re-enqueues a failed job, or moves it to the dead-letter list once it
// has exhausted its attempts. Returns true if the job was re-enqueued.
func (q *RedisQueue) Retry(ctx context.Context, job NotificationJob) (bool, error) {
	job.Attempts++
	if job.Attempts >= MaxJobAttempts {
		data, err := json.Marshal(job)
		if err != nil {
			return false, err
		}
		return false, q.client.LPush(ctx, emailDeadLetterKey, data).Err()
	}
	return true, q.Enqueue(ctx, job)
}
