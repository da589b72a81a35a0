package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/payment-switch/internal/store"
	"github.com/redis/go-redis/v9"
)

const ConfirmQueueKey = "confirm_queue"

// ConfirmJob is one queued payment confirmation. One job per payment keeps
// attempt processing strictly sequential within that payment.
type ConfirmJob struct {
	PaymentID  string `json:"payment_id"`
	MerchantID string `json:"merchant_id"`
	Connector  string `json:"connector"`
	EnqueuedAt int64  `json:"enqueued_at"`
}

// ConfirmQueue feeds payment confirmations to the worker pool via a Redis
// sorted set scored by enqueue time.
type ConfirmQueue struct {
	redisStore *store.RedisStore
	logger     *slog.Logger
}

func NewConfirmQueue(rs *store.RedisStore, logger *slog.Logger) *ConfirmQueue {
	return &ConfirmQueue{
		redisStore: rs,
		logger:     logger,
	}
}

// Enqueue adds a confirmation job to the queue.
func (q *ConfirmQueue) Enqueue(ctx context.Context, job ConfirmJob) error {
	job.EnqueuedAt = time.Now().UnixMicro()

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling confirm job: %w", err)
	}

	err = q.redisStore.Client().ZAdd(ctx, ConfirmQueueKey, redis.Z{
		Score:  float64(job.EnqueuedAt),
		Member: string(jobBytes),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing confirmation to redis: %w", err)
	}

	q.logger.Info("confirmation queued",
		"payment_id", job.PaymentID,
		"merchant_id", job.MerchantID,
	)
	return nil
}

// QueueDepth returns the current number of jobs waiting in the queue.
func (q *ConfirmQueue) QueueDepth(ctx context.Context) (int64, error) {
	return q.redisStore.Client().ZCard(ctx, ConfirmQueueKey).Result()
}
