// Package queue provides the Redis-backed trigger for externally
// requested runs.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RunRequest is the payload external systems push onto the queue.
// LogicalDate defaults to the time the request is consumed.
type RunRequest struct {
	WorkflowID  string     `json:"workflow_id"`
	LogicalDate *time.Time `json:"logical_date,omitempty"`
}

// Callback receives each consumed run request.
type Callback func(ctx context.Context, request RunRequest) error

// Trigger consumes run requests from a Redis list with blocking pops.
// Malformed payloads are logged and dropped.
type Trigger struct {
	Queue   string
	Enabled bool

	client   redis.UniversalClient
	callback Callback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

const defaultQueue = "dbt_pipeline.run_requests"

func NewTrigger(redisURL, queue string, logger *slog.Logger) (*Trigger, error) {
	if redisURL == "" {
		return nil, errors.New("queue trigger requires a redis URL")
	}

	if queue == "" {
		queue = defaultQueue
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &Trigger{
		Queue:   queue,
		Enabled: true,
		client:  redis.NewClient(opts),
		stopCh:  make(chan struct{}),
		logger: logger.With(
			"module", "queue_trigger",
			"queue", queue,
		),
	}, nil
}

func (t *Trigger) Start(ctx context.Context, callback Callback) error {
	if !t.Enabled {
		t.logger.Info("Queue trigger is disabled")

		return nil
	}

	if err := t.client.Ping(ctx).Err(); err != nil {
		return err
	}

	t.logger.Info("Starting queue trigger")
	t.callback = callback

	t.wg.Add(1)

	go t.consume(ctx)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		values, err := t.client.BRPop(ctx, 5*time.Second, t.Queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}

			t.logger.Error("Failed to pop run request", "error", err)
			time.Sleep(time.Second)

			continue
		}

		// BRPop returns [queue, payload].
		if len(values) != 2 {
			continue
		}

		var request RunRequest
		if err := json.Unmarshal([]byte(values[1]), &request); err != nil {
			t.logger.Error("Dropping malformed run request", "payload", values[1], "error", err)

			continue
		}

		if request.WorkflowID == "" {
			t.logger.Error("Dropping run request without workflow_id", "payload", values[1])

			continue
		}

		if err := t.callback(ctx, request); err != nil {
			t.logger.Error("Error executing queued run request", "workflow_id", request.WorkflowID, "error", err)
		}
	}
}

func (t *Trigger) Stop(_ context.Context) error {
	t.logger.Info("Stopping queue trigger")

	close(t.stopCh)
	t.wg.Wait()

	return t.client.Close()
}
