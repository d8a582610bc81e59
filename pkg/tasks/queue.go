package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/trendsync/pkg/fanout"
	"github.com/hibiken/asynq"
)

// QueueConfig tunes enqueued harvest tasks
type QueueConfig struct {
	MaxRetry int           `yaml:"maxRetry" default:"3"`
	Timeout  time.Duration `yaml:"timeout" default:"30m"`
}

// QueueManager enqueues harvest tasks
type QueueManager struct {
	client *asynq.Client
	cfg    QueueConfig
}

// NewQueueManager creates a new queue manager
func NewQueueManager(redisOpt *asynq.RedisClientOpt, cfg QueueConfig) *QueueManager {
	return &QueueManager{
		client: asynq.NewClient(*redisOpt),
		cfg:    cfg,
	}
}

// Enqueue puts one harvest message on the table's queue
func (q *QueueManager) Enqueue(ctx context.Context, table string, data []byte, opts ...asynq.Option) error {
	task := asynq.NewTask(TypeHarvestGeo, data)

	allOpts := []asynq.Option{
		asynq.Queue(QueueName(table)),
		asynq.MaxRetry(q.cfg.MaxRetry),
		asynq.Timeout(q.cfg.Timeout),
	}
	allOpts = append(allOpts, opts...)

	if _, err := q.client.EnqueueContext(ctx, task, allOpts...); err != nil {
		return fmt.Errorf("failed to enqueue on %s: %w", QueueName(table), err)
	}

	return nil
}

// Sink returns a fan-out sink that feeds the table's queue
func (q *QueueManager) Sink(table string) fanout.Sink {
	return &QueueSink{manager: q, table: table}
}

// Close closes the queue manager
func (q *QueueManager) Close() error {
	return q.client.Close()
}

// QueueSink publishes fan-out messages as harvest tasks
type QueueSink struct {
	manager *QueueManager
	table   string
}

// Publish implements fanout.Sink
func (s *QueueSink) Publish(ctx context.Context, data []byte) error {
	return s.manager.Enqueue(ctx, s.table, data)
}

var _ fanout.Sink = (*QueueSink)(nil)
