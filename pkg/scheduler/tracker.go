package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// lastRunKeyPrefix + table holds the RFC3339 time the table's schedule last fired
const lastRunKeyPrefix = "trendsync:scheduler:last:"

// scheduleTracker persists when each table's schedule last fired, so a newly promoted
// leader neither repeats nor skips a slot
type scheduleTracker interface {
	// GetLastRun returns the zero time when the table never fired
	GetLastRun(ctx context.Context, table string) (time.Time, error)
	SetLastRun(ctx context.Context, table string, at time.Time) error
	DeleteLastRun(ctx context.Context, table string) error
	// Tables lists every table with a recorded last run
	Tables(ctx context.Context) ([]string, error)
	Close() error
}

type redisScheduleTracker struct {
	log   logrus.FieldLogger
	redis *redis.Client
}

func newScheduleTracker(log logrus.FieldLogger, redisClient *redis.Client) scheduleTracker {
	return &redisScheduleTracker{
		log:   log.WithField("component", "schedule_tracker"),
		redis: redisClient,
	}
}

func (r *redisScheduleTracker) GetLastRun(ctx context.Context, table string) (time.Time, error) {
	val, err := r.redis.Get(ctx, lastRunKeyPrefix+table).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}

		return time.Time{}, fmt.Errorf("failed to get last run for %s: %w", table, err)
	}

	at, err := time.Parse(time.RFC3339, val)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"table":     table,
			"raw_value": val,
		}).Error("Failed to parse last run")

		return time.Time{}, fmt.Errorf("failed to parse last run for %s: %w", table, err)
	}

	return at, nil
}

func (r *redisScheduleTracker) SetLastRun(ctx context.Context, table string, at time.Time) error {
	if err := r.redis.Set(ctx, lastRunKeyPrefix+table, at.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("failed to set last run for %s: %w", table, err)
	}

	r.log.WithFields(logrus.Fields{
		"table":    table,
		"last_run": at,
	}).Debug("Updated last run")

	return nil
}

func (r *redisScheduleTracker) DeleteLastRun(ctx context.Context, table string) error {
	if err := r.redis.Del(ctx, lastRunKeyPrefix+table).Err(); err != nil {
		return fmt.Errorf("failed to delete last run for %s: %w", table, err)
	}

	return nil
}

func (r *redisScheduleTracker) Tables(ctx context.Context) ([]string, error) {
	const scanBatchSize = 100

	var tables []string

	iter := r.redis.Scan(ctx, 0, lastRunKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		tables = append(tables, iter.Val()[len(lastRunKeyPrefix):])
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan last runs: %w", err)
	}

	return tables, nil
}

func (r *redisScheduleTracker) Close() error {
	return r.redis.Close()
}

var _ scheduleTracker = (*redisScheduleTracker)(nil)
