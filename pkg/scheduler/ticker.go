package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethpandaops/trendsync/pkg/fanout"
	"github.com/ethpandaops/trendsync/pkg/observability"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Broadcaster fans out a table's geographies
type Broadcaster interface {
	Broadcast(ctx context.Context, table string) (fanout.Summary, error)
}

// entry is one table's parsed schedule
type entry struct {
	table    string
	spec     string
	schedule cron.Schedule
}

// parseSchedules parses table -> cron expression, ordered by table name
func parseSchedules(schedules map[string]string) ([]entry, error) {
	entries := make([]entry, 0, len(schedules))

	for table, spec := range schedules {
		if spec == "" {
			continue
		}

		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", spec, table, err)
		}

		entries = append(entries, entry{table: table, spec: spec, schedule: schedule})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].table < entries[j].table })

	return entries, nil
}

// ticker fires due schedules. It runs only while this instance leads.
type ticker struct {
	log         logrus.FieldLogger
	tracker     scheduleTracker
	broadcaster Broadcaster
	entries     []entry
	interval    time.Duration
	timeout     time.Duration
	now         func() time.Time
}

func newTicker(log logrus.FieldLogger, tracker scheduleTracker, broadcaster Broadcaster, entries []entry, interval, timeout time.Duration) *ticker {
	return &ticker{
		log:         log.WithField("component", "ticker"),
		tracker:     tracker,
		broadcaster: broadcaster,
		entries:     entries,
		interval:    interval,
		timeout:     timeout,
		now:         time.Now,
	}
}

// run checks schedules every interval until ctx is canceled
func (t *ticker) run(ctx context.Context) {
	t.log.WithField("schedules", len(t.entries)).Info("Starting schedule ticker")

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Info("Schedule ticker stopped")
			return
		case <-tk.C:
			t.check(ctx)
		}
	}
}

// check fires every entry whose next slot after its last run has passed. A table seen for
// the first time is anchored at now and fires at its next slot.
func (t *ticker) check(ctx context.Context) {
	now := t.now().UTC()

	for _, e := range t.entries {
		log := t.log.WithField("table", e.table)

		lastRun, err := t.tracker.GetLastRun(ctx, e.table)
		if err != nil {
			log.WithError(err).Warn("Failed to get last run, will retry next tick")
			continue
		}

		if lastRun.IsZero() {
			if err := t.tracker.SetLastRun(ctx, e.table, now); err != nil {
				log.WithError(err).Warn("Failed to anchor schedule")
			}

			continue
		}

		if now.Before(e.schedule.Next(lastRun)) {
			continue
		}

		// Record the slot before firing so a crash mid-broadcast does not repeat it
		if err := t.tracker.SetLastRun(ctx, e.table, now); err != nil {
			log.WithError(err).Error("Failed to record last run, skipping slot")
			continue
		}

		t.fire(ctx, e)
	}
}

func (t *ticker) fire(ctx context.Context, e entry) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	summary, err := t.broadcaster.Broadcast(ctx, e.table)
	if err != nil {
		observability.RecordError("scheduler", "broadcast_failed")
		t.log.WithError(err).WithFields(logrus.Fields{
			"table": e.table,
			"sent":  summary.MessagesSent,
		}).Error("Scheduled broadcast failed")

		return
	}

	t.log.WithFields(logrus.Fields{
		"table":    e.table,
		"schedule": e.spec,
		"sent":     summary.MessagesSent,
	}).Info("Fired scheduled broadcast")
}

// prune forgets last runs of tables no longer scheduled
func (t *ticker) prune(ctx context.Context) {
	tracked, err := t.tracker.Tables(ctx)
	if err != nil {
		t.log.WithError(err).Warn("Failed to list tracked schedules")
		return
	}

	for _, table := range tracked {
		if t.scheduled(table) {
			continue
		}

		if err := t.tracker.DeleteLastRun(ctx, table); err != nil {
			t.log.WithError(err).WithField("table", table).Warn("Failed to forget schedule")
			continue
		}

		t.log.WithField("table", table).Info("Forgot schedule of unscheduled table")
	}
}

func (t *ticker) scheduled(table string) bool {
	for _, e := range t.entries {
		if e.table == table {
			return true
		}
	}

	return false
}
