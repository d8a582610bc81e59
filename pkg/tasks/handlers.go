package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/trendsync/pkg/observability"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TaskHandler consumes harvest tasks
type TaskHandler struct {
	router       *Router
	defaultTable string
	log          logrus.FieldLogger
}

// NewTaskHandler creates a new task handler. Tasks on a non-harvest queue use defaultTable.
func NewTaskHandler(log logrus.FieldLogger, router *Router, defaultTable string) *TaskHandler {
	return &TaskHandler{
		router:       router,
		defaultTable: defaultTable,
		log:          log.WithField("component", "task-handler"),
	}
}

// HandleHarvest decodes a fan-out message and routes it. The table comes from the queue the
// task was delivered on. Errors that redelivery cannot fix skip asynq retries.
func (h *TaskHandler) HandleHarvest(ctx context.Context, t *asynq.Task) error {
	table := h.defaultTable
	if queue, ok := asynq.GetQueueName(ctx); ok {
		if name := TableFromQueue(queue); name != "" {
			table = name
		}
	}

	log := h.log.WithField("table", table)

	req, err := ParseRequest(t.Payload(), table)
	if err != nil {
		observability.RecordError("task-handler", "unmarshal_error")
		log.WithError(err).Warn("Dropping unsupported task")

		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	started := time.Now()

	if _, err := h.router.Route(ctx, req); err != nil {
		log.WithError(err).WithField("kind", ErrorKind(err)).Error("Task failed")

		if !Retryable(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		return err
	}

	log.WithField("duration", time.Since(started)).Info("Task completed successfully")

	return nil
}

// Routes returns the task handler routes for Asynq
func (h *TaskHandler) Routes() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		TypeHarvestGeo: h.HandleHarvest,
	}
}
