// Package worker consumes harvest tasks from the per-table asynq queues.
package worker

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ethpandaops/trendsync/pkg/tasks"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Service defines the public interface for the worker service
type Service interface {
	// Start initializes and starts the worker service
	Start(ctx context.Context) error

	// Stop gracefully shuts down the worker service
	Stop() error
}

// Routes is the task type -> handler table served by the worker
type Routes interface {
	Routes() map[string]asynq.HandlerFunc
}

type service struct {
	config *Config
	log    logrus.FieldLogger

	done chan struct{}
	wg   sync.WaitGroup

	redisOpt *asynq.RedisClientOpt
	handler  Routes
	tables   []string

	server *asynq.Server
}

// NewService creates a worker consuming the queues of tables, narrowed by cfg.Tables
func NewService(log logrus.FieldLogger, cfg *Config, redisOpt *asynq.RedisClientOpt, handler Routes, tables []string) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &service{
		log:      log.WithField("service", "worker"),
		config:   cfg,
		done:     make(chan struct{}),
		redisOpt: redisOpt,
		handler:  handler,
		tables:   filteredTables(tables, cfg.Tables),
	}, nil
}

// Start initializes and starts the worker service
func (s *service) Start(_ context.Context) error {
	queues := Queues(s.tables)

	s.log.WithFields(logrus.Fields{
		"tables": s.tables,
		"queues": queues,
	}).Info("Starting worker service")

	srv := asynq.NewServer(s.redisOpt, asynq.Config{
		Concurrency:     s.config.Concurrency,
		Queues:          queues,
		ShutdownTimeout: s.config.ShutdownTimeout,
		Logger:          newAsynqLogger(s.log),
	})

	mux := asynq.NewServeMux()
	for taskType, handlerFunc := range s.handler.Routes() {
		mux.HandleFunc(taskType, handlerFunc)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if runErr := srv.Run(mux); runErr != nil {
			s.log.WithError(runErr).Error("Worker server stopped with error")
		}
	}()

	s.server = srv

	s.log.Info("Worker service started successfully")

	return nil
}

// Stop gracefully shuts down the worker
func (s *service) Stop() error {
	close(s.done)

	if s.server != nil {
		s.server.Shutdown()
	}

	s.wg.Wait()

	s.log.Info("Worker service stopped successfully")

	return nil
}

// Queues returns the asynq queue -> priority map for tables, equal priority each
func Queues(tables []string) map[string]int {
	queues := make(map[string]int, len(tables))
	for _, table := range tables {
		queues[tasks.QueueName(table)] = 1
	}

	return queues
}

func filteredTables(tables, only []string) []string {
	if len(only) == 0 {
		return tables
	}

	out := make([]string, 0, len(only))

	for _, table := range tables {
		if slices.Contains(only, table) {
			out = append(out, table)
		}
	}

	return out
}

var _ Service = (*service)(nil)
