package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/trendsync/pkg/api"
	"github.com/ethpandaops/trendsync/pkg/clickhouse"
	"github.com/ethpandaops/trendsync/pkg/fanout"
	"github.com/ethpandaops/trendsync/pkg/harvest"
	"github.com/ethpandaops/trendsync/pkg/observability"
	"github.com/ethpandaops/trendsync/pkg/postgres"
	"github.com/ethpandaops/trendsync/pkg/provider"
	r "github.com/ethpandaops/trendsync/pkg/redis"
	"github.com/ethpandaops/trendsync/pkg/scheduler"
	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/ethpandaops/trendsync/pkg/store/memory"
	"github.com/ethpandaops/trendsync/pkg/tasks"
	"github.com/ethpandaops/trendsync/pkg/worker"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Roles selects the long-running components Serve starts
type Roles struct {
	Server    bool
	Worker    bool
	Scheduler bool
}

// Option customizes a Service
type Option func(*options)

type options struct {
	store    store.Store
	provider provider.Provider
	sinks    fanout.SinkFactory
}

// WithStore replaces the configured store backend
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithProvider replaces the configured HTTP provider
func WithProvider(p provider.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithSinks replaces the queue as the fan-out destination
func WithSinks(sinks fanout.SinkFactory) Option {
	return func(o *options) {
		o.sinks = sinks
	}
}

// Service owns every wired component of a trendsync process
type Service struct {
	config *Config
	log    logrus.FieldLogger

	store    store.Store
	closers  []namedCloser
	harvest  *harvest.Service
	fanout   *fanout.Service
	router   *tasks.Router
	queue    *tasks.QueueManager
	redisOpt *redis.Options

	healthServer *http.Server
}

type namedCloser struct {
	name  string
	close func() error
}

// component is a Start/Stop service run by Serve
type component struct {
	name  string
	start func(ctx context.Context) error
	stop  func() error
}

// NewService validates cfg, connects the store and builds one runner per table
func NewService(ctx context.Context, log logrus.FieldLogger, cfg *Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	redisOpt, err := cfg.Redis.Options()
	if err != nil {
		return nil, err
	}

	s := &Service{
		config:   cfg,
		log:      log.WithField("service", "engine"),
		redisOpt: redisOpt,
	}

	s.store = o.store
	if s.store == nil {
		if s.store, err = s.connectStore(ctx); err != nil {
			return nil, err
		}
	}

	p := o.provider
	if p == nil {
		if p, err = provider.NewFromConfig(log, &cfg.Provider); err != nil {
			return nil, err
		}
	}

	runners := make([]*harvest.Runner, 0, len(cfg.Tables))

	for _, table := range cfg.Tables {
		runner, err := harvest.NewRunner(harvest.Deps{
			Log:         log,
			Store:       s.store,
			Provider:    p,
			Table:       table,
			FetchPolicy: cfg.Harvest.Fetch,
			LoadPolicy:  cfg.Harvest.Load,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create runner for %s: %w", table.Name, err)
		}

		runners = append(runners, runner)
	}

	s.harvest = harvest.NewService(runners...)

	sinks := o.sinks
	if sinks == nil {
		s.queue = tasks.NewQueueManager(r.NewAsynqRedisOptions(redisOpt), cfg.Queue)
		s.closers = append(s.closers, namedCloser{name: "queue client", close: s.queue.Close})
		sinks = s.queue.Sink
	}

	s.fanout = fanout.NewService(fanout.NewDispatcher(log), cfg.Geos(), sinks)
	s.router = tasks.NewRouter(log, s.harvest, s.fanout)

	return s, nil
}

func (s *Service) connectStore(ctx context.Context) (store.Store, error) {
	switch s.config.Store.Backend {
	case BackendClickHouse:
		client, err := clickhouse.NewClient(s.log, &s.config.ClickHouse)
		if err != nil {
			return nil, fmt.Errorf("failed to setup ClickHouse client: %w", err)
		}

		if err := client.Start(); err != nil {
			return nil, err
		}

		s.closers = append(s.closers, namedCloser{name: "ClickHouse client", close: client.Stop})

		return clickhouse.NewStore(s.log, client, s.config.ClickHouse.MapDatabase(s.config.ClickHouse.Database))
	case BackendPostgres:
		db, err := postgres.Open(ctx, &s.config.Postgres)
		if err != nil {
			return nil, err
		}

		pg := postgres.NewStore(s.log, db, s.config.Postgres.Schema)
		s.closers = append(s.closers, namedCloser{name: "Postgres pool", close: pg.Close})

		return pg, nil
	default:
		s.log.Warn("Using the in-memory store, nothing will be persisted")
		return memory.New(), nil
	}
}

// Store returns the connected store
func (s *Service) Store() store.Store {
	return s.store
}

// Router returns the request router shared by the push endpoint, the worker and the CLI
func (s *Service) Router() *tasks.Router {
	return s.router
}

// DefaultTable is the table used by requests that do not name one
func (s *Service) DefaultTable() string {
	return s.harvest.DefaultTable()
}

// Run harvests table once
func (s *Service) Run(ctx context.Context, table string, req harvest.Request) (*harvest.Result, error) {
	return s.harvest.Run(ctx, table, req)
}

// Broadcast fans out the geographies of table
func (s *Service) Broadcast(ctx context.Context, table string) (fanout.Summary, error) {
	return s.fanout.Broadcast(ctx, table)
}

// Serve starts the metrics and health servers plus the components in roles, and blocks
// until ctx is done or a component fails to start
func (s *Service) Serve(ctx context.Context, roles Roles) error {
	observability.StartMetricsServer(s.log, s.config.MetricsAddr)

	if s.config.HealthCheckAddr != "" {
		s.startHealthCheck()
	}

	components, err := s.components(roles)
	if err != nil {
		return err
	}

	s.log.WithField("components", len(components)).Info("Starting trendsync")

	g, gctx := errgroup.WithContext(ctx)

	for _, c := range components {
		g.Go(func() error {
			if err := c.start(gctx); err != nil {
				return fmt.Errorf("failed to start %s: %w", c.name, err)
			}

			<-gctx.Done()

			if err := c.stop(); err != nil {
				s.log.WithError(err).Errorf("Failed to stop %s", c.name)
			}

			return nil
		})
	}

	err = g.Wait()

	s.stopHealthCheck()

	return err
}

func (s *Service) components(roles Roles) ([]component, error) {
	var out []component

	if roles.Server {
		svc := api.NewService(&s.config.Server, s.router, s.DefaultTable(), s.log)
		out = append(out, component{name: "push endpoint", start: svc.Start, stop: svc.Stop})
	}

	if roles.Worker {
		handler := tasks.NewTaskHandler(s.log, s.router, s.DefaultTable())

		svc, err := worker.NewService(s.log, &s.config.Worker, s.asynqRedisOpt(), handler, s.harvest.Tables())
		if err != nil {
			return nil, fmt.Errorf("failed to create worker service: %w", err)
		}

		out = append(out, component{name: "worker", start: svc.Start, stop: svc.Stop})
	}

	if roles.Scheduler {
		svc, err := scheduler.NewService(s.log, &s.config.Scheduler, s.redisOpt, s.config.Schedules(), s.fanout)
		if err != nil {
			return nil, fmt.Errorf("failed to create scheduler service: %w", err)
		}

		out = append(out, component{name: "scheduler", start: svc.Start, stop: svc.Stop})
	}

	return out, nil
}

func (s *Service) asynqRedisOpt() *asynq.RedisClientOpt {
	return r.NewAsynqRedisOptions(s.redisOpt)
}

// Close releases the store and queue connections
func (s *Service) Close() error {
	var errs []error

	for _, c := range s.closers {
		if err := c.close(); err != nil {
			s.log.WithError(err).Errorf("Failed to close %s", c.name)
			errs = append(errs, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := observability.StopMetricsServer(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *Service) startHealthCheck() {
	s.log.WithField("addr", s.config.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.healthServer = &http.Server{
		Addr:              s.config.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Health check server failed")
		}
	}()
}

func (s *Service) stopHealthCheck() {
	if s.healthServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.healthServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("Failed to stop health check server")
	}
}
