package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Service defines the public interface for the scheduler
type Service interface {
	// Start joins leader election; schedules fire while this instance leads
	Start(ctx context.Context) error
	// Stop relinquishes leadership and waits for a running broadcast to finish
	Stop() error
}

type service struct {
	log logrus.FieldLogger
	cfg *Config

	done chan struct{}
	wg   sync.WaitGroup

	elector LeaderElector
	tracker scheduleTracker
	ticker  *ticker
}

// NewService creates a scheduler firing broadcaster for each table -> cron expression in
// schedules. Tables with an empty schedule are never fired.
func NewService(log logrus.FieldLogger, cfg *Config, redisOpt *redis.Options, schedules map[string]string, broadcaster Broadcaster) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	entries, err := parseSchedules(schedules)
	if err != nil {
		return nil, err
	}

	log = log.WithField("service", "scheduler")
	tracker := newScheduleTracker(log, redis.NewClient(redisOpt))

	return &service{
		log:     log,
		cfg:     cfg,
		done:    make(chan struct{}),
		elector: NewLeaderElector(log, redisOpt, cfg.LeaseTTL, cfg.RenewInterval),
		tracker: tracker,
		ticker:  newTicker(log, tracker, broadcaster, entries, cfg.TickInterval, cfg.BroadcastTimeout),
	}, nil
}

func (s *service) Start(ctx context.Context) error {
	if err := s.elector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start leader election: %w", err)
	}

	s.wg.Add(1)
	go s.handleLeaderElection(ctx)

	s.log.WithField("schedules", len(s.ticker.entries)).Info("Scheduler service started (participating in leader election)")

	return nil
}

func (s *service) Stop() error {
	close(s.done)

	if err := s.elector.Stop(); err != nil {
		s.log.WithError(err).Warn("Failed to stop leader elector")
	}

	s.wg.Wait()

	if err := s.tracker.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close schedule tracker")
	}

	s.log.Info("Scheduler service stopped successfully")

	return nil
}

// handleLeaderElection runs the ticker between promotion and demotion
func (s *service) handleLeaderElection(ctx context.Context) {
	defer s.wg.Done()

	var (
		cancelTicker context.CancelFunc
		tickerDone   chan struct{}
	)

	stopTicker := func() {
		if cancelTicker == nil {
			return
		}

		cancelTicker()
		<-tickerDone

		cancelTicker = nil
	}

	defer stopTicker()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.elector.PromotedChan():
			if cancelTicker != nil {
				continue
			}

			s.log.Info("Promoted to scheduler leader - starting ticker")

			var tickerCtx context.Context
			tickerCtx, cancelTicker = context.WithCancel(ctx)
			tickerDone = make(chan struct{})

			s.ticker.prune(tickerCtx)

			go func() {
				defer close(tickerDone)
				s.ticker.run(tickerCtx)
			}()
		case <-s.elector.DemotedChan():
			s.log.Info("Demoted from scheduler leader - stopping ticker")
			stopTicker()
		}
	}
}
