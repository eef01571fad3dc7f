package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/ankittk/missioncontrol/internal/config"
	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single run of a scheduled job.
const jobTimeout = time.Minute

// Scheduler runs the background jobs: notification delivery and the stale-heartbeat sweep.
type Scheduler struct {
	cron   *cron.Cron
	svc    *mission.Service
	cfg    config.SchedulerConfig
	logger *slog.Logger
}

// NewScheduler registers the jobs whose cron spec is non-empty. Specs include a seconds field.
func NewScheduler(svc *mission.Service, cfg config.SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:    svc,
		cfg:    cfg,
		logger: logger.WithGroup("scheduler"),
	}
	if cfg.DeliverNotifications != "" {
		if _, err := s.cron.AddFunc(cfg.DeliverNotifications, func() { s.run("deliver_notifications", s.deliver) }); err != nil {
			return nil, err
		}
	}
	if cfg.StaleSweep != "" && cfg.StaleAfter > 0 {
		if _, err := s.cron.AddFunc(cfg.StaleSweep, func() { s.run("stale_sweep", s.sweep) }); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the cron loop until Stop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(name string, job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("job failed", "name", name, "err", err)
		return
	}
	s.logger.Debug("job done", "name", name, "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) deliver(ctx context.Context) error {
	n, err := s.svc.DeliverNotifications(ctx, s.cfg.DeliveryBatch)
	if n > 0 {
		s.logger.Info("notifications delivered", "count", n)
	}
	return err
}

func (s *Scheduler) sweep(ctx context.Context) error {
	_, err := s.svc.SweepStale(ctx, s.cfg.StaleAfter)
	return err
}
