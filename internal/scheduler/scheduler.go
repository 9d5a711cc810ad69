// Package scheduler runs the periodic pending-order sync and the abandoned
// order sweep on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/cleanup"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/reconcile"
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 10 * time.Minute

// Batcher runs batch reconciliations and retries owed fulfillments.
type Batcher interface {
	ReconcileBatch(ctx context.Context, sel reconcile.Selector, source reconcile.Source) (reconcile.Report, error)
	ResumeFulfillments(ctx context.Context, limit int, source reconcile.Source) (reconcile.Report, error)
}

// Sweeper deletes abandoned orders.
type Sweeper interface {
	Run(ctx context.Context, threshold time.Duration) (int, error)
}

// Module wires the scheduler into the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(func(svc *reconcile.Service, sweeper *cleanup.Sweeper, cfg config.Config, logger *zap.Logger) (*Scheduler, error) {
		return New(svc, sweeper, cfg, logger)
	}),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				s.Start()
				return nil
			},
			OnStop: s.Stop,
		})
	}),
)

// Scheduler owns the cron instance.
type Scheduler struct {
	cron    *cron.Cron
	batcher Batcher
	sweeper Sweeper
	days    int
	owed    int
	logger  *zap.Logger
	entries map[string]cron.EntryID
}

// New registers the configured jobs. Overlapping runs of the same job are
// skipped.
func New(batcher Batcher, sweeper Sweeper, cfg config.Config, logger *zap.Logger) (*Scheduler, error) {
	cronLog := cronLogger{logger: logger.Named("cron")}
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		batcher: batcher,
		sweeper: sweeper,
		days:    cfg.Reconcile.ScheduleDays,
		owed:    cfg.Reconcile.FulfillmentBatch,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}

	if cfg.Reconcile.ScheduleEnabled {
		if err := s.add("pending-sync", cfg.Reconcile.ScheduleSpec, s.syncPending); err != nil {
			return nil, err
		}
	}
	if cfg.Cleanup.Spec != "" {
		if err := s.add("abandoned-sweep", cfg.Cleanup.Spec, s.sweep); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, fn func(context.Context)) error {
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.entries[name] = id
	s.logger.Info("scheduled job registered", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.entries)))
}

// Stop waits for running jobs or gives up when ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// syncPending reconciles recent pending orders, then retries the
// confirmation of paid orders that never got one. Final orders are outside
// the pending selector, so the second pass is what heals them.
func (s *Scheduler) syncPending(ctx context.Context) {
	report, err := s.batcher.ReconcileBatch(ctx, reconcile.Pending(s.days), reconcile.SourceScheduler)
	if err != nil {
		s.logger.Error("scheduled sync failed", zap.Error(err))
	} else {
		s.logger.Info("scheduled sync finished",
			zap.Int("total", report.Total),
			zap.Int("updated", report.Updated),
			zap.Int("failed", report.Failed),
		)
	}

	owed, err := s.batcher.ResumeFulfillments(ctx, s.owed, reconcile.SourceScheduler)
	if err != nil {
		s.logger.Error("scheduled fulfillment retry failed", zap.Error(err))
		return
	}
	if owed.Failed > 0 {
		s.logger.Warn("paid orders still awaiting fulfillment", zap.Int("failed", owed.Failed), zap.Strings("failures", owed.Failures))
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	deleted, err := s.sweeper.Run(ctx, 0)
	if err != nil {
		s.logger.Error("scheduled sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled sweep finished", zap.Int("deleted", deleted))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
