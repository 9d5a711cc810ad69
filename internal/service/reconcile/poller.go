package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/throttle"
)

// pollTimeout bounds one opportunistic pass, detached from the request.
const pollTimeout = 2 * time.Minute

// Gate decides whether a throttled pass may run.
type Gate interface {
	ShouldRun(ctx context.Context) (bool, error)
}

// Batcher runs batch reconciliations.
type Batcher interface {
	ReconcileBatch(ctx context.Context, sel Selector, source Source) (Report, error)
}

// Poller reconciles recently active orders off the back of ordinary page
// traffic, at most once per throttle window.
type Poller struct {
	gate     Gate
	batcher  Batcher
	selector Selector
	logger   *zap.Logger
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewPoller builds a poller over the configured window and limit.
func NewPoller(gate Gate, batcher Batcher, cfg config.Reconcile, logger *zap.Logger) *Poller {
	return &Poller{
		gate:     gate,
		batcher:  batcher,
		selector: Window(int(cfg.PollWindow/time.Minute), cfg.PollLimit),
		logger:   logger,
	}
}

func newPoller(lc fx.Lifecycle, guard *throttle.Guard, svc *Service, cfg config.Config, logger *zap.Logger) *Poller {
	p := NewPoller(guard, svc, cfg.Reconcile, logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				p.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return p
}

// Trigger starts a pass in the background and returns immediately. It does
// nothing while a previous pass of this process is still running.
func (p *Poller) Trigger(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pollTimeout)
		defer cancel()
		if _, err := p.Run(ctx); err != nil {
			p.logger.Warn("opportunistic sync failed", zap.Error(err))
		}
	}()
}

// Run performs one pass if the throttle gate allows it and reports whether
// it ran.
func (p *Poller) Run(ctx context.Context) (bool, error) {
	ok, err := p.gate.ShouldRun(ctx)
	if err != nil || !ok {
		return false, err
	}
	report, err := p.batcher.ReconcileBatch(ctx, p.selector, SourcePoller)
	if err != nil {
		return true, err
	}
	if report.Updated > 0 || report.Failed > 0 {
		p.logger.Info("opportunistic sync pass",
			zap.Int("total", report.Total),
			zap.Int("updated", report.Updated),
			zap.Int("failed", report.Failed),
		)
	}
	return true, nil
}

// Wait blocks until in-flight passes finish.
func (p *Poller) Wait() {
	p.wg.Wait()
}
