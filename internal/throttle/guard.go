// Package throttle implements a shared, best-effort "at most once per window"
// gate used to rate-limit opportunistic reconciliation across processes.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/cache"
	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/database"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/metrics"
)

// OpportunisticSync names the gate protecting traffic-triggered reconciliation.
const OpportunisticSync = "opportunistic-sync"

// Module provides the opportunistic sync guard to Fx.
var Module = fx.Provide(New)

type backend interface {
	claim(ctx context.Context, name string, now time.Time, window time.Duration) (bool, error)
}

// Guard answers whether a throttled job may run now.
type Guard struct {
	name    string
	window  time.Duration
	backend backend
	now     func() time.Time
	metrics *metrics.PaymentMetrics
}

// New picks the Redis backend when the cache is Redis and falls back to the
// sync_throttles table otherwise.
func New(cfg config.Config, store cache.Store, conns *database.Connections, m *metrics.PaymentMetrics, logger *zap.Logger) *Guard {
	window := cfg.Reconcile.ThrottleWindow
	if cfg.Cache.Driver == "redis" {
		logger.Info("throttle guard using redis", zap.Duration("window", window))
		return NewRedisGuard(store, cfg.Cache.KeyPrefix, OpportunisticSync, window, m)
	}
	logger.Info("throttle guard using database", zap.Duration("window", window))
	return NewDBGuard(conns.Writer, OpportunisticSync, window, m)
}

// NewRedisGuard builds a guard on top of an atomic SET NX PX.
func NewRedisGuard(store cache.Store, prefix, name string, window time.Duration, m *metrics.PaymentMetrics) *Guard {
	return &Guard{
		name:    name,
		window:  window,
		backend: redisBackend{store: store, prefix: prefix},
		now:     time.Now,
		metrics: m,
	}
}

// NewDBGuard builds a guard on top of a conditional update.
func NewDBGuard(db *bun.DB, name string, window time.Duration, m *metrics.PaymentMetrics) *Guard {
	return &Guard{
		name:    name,
		window:  window,
		backend: dbBackend{db: db},
		now:     time.Now,
		metrics: m,
	}
}

// ShouldRun returns true, and records the current instant as the last run,
// only when at least one window has elapsed since the previous recorded run.
// Two callers racing at the boundary may both pass; callers must tolerate it.
func (g *Guard) ShouldRun(ctx context.Context) (bool, error) {
	ok, err := g.backend.claim(ctx, g.name, g.now().UTC(), g.window)
	if err != nil {
		return false, fmt.Errorf("throttle %s: %w", g.name, err)
	}
	if g.metrics != nil {
		decision := "skip"
		if ok {
			decision = "run"
		}
		g.metrics.ThrottleTotal.WithLabelValues(decision).Inc()
	}
	return ok, nil
}

type redisBackend struct {
	store  cache.Store
	prefix string
}

func (b redisBackend) claim(ctx context.Context, name string, now time.Time, window time.Duration) (bool, error) {
	key := cache.Key(b.prefix, "throttle", name)
	return b.store.SetNX(ctx, key, []byte(now.Format(time.RFC3339Nano)), window)
}

type dbBackend struct {
	db *bun.DB
}

func (b dbBackend) claim(ctx context.Context, name string, now time.Time, window time.Duration) (bool, error) {
	res, err := b.db.NewInsert().
		Model(&entity.SyncThrottle{Name: name, LastRunAt: now}).
		Ignore().
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return true, nil
	}

	res, err = b.db.NewUpdate().
		Model((*entity.SyncThrottle)(nil)).
		Set("last_run_at = ?", now).
		Where("name = ?", name).
		Where("last_run_at <= ?", now.Add(-window)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
