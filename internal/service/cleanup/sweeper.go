// Package cleanup deletes checkout attempts that were never paid.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/logger"
	"github.com/Kwazak/umnfestival2026-sub004/internal/metrics"
	orderrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
)

// sweepBatch bounds how many candidates one pass loads.
const sweepBatch = 1000

var tracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/service/cleanup")

// Module provides the sweeper to Fx.
var Module = fx.Provide(NewSweeper)

// OrderStore lists and deletes abandoned orders.
type OrderStore interface {
	ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]entity.Order, error)
	DeleteAbandoned(ctx context.Context, id int64, cutoff time.Time) (bool, error)
}

// Sweeper removes pending orders older than a threshold.
type Sweeper struct {
	orders    OrderStore
	threshold time.Duration
	metrics   *metrics.PaymentMetrics
	audit     *zap.Logger
	now       func() time.Time
}

// NewSweeper wires the sweeper with the configured default threshold.
func NewSweeper(orders *orderrepo.Repository, cfg config.Config, m *metrics.PaymentMetrics, log *zap.Logger) *Sweeper {
	return New(orders, cfg.Cleanup.Threshold, m, log)
}

// New builds a sweeper over any order store.
func New(orders OrderStore, threshold time.Duration, m *metrics.PaymentMetrics, log *zap.Logger) *Sweeper {
	return &Sweeper{orders: orders, threshold: threshold, metrics: m, audit: logger.Audit(log), now: time.Now}
}

// DefaultThreshold is the age used when Run is given zero.
func (s *Sweeper) DefaultThreshold() time.Duration {
	return s.threshold
}

// Run deletes unlocked pending orders created more than threshold ago that
// own no valid or used ticket, together with their tickets. A zero
// threshold uses the configured default. It returns how many were deleted.
func (s *Sweeper) Run(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	ctx, span := tracer.Start(ctx, "Sweeper.Run")
	defer span.End()

	cutoff := s.now().UTC().Add(-threshold)
	candidates, err := s.orders.ListAbandoned(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list abandoned orders: %w", err)
	}

	deleted := 0
	for _, order := range candidates {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		ok, err := s.orders.DeleteAbandoned(ctx, order.ID, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("delete order %s: %w", order.Number, err)
		}
		if !ok {
			continue
		}
		deleted++
		s.audit.Info("abandoned order deleted",
			zap.String("order.number", order.Number),
			zap.Time("order.created_at", order.CreatedAt),
		)
	}
	if s.metrics != nil {
		s.metrics.OrdersSwept.Add(float64(deleted))
	}
	span.SetAttributes(attribute.Int("orders.deleted", deleted))
	s.audit.Info("abandoned order sweep finished",
		zap.Duration("threshold", threshold),
		zap.Int("candidates", len(candidates)),
		zap.Int("deleted", deleted),
	)
	return deleted, nil
}
