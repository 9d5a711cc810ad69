package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SlowQueryHook logs statements slower than a threshold and failed
// statements other than "no rows".
type SlowQueryHook struct {
	threshold time.Duration
	logger    *zap.Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

// NewSlowQueryHook builds a hook logging through logger.
func NewSlowQueryHook(threshold time.Duration, logger *zap.Logger) *SlowQueryHook {
	return &SlowQueryHook{threshold: threshold, logger: logger.Named("sql")}
}

// BeforeQuery implements bun.QueryHook.
func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery implements bun.QueryHook.
func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	took := time.Since(event.StartTime)
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.logger.Warn("query failed",
			zap.String("operation", event.Operation()),
			zap.Duration("took", took),
			zap.Error(event.Err),
		)
	case took >= h.threshold:
		h.logger.Warn("slow query",
			zap.String("operation", event.Operation()),
			zap.Duration("took", took),
			zap.String("query", event.Query),
		)
	}
}
