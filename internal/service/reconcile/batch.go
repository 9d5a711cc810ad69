package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	orderrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
)

// SelectorKind names a batch selection rule.
type SelectorKind string

const (
	// SelectAll forces every order, newest first, up to the batch cap.
	SelectAll SelectorKind = "all"
	// SelectRecent forces orders created or updated in the last Days days.
	SelectRecent SelectorKind = "recent"
	// SelectPending covers non-final orders created in the last Days days.
	SelectPending SelectorKind = "pending"
	// SelectWindow covers non-final orders active in the last Minutes
	// minutes, capped at Limit. The opportunistic poller uses it.
	SelectWindow SelectorKind = "window"
)

// Selector picks the orders of a batch reconciliation.
type Selector struct {
	Kind    SelectorKind `json:"kind"`
	Days    int          `json:"days,omitempty"`
	Minutes int          `json:"minutes,omitempty"`
	Limit   int          `json:"limit,omitempty"`
}

// All selects every order.
func All() Selector { return Selector{Kind: SelectAll} }

// Recent selects orders active in the last days.
func Recent(days int) Selector { return Selector{Kind: SelectRecent, Days: days} }

// Pending selects non-final orders created in the last days.
func Pending(days int) Selector { return Selector{Kind: SelectPending, Days: days} }

// Window selects non-final orders active in the last minutes.
func Window(minutes, limit int) Selector {
	return Selector{Kind: SelectWindow, Minutes: minutes, Limit: limit}
}

func (s Selector) String() string {
	switch s.Kind {
	case SelectRecent, SelectPending:
		return fmt.Sprintf("%s(%dd)", s.Kind, s.Days)
	case SelectWindow:
		return fmt.Sprintf("%s(%dm,%d)", s.Kind, s.Minutes, s.Limit)
	default:
		return string(s.Kind)
	}
}

// plan turns the selector into a query filter, per-order options and the
// pause between orders.
func (s Selector) plan(cfg config.Reconcile, now time.Time) (orderrepo.SyncFilter, bool, time.Duration, error) {
	days := s.Days
	if days <= 0 {
		days = cfg.DefaultDays
	}
	since := now.AddDate(0, 0, -days)

	switch s.Kind {
	case SelectAll:
		return orderrepo.SyncFilter{Limit: cfg.BatchCap}, true, cfg.InterOrderDelay, nil
	case SelectRecent:
		return orderrepo.SyncFilter{ActiveSince: since, Limit: cfg.BatchCap}, true, cfg.InterOrderDelay, nil
	case SelectPending:
		return orderrepo.SyncFilter{CreatedSince: since, NonFinalOnly: true, Limit: cfg.BatchCap}, false, cfg.InterOrderDelay, nil
	case SelectWindow:
		minutes := s.Minutes
		if minutes <= 0 {
			minutes = int(cfg.PollWindow / time.Minute)
		}
		limit := s.Limit
		if limit <= 0 {
			limit = cfg.PollLimit
		}
		return orderrepo.SyncFilter{
			ActiveSince:  now.Add(-time.Duration(minutes) * time.Minute),
			NonFinalOnly: true,
			Limit:        limit,
		}, false, 0, nil
	default:
		return orderrepo.SyncFilter{}, false, 0, fmt.Errorf("unknown selector %q", s.Kind)
	}
}

// Report summarises a batch reconciliation.
type Report struct {
	Selector  string        `json:"selector"`
	Total     int           `json:"total"`
	Updated   int           `json:"updated"`
	Fulfilled int           `json:"fulfilled"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Failures  []string      `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}

func (r *Report) add(res Result, err error) {
	r.Total++
	switch {
	case err != nil:
		r.Failed++
		r.Failures = append(r.Failures, fmt.Sprintf("%s: %v", res.OrderNumber, err))
	case res.Outcome.Changed():
		r.Updated++
	case res.Outcome == OutcomeFulfilled:
		r.Fulfilled++
	case res.Outcome.Skipped():
		r.Skipped++
	default:
		r.Unchanged++
	}
}

// ReconcileBatch reconciles every selected order in isolation: one order's
// failure is counted and the batch moves on. Locked orders are always
// skipped. It stops early only when ctx ends.
func (s *Service) ReconcileBatch(ctx context.Context, sel Selector, source Source) (Report, error) {
	ctx, span := serviceTracer.Start(ctx, "ReconcileService.ReconcileBatch")
	defer span.End()

	started := s.now()
	report := Report{Selector: sel.String()}
	filter, force, delay, err := sel.plan(s.cfg, started.UTC())
	if err != nil {
		return report, err
	}

	orders, err := s.deps.Orders.ListForSync(ctx, filter)
	if err != nil {
		return report, fmt.Errorf("list orders: %w", err)
	}
	span.SetAttributes(
		attribute.String("reconcile.selector", report.Selector),
		attribute.Int("orders.count", len(orders)),
	)

	opts := Options{Source: source, Force: force}
	for i := range orders {
		if i > 0 {
			if err := s.sleep(ctx, delay); err != nil {
				report.Duration = s.now().Sub(started)
				return report, err
			}
		}
		if err := ctx.Err(); err != nil {
			report.Duration = s.now().Sub(started)
			return report, err
		}
		res, err := s.reconcile(ctx, &orders[i], opts)
		if errors.Is(err, context.Canceled) {
			report.Duration = s.now().Sub(started)
			return report, err
		}
		report.add(res, err)
	}

	report.Duration = s.now().Sub(started)
	s.logger.Info("batch reconciliation finished",
		zap.String("selector", report.Selector),
		zap.String("source", string(source)),
		zap.Int("total", report.Total),
		zap.Int("updated", report.Updated),
		zap.Int("fulfilled", report.Fulfilled),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
