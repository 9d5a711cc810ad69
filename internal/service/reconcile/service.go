// Package reconcile decides the canonical payment status of orders by asking
// the gateway and applies the resulting transitions exactly once.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/broadcast"
	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/gateway"
	"github.com/Kwazak/umnfestival2026-sub004/internal/logger"
	"github.com/Kwazak/umnfestival2026-sub004/internal/metrics"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	orderrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/fulfillment"
)

var serviceTracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/service/reconcile")

const (
	defaultFulfillmentLease = 5 * time.Minute
	broadcastTimeout        = 5 * time.Second
)

// OrderStore is the persistence the core needs.
type OrderStore interface {
	GetByNumberFromWriter(ctx context.Context, number string) (*entity.Order, error)
	TransitionStatus(ctx context.Context, id int64, from, to payment.Status, transactionID string, now time.Time) (bool, error)
	ListForSync(ctx context.Context, filter orderrepo.SyncFilter) ([]entity.Order, error)
	ClaimFulfillment(ctx context.Context, id int64, now time.Time, lease time.Duration) (bool, error)
	ReleaseFulfillment(ctx context.Context, id int64) error
	MarkFulfilled(ctx context.Context, id int64, now time.Time) error
	ListAwaitingFulfillment(ctx context.Context, limit int) ([]entity.Order, error)
}

// Effects runs transition side effects.
type Effects interface {
	OnSuccess(ctx context.Context, order *entity.Order) error
	OnFailure(ctx context.Context, order *entity.Order, old, next payment.Status)
	OnRevoked(ctx context.Context, order *entity.Order) error
}

// Broadcaster announces persisted status changes.
type Broadcaster interface {
	StatusChanged(ctx context.Context, order *entity.Order, old, next payment.Status, source string) error
}

// Enqueuer hands jobs to the background worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Params defines dependencies for constructing Service through Fx.
type Params struct {
	fx.In

	Orders      *orderrepo.Repository
	Gateway     gateway.Client
	Effects     *fulfillment.Pipeline
	Broadcaster *broadcast.Publisher
	Queue       *Queue
	Config      config.Config
	Metrics     *metrics.PaymentMetrics
	Logger      *zap.Logger
}

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Orders      OrderStore
	Gateway     gateway.Client
	Effects     Effects
	Broadcaster Broadcaster
	Queue       Enqueuer
}

// Service is the single writer of order payment status.
type Service struct {
	deps    Dependencies
	cfg     config.Reconcile
	metrics *metrics.PaymentMetrics
	logger  *zap.Logger
	audit   *zap.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error

	inflight sync.WaitGroup
}

// NewService wires the service from Fx-provided collaborators.
func NewService(p Params) *Service {
	return New(Dependencies{
		Orders:      p.Orders,
		Gateway:     p.Gateway,
		Effects:     p.Effects,
		Broadcaster: p.Broadcaster,
		Queue:       p.Queue,
	}, p.Config.Reconcile, p.Metrics, p.Logger)
}

// New builds a service from explicit collaborators.
func New(deps Dependencies, cfg config.Reconcile, m *metrics.PaymentMetrics, log *zap.Logger) *Service {
	if cfg.FulfillmentLease <= 0 {
		cfg.FulfillmentLease = defaultFulfillmentLease
	}
	return &Service{
		deps:    deps,
		cfg:     cfg,
		metrics: m,
		logger:  log,
		audit:   logger.Audit(log),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// ReconcileOrder brings one order in line with the gateway:
//  1. locked orders are skipped unless the lock is overridden, final
//     orders unless forced;
//  2. the gateway is queried; an unknown transaction expires a pending
//     order once it is old enough and is otherwise left alone;
//  3. the gateway answer is mapped onto the canonical status;
//  4. a different status is written with a compare-and-set on the old one;
//  5. the writer that won runs the success or failure effects;
//  6. the change is broadcast.
//
// A lost compare-and-set reports OutcomeUnchanged, so concurrent callers
// observing the same crossing fire its effects once in total. A paid order
// whose confirmation never went out is fulfilled again by whichever caller
// next sees it, and reports OutcomeFulfilled.
func (s *Service) ReconcileOrder(ctx context.Context, number string, opts Options) (Result, error) {
	ctx, span := serviceTracer.Start(ctx, "ReconcileService.ReconcileOrder", trace.WithAttributes(
		attribute.String("order.number", number),
		attribute.String("reconcile.source", string(opts.Source)),
		attribute.Bool("reconcile.force", opts.Force),
	))
	defer span.End()

	order, err := s.deps.Orders.GetByNumberFromWriter(ctx, number)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return Result{OrderNumber: number, Outcome: OutcomeFailed}, ErrOrderNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return Result{OrderNumber: number, Outcome: OutcomeFailed}, fmt.Errorf("load order %s: %w", number, err)
	}

	res, err := s.reconcile(ctx, order, opts)
	span.SetAttributes(attribute.String("reconcile.outcome", string(res.Outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(res.Outcome))
	}
	return res, err
}

// RetryFulfillment reruns the success effects of a paid order that has not
// been fulfilled. It is a no-op for any other order and when another caller
// holds the fulfillment lease.
func (s *Service) RetryFulfillment(ctx context.Context, number string) error {
	ctx, span := serviceTracer.Start(ctx, "ReconcileService.RetryFulfillment", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	order, err := s.deps.Orders.GetByNumberFromWriter(ctx, number)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("load order %s: %w", number, err)
	}
	log := s.logger.With(zap.String("order.number", number))
	if !order.AwaitingFulfillment() {
		log.Info("fulfillment retry skipped",
			zap.String("status", order.Status.String()),
			zap.Bool("fulfilled", !order.FulfilledAt.IsZero()),
		)
		return nil
	}
	ran, err := s.resume(ctx, order, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fulfillment failed")
		return err
	}
	span.SetAttributes(attribute.Bool("fulfillment.ran", ran))
	return nil
}

// ResumeFulfillments retries the confirmation of every paid order that was
// never fulfilled, oldest first, up to limit orders.
func (s *Service) ResumeFulfillments(ctx context.Context, limit int, source Source) (Report, error) {
	ctx, span := serviceTracer.Start(ctx, "ReconcileService.ResumeFulfillments")
	defer span.End()

	started := s.now()
	report := Report{Selector: "fulfillment"}
	orders, err := s.deps.Orders.ListAwaitingFulfillment(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("list orders: %w", err)
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))

	opts := Options{Source: source}
	for i := range orders {
		if err := ctx.Err(); err != nil {
			report.Duration = s.now().Sub(started)
			return report, err
		}
		order := &orders[i]
		res := Result{OrderNumber: order.Number, OldStatus: order.Status, NewStatus: order.Status}
		res, err = s.settle(ctx, order, res, OutcomeUnchanged, opts, s.logger.With(zap.String("order.number", order.Number)))
		report.add(res, err)
	}

	report.Duration = s.now().Sub(started)
	if report.Total > 0 {
		s.logger.Info("fulfillment sweep finished",
			zap.String("source", string(source)),
			zap.Int("total", report.Total),
			zap.Int("fulfilled", report.Fulfilled),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

func (s *Service) reconcile(ctx context.Context, order *entity.Order, opts Options) (Result, error) {
	res := Result{OrderNumber: order.Number, OldStatus: order.Status, NewStatus: order.Status}
	log := s.logger.With(zap.String("order.number", order.Number), zap.String("source", string(opts.Source)))

	if order.SyncLocked {
		if !opts.OverrideLock {
			return s.finish(res, OutcomeSkippedLocked, opts), nil
		}
		s.audit.Warn("sync lock overridden",
			zap.String("order.number", order.Number),
			zap.String("lock.reason", order.SyncLockReason),
			zap.String("source", string(opts.Source)),
		)
	}
	if order.Status.IsFinal() && !opts.Force {
		return s.settle(ctx, order, res, OutcomeSkippedFinal, opts, log)
	}

	now := s.now().UTC()
	outcome := OutcomeUpdated
	var next payment.Status
	var transactionID string

	status, err := s.deps.Gateway.GetStatus(ctx, order.Number)
	switch {
	case errors.Is(err, gateway.ErrTransactionNotFound):
		if order.Status != payment.StatusPending || now.Sub(order.CreatedAt) < s.cfg.NotFoundExpireAfter {
			log.Debug("gateway has no transaction yet")
			return s.finish(res, OutcomeNotFound, opts), nil
		}
		next = payment.StatusExpire
		outcome = OutcomeExpired
	case err != nil:
		log.Warn("gateway status query failed", zap.Error(err))
		return s.finish(res, OutcomeFailed, opts), fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	default:
		next = payment.Map(status.TransactionStatus, status.FraudStatus)
		transactionID = status.TransactionID
	}

	if next == order.Status {
		return s.settle(ctx, order, res, OutcomeUnchanged, opts, log)
	}

	old := order.Status
	applied, err := s.deps.Orders.TransitionStatus(ctx, order.ID, old, next, transactionID, now)
	if err != nil {
		log.Error("status write failed", zap.Error(err))
		return s.finish(res, OutcomeFailed, opts), fmt.Errorf("persist status of %s: %w", order.Number, err)
	}
	if !applied {
		log.Debug("status already changed by a concurrent reconciler", zap.String("status.wanted", next.String()))
		return s.finish(res, OutcomeUnchanged, opts), nil
	}

	order.Status = next
	if transactionID != "" {
		order.GatewayTransactionID = transactionID
	}
	if next.IsSuccessful() && order.PaidAt.IsZero() {
		order.PaidAt = now
	}
	order.UpdatedAt = now

	transition := payment.Classify(old, next)
	res.NewStatus = next
	res.Transition = transition
	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(string(opts.Source), transition.String()).Inc()
	}
	log.Info("order status changed",
		zap.String("status.old", old.String()),
		zap.String("status.new", next.String()),
		zap.String("transition", transition.String()),
	)

	var effectErr error
	switch transition {
	case payment.TransitionSuccess:
		// The compare-and-set took the fulfillment lease along with the status.
		order.FulfillmentClaimedAt = now
		effectErr = s.fulfill(ctx, order, log)
	case payment.TransitionFailure:
		s.deps.Effects.OnFailure(ctx, order, old, next)
	default:
		if order.AwaitingFulfillment() {
			_, effectErr = s.resume(ctx, order, log)
		}
	}
	if effectErr != nil {
		s.queueFulfillment(ctx, order.Number, opts.Source, log)
	}
	if old.IsSuccessful() && !next.IsSuccessful() {
		if err := s.deps.Effects.OnRevoked(ctx, order); err != nil {
			log.Error("ticket revocation failed", zap.Error(err))
			if s.metrics != nil {
				s.metrics.SideEffectFailures.WithLabelValues("revoke").Inc()
			}
		}
	}

	s.announce(ctx, order, old, next, opts.Source, log)

	if effectErr != nil {
		return s.finish(res, OutcomeFailed, opts), effectErr
	}
	return s.finish(res, outcome, opts), nil
}

// settle finishes a reconciliation that wrote no status. A paid order still
// owed its confirmation is fulfilled here, so a redelivered webhook or a
// repeated sync heals an earlier delivery failure.
func (s *Service) settle(ctx context.Context, order *entity.Order, res Result, fallback Outcome, opts Options, log *zap.Logger) (Result, error) {
	if !order.AwaitingFulfillment() {
		return s.finish(res, fallback, opts), nil
	}
	ran, err := s.resume(ctx, order, log)
	if err != nil {
		s.queueFulfillment(ctx, order.Number, opts.Source, log)
		return s.finish(res, OutcomeFailed, opts), err
	}
	if !ran {
		return s.finish(res, fallback, opts), nil
	}
	return s.finish(res, OutcomeFulfilled, opts), nil
}

// resume takes the fulfillment lease and, when it wins, fulfills the order.
// It reports false when another caller holds the lease or already finished.
func (s *Service) resume(ctx context.Context, order *entity.Order, log *zap.Logger) (bool, error) {
	now := s.now().UTC()
	claimed, err := s.deps.Orders.ClaimFulfillment(ctx, order.ID, now, s.cfg.FulfillmentLease)
	if err != nil {
		return false, fmt.Errorf("claim fulfillment of %s: %w", order.Number, err)
	}
	if !claimed {
		log.Debug("fulfillment held by another caller")
		return false, nil
	}
	order.FulfillmentClaimedAt = now
	log.Info("resuming fulfillment", zap.String("status", order.Status.String()))
	return true, s.fulfill(ctx, order, log)
}

// fulfill runs the success effects for an order whose lease the caller holds
// and records the delivery. A failed attempt gives the lease back.
func (s *Service) fulfill(ctx context.Context, order *entity.Order, log *zap.Logger) error {
	if err := s.deps.Effects.OnSuccess(ctx, order); err != nil {
		log.Error("fulfillment failed", zap.Error(err))
		if rerr := s.deps.Orders.ReleaseFulfillment(context.WithoutCancel(ctx), order.ID); rerr != nil {
			log.Warn("fulfillment lease not released", zap.Error(rerr))
		}
		order.FulfillmentClaimedAt = time.Time{}
		return fmt.Errorf("%w: %w", ErrFulfillment, err)
	}
	now := s.now().UTC()
	if err := s.deps.Orders.MarkFulfilled(ctx, order.ID, now); err != nil {
		log.Error("fulfillment not recorded", zap.Error(err))
		return fmt.Errorf("%w: record delivery: %w", ErrFulfillment, err)
	}
	order.FulfilledAt = now
	order.FulfillmentClaimedAt = time.Time{}
	return nil
}

// announce broadcasts a persisted change without holding up the caller. The
// publish is detached from ctx so a finished request does not abort it.
func (s *Service) announce(ctx context.Context, order *entity.Order, old, next payment.Status, source Source, log *zap.Logger) {
	if s.deps.Broadcaster == nil {
		return
	}
	snapshot := *order
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), broadcastTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		if err := s.deps.Broadcaster.StatusChanged(ctx, &snapshot, old, next, string(source)); err != nil {
			log.Warn("status broadcast failed", zap.Error(err))
		}
	}()
}

// Wait blocks until every detached broadcast has returned.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) queueFulfillment(ctx context.Context, number string, source Source, log *zap.Logger) {
	if s.deps.Queue == nil {
		return
	}
	job := Job{Kind: JobFulfill, OrderNumber: number, Source: source}
	if err := s.deps.Queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		log.Error("fulfillment retry not queued", zap.Error(err))
	}
}

func (s *Service) finish(res Result, outcome Outcome, opts Options) Result {
	res.Outcome = outcome
	if s.metrics != nil {
		s.metrics.ReconcileTotal.WithLabelValues(string(opts.Source), string(outcome)).Inc()
	}
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
