// Package reconcile consumes queued reconciliation jobs.
package reconcile

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/messaging"
	reconcilesvc "github.com/Kwazak/umnfestival2026-sub004/internal/service/reconcile"
	"github.com/Kwazak/umnfestival2026-sub004/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/worker/reconcile")

// Module registers the reconcile job handler.
var Module = fx.Module("worker_reconcile",
	fx.Provide(
		fx.Annotate(
			func(svc *reconcilesvc.Service, logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
				return NewJobHandler(svc, logger, cfg)
			},
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// Runner is the part of the reconciliation core jobs drive.
type Runner interface {
	ReconcileOrder(ctx context.Context, number string, opts reconcilesvc.Options) (reconcilesvc.Result, error)
	ReconcileBatch(ctx context.Context, sel reconcilesvc.Selector, source reconcilesvc.Source) (reconcilesvc.Report, error)
	RetryFulfillment(ctx context.Context, number string) error
}

// NewJobHandler dispatches jobs from the reconcile topic. A returned error
// makes the consumer retry the message; malformed or pointless jobs are
// dropped with a log line.
func NewJobHandler(runner Runner, logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.reconcile.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		job, err := reconcilesvc.DecodeJob(msg.Value)
		if err != nil {
			logger.Error("dropping malformed reconcile job", zap.Error(err), zap.Int64("offset", msg.Offset))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		span.SetAttributes(attribute.String("job.kind", string(job.Kind)))
		log := logger.With(
			zap.String("job.kind", string(job.Kind)),
			zap.String("order.number", job.OrderNumber),
			zap.String("job.source", string(job.Source)),
		)

		err = run(ctx, runner, job, log)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "job failed")
		}
		return err
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.ReconcileTopic,
		Handler: handler,
	}
}

func run(ctx context.Context, runner Runner, job reconcilesvc.Job, log *zap.Logger) error {
	switch job.Kind {
	case reconcilesvc.JobReconcile:
		res, err := runner.ReconcileOrder(ctx, job.OrderNumber, reconcilesvc.Options{
			Source: reconcilesvc.SourceWorker,
			Force:  job.Force,
		})
		switch {
		case errors.Is(err, reconcilesvc.ErrOrderNotFound):
			log.Warn("reconcile job for unknown order")
			return nil
		case errors.Is(err, reconcilesvc.ErrFulfillment):
			// The order stays owed; the queued fulfill job and the scheduled
			// sweep pick it up.
			log.Warn("reconcile job left fulfillment for retry", zap.Error(err))
			return nil
		case err != nil:
			return err
		}
		log.Info("reconcile job done", zap.String("outcome", string(res.Outcome)))
		return nil

	case reconcilesvc.JobFulfill:
		err := runner.RetryFulfillment(ctx, job.OrderNumber)
		if errors.Is(err, reconcilesvc.ErrOrderNotFound) {
			log.Warn("fulfill job for unknown order")
			return nil
		}
		if err == nil {
			log.Info("fulfillment retry done")
		}
		return err

	case reconcilesvc.JobBatch:
		report, err := runner.ReconcileBatch(ctx, *job.Selector, reconcilesvc.SourceWorker)
		if err != nil {
			return err
		}
		log.Info("batch job done",
			zap.String("selector", report.Selector),
			zap.Int("updated", report.Updated),
			zap.Int("failed", report.Failed),
		)
		return nil
	}
	return nil
}
