package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/messaging"
	"github.com/Kwazak/umnfestival2026-sub004/internal/metrics"
)

const (
	minRestartBackoff = time.Second
	maxRestartBackoff = 30 * time.Second
)

// Job results recorded per handled message.
const (
	resultOK       = "ok"
	resultError    = "error"
	resultPanic    = "panic"
	resultUnrouted = "unrouted"
)

// HandlerRegistration binds a message topic to its handler.
type HandlerRegistration struct {
	Topic   string
	Handler messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Metrics       *metrics.PaymentMetrics `optional:"true"`
	Registrations []HandlerRegistration   `group:"worker.handlers"`
}

// Engine runs a fixed pool of consumers over the reconcile topic and routes
// each message to the handler registered for its topic.
type Engine struct {
	client   messaging.Client
	logger   *zap.Logger
	workers  config.Worker
	enabled  bool
	metrics  *metrics.PaymentMetrics
	handlers map[string]messaging.Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine constructs the worker Engine. Registrations without a topic or
// handler are ignored.
func NewEngine(p Params) *Engine {
	handlers := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.Topic == "" || r.Handler == nil {
			continue
		}
		handlers[r.Topic] = r.Handler
	}

	return &Engine{
		client:   p.Client,
		logger:   p.Logger,
		workers:  p.Config.Messaging.Workers,
		enabled:  p.Config.Messaging.Enabled && p.Config.Messaging.Workers.Enabled,
		metrics:  p.Metrics,
		handlers: handlers,
	}
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.start,
			OnStop:  engine.stop,
		})
	}),
)

func (e *Engine) start(context.Context) error {
	switch {
	case !e.enabled:
		e.logger.Info("worker engine disabled")
		return nil
	case len(e.handlers) == 0:
		e.logger.Info("worker engine has no handlers; skipping")
		return nil
	}

	concurrency := max(e.workers.Concurrency, 1)

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	for id := range concurrency {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.consumeLoop(runCtx, id)
		}()
	}

	e.logger.Info("worker engine started", zap.Int("workers", concurrency), zap.Int("topics", len(e.handlers)))
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("worker engine stopped")
		return nil
	}
}

// consumeLoop keeps one consumer alive, restarting it with exponential
// backoff when the broker connection fails.
func (e *Engine) consumeLoop(ctx context.Context, workerID int) {
	log := e.logger.With(zap.Int("worker", workerID))
	backoff := minRestartBackoff
	for ctx.Err() == nil {
		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			return e.dispatch(msgCtx, workerID, msg)
		})
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		log.Error("consumer stopped; restarting", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, maxRestartBackoff)
	}
}

// dispatch routes msg to its topic handler under the configured handler
// timeout. A panicking handler is turned into an error so the consumer
// retries the message instead of dying.
func (e *Engine) dispatch(ctx context.Context, workerID int, msg messaging.Message) (err error) {
	handler, ok := e.handlers[msg.Topic]
	if !ok {
		e.logger.Warn("no handler for topic", zap.String("topic", msg.Topic))
		e.record(msg.Topic, resultUnrouted)
		return nil
	}

	if e.workers.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.workers.HandlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("message handler panicked",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Any("panic", r),
			)
			e.record(msg.Topic, resultPanic)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	e.logger.Debug("processing message",
		zap.String("topic", msg.Topic),
		zap.ByteString("key", msg.Key),
		zap.Int("worker", workerID),
	)

	err = handler(ctx, msg)
	if err != nil {
		e.record(msg.Topic, resultError)
		return err
	}
	e.record(msg.Topic, resultOK)
	return nil
}

func (e *Engine) record(topic, result string) {
	if e.metrics != nil {
		e.metrics.JobsTotal.WithLabelValues(topic, result).Inc()
	}
}
