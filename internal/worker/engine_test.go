package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/messaging"
	"github.com/Kwazak/umnfestival2026-sub004/internal/metrics"
)

func TestDispatchRoutesByTopic(t *testing.T) {
	var seen []string
	engine := NewEngine(Params{
		Client: messaging.NewNoopClient(),
		Logger: zap.NewNop(),
		Config: config.Config{},
		Registrations: []HandlerRegistration{
			{Topic: "orders.reconcile", Handler: func(_ context.Context, msg messaging.Message) error {
				seen = append(seen, string(msg.Key))
				return nil
			}},
			{Topic: "", Handler: func(context.Context, messaging.Message) error { return errors.New("never") }},
		},
	})

	assert.NoError(t, engine.dispatch(context.Background(), 0, messaging.Message{Topic: "orders.reconcile", Key: []byte("ORD-1")}))
	assert.NoError(t, engine.dispatch(context.Background(), 0, messaging.Message{Topic: "unknown"}))
	assert.Equal(t, []string{"ORD-1"}, seen)
}

func TestDispatchRecoversPanics(t *testing.T) {
	engine := NewEngine(Params{
		Client: messaging.NewNoopClient(),
		Logger: zap.NewNop(),
		Registrations: []HandlerRegistration{
			{Topic: "orders.reconcile", Handler: func(context.Context, messaging.Message) error { panic("boom") }},
		},
	})

	err := engine.dispatch(context.Background(), 1, messaging.Message{Topic: "orders.reconcile"})
	assert.ErrorContains(t, err, "boom")
}

func TestStartDisabledIsNoop(t *testing.T) {
	engine := NewEngine(Params{Client: messaging.NewNoopClient(), Logger: zap.NewNop()})
	assert.NoError(t, engine.start(context.Background()))
	assert.NoError(t, engine.stop(context.Background()))
}

func TestDispatchAppliesHandlerTimeout(t *testing.T) {
	var deadline bool
	engine := NewEngine(Params{
		Client:  messaging.NewNoopClient(),
		Logger:  zap.NewNop(),
		Metrics: metrics.Get(),
		Config: config.Config{Messaging: config.Messaging{Workers: config.Worker{HandlerTimeout: time.Minute}}},
		Registrations: []HandlerRegistration{
			{Topic: "orders.reconcile", Handler: func(ctx context.Context, _ messaging.Message) error {
				_, deadline = ctx.Deadline()
				return errors.New("gateway down")
			}},
		},
	})

	before := testutil.ToFloat64(metrics.Get().JobsTotal.WithLabelValues("orders.reconcile", resultError))
	err := engine.dispatch(context.Background(), 0, messaging.Message{Topic: "orders.reconcile"})
	assert.EqualError(t, err, "gateway down")
	assert.True(t, deadline)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Get().JobsTotal.WithLabelValues("orders.reconcile", resultError)))
}
