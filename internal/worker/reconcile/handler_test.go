package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/messaging"
	reconcilesvc "github.com/Kwazak/umnfestival2026-sub004/internal/service/reconcile"
)

type mockRunner struct{ mock.Mock }

func (m *mockRunner) ReconcileOrder(ctx context.Context, number string, opts reconcilesvc.Options) (reconcilesvc.Result, error) {
	args := m.Called(ctx, number, opts)
	return args.Get(0).(reconcilesvc.Result), args.Error(1)
}

func (m *mockRunner) ReconcileBatch(ctx context.Context, sel reconcilesvc.Selector, source reconcilesvc.Source) (reconcilesvc.Report, error) {
	args := m.Called(ctx, sel, source)
	return args.Get(0).(reconcilesvc.Report), args.Error(1)
}

func (m *mockRunner) RetryFulfillment(ctx context.Context, number string) error {
	return m.Called(ctx, number).Error(0)
}

func message(t *testing.T, job reconcilesvc.Job) messaging.Message {
	t.Helper()
	value, err := json.Marshal(job)
	require.NoError(t, err)
	return messaging.Message{Topic: "orders.reconcile", Value: value}
}

func newRegistration(runner Runner) messaging.Handler {
	cfg := config.Config{}
	cfg.Messaging.Kafka.ReconcileTopic = "orders.reconcile"
	return NewJobHandler(runner, zap.NewNop(), cfg).Handler
}

func TestRegistrationTopic(t *testing.T) {
	cfg := config.Config{}
	cfg.Messaging.Kafka.ReconcileTopic = "orders.reconcile"
	assert.Equal(t, "orders.reconcile", NewJobHandler(new(mockRunner), zap.NewNop(), cfg).Topic)
}

func TestReconcileJob(t *testing.T) {
	runner := new(mockRunner)
	handle := newRegistration(runner)
	runner.On("ReconcileOrder", mock.Anything, "ORD-1", reconcilesvc.Options{Source: reconcilesvc.SourceWorker, Force: true}).
		Return(reconcilesvc.Result{Outcome: reconcilesvc.OutcomeUpdated}, nil).Once()

	err := handle(context.Background(), message(t, reconcilesvc.Job{Kind: reconcilesvc.JobReconcile, OrderNumber: "ORD-1", Force: true}))
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestReconcileJobErrors(t *testing.T) {
	cases := []struct {
		err   error
		retry bool
	}{
		{fmt.Errorf("%w: down", reconcilesvc.ErrGatewayUnavailable), true},
		{fmt.Errorf("%w: smtp", reconcilesvc.ErrFulfillment), false},
		{reconcilesvc.ErrOrderNotFound, false},
	}
	for _, tc := range cases {
		runner := new(mockRunner)
		handle := newRegistration(runner)
		runner.On("ReconcileOrder", mock.Anything, "ORD-1", mock.Anything).
			Return(reconcilesvc.Result{Outcome: reconcilesvc.OutcomeFailed}, tc.err).Once()

		err := handle(context.Background(), message(t, reconcilesvc.Job{Kind: reconcilesvc.JobReconcile, OrderNumber: "ORD-1"}))
		assert.Equal(t, tc.retry, err != nil, tc.err.Error())
	}
}

func TestFulfillJobReturnsErrorForRetry(t *testing.T) {
	runner := new(mockRunner)
	handle := newRegistration(runner)
	runner.On("RetryFulfillment", mock.Anything, "ORD-1").Return(errors.New("smtp down")).Once()
	runner.On("RetryFulfillment", mock.Anything, "ORD-1").Return(nil).Once()

	msg := message(t, reconcilesvc.Job{Kind: reconcilesvc.JobFulfill, OrderNumber: "ORD-1"})
	require.NoError(t, messaging.Deliver(context.Background(), handle, msg, 3, 0))
	runner.AssertNumberOfCalls(t, "RetryFulfillment", 2)
}

func TestBatchJob(t *testing.T) {
	runner := new(mockRunner)
	handle := newRegistration(runner)
	sel := reconcilesvc.Recent(3)
	runner.On("ReconcileBatch", mock.Anything, sel, reconcilesvc.SourceWorker).
		Return(reconcilesvc.Report{Selector: sel.String(), Total: 4, Updated: 1}, nil).Once()

	require.NoError(t, handle(context.Background(), message(t, reconcilesvc.Job{Kind: reconcilesvc.JobBatch, Selector: &sel, Source: reconcilesvc.SourceAdmin})))
	runner.AssertExpectations(t)
}

func TestMalformedJobIsDropped(t *testing.T) {
	runner := new(mockRunner)
	handle := newRegistration(runner)

	assert.NoError(t, handle(context.Background(), messaging.Message{Value: []byte("not json")}))
	assert.NoError(t, handle(context.Background(), message(t, reconcilesvc.Job{Kind: reconcilesvc.JobFulfill})))
	runner.AssertNotCalled(t, "RetryFulfillment", mock.Anything, mock.Anything)
}
