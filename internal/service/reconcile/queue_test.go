package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/messaging"
)

type mockMessaging struct{ mock.Mock }

func (m *mockMessaging) Publish(ctx context.Context, topic string, key, value []byte) error {
	return m.Called(ctx, topic, key, value).Error(0)
}

func (m *mockMessaging) Consume(ctx context.Context, handler messaging.Handler) error {
	return m.Called(ctx, handler).Error(0)
}

func (m *mockMessaging) Topics() []string { return []string{"orders.reconcile"} }

func queueConfig() config.Config {
	cfg := config.Config{}
	cfg.Messaging.Enabled = true
	cfg.Messaging.Driver = "kafka"
	cfg.Messaging.Kafka.ReconcileTopic = "orders.reconcile"
	return cfg
}

func TestQueueEnqueuePublishesKeyedJob(t *testing.T) {
	client := new(mockMessaging)
	q := NewQueue(client, queueConfig())

	var payload []byte
	client.On("Publish", mock.Anything, "orders.reconcile", []byte("ORD-1"), mock.Anything).
		Run(func(args mock.Arguments) { payload = args.Get(3).([]byte) }).
		Return(nil).Once()

	require.NoError(t, q.Enqueue(context.Background(), Job{Kind: JobFulfill, OrderNumber: "ORD-1", Source: SourceWebhook}))
	client.AssertExpectations(t)

	job, err := DecodeJob(payload)
	require.NoError(t, err)
	assert.Equal(t, JobFulfill, job.Kind)
	assert.Equal(t, "ORD-1", job.OrderNumber)
	assert.False(t, job.RequestedAt.IsZero())
}

func TestQueueEnqueueBatchUsesKindAsKey(t *testing.T) {
	client := new(mockMessaging)
	q := NewQueue(client, queueConfig())
	client.On("Publish", mock.Anything, "orders.reconcile", []byte("batch"), mock.Anything).Return(nil).Once()

	sel := Recent(3)
	require.NoError(t, q.Enqueue(context.Background(), Job{Kind: JobBatch, Selector: &sel, Source: SourceAdmin}))
	client.AssertExpectations(t)
}

func TestQueueEnqueueRefusesWhenMessagingDisabled(t *testing.T) {
	for name, mutate := range map[string]func(*config.Config){
		"switched off": func(cfg *config.Config) { cfg.Messaging.Enabled = false },
		"noop driver":  func(cfg *config.Config) { cfg.Messaging.Driver = "noop" },
	} {
		t.Run(name, func(t *testing.T) {
			client := new(mockMessaging)
			cfg := queueConfig()
			mutate(&cfg)

			err := NewQueue(client, cfg).Enqueue(context.Background(), Job{Kind: JobFulfill, OrderNumber: "ORD-1"})
			assert.ErrorIs(t, err, messaging.ErrDisabled)
			client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestJobValidate(t *testing.T) {
	assert.Error(t, Job{Kind: JobReconcile}.Validate())
	assert.Error(t, Job{Kind: JobBatch}.Validate())
	assert.Error(t, Job{Kind: "purge"}.Validate())
	assert.NoError(t, Job{Kind: JobReconcile, OrderNumber: "ORD-1"}.Validate())

	_, err := DecodeJob([]byte("{not json"))
	assert.Error(t, err)
}
