package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("DB_WRITER_DSN", "file::memory:")
	t.Setenv("DB_READER_DSN", "")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.ThrottleWindow)
	assert.Equal(t, 30*time.Minute, cfg.Reconcile.PollWindow)
	assert.Equal(t, 20, cfg.Reconcile.PollLimit)
	assert.Equal(t, 24*time.Hour, cfg.Reconcile.NotFoundExpireAfter)
	assert.Equal(t, 6*time.Hour, cfg.Cleanup.Threshold)
	assert.Equal(t, "orders.reconcile", cfg.Messaging.Kafka.ReconcileTopic)
	assert.Equal(t, "orders.reconcile.dlq", cfg.Messaging.Kafka.DeadLetterTopic)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.FulfillmentLease)
	assert.Equal(t, 50, cfg.Reconcile.FulfillmentBatch)
}

func TestNewDisablesDrivers(t *testing.T) {
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("MESSAGING_ENABLED", "false")
	t.Setenv("GATEWAY_BASE_URL", "https://gateway.test/ ")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "noop", cfg.Cache.Driver)
	assert.Equal(t, "noop", cfg.Messaging.Driver)
	assert.Equal(t, "https://gateway.test", cfg.Gateway.BaseURL)
}

func TestNewRejectsInvalidValues(t *testing.T) {
	t.Run("cache driver", func(t *testing.T) {
		t.Setenv("CACHE_DRIVER", "memcached")
		_, err := New()
		assert.Error(t, err)
	})

	t.Run("cleanup threshold", func(t *testing.T) {
		t.Setenv("CLEANUP_THRESHOLD", "-1h")
		_, err := New()
		assert.Error(t, err)
	})

	t.Run("mail without host", func(t *testing.T) {
		t.Setenv("MAIL_ENABLED", "true")
		t.Setenv("SMTP_HOST", "")
		_, err := New()
		assert.Error(t, err)
	})
}

func TestEnvReaderList(t *testing.T) {
	env := &envReader{}
	t.Setenv("TEST_BROKERS", " a:9092, ,b:9092 ")
	assert.Equal(t, []string{"a:9092", "b:9092"}, env.list("TEST_BROKERS", nil))

	t.Setenv("TEST_BROKERS", " , ")
	assert.Equal(t, []string{"x"}, env.list("TEST_BROKERS", []string{"x"}))
	assert.NoError(t, env.err())
}

func TestNewReportsMalformedValues(t *testing.T) {
	t.Setenv("RECONCILE_THROTTLE_WINDOW", "30 seconds")
	t.Setenv("WORKER_CONCURRENCY", "four")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RECONCILE_THROTTLE_WINDOW")
	assert.Contains(t, err.Error(), "WORKER_CONCURRENCY")
}

func TestEnvReaderBlankUsesDefault(t *testing.T) {
	env := &envReader{}
	t.Setenv("TEST_PORT", "  ")
	assert.Equal(t, 8080, env.int("TEST_PORT", 8080))
	assert.NoError(t, env.err())
}
