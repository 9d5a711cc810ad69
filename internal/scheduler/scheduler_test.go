package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/reconcile"
)

type recordingBatcher struct {
	selectors []reconcile.Selector
	sources   []reconcile.Source
	resumed   []int
	err       error
}

func (b *recordingBatcher) ReconcileBatch(_ context.Context, sel reconcile.Selector, source reconcile.Source) (reconcile.Report, error) {
	b.selectors = append(b.selectors, sel)
	b.sources = append(b.sources, source)
	return reconcile.Report{Selector: sel.String()}, b.err
}

func (b *recordingBatcher) ResumeFulfillments(_ context.Context, limit int, source reconcile.Source) (reconcile.Report, error) {
	b.resumed = append(b.resumed, limit)
	b.sources = append(b.sources, source)
	return reconcile.Report{Selector: "fulfillment"}, nil
}

type recordingSweeper struct {
	thresholds []time.Duration
}

func (s *recordingSweeper) Run(_ context.Context, threshold time.Duration) (int, error) {
	s.thresholds = append(s.thresholds, threshold)
	return 2, nil
}

func schedulerConfig() config.Config {
	cfg := config.Config{}
	cfg.Reconcile.ScheduleEnabled = true
	cfg.Reconcile.ScheduleSpec = "@every 10m"
	cfg.Reconcile.ScheduleDays = 2
	cfg.Reconcile.FulfillmentBatch = 50
	cfg.Cleanup.Spec = "@every 30m"
	return cfg
}

func TestNewRegistersConfiguredJobs(t *testing.T) {
	s, err := New(&recordingBatcher{}, &recordingSweeper{}, schedulerConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pending-sync", "abandoned-sweep"}, s.Jobs())

	cfg := schedulerConfig()
	cfg.Reconcile.ScheduleEnabled = false
	cfg.Cleanup.Spec = ""
	s, err = New(&recordingBatcher{}, &recordingSweeper{}, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, s.Jobs())
}

func TestNewRejectsBadSpec(t *testing.T) {
	cfg := schedulerConfig()
	cfg.Reconcile.ScheduleSpec = "every now and then"
	_, err := New(&recordingBatcher{}, &recordingSweeper{}, cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestJobsCallServices(t *testing.T) {
	batcher := &recordingBatcher{}
	sweeper := &recordingSweeper{}
	s, err := New(batcher, sweeper, schedulerConfig(), zap.NewNop())
	require.NoError(t, err)

	s.syncPending(context.Background())
	s.sweep(context.Background())

	require.Len(t, batcher.selectors, 1)
	assert.Equal(t, reconcile.Pending(2), batcher.selectors[0])
	assert.Equal(t, []int{50}, batcher.resumed)
	for _, source := range batcher.sources {
		assert.Equal(t, reconcile.SourceScheduler, source)
	}
	assert.Equal(t, []time.Duration{0}, sweeper.thresholds)

	// A failed batch still retries owed fulfillments.
	batcher.err = errors.New("db down")
	s.syncPending(context.Background())
	assert.Len(t, batcher.selectors, 2)
	assert.Equal(t, []int{50, 50}, batcher.resumed)
}

func TestStartStop(t *testing.T) {
	s, err := New(&recordingBatcher{}, &recordingSweeper{}, schedulerConfig(), zap.NewNop())
	require.NoError(t, err)
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
