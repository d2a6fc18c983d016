package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"heartlung/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSink struct {
	mu       sync.Mutex
	batches  [][]models.Event
	failures int
}

func (s *fakeSink) PublishBatch(_ context.Context, events []models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	s.batches = append(s.batches, append([]models.Event(nil), events...))
	return nil
}

func (s *fakeSink) snapshot() [][]models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]models.Event(nil), s.batches...)
}

func newTestForwarder(sink EventSink, batchSize int, timeout time.Duration) *EventForwarder {
	cfg := testConfig()
	cfg.EventBatchSize = batchSize
	cfg.EventBatchTimeout = timeout
	f := NewEventForwarder(cfg, sink, zap.NewNop())
	f.retryBackoff = time.Millisecond
	return f
}

func TestEventForwarder_FlushesFullBatch(t *testing.T) {
	sink := &fakeSink{}
	f := newTestForwarder(sink, 3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Start(ctx)

	now := time.Now()
	for i := 0; i < 3; i++ {
		f.Enqueue(models.NewEvent(now, models.SeverityInfo, "tick"))
	}

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, sink.snapshot()[0], 3)
}

func TestEventForwarder_FlushesOnTimeout(t *testing.T) {
	sink := &fakeSink{}
	f := newTestForwarder(sink, 10, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Start(ctx)

	f.Enqueue(models.NewEvent(time.Now(), models.SeverityWarn, "Level: OUT OF RANGE sent to device"))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Level: OUT OF RANGE sent to device", sink.snapshot()[0][0].Message)
}

func TestEventForwarder_RetriesThenDelivers(t *testing.T) {
	sink := &fakeSink{failures: 2}
	f := newTestForwarder(sink, 1, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Start(ctx)

	f.Enqueue(models.NewEvent(time.Now(), models.SeverityAlarm, "Air bubble detected"))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestEventForwarder_FlushesOnShutdown(t *testing.T) {
	sink := &fakeSink{}
	f := newTestForwarder(sink, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go f.Start(ctx)

	f.Enqueue(models.NewEvent(time.Now(), models.SeverityInfo, "System shutdown complete"))
	cancel()

	require.True(t, f.WaitForShutdown(time.Second))
	batches := sink.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, "System shutdown complete", batches[0][0].Message)
}

func TestEventForwarder_SubscribedToState(t *testing.T) {
	sink := &fakeSink{}
	f := newTestForwarder(sink, 2, time.Hour)
	state := newTestState(newFakeClock())
	state.Subscribe(f.Enqueue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Start(ctx)

	state.LogEvent(models.SeverityInfo, "[COM] ready")
	state.LogEvent(models.SeverityAlarm, "Pump stall")

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	got := sink.snapshot()[0]
	assert.Equal(t, "[COM] ready", got[0].Message)
	assert.Equal(t, models.SeverityAlarm, got[1].Severity)
}

func TestEventRoutingKey(t *testing.T) {
	event := models.NewEvent(time.Now(), models.SeverityAlarm, "x")
	assert.Equal(t, "monitor.events.alarm", eventRoutingKey("monitor.events", event))
}
