package services

import (
	"context"
	"time"

	"heartlung/config"
	"heartlung/models"

	"go.uber.org/zap"
)

// EventSink receives batches of event log entries
type EventSink interface {
	PublishBatch(ctx context.Context, events []models.Event) error
}

// EventForwarder batches events from the monitoring state and hands them to a
// sink. Enqueue never blocks the producer; events are dropped when the queue
// is full.
type EventForwarder struct {
	sink         EventSink
	logger       *zap.Logger
	queue        chan models.Event
	buffer       []models.Event
	maxBatchSize int
	batchTimeout time.Duration
	retryBackoff time.Duration
	shutdownChan chan struct{}
}

// NewEventForwarder creates a forwarder for the given sink
func NewEventForwarder(cfg *config.Config, sink EventSink, logger *zap.Logger) *EventForwarder {
	size := cfg.EventBatchSize
	if size < 1 {
		size = 1
	}
	return &EventForwarder{
		sink:         sink,
		logger:       logger,
		queue:        make(chan models.Event, size*4),
		buffer:       make([]models.Event, 0, size),
		maxBatchSize: size,
		batchTimeout: cfg.EventBatchTimeout,
		retryBackoff: time.Second,
		shutdownChan: make(chan struct{}),
	}
}

// Enqueue is meant to be registered with MonitoringState.Subscribe
func (f *EventForwarder) Enqueue(event models.Event) {
	select {
	case f.queue <- event:
	default:
		f.logger.Warn("Event forward queue full, dropping event", zap.String("event_id", event.ID))
	}
}

// Start batches queued events until ctx is cancelled, then flushes what is left
func (f *EventForwarder) Start(ctx context.Context) {
	defer close(f.shutdownChan)

	f.logger.Info("Starting event forwarder",
		zap.Int("max_batch_size", f.maxBatchSize),
		zap.Duration("batch_timeout", f.batchTimeout))

	flushTimer := time.NewTimer(f.batchTimeout)
	defer flushTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Event forwarder received shutdown signal")
			f.drainQueue()
			// the run context is gone; give the final flush its own deadline
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			f.flush(flushCtx)
			cancel()
			return

		case event := <-f.queue:
			f.buffer = append(f.buffer, event)

			if len(f.buffer) >= f.maxBatchSize {
				f.logger.Debug("Batch full, forwarding events", zap.Int("buffer_size", len(f.buffer)))

				if !flushTimer.Stop() {
					select {
					case <-flushTimer.C:
					default:
					}
				}

				f.flush(ctx)
				flushTimer.Reset(f.batchTimeout)
			}

		case <-flushTimer.C:
			if len(f.buffer) > 0 {
				f.logger.Debug("Batch timeout reached, forwarding events", zap.Int("buffer_size", len(f.buffer)))
				f.flush(ctx)
			}
			flushTimer.Reset(f.batchTimeout)
		}
	}
}

func (f *EventForwarder) drainQueue() {
	for {
		select {
		case event := <-f.queue:
			f.buffer = append(f.buffer, event)
		default:
			return
		}
	}
}

// flush sends the buffer to the sink with a bounded number of retries
func (f *EventForwarder) flush(ctx context.Context) {
	if len(f.buffer) == 0 {
		return
	}

	batch := make([]models.Event, len(f.buffer))
	copy(batch, f.buffer)
	f.buffer = f.buffer[:0]

	maxRetries := 3
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = f.sink.PublishBatch(ctx, batch)
		if err == nil {
			f.logger.Debug("Forwarded event batch", zap.Int("batch_size", len(batch)))
			return
		}

		f.logger.Error("Failed to forward event batch",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Int("batch_size", len(batch)),
			zap.Error(err))

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				attempt = maxRetries
			case <-time.After(time.Duration(attempt) * f.retryBackoff):
			}
		}
	}

	f.logger.Error("Failed to forward batch after all retries, events dropped",
		zap.Int("batch_size", len(batch)),
		zap.Error(err))
}

// WaitForShutdown waits for Start to return
func (f *EventForwarder) WaitForShutdown(timeout time.Duration) bool {
	select {
	case <-f.shutdownChan:
		return true
	case <-time.After(timeout):
		return false
	}
}
