package services

import (
	"context"
	"fmt"
	"time"

	"heartlung/config"
	"heartlung/models"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// FrameSource yields the most recent camera frame. *gocv.VideoCapture satisfies it.
type FrameSource interface {
	Read(m *gocv.Mat) bool
}

// LevelObserver is notified of every stored reading
type LevelObserver interface {
	OnLevel(reading models.LevelReading)
}

// LevelObserverFunc adapts a function to LevelObserver
type LevelObserverFunc func(reading models.LevelReading)

func (f LevelObserverFunc) OnLevel(reading models.LevelReading) { f(reading) }

// LevelObservers fans a reading out in order
type LevelObservers []LevelObserver

func (o LevelObservers) OnLevel(reading models.LevelReading) {
	for _, obs := range o {
		obs.OnLevel(reading)
	}
}

// frames missed in a row before the operator is told the camera went quiet
const frameFailureWarnAfter = 100

// FrameLoop runs the detection timing domain: one frame per tick, no queueing
type FrameLoop struct {
	source   FrameSource
	detector *LevelDetector
	state    *MonitoringState
	observer LevelObserver
	logger   *zap.Logger
	interval time.Duration

	frame     gocv.Mat
	failures  int
	lastClass models.Classification

	// closed when the goroutine launched by Start returns
	done chan struct{}
}

func NewFrameLoop(cfg *config.Config, source FrameSource, detector *LevelDetector, state *MonitoringState, observer LevelObserver, logger *zap.Logger) *FrameLoop {
	return &FrameLoop{
		source:   source,
		detector: detector,
		state:    state,
		observer: observer,
		logger:   logger,
		interval: cfg.FrameInterval,
		frame:    gocv.NewMat(),
	}
}

// Start runs the loop in its own goroutine until ctx is cancelled
func (f *FrameLoop) Start(ctx context.Context) {
	f.done = make(chan struct{})
	go func() {
		defer close(f.done)
		f.Run(ctx)
	}()
}

// Wait blocks until the loop started by Start returns or timeout elapses.
// It reports whether the loop has stopped.
func (f *FrameLoop) Wait(timeout time.Duration) bool {
	if f.Stopped() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return true
	case <-timer.C:
		return false
	}
}

// Stopped reports whether no Tick can still be running
func (f *FrameLoop) Stopped() bool {
	if f.done == nil {
		return true
	}
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Close releases the frame buffer. A loop stuck in a camera read still owns
// it, so Close refuses until the loop has stopped.
func (f *FrameLoop) Close() error {
	if !f.Stopped() {
		return fmt.Errorf("frame loop still running")
	}
	return f.frame.Close()
}

// Run ticks at the configured cadence until ctx is cancelled. Ticks missed
// while a slow frame is processed are dropped, never queued.
func (f *FrameLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Info("Frame loop started", zap.Duration("interval", f.interval))

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Frame loop stopped")
			return
		case <-ticker.C:
			_ = f.Tick(f.state.Now())
		}
	}
}

// Tick processes the latest frame. On a frame error the previous reading and
// the maintenance timer are left untouched.
func (f *FrameLoop) Tick(now time.Time) error {
	if !f.source.Read(&f.frame) || f.frame.Empty() {
		err := fmt.Errorf("%w: camera read failed", models.ErrFrame)
		f.frameFailed(err)
		return err
	}

	reading, timer, err := f.detector.Process(f.frame, f.state.MaintenanceTimer(), now)
	if err != nil {
		f.frameFailed(err)
		return err
	}
	f.frameRecovered()

	f.state.SetLevel(reading, timer)

	if reading.Classification != f.lastClass {
		f.logger.Info("Level classification changed",
			zap.String("from", string(f.lastClass)),
			zap.String("to", string(reading.Classification)),
			zap.Int("level_y", reading.CurrentLevelY))
		f.lastClass = reading.Classification
	}

	if f.observer != nil {
		f.observer.OnLevel(reading)
	}
	return nil
}

// frameFailed counts consecutive unusable frames, whether the camera failed
// or the frame could not be measured, and raises one event per stall.
func (f *FrameLoop) frameFailed(err error) {
	f.logger.Debug("Skipping frame", zap.Error(err))
	f.failures++
	if f.failures == frameFailureWarnAfter {
		f.state.LogEvent(models.SeverityWarn, fmt.Sprintf("Camera frames unavailable: %v", err))
	}
}

func (f *FrameLoop) frameRecovered() {
	if f.failures >= frameFailureWarnAfter {
		f.state.LogEvent(models.SeveritySuccess, "Camera frames resumed")
	}
	f.failures = 0
}
