package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"heartlung/config"
	"heartlung/log"
	"heartlung/models"
	"heartlung/services"
	"heartlung/ui"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func main() {
	// Bootstrap logger until the configured one is built
	logger := log.GetInstance()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger, err = log.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogOutput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Monitor exited with error", zap.Error(err))
		logger.Sync()
		fmt.Fprintf(os.Stderr, "heartlung: %v\n", err)
		os.Exit(1)
	}
	logger.Sync()
}

const shutdownTimeout = 5 * time.Second

// run owns every resource so deferred releases happen on all exit paths
func run(cfg *config.Config, logger *zap.Logger) error {
	state := services.NewMonitoringState(cfg.Calibration, cfg.EventLogCapacity, cfg.HistoryCapacity, logger)
	state.LogEvent(models.SeverityInfo, "Heart-lung monitor initializing")

	// Serial link is optional: without it the monitor runs detector-only
	link, err := services.OpenSerialLink(cfg, logger)
	if err != nil {
		state.LogEvent(models.SeverityWarn, fmt.Sprintf("Serial unavailable (%v), running in camera-only mode", err))
	} else {
		state.MarkConnected(state.Now())
		state.LogEvent(models.SeveritySuccess, fmt.Sprintf("Connected to controller on %s", cfg.SerialPort))
	}
	defer link.Close()

	camera, err := gocv.OpenVideoCapture(cfg.CameraIndex)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", cfg.CameraIndex, err)
	}
	if !camera.IsOpened() {
		camera.Close()
		return fmt.Errorf("camera %d did not open", cfg.CameraIndex)
	}
	camera.Set(gocv.VideoCaptureFrameWidth, float64(cfg.CameraWidth))
	camera.Set(gocv.VideoCaptureFrameHeight, float64(cfg.CameraHeight))

	detector := services.NewLevelDetector(cfg.Calibration)

	controller := services.NewActuationController(link, state, logger)
	checker := services.NewVitalsChecker(cfg)
	reader := services.NewTelemetryReader(cfg, link, state, logger)
	observers := services.LevelObservers{controller}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	// Telegram alerts (optional)
	var alerter services.LinkAlerter
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegramService, err := services.NewTelegramService(cfg, logger)
		if err != nil {
			state.LogEvent(models.SeverityWarn, fmt.Sprintf("Telegram alerts disabled: %v", err))
		} else {
			alerter = telegramService
			spawn(telegramService.Run)
			state.Subscribe(telegramService.NotifyEvent)

			reader.OnSample = func(sample models.TelemetrySample) {
				anomalies := checker.Check(sample, state.Now())
				if len(anomalies) == 0 {
					return
				}
				logger.Warn("Vitals out of range", zap.Int("anomaly_count", len(anomalies)))
				if err := telegramService.SendAnomalyAlert(anomalies, sample); err != nil {
					logger.Error("Failed to queue vitals alert", zap.Error(err))
				}
			}
			observers = append(observers, services.LevelObserverFunc(func(r models.LevelReading) {
				if !r.AlertActive {
					return
				}
				if err := telegramService.SendLevelAlert(checker.CheckLevel(r, cfg.Calibration)); err != nil {
					logger.Error("Failed to queue level alert", zap.Error(err))
				}
			}))

			if err := telegramService.SendStartupMessage(link.Connected()); err != nil {
				logger.Warn("Failed to send startup message", zap.Error(err))
			}
		}
	}

	// RabbitMQ event forwarding (optional)
	if cfg.RabbitMQURL != "" {
		publisher, err := services.NewRabbitMQPublisher(cfg, logger)
		if err != nil {
			state.LogEvent(models.SeverityWarn, fmt.Sprintf("Event forwarding disabled: %v", err))
		} else {
			defer publisher.Close()
			forwarder := services.NewEventForwarder(cfg, publisher, logger)
			state.Subscribe(forwarder.Enqueue)
			spawn(forwarder.Start)
		}
	}

	// MQTT snapshot publishing (optional)
	if cfg.MQTTBroker != "" {
		snapshots, err := services.NewMQTTSnapshotPublisher(cfg, state, logger)
		if err != nil {
			state.LogEvent(models.SeverityWarn, fmt.Sprintf("Snapshot publishing disabled: %v", err))
		} else {
			defer snapshots.Close()
			spawn(snapshots.Start)
		}
	}

	frameLoop := services.NewFrameLoop(cfg, camera, detector, state, observers, logger)
	defer func() {
		// a tick blocked in camera.Read still uses these buffers
		if !frameLoop.Stopped() {
			logger.Warn("Frame loop did not stop, leaving camera buffers allocated")
			return
		}
		frameLoop.Close()
		detector.Close()
		camera.Close()
	}()
	watcher := services.NewLinkWatcher(cfg, state, alerter, logger)

	spawn(reader.Run)
	frameLoop.Start(ctx)
	spawn(watcher.Run)

	logger.Info("Heart-lung monitor started",
		zap.Bool("serial_connected", link.Connected()),
		zap.String("roi", cfg.Calibration.ROI.String()),
		zap.Int("high_threshold", cfg.Calibration.HighThreshold()),
		zap.Int("low_threshold", cfg.Calibration.LowThreshold()),
		zap.Duration("maintenance_threshold", cfg.Calibration.MaintenanceThreshold),
		zap.Bool("ui", cfg.UIEnabled))

	if cfg.UIEnabled {
		dashboard := ui.New(state, controller, checker, cfg.Calibration, cfg.HeartbeatTimeout)
		program := tea.NewProgram(dashboard, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			logger.Error("Dashboard stopped with error", zap.Error(err))
		}
	} else {
		<-ctx.Done()
	}

	logger.Info("Shutdown requested, stopping loops")
	state.LogEvent(models.SeverityInfo, "Heart-lung monitor shutting down")
	cancel()

	deadline := time.Now().Add(shutdownTimeout)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	stopped := false
	select {
	case <-done:
		stopped = frameLoop.Wait(time.Until(deadline))
	case <-time.After(shutdownTimeout):
	}
	if stopped {
		logger.Info("All loops stopped")
	} else {
		logger.Warn("Cleanup timeout, releasing what is safe to release")
	}

	state.LogEvent(models.SeverityInfo, "System shutdown complete")
	return nil
}
