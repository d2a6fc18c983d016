package services

import (
	"context"
	"fmt"
	"time"

	"heartlung/config"
	"heartlung/models"

	"go.uber.org/zap"
)

// LinkAlerter is told about link liveness transitions
type LinkAlerter interface {
	SendLinkLostAlert(status models.LinkStatus, lastSeen time.Time, silence time.Duration) error
	SendLinkRecoveredAlert(downFor time.Duration) error
}

// LinkWatcher turns the telemetry heartbeat into liveness transitions: a link
// that is open but quiet becomes STALE, a closed one DISCONNECTED.
type LinkWatcher struct {
	state   *MonitoringState
	alerter LinkAlerter
	logger  *zap.Logger
	timeout time.Duration
	period  time.Duration

	status models.LinkStatus
	downAt time.Time
}

// NewLinkWatcher creates a watcher seeded with the current link status. alerter may be nil.
func NewLinkWatcher(cfg *config.Config, state *MonitoringState, alerter LinkAlerter, logger *zap.Logger) *LinkWatcher {
	w := &LinkWatcher{
		state:   state,
		alerter: alerter,
		logger:  logger,
		timeout: cfg.HeartbeatTimeout,
		period:  time.Second,
	}
	now := state.Now()
	w.status = state.Telemetry().LinkStatus(now, w.timeout)
	if w.status != models.LinkLive {
		w.downAt = now
	}
	return w
}

// Run checks the link once per second until ctx is cancelled
func (w *LinkWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	w.logger.Info("Link watcher started", zap.Duration("heartbeat_timeout", w.timeout))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Link watcher stopped")
			return
		case <-ticker.C:
			w.Check(w.state.Now())
		}
	}
}

// Status returns the last observed link status
func (w *LinkWatcher) Status() models.LinkStatus {
	return w.status
}

// Check compares the current link status with the previous one and reports transitions
func (w *LinkWatcher) Check(now time.Time) models.LinkStatus {
	telemetry := w.state.Telemetry()
	status := telemetry.LinkStatus(now, w.timeout)
	if status == w.status {
		return status
	}

	prev := w.status
	w.status = status
	silence := now.Sub(telemetry.LastHeartbeat)

	w.logger.Info("Link status changed",
		zap.String("from", string(prev)),
		zap.String("to", string(status)),
		zap.Duration("since_heartbeat", silence))

	switch status {
	case models.LinkStale:
		w.downAt = now
		w.state.LogEvent(models.SeverityWarn, fmt.Sprintf("No telemetry for %s", silence.Round(time.Second)))
		w.alertLost(status, telemetry.LastHeartbeat, silence)

	case models.LinkDisconnected:
		// the component that lost the link records the event; only the alert is raised here
		if prev == models.LinkLive {
			w.downAt = now
		}
		w.alertLost(status, telemetry.LastHeartbeat, silence)

	case models.LinkLive:
		downFor := now.Sub(w.downAt)
		w.state.LogEvent(models.SeveritySuccess, "Telemetry resumed")
		if w.alerter != nil {
			if err := w.alerter.SendLinkRecoveredAlert(downFor); err != nil {
				w.logger.Error("Failed to send link recovery alert", zap.Error(err))
			}
		}
	}
	return status
}

func (w *LinkWatcher) alertLost(status models.LinkStatus, lastSeen time.Time, silence time.Duration) {
	if w.alerter == nil {
		return
	}
	if err := w.alerter.SendLinkLostAlert(status, lastSeen, silence); err != nil {
		w.logger.Error("Failed to send link lost alert",
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
