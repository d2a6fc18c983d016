package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"heartlung/config"
	"heartlung/models"

	"go.uber.org/zap"
)

const (
	readChunkSize = 256
	maxLineLength = 1024
)

// TelemetryReader drains the serial link, turns lines into telemetry updates
// and events, and keeps the connected flag honest. It never reopens the link.
type TelemetryReader struct {
	link   *SerialLink
	state  *MonitoringState
	logger *zap.Logger

	idlePoll         time.Duration
	disconnectedPoll time.Duration
	stopOnParseError bool

	pending []byte
	chunk   []byte

	// OnSample is called after every applied status line
	OnSample func(models.TelemetrySample)
}

// NewTelemetryReader creates a reader. link may be nil (camera-only mode).
func NewTelemetryReader(cfg *config.Config, link *SerialLink, state *MonitoringState, logger *zap.Logger) *TelemetryReader {
	return &TelemetryReader{
		link:             link,
		state:            state,
		logger:           logger,
		idlePoll:         cfg.SerialIdlePoll,
		disconnectedPoll: cfg.SerialDisconnectedPoll,
		stopOnParseError: cfg.TelemetryParseMode == config.ParseModeLegacy,
		chunk:            make([]byte, readChunkSize),
	}
}

// Run polls the link until ctx is cancelled
func (r *TelemetryReader) Run(ctx context.Context) {
	r.logger.Info("Telemetry reader started",
		zap.Duration("idle_poll", r.idlePoll),
		zap.Duration("disconnected_poll", r.disconnectedPoll))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Telemetry reader stopped")
			return
		case <-timer.C:
			timer.Reset(r.Poll())
		}
	}
}

// Poll performs one read attempt and returns how long to wait before the next one
func (r *TelemetryReader) Poll() time.Duration {
	if !r.link.Connected() {
		if r.state.MarkDisconnected() {
			r.state.LogEvent(models.SeverityError, "Serial link lost, restart required to reconnect")
		}
		return r.disconnectedPoll
	}

	n, err := r.link.Read(r.chunk)
	if n > 0 {
		r.pending = append(r.pending, r.chunk[:n]...)
		r.drainLines()
	}
	if err != nil {
		r.pending = nil
		r.state.MarkDisconnected()
		r.state.LogEvent(models.SeverityError, fmt.Sprintf("Serial reader error: %v", err))
		return r.disconnectedPoll
	}
	if n == 0 {
		return r.idlePoll
	}
	return 0
}

func (r *TelemetryReader) drainLines() {
	for {
		i := bytes.IndexByte(r.pending, '\n')
		if i < 0 {
			break
		}
		line := string(r.pending[:i])
		r.pending = r.pending[i+1:]
		r.HandleLine(line)
	}

	if len(r.pending) > maxLineLength {
		r.logger.Warn("Discarding unterminated serial data", zap.Int("bytes", len(r.pending)))
		r.pending = r.pending[:0]
	}
	if len(r.pending) == 0 {
		// release the consumed prefix
		r.pending = nil
	}
}

// HandleLine interprets one received line
func (r *TelemetryReader) HandleLine(raw string) {
	line := strings.TrimSpace(strings.ToValidUTF8(raw, ""))
	if line == "" {
		return
	}

	switch ClassifyLine(line) {
	case LineStatus:
		r.handleStatus(line)
	case LineAlarm:
		r.state.LogEvent(models.SeverityAlarm, alarmText(line))
	case LineCom:
		r.state.LogEvent(models.SeverityInfo, line)
	default:
		r.logger.Debug("Ignoring serial line", zap.String("line", line))
	}
}

func (r *TelemetryReader) handleStatus(line string) {
	update, errs := ParseStatusLine(line, r.stopOnParseError)
	for _, err := range errs {
		r.state.LogEvent(models.SeverityError, fmt.Sprintf("Parse error: %v", err))
	}

	var sample models.TelemetrySample
	if r.stopOnParseError && len(errs) > 0 {
		// an abandoned line keeps its earlier fields but adds no trend point
		sample = r.state.ApplyPartialTelemetry(update, r.state.Now())
	} else {
		sample = r.state.ApplyTelemetry(update, r.state.Now())
	}

	r.logger.Debug("Status line applied",
		zap.Float64("heart_rate", sample.HeartRate),
		zap.Float64("pressure", sample.Pressure),
		zap.Int("bubble_value", sample.BubbleValue),
		zap.Int("spo2_value", sample.SpO2Value),
		zap.Float64("temperature", sample.Temperature),
		zap.Bool("alarm_active", sample.AlarmActive),
		zap.Bool("suction_on", sample.SuctionOn),
		zap.Int("parse_errors", len(errs)))

	if r.OnSample != nil {
		r.OnSample(sample)
	}
}
