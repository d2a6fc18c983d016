package services

import (
	"sync"
	"time"

	"heartlung/models"

	"go.uber.org/zap"
)

// MonitoringState is the single owner of telemetry, level, actuation bookkeeping,
// the event log and the trend history. Producers mutate it through guarded
// methods; everyone else reads point-in-time snapshots.
type MonitoringState struct {
	mu sync.RWMutex

	telemetry models.TelemetrySample
	level     models.LevelReading
	timer     models.MaintenanceTimer
	actuation models.ActuationState

	events      *Ring[models.Event]
	heartRate   *Ring[float64]
	pressure    *Ring[float64]
	temperature *Ring[float64]
	levelHist   *Ring[float64]

	subscribers []func(models.Event)
	now         func() time.Time
	logger      *zap.Logger
}

// NewMonitoringState creates the state with sentinel values
func NewMonitoringState(cal models.CalibrationConfig, eventCapacity, historyCapacity int, logger *zap.Logger) *MonitoringState {
	return &MonitoringState{
		level:       models.InitialLevelReading(cal),
		events:      NewRing[models.Event](eventCapacity),
		heartRate:   NewRing[float64](historyCapacity),
		pressure:    NewRing[float64](historyCapacity),
		temperature: NewRing[float64](historyCapacity),
		levelHist:   NewRing[float64](historyCapacity),
		now:         time.Now,
		logger:      logger,
	}
}

// SetClock replaces the time source (tests drive simulated time through it)
func (s *MonitoringState) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Now returns the current time of the state's clock
func (s *MonitoringState) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// Subscribe registers fn to be called for every new event. Callbacks run on
// the producer's goroutine after the state lock is released.
func (s *MonitoringState) Subscribe(fn func(models.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// LogEvent appends to the bounded event log and mirrors the entry to the process log
func (s *MonitoringState) LogEvent(severity models.Severity, message string) models.Event {
	s.mu.Lock()
	event := models.NewEvent(s.now(), severity, message)
	s.events.Push(event)
	subscribers := make([]func(models.Event), len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	fields := []zap.Field{zap.String("severity", string(severity)), zap.String("event_id", event.ID)}
	switch severity {
	case models.SeverityError, models.SeverityAlarm:
		s.logger.Error(message, fields...)
	case models.SeverityWarn:
		s.logger.Warn(message, fields...)
	default:
		s.logger.Info(message, fields...)
	}

	for _, fn := range subscribers {
		fn(event)
	}
	return event
}

// ApplyTelemetry merges a parsed status line into the sample, stamps the
// heartbeat and appends the vitals to their history series.
func (s *MonitoringState) ApplyTelemetry(update models.TelemetryUpdate, now time.Time) models.TelemetrySample {
	return s.applyTelemetry(update, now, true)
}

// ApplyPartialTelemetry merges the fields parsed before a line was abandoned.
// The heartbeat is stamped but no history point is recorded.
func (s *MonitoringState) ApplyPartialTelemetry(update models.TelemetryUpdate, now time.Time) models.TelemetrySample {
	return s.applyTelemetry(update, now, false)
}

func (s *MonitoringState) applyTelemetry(update models.TelemetryUpdate, now time.Time, record bool) models.TelemetrySample {
	s.mu.Lock()
	defer s.mu.Unlock()

	update.Apply(&s.telemetry)
	s.telemetry.Connected = true
	if now.After(s.telemetry.LastHeartbeat) {
		s.telemetry.LastHeartbeat = now
	}

	if record {
		s.heartRate.Push(s.telemetry.HeartRate)
		s.pressure.Push(s.telemetry.Pressure)
		s.temperature.Push(s.telemetry.Temperature)
	}

	return s.telemetry
}

// MarkConnected flags a freshly opened link as live
func (s *MonitoringState) MarkConnected(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.telemetry.Connected = true
	if now.After(s.telemetry.LastHeartbeat) {
		s.telemetry.LastHeartbeat = now
	}
}

// MarkDisconnected clears the connected flag and reports whether it was set
func (s *MonitoringState) MarkDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.telemetry.Connected
	s.telemetry.Connected = false
	return was
}

// SetLevel stores a new reading together with the hysteresis timer that produced it
func (s *MonitoringState) SetLevel(reading models.LevelReading, timer models.MaintenanceTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.level = reading
	s.timer = timer
	s.levelHist.Push(float64(reading.CurrentLevelY))
}

// RecordLevelSent remembers the normalcy last transmitted to the device
func (s *MonitoringState) RecordLevelSent(normal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actuation.LastSentNormalcy = &normal
	s.actuation.Transmissions++
}

// RecordSuction remembers the last successfully commanded pump state
func (s *MonitoringState) RecordSuction(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actuation.SuctionOn = on
	s.actuation.Transmissions++
}

func (s *MonitoringState) setWritePending(pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actuation.WritePending = pending
}

func (s *MonitoringState) Telemetry() models.TelemetrySample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.telemetry
}

func (s *MonitoringState) Level() models.LevelReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

func (s *MonitoringState) MaintenanceTimer() models.MaintenanceTimer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timer
}

func (s *MonitoringState) Actuation() models.ActuationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyActuation(s.actuation)
}

func (s *MonitoringState) Events() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events.Values()
}

// Snapshot returns a deep copy of everything the renderer may look at
func (s *MonitoringState) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return models.Snapshot{
		Telemetry: s.telemetry,
		Level:     s.level,
		Actuation: copyActuation(s.actuation),
		Events:    s.events.Values(),
		History: models.History{
			HeartRate:   s.heartRate.Values(),
			Pressure:    s.pressure.Values(),
			Temperature: s.temperature.Values(),
			Level:       s.levelHist.Values(),
		},
		TakenAt: s.now(),
	}
}

func copyActuation(a models.ActuationState) models.ActuationState {
	if a.LastSentNormalcy != nil {
		v := *a.LastSentNormalcy
		a.LastSentNormalcy = &v
	}
	return a
}
