package models

import (
	"time"
)

// TelemetrySample holds the last-known-good vitals reported by the microcontroller
type TelemetrySample struct {
	HeartRate     float64   `json:"heart_rate"`
	Pressure      float64   `json:"pressure"`
	BubbleValue   int       `json:"bubble_value"`
	SpO2Value     int       `json:"spo2_value"`
	Temperature   float64   `json:"temperature"`
	AlarmActive   bool      `json:"alarm_active"`
	SuctionOn     bool      `json:"suction_on"`
	Connected     bool      `json:"connected"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// TelemetryUpdate carries the fields parsed from one status line. Nil means
// the key was absent (or failed to parse) and the stored value is kept.
type TelemetryUpdate struct {
	HeartRate   *float64
	Pressure    *float64
	BubbleValue *int
	SpO2Value   *int
	Temperature *float64
	AlarmActive *bool
	SuctionOn   *bool
}

// Apply copies every present field of u into s
func (u TelemetryUpdate) Apply(s *TelemetrySample) {
	if u.HeartRate != nil {
		s.HeartRate = *u.HeartRate
	}
	if u.Pressure != nil {
		s.Pressure = *u.Pressure
	}
	if u.BubbleValue != nil {
		s.BubbleValue = *u.BubbleValue
	}
	if u.SpO2Value != nil {
		s.SpO2Value = *u.SpO2Value
	}
	if u.Temperature != nil {
		s.Temperature = *u.Temperature
	}
	if u.AlarmActive != nil {
		s.AlarmActive = *u.AlarmActive
	}
	if u.SuctionOn != nil {
		s.SuctionOn = *u.SuctionOn
	}
}

// LinkStatus is the derived liveness of the serial link
type LinkStatus string

const (
	LinkDisconnected LinkStatus = "DISCONNECTED"
	LinkStale        LinkStatus = "STALE"
	LinkLive         LinkStatus = "LIVE"
)

// Stale reports an open link that has not delivered a status line within timeout
func (s TelemetrySample) Stale(now time.Time, timeout time.Duration) bool {
	return s.Connected && now.Sub(s.LastHeartbeat) > timeout
}

// LinkStatus distinguishes "link open but quiet" from "link closed"
func (s TelemetrySample) LinkStatus(now time.Time, timeout time.Duration) LinkStatus {
	switch {
	case !s.Connected:
		return LinkDisconnected
	case s.Stale(now, timeout):
		return LinkStale
	default:
		return LinkLive
	}
}
