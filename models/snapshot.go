package models

import "time"

// History holds the bounded trend series, oldest first
type History struct {
	HeartRate   []float64 `json:"heart_rate"`
	Pressure    []float64 `json:"pressure"`
	Temperature []float64 `json:"temperature"`
	Level       []float64 `json:"level"`
}

// Snapshot is a point-in-time copy of the monitoring state. Nothing in it
// aliases the live state.
type Snapshot struct {
	Telemetry TelemetrySample `json:"telemetry"`
	Level     LevelReading    `json:"level"`
	Actuation ActuationState  `json:"actuation"`
	Events    []Event         `json:"events"`
	History   History         `json:"history"`
	TakenAt   time.Time       `json:"taken_at"`
}
