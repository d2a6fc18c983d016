package models

import (
	"time"
)

// AnomalyType represents the vital that left its safe band
type AnomalyType string

const (
	HeartRateOutOfRange   AnomalyType = "heart_rate"
	PressureOutOfRange    AnomalyType = "pressure"
	BubbleValueLow        AnomalyType = "bubble_value"
	SpO2OutOfRange        AnomalyType = "spo2_value"
	TemperatureOutOfRange AnomalyType = "temperature"
	LevelOutOfRange       AnomalyType = "liquid_level"
)

// Anomaly represents a detected out-of-range vital
type Anomaly struct {
	Type        AnomalyType `json:"type"`
	Value       float64     `json:"value"`
	Threshold   float64     `json:"threshold"`
	Timestamp   time.Time   `json:"timestamp"`
	Description string      `json:"description"`
}

// GetAnomalyEmoji returns appropriate emoji for anomaly type
func (a *Anomaly) GetAnomalyEmoji() string {
	switch a.Type {
	case HeartRateOutOfRange:
		return "💓"
	case PressureOutOfRange:
		return "🩸"
	case BubbleValueLow:
		return "💧"
	case SpO2OutOfRange:
		return "🫁"
	case TemperatureOutOfRange:
		return "🌡️"
	case LevelOutOfRange:
		return "🧪"
	default:
		return "⚠️"
	}
}
