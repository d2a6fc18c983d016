package services

import (
	"time"

	"heartlung/models"
)

// LevelMeasurement is the raw surface position found in one frame
type LevelMeasurement struct {
	CurrentLevelY int // pixels above the ROI bottom, 0 when nothing matched
	ScreenLevelY  int // absolute frame row of the surface
}

// Classify maps a level in pixels onto the calibrated bands
func Classify(levelY int, cal models.CalibrationConfig) models.Classification {
	switch {
	case levelY > cal.HighThreshold():
		return models.LevelHigh
	case levelY < cal.LowThreshold():
		return models.LevelLow
	default:
		return models.LevelNormal
	}
}

// EvaluateLevel classifies a measurement and advances the maintenance timer
func EvaluateLevel(m LevelMeasurement, cal models.CalibrationConfig, timer models.MaintenanceTimer, now time.Time) (models.LevelReading, models.MaintenanceTimer) {
	class := Classify(m.CurrentLevelY, cal)
	timer, maintained := timer.Observe(class, now, cal.MaintenanceThreshold)

	return models.LevelReading{
		CurrentLevelY:  m.CurrentLevelY,
		ScreenLevelY:   m.ScreenLevelY,
		Classification: class,
		AlertActive:    class != models.LevelNormal,
		IsMaintained:   maintained,
		MeasuredAt:     now,
	}, timer
}
