package models

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalibrationConfig_Thresholds(t *testing.T) {
	cal := CalibrationConfig{
		ROI:                  image.Rect(200, 180, 400, 380),
		NormalTopFraction:    0.6,
		NormalBottomFraction: 0.4,
	}

	assert.Equal(t, 200, cal.BottleHeight())
	assert.Equal(t, 120, cal.HighThreshold())
	assert.Equal(t, 80, cal.LowThreshold())

	initial := InitialLevelReading(cal)
	assert.Equal(t, LevelInitializing, initial.Classification)
	assert.Equal(t, 380, initial.ScreenLevelY)
	assert.Equal(t, 0, initial.CurrentLevelY)
}

func TestMaintenanceTimer_Observe(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	var timer MaintenanceTimer

	timer, ok := timer.Observe(LevelNormal, start, time.Second)
	assert.False(t, ok)
	assert.True(t, timer.Running)
	assert.Equal(t, start, timer.Since)

	timer, ok = timer.Observe(LevelNormal, start.Add(999*time.Millisecond), time.Second)
	assert.False(t, ok)

	timer, ok = timer.Observe(LevelNormal, start.Add(time.Second), time.Second)
	assert.True(t, ok)
	assert.Equal(t, start, timer.Since)

	timer, ok = timer.Observe(LevelHigh, start.Add(2*time.Second), time.Second)
	assert.False(t, ok)
	assert.False(t, timer.Running)

	timer, ok = timer.Observe(LevelNormal, start.Add(3*time.Second), time.Second)
	assert.False(t, ok)
	assert.Equal(t, start.Add(3*time.Second), timer.Since)
}
