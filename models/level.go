package models

import (
	"image"
	"time"
)

// Classification is the level band the liquid surface currently sits in
type Classification string

const (
	LevelInitializing Classification = "INITIALIZING"
	LevelNormal       Classification = "NORMAL"
	LevelHigh         Classification = "HIGH"
	LevelLow          Classification = "LOW"
)

// LevelReading is the outcome of one processed camera frame
type LevelReading struct {
	CurrentLevelY  int            `json:"current_level_y"` // pixels above the ROI bottom, 0 = empty
	ScreenLevelY   int            `json:"screen_level_y"`  // absolute frame row of the surface
	Classification Classification `json:"classification"`
	AlertActive    bool           `json:"alert_active"`
	IsMaintained   bool           `json:"is_maintained"`
	MeasuredAt     time.Time      `json:"measured_at"`
}

// InitialLevelReading is the sentinel reading held until the first frame is processed
func InitialLevelReading(cal CalibrationConfig) LevelReading {
	return LevelReading{
		CurrentLevelY:  0,
		ScreenLevelY:   cal.ROI.Max.Y,
		Classification: LevelInitializing,
	}
}

// HSVRange is an inclusive lower/upper bound in OpenCV HSV units (H 0-180, S/V 0-255)
type HSVRange struct {
	Lower [3]float64 `json:"lower"`
	Upper [3]float64 `json:"upper"`
}

// CalibrationConfig describes where and what the detector looks for. It is
// fixed for the lifetime of the process.
type CalibrationConfig struct {
	ROI                  image.Rectangle
	Ranges               [2]HSVRange
	NormalTopFraction    float64
	NormalBottomFraction float64
	KernelSize           int
	MaintenanceThreshold time.Duration
	Mirror               bool
}

// BottleHeight is the vertical extent of the ROI
func (c CalibrationConfig) BottleHeight() int {
	return c.ROI.Dy()
}

// HighThreshold is the level above which the reading is HIGH
func (c CalibrationConfig) HighThreshold() int {
	return int(float64(c.BottleHeight()) * c.NormalTopFraction)
}

// LowThreshold is the level below which the reading is LOW
func (c CalibrationConfig) LowThreshold() int {
	return int(float64(c.BottleHeight()) * c.NormalBottomFraction)
}

// MaintenanceTimer tracks how long the level has continuously been NORMAL
type MaintenanceTimer struct {
	Since   time.Time
	Running bool
}

// Observe advances the timer with a new classification. Leaving NORMAL resets
// the timer at once; the maintained flag is only raised once NORMAL has held
// for at least threshold.
func (t MaintenanceTimer) Observe(class Classification, now time.Time, threshold time.Duration) (MaintenanceTimer, bool) {
	if class != LevelNormal {
		return MaintenanceTimer{}, false
	}
	if !t.Running {
		t = MaintenanceTimer{Since: now, Running: true}
	}
	return t, now.Sub(t.Since) >= threshold
}
