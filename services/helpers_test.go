package services

import (
	"image"
	"sync"
	"time"

	"heartlung/models"

	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testCalibration() models.CalibrationConfig {
	return models.CalibrationConfig{
		ROI: image.Rect(200, 180, 400, 380),
		Ranges: [2]models.HSVRange{
			{Lower: [3]float64{0, 120, 70}, Upper: [3]float64{10, 255, 255}},
			{Lower: [3]float64{170, 120, 70}, Upper: [3]float64{180, 255, 255}},
		},
		NormalTopFraction:    0.60,
		NormalBottomFraction: 0.40,
		KernelSize:           5,
		MaintenanceThreshold: time.Second,
	}
}

func newTestState(clock *fakeClock) *MonitoringState {
	s := NewMonitoringState(testCalibration(), 20, 50, zap.NewNop())
	s.SetClock(clock.Now)
	return s
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
