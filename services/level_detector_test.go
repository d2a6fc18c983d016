package services

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"heartlung/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var liquidRed = color.RGBA{R: 220, G: 10, B: 10, A: 0}

func blackFrame(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func TestLevelDetector_SolidColumn(t *testing.T) {
	cal := testCalibration()
	d := NewLevelDetector(cal)
	defer d.Close()

	frame := blackFrame(480, 640)
	defer frame.Close()
	// liquid surface at row 280, filled down past the ROI bottom
	gocv.Rectangle(&frame, image.Rect(250, 280, 350, 400), liquidRed, -1)

	m, err := d.Measure(frame)
	require.NoError(t, err)

	assert.InDelta(t, 100, m.CurrentLevelY, 1)
	assert.InDelta(t, 280, m.ScreenLevelY, 1)
	assert.Equal(t, models.LevelNormal, Classify(m.CurrentLevelY, cal))
}

func TestLevelDetector_MirroredFrame(t *testing.T) {
	cal := testCalibration()
	cal.Mirror = true
	d := NewLevelDetector(cal)
	defer d.Close()

	frame := blackFrame(480, 640)
	defer frame.Close()
	gocv.Rectangle(&frame, image.Rect(260, 220, 340, 400), liquidRed, -1)

	m, err := d.Measure(frame)
	require.NoError(t, err)

	assert.InDelta(t, 160, m.CurrentLevelY, 1)
	assert.Equal(t, models.LevelHigh, Classify(m.CurrentLevelY, cal))
}

func TestLevelDetector_SpeckleRemoved(t *testing.T) {
	d := NewLevelDetector(testCalibration())
	defer d.Close()

	frame := blackFrame(480, 640)
	defer frame.Close()
	gocv.Rectangle(&frame, image.Rect(250, 330, 350, 400), liquidRed, -1)
	// a 2x2 reflection well above the surface
	gocv.Rectangle(&frame, image.Rect(300, 200, 301, 201), liquidRed, -1)

	m, err := d.Measure(frame)
	require.NoError(t, err)

	assert.InDelta(t, 50, m.CurrentLevelY, 1)
}

func TestLevelDetector_EmptyReservoir(t *testing.T) {
	cal := testCalibration()
	d := NewLevelDetector(cal)
	defer d.Close()

	frame := blackFrame(480, 640)
	defer frame.Close()

	m, err := d.Measure(frame)
	require.NoError(t, err)

	assert.Equal(t, 0, m.CurrentLevelY)
	assert.Equal(t, cal.ROI.Max.Y, m.ScreenLevelY)
	assert.Equal(t, models.LevelLow, Classify(m.CurrentLevelY, cal))
}

func TestLevelDetector_WrappedHueMatches(t *testing.T) {
	d := NewLevelDetector(testCalibration())
	defer d.Close()

	frame := blackFrame(480, 640)
	defer frame.Close()
	// magenta-ish red lands in the upper hue range (H ~ 175)
	gocv.Rectangle(&frame, image.Rect(250, 300, 350, 400), color.RGBA{R: 230, G: 10, B: 40, A: 0}, -1)

	m, err := d.Measure(frame)
	require.NoError(t, err)

	assert.InDelta(t, 80, m.CurrentLevelY, 1)
}

func TestLevelDetector_ROIOutsideFrame(t *testing.T) {
	d := NewLevelDetector(testCalibration())
	defer d.Close()

	frame := blackFrame(120, 160)
	defer frame.Close()

	_, err := d.Measure(frame)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrFrame))
}

func TestLevelDetector_EmptyFrame(t *testing.T) {
	d := NewLevelDetector(testCalibration())
	defer d.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	_, _, err := d.Process(frame, models.MaintenanceTimer{}, newFakeClock().Now())
	assert.True(t, errors.Is(err, models.ErrFrame))
}
