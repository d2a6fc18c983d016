package services

import (
	"fmt"
	"image"
	"time"

	"heartlung/models"

	"gocv.io/x/gocv"
)

// LevelDetector finds the liquid surface inside the calibrated ROI by HSV
// color segmentation. It holds no state besides the precomputed kernel and
// color bounds.
type LevelDetector struct {
	cal    models.CalibrationConfig
	kernel gocv.Mat
	lower  [2]gocv.Scalar
	upper  [2]gocv.Scalar
}

func NewLevelDetector(cal models.CalibrationConfig) *LevelDetector {
	d := &LevelDetector{
		cal:    cal,
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cal.KernelSize, cal.KernelSize)),
	}
	for i, r := range cal.Ranges {
		d.lower[i] = gocv.NewScalar(r.Lower[0], r.Lower[1], r.Lower[2], 0)
		d.upper[i] = gocv.NewScalar(r.Upper[0], r.Upper[1], r.Upper[2], 0)
	}
	return d
}

// Close releases the kernel
func (d *LevelDetector) Close() error {
	return d.kernel.Close()
}

// Process measures the frame and folds the result into a reading. On error
// the caller keeps its previous reading and timer.
func (d *LevelDetector) Process(frame gocv.Mat, timer models.MaintenanceTimer, now time.Time) (models.LevelReading, models.MaintenanceTimer, error) {
	m, err := d.Measure(frame)
	if err != nil {
		return models.LevelReading{}, timer, err
	}
	reading, timer := EvaluateLevel(m, d.cal, timer, now)
	return reading, timer, nil
}

// Measure locates the topmost liquid row in the ROI
func (d *LevelDetector) Measure(frame gocv.Mat) (LevelMeasurement, error) {
	mask, err := d.LiquidMask(frame)
	if err != nil {
		return LevelMeasurement{}, err
	}
	defer mask.Close()

	roi := d.cal.ROI
	top, found := topSetRow(mask)
	if !found {
		return LevelMeasurement{CurrentLevelY: 0, ScreenLevelY: roi.Max.Y}, nil
	}
	return LevelMeasurement{
		CurrentLevelY: roi.Dy() - top,
		ScreenLevelY:  top + roi.Min.Y,
	}, nil
}

// LiquidMask returns the cleaned binary mask of the ROI. The caller owns the Mat.
func (d *LevelDetector) LiquidMask(frame gocv.Mat) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.Mat{}, fmt.Errorf("%w: empty frame", models.ErrFrame)
	}

	src := frame
	if d.cal.Mirror {
		flipped := gocv.NewMat()
		defer flipped.Close()
		gocv.Flip(frame, &flipped, 1)
		src = flipped
	}

	roi := d.cal.ROI
	bounds := image.Rect(0, 0, src.Cols(), src.Rows())
	if roi.Empty() || !roi.In(bounds) {
		return gocv.Mat{}, fmt.Errorf("%w: ROI %v outside frame %v", models.ErrFrame, roi, bounds)
	}

	crop := src.Region(roi)
	defer crop.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(crop, &hsv, gocv.ColorBGRToHSV)

	first := gocv.NewMat()
	defer first.Close()
	second := gocv.NewMat()
	defer second.Close()
	gocv.InRangeWithScalar(hsv, d.lower[0], d.upper[0], &first)
	gocv.InRangeWithScalar(hsv, d.lower[1], d.upper[1], &second)

	mask := gocv.NewMat()
	gocv.BitwiseOr(first, second, &mask)

	// opening drops speckles, closing fills small holes in the column
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, d.kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, d.kernel)

	return mask, nil
}

func topSetRow(mask gocv.Mat) (int, bool) {
	if gocv.CountNonZero(mask) == 0 {
		return 0, false
	}

	rows, cols := mask.Rows(), mask.Cols()
	data := mask.ToBytes()
	for r := 0; r < rows; r++ {
		for _, v := range data[r*cols : (r+1)*cols] {
			if v != 0 {
				return r, true
			}
		}
	}
	return 0, false
}
