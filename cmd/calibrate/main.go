package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"heartlung/config"
	"heartlung/models"
	"heartlung/services"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	warmup    = flag.Int("warmup", 10, "Frames to discard while the camera adjusts exposure")
	maskPath  = flag.String("mask", "", "Write the cleaned liquid mask to this image file")
	framePath = flag.String("frame", "", "Write the annotated frame to this image file")
)

// report is what the tool prints after one detection pass
type report struct {
	Reading       models.LevelReading `json:"reading"`
	ROI           string              `json:"roi"`
	BottleHeight  int                 `json:"bottle_height"`
	HighThreshold int                 `json:"high_threshold"`
	LowThreshold  int                 `json:"low_threshold"`
	FrameSize     string              `json:"frame_size"`
	MaskCoverage  float64             `json:"mask_coverage"`
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	cal := cfg.Calibration

	camera, err := gocv.OpenVideoCapture(cfg.CameraIndex)
	if err != nil {
		logger.Fatal("Failed to open camera", zap.Int("index", cfg.CameraIndex), zap.Error(err))
	}
	defer camera.Close()
	camera.Set(gocv.VideoCaptureFrameWidth, float64(cfg.CameraWidth))
	camera.Set(gocv.VideoCaptureFrameHeight, float64(cfg.CameraHeight))

	frame := gocv.NewMat()
	defer frame.Close()

	for i := 0; i <= *warmup; i++ {
		if !camera.Read(&frame) || frame.Empty() {
			logger.Fatal("Failed to read frame", zap.Int("attempt", i))
		}
	}

	detector := services.NewLevelDetector(cal)
	defer detector.Close()

	m, err := detector.Measure(frame)
	if err != nil {
		logger.Fatal("Detection failed", zap.Error(err))
	}
	reading, _ := services.EvaluateLevel(m, cal, models.MaintenanceTimer{}, time.Now())

	mask, err := detector.LiquidMask(frame)
	if err != nil {
		logger.Fatal("Failed to build mask", zap.Error(err))
	}
	defer mask.Close()

	out := report{
		Reading:       reading,
		ROI:           cal.ROI.String(),
		BottleHeight:  cal.BottleHeight(),
		HighThreshold: cal.HighThreshold(),
		LowThreshold:  cal.LowThreshold(),
		FrameSize:     fmt.Sprintf("%dx%d", frame.Cols(), frame.Rows()),
		MaskCoverage:  float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Fatal("Failed to write report", zap.Error(err))
	}

	if *maskPath != "" {
		if !gocv.IMWrite(*maskPath, mask) {
			logger.Error("Failed to write mask image", zap.String("path", *maskPath))
		}
	}
	if *framePath != "" {
		annotate(&frame, cal, reading)
		if !gocv.IMWrite(*framePath, frame) {
			logger.Error("Failed to write frame image", zap.String("path", *framePath))
		}
	}
}

// annotate draws the ROI, the normal band and the detected surface
func annotate(frame *gocv.Mat, cal models.CalibrationConfig, r models.LevelReading) {
	if cal.Mirror {
		gocv.Flip(*frame, frame, 1)
	}

	roi := cal.ROI
	blue := color.RGBA{R: 0, G: 128, B: 255}
	yellow := color.RGBA{R: 255, G: 200, B: 0}
	green := color.RGBA{R: 0, G: 220, B: 0}

	gocv.Rectangle(frame, roi, blue, 2)

	highY := roi.Max.Y - cal.HighThreshold()
	lowY := roi.Max.Y - cal.LowThreshold()
	gocv.Line(frame, image.Pt(roi.Min.X, highY), image.Pt(roi.Max.X, highY), yellow, 1)
	gocv.Line(frame, image.Pt(roi.Min.X, lowY), image.Pt(roi.Max.X, lowY), yellow, 1)
	gocv.PutText(frame, "HIGH", image.Pt(roi.Max.X+5, highY), gocv.FontHersheySimplex, 0.5, yellow, 1)
	gocv.PutText(frame, "LOW", image.Pt(roi.Max.X+5, lowY), gocv.FontHersheySimplex, 0.5, yellow, 1)

	gocv.Line(frame, image.Pt(roi.Min.X, r.ScreenLevelY), image.Pt(roi.Max.X, r.ScreenLevelY), green, 2)
	gocv.PutText(frame, fmt.Sprintf("%s %dpx", r.Classification, r.CurrentLevelY),
		image.Pt(roi.Min.X, roi.Min.Y-10), gocv.FontHersheySimplex, 0.6, green, 2)
}
