package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

var (
	portName = flag.String("port", "/dev/pts/3", "Serial device to speak on (e.g. one end of a socat pty pair)")
	baud     = flag.Int("baud", 115200, "Baud rate")
	rate     = flag.Float64("rate", 2, "Status lines per second")
	anomaly  = flag.Float64("anomaly", 0.05, "Probability of out-of-range vitals per line (0.0-1.0)")
	alarms   = flag.Float64("alarms", 0.01, "Probability of an ALARM: line per status line")
	silent   = flag.Duration("silent-after", 0, "Stop sending status lines after this long (exercises link staleness)")
)

// VitalsGenerator produces status lines around a resting baseline
type VitalsGenerator struct {
	anomalyProbability float64

	mu        sync.Mutex
	suctionOn bool
	alarm     bool
	t         float64
}

func NewVitalsGenerator(anomalyProb float64) *VitalsGenerator {
	return &VitalsGenerator{anomalyProbability: anomalyProb}
}

// SetSuction mirrors a received pump command
func (g *VitalsGenerator) SetSuction(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suctionOn = on
}

// StatusLine renders the next [STATUS] line
func (g *VitalsGenerator) StatusLine() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.t += 0.1
	isAnomaly := rand.Float64() < g.anomalyProbability

	// slow drift plus noise
	hr := 72 + 6*math.Sin(g.t) + rand.Float64()*4 - 2
	pressure := 12 + 2*math.Sin(g.t/3) + rand.Float64() - 0.5
	bubble := 400 + rand.Intn(60)
	spo2 := 95 + rand.Intn(5)
	temp := 37.0 + rand.Float64()*0.4 - 0.2

	if isAnomaly {
		switch rand.Intn(4) {
		case 0:
			hr = 185 + rand.Float64()*20
		case 1:
			pressure = 22 + rand.Float64()*5
		case 2:
			bubble = 150 + rand.Intn(100)
		case 3:
			temp = 38 + rand.Float64()
		}
	}
	g.alarm = isAnomaly

	return fmt.Sprintf("[STATUS] HR=%.0f P=%.1f Bval=%d Sval=%d T=%.1f Alarm=%s Suction=%s\n",
		hr, pressure, bubble, spo2, temp, yesNo(g.alarm), onOff(g.suctionOn))
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// readCommands interprets host bytes: '1'/'0' followed by '\n' is a suction
// command, a bare '1'/'0' is the level signal.
func readCommands(ctx context.Context, port serial.Port, gen *VitalsGenerator, logger *zap.Logger) {
	buf := make([]byte, 64)
	var pending []byte

	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			logger.Error("Serial read failed", zap.Error(err))
			return
		}
		pending = append(pending, buf[:n]...)

		for len(pending) > 0 {
			b := pending[0]
			if b != '0' && b != '1' {
				pending = pending[1:]
				continue
			}
			if len(pending) == 1 && n > 0 {
				// wait one more read to see whether a newline follows
				break
			}
			if len(pending) > 1 && pending[1] == '\n' {
				gen.SetSuction(b == '1')
				logger.Info("Suction command received", zap.Bool("on", b == '1'))
				pending = pending[2:]
				continue
			}
			logger.Info("Level signal received", zap.Bool("normal", b == '1'))
			pending = pending[1:]
		}
	}
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	port, err := serial.Open(*portName, &serial.Mode{BaudRate: *baud})
	if err != nil {
		logger.Fatal("Failed to open serial port", zap.String("port", *portName), zap.Error(err))
	}
	defer port.Close()

	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		logger.Fatal("Failed to set read timeout", zap.Error(err))
	}

	logger.Info("Device simulator started",
		zap.String("port", *portName),
		zap.Float64("rate", *rate),
		zap.Float64("anomaly_probability", *anomaly))
	logger.Info("Press Ctrl+C to stop gracefully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping simulator")
		cancel()
	}()

	gen := NewVitalsGenerator(*anomaly)
	go readCommands(ctx, port, gen, logger)

	if _, err := port.Write([]byte("[COM] Controller ready\n")); err != nil {
		logger.Fatal("Failed to write greeting", zap.Error(err))
	}

	interval := time.Duration(float64(time.Second) / *rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	startTime := time.Now()
	lineCount := 0

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown complete",
				zap.Int("status_lines", lineCount),
				zap.Duration("uptime", time.Since(startTime)))
			return

		case <-ticker.C:
			if *silent > 0 && time.Since(startTime) > *silent {
				continue
			}

			line := gen.StatusLine()
			if rand.Float64() < *alarms {
				line += "ALARM: Air bubble detected in arterial line\n"
			}
			if _, err := port.Write([]byte(line)); err != nil {
				logger.Error("Failed to write status line", zap.Error(err))
				continue
			}
			lineCount++

			if lineCount%100 == 0 {
				logger.Info("Status lines sent",
					zap.Int("count", lineCount),
					zap.Float64("rate", float64(lineCount)/time.Since(startTime).Seconds()))
			}
			logger.Debug("Sent status line", zap.String("line", line))
		}
	}
}
