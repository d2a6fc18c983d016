package services

import (
	"fmt"

	"heartlung/models"

	"go.uber.org/zap"
)

// Command bytes understood by the device firmware. The level signal carries no
// terminator; manual suction commands are newline terminated.
var (
	levelNormalSignal   = []byte{'1'}
	levelAbnormalSignal = []byte{'0'}
	suctionOnCommand    = []byte("1\n")
	suctionOffCommand   = []byte("0\n")
)

// CommandWriter is the outbound half of the serial link
type CommandWriter interface {
	Connected() bool
	Write(b []byte) error
}

// ActuationController turns level readings into edge-triggered device signals
// and executes operator suction commands.
type ActuationController struct {
	writer CommandWriter
	state  *MonitoringState
	logger *zap.Logger
}

// NewActuationController creates a controller. A nil link leaves it in
// detector-only mode where nothing is sent.
func NewActuationController(link *SerialLink, state *MonitoringState, logger *zap.Logger) *ActuationController {
	c := &ActuationController{state: state, logger: logger}
	if link != nil {
		c.writer = link
	}
	return c
}

// OnLevel sends the level signal when normalcy differs from what the device
// last received. Bookkeeping only changes after a successful write.
func (c *ActuationController) OnLevel(reading models.LevelReading) {
	if reading.Classification == models.LevelInitializing {
		return
	}
	if c.writer == nil || !c.writer.Connected() {
		return
	}

	normal := reading.Classification == models.LevelNormal
	last := c.state.Actuation().LastSentNormalcy
	if last != nil && *last == normal {
		return
	}

	signal := levelAbnormalSignal
	if normal {
		signal = levelNormalSignal
	}

	if err := c.send(signal); err != nil {
		c.state.LogEvent(models.SeverityError, fmt.Sprintf("Failed to send level signal: %v", err))
		return
	}

	c.state.RecordLevelSent(normal)
	if normal {
		c.state.LogEvent(models.SeveritySuccess, "Level: NORMAL sent to device")
	} else {
		c.state.LogEvent(models.SeverityWarn, "Level: OUT OF RANGE sent to device")
	}

	c.logger.Debug("Level signal transmitted",
		zap.Bool("normal", normal),
		zap.Int("level_y", reading.CurrentLevelY),
		zap.String("classification", string(reading.Classification)))
}

// ToggleSuction commands the pump to the opposite of the state the device last reported
func (c *ActuationController) ToggleSuction() error {
	telemetry := c.state.Telemetry()
	if !telemetry.Connected || c.writer == nil || !c.writer.Connected() {
		c.state.LogEvent(models.SeverityError, "Cannot toggle suction: device not connected")
		return fmt.Errorf("%w: device not connected", models.ErrConnection)
	}

	target := !telemetry.SuctionOn
	command := suctionOffCommand
	if target {
		command = suctionOnCommand
	}

	if err := c.send(command); err != nil {
		c.state.LogEvent(models.SeverityError, fmt.Sprintf("Failed to send suction command: %v", err))
		return fmt.Errorf("%w: suction command: %w", models.ErrActuation, err)
	}

	c.state.RecordSuction(target)
	if target {
		c.state.LogEvent(models.SeveritySuccess, "Suction ON command sent")
	} else {
		c.state.LogEvent(models.SeveritySuccess, "Suction OFF command sent")
	}
	return nil
}

func (c *ActuationController) send(b []byte) error {
	c.state.setWritePending(true)
	defer c.state.setWritePending(false)

	if err := c.writer.Write(b); err != nil {
		c.state.MarkDisconnected()
		return err
	}
	return nil
}
