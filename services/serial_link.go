package services

import (
	"fmt"
	"io"
	"sync"
	"time"

	"heartlung/config"
	"heartlung/models"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Port is the raw byte channel to the microcontroller. serial.Port satisfies it.
// Read must return (0, nil) when no data arrived within the port's read timeout.
type Port interface {
	io.ReadWriteCloser
}

type drainer interface {
	Drain() error
}

// SerialLink owns the port handle. One mutex guards every read, write and
// close so command bytes never interleave with line reads. The lock is held
// for a single syscall at a time.
type SerialLink struct {
	mu     sync.Mutex
	port   Port
	name   string
	logger *zap.Logger
}

// OpenSerialLink opens the configured device, waits for the board to reset and
// discards whatever was buffered during the reset.
func OpenSerialLink(cfg *config.Config, logger *zap.Logger) (*SerialLink, error) {
	mode := &serial.Mode{BaudRate: cfg.SerialBaud}

	port, err := serial.Open(cfg.SerialPort, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", models.ErrConnection, cfg.SerialPort, err)
	}

	if err := port.SetReadTimeout(cfg.SerialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: set read timeout: %v", models.ErrConnection, err)
	}

	// Opening the port resets most boards; give the bootloader time to hand over
	time.Sleep(cfg.SerialSettleDelay)

	if err := port.ResetInputBuffer(); err != nil {
		logger.Warn("Failed to reset serial input buffer", zap.Error(err))
	}
	if err := port.ResetOutputBuffer(); err != nil {
		logger.Warn("Failed to reset serial output buffer", zap.Error(err))
	}

	logger.Info("Serial link opened",
		zap.String("port", cfg.SerialPort),
		zap.Int("baud", cfg.SerialBaud),
		zap.Duration("read_timeout", cfg.SerialReadTimeout))

	return NewSerialLink(port, cfg.SerialPort, logger), nil
}

// NewSerialLink wraps an already opened port
func NewSerialLink(port Port, name string, logger *zap.Logger) *SerialLink {
	return &SerialLink{port: port, name: name, logger: logger}
}

// Connected reports whether the handle is still held
func (l *SerialLink) Connected() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port != nil
}

// Read performs one bounded read. A failed read releases the handle.
func (l *SerialLink) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return 0, fmt.Errorf("%w: link closed", models.ErrConnection)
	}

	n, err := l.port.Read(p)
	if err != nil {
		l.releaseLocked()
		return n, fmt.Errorf("%w: read %s: %v", models.ErrConnection, l.name, err)
	}
	return n, nil
}

// Write sends b in full and flushes it. A failed write releases the handle.
func (l *SerialLink) Write(b []byte) error {
	if l == nil {
		return fmt.Errorf("%w: no serial link", models.ErrConnection)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return fmt.Errorf("%w: link closed", models.ErrConnection)
	}

	if _, err := l.port.Write(b); err != nil {
		l.releaseLocked()
		return fmt.Errorf("%w: write %s: %v", models.ErrConnection, l.name, err)
	}
	if d, ok := l.port.(drainer); ok {
		if err := d.Drain(); err != nil {
			l.releaseLocked()
			return fmt.Errorf("%w: drain %s: %v", models.ErrConnection, l.name, err)
		}
	}
	return nil
}

// Close releases the handle. It is safe to call more than once.
func (l *SerialLink) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	l.logger.Info("Serial link closed", zap.String("port", l.name))
	return err
}

func (l *SerialLink) releaseLocked() {
	if l.port == nil {
		return
	}
	if err := l.port.Close(); err != nil {
		l.logger.Warn("Error closing failed serial port", zap.String("port", l.name), zap.Error(err))
	}
	l.port = nil
}
