// Package serial opens the USB CDC port of an MCU running the firmware.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Default settings for a USB CDC link. The baud rate is ignored by CDC
// devices but kept for UART bridges.
const (
	DefaultBaud        = 250000
	DefaultReadTimeout = 100
)

// Port is an open link to the MCU
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input
	Flush() error
}

// Config holds serial port settings
type Config struct {
	// Device path, e.g. /dev/ttyACM0
	Device string

	Baud int

	// Read timeout in milliseconds, 0 blocks
	ReadTimeout int
}

// DefaultConfig returns the default settings for device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}

type tarmPort struct {
	*serial.Port
}

// Open opens the configured port
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("serial: nil config")
	}
	if cfg.Device == "" {
		return nil, errors.New("serial: no device")
	}
	baud := cfg.Baud
	if baud == 0 {
		baud = DefaultBaud
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	return tarmPort{port}, nil
}
