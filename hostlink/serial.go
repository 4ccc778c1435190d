// Package hostlink implements the external command-stream contract of
// spec §6 as a thin reference adapter: a line-oriented session parser for
// the seven command verbs, and a serial transport to carry them. It is not
// CORE — the motor package never imports it — and exists so the exposed
// scalar table and setpoint API have one concrete, testable consumer.
package hostlink

import (
	"io"
	"time"
)

// Port is the byte transport a Session reads commands from and writes
// responses to. Grounded on the teacher's host/serial.Port abstraction,
// narrowed to this repo's single native backend.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Config holds serial port configuration.
type Config struct {
	Device string

	Baud int

	ReadTimeout time.Duration
}

// DefaultConfig returns a reasonable default for a USB CDC link to the
// controller.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}
