package hostlink

import (
	"fmt"

	"github.com/tarm/serial"
)

// SerialPort wraps github.com/tarm/serial, the way the teacher's
// host/serial/serial_native.go wraps it for the firmware's byte transport.
type SerialPort struct {
	port *serial.Port
	cfg  *Config
}

// OpenSerial opens a native serial port to the controller.
func OpenSerial(cfg *Config) (*SerialPort, error) {
	if cfg == nil {
		return nil, fmt.Errorf("hostlink: config cannot be nil")
	}

	sc := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	}

	p, err := serial.OpenPort(sc)
	if err != nil {
		return nil, fmt.Errorf("hostlink: open %s: %w", cfg.Device, err)
	}
	return &SerialPort{port: p, cfg: cfg}, nil
}

func (s *SerialPort) Read(b []byte) (int, error) { return s.port.Read(b) }

func (s *SerialPort) Write(b []byte) (int, error) { return s.port.Write(b) }

func (s *SerialPort) Close() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// Flush is a no-op: tarm/serial doesn't expose one, and Write already
// blocks until the bytes are handed to the OS.
func (s *SerialPort) Flush() error { return nil }
