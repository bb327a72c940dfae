// Package output pushes finished frames to LED hardware.
package output

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.bug.st/serial"

	"github.com/chase3718/glowsync/internal/pattern"
)

// Sink displays a frame at a global brightness.
type Sink interface {
	Show(frame pattern.Frame, brightness uint8) error
}

// SerialSink streams frames to a microcontroller driving the strip.
type SerialSink struct {
	port   io.WriteCloser
	buf    []byte
	logger *slog.Logger
	frames uint64
}

// OpenSerial opens the named serial device at the given baud rate.
func OpenSerial(name string, baud int, logger *slog.Logger) (*SerialSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %q at %d baud: %w", name, baud, err)
	}
	logger.Info("serial: port opened", "device", name, "baud", baud)
	return NewSerialSink(p, logger), nil
}

// NewSerialSink writes frames to an already open port.
func NewSerialSink(port io.WriteCloser, logger *slog.Logger) *SerialSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SerialSink{port: port, logger: logger}
}

// Show encodes and writes one frame.
func (s *SerialSink) Show(frame pattern.Frame, brightness uint8) error {
	s.buf = EncodeFrame(s.buf[:0], frame, brightness)
	n, err := s.port.Write(s.buf)
	if err != nil {
		return fmt.Errorf("serial: write: %w", err)
	}
	if n != len(s.buf) {
		return fmt.Errorf("serial: short write %d of %d bytes", n, len(s.buf))
	}
	s.frames++
	if s.frames%600 == 0 {
		s.logger.Debug("serial: frames sent", "frames", s.frames, "bytes", n)
	}
	return nil
}

// Close closes the underlying serial port.
func (s *SerialSink) Close() error {
	s.logger.Info("serial: closing port", "frames", s.frames)
	return s.port.Close()
}

// Ports lists serial devices present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serial: list ports: %w", err)
	}
	return ports, nil
}

// Multi fans a frame out to several sinks. Every sink is tried; errors are
// joined.
type Multi []Sink

func (m Multi) Show(frame pattern.Frame, brightness uint8) error {
	var errs []error
	for _, s := range m {
		if err := s.Show(frame, brightness); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every frame.
type Discard struct{}

func (Discard) Show(pattern.Frame, uint8) error { return nil }
