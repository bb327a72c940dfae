package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// ErrShortRead is returned when a source cannot fill a whole window.
var ErrShortRead = errors.New("audio: short read")

// Source produces fixed-length windows of signed samples on demand.
type Source interface {
	Read(window []int16) error
}

// SilenceSource always returns silence. Used when no capture device is
// configured.
type SilenceSource struct{}

func (SilenceSource) Read(window []int16) error {
	clear(window)
	return nil
}

// WAVSource replays a WAV file in a loop, resampled to the capture rate.
// It stands in for the microphone on hosts without one.
type WAVSource struct {
	dec    beep.StreamSeekCloser
	stream beep.Streamer
	buf    [][2]float64
}

// OpenWAV decodes path and prepares a looping stream at sampleRate Hz.
func OpenWAV(path string, sampleRate int) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	dec, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("audio: decode %q: %w", path, err)
	}
	var stream beep.Streamer = beep.Loop(-1, dec)
	if int(format.SampleRate) != sampleRate {
		stream = beep.Resample(3, format.SampleRate, beep.SampleRate(sampleRate), stream)
	}
	return &WAVSource{dec: dec, stream: stream}, nil
}

// Read fills window with the next mono samples.
func (s *WAVSource) Read(window []int16) error {
	if cap(s.buf) < len(window) {
		s.buf = make([][2]float64, len(window))
	}
	buf := s.buf[:len(window)]
	n, ok := s.stream.Stream(buf)
	if !ok || n < len(window) {
		if err := s.dec.Err(); err != nil {
			return fmt.Errorf("audio: stream: %w", err)
		}
		return ErrShortRead
	}
	for i, frame := range buf {
		mono := (frame[0] + frame[1]) / 2
		window[i] = int16(math.Max(-1, math.Min(1, mono)) * 32767)
	}
	return nil
}

// Close releases the underlying file.
func (s *WAVSource) Close() error {
	return s.dec.Close()
}
