// Package syncproto carries LED frames from a leader to its followers as a
// stream of fixed-size broadcast fragments.
package syncproto

import (
	"errors"
	"fmt"

	"github.com/chase3718/glowsync/internal/pattern"
)

const (
	// ChunkLEDs is the number of LEDs carried by one fragment.
	ChunkLEDs = 49
	// HeaderSize is start, count, seq and brightness, one byte each.
	HeaderSize = 4
	// PacketSize is the only accepted datagram size.
	PacketSize = HeaderSize + ChunkLEDs*3
	// MaxLEDs is the longest strip the one-byte start index can address.
	MaxLEDs = 256
)

var (
	ErrPacketSize = errors.New("sync: wrong packet size")
	ErrBadCount   = errors.New("sync: bad led count")
	ErrTooLong    = errors.New("sync: frame longer than 256 leds")
)

// SyncFrame is one fragment of a frame.
//
// Wire layout (151 bytes, no padding):
//
//	[start][count][seq][brightness][r0 g0 b0 ... r48 g48 b48]
//
// LEDs past count are zero on the wire and ignored on receipt.
type SyncFrame struct {
	Start      uint8
	Count      uint8
	Seq        uint8
	Brightness uint8
	LEDs       [ChunkLEDs]pattern.RGB
}

// Encode returns the wire representation.
func (f *SyncFrame) Encode() []byte {
	return f.AppendEncode(make([]byte, 0, PacketSize))
}

// AppendEncode appends the wire representation to dst.
func (f *SyncFrame) AppendEncode(dst []byte) []byte {
	dst = append(dst, f.Start, f.Count, f.Seq, f.Brightness)
	for i, c := range f.LEDs {
		if i >= int(f.Count) {
			c = pattern.RGB{}
		}
		dst = append(dst, c.R, c.G, c.B)
	}
	return dst
}

// Decode parses one datagram.
func Decode(b []byte) (SyncFrame, error) {
	var f SyncFrame
	if len(b) != PacketSize {
		return f, fmt.Errorf("%w: %d bytes", ErrPacketSize, len(b))
	}
	f.Start, f.Count, f.Seq, f.Brightness = b[0], b[1], b[2], b[3]
	if f.Count == 0 || f.Count > ChunkLEDs {
		return f, fmt.Errorf("%w: %d", ErrBadCount, f.Count)
	}
	p := b[HeaderSize:]
	for i := 0; i < int(f.Count); i++ {
		f.LEDs[i] = pattern.RGB{R: p[i*3], G: p[i*3+1], B: p[i*3+2]}
	}
	return f, nil
}

// Fragments returns the number of fragments needed for n LEDs.
func Fragments(n int) int {
	return (n + ChunkLEDs - 1) / ChunkLEDs
}
