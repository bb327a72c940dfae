package syncproto

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chase3718/glowsync/internal/pattern"
)

const (
	// BroadcastInterval is the leader's frame cadence (20 Hz).
	BroadcastInterval = 50 * time.Millisecond
	// FragmentDelay paces consecutive fragments of one frame.
	FragmentDelay = time.Millisecond
)

// Broadcaster splits frames into fragments and sends them on a transport.
type Broadcaster struct {
	tr     Transport
	seq    uint8
	delay  time.Duration
	sleep  func(time.Duration)
	buf    []byte
	logger *slog.Logger

	frames uint64
	sent   uint64
	failed uint64
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithFragmentDelay overrides the pacing delay.
func WithFragmentDelay(d time.Duration) BroadcasterOption {
	return func(b *Broadcaster) { b.delay = d }
}

// WithSleep replaces time.Sleep, mainly for tests.
func WithSleep(fn func(time.Duration)) BroadcasterOption {
	return func(b *Broadcaster) { b.sleep = fn }
}

func NewBroadcaster(tr Transport, logger *slog.Logger, opts ...BroadcasterOption) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broadcaster{
		tr:     tr,
		delay:  FragmentDelay,
		sleep:  time.Sleep,
		buf:    make([]byte, 0, PacketSize),
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Broadcast sends frame as ceil(len/49) fragments. Every fragment carries
// the next sequence number and brightness. A failed fragment does not stop
// the rest; the returned error joins all send failures.
func (b *Broadcaster) Broadcast(frame pattern.Frame, brightness uint8) error {
	if len(frame) > MaxLEDs {
		return fmt.Errorf("%w: %d", ErrTooLong, len(frame))
	}
	var errs []error
	var f SyncFrame
	for start := 0; start < len(frame); start += ChunkLEDs {
		if start > 0 && b.delay > 0 {
			b.sleep(b.delay)
		}
		end := min(start+ChunkLEDs, len(frame))
		f = SyncFrame{
			Start:      uint8(start),
			Count:      uint8(end - start),
			Seq:        b.seq,
			Brightness: brightness,
		}
		copy(f.LEDs[:], frame[start:end])
		b.seq++

		b.buf = f.AppendEncode(b.buf[:0])
		if err := b.tr.Send(b.buf); err != nil {
			b.failed++
			errs = append(errs, err)
			continue
		}
		b.sent++
	}
	b.frames++
	if len(errs) > 0 {
		b.logger.Debug("sync: fragments failed", "failed", len(errs), "frame", b.frames)
	}
	return errors.Join(errs...)
}

// Seq is the sequence number the next fragment will carry.
func (b *Broadcaster) Seq() uint8 { return b.seq }

// Stats reports frames broadcast and fragments sent or failed.
func (b *Broadcaster) Stats() (frames, sent, failed uint64) {
	return b.frames, b.sent, b.failed
}
