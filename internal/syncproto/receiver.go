package syncproto

import (
	"log/slog"

	"github.com/chase3718/glowsync/internal/pattern"
)

// FrameSink displays a complete frame.
type FrameSink interface {
	Show(frame pattern.Frame, brightness uint8) error
}

// Receiver rebuilds frames from fragments. A frame is pushed to the sink
// when a fragment covers the last LED of the strip, whether or not every
// earlier fragment of that frame arrived; LEDs from a lost fragment keep
// their previous color until the next frame.
type Receiver struct {
	buf        pattern.Frame
	brightness uint8
	sink       FrameSink
	logger     *slog.Logger

	haveSeq bool
	lastSeq uint8

	fragments uint64
	flushes   uint64
	gaps      uint64
}

func NewReceiver(n int, sink FrameSink, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		buf:        pattern.NewFrame(n),
		brightness: 255,
		sink:       sink,
		logger:     logger,
	}
}

// Apply writes one fragment into the display buffer and flushes when it
// completes the strip. It reports whether a flush happened.
func (r *Receiver) Apply(f SyncFrame) (bool, error) {
	r.fragments++
	if r.haveSeq && f.Seq != r.lastSeq+1 {
		r.gaps++
		r.logger.Debug("sync: sequence gap", "want", r.lastSeq+1, "got", f.Seq)
	}
	r.haveSeq, r.lastSeq = true, f.Seq

	r.brightness = f.Brightness
	start := int(f.Start)
	for i := 0; i < int(f.Count) && i < ChunkLEDs; i++ {
		idx := start + i
		if idx >= len(r.buf) {
			continue
		}
		r.buf[idx] = f.LEDs[i]
	}

	// Only the fragment holding the last LED flushes, so a leader with a
	// longer strip does not flush twice per frame.
	last := len(r.buf) - 1
	if start > last || start+int(f.Count) <= last {
		return false, nil
	}
	r.flushes++
	if r.sink == nil {
		return true, nil
	}
	return true, r.sink.Show(r.buf, r.brightness)
}

// Brightness is the most recently received global brightness.
func (r *Receiver) Brightness() uint8 { return r.brightness }

// Frame is the display buffer. It is only written by Apply.
func (r *Receiver) Frame() pattern.Frame { return r.buf }

// Stats reports fragments applied, frames flushed and sequence gaps seen.
func (r *Receiver) Stats() (fragments, flushes, gaps uint64) {
	return r.fragments, r.flushes, r.gaps
}
