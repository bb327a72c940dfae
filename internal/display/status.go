// Package display presents node status to a human. Nothing here feeds back
// into the control loop except button presses typed into the TUI.
package display

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/chase3718/glowsync/internal/node"
	"github.com/chase3718/glowsync/internal/pattern"
)

// Status is the snapshot pushed by the control loop.
type Status struct {
	Mode       node.Mode
	Following  bool
	Pattern    pattern.GeneratorID
	Transition bool
	AudioLevel float64 // 0..1
	BPM        float64
	Detected   bool
	Brightness uint8
	Preview    pattern.Frame
}

// AudioPercent is the music level as a whole percentage.
func (s Status) AudioPercent() int {
	return int(math.Round(math.Min(math.Max(s.AudioLevel, 0), 1) * 100))
}

// Source names what is driving the LEDs.
func (s Status) Source() string {
	if s.Following {
		return "leader"
	}
	return s.Pattern.String()
}

func (s Status) String() string {
	return fmt.Sprintf("%s %s audio=%d%% bpm=%.0f", s.Mode, s.Source(), s.AudioPercent(), s.BPM)
}

// Display receives status snapshots. Update must not block.
type Display interface {
	Update(Status)
}

// Headless logs each snapshot.
type Headless struct {
	Logger *slog.Logger
}

func (h Headless) Update(s Status) {
	l := h.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("status",
		"mode", s.Mode,
		"following", s.Following,
		"pattern", s.Source(),
		"audio_pct", s.AudioPercent(),
		"bpm", math.Round(s.BPM),
		"detected", s.Detected,
		"brightness", s.Brightness,
	)
}
