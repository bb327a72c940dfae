// Package node holds the per-unit mode state machine: the Normal/Music axis,
// the Standalone/Leader axis, and the follow flag driven by sync traffic.
package node

import (
	"log/slog"
	"time"
)

// Mode is one cell of the {Normal, Music} × {Standalone, Leader} grid.
type Mode uint8

const (
	Normal Mode = iota
	Music
	NormalLeader
	MusicLeader
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Music:
		return "music"
	case NormalLeader:
		return "normal-leader"
	case MusicLeader:
		return "music-leader"
	}
	return "unknown"
}

// IsLeader reports whether m broadcasts its frames.
func (m Mode) IsLeader() bool { return m == NormalLeader || m == MusicLeader }

// IsMusic reports whether m drives brightness from audio.
func (m Mode) IsMusic() bool { return m == Music || m == MusicLeader }

func compose(music, leader bool) Mode {
	switch {
	case music && leader:
		return MusicLeader
	case leader:
		return NormalLeader
	case music:
		return Music
	}
	return Normal
}

const (
	// LeaderTimeout is how long a follower waits for a fragment before
	// falling back to local generation.
	LeaderTimeout = 8 * time.Second

	// RejoinScanInterval seeds the rejoin bookkeeping.
	RejoinScanInterval = 2 * time.Second
)

// Rejoin tracks re-scan attempts after losing a leader. Nothing acts on it
// yet; it is only reset when a fragment arrives.
type Rejoin struct {
	ScanInterval time.Duration
	Attempts     int
	LastScan     time.Time
}

func (r *Rejoin) reset() {
	r.ScanInterval = RejoinScanInterval
	r.Attempts = 0
	r.LastScan = time.Time{}
}

// State is the node state. It is owned by the control loop.
type State struct {
	mode       Mode
	following  bool
	lastLeader time.Time
	rejoin     Rejoin
	logger     *slog.Logger
}

// New returns a node in Normal mode, not following.
func New(logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	s := &State{mode: Normal, logger: logger}
	s.rejoin.reset()
	return s
}

func (s *State) Mode() Mode                   { return s.mode }
func (s *State) Following() bool              { return s.following }
func (s *State) LastLeaderMessage() time.Time { return s.lastLeader }
func (s *State) Rejoin() Rejoin               { return s.rejoin }

// ShortPress toggles Normal/Music and leaves the leader axis and the follow
// flag untouched.
func (s *State) ShortPress() Mode {
	prev := s.mode
	s.mode = compose(!prev.IsMusic(), prev.IsLeader())
	s.logger.Info("node: mode changed", "from", prev, "to", s.mode, "press", "short")
	return s.mode
}

// LongPress toggles Standalone/Leader. A leader never follows, so entering a
// leader mode drops the follow flag.
func (s *State) LongPress() Mode {
	prev := s.mode
	s.mode = compose(prev.IsMusic(), !prev.IsLeader())
	if s.mode.IsLeader() && s.following {
		s.following = false
		s.logger.Info("node: stopped following", "reason", "became leader")
	}
	s.logger.Info("node: mode changed", "from", prev, "to", s.mode, "press", "long")
	return s.mode
}

// OnFragment records receipt of a validly sized sync fragment at now.
// It reports whether the fragment should be applied: leaders ignore traffic.
func (s *State) OnFragment(now time.Time) bool {
	if s.mode.IsLeader() {
		return false
	}
	if !s.following {
		s.logger.Info("node: following leader")
	}
	s.following = true
	s.lastLeader = now
	s.rejoin.reset()
	return true
}

// CheckTimeout clears the follow flag once LeaderTimeout has passed without
// a fragment. It reports whether the flag was cleared by this call.
func (s *State) CheckTimeout(now time.Time) bool {
	if !s.following || now.Sub(s.lastLeader) < LeaderTimeout {
		return false
	}
	s.following = false
	s.logger.Warn("node: leader lost, resuming local patterns", "silent_for", now.Sub(s.lastLeader))
	return true
}
