package pattern

import (
	"math/bits"
	"math/rand/v2"
)

// TransitionID names one of the built-in alpha transition effects.
type TransitionID int

const (
	Fade TransitionID = iota
	Wipe
	Dither

	numTransitions
)

func (id TransitionID) String() string {
	switch id {
	case Fade:
		return "fade"
	case Wipe:
		return "wipe"
	case Dither:
		return "dither"
	}
	return "unknown"
}

// TransitionState drives the hold/transition cycle. A negative Counter is a
// hold counting up towards zero; a Counter in [0, Duration) is an active
// transition.
type TransitionState struct {
	Counter  int
	Duration int
}

// Holding reports whether the state is in the hold phase.
func (s TransitionState) Holding() bool { return s.Counter < 0 }

// Transitioning reports whether an alpha transition is in progress.
func (s TransitionState) Transitioning() bool {
	return s.Counter >= 0 && s.Counter < s.Duration
}

// lastStep is the counter value at which a transition completes its ramp.
func (s TransitionState) lastStep() int {
	if s.Duration < 2 {
		return 1
	}
	return s.Duration - 1
}

// Transition fills an alpha mask (0 = BACK, 255 = FRONT) for the current
// transition step.
type Transition interface {
	Mask(alpha []uint8, ts TransitionState, st *EffectState, rng *rand.Rand)
}

var transitions = [numTransitions]Transition{
	Fade:   fadeTransition{},
	Wipe:   wipeTransition{},
	Dither: ditherTransition{},
}

// TransitionFor returns the effect bound to id.
func TransitionFor(id TransitionID) Transition {
	if id < 0 || id >= numTransitions {
		return transitions[Fade]
	}
	return transitions[id]
}

func clampAlpha(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// fadeTransition ramps every LED uniformly.
type fadeTransition struct{}

func (fadeTransition) Mask(alpha []uint8, ts TransitionState, _ *EffectState, _ *rand.Rand) {
	a := clampAlpha(ts.Counter * 255 / ts.lastStep())
	for i := range alpha {
		alpha[i] = a
	}
}

const wipeSoftEdge = 16

// wipeTransition sweeps a soft edge away from a random pivot.
// st[1] = pivot, st[2] = direction (+1/-1).
type wipeTransition struct{}

func (wipeTransition) Mask(alpha []uint8, ts TransitionState, st *EffectState, rng *rand.Rand) {
	n := len(alpha)
	if n == 0 {
		return
	}
	if !st.Initialized() {
		st[0] = 1
		st[1] = int32(rng.IntN(n))
		st[2] = 1
		if rng.IntN(2) == 0 {
			st[2] = -1
		}
	}
	pivot := int(st[1]) % n
	dir := int(st[2])
	edge := ts.Counter * (n + wipeSoftEdge) / ts.lastStep()
	for i := range alpha {
		rel := ((i-pivot)*dir%n + n) % n
		alpha[i] = clampAlpha((edge - rel) * 255 / wipeSoftEdge)
	}
}

// ditherTransition reveals LEDs in bit-reversed index order, which scatters
// neighbouring LEDs across the whole transition.
type ditherTransition struct{}

func (ditherTransition) Mask(alpha []uint8, ts TransitionState, _ *EffectState, _ *rand.Rand) {
	progress := ts.Counter * 65536 / ts.lastStep()
	hi := progress >> 8
	for i := range alpha {
		if int(bits.Reverse8(uint8(i))) < hi {
			alpha[i] = 255
		} else {
			alpha[i] = 0
		}
	}
}
