package pattern

import (
	"math/rand/v2"

	cm "github.com/chase3718/glowsync/internal/colormath"
)

// Transition and hold lengths in render ticks (60 Hz).
const (
	MinTransitionTicks = 30
	MaxTransitionTicks = 180
	MinHoldTicks       = 120
	MaxHoldTicks       = 360 // exclusive
)

// Engine owns the BACK and FRONT frames, their generator state and the
// transition controller. Step is expected to be called once per render tick
// from a single goroutine.
type Engine struct {
	rng *rand.Rand

	back  Frame
	front Frame
	out   Frame
	alpha []uint8

	backID  GeneratorID
	frontID GeneratorID
	transID TransitionID

	backState  EffectState
	frontState EffectState
	alphaState EffectState

	ts TransitionState
}

// NewEngine builds an engine for an n-LED strip. It starts holding on a
// random generator.
func NewEngine(n int, rng *rand.Rand) *Engine {
	e := &Engine{
		rng:   rng,
		back:  NewFrame(n),
		front: NewFrame(n),
		out:   NewFrame(n),
		alpha: make([]uint8, n),
	}
	e.backID = GeneratorID(rng.IntN(int(numGenerators)))
	e.enterHold()
	return e
}

// Step renders one tick and returns the gamma-corrected output frame. The
// returned frame is reused by the next Step; callers must not modify it.
func (e *Engine) Step() Frame {
	GeneratorFor(e.backID).Render(e.back, &e.backState, e.rng)

	if e.ts.Holding() {
		for i, c := range e.back {
			e.out[i] = RGB{R: cm.Gamma(c.R), G: cm.Gamma(c.G), B: cm.Gamma(c.B)}
		}
		e.ts.Counter++
		if e.ts.Counter == 0 {
			e.beginTransition()
		}
		return e.out
	}

	GeneratorFor(e.frontID).Render(e.front, &e.frontState, e.rng)
	TransitionFor(e.transID).Mask(e.alpha, e.ts, &e.alphaState, e.rng)
	Composite(e.out, e.back, e.front, e.alpha)

	e.ts.Counter++
	if e.ts.Counter >= e.ts.Duration {
		e.swap()
	}
	return e.out
}

// Output is the most recently rendered frame.
func (e *Engine) Output() Frame { return e.out }

// PatternID is the generator currently shown on BACK.
func (e *Engine) PatternID() GeneratorID { return e.backID }

// NextPatternID is the generator fading in on FRONT. Only meaningful while
// transitioning.
func (e *Engine) NextPatternID() GeneratorID { return e.frontID }

// TransitionID is the active alpha effect.
func (e *Engine) TransitionID() TransitionID { return e.transID }

// State returns the transition controller state.
func (e *Engine) State() TransitionState { return e.ts }

// Len is the strip length.
func (e *Engine) Len() int { return len(e.out) }

func (e *Engine) beginTransition() {
	e.frontID = GeneratorID(e.rng.IntN(int(numGenerators)))
	e.transID = TransitionID(e.rng.IntN(int(numTransitions)))
	e.ts = TransitionState{
		Counter:  0,
		Duration: MinTransitionTicks + e.rng.IntN(MaxTransitionTicks-MinTransitionTicks+1),
	}
	e.frontState.Reset()
	e.alphaState.Reset()
}

// swap promotes FRONT to BACK. The generator keeps its state so the pattern
// continues without a jump.
func (e *Engine) swap() {
	e.backID = e.frontID
	e.back, e.front = e.front, e.back
	e.backState, e.frontState = e.frontState, e.backState
	e.enterHold()
}

func (e *Engine) enterHold() {
	e.ts = TransitionState{
		Counter:  -(MinHoldTicks + e.rng.IntN(MaxHoldTicks-MinHoldTicks)),
		Duration: e.ts.Duration,
	}
}

// Composite blends front over back with per-LED alpha and applies gamma.
// alpha 0 yields back exactly, alpha 255 yields front exactly.
func Composite(out, back, front Frame, alpha []uint8) {
	for i := range out {
		a := int(alpha[i])
		out[i] = RGB{
			R: cm.Gamma(blend(back[i].R, front[i].R, a)),
			G: cm.Gamma(blend(back[i].G, front[i].G, a)),
			B: cm.Gamma(blend(back[i].B, front[i].B, a)),
		}
	}
}

func blend(back, front uint8, a int) uint8 {
	return uint8((int(front)*(a+1) + int(back)*(257-a-1)) >> 8)
}
