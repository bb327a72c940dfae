package pattern

import "github.com/chase3718/glowsync/internal/colormath"

// DefaultLEDCount is the strip length of the reference costume.
const DefaultLEDCount = 200

// StateSize is the capacity of an EffectState.
const StateSize = 50

// RGB is one LED color.
type RGB struct {
	R, G, B uint8
}

// FromPacked converts a 0xRRGGBB value.
func FromPacked(c uint32) RGB {
	r, g, b := colormath.Unpack(c)
	return RGB{R: r, G: g, B: b}
}

// Frame is an index-addressed strip of LED colors.
type Frame []RGB

// NewFrame returns an all-black frame of n LEDs.
func NewFrame(n int) Frame {
	return make(Frame, n)
}

// Clone returns an independent copy.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// Fill sets every LED to c.
func (f Frame) Fill(c RGB) {
	for i := range f {
		f[i] = c
	}
}

// EffectState is the private scratch memory of one generator instance.
// Element 0 is the init sentinel: 0 means the generator must pick new
// random parameters on its next render.
type EffectState [StateSize]int32

// Reset clears the sentinel so the next render re-randomizes.
func (s *EffectState) Reset() {
	s[0] = 0
}

// Initialized reports whether the sentinel is set.
func (s *EffectState) Initialized() bool {
	return s[0] != 0
}
