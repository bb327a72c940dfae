package pattern

import (
	"math/rand/v2"

	cm "github.com/chase3718/glowsync/internal/colormath"
)

// GeneratorID names one of the built-in pattern generators.
type GeneratorID int

const (
	Solid GeneratorID = iota
	Rainbow
	SineWave
	WavyFlag

	numGenerators
)

func (id GeneratorID) String() string {
	switch id {
	case Solid:
		return "solid"
	case Rainbow:
		return "rainbow"
	case SineWave:
		return "sine"
	case WavyFlag:
		return "flag"
	}
	return "unknown"
}

// Generator renders one frame into dst using its private state. It owns
// st for the lifetime of one activation and must randomize its parameters
// whenever the sentinel is clear.
type Generator interface {
	Render(dst Frame, st *EffectState, rng *rand.Rand)
}

var generators = [numGenerators]Generator{
	Solid:    solidGen{},
	Rainbow:  rainbowGen{},
	SineWave: sineGen{},
	WavyFlag: flagGen{},
}

// GeneratorFor returns the generator bound to id.
func GeneratorFor(id GeneratorID) Generator {
	if id < 0 || id >= numGenerators {
		return generators[Solid]
	}
	return generators[id]
}

// randSigned returns a value in [lo,hi] with a random sign.
func randSigned(rng *rand.Rand, lo, hi int) int32 {
	v := int32(lo + rng.IntN(hi-lo+1))
	if rng.IntN(2) == 0 {
		return -v
	}
	return v
}

// -------------------- Solid --------------------

// solidGen: st[1] = packed color.
type solidGen struct{}

func (solidGen) Render(dst Frame, st *EffectState, rng *rand.Rand) {
	if !st.Initialized() {
		st[0] = 1
		st[1] = int32(cm.HueToRGB(rng.IntN(cm.HueSteps), 255, 255))
	}
	dst.Fill(FromPacked(uint32(st[1])))
}

// -------------------- Rainbow --------------------

// rainbowGen: st[1] = loops over the strip, st[2] = hue speed, st[3] = phase.
type rainbowGen struct{}

func (rainbowGen) Render(dst Frame, st *EffectState, rng *rand.Rand) {
	if !st.Initialized() {
		st[0] = 1
		st[1] = int32(1 + rng.IntN(4))
		st[2] = randSigned(rng, 4, 20)
		st[3] = int32(rng.IntN(cm.HueSteps))
	}
	n := len(dst)
	if n == 0 {
		return
	}
	loops := int(st[1])
	phase := int(st[3])
	for i := range dst {
		hue := phase + i*loops*cm.HueSteps/n
		dst[i] = FromPacked(cm.HueToRGB(hue, 255, 255))
	}
	st[3] = int32((phase + int(st[2]) + cm.HueSteps) % cm.HueSteps)
}

// -------------------- SineWave --------------------

const (
	sweepSaturation = 0
	sweepValue      = 1
)

// sineGen: st[1] = hue, st[2] = spatial frequency (half degrees per LED),
// st[3] = speed, st[4] = swept channel, st[5] = phase.
type sineGen struct{}

func (sineGen) Render(dst Frame, st *EffectState, rng *rand.Rand) {
	if !st.Initialized() {
		st[0] = 1
		st[1] = int32(rng.IntN(cm.HueSteps))
		st[2] = int32(3 + rng.IntN(16))
		st[3] = randSigned(rng, 4, 16)
		st[4] = int32(rng.IntN(2))
		st[5] = 0
	}
	hue := int(st[1])
	freq := int(st[2])
	phase := int(st[5])
	for i := range dst {
		level := uint8(128 + cm.FastSin(phase+i*freq)*127/cm.SinMax)
		if st[4] == sweepSaturation {
			dst[i] = FromPacked(cm.HueToRGB(hue, level, 255))
		} else {
			dst[i] = FromPacked(cm.HueToRGB(hue, 255, level))
		}
	}
	st[5] = int32((phase + int(st[3]) + cm.FullCircle) % cm.FullCircle)
}

// -------------------- WavyFlag --------------------

var flagPalette = [...]RGB{
	{R: 228, G: 3, B: 3},
	{R: 255, G: 140, B: 0},
	{R: 255, G: 237, B: 0},
	{R: 0, G: 128, B: 38},
	{R: 0, G: 77, B: 255},
	{R: 117, G: 7, B: 135},
}

// flagGen: st[1] = phase, st[2] = speed, st[3] = waviness percent,
// st[4] = spatial frequency.
//
// Each LED gets a sample density of 256 distorted by fastCos. The palette
// position of an LED is the running sum of densities up to it, normalized by
// the strip total, so the first pass has to see every LED before the second
// can sample.
type flagGen struct{}

func (flagGen) Render(dst Frame, st *EffectState, rng *rand.Rand) {
	if !st.Initialized() {
		st[0] = 1
		st[1] = 0
		st[2] = randSigned(rng, 3, 10)
		st[3] = int32(20 + rng.IntN(61))
		st[4] = int32(4 + rng.IntN(13))
	}
	phase := int(st[1])
	amp := int(st[3]) * 256 / 100
	freq := int(st[4])

	density := func(i int) int {
		return 256 + amp*cm.FastCos(phase+i*freq)/cm.SinMax
	}

	total := 0
	for i := range dst {
		total += density(i)
	}
	if total <= 0 {
		return
	}

	span := len(flagPalette) * 256
	acc := 0
	for i := range dst {
		d := density(i)
		acc += d
		pos := (acc - d/2) * span / total
		idx := pos >> 8
		frac := pos & 0xFF
		if idx >= len(flagPalette) {
			idx, frac = len(flagPalette)-1, 0
		}
		next := idx + 1
		if next >= len(flagPalette) {
			next = idx
		}
		dst[i] = lerpRGB(flagPalette[idx], flagPalette[next], frac)
	}
	st[1] = int32((phase + int(st[2]) + cm.FullCircle) % cm.FullCircle)
}

func lerpRGB(a, b RGB, frac int) RGB {
	inv := 256 - frac
	return RGB{
		R: uint8((int(a.R)*inv + int(b.R)*frac) >> 8),
		G: uint8((int(a.G)*inv + int(b.G)*frac) >> 8),
		B: uint8((int(a.B)*inv + int(b.B)*frac) >> 8),
	}
}
