// Package audio turns raw microphone windows into a normalized music level,
// beat onsets, a BPM estimate and a brightness envelope.
package audio

import (
	"log/slog"
	"math"
	"time"
)

// Cadences the estimator depends on.
const (
	BPMWindow     = 5 * time.Second
	DetectTimeout = 20 * time.Second
	MaxBPM        = 300
	bootstrapBPM  = 10
)

// Params tunes the reactivity engine.
type Params struct {
	// Range tracking.
	TrackerDecay        float64 // per-tick decay of the soundMin/soundMax trackers
	MinRange            float64 // below this the tracked range counts as collapsed
	HighFloor           float64 // above this the ambient floor counts as loud
	BeatThreshold       float64
	CompressedThreshold float64 // beat threshold used when the range is compressed

	// Brightness envelope.
	BaseBrightness      float64
	MaxBrightness       float64
	ExcitementThreshold float64
	Exponent            float64
	DecayTime           time.Duration
	NoiseAlpha          float64 // rise rate of the noise floor tracker
	PeakDecay           float64 // per-tick decay of the peak tracker
}

// DefaultParams returns the tuning used on the costume.
func DefaultParams() Params {
	return Params{
		TrackerDecay:        0.995,
		MinRange:            0.05,
		HighFloor:           0.3,
		BeatThreshold:       0.6,
		CompressedThreshold: 0.35,

		BaseBrightness:      64,
		MaxBrightness:       255,
		ExcitementThreshold: 0.1,
		Exponent:            2.0,
		DecayTime:           300 * time.Millisecond,
		NoiseAlpha:          0.002,
		PeakDecay:           0.98,
	}
}

// Status is a snapshot of the engine after one update.
type Status struct {
	Raw        float64 // mean absolute amplitude, 0..1
	Level      float64 // range-normalized music level, 0..1
	Threshold  float64 // beat threshold in effect
	Beat       bool    // an upward crossing happened this tick
	BeatActive bool    // latched while the level stays above threshold
	BPM        float64
	Detected   bool
	Excitement float64
	Brightness uint8
}

// Engine is the audio reactivity state machine. It is not safe for
// concurrent use; the control loop owns it.
type Engine struct {
	p      Params
	logger *slog.Logger

	primed   bool
	soundMin float64
	soundMax float64

	raw        float64
	level      float64
	threshold  float64
	beat       bool
	wasAbove   bool
	beatActive bool

	history      BeatHistory
	bpm          float64
	windowBeats  int
	windowStart  time.Time
	detected     bool
	lastDetected time.Time

	envPrimed  bool
	noiseFloor float64
	peak       float64
	excitement float64
	envelope   float64
	lastUpdate time.Time
}

// NewEngine creates an engine. A nil logger falls back to slog.Default().
func NewEngine(p Params, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		p:         p,
		logger:    logger,
		threshold: p.BeatThreshold,
		envelope:  p.BaseBrightness,
	}
}

// Update consumes one capture window taken at now.
func (e *Engine) Update(now time.Time, window []int16) Status {
	e.raw = MeanLevel(window)
	e.trackRange(e.raw)

	lo, hi, thr := e.effectiveRange()
	e.threshold = thr
	e.level = 0
	if hi > lo {
		e.level = clamp01((e.raw - lo) / (hi - lo))
	}

	e.beat = e.detectBeat(e.level, thr)
	if e.beat {
		e.history.Add(now)
	}
	e.updateBPM(now)
	e.updateEnvelope(now, e.raw)
	e.lastUpdate = now
	return e.Status()
}

// Skip is called when capture failed for this tick. All trackers keep their
// previous values.
func (e *Engine) Skip() Status {
	e.beat = false
	return e.Status()
}

// Status returns the current snapshot.
func (e *Engine) Status() Status {
	return Status{
		Raw:        e.raw,
		Level:      e.level,
		Threshold:  e.threshold,
		Beat:       e.beat,
		BeatActive: e.beatActive,
		BPM:        e.BPM(),
		Detected:   e.detected,
		Excitement: e.excitement,
		Brightness: e.Brightness(),
	}
}

// BPM is the smoothed tempo. It reads 0 unless the last window held at
// least two beats.
func (e *Engine) BPM() float64 {
	if e.windowBeats < 2 {
		return 0
	}
	return math.Min(math.Max(e.bpm, 0), MaxBPM)
}

// Brightness is the envelope output as a global LED brightness.
func (e *Engine) Brightness() uint8 {
	return uint8(math.Round(math.Min(math.Max(e.envelope, 0), 255)))
}

// History exposes the beat history.
func (e *Engine) History() *BeatHistory { return &e.history }

// MeanLevel is the mean absolute amplitude of window normalized to [0,1].
func MeanLevel(window []int16) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		sum += math.Abs(float64(s))
	}
	return clamp01(sum / float64(len(window)) / 32768)
}

func (e *Engine) trackRange(raw float64) {
	if !e.primed {
		e.soundMin, e.soundMax = raw, raw
		e.primed = true
		return
	}
	d := e.p.TrackerDecay
	e.soundMin = math.Min(raw, e.soundMin*d+raw*(1-d))
	e.soundMax = math.Max(raw, e.soundMax*d+raw*(1-d))
}

// effectiveRange widens a collapsed range and drops a loud floor so that a
// compressed signal still produces crossings, at a lower threshold.
func (e *Engine) effectiveRange() (lo, hi, thr float64) {
	lo, hi, thr = e.soundMin, e.soundMax, e.p.BeatThreshold
	collapsed := hi-lo < e.p.MinRange
	loud := lo > e.p.HighFloor
	if !collapsed && !loud {
		return lo, hi, thr
	}
	thr = e.p.CompressedThreshold
	if collapsed {
		center := (lo + hi) / 2
		lo = center - e.p.MinRange
		hi = center + e.p.MinRange
	}
	if loud {
		lo -= e.p.MinRange
	}
	if lo < 0 {
		lo = 0
	}
	return lo, hi, thr
}

// detectBeat fires only on the upward crossing. BeatActive is cleared on
// any drop below threshold and otherwise stays latched.
func (e *Engine) detectBeat(level, thr float64) bool {
	above := level > thr
	fired := above && !e.wasAbove
	if fired {
		e.beatActive = true
	}
	if !above {
		e.beatActive = false
	}
	e.wasAbove = above
	return fired
}

func (e *Engine) updateBPM(now time.Time) {
	if e.windowStart.IsZero() {
		e.windowStart = now
	}
	if now.Sub(e.windowStart) >= BPMWindow {
		e.recomputeBPM(now)
		e.windowStart = now
	}
	if e.detected && now.Sub(e.lastDetected) > DetectTimeout {
		e.logger.Debug("audio: music lost", "silent_for", now.Sub(e.lastDetected))
		e.detected = false
		e.bpm = 0
		e.history.Reset()
	}
}

func (e *Engine) recomputeBPM(now time.Time) {
	count := e.history.CountSince(now.Add(-BPMWindow))
	e.windowBeats = count

	var est float64
	if med, ok := e.history.MedianInterval(); ok && e.history.intervals.len() >= 3 {
		est = 60000 / float64(med.Milliseconds())
	} else if count >= 2 {
		est = float64(count) * (60000 / float64(BPMWindow.Milliseconds()))
	}
	est = math.Min(est, MaxBPM)

	if est > 0 && count >= 1 {
		if e.bpm < bootstrapBPM {
			e.bpm = est
		} else {
			e.bpm = 0.9*e.bpm + 0.1*est
		}
	}

	if count >= 2 || (count >= 1 && est >= 30 && est <= MaxBPM) {
		e.detected = true
		e.lastDetected = now
	}
	e.logger.Debug("audio: bpm window", "beats", count, "estimate", est, "bpm", e.bpm, "detected", e.detected)
}

// updateEnvelope maps the level onto a brightness target and follows it with
// an instant attack and exponential decay.
func (e *Engine) updateEnvelope(now time.Time, level float64) {
	dt := time.Second / 60
	if !e.lastUpdate.IsZero() && now.After(e.lastUpdate) {
		dt = now.Sub(e.lastUpdate)
	}

	if !e.envPrimed {
		e.noiseFloor, e.peak = level, level
		e.envPrimed = true
	}
	if level < e.noiseFloor {
		e.noiseFloor = level
	} else {
		e.noiseFloor += e.p.NoiseAlpha * (level - e.noiseFloor)
	}
	if level > e.peak {
		e.peak = level
	} else {
		e.peak = e.peak*e.p.PeakDecay + level*(1-e.p.PeakDecay)
	}

	e.excitement = 0
	if span := e.peak - e.noiseFloor; span > 1e-6 {
		e.excitement = clamp01((level - e.noiseFloor) / span)
	}

	target := e.p.BaseBrightness
	if th := e.p.ExcitementThreshold; e.excitement > th && th < 1 {
		x := (e.excitement - th) / (1 - th)
		target += (e.p.MaxBrightness - e.p.BaseBrightness) * math.Pow(x, e.p.Exponent)
	}

	if target >= e.envelope || e.p.DecayTime <= 0 {
		e.envelope = target
		return
	}
	k := math.Exp(-dt.Seconds() / e.p.DecayTime.Seconds())
	e.envelope = target + (e.envelope-target)*k
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
