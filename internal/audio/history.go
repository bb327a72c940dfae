package audio

import (
	"slices"
	"time"
)

// HistoryCap bounds both beat histories.
const HistoryCap = 50

// fifo is a bounded queue that evicts its oldest entry when full.
type fifo[T any] struct {
	items []T
}

func (q *fifo[T]) push(v T) {
	if len(q.items) == HistoryCap {
		copy(q.items, q.items[1:])
		q.items = q.items[:HistoryCap-1]
	}
	q.items = append(q.items, v)
}

func (q *fifo[T]) len() int { return len(q.items) }

func (q *fifo[T]) last() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	return q.items[len(q.items)-1], true
}

func (q *fifo[T]) reset() { q.items = q.items[:0] }

// BeatHistory records beat onsets and the inter-beat intervals derived from
// them.
type BeatHistory struct {
	beats     fifo[time.Time]
	intervals fifo[time.Duration]
}

// Interval prefilter: 30–400 BPM.
const (
	MinBeatInterval = 150 * time.Millisecond
	MaxBeatInterval = 2000 * time.Millisecond
)

// Add records a beat onset at t.
func (h *BeatHistory) Add(t time.Time) {
	if prev, ok := h.beats.last(); ok {
		iv := t.Sub(prev)
		if iv >= MinBeatInterval && iv <= MaxBeatInterval {
			h.intervals.push(iv)
		}
	}
	h.beats.push(t)
}

// Beats returns the recorded onsets, oldest first.
func (h *BeatHistory) Beats() []time.Time { return slices.Clone(h.beats.items) }

// Intervals returns the accepted intervals, oldest first.
func (h *BeatHistory) Intervals() []time.Duration { return slices.Clone(h.intervals.items) }

// CountSince counts beats at or after t.
func (h *BeatHistory) CountSince(t time.Time) int {
	n := 0
	for _, b := range h.beats.items {
		if !b.Before(t) {
			n++
		}
	}
	return n
}

// MedianInterval returns the median accepted interval.
func (h *BeatHistory) MedianInterval() (time.Duration, bool) {
	n := h.intervals.len()
	if n == 0 {
		return 0, false
	}
	sorted := slices.Clone(h.intervals.items)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

// Reset drops all history.
func (h *BeatHistory) Reset() {
	h.beats.reset()
	h.intervals.reset()
}
