// Package button turns raw button edges into short and long presses.
package button

import "time"

// LongPress is the hold time that turns a press into a long press.
const LongPress = 1500 * time.Millisecond

// Event is a classified press.
type Event uint8

const (
	Short Event = iota + 1
	Long
)

func (e Event) String() string {
	switch e {
	case Short:
		return "short"
	case Long:
		return "long"
	}
	return "none"
}

// Edge is a raw transition reported by an input device.
type Edge struct {
	Down bool
	At   time.Time
}

// Classifier tracks one button. A long press fires as soon as the hold
// reaches LongPress, without waiting for release; the release that follows
// produces nothing.
type Classifier struct {
	down     bool
	downAt   time.Time
	promoted bool
}

// Feed applies an edge and returns the press it completes, if any.
func (c *Classifier) Feed(e Edge) (Event, bool) {
	if e.Down {
		if !c.down {
			c.down, c.downAt, c.promoted = true, e.At, false
		}
		return 0, false
	}
	if !c.down {
		return 0, false
	}
	c.down = false
	if c.promoted {
		return 0, false
	}
	if e.At.Sub(c.downAt) >= LongPress {
		return Long, true
	}
	return Short, true
}

// Tick promotes a held button to a long press once.
func (c *Classifier) Tick(now time.Time) (Event, bool) {
	if c.down && !c.promoted && now.Sub(c.downAt) >= LongPress {
		c.promoted = true
		return Long, true
	}
	return 0, false
}

// Held reports whether the button is down.
func (c *Classifier) Held() bool { return c.down }
