// Package loop runs the single-goroutine control loop that ties the pattern
// engine, the audio engine, the sync protocol and the node state together.
package loop

import "time"

// Cadences of the periodic tasks.
const (
	RenderInterval    = time.Second / 60
	BroadcastInterval = 50 * time.Millisecond
	DisplayInterval   = 2 * time.Second
	PollInterval      = 2 * time.Millisecond
	WatchdogTimeout   = 2 * time.Second
)

// Task is a named periodic job. An Interval of 0 runs on every tick.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(now time.Time)

	last time.Time
	ran  bool
	runs uint64
}

// Runs is how many times the task has run.
func (t *Task) Runs() uint64 { return t.runs }

// Scheduler runs tasks whose interval has elapsed, in the order they were
// added. Tasks must return well within the tightest interval.
type Scheduler struct {
	tasks []*Task
}

// Add registers a task and returns it.
func (s *Scheduler) Add(name string, interval time.Duration, run func(now time.Time)) *Task {
	t := &Task{Name: name, Interval: interval, Run: run}
	s.tasks = append(s.tasks, t)
	return t
}

// Tick runs every due task once.
func (s *Scheduler) Tick(now time.Time) {
	for _, t := range s.tasks {
		if t.ran && now.Sub(t.last) < t.Interval {
			continue
		}
		// Advance on the task's own grid so polling jitter does not stretch
		// the period; resync after a stall.
		if !t.ran {
			t.last, t.ran = now, true
		} else {
			t.last = t.last.Add(t.Interval)
			if now.Sub(t.last) >= t.Interval {
				t.last = now
			}
		}
		t.runs++
		t.Run(now)
	}
}

// Task looks a task up by name.
func (s *Scheduler) Task(name string) *Task {
	for _, t := range s.tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Watchdog calls onStall if Feed is not called within the timeout.
type Watchdog struct {
	timer   *time.Timer
	timeout time.Duration
}

func NewWatchdog(timeout time.Duration, onStall func()) *Watchdog {
	return &Watchdog{timer: time.AfterFunc(timeout, onStall), timeout: timeout}
}

// Feed restarts the countdown.
func (w *Watchdog) Feed() { w.timer.Reset(w.timeout) }

// Stop disarms the watchdog.
func (w *Watchdog) Stop() { w.timer.Stop() }
