package loop

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/chase3718/glowsync/internal/audio"
	"github.com/chase3718/glowsync/internal/button"
	"github.com/chase3718/glowsync/internal/display"
	"github.com/chase3718/glowsync/internal/node"
	"github.com/chase3718/glowsync/internal/output"
	"github.com/chase3718/glowsync/internal/pattern"
	"github.com/chase3718/glowsync/internal/syncproto"
)

// Options wires a Controller to its collaborators. Nil collaborators are
// replaced by inert defaults.
type Options struct {
	LEDs             int
	NormalBrightness uint8
	Rand             *rand.Rand

	Audio       audio.Source
	AudioWindow int
	AudioParams audio.Params

	Sink      output.Sink
	Transport syncproto.Transport // nil runs standalone
	Display   display.Display

	Edges   <-chan button.Edge  // raw button edges, e.g. from MIDI
	Presses <-chan button.Event // already classified presses, e.g. from the TUI

	// Broadcast pacing; zero keeps the protocol defaults.
	FragmentDelay time.Duration
	Sleep         func(time.Duration)

	WatchdogTimeout time.Duration
	OnStall         func()

	Logger *slog.Logger
}

// Controller owns every piece of mutable state and touches it from one
// goroutine only.
type Controller struct {
	opts   Options
	logger *slog.Logger

	node     *node.State
	patterns *pattern.Engine
	audio    *audio.Engine
	window   []int16
	button   button.Classifier

	broadcaster *syncproto.Broadcaster
	receiver    *syncproto.Receiver
	packets     <-chan syncproto.Packet

	sched    Scheduler
	watchdog *Watchdog

	audioStatus   audio.Status
	audioFailures uint64
}

// New builds a controller from opts.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LEDs <= 0 {
		opts.LEDs = pattern.DefaultLEDCount
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Audio == nil {
		opts.Audio = audio.SilenceSource{}
	}
	if opts.AudioWindow <= 0 {
		opts.AudioWindow = 256
	}
	if opts.AudioParams == (audio.Params{}) {
		opts.AudioParams = audio.DefaultParams()
	}
	if opts.Sink == nil {
		opts.Sink = output.Discard{}
	}
	if opts.WatchdogTimeout <= 0 {
		opts.WatchdogTimeout = WatchdogTimeout
	}

	c := &Controller{
		opts:     opts,
		logger:   opts.Logger,
		node:     node.New(opts.Logger),
		patterns: pattern.NewEngine(opts.LEDs, opts.Rand),
		audio:    audio.NewEngine(opts.AudioParams, opts.Logger),
		window:   make([]int16, opts.AudioWindow),
		receiver: syncproto.NewReceiver(opts.LEDs, opts.Sink, opts.Logger),
	}
	if opts.Transport != nil {
		var bopts []syncproto.BroadcasterOption
		if opts.FragmentDelay > 0 {
			bopts = append(bopts, syncproto.WithFragmentDelay(opts.FragmentDelay))
		}
		if opts.Sleep != nil {
			bopts = append(bopts, syncproto.WithSleep(opts.Sleep))
		}
		c.broadcaster = syncproto.NewBroadcaster(opts.Transport, opts.Logger, bopts...)
		c.packets = opts.Transport.Packets()
	}

	c.sched.Add("render", RenderInterval, c.render)
	c.sched.Add("broadcast", BroadcastInterval, c.broadcast)
	c.sched.Add("display", DisplayInterval, c.display)
	c.sched.Add("watchdog", 0, c.feedWatchdog)
	return c
}

// Node exposes the node state.
func (c *Controller) Node() *node.State { return c.node }

// Patterns exposes the pattern engine.
func (c *Controller) Patterns() *pattern.Engine { return c.patterns }

// Scheduler exposes the task table.
func (c *Controller) Scheduler() *Scheduler { return &c.sched }

// Run polls until ctx is done. The watchdog is armed for the duration.
func (c *Controller) Run(ctx context.Context) error {
	onStall := c.opts.OnStall
	if onStall == nil {
		onStall = func() { c.logger.Error("loop: watchdog expired", "timeout", c.opts.WatchdogTimeout) }
	}
	c.watchdog = NewWatchdog(c.opts.WatchdogTimeout, onStall)
	defer c.watchdog.Stop()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	c.logger.Info("loop: running", "leds", c.opts.LEDs, "sync", c.broadcaster != nil)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("loop: stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case now := <-ticker.C:
			c.Step(now)
		}
	}
}

// Step is one loop iteration at now.
func (c *Controller) Step(now time.Time) {
	c.drainPackets(now)
	c.drainButtons(now)
	c.node.CheckTimeout(now)
	c.sched.Tick(now)
}

func (c *Controller) drainPackets(now time.Time) {
	if c.packets == nil {
		return
	}
	for {
		select {
		case p, ok := <-c.packets:
			if !ok {
				c.logger.Warn("sync: transport closed")
				c.packets = nil
				return
			}
			c.handlePacket(now, p)
		default:
			return
		}
	}
}

func (c *Controller) handlePacket(now time.Time, p syncproto.Packet) {
	f, err := syncproto.Decode(p.Data)
	if err != nil {
		c.logger.Debug("sync: fragment rejected", "from", p.From, "err", err)
		return
	}
	if !c.node.OnFragment(now) {
		return
	}
	if _, err := c.receiver.Apply(f); err != nil {
		c.logger.Warn("sync: show failed", "err", err)
	}
}

func (c *Controller) drainButtons(now time.Time) {
	for {
		select {
		case e := <-c.opts.Edges:
			if ev, ok := c.button.Feed(e); ok {
				c.press(ev)
			}
			continue
		case ev := <-c.opts.Presses:
			c.press(ev)
			continue
		default:
		}
		break
	}
	if ev, ok := c.button.Tick(now); ok {
		c.press(ev)
	}
}

func (c *Controller) press(ev button.Event) {
	switch ev {
	case button.Short:
		c.node.ShortPress()
	case button.Long:
		c.node.LongPress()
	}
}

// brightness is the global brightness for the current mode.
func (c *Controller) brightness() uint8 {
	if c.node.Mode().IsMusic() {
		return c.audioStatus.Brightness
	}
	return c.opts.NormalBrightness
}

func (c *Controller) render(now time.Time) {
	if err := c.opts.Audio.Read(c.window); err != nil {
		c.audioFailures++
		if c.audioFailures == 1 || c.audioFailures%600 == 0 {
			c.logger.Warn("audio: capture failed", "err", err, "failures", c.audioFailures)
		}
		c.audioStatus = c.audio.Skip()
	} else {
		c.audioStatus = c.audio.Update(now, c.window)
	}

	// While following, the receiver owns the LEDs.
	if c.node.Following() {
		return
	}
	frame := c.patterns.Step()
	if err := c.opts.Sink.Show(frame, c.brightness()); err != nil {
		c.logger.Warn("output: show failed", "err", err)
	}
}

func (c *Controller) broadcast(time.Time) {
	if c.broadcaster == nil || !c.node.Mode().IsLeader() {
		return
	}
	if err := c.broadcaster.Broadcast(c.patterns.Output(), c.brightness()); err != nil {
		c.logger.Debug("sync: broadcast incomplete", "err", err)
	}
}

// Status is the current display snapshot.
func (c *Controller) Status() display.Status {
	s := display.Status{
		Mode:       c.node.Mode(),
		Following:  c.node.Following(),
		Pattern:    c.patterns.PatternID(),
		Transition: c.patterns.State().Transitioning(),
		AudioLevel: c.audioStatus.Level,
		BPM:        c.audioStatus.BPM,
		Detected:   c.audioStatus.Detected,
		Brightness: c.brightness(),
	}
	if s.Following {
		s.Brightness = c.receiver.Brightness()
		s.Preview = c.receiver.Frame().Clone()
	} else {
		s.Preview = c.patterns.Output().Clone()
	}
	return s
}

func (c *Controller) display(time.Time) {
	if c.opts.Display == nil {
		return
	}
	c.opts.Display.Update(c.Status())
}

func (c *Controller) feedWatchdog(time.Time) {
	if c.watchdog != nil {
		c.watchdog.Feed()
	}
}
