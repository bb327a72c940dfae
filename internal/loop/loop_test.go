package loop

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/chase3718/glowsync/internal/audio"
	"github.com/chase3718/glowsync/internal/button"
	"github.com/chase3718/glowsync/internal/display"
	"github.com/chase3718/glowsync/internal/node"
	"github.com/chase3718/glowsync/internal/pattern"
	"github.com/chase3718/glowsync/internal/syncproto"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	packets chan syncproto.Packet
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{packets: make(chan syncproto.Packet, 64)}
}

func (f *fakeTransport) Send(pkt []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), pkt...))
	return nil
}

func (f *fakeTransport) Packets() <-chan syncproto.Packet { return f.packets }
func (f *fakeTransport) Close() error                     { return nil }

type recordSink struct {
	frames     []pattern.Frame
	brightness []uint8
}

func (s *recordSink) Show(f pattern.Frame, b uint8) error {
	s.frames = append(s.frames, f.Clone())
	s.brightness = append(s.brightness, b)
	return nil
}

type recordDisplay struct{ got []display.Status }

func (d *recordDisplay) Update(s display.Status) { d.got = append(d.got, s) }

type harness struct {
	c       *Controller
	tr      *fakeTransport
	sink    *recordSink
	disp    *recordDisplay
	presses chan button.Event
	edges   chan button.Edge
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tr:      newFakeTransport(),
		sink:    &recordSink{},
		disp:    &recordDisplay{},
		presses: make(chan button.Event, 8),
		edges:   make(chan button.Edge, 8),
		now:     time.Unix(1_000, 0),
	}
	h.c = New(Options{
		LEDs:             pattern.DefaultLEDCount,
		NormalBrightness: 160,
		Rand:             rand.New(rand.NewPCG(1, 2)),
		Sink:             h.sink,
		Transport:        h.tr,
		Display:          h.disp,
		Presses:          h.presses,
		Edges:            h.edges,
		Sleep:            func(time.Duration) {},
	})
	return h
}

// advance steps the loop every 2ms for d.
func (h *harness) advance(d time.Duration) {
	end := h.now.Add(d)
	for h.now.Before(end) {
		h.c.Step(h.now)
		h.now = h.now.Add(PollInterval)
	}
}

func leaderFrame(n int) pattern.Frame {
	f := pattern.NewFrame(n)
	for i := range f {
		f[i] = pattern.RGB{R: uint8(i), G: 7, B: uint8(255 - i)}
	}
	return f
}

// sendFrame queues one full frame the way a leader would.
func (h *harness) sendFrame(t *testing.T, f pattern.Frame, brightness uint8) {
	t.Helper()
	mem := newFakeTransport()
	b := syncproto.NewBroadcaster(mem, nil, syncproto.WithFragmentDelay(0))
	if err := b.Broadcast(f, brightness); err != nil {
		t.Fatal(err)
	}
	for _, pkt := range mem.sent {
		h.tr.packets <- syncproto.Packet{Data: pkt, At: h.now}
	}
}

func TestFollowerReconstructsFrame(t *testing.T) {
	h := newHarness(t)
	want := leaderFrame(pattern.DefaultLEDCount)
	h.sendFrame(t, want, 77)
	h.c.Step(h.now)

	if !h.c.Node().Following() {
		t.Fatal("not following after fragments")
	}
	if len(h.sink.frames) != 1 {
		t.Fatalf("sink frames = %d, want exactly 1", len(h.sink.frames))
	}
	for i := range want {
		if h.sink.frames[0][i] != want[i] {
			t.Fatalf("led %d = %v, want %v", i, h.sink.frames[0][i], want[i])
		}
	}
	if h.sink.brightness[0] != 77 {
		t.Fatalf("brightness = %d, want 77", h.sink.brightness[0])
	}
}

func TestLeaderTimeoutResumesLocalPatterns(t *testing.T) {
	h := newHarness(t)
	h.sendFrame(t, leaderFrame(pattern.DefaultLEDCount), 255)
	start := h.now
	h.c.Step(h.now)

	h.now = start.Add(100 * time.Millisecond)
	for h.now.Before(start.Add(node.LeaderTimeout)) {
		h.c.Step(h.now)
		h.now = h.now.Add(100 * time.Millisecond)
	}
	if !h.c.Node().Following() {
		t.Fatal("following cleared before timeout")
	}
	if len(h.sink.frames) != 1 {
		t.Fatalf("local frames shown while following: %d", len(h.sink.frames)-1)
	}

	h.c.Step(start.Add(node.LeaderTimeout))
	if h.c.Node().Following() {
		t.Fatal("still following after 8s of silence")
	}
	if len(h.sink.frames) != 2 {
		t.Fatalf("sink frames = %d, want local frame on the timeout tick", len(h.sink.frames))
	}
	local := h.c.Patterns().Output()
	for i := range local {
		if h.sink.frames[1][i] != local[i] {
			t.Fatalf("led %d = %v, want pattern output %v", i, h.sink.frames[1][i], local[i])
		}
	}
	if h.sink.brightness[1] != 160 {
		t.Fatalf("brightness = %d, want normal 160", h.sink.brightness[1])
	}
}

func TestPressesDriveModes(t *testing.T) {
	h := newHarness(t)
	h.sendFrame(t, leaderFrame(pattern.DefaultLEDCount), 255)
	h.c.Step(h.now)

	steps := []struct {
		ev        button.Event
		mode      node.Mode
		following bool
	}{
		{button.Short, node.Music, true},
		{button.Short, node.Normal, true},
		{button.Short, node.Music, true},
		{button.Long, node.MusicLeader, false},
		{button.Short, node.NormalLeader, false},
		{button.Long, node.Normal, false},
	}
	for i, st := range steps {
		h.presses <- st.ev
		h.now = h.now.Add(PollInterval)
		h.c.Step(h.now)
		if got := h.c.Node().Mode(); got != st.mode {
			t.Fatalf("step %d: mode = %v, want %v", i, got, st.mode)
		}
		if got := h.c.Node().Following(); got != st.following {
			t.Fatalf("step %d: following = %v, want %v", i, got, st.following)
		}
	}
}

func TestHeldButtonBecomesLongPress(t *testing.T) {
	h := newHarness(t)
	h.edges <- button.Edge{Down: true, At: h.now}
	h.advance(button.LongPress - 10*time.Millisecond)
	if h.c.Node().Mode() != node.Normal {
		t.Fatalf("mode changed early: %v", h.c.Node().Mode())
	}
	h.advance(20 * time.Millisecond)
	if h.c.Node().Mode() != node.NormalLeader {
		t.Fatalf("mode = %v, want normal-leader", h.c.Node().Mode())
	}
	h.edges <- button.Edge{Down: false, At: h.now}
	h.advance(10 * time.Millisecond)
	if h.c.Node().Mode() != node.NormalLeader {
		t.Fatalf("release after long press changed mode to %v", h.c.Node().Mode())
	}

	h.edges <- button.Edge{Down: true, At: h.now}
	h.edges <- button.Edge{Down: false, At: h.now.Add(200 * time.Millisecond)}
	h.advance(10 * time.Millisecond)
	if h.c.Node().Mode() != node.MusicLeader {
		t.Fatalf("tap: mode = %v, want music-leader", h.c.Node().Mode())
	}
}

func TestLeaderBroadcastsAt20Hz(t *testing.T) {
	h := newHarness(t)
	h.presses <- button.Long
	h.advance(time.Second)

	if h.c.Node().Mode() != node.NormalLeader {
		t.Fatalf("mode = %v, want normal-leader", h.c.Node().Mode())
	}
	want := 20 * syncproto.Fragments(pattern.DefaultLEDCount)
	if len(h.tr.sent) != want {
		t.Fatalf("fragments sent = %d, want %d", len(h.tr.sent), want)
	}
	for i, pkt := range h.tr.sent {
		f, err := syncproto.Decode(pkt)
		if err != nil {
			t.Fatalf("fragment %d: %v", i, err)
		}
		if f.Seq != uint8(i) {
			t.Fatalf("fragment %d seq = %d", i, f.Seq)
		}
		if f.Brightness != 160 {
			t.Fatalf("fragment %d brightness = %d, want 160", i, f.Brightness)
		}
	}
}

func TestStandaloneDoesNotBroadcast(t *testing.T) {
	h := newHarness(t)
	h.advance(500 * time.Millisecond)
	if len(h.tr.sent) != 0 {
		t.Fatalf("standalone node sent %d fragments", len(h.tr.sent))
	}
	if len(h.sink.frames) == 0 {
		t.Fatal("no local frames rendered")
	}
}

func TestLeaderIgnoresFragments(t *testing.T) {
	h := newHarness(t)
	h.presses <- button.Long
	h.c.Step(h.now)
	shown := len(h.sink.frames)

	h.sendFrame(t, leaderFrame(pattern.DefaultLEDCount), 1)
	h.now = h.now.Add(time.Millisecond)
	h.c.Step(h.now)
	if h.c.Node().Following() {
		t.Fatal("leader started following")
	}
	for _, b := range h.sink.brightness[shown:] {
		if b == 1 {
			t.Fatal("leader displayed a received frame")
		}
	}
}

func TestMalformedPacketsIgnored(t *testing.T) {
	h := newHarness(t)
	h.tr.packets <- syncproto.Packet{Data: make([]byte, 10)}
	bad := (&syncproto.SyncFrame{Count: 1}).Encode()
	bad[1] = 0
	h.tr.packets <- syncproto.Packet{Data: bad}
	h.c.Step(h.now)
	if h.c.Node().Following() {
		t.Fatal("malformed packet started following")
	}
}

func TestMusicModeUsesAudioBrightness(t *testing.T) {
	h := newHarness(t)
	h.advance(100 * time.Millisecond)
	if got := h.sink.brightness[len(h.sink.brightness)-1]; got != 160 {
		t.Fatalf("normal brightness = %d, want 160", got)
	}
	h.presses <- button.Short
	h.advance(100 * time.Millisecond)
	// Silence holds the envelope at its base level.
	if got := h.sink.brightness[len(h.sink.brightness)-1]; got != 64 {
		t.Fatalf("music brightness = %d, want 64", got)
	}
}

// flakySource fails every other read; good reads ramp the amplitude so the
// envelope keeps moving.
type flakySource struct{ reads int }

func (s *flakySource) Read(w []int16) error {
	s.reads++
	if s.reads%2 == 0 {
		return errors.New("capture overrun")
	}
	amp := int16(1000 + (s.reads%40)*500)
	for i := range w {
		if i%2 == 0 {
			w[i] = amp
		} else {
			w[i] = -amp
		}
	}
	return nil
}

func TestCaptureFailureSkipsAudioUpdate(t *testing.T) {
	src := &flakySource{}
	sink := &recordSink{}
	presses := make(chan button.Event, 1)
	c := New(Options{
		NormalBrightness: 160,
		Rand:             rand.New(rand.NewPCG(3, 4)),
		Audio:            src,
		Sink:             sink,
		Presses:          presses,
	})
	presses <- button.Short // music mode

	now := time.Unix(2_000, 0)
	var statuses []audio.Status
	for i := 0; i < 120; i++ {
		c.Step(now)
		statuses = append(statuses, c.audioStatus)
		now = now.Add(RenderInterval)
	}

	if src.reads != 120 {
		t.Fatalf("reads = %d, want 120", src.reads)
	}
	if len(sink.frames) != src.reads {
		t.Fatalf("frames = %d, want one per render (%d)", len(sink.frames), src.reads)
	}
	if c.audioFailures != 60 {
		t.Fatalf("failures = %d, want 60", c.audioFailures)
	}
	moved := false
	for i := 1; i < len(statuses); i++ {
		failed := (i+1)%2 == 0
		prev, cur := statuses[i-1], statuses[i]
		if failed {
			if cur.Level != prev.Level || cur.Raw != prev.Raw || cur.BPM != prev.BPM {
				t.Fatalf("tick %d: failed read changed audio status %+v -> %+v", i, prev, cur)
			}
			if sink.brightness[i] != sink.brightness[i-1] {
				t.Fatalf("tick %d: brightness jumped %d -> %d on failed read", i, sink.brightness[i-1], sink.brightness[i])
			}
		} else if cur.Raw != prev.Raw {
			moved = true
		}
	}
	if !moved {
		t.Fatal("good reads never updated the audio status")
	}
}

func TestDisplayCadenceAndSnapshot(t *testing.T) {
	h := newHarness(t)
	h.advance(5 * time.Second)
	if len(h.disp.got) != 3 {
		t.Fatalf("display updates = %d, want 3", len(h.disp.got))
	}
	s := h.disp.got[len(h.disp.got)-1]
	if s.Mode != node.Normal || s.Following || len(s.Preview) != pattern.DefaultLEDCount {
		t.Fatalf("snapshot = %+v", s)
	}
	h.c.Patterns().Output()[0] = pattern.RGB{R: 1, G: 2, B: 3}
	if s.Preview[0] == (pattern.RGB{R: 1, G: 2, B: 3}) {
		t.Fatal("preview aliases the live frame")
	}
}

func TestSchedulerCadence(t *testing.T) {
	var s Scheduler
	render := s.Add("render", RenderInterval, func(time.Time) {})
	bcast := s.Add("broadcast", BroadcastInterval, func(time.Time) {})
	disp := s.Add("display", DisplayInterval, func(time.Time) {})
	wd := s.Add("watchdog", 0, func(time.Time) {})

	t0 := time.Unix(0, 0)
	for ms := 0; ms < 1000; ms += 2 {
		s.Tick(t0.Add(time.Duration(ms) * time.Millisecond))
	}
	if render.Runs() != 60 {
		t.Errorf("render runs = %d, want 60", render.Runs())
	}
	if bcast.Runs() != 20 {
		t.Errorf("broadcast runs = %d, want 20", bcast.Runs())
	}
	if disp.Runs() != 1 {
		t.Errorf("display runs = %d, want 1", disp.Runs())
	}
	if wd.Runs() != 500 {
		t.Errorf("watchdog runs = %d, want 500", wd.Runs())
	}
	if s.Task("broadcast") != bcast || s.Task("missing") != nil {
		t.Error("task lookup broken")
	}
}

func TestSchedulerResyncsAfterStall(t *testing.T) {
	var s Scheduler
	task := s.Add("render", RenderInterval, func(time.Time) {})
	t0 := time.Unix(0, 0)
	s.Tick(t0)
	s.Tick(t0.Add(time.Second)) // stalled
	s.Tick(t0.Add(time.Second + 2*time.Millisecond))
	if task.Runs() != 2 {
		t.Fatalf("runs = %d, want 2 (no burst after a stall)", task.Runs())
	}
}

func TestWatchdog(t *testing.T) {
	fired := make(chan struct{})
	w := NewWatchdog(20*time.Millisecond, func() { close(fired) })
	defer w.Stop()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire")
	}

	quiet := make(chan struct{}, 1)
	w2 := NewWatchdog(50*time.Millisecond, func() { quiet <- struct{}{} })
	w2.Stop()
	select {
	case <-quiet:
		t.Fatal("stopped watchdog fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := h.c.Run(ctx); err == nil {
		t.Fatal("deadline should be reported")
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel2()
	}()
	if err := h.c.Run(ctx2); err != nil {
		t.Fatalf("run: %v", err)
	}
}
