package button

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Default port filters.
var (
	DefaultPreferred = []string{"LPD8", "Launchkey", "Novation", "nanoPAD"}
	DefaultExcluded  = []string{"Midi Through", "Through Port", "Dummy"}
)

const midiRescanInterval = 1000 * time.Millisecond

// MIDIWatcher keeps a connection to a MIDI controller and reports any
// pad or key as the unit's button: note on is a down edge, note off an up
// edge. It reconnects when devices come and go.
//
// Edges are delivered on the channel given to NewMIDIWatcher and dropped if
// the channel is full. When the active device is lost while a note is held,
// a synthetic up edge is sent so the button cannot stick.
type MIDIWatcher struct {
	mu           sync.Mutex
	drv          drivers.Driver
	inPort       drivers.In
	stopFn       func()
	connected    bool
	selectedName string
	lastRescanAt time.Time

	// heldMu guards held. The listener goroutine only takes heldMu, so
	// stopping the listener under mu cannot deadlock.
	heldMu sync.Mutex
	held   map[uint8]bool

	preferred []string
	excluded  []string
	edges     chan<- Edge
	logger    *slog.Logger
	now       func() time.Time
}

// NewMIDIWatcher wraps drv. Call Close when done; it also closes drv.
func NewMIDIWatcher(drv drivers.Driver, edges chan<- Edge, preferred, excluded []string, logger *slog.Logger) *MIDIWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if preferred == nil {
		preferred = DefaultPreferred
	}
	if excluded == nil {
		excluded = DefaultExcluded
	}
	return &MIDIWatcher{
		drv:       drv,
		held:      make(map[uint8]bool),
		preferred: preferred,
		excluded:  excluded,
		edges:     edges,
		logger:    logger,
		now:       time.Now,
	}
}

// Connected reports the active device name.
func (m *MIDIWatcher) Connected() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedName, m.connected
}

// Close shuts down the active connection and the driver.
func (m *MIDIWatcher) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnect()
	if m.drv != nil {
		m.drv.Close()
	}
}

// Tick rescans at most once per second. It connects to a preferred device
// when idle and notices when the connected device disappears.
func (m *MIDIWatcher) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.lastRescanAt.IsZero() && now.Sub(m.lastRescanAt) < midiRescanInterval {
		return
	}
	m.lastRescanAt = now

	ports := m.scan()
	names := portNames(ports)
	switch {
	case m.connected && slices.Contains(names, m.selectedName):
		// still there
	case m.connected:
		m.logger.Warn("midi: device disappeared", "device", m.selectedName)
		m.disconnect()
		m.lastRescanAt = time.Time{}
	default:
		name, ok := pickPreferred(names, m.preferred)
		if !ok {
			return
		}
		if err := m.connect(ports[slices.Index(names, name)]); err != nil {
			m.logger.Error("midi: connect failed", "device", name, "err", err)
		}
	}
}

// scan returns the input ports that survive the exclude list, in driver
// order.
func (m *MIDIWatcher) scan() []drivers.In {
	ins, err := m.drv.Ins()
	if err != nil {
		m.logger.Error("midi: list inputs failed", "err", err)
		return nil
	}
	kept := filterExcluded(portNames(ins), m.excluded)
	ports := make([]drivers.In, 0, len(kept))
	for _, in := range ins {
		if slices.Contains(kept, in.String()) {
			ports = append(ports, in)
		}
	}
	m.logger.Debug("midi: inputs found", "count", len(kept), "devices", strings.Join(kept, ", "))
	return ports
}

func portNames(ins []drivers.In) []string {
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names
}

// disconnect stops the listener and closes the port, releasing any held
// pads. Caller holds mu.
func (m *MIDIWatcher) disconnect() {
	if m.stopFn != nil {
		m.stopFn()
		m.stopFn = nil
	}
	if m.inPort != nil {
		_ = m.inPort.Close()
		m.inPort = nil
	}
	m.releaseHeld()
	m.connected = false
	m.selectedName = ""
}

// connect opens in and routes its notes into handle. Caller holds mu.
func (m *MIDIWatcher) connect(in drivers.In) error {
	name := in.String()
	if err := in.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		m.handle(msg)
	}, midi.HandleError(func(listenErr error) {
		m.logger.Warn("midi: listener error", "device", name, "err", listenErr)
		// disconnect stops the listener, so it must not run on the
		// listener goroutine.
		go func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.connected && m.selectedName == name {
				m.disconnect()
				m.lastRescanAt = time.Time{}
			}
		}()
	}))
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	m.inPort, m.stopFn = in, stop
	m.connected, m.selectedName = true, name
	m.logger.Info("midi: connected", "device", name)
	return nil
}

func (m *MIDIWatcher) releaseHeld() {
	m.heldMu.Lock()
	defer m.heldMu.Unlock()
	if len(m.held) == 0 {
		return
	}
	m.logger.Warn("midi: releasing held pads", "count", len(m.held))
	clear(m.held)
	m.emit(false)
}

// handle maps one message onto button edges: the first pad down presses
// the button, the last pad up releases it.
func (m *MIDIWatcher) handle(msg midi.Message) {
	m.heldMu.Lock()
	defer m.heldMu.Unlock()
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		m.logger.Debug("midi: note on", "ch", ch, "key", key, "vel", vel)
		wasIdle := len(m.held) == 0
		m.held[key] = true
		if wasIdle {
			m.emit(true)
		}
	case msg.GetNoteEnd(&ch, &key):
		m.logger.Debug("midi: note off", "ch", ch, "key", key)
		if !m.held[key] {
			return
		}
		delete(m.held, key)
		if len(m.held) == 0 {
			m.emit(false)
		}
	default:
		m.logger.Debug("midi: unhandled message", "msg", msg.String())
	}
}

func (m *MIDIWatcher) emit(down bool) {
	select {
	case m.edges <- Edge{Down: down, At: m.now()}:
	default:
		m.logger.Warn("midi: edge dropped, queue full", "down", down)
	}
}

func pickPreferred(inputs, preferred []string) (string, bool) {
	for _, pat := range preferred {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

func filterExcluded(names, excluded []string) []string {
	var out []string
	for _, name := range names {
		skip := false
		for _, pat := range excluded {
			if containsCI(name, pat) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, name)
		}
	}
	return out
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
