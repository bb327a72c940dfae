package display

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/chase3718/glowsync/internal/button"
	"github.com/chase3718/glowsync/internal/pattern"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fff"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888")).Width(11)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	leaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f5a623")).Bold(true)
	followStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4a90e2"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555")).MarginTop(1)
)

const previewWidth = 50

type statusMsg Status

// TUI is a terminal status view. Space or s sends a short press, l a long
// press, q quits.
type TUI struct {
	updates chan Status
	program *tea.Program
}

// NewTUI builds the view. Key presses are sent to presses, dropped when it
// is full.
func NewTUI(presses chan<- button.Event, opts ...tea.ProgramOption) *TUI {
	t := &TUI{updates: make(chan Status, 1)}
	t.program = tea.NewProgram(model{updates: t.updates, presses: presses}, opts...)
	return t
}

// Update replaces the pending snapshot. It never blocks.
func (t *TUI) Update(s Status) {
	select {
	case t.updates <- s:
	default:
		// drop the stale pending snapshot in favour of the new one
		select {
		case <-t.updates:
		default:
		}
		select {
		case t.updates <- s:
		default:
		}
	}
}

// Run blocks until the user quits or Quit is called.
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

// Quit stops the program.
func (t *TUI) Quit() { t.program.Quit() }

type model struct {
	updates  <-chan Status
	presses  chan<- button.Event
	status   Status
	haveData bool
	lastKey  string
	quitting bool
}

func listenForStatus(ch <-chan Status) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return tea.Quit()
		}
		return statusMsg(s)
	}
}

func (m model) Init() tea.Cmd {
	return listenForStatus(m.updates)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case " ", "s":
			m.press(button.Short)
		case "l":
			m.press(button.Long)
		}
		m.lastKey = msg.String()

	case statusMsg:
		m.status = Status(msg)
		m.haveData = true
		return m, listenForStatus(m.updates)
	}
	return m, nil
}

func (m model) press(ev button.Event) {
	if m.presses == nil {
		return
	}
	select {
	case m.presses <- ev:
	default:
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("glowsync"))
	b.WriteString("\n\n")
	if !m.haveData {
		b.WriteString(dimStyle.Render("waiting for first frame..."))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("space short press · l long press · q quit"))
		return b.String()
	}

	s := m.status
	mode := valueStyle.Render(s.Mode.String())
	if s.Mode.IsLeader() {
		mode = leaderStyle.Render(s.Mode.String())
	}
	source := valueStyle.Render(s.Pattern.String())
	if s.Transition {
		source += dimStyle.Render(" (transition)")
	}
	if s.Following {
		source = followStyle.Render("following leader")
	}
	bpm := dimStyle.Render("--")
	if s.BPM > 0 {
		bpm = valueStyle.Render(fmt.Sprintf("%.0f", s.BPM))
	}
	if s.Detected {
		bpm += dimStyle.Render(" ♪")
	}

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("mode", mode)
	row("source", source)
	row("audio", valueStyle.Render(levelBar(s.AudioPercent(), 20))+dimStyle.Render(fmt.Sprintf(" %3d%%", s.AudioPercent())))
	row("bpm", bpm)
	row("brightness", valueStyle.Render(fmt.Sprintf("%d", s.Brightness)))
	b.WriteString("\n")
	b.WriteString(renderPreview(s.Preview, s.Brightness, previewWidth))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space short press · l long press · q quit"))
	return b.String()
}

func levelBar(pct, width int) string {
	filled := pct * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// renderPreview draws the strip downsampled to width cells, each colored
// with its LED scaled by brightness.
func renderPreview(f pattern.Frame, brightness uint8, width int) string {
	if len(f) == 0 || width <= 0 {
		return ""
	}
	if width > len(f) {
		width = len(f)
	}
	scale := float64(brightness) / 255
	black := colorful.Color{}
	var b strings.Builder
	for i := 0; i < width; i++ {
		c := f[i*len(f)/width]
		col := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
		col = black.BlendRgb(col, scale)
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(col.Hex())).Render("●"))
	}
	return b.String()
}
