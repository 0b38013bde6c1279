package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cogtask/internal/session"
	"cogtask/internal/trial"
)

// TickInterval is how often the models advance their clocks.
const TickInterval = 20 * time.Millisecond

// ErrQuit aborts a session the participant left.
var ErrQuit = errors.New("participant quit")

type tickMsg time.Time

// BackMsg tells a parent model that a task screen is finished.
type BackMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func backCmd() tea.Msg { return BackMsg{} }

type phase int

const (
	phaseSetup phase = iota
	phaseWaiting
	phaseTrial
	phaseBlank
	phaseResting
	phaseFinished
)

// Screen implements session.Presenter by recording what to draw. Its
// methods run inside NBack.Update, so no locking is needed.
type Screen struct {
	phase    phase
	round    int
	n        int
	until    time.Time
	current  session.Presentation
	summary  session.Summary
	pressedV bool
	pressedA bool
}

func (s *Screen) RoundStarting(round, n int, startsAt time.Time) {
	s.phase, s.round, s.n, s.until = phaseWaiting, round, n, startsAt
}

func (s *Screen) Present(p session.Presentation) {
	s.phase, s.current = phaseTrial, p
	s.pressedV, s.pressedA = false, false
}

func (s *Screen) Clear() {
	s.phase = phaseBlank
}

func (s *Screen) Resting(until time.Time) {
	s.phase, s.until = phaseResting, until
}

func (s *Screen) Finished(sum session.Summary) {
	s.phase, s.summary = phaseFinished, sum
}

var _ session.Presenter = (*Screen)(nil)

// NBack is the interactive n-back task. Space marks a visual match, z an
// audio match. Single-mode sessions show only the modality they play.
type NBack struct {
	ctx    context.Context
	ctrl   *session.Controller
	screen *Screen
	now    func() time.Time
	err    error
	width  int
}

// NewNBack wraps a controller built with WithPresenter(screen).
func NewNBack(ctx context.Context, ctrl *session.Controller, screen *Screen) NBack {
	return NBack{ctx: ctx, ctrl: ctrl, screen: screen, now: time.Now}
}

// Err returns the session error, if any.
func (m NBack) Err() error {
	if m.err != nil {
		return m.err
	}
	return m.ctrl.Err()
}

func (m NBack) Init() tea.Cmd {
	return tea.Batch(func() tea.Msg { return tickMsg(m.now()) }, tickCmd())
}

func (m NBack) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		if m.ctrl.State() == session.StateDone {
			return m, nil
		}
		if err := m.ctrl.Tick(m.ctx, time.Time(msg)); err != nil {
			m.err = err
			return m, nil
		}
		if m.ctrl.State() == session.StateDone {
			return m, nil
		}
		return m, tickCmd()

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.ctrl.Abort(ErrQuit)
			return m, tea.Quit
		}
		if m.ctrl.State() == session.StateDone {
			return m, backCmd
		}
		switch msg.String() {
		case " ":
			if m.plays(trial.Visual) && m.ctrl.Respond(trial.Visual, m.now()) {
				m.screen.pressedV = true
			}
		case "z":
			if m.plays(trial.Audio) && m.ctrl.Respond(trial.Audio, m.now()) {
				m.screen.pressedA = true
			}
		case "esc", "q":
			m.ctrl.Abort(ErrQuit)
			return m, backCmd
		}
	}
	return m, nil
}

func (m NBack) View() string {
	if err := m.Err(); err != nil {
		return errorStyle.Render("Session failed: "+err.Error()) + "\n\n" + mutedStyle.Render("press any key")
	}

	s := m.screen
	var b strings.Builder
	header := titleStyle.Render(m.title())
	if s.round > 0 {
		header += mutedStyle.Render(fmt.Sprintf("  round %d  n=%d", s.round, s.n))
	}
	b.WriteString(header + "\n\n")

	now := m.now()
	switch s.phase {
	case phaseSetup:
		b.WriteString(mutedStyle.Render("preparing..."))
	case phaseWaiting:
		fmt.Fprintf(&b, "Round %d starts in %s\n\n", s.round, remaining(now, s.until))
		if m.plays(trial.Visual) {
			fmt.Fprintf(&b, "Press %s when the square matches the one %d back.\n", labelStyle.Render("space"), s.n)
		}
		if m.plays(trial.Audio) {
			fmt.Fprintf(&b, "Press %s when the sound matches the one %d back.\n", labelStyle.Render("z"), s.n)
		}
	case phaseTrial, phaseBlank:
		b.WriteString(m.renderTrial())
	case phaseResting:
		fmt.Fprintf(&b, "Rest. Next round with n=%d in %s\n", s.n, remaining(now, s.until))
	case phaseFinished:
		b.WriteString(renderSummary(s.summary))
		b.WriteString("\n" + mutedStyle.Render("press any key"))
	}
	return b.String()
}

func (m NBack) plays(t trial.Modality) bool {
	return m.ctrl.Protocol().Mode.Presents(t)
}

func (m NBack) title() string {
	switch m.ctrl.Protocol().Mode {
	case session.ModeVisual:
		return "Colour N-Back"
	case session.ModeAudio:
		return "Audio N-Back"
	}
	return "Dual N-Back"
}

func (m NBack) renderTrial() string {
	s := m.screen
	p := s.current
	progress := mutedStyle.Render(fmt.Sprintf("trial %d/%d", p.Trial+1, p.Total))

	var parts []string
	if m.plays(trial.Visual) {
		parts = append(parts, m.renderGrid(), "")
	}
	if m.plays(trial.Audio) {
		sound := mutedStyle.Render("♪ ...")
		if s.phase == phaseTrial && p.AudioAsset.Name != "" {
			sound = labelStyle.Render("♪ " + p.AudioAsset.Name)
		}
		parts = append(parts, sound, "")
	}

	var marks []string
	if m.plays(trial.Visual) {
		marks = append(marks, mark(s.pressedV)+" visual")
	}
	if m.plays(trial.Audio) {
		marks = append(marks, mark(s.pressedA)+" audio")
	}
	parts = append(parts, strings.Join(marks, "   "), progress)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m NBack) renderGrid() string {
	s := m.screen
	p := s.current
	lit := -1
	if s.phase == phaseTrial {
		lit = p.VisualCell % 9
	}

	rows := make([]string, 3)
	for r := 0; r < 3; r++ {
		cells := make([]string, 3)
		for c := 0; c < 3; c++ {
			i := r*3 + c
			switch {
			case i != lit:
				cells[c] = cellStyle.Render("")
			case p.VisualAsset.Valence == trial.Negative:
				cells[c] = litNegativeStyle.Render(truncate(p.VisualAsset.Name, 9))
			default:
				cells[c] = litNeutralStyle.Render(truncate(p.VisualAsset.Name, 9))
			}
		}
		rows[r] = lipgloss.JoinHorizontal(lipgloss.Top, cells...)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderSummary(sum session.Summary) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Session complete") + "\n\n")
	fmt.Fprintf(&b, "%-6s %-3s %-8s %-8s %-6s\n", "round", "n", "visual", "audio", "next")
	for _, r := range sum.Rounds {
		fmt.Fprintf(&b, "%-6d %-3d %-8s %-8s %-6d\n", r.Round, r.N,
			percent(r.Visual.Accuracy), percent(r.Audio.Accuracy), r.NextN)
	}
	fmt.Fprintf(&b, "\nfinal n: %d\n", sum.FinalN)
	return b.String()
}

func mark(on bool) string {
	if on {
		return successStyle.Render("●")
	}
	return mutedStyle.Render("○")
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func remaining(now, until time.Time) string {
	d := until.Sub(now)
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
