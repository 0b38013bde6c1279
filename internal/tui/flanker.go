package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cogtask/internal/flanker"
)

// Flanker is the interactive emotional flanker block: o for red ink, p for
// green.
type Flanker struct {
	block  *block[flanker.Trial, flanker.Result]
	onDone func([]flanker.Result) error
	now    func() time.Time
	err    error
	done   bool
}

// NewFlanker runs trials with cfg timing. onDone receives the results once
// the last trial closes.
func NewFlanker(trials []flanker.Trial, cfg flanker.Config, onDone func([]flanker.Result) error) Flanker {
	score := func(t flanker.Trial, key string, rt time.Duration) flanker.Result {
		return flanker.Score(t, flanker.Key(strings.ToUpper(key)), rt, cfg.ResponseLimit)
	}
	return Flanker{
		block:  newBlock(trials, cfg.InterTrial, cfg.ResponseLimit, score),
		onDone: onDone,
		now:    time.Now,
	}
}

// Results returns the scored trials so far.
func (m Flanker) Results() []flanker.Result { return m.block.results }

// Err returns the error from onDone.
func (m Flanker) Err() error { return m.err }

func (m Flanker) Init() tea.Cmd {
	return tea.Batch(func() tea.Msg { return tickMsg(m.now()) }, tickCmd())
}

func (m Flanker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		if m.block.advance(time.Time(msg)) {
			m.finish()
			return m, nil
		}
		return m, tickCmd()

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.done {
			return m, backCmd
		}
		switch key := msg.String(); key {
		case "o", "p":
			if _, finished := m.block.respond(key, m.now()); finished {
				m.finish()
			}
		case "esc", "q":
			return m, backCmd
		}
	}
	return m, nil
}

func (m *Flanker) finish() {
	m.done = true
	if m.onDone != nil {
		m.err = m.onDone(m.block.results)
	}
}

func (m Flanker) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Emotional Flanker") + "\n\n")

	if m.done {
		if m.err != nil {
			b.WriteString(errorStyle.Render("Saving results failed: "+m.err.Error()) + "\n")
		}
		s := flanker.Summarize(m.block.results)
		fmt.Fprintf(&b, "correct %d  incorrect %d  no response %d\n", s.Correct, s.Incorrect, s.NoResponse)
		fmt.Fprintf(&b, "mean RT negative %.3fs  neutral %.3fs\n\n", s.MeanRTNegative, s.MeanRTNeutral)
		b.WriteString(mutedStyle.Render("press any key"))
		return b.String()
	}

	if t, ok := m.block.current(); ok {
		word := strings.Join([]string{t.Word, t.Word, t.Word}, "  ")
		ink := redInk
		if t.Color == flanker.Green {
			ink = greenInk
		}
		b.WriteString(panelStyle.Render(ink.Render(word)) + "\n\n")
	} else {
		b.WriteString(panelStyle.Render(mutedStyle.Render("+")) + "\n\n")
	}
	fmt.Fprintf(&b, "%s red   %s green   %s\n", labelStyle.Render("o"), labelStyle.Render("p"),
		mutedStyle.Render(fmt.Sprintf("trial %d/%d", min(m.block.idx+1, len(m.block.items)), len(m.block.items))))
	return b.String()
}
