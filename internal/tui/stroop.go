package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cogtask/internal/stroop"
	"cogtask/internal/trial"
)

// Stroop is the interactive counting Stroop block: the participant types
// how many cells are lit, 1 to 4.
type Stroop struct {
	block  *block[stroop.Item, stroop.Result]
	onDone func([]stroop.Result) error
	now    func() time.Time
	err    error
	done   bool
}

// NewStroop runs items with cfg timing. The gap before each item equals
// the response window.
func NewStroop(items []stroop.Item, cfg stroop.Config, onDone func([]stroop.Result) error) Stroop {
	score := func(it stroop.Item, key string, rt time.Duration) stroop.Result {
		n, _ := strconv.Atoi(key)
		return stroop.Score(it, n, rt, cfg.Window)
	}
	return Stroop{
		block:  newBlock(items, cfg.Window, cfg.Window, score),
		onDone: onDone,
		now:    time.Now,
	}
}

// Results returns the scored items so far.
func (m Stroop) Results() []stroop.Result { return m.block.results }

// Err returns the error from onDone.
func (m Stroop) Err() error { return m.err }

func (m Stroop) Init() tea.Cmd {
	return tea.Batch(func() tea.Msg { return tickMsg(m.now()) }, tickCmd())
}

func (m Stroop) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
		case "1", "2", "3", "4":
			if _, finished := m.block.respond(key, m.now()); finished {
				m.finish()
			}
		case "esc", "q":
			return m, backCmd
		}
	}
	return m, nil
}

func (m *Stroop) finish() {
	m.done = true
	if m.onDone != nil {
		m.err = m.onDone(m.block.results)
	}
}

func (m Stroop) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Counting Stroop") + "\n\n")

	if m.done {
		if m.err != nil {
			b.WriteString(errorStyle.Render("Saving results failed: "+m.err.Error()) + "\n")
		}
		s := stroop.Summarize(m.block.results)
		for _, k := range []stroop.Kind{stroop.Congruent, stroop.Incongruent, stroop.StarsArray} {
			fmt.Fprintf(&b, "%-12s %s\n", k, percent(s.Accuracy(k)))
		}
		b.WriteString("\n" + mutedStyle.Render("press any key"))
		return b.String()
	}

	it, ok := m.block.current()
	if !ok {
		b.WriteString(mutedStyle.Render("get ready...") + "\n")
		return b.String()
	}

	style := litNeutralStyle
	if it.ImageValence == trial.Negative {
		style = litNegativeStyle
	}
	label := "*"
	if it.Digit > 0 {
		label = strconv.Itoa(it.Digit)
	}
	cells := make([]string, stroop.Cells)
	for i := range cells {
		cells[i] = cellStyle.Render("")
	}
	for _, c := range it.Lit {
		cells[c] = style.Render(label)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...) + "\n")
	if it.Image != "" {
		b.WriteString(mutedStyle.Render("background: "+it.Image) + "\n")
	}
	b.WriteString("\nHow many cells are lit? " + labelStyle.Render("1-4") + "\n")
	return b.String()
}
