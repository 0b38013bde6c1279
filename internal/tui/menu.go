package tui

import (
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cogtask/internal/proximity"
)

// Task is a menu entry. Start builds the task screen.
type Task struct {
	Name  string
	Start func() (tea.Model, error)
}

const (
	pointerMouse = "mouse"

	// buttonRow is the view line holding the button centres.
	buttonRow = 3
)

// Menu lets the participant pick a task with the arrow keys or the mouse.
// The button nearest the pointer takes focus, arbitrated by a proximity
// registry.
type Menu struct {
	tasks    []Task
	registry *proximity.Registry[string, int]
	focus    int
	centers  []int
	active   tea.Model
	err      error
	quitting bool
}

// NewMenu returns a menu over tasks.
func NewMenu(tasks []Task, registry *proximity.Registry[string, int]) Menu {
	if registry == nil {
		registry = proximity.NewRegistry[string, int]()
	}
	m := Menu{tasks: tasks, registry: registry}
	m.centers = m.layout()
	return m
}

// Focus returns the focused task index.
func (m Menu) Focus() int { return m.focus }

// Active returns the running task screen, if any.
func (m Menu) Active() tea.Model { return m.active }

func (m Menu) Init() tea.Cmd { return nil }

func (m Menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.active != nil {
		if _, ok := msg.(BackMsg); ok {
			m.active = nil
			return m, nil
		}
		var cmd tea.Cmd
		m.active, cmd = m.active.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "left", "h", "shift+tab":
			m.setFocus((m.focus + len(m.tasks) - 1) % len(m.tasks))
		case "right", "l", "tab":
			m.setFocus((m.focus + 1) % len(m.tasks))
		case "enter", " ":
			return m.start(m.focus)
		}

	case tea.MouseMsg:
		m.point(msg.X, msg.Y)
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			if b, ok := m.registry.Closest(pointerMouse); ok {
				return m.start(b)
			}
		}
	}
	return m, nil
}

// setFocus moves keyboard focus and drops the pointer's claim.
func (m *Menu) setFocus(i int) {
	m.focus = i
	if b, ok := m.registry.Closest(pointerMouse); ok {
		m.registry.Unregister(pointerMouse, b)
	}
}

// point reports the pointer distance to every button, current holder
// first so a moving pointer hands focus to the nearest one.
func (m *Menu) point(x, y int) {
	order := make([]int, 0, len(m.tasks))
	if b, ok := m.registry.Closest(pointerMouse); ok {
		order = append(order, b)
	}
	for i := range m.tasks {
		if len(order) == 0 || i != order[0] {
			order = append(order, i)
		}
	}
	for _, i := range order {
		dx := float64(x - m.centers[i])
		dy := float64(y-buttonRow) * 2
		m.registry.Report(pointerMouse, i, math.Hypot(dx, dy))
	}
	if b, ok := m.registry.Closest(pointerMouse); ok {
		m.focus = b
	}
}

func (m Menu) start(i int) (tea.Model, tea.Cmd) {
	if i < 0 || i >= len(m.tasks) {
		return m, nil
	}
	model, err := m.tasks[i].Start()
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.active = model
	m.registry.Unregister(pointerMouse, i)
	return m, model.Init()
}

func (m Menu) buttons() []string {
	out := make([]string, len(m.tasks))
	for i, t := range m.tasks {
		style := buttonStyle
		if i == m.focus {
			style = focusedButtonStyle
		}
		out[i] = style.Render(t.Name)
	}
	return out
}

// layout returns the x coordinate of each button centre.
func (m Menu) layout() []int {
	centers := make([]int, len(m.tasks))
	x := 0
	for i, b := range m.buttons() {
		w := lipgloss.Width(b)
		centers[i] = x + w/2
		x += w + 1
	}
	return centers
}

func (m Menu) View() string {
	if m.active != nil {
		return m.active.View()
	}
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("cogtask") + "\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, withGaps(m.buttons())...) + "\n\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n\n")
	}
	b.WriteString(mutedStyle.Render("←/→ choose · enter start · q quit"))
	return b.String()
}

func withGaps(buttons []string) []string {
	parts := make([]string, 0, 2*len(buttons))
	for i, btn := range buttons {
		if i > 0 {
			parts = append(parts, " ")
		}
		parts = append(parts, btn)
	}
	return parts
}

// Run starts a full-screen program with mouse motion reporting.
func Run(model tea.Model) (tea.Model, error) {
	return tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseAllMotion()).Run()
}
