package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cogtask/internal/flanker"
	"cogtask/internal/proximity"
	"cogtask/internal/sequence"
	"cogtask/internal/session"
	"cogtask/internal/stroop"
	"cogtask/internal/trial"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestNBack(t *testing.T) (NBack, *session.Controller) {
	t.Helper()
	proto := session.TestProtocol()
	proto.WaitTime = time.Second
	proto.Intervals = []time.Duration{2 * time.Second}

	screen := &Screen{}
	ctrl, err := session.New("tui", "P01", proto,
		session.WithPresenter(screen), session.WithSource(sequence.NewSource(1)))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	m := NewNBack(context.Background(), ctrl, screen)
	return m, ctrl
}

func update(t *testing.T, m tea.Model, msg tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	return m.Update(msg)
}

func TestNBack_WaitThenTrial(t *testing.T) {
	m, ctrl := newTestNBack(t)
	m.now = func() time.Time { return t0.Add(1500 * time.Millisecond) }

	next, cmd := update(t, m, tickMsg(t0))
	if cmd == nil {
		t.Fatalf("expected another tick")
	}
	if !strings.Contains(next.View(), "Round 1 starts in") {
		t.Fatalf("expected countdown, got:\n%s", next.View())
	}

	next, _ = update(t, next, tickMsg(t0.Add(time.Second)))
	if ctrl.State() != session.StateRunning {
		t.Fatalf("state = %v, want running", ctrl.State())
	}
	view := next.View()
	if !strings.Contains(view, "trial 1/") {
		t.Fatalf("expected trial view, got:\n%s", view)
	}

	next, _ = update(t, next, tea.KeyMsg{Type: tea.KeySpace})
	if !next.(NBack).screen.pressedV {
		t.Fatalf("visual press not recorded")
	}
	next, _ = update(t, next, runes("z"))
	if !next.(NBack).screen.pressedA {
		t.Fatalf("audio press not recorded")
	}
}

func TestNBack_RunsToSummary(t *testing.T) {
	var m tea.Model
	nb, ctrl := newTestNBack(t)
	nb.now = func() time.Time { return t0 }
	m = nb

	now := t0
	for i := 0; i < 200 && ctrl.State() != session.StateDone; i++ {
		m, _ = update(t, m, tickMsg(now))
		now = now.Add(time.Second)
	}
	if ctrl.State() != session.StateDone {
		t.Fatalf("session did not finish")
	}
	if ctrl.Err() != nil {
		t.Fatalf("unexpected error: %v", ctrl.Err())
	}
	if !strings.Contains(m.View(), "Session complete") {
		t.Fatalf("expected summary, got:\n%s", m.View())
	}

	_, cmd := update(t, m, runes("x"))
	if cmd == nil {
		t.Fatalf("expected back command")
	}
	if _, ok := cmd().(BackMsg); !ok {
		t.Fatalf("expected BackMsg")
	}
}

func TestNBack_CtrlCAborts(t *testing.T) {
	m, ctrl := newTestNBack(t)
	m.now = func() time.Time { return t0 }
	next, _ := update(t, m, tickMsg(t0))

	_, cmd := update(t, next, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if !errors.Is(ctrl.Err(), ErrQuit) {
		t.Fatalf("Err() = %v, want ErrQuit", ctrl.Err())
	}
}

func TestScreen_Phases(t *testing.T) {
	s := &Screen{}
	s.RoundStarting(2, 3, t0)
	if s.phase != phaseWaiting || s.round != 2 || s.n != 3 {
		t.Fatalf("unexpected screen %+v", s)
	}
	s.pressedV = true
	s.Present(session.Presentation{VisualAsset: session.Asset{Name: "a", Valence: trial.Negative}})
	if s.phase != phaseTrial || s.pressedV {
		t.Fatalf("present must reset press marks")
	}
	s.Clear()
	if s.phase != phaseBlank {
		t.Fatalf("clear did not blank")
	}
	s.Resting(t0)
	if s.phase != phaseResting {
		t.Fatalf("not resting")
	}
}

func TestFlanker_Block(t *testing.T) {
	cfg := flanker.Config{Total: 2, Negative: 1, ResponseLimit: 2 * time.Second, InterTrial: time.Second}
	trials := []flanker.Trial{
		{Index: 0, Word: "痛苦", Negative: true, Color: flanker.Red},
		{Index: 1, Word: "桌子", Color: flanker.Green},
	}
	var got []flanker.Result
	var m tea.Model = NewFlanker(trials, cfg, func(r []flanker.Result) error {
		got = r
		return nil
	})

	m, _ = update(t, m, tickMsg(t0))
	if strings.Contains(m.View(), "痛苦") {
		t.Fatalf("word shown during the gap")
	}
	m, _ = update(t, m, tickMsg(t0.Add(time.Second)))
	if !strings.Contains(m.View(), "痛苦") {
		t.Fatalf("word not shown:\n%s", m.View())
	}

	f := m.(Flanker)
	f.now = func() time.Time { return t0.Add(1500 * time.Millisecond) }
	m, _ = update(t, f, runes("o"))

	// Second trial: gap from 1.5s to 2.5s, window to 4.5s, no response.
	m, _ = update(t, m, tickMsg(t0.Add(5*time.Second)))
	if got == nil {
		t.Fatalf("onDone not called")
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].Outcome != flanker.Correct || got[0].RT != 0.5 {
		t.Fatalf("first result %+v", got[0])
	}
	if got[1].Outcome != flanker.NoResponse || got[1].RT != -1 {
		t.Fatalf("second result %+v", got[1])
	}
	if !strings.Contains(m.View(), "correct 1") {
		t.Fatalf("summary missing:\n%s", m.View())
	}
}

func TestStroop_Block(t *testing.T) {
	cfg := stroop.Config{Window: time.Second}
	items := []stroop.Item{{Index: 0, Kind: stroop.Incongruent, Lit: []int{0, 2, 4}, Digit: 1}}
	var got []stroop.Result
	var m tea.Model = NewStroop(items, cfg, func(r []stroop.Result) error {
		got = r
		return nil
	})

	m, _ = update(t, m, tickMsg(t0))
	m, _ = update(t, m, tickMsg(t0.Add(time.Second)))
	s := m.(Stroop)
	s.now = func() time.Time { return t0.Add(1200 * time.Millisecond) }
	m, _ = update(t, s, runes("3"))

	if len(got) != 1 || !got[0].Correct || got[0].Reported != 3 {
		t.Fatalf("results %+v", got)
	}
	if !strings.Contains(m.View(), "Incongruent") {
		t.Fatalf("summary missing:\n%s", m.View())
	}
}

func TestBlock_Empty(t *testing.T) {
	b := newBlock[int, int](nil, time.Second, time.Second, func(int, string, time.Duration) int { return 0 })
	if !b.advance(t0) {
		t.Fatalf("empty block should finish at once")
	}
	if b.advance(t0) {
		t.Fatalf("finished block reports completion once")
	}
}

func testMenu(started *[]string) Menu {
	task := func(name string) Task {
		return Task{Name: name, Start: func() (tea.Model, error) {
			*started = append(*started, name)
			return NewStroop(nil, stroop.Config{Window: time.Second}, nil), nil
		}}
	}
	return NewMenu([]Task{task("N-Back"), task("Flanker"), task("Stroop")}, proximity.NewRegistry[string, int]())
}

func TestMenu_KeyboardFocus(t *testing.T) {
	var started []string
	var m tea.Model = testMenu(&started)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if m.(Menu).Focus() != 2 {
		t.Fatalf("focus = %d, want 2", m.(Menu).Focus())
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if m.(Menu).Focus() != 0 {
		t.Fatalf("focus should wrap, got %d", m.(Menu).Focus())
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(started) != 1 || started[0] != "N-Back" {
		t.Fatalf("started = %v", started)
	}
	if m.(Menu).Active() == nil {
		t.Fatalf("task not active")
	}

	m, _ = update(t, m, BackMsg{})
	if m.(Menu).Active() != nil {
		t.Fatalf("BackMsg should return to the menu")
	}
}

func TestMenu_MouseProximity(t *testing.T) {
	var started []string
	menu := testMenu(&started)
	var m tea.Model = menu

	x := menu.centers[2] - 1
	m, _ = update(t, m, tea.MouseMsg{X: x, Y: buttonRow, Action: tea.MouseActionMotion})
	if m.(Menu).Focus() != 2 {
		t.Fatalf("focus = %d, want 2", m.(Menu).Focus())
	}

	// Moving toward the first button hands focus over.
	m, _ = update(t, m, tea.MouseMsg{X: menu.centers[0], Y: buttonRow, Action: tea.MouseActionMotion})
	if m.(Menu).Focus() != 0 {
		t.Fatalf("focus = %d, want 0", m.(Menu).Focus())
	}

	m, _ = update(t, m, tea.MouseMsg{X: menu.centers[1], Y: buttonRow,
		Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if len(started) != 1 || started[0] != "Flanker" {
		t.Fatalf("started = %v", started)
	}
}

func TestMenu_StartError(t *testing.T) {
	m := NewMenu([]Task{{Name: "Broken", Start: func() (tea.Model, error) {
		return nil, errors.New("no words")
	}}}, nil)

	next, _ := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if next.(Menu).Active() != nil {
		t.Fatalf("failed task must not become active")
	}
	if !strings.Contains(next.View(), "no words") {
		t.Fatalf("error not shown:\n%s", next.View())
	}
}

func TestMenu_Quit(t *testing.T) {
	var started []string
	_, cmd := update(t, testMenu(&started), runes("q"))
	if cmd == nil {
		t.Fatalf("expected quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestNBack_AudioModeHidesGrid(t *testing.T) {
	proto := session.TestProtocol().ForMode(session.ModeAudio)
	proto.WaitTime = time.Second
	proto.Intervals = []time.Duration{2 * time.Second}

	screen := &Screen{}
	ctrl, err := session.New("tui", "P01", proto,
		session.WithPresenter(screen), session.WithSource(sequence.NewSource(1)))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	m := NewNBack(context.Background(), ctrl, screen)
	m.now = func() time.Time { return t0.Add(1500 * time.Millisecond) }

	next, _ := update(t, m, tickMsg(t0))
	view := next.View()
	if !strings.Contains(view, "Audio N-Back") {
		t.Fatalf("expected audio title, got:\n%s", view)
	}
	if strings.Contains(view, "square") {
		t.Fatalf("audio mode should not describe the grid:\n%s", view)
	}

	next, _ = update(t, next, tickMsg(t0.Add(time.Second)))
	view = next.View()
	if strings.Contains(view, "visual") {
		t.Fatalf("audio mode shows a visual mark:\n%s", view)
	}
	if !strings.Contains(view, "audio") {
		t.Fatalf("audio mark missing:\n%s", view)
	}

	next, _ = update(t, next, tea.KeyMsg{Type: tea.KeySpace})
	if next.(NBack).screen.pressedV {
		t.Fatalf("space recorded in audio mode")
	}
}
