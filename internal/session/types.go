package session

import (
	"context"
	"time"

	"cogtask/internal/sequence"
	"cogtask/internal/trial"
)

// State is a controller phase.
type State int

const (
	StateSetup State = iota
	StateWaiting
	StateRunning
	StateResting
	StateSummary
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateResting:
		return "resting"
	case StateSummary:
		return "summary"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Presentation is what the participant sees and hears during one trial.
type Presentation struct {
	Round int
	N     int
	Trial int
	Total int

	Slot sequence.Slot

	// VisualCell is the lit cell of the 3x3 grid.
	VisualCell  int
	VisualAsset Asset
	AudioAsset  Asset

	Onset  time.Time
	Window time.Duration
}

// Presenter renders controller output. Calls happen on the goroutine that
// drives Tick.
type Presenter interface {
	RoundStarting(round, n int, startsAt time.Time)
	Present(p Presentation)
	Clear()
	Resting(until time.Time)
	Finished(s Summary)
}

// NopPresenter discards everything.
type NopPresenter struct{}

func (NopPresenter) RoundStarting(int, int, time.Time) {}
func (NopPresenter) Present(Presentation)              {}
func (NopPresenter) Clear()                            {}
func (NopPresenter) Resting(time.Time)                 {}
func (NopPresenter) Finished(Summary)                  {}

// RoundInfo identifies the round a trial belongs to.
type RoundInfo struct {
	SessionID string
	Round     int
	N         int
}

// Sink receives results as they are produced. Returning an error aborts
// the session.
type Sink interface {
	TrialCompleted(ctx context.Context, info RoundInfo, r trial.Result) error
	RoundCompleted(ctx context.Context, info RoundInfo, r RoundSummary) error
	SessionCompleted(ctx context.Context, s Summary) error
}

// GenerationObserver is told about every round sequence generation. It is
// called with the controller locked and must not call back into it.
type GenerationObserver interface {
	Generated(n int, elapsed time.Duration, err error)
}

// RoundSummary aggregates one finished round.
type RoundSummary struct {
	Round  int         `json:"round"`
	N      int         `json:"n"`
	NextN  int         `json:"next_n"`
	Trials int         `json:"trials"`
	Visual trial.Stats `json:"visual"`
	Audio  trial.Stats `json:"audio"`

	VisualNegative int `json:"visual_negative"`
	AudioNegative  int `json:"audio_negative"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Summary describes a finished session.
type Summary struct {
	SessionID   string         `json:"session_id"`
	Participant string         `json:"participant"`
	Mode        Mode           `json:"mode"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
	FinalN      int            `json:"final_n"`
	Rounds      []RoundSummary `json:"rounds"`
}
