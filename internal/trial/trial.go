// Package trial classifies participant responses to n-back trials.
//
// A trial presents one sequence slot, opens a bounded response window and
// records at most one response per modality. Closing the window yields a
// Result row with the signal-detection outcome and reaction time of each
// modality.
package trial

import (
	"fmt"
	"time"

	"cogtask/internal/sequence"
)

// Modality is a stimulus channel.
type Modality int

const (
	Visual Modality = iota
	Audio
)

func (m Modality) String() string {
	switch m {
	case Visual:
		return "visual"
	case Audio:
		return "audio"
	default:
		return fmt.Sprintf("modality(%d)", int(m))
	}
}

// ParseModality is the inverse of Modality.String.
func ParseModality(s string) (Modality, error) {
	switch s {
	case "visual":
		return Visual, nil
	case "audio":
		return Audio, nil
	default:
		return 0, fmt.Errorf("unknown modality %q", s)
	}
}

// Outcome is the signal-detection class of one modality in one trial.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	Hit
	Miss
	FalseAlarm
	CorrectRejection
)

// String returns the name written to result exports.
func (o Outcome) String() string {
	switch o {
	case Hit:
		return "Hit"
	case Miss:
		return "Miss"
	case FalseAlarm:
		return "FalseAlarm"
	case CorrectRejection:
		return "CorrectRejection"
	default:
		return ""
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "Hit":
		return Hit, nil
	case "Miss":
		return Miss, nil
	case "FalseAlarm":
		return FalseAlarm, nil
	case "CorrectRejection":
		return CorrectRejection, nil
	default:
		return OutcomeUnknown, fmt.Errorf("unknown outcome %q", s)
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*o = OutcomeUnknown
		return nil
	}
	v, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Correct reports whether the participant behaved correctly.
func (o Outcome) Correct() bool {
	return o == Hit || o == CorrectRejection
}

// Classify maps a target flag and a response to an outcome.
func Classify(isTarget, responded bool) Outcome {
	switch {
	case isTarget && responded:
		return Hit
	case isTarget:
		return Miss
	case responded:
		return FalseAlarm
	default:
		return CorrectRejection
	}
}

// Valence is the emotional category of a presented stimulus. The values
// are the labels used in the result files.
type Valence string

const (
	Negative Valence = "負面"
	Neutral  Valence = "普通"
)

// NoResponse is the reaction time recorded when nothing was pressed.
const NoResponse = -1.0

// Result is one recorded trial.
type Result struct {
	Round          int     `json:"round"`
	TrialIndex     int     `json:"trial_index"`
	VisualIsTarget bool    `json:"visual_is_target"`
	AudioIsTarget  bool    `json:"audio_is_target"`
	VisualCorrect  bool    `json:"visual_correct"`
	AudioCorrect   bool    `json:"audio_correct"`
	VisualRT       float64 `json:"visual_rt"`
	AudioRT        float64 `json:"audio_rt"`
	VisualOutcome  Outcome `json:"visual_outcome"`
	AudioOutcome   Outcome `json:"audio_outcome"`
	VisualValence  Valence `json:"visual_valence"`
	AudioValence   Valence `json:"audio_valence"`
}

// Outcome returns the outcome for modality m.
func (r Result) Outcome(m Modality) Outcome {
	if m == Audio {
		return r.AudioOutcome
	}
	return r.VisualOutcome
}

// RT returns the reaction time in seconds for modality m.
func (r Result) RT(m Modality) float64 {
	if m == Audio {
		return r.AudioRT
	}
	return r.VisualRT
}

// Window is the response window of one trial.
type Window struct {
	slot     sequence.Slot
	onset    time.Time
	interval time.Duration

	responded [2]bool
	rt        [2]time.Duration
	closed    bool
}

// Open starts the response window for slot at onset.
func Open(slot sequence.Slot, onset time.Time, interval time.Duration) *Window {
	return &Window{slot: slot, onset: onset, interval: interval}
}

// Slot returns the slot being presented.
func (w *Window) Slot() sequence.Slot {
	return w.slot
}

// Onset returns when the stimulus was presented.
func (w *Window) Onset() time.Time {
	return w.onset
}

// Deadline returns the first instant at which responses are ignored.
func (w *Window) Deadline() time.Time {
	return w.onset.Add(w.interval)
}

// Expired reports whether the window has run out at now.
func (w *Window) Expired(now time.Time) bool {
	return !now.Before(w.Deadline())
}

// Respond records a response for m at time at. Only the first response
// per modality inside [onset, deadline) counts; it reports whether the
// response was recorded.
func (w *Window) Respond(m Modality, at time.Time) bool {
	if w.closed || m < Visual || m > Audio {
		return false
	}
	if w.responded[m] {
		return false
	}
	d := at.Sub(w.onset)
	if d < 0 || d >= w.interval {
		return false
	}
	w.responded[m] = true
	w.rt[m] = d
	return true
}

// Responded reports whether m has a recorded response.
func (w *Window) Responded(m Modality) bool {
	return m >= Visual && m <= Audio && w.responded[m]
}

// Close classifies the recorded responses. Later Respond calls are ignored.
func (w *Window) Close(visual, audio Valence) Result {
	w.closed = true

	r := Result{
		TrialIndex:     w.slot.Index,
		VisualIsTarget: w.slot.VisualIsTarget,
		AudioIsTarget:  w.slot.AudioIsTarget,
		VisualRT:       NoResponse,
		AudioRT:        NoResponse,
		VisualValence:  visual,
		AudioValence:   audio,
	}
	if w.responded[Visual] {
		r.VisualRT = w.rt[Visual].Seconds()
	}
	if w.responded[Audio] {
		r.AudioRT = w.rt[Audio].Seconds()
	}

	r.VisualOutcome = Classify(w.slot.VisualIsTarget, w.responded[Visual])
	r.AudioOutcome = Classify(w.slot.AudioIsTarget, w.responded[Audio])
	r.VisualCorrect = r.VisualOutcome.Correct()
	r.AudioCorrect = r.AudioOutcome.Correct()
	return r
}
