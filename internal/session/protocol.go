// Package session runs adaptive multi-round n-back sessions.
//
// A Controller is an explicit state machine advanced by Tick calls from an
// external clock:
//
//	Setup -> Waiting -> Running -> Resting -> Waiting ... -> Summary -> Done
//
// Every round generates a fresh sequence for the current n, presents its
// slots one at a time through a Presenter, classifies responses and hands
// each result to the registered Sinks. After each round a staircase moves
// n up or down depending on mean accuracy.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cogtask/internal/sequence"
	"cogtask/internal/trial"
)

// Mode selects which modalities a session presents.
type Mode int

const (
	// ModeDual presents a grid square and a sound on every trial.
	ModeDual Mode = iota
	// ModeVisual is the colour-change task: grid squares only.
	ModeVisual
	// ModeAudio is the audio task: sounds only.
	ModeAudio
)

func (m Mode) String() string {
	switch m {
	case ModeVisual:
		return "visual"
	case ModeAudio:
		return "audio"
	default:
		return "dual"
	}
}

// ParseMode accepts "dual", a modality name, or "colour"/"color" for the
// visual task.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(s)
	switch s {
	case "", "dual":
		return ModeDual, nil
	case "colour", "color":
		return ModeVisual, nil
	}
	m, err := trial.ParseModality(s)
	if err != nil {
		return ModeDual, fmt.Errorf("unknown mode %q", s)
	}
	if m == trial.Audio {
		return ModeAudio, nil
	}
	return ModeVisual, nil
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Presents reports whether the mode shows stimuli of modality t.
func (m Mode) Presents(t trial.Modality) bool {
	switch m {
	case ModeVisual:
		return t == trial.Visual
	case ModeAudio:
		return t == trial.Audio
	}
	return true
}

// Protocol is the fixed plan of a session.
type Protocol struct {
	Mode Mode

	Rounds     int
	BaseTrials int

	StartN int
	MinN   int
	MaxN   int

	Targets sequence.Quota
	Pool    sequence.PoolSize

	// Intervals lists the response window lengths; each trial uses one
	// drawn uniformly.
	Intervals []time.Duration

	WaitTime time.Duration
	RestTime time.Duration

	// Threshold is the mean accuracy at which n goes up.
	Threshold float64

	// NegativeVisual and NegativeAudio cap negative stimuli shown on
	// target chains over the whole session.
	NegativeVisual int
	NegativeAudio  int
}

// DefaultProtocol returns the standard three-round dual n-back plan.
func DefaultProtocol() Protocol {
	return Protocol{
		Rounds:         3,
		BaseTrials:     20,
		StartN:         2,
		MinN:           1,
		MaxN:           3,
		Targets:        sequence.Quota{Both: 2, VisualOnly: 5, AudioOnly: 5},
		Pool:           sequence.PoolSize{Visual: 9, Audio: 12},
		Intervals:      []time.Duration{2500 * time.Millisecond, 3 * time.Second},
		WaitTime:       10 * time.Second,
		RestTime:       120 * time.Second,
		Threshold:      0.5,
		NegativeVisual: 20,
		NegativeAudio:  20,
	}
}

// ForMode returns p playing mode m. A single mode keeps that modality's
// pool and uses its both and single quotas together as the forced match
// count. The other modality is dropped.
func (p Protocol) ForMode(m Mode) Protocol {
	p.Mode = m
	switch m {
	case ModeVisual:
		p.Targets = sequence.Quota{VisualOnly: p.Targets.Both + p.Targets.VisualOnly}
		p.Pool.Audio = 0
		p.NegativeAudio = 0
	case ModeAudio:
		p.Targets = sequence.Quota{AudioOnly: p.Targets.Both + p.Targets.AudioOnly}
		p.Pool.Visual = 0
		p.NegativeVisual = 0
	}
	return p
}

// TestProtocol is DefaultProtocol shortened to a single round.
func TestProtocol() Protocol {
	p := DefaultProtocol()
	p.Rounds = 1
	return p
}

// Validate checks the protocol shape and that every reachable n has a
// feasible quota.
func (p Protocol) Validate() error {
	var errs []error
	if p.Rounds < 1 {
		errs = append(errs, fmt.Errorf("rounds must be >= 1, got %d", p.Rounds))
	}
	if p.BaseTrials < 1 {
		errs = append(errs, fmt.Errorf("base trials must be >= 1, got %d", p.BaseTrials))
	}
	if p.MinN < 1 || p.MaxN < p.MinN {
		errs = append(errs, fmt.Errorf("n range [%d,%d] invalid", p.MinN, p.MaxN))
	}
	if p.StartN < p.MinN || p.StartN > p.MaxN {
		errs = append(errs, fmt.Errorf("start n %d outside [%d,%d]", p.StartN, p.MinN, p.MaxN))
	}
	if len(p.Intervals) == 0 {
		errs = append(errs, errors.New("at least one interval is required"))
	}
	for _, d := range p.Intervals {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("interval %s must be positive", d))
			break
		}
	}
	if p.WaitTime < 0 || p.RestTime < 0 {
		errs = append(errs, errors.New("wait and rest times must not be negative"))
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %v outside [0,1]", p.Threshold))
	}
	switch p.Mode {
	case ModeDual:
	case ModeVisual:
		if p.Pool.Visual < 1 {
			errs = append(errs, errors.New("visual mode needs a visual pool"))
		}
	case ModeAudio:
		if p.Pool.Audio < 1 {
			errs = append(errs, errors.New("audio mode needs an audio pool"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mode %d", int(p.Mode)))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for n := p.MinN; n <= p.MaxN; n++ {
		if err := p.RoundConfig(n).Check(); err != nil {
			return fmt.Errorf("n=%d: %w", n, err)
		}
	}
	return nil
}

// RoundConfig returns the sequence config of a round played at n.
func (p Protocol) RoundConfig(n int) sequence.Config {
	total := p.BaseTrials + n
	switch p.Mode {
	case ModeVisual:
		return sequence.SingleConfig(sequence.StreamVisual, n, total, p.Targets.VisualOnly, p.Pool.Visual)
	case ModeAudio:
		return sequence.SingleConfig(sequence.StreamAudio, n, total, p.Targets.AudioOnly, p.Pool.Audio)
	}
	return sequence.Config{
		N:           n,
		TotalTrials: total,
		Targets:     p.Targets,
		Pool:        p.Pool,
	}
}

// generate builds the sequence of a round played at n.
func (p Protocol) generate(n int, src sequence.Source, lim sequence.Limits) (sequence.Sequence, error) {
	total := p.BaseTrials + n
	switch p.Mode {
	case ModeVisual:
		return sequence.SingleWithLimits(sequence.StreamVisual, n, total, p.Targets.VisualOnly, p.Pool.Visual, src, lim)
	case ModeAudio:
		return sequence.SingleWithLimits(sequence.StreamAudio, n, total, p.Targets.AudioOnly, p.Pool.Audio, src, lim)
	}
	return sequence.GenerateWithLimits(p.RoundConfig(n), src, lim)
}

// Accuracy is the value the staircase compares to the threshold: the mean
// of both modalities in dual mode, else the accuracy of the one played.
func (p Protocol) Accuracy(visualAcc, audioAcc float64) float64 {
	switch p.Mode {
	case ModeVisual:
		return visualAcc
	case ModeAudio:
		return audioAcc
	}
	return (visualAcc + audioAcc) / 2
}

// NextN applies the staircase: accuracy at or above the threshold raises
// n, anything else lowers it, clamped to [MinN, MaxN].
func (p Protocol) NextN(n int, visualAcc, audioAcc float64) int {
	if p.Accuracy(visualAcc, audioAcc) >= p.Threshold {
		n++
	} else {
		n--
	}
	return min(max(n, p.MinN), p.MaxN)
}
