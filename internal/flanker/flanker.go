// Package flanker implements the emotional flanker task.
//
// Each trial shows one word three times in a row, all in red or green.
// The participant presses O for red and P for green; the emotional
// content of the word is the distractor.
package flanker

import (
	"errors"
	"fmt"
	"time"

	"cogtask/internal/sequence"
)

// Color is the ink colour of a trial.
type Color int

const (
	Red Color = iota
	Green
)

func (c Color) String() string {
	if c == Green {
		return "Green"
	}
	return "Red"
}

// Key is a response key.
type Key string

const (
	KeyNone Key = ""
	KeyO    Key = "O"
	KeyP    Key = "P"
)

// CorrectKey returns the key expected for c.
func (c Color) CorrectKey() Key {
	if c == Green {
		return KeyP
	}
	return KeyO
}

// Config controls trial construction and timing.
type Config struct {
	Total    int `json:"total" yaml:"total" toml:"total"`
	Negative int `json:"negative" yaml:"negative" toml:"negative"`

	ResponseLimit time.Duration `json:"response_limit" yaml:"response_limit" toml:"response_limit"`
	InterTrial    time.Duration `json:"inter_trial" yaml:"inter_trial" toml:"inter_trial"`
}

// DefaultConfig returns the standard 20 trial block, half negative.
func DefaultConfig() Config {
	return Config{
		Total:         20,
		Negative:      10,
		ResponseLimit: 2 * time.Second,
		InterTrial:    time.Second,
	}
}

// Validate checks cfg against the available words.
func (c Config) Validate(words WordList) error {
	switch {
	case c.Total < 1:
		return fmt.Errorf("total must be >= 1, got %d", c.Total)
	case c.Negative < 0 || c.Negative > c.Total:
		return fmt.Errorf("negative count %d outside [0,%d]", c.Negative, c.Total)
	case c.ResponseLimit <= 0:
		return errors.New("response limit must be positive")
	case c.Negative > 0 && len(words.Negative) == 0:
		return errors.New("no negative words")
	case c.Negative < c.Total && len(words.Neutral) == 0:
		return errors.New("no neutral words")
	}
	return nil
}

// Trial is one flanker presentation.
type Trial struct {
	Index    int    `json:"index"`
	Word     string `json:"word"`
	Negative bool   `json:"negative"`
	Color    Color  `json:"color"`
}

// Build draws cfg.Negative negative words and fills the rest with neutral
// ones, shuffles them and colours each trial red or green with equal
// probability. Words are drawn with replacement.
func Build(words WordList, cfg Config, src sequence.Source) ([]Trial, error) {
	if err := cfg.Validate(words); err != nil {
		return nil, err
	}

	trials := make([]Trial, cfg.Total)
	for i := range trials {
		if i < cfg.Negative {
			trials[i] = Trial{Word: words.Negative[src.IntRange(0, len(words.Negative))], Negative: true}
		} else {
			trials[i] = Trial{Word: words.Neutral[src.IntRange(0, len(words.Neutral))]}
		}
	}
	sequence.Shuffle(src, trials)

	for i := range trials {
		trials[i].Index = i
		trials[i].Color = Color(src.IntRange(0, 2))
	}
	return trials, nil
}

// Outcome classifies a flanker response.
type Outcome int

const (
	NoResponse Outcome = iota
	Correct
	Incorrect
)

func (o Outcome) String() string {
	switch o {
	case Correct:
		return "Correct"
	case Incorrect:
		return "Incorrect"
	default:
		return "NoResponse"
	}
}

// Result is a scored trial.
type Result struct {
	Trial
	Response Key     `json:"response"`
	Outcome  Outcome `json:"outcome"`
	// RT is the reaction time in seconds, -1 without a response.
	RT float64 `json:"rt"`
}

// Score classifies key pressed rt after onset. Only O and P count as
// responses, and a press at or after limit is no response.
func Score(t Trial, key Key, rt, limit time.Duration) Result {
	r := Result{Trial: t, Outcome: NoResponse, RT: -1}
	if (key != KeyO && key != KeyP) || rt < 0 || rt >= limit {
		return r
	}
	r.Response = key
	r.RT = rt.Seconds()
	if key == t.Color.CorrectKey() {
		r.Outcome = Correct
	} else {
		r.Outcome = Incorrect
	}
	return r
}

// Stats summarises a block.
type Stats struct {
	Correct, Incorrect, NoResponse int
	// MeanRT is over correct responses, split by valence.
	MeanRTNegative, MeanRTNeutral float64
}

// Summarize tallies results.
func Summarize(results []Result) Stats {
	var s Stats
	var negSum, neuSum float64
	var negN, neuN int
	for _, r := range results {
		switch r.Outcome {
		case Correct:
			s.Correct++
			if r.Negative {
				negSum += r.RT
				negN++
			} else {
				neuSum += r.RT
				neuN++
			}
		case Incorrect:
			s.Incorrect++
		default:
			s.NoResponse++
		}
	}
	if negN > 0 {
		s.MeanRTNegative = negSum / float64(negN)
	}
	if neuN > 0 {
		s.MeanRTNeutral = neuSum / float64(neuN)
	}
	return s
}
