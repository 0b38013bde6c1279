// Package stroop implements the emotional counting Stroop task.
//
// Each item lights between one and four cells of a five-cell panel over an
// emotional background image. The participant reports how many cells are
// lit. Congruent items print the count itself in every cell, incongruent
// items print an unrelated digit and star items show stars.
package stroop

import (
	"fmt"
	"slices"
	"time"

	"cogtask/internal/sequence"
	"cogtask/internal/trial"
)

// Cells is the number of positions on the panel.
const Cells = 5

// Kind is the item type.
type Kind int

const (
	Congruent Kind = iota
	Incongruent
	StarsArray
)

func (k Kind) String() string {
	switch k {
	case Congruent:
		return "Congruent"
	case Incongruent:
		return "Incongruent"
	case StarsArray:
		return "StarsArray"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// countRange is the half-open range of lit cells per kind.
func (k Kind) countRange() (lo, hi int) {
	if k == Congruent {
		return 1, 4
	}
	return 1, 5
}

// Item is one constructed trial.
type Item struct {
	Index int  `json:"index"`
	Kind  Kind `json:"kind"`

	// Lit holds the lit cell positions in ascending order.
	Lit []int `json:"lit"`

	// Digit is the number printed in each lit cell, 0 for stars.
	Digit int `json:"digit"`

	Image        string        `json:"image"`
	ImageValence trial.Valence `json:"image_valence"`
}

// CorrectCount is the answer expected for the item.
func (it Item) CorrectCount() int {
	return len(it.Lit)
}

// Counts is the number of items per kind.
type Counts struct {
	Congruent   int `json:"congruent" yaml:"congruent" toml:"congruent"`
	Incongruent int `json:"incongruent" yaml:"incongruent" toml:"incongruent"`
	Stars       int `json:"stars" yaml:"stars" toml:"stars"`
}

// Total returns the number of items.
func (c Counts) Total() int {
	return c.Congruent + c.Incongruent + c.Stars
}

// Config controls item construction.
type Config struct {
	Counts Counts `json:"counts" yaml:"counts" toml:"counts"`

	// NegativeAppearances is how many items get a negative background.
	NegativeAppearances int `json:"negative_appearances" yaml:"negative_appearances" toml:"negative_appearances"`

	// Window is both the response window and the gap before each item.
	Window time.Duration `json:"window" yaml:"window" toml:"window"`

	NegativeImages []string `json:"negative_images" yaml:"negative_images" toml:"negative_images"`
	NeutralImages  []string `json:"neutral_images" yaml:"neutral_images" toml:"neutral_images"`
}

// DefaultConfig returns five items of each kind.
func DefaultConfig() Config {
	return Config{
		Counts:              Counts{Congruent: 5, Incongruent: 5, Stars: 5},
		NegativeAppearances: 5,
		Window:              2 * time.Second,
		NegativeImages:      []string{"stroop_negative_01", "stroop_negative_02", "stroop_negative_03"},
		NeutralImages:       []string{"stroop_neutral_01", "stroop_neutral_02", "stroop_neutral_03"},
	}
}

// Validate checks the counts and window.
func (c Config) Validate() error {
	switch {
	case c.Counts.Congruent < 0 || c.Counts.Incongruent < 0 || c.Counts.Stars < 0:
		return fmt.Errorf("item counts must not be negative")
	case c.Counts.Total() == 0:
		return fmt.Errorf("at least one item is required")
	case c.NegativeAppearances < 0 || c.NegativeAppearances > c.Counts.Total():
		return fmt.Errorf("negative appearances %d outside [0,%d]", c.NegativeAppearances, c.Counts.Total())
	case c.Window <= 0:
		return fmt.Errorf("window must be positive")
	}
	return nil
}

// Build constructs congruent, then incongruent, then star items. Negative
// backgrounds go to NegativeAppearances items drawn at random.
func Build(cfg Config, src sequence.Source) ([]Item, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	items := make([]Item, 0, cfg.Counts.Total())
	add := func(k Kind, n int) {
		for range n {
			items = append(items, newItem(k, len(items), src))
		}
	}
	add(Congruent, cfg.Counts.Congruent)
	add(Incongruent, cfg.Counts.Incongruent)
	add(StarsArray, cfg.Counts.Stars)

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sequence.Shuffle(src, order)
	negative := make(map[int]bool, cfg.NegativeAppearances)
	for _, i := range order[:cfg.NegativeAppearances] {
		negative[i] = true
	}

	for i := range items {
		pool, v := cfg.NeutralImages, trial.Neutral
		if negative[i] {
			pool, v = cfg.NegativeImages, trial.Negative
		}
		items[i].ImageValence = v
		if len(pool) > 0 {
			items[i].Image = pool[src.IntRange(0, len(pool))]
		}
	}
	return items, nil
}

func newItem(k Kind, index int, src sequence.Source) Item {
	lo, hi := k.countRange()
	count := src.IntRange(lo, hi)

	cells := make([]int, Cells)
	for i := range cells {
		cells[i] = i
	}
	sequence.Shuffle(src, cells)
	lit := slices.Clone(cells[:count])
	slices.Sort(lit)

	it := Item{Index: index, Kind: k, Lit: lit}
	switch k {
	case Congruent:
		it.Digit = count
	case Incongruent:
		it.Digit = src.IntRange(1, 5)
	}
	return it
}

// Result is a scored item.
type Result struct {
	Item
	// Reported is the count given, 0 without a response.
	Reported int  `json:"reported"`
	Correct  bool `json:"correct"`
	// RT is in seconds. Without a response it equals the window.
	RT float64 `json:"rt"`
}

// Score checks a reported count given rt after onset. A zero report, or
// one arriving at or after the window, counts as no response.
func Score(it Item, reported int, rt, window time.Duration) Result {
	if reported <= 0 || rt < 0 || rt >= window {
		return Result{Item: it, RT: window.Seconds()}
	}
	return Result{
		Item:     it,
		Reported: reported,
		Correct:  reported == it.CorrectCount(),
		RT:       rt.Seconds(),
	}
}

// Stats tallies results by kind.
type Stats struct {
	Items   map[Kind]int
	Correct map[Kind]int
}

// Accuracy returns the share of correct items of kind k.
func (s Stats) Accuracy(k Kind) float64 {
	if s.Items[k] == 0 {
		return 0
	}
	return float64(s.Correct[k]) / float64(s.Items[k])
}

// Summarize tallies results.
func Summarize(results []Result) Stats {
	s := Stats{Items: map[Kind]int{}, Correct: map[Kind]int{}}
	for _, r := range results {
		s.Items[r.Kind]++
		if r.Correct {
			s.Correct[r.Kind]++
		}
	}
	return s
}
