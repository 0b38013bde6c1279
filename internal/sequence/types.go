// Package sequence generates n-back trial sequences.
//
// A sequence is a fixed row of trial slots. Each slot carries a stimulus
// identity per modality (visual grid cell, audio clip) and a flag telling
// whether that identity must repeat the one presented exactly N slots
// earlier. Generation places the requested number of target slots, forces
// every target to copy its back-reference and repairs every accidental
// match among the remaining filler slots.
//
// The generator is synchronous and keeps no state between calls; all
// randomness comes from the Source passed in, so a fixed seed reproduces
// the same sequence.
package sequence

import (
	"fmt"
	"math/rand"
)

// Quota is the exact number of target slots of each kind to place among
// the eligible slots [N, TotalTrials).
type Quota struct {
	VisualOnly int `json:"visual_only" yaml:"visual_only" toml:"visual_only"`
	AudioOnly  int `json:"audio_only" yaml:"audio_only" toml:"audio_only"`
	Both       int `json:"both" yaml:"both" toml:"both"`
}

// Total returns the number of slots the quota occupies.
func (q Quota) Total() int {
	return q.VisualOnly + q.AudioOnly + q.Both
}

// PoolSize is the number of distinct stimulus identities per modality.
// A pool size of zero disables the modality: its ids stay 0 and it may
// not receive targets.
type PoolSize struct {
	Visual int `json:"visual" yaml:"visual" toml:"visual"`
	Audio  int `json:"audio" yaml:"audio" toml:"audio"`
}

// Config describes one round's sequence.
type Config struct {
	// N is the back-reference distance.
	N int `json:"n" yaml:"n" toml:"n"`

	// TotalTrials is the number of slots, usually base trials + N since
	// the first N slots cannot be targets.
	TotalTrials int `json:"total_trials" yaml:"total_trials" toml:"total_trials"`

	Targets Quota    `json:"targets" yaml:"targets" toml:"targets"`
	Pool    PoolSize `json:"pool" yaml:"pool" toml:"pool"`
}

// Eligible returns the number of slots that may hold a target.
func (c Config) Eligible() int {
	if c.TotalTrials <= c.N {
		return 0
	}
	return c.TotalTrials - c.N
}

// Slot is one trial position in a generated sequence.
type Slot struct {
	Index            int  `json:"index"`
	VisualIsTarget   bool `json:"visual_is_target"`
	AudioIsTarget    bool `json:"audio_is_target"`
	VisualStimulusID int  `json:"visual_stimulus_id"`
	AudioStimulusID  int  `json:"audio_stimulus_id"`
}

// Kind reports which target role the slot plays.
func (s Slot) Kind() Kind {
	switch {
	case s.VisualIsTarget && s.AudioIsTarget:
		return KindBoth
	case s.VisualIsTarget:
		return KindVisual
	case s.AudioIsTarget:
		return KindAudio
	default:
		return KindFiller
	}
}

// Kind is the target role of a slot.
type Kind int

const (
	KindFiller Kind = iota
	KindVisual
	KindAudio
	KindBoth
)

func (k Kind) String() string {
	switch k {
	case KindVisual:
		return "Visual"
	case KindAudio:
		return "Audio"
	case KindBoth:
		return "Both"
	default:
		return "None"
	}
}

// Sequence is an ordered, validated run of slots.
type Sequence []Slot

// Counts tallies the target kinds present in the sequence.
func (s Sequence) Counts() Quota {
	var q Quota
	for _, slot := range s {
		switch slot.Kind() {
		case KindBoth:
			q.Both++
		case KindVisual:
			q.VisualOnly++
		case KindAudio:
			q.AudioOnly++
		}
	}
	return q
}

// VisualIDs returns the visual stimulus ids in slot order.
func (s Sequence) VisualIDs() []int {
	ids := make([]int, len(s))
	for i, slot := range s {
		ids[i] = slot.VisualStimulusID
	}
	return ids
}

// AudioIDs returns the audio stimulus ids in slot order.
func (s Sequence) AudioIDs() []int {
	ids := make([]int, len(s))
	for i, slot := range s {
		ids[i] = slot.AudioStimulusID
	}
	return ids
}

// IsChainMember reports whether slot i takes part in a visual or audio
// back-reference chain, either as a target or as the source of a target
// N slots later.
func (s Sequence) IsChainMember(i, n int, visual bool) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	target := func(j int) bool {
		if visual {
			return s[j].VisualIsTarget
		}
		return s[j].AudioIsTarget
	}
	if target(i) {
		return true
	}
	return i+n < len(s) && target(i+n)
}

// Source is a uniform random integer source.
type Source interface {
	// IntRange returns a uniformly drawn integer in [lo, hi).
	IntRange(lo, hi int) int
}

type randSource struct {
	rng *rand.Rand
}

// NewSource returns a seedable Source backed by math/rand.
// It is not safe for concurrent use.
func NewSource(seed int64) Source {
	return &randSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *randSource) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Intn(hi-lo)
}

// Shuffle permutes xs in place with Fisher-Yates, drawing j from [i, len).
func Shuffle[T any](src Source, xs []T) {
	for i := 0; i < len(xs)-1; i++ {
		j := src.IntRange(i, len(xs))
		xs[i], xs[j] = xs[j], xs[i]
	}
}

func (c Config) String() string {
	return fmt.Sprintf("n=%d trials=%d both=%d visual=%d audio=%d pool=%d/%d",
		c.N, c.TotalTrials, c.Targets.Both, c.Targets.VisualOnly, c.Targets.AudioOnly,
		c.Pool.Visual, c.Pool.Audio)
}
