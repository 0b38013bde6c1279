package session

import (
	"fmt"
	"slices"

	"cogtask/internal/sequence"
	"cogtask/internal/trial"
)

// Catalog names the stimulus assets of a session per modality and valence.
type Catalog struct {
	VisualNegative []string `json:"visual_negative" yaml:"visual_negative" toml:"visual_negative"`
	VisualNeutral  []string `json:"visual_neutral" yaml:"visual_neutral" toml:"visual_neutral"`
	AudioNegative  []string `json:"audio_negative" yaml:"audio_negative" toml:"audio_negative"`
	AudioNeutral   []string `json:"audio_neutral" yaml:"audio_neutral" toml:"audio_neutral"`
}

// mixCount is how many assets of each valence go into the filler pool.
const mixCount = 6

// DefaultCatalog returns placeholder asset names, enough for the default
// protocol.
func DefaultCatalog() Catalog {
	gen := func(prefix string, n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("%s_%02d", prefix, i+1)
		}
		return out
	}
	return Catalog{
		VisualNegative: gen("img_negative", 18),
		VisualNeutral:  gen("img_neutral", 18),
		AudioNegative:  gen("clip_negative", 18),
		AudioNeutral:   gen("clip_neutral", 18),
	}
}

// WithDefaults fills the empty lists of c from DefaultCatalog.
func (c Catalog) WithDefaults() Catalog {
	def := DefaultCatalog()
	fill := func(dst *[]string, src []string) {
		if len(*dst) == 0 {
			*dst = src
		}
	}
	fill(&c.VisualNegative, def.VisualNegative)
	fill(&c.VisualNeutral, def.VisualNeutral)
	fill(&c.AudioNegative, def.AudioNegative)
	fill(&c.AudioNeutral, def.AudioNeutral)
	return c
}

// AudioCapacity is the largest audio pool the catalog can voice with one
// distinct clip per stimulus id. Audio ids map onto the filler mix and the
// remaining negative and neutral lists by position, so the shortest
// non-empty one bounds the pool.
func (c Catalog) AudioCapacity() int {
	neg, neu := len(c.AudioNegative), len(c.AudioNeutral)
	capacity := 0
	for _, n := range []int{min(mixCount, neg) + min(mixCount, neu), neg - mixCount, neu - mixCount} {
		if n > 0 && (capacity == 0 || n < capacity) {
			capacity = n
		}
	}
	return capacity
}

// Check reports whether the catalog can voice the audio pool of proto
// without two ids sharing a clip.
func (c Catalog) Check(proto Protocol) error {
	if proto.Pool.Audio == 0 || !proto.Mode.Presents(trial.Audio) {
		return nil
	}
	seen := make(map[string]bool, len(c.AudioNegative)+len(c.AudioNeutral))
	for _, name := range append(slices.Clone(c.AudioNegative), c.AudioNeutral...) {
		if seen[name] {
			return fmt.Errorf("audio clip %q listed twice", name)
		}
		seen[name] = true
	}
	if capacity := c.AudioCapacity(); proto.Pool.Audio > capacity {
		return fmt.Errorf("audio pool %d exceeds the %d distinct clips the catalog can assign", proto.Pool.Audio, capacity)
	}
	return nil
}

// Asset is a chosen stimulus.
type Asset struct {
	Name    string
	Valence trial.Valence
}

type pools struct {
	negative []string
	neutral  []string
	mixed    []Asset
}

func newPools(src sequence.Source, negative, neutral []string) pools {
	neg := append([]string(nil), negative...)
	neu := append([]string(nil), neutral...)
	sequence.Shuffle(src, neg)
	sequence.Shuffle(src, neu)

	var p pools
	for i := 0; i < mixCount; i++ {
		if i < len(neu) {
			p.mixed = append(p.mixed, Asset{Name: neu[i], Valence: trial.Neutral})
		}
		if i < len(neg) {
			p.mixed = append(p.mixed, Asset{Name: neg[i], Valence: trial.Negative})
		}
	}
	p.negative = neg[min(mixCount, len(neg)):]
	p.neutral = neu[min(mixCount, len(neu)):]
	sequence.Shuffle(src, p.mixed)
	return p
}

func pick(names []string, id int, v trial.Valence) (Asset, bool) {
	if len(names) == 0 {
		return Asset{}, false
	}
	return Asset{Name: names[id%len(names)], Valence: v}, true
}

// picker assigns assets to slots.
//
// Slots on a target chain get a negative asset while the session quota
// lasts, else a neutral one. Targets reuse the asset of their
// back-reference so a match looks and sounds identical. Filler slots draw
// from the mixed pool.
type picker struct {
	visual, audio     pools
	visualOn, audioOn bool
	negVisual, negAud int
	history           []assets
}

type assets struct {
	visual, audio Asset
}

func newPicker(cat Catalog, proto Protocol, src sequence.Source) *picker {
	return &picker{
		visual:    newPools(src, cat.VisualNegative, cat.VisualNeutral),
		audio:     newPools(src, cat.AudioNegative, cat.AudioNeutral),
		visualOn:  proto.Pool.Visual > 0 && proto.Mode.Presents(trial.Visual),
		audioOn:   proto.Pool.Audio > 0 && proto.Mode.Presents(trial.Audio),
		negVisual: proto.NegativeVisual,
		negAud:    proto.NegativeAudio,
	}
}

// startRound forgets the assets of the previous round.
func (p *picker) startRound() {
	p.history = p.history[:0]
}

// next picks the assets for seq[i]. Calls must follow slot order. A
// modality that is not played gets the zero Asset.
func (p *picker) next(seq sequence.Sequence, i, n int, src sequence.Source) (visual, audio Asset) {
	slot := seq[i]
	var back *assets
	if i >= n && i-n < len(p.history) {
		back = &p.history[i-n]
	}

	if p.visualOn {
		visual = p.choose(&p.visual, &p.negVisual, slot.VisualIsTarget, seq.IsChainMember(i, n, true),
			slot.VisualStimulusID, back, true, src)
	}
	if p.audioOn {
		audio = p.choose(&p.audio, &p.negAud, slot.AudioIsTarget, seq.IsChainMember(i, n, false),
			slot.AudioStimulusID, back, false, src)
	}

	p.history = append(p.history, assets{visual: visual, audio: audio})
	return visual, audio
}

func (p *picker) choose(pl *pools, quota *int, target, chain bool, id int, back *assets, visual bool, src sequence.Source) Asset {
	if target && back != nil {
		a := back.audio
		if visual {
			a = back.visual
		}
		if a.Valence == trial.Negative && *quota > 0 {
			*quota--
		}
		return a
	}

	if chain {
		if *quota > 0 {
			if a, ok := pick(pl.negative, id, trial.Negative); ok {
				*quota--
				return a
			}
		}
		if a, ok := pick(pl.neutral, id, trial.Neutral); ok {
			return a
		}
	}

	if len(pl.mixed) == 0 {
		return Asset{Valence: trial.Neutral}
	}
	// Visual identity is the grid cell, so the picture is free. Audio
	// identity is the clip itself and must follow the id.
	if visual {
		return pl.mixed[src.IntRange(0, len(pl.mixed))]
	}
	return pl.mixed[id%len(pl.mixed)]
}
