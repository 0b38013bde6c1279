package sequence

import "fmt"

// Default retry bounds.
const (
	DefaultOuterAttempts  = 100
	DefaultRedrawAttempts = 50
)

// Limits bounds the randomized search. Zero fields take the defaults.
type Limits struct {
	// OuterAttempts caps role assignments tried before giving up.
	OuterAttempts int

	// RedrawAttempts caps redraws for one accidental match before the
	// deterministic fallback is used.
	RedrawAttempts int

	// MaxScans caps repair passes over the sequence per attempt.
	// Defaults to TotalTrials+1.
	MaxScans int
}

func (l Limits) withDefaults(cfg Config) Limits {
	if l.OuterAttempts <= 0 {
		l.OuterAttempts = DefaultOuterAttempts
	}
	if l.RedrawAttempts <= 0 {
		l.RedrawAttempts = DefaultRedrawAttempts
	}
	if l.MaxScans <= 0 {
		l.MaxScans = cfg.TotalTrials + 1
	}
	return l
}

// Generate builds a sequence for cfg with the default limits.
func Generate(cfg Config, src Source) (Sequence, error) {
	return GenerateWithLimits(cfg, src, Limits{})
}

// GenerateWithLimits builds a sequence for cfg.
//
// Shape and capacity errors are returned before src is touched. When the
// bounded search fails the error has kind KindUnsatisfiable. A returned
// sequence always passes Validate.
func GenerateWithLimits(cfg Config, src Source, lim Limits) (Sequence, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	lim = lim.withDefaults(cfg)

	var lastErr error
	for attempt := 0; attempt < lim.OuterAttempts; attempt++ {
		g := newGrid(cfg)
		g.assignRoles(src)
		g.visual.draw(src)
		g.audio.draw(src)
		g.visual.propagate(cfg.N)
		g.audio.propagate(cfg.N)

		if err := g.visual.resolve(src, cfg.N, lim); err != nil {
			lastErr = fmt.Errorf("visual: %w", err)
			continue
		}
		if err := g.audio.resolve(src, cfg.N, lim); err != nil {
			lastErr = fmt.Errorf("audio: %w", err)
			continue
		}

		seq := g.sequence()
		if err := Validate(seq, cfg); err != nil {
			lastErr = err
			continue
		}
		return seq, nil
	}

	ce := &ConfigError{Kind: KindUnsatisfiable, Attempts: lim.OuterAttempts}
	if lastErr != nil {
		ce.Detail = lastErr.Error()
	}
	return nil, ce
}

// Check validates the shape of cfg without drawing anything.
func (c Config) Check() error {
	switch {
	case c.N < 1:
		return &ConfigError{Kind: KindInvalidConfig, Field: "n", Detail: fmt.Sprintf("must be >= 1, got %d", c.N)}
	case c.TotalTrials < 1:
		return &ConfigError{Kind: KindInvalidConfig, Field: "total_trials", Detail: fmt.Sprintf("must be >= 1, got %d", c.TotalTrials)}
	case c.Targets.VisualOnly < 0 || c.Targets.AudioOnly < 0 || c.Targets.Both < 0:
		return &ConfigError{Kind: KindInvalidConfig, Field: "targets", Detail: "quotas must not be negative"}
	case c.Pool.Visual < 0 || c.Pool.Audio < 0:
		return &ConfigError{Kind: KindInvalidConfig, Field: "pool", Detail: "pool sizes must not be negative"}
	case c.Pool.Visual == 0 && c.Pool.Audio == 0:
		return &ConfigError{Kind: KindInvalidConfig, Field: "pool", Detail: "at least one modality needs a stimulus pool"}
	case c.Pool.Visual == 0 && (c.Targets.VisualOnly > 0 || c.Targets.Both > 0):
		return &ConfigError{Kind: KindInvalidConfig, Field: "targets", Detail: "visual targets requested with visual modality disabled"}
	case c.Pool.Audio == 0 && (c.Targets.AudioOnly > 0 || c.Targets.Both > 0):
		return &ConfigError{Kind: KindInvalidConfig, Field: "targets", Detail: "audio targets requested with audio modality disabled"}
	}

	if requested, eligible := c.Targets.Total(), c.Eligible(); requested > eligible {
		return &ConfigError{Kind: KindQuotaExceedsCapacity, Requested: requested, Eligible: eligible}
	}
	return nil
}

// grid holds the working arrays of one attempt.
type grid struct {
	cfg    Config
	visual track
	audio  track
}

// track is one modality's role flags and stimulus ids.
type track struct {
	pool   int
	target []bool
	id     []int
}

func newGrid(cfg Config) *grid {
	return &grid{
		cfg:    cfg,
		visual: track{pool: cfg.Pool.Visual, target: make([]bool, cfg.TotalTrials), id: make([]int, cfg.TotalTrials)},
		audio:  track{pool: cfg.Pool.Audio, target: make([]bool, cfg.TotalTrials), id: make([]int, cfg.TotalTrials)},
	}
}

// assignRoles shuffles the eligible indices and cuts them into the both,
// visual-only and audio-only blocks. The rest stay filler.
func (g *grid) assignRoles(src Source) {
	eligible := make([]int, 0, g.cfg.Eligible())
	for i := g.cfg.N; i < g.cfg.TotalTrials; i++ {
		eligible = append(eligible, i)
	}
	Shuffle(src, eligible)

	q := g.cfg.Targets
	pos := 0
	for _, i := range eligible[pos : pos+q.Both] {
		g.visual.target[i] = true
		g.audio.target[i] = true
	}
	pos += q.Both
	for _, i := range eligible[pos : pos+q.VisualOnly] {
		g.visual.target[i] = true
	}
	pos += q.VisualOnly
	for _, i := range eligible[pos : pos+q.AudioOnly] {
		g.audio.target[i] = true
	}
}

func (g *grid) sequence() Sequence {
	seq := make(Sequence, g.cfg.TotalTrials)
	for i := range seq {
		seq[i] = Slot{
			Index:            i,
			VisualIsTarget:   g.visual.target[i],
			AudioIsTarget:    g.audio.target[i],
			VisualStimulusID: g.visual.id[i],
			AudioStimulusID:  g.audio.id[i],
		}
	}
	return seq
}

// draw assigns provisional ids. Disabled modalities keep id 0.
func (t *track) draw(src Source) {
	if t.pool == 0 {
		return
	}
	for i := range t.id {
		t.id[i] = src.IntRange(0, t.pool)
	}
}

// propagate copies each target's back-reference forward. Ascending order
// makes chains i, i+n, i+2n inherit the same identity.
func (t *track) propagate(n int) {
	for i := n; i < len(t.id); i++ {
		if t.target[i] {
			t.id[i] = t.id[i-n]
		}
	}
}

// resolve repairs accidental matches among non-targets until a full scan
// finds none. A repaired slot may be the source of a target n slots later,
// so targets are re-copied during the scan and count as a change when
// their id moves.
func (t *track) resolve(src Source, n int, lim Limits) error {
	if t.pool == 0 {
		return nil
	}
	for scan := 0; scan < lim.MaxScans; scan++ {
		changed := false
		for i := n; i < len(t.id); i++ {
			prev := t.id[i-n]
			if t.target[i] {
				if t.id[i] != prev {
					t.id[i] = prev
					changed = true
				}
				continue
			}
			if t.id[i] != prev {
				continue
			}
			changed = true
			if !t.redraw(src, i, prev, lim.RedrawAttempts) {
				return fmt.Errorf("slot %d cannot differ from slot %d with pool size %d", i, i-n, t.pool)
			}
		}
		if !changed {
			return nil
		}
	}
	return fmt.Errorf("no fixed point after %d scans", lim.MaxScans)
}

// redraw picks a new id for slot i that differs from prev. It reports
// false when even the fallback collides, which only happens with a pool
// of one.
func (t *track) redraw(src Source, i, prev, attempts int) bool {
	for ; attempts > 0; attempts-- {
		if g := src.IntRange(0, t.pool); g != prev {
			t.id[i] = g
			return true
		}
	}
	fallback := (prev + 1) % t.pool
	if fallback == prev {
		return false
	}
	t.id[i] = fallback
	return true
}
