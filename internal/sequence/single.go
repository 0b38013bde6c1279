package sequence

// Stream is the modality a single-stream sequence uses.
type Stream int

const (
	StreamVisual Stream = iota
	StreamAudio
)

func (s Stream) String() string {
	if s == StreamAudio {
		return "audio"
	}
	return "visual"
}

// SingleConfig is the Config of a one-modality sequence for the audio and
// colour-change tasks. The other modality is disabled: its ids stay 0 and
// it has no targets. forced is clamped to the eligible slots instead of
// failing, matching how those tasks treat an oversized match count.
func SingleConfig(s Stream, n, totalTrials, forced, pool int) Config {
	cfg := Config{N: n, TotalTrials: totalTrials}
	forced = min(max(forced, 0), cfg.Eligible())
	if s == StreamAudio {
		cfg.Pool.Audio = pool
		cfg.Targets.AudioOnly = forced
	} else {
		cfg.Pool.Visual = pool
		cfg.Targets.VisualOnly = forced
	}
	return cfg
}

// Single generates a one-modality sequence with the default limits.
func Single(s Stream, n, totalTrials, forced, pool int, src Source) (Sequence, error) {
	return SingleWithLimits(s, n, totalTrials, forced, pool, src, Limits{})
}

func SingleWithLimits(s Stream, n, totalTrials, forced, pool int, src Source, lim Limits) (Sequence, error) {
	return GenerateWithLimits(SingleConfig(s, n, totalTrials, forced, pool), src, lim)
}
