package sequence

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource records how many draws were made.
type countingSource struct {
	Source
	draws int
}

func (c *countingSource) IntRange(lo, hi int) int {
	c.draws++
	return c.Source.IntRange(lo, hi)
}

// scriptedSource replays fixed values, falling back to lo when exhausted.
type scriptedSource struct {
	values []int
}

func (s *scriptedSource) IntRange(lo, hi int) int {
	if len(s.values) == 0 {
		return lo
	}
	v := s.values[0]
	s.values = s.values[1:]
	if v < lo || v >= hi {
		return lo
	}
	return v
}

func standardConfig() Config {
	return Config{
		N:           2,
		TotalTrials: 22,
		Targets:     Quota{Both: 2, VisualOnly: 5, AudioOnly: 5},
		Pool:        PoolSize{Visual: 9, Audio: 12},
	}
}

func assertProperties(t *testing.T, seq Sequence, cfg Config) {
	t.Helper()
	require.Len(t, seq, cfg.TotalTrials)

	for i, s := range seq {
		if i < cfg.N {
			assert.False(t, s.VisualIsTarget, "slot %d visual target before n", i)
			assert.False(t, s.AudioIsTarget, "slot %d audio target before n", i)
			continue
		}
		back := seq[i-cfg.N]
		if s.VisualIsTarget {
			assert.Equal(t, back.VisualStimulusID, s.VisualStimulusID, "visual target %d", i)
		} else if cfg.Pool.Visual > 1 {
			assert.NotEqual(t, back.VisualStimulusID, s.VisualStimulusID, "visual accidental match %d", i)
		}
		if s.AudioIsTarget {
			assert.Equal(t, back.AudioStimulusID, s.AudioStimulusID, "audio target %d", i)
		} else if cfg.Pool.Audio > 1 {
			assert.NotEqual(t, back.AudioStimulusID, s.AudioStimulusID, "audio accidental match %d", i)
		}
	}
	assert.Equal(t, cfg.Targets, seq.Counts())
	assert.NoError(t, Validate(seq, cfg))
}

func TestGenerate_StandardRound(t *testing.T) {
	cfg := standardConfig()
	for seed := int64(0); seed < 200; seed++ {
		seq, err := Generate(cfg, NewSource(seed))
		require.NoError(t, err, "seed %d", seed)
		assertProperties(t, seq, cfg)

		fillers := 0
		for _, s := range seq[cfg.N:] {
			if s.Kind() == KindFiller {
				fillers++
			}
		}
		assert.Equal(t, 8, fillers, "seed %d", seed)
	}
}

func TestGenerate_AllFiller(t *testing.T) {
	cfg := Config{N: 1, TotalTrials: 5, Pool: PoolSize{Visual: 9, Audio: 12}}
	seq, err := Generate(cfg, NewSource(7))
	require.NoError(t, err)
	require.Len(t, seq, 5)

	for _, s := range seq {
		assert.Equal(t, KindFiller, s.Kind())
		assert.GreaterOrEqual(t, s.VisualStimulusID, 0)
		assert.Less(t, s.VisualStimulusID, 9)
		assert.GreaterOrEqual(t, s.AudioStimulusID, 0)
		assert.Less(t, s.AudioStimulusID, 12)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := standardConfig()
	a, err := Generate(cfg, NewSource(42))
	require.NoError(t, err)
	b, err := Generate(cfg, NewSource(42))
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different sequences (-a +b):\n%s", diff)
	}

	c, err := Generate(cfg, NewSource(43))
	require.NoError(t, err)
	assert.NotEmpty(t, cmp.Diff(a, c), "different seeds should differ")
}

func TestGenerate_QuotaExceedsCapacity(t *testing.T) {
	cfg := Config{
		N:           3,
		TotalTrials: 10,
		Targets:     Quota{Both: 3, VisualOnly: 3, AudioOnly: 2},
		Pool:        PoolSize{Visual: 9, Audio: 12},
	}
	src := &countingSource{Source: NewSource(1)}

	seq, err := Generate(cfg, src)
	require.Error(t, err)
	assert.Nil(t, seq)
	assert.True(t, errors.Is(err, ErrQuotaExceedsCapacity))
	assert.Zero(t, src.draws, "no randomness may be spent on a capacity error")

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 8, ce.Requested)
	assert.Equal(t, 7, ce.Eligible)
	assert.True(t, ce.Fatal())
}

func TestGenerate_NBeyondTrials(t *testing.T) {
	cfg := Config{N: 5, TotalTrials: 4, Targets: Quota{VisualOnly: 1}, Pool: PoolSize{Visual: 9, Audio: 12}}
	_, err := Generate(cfg, NewSource(1))
	assert.ErrorIs(t, err, ErrQuotaExceedsCapacity)

	cfg.Targets = Quota{}
	seq, err := Generate(cfg, NewSource(1))
	require.NoError(t, err)
	assert.Len(t, seq, 4)
	assert.Equal(t, Quota{}, seq.Counts())
}

func TestGenerate_InvalidShape(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero n", Config{N: 0, TotalTrials: 5, Pool: PoolSize{Visual: 2, Audio: 2}}},
		{"zero trials", Config{N: 1, TotalTrials: 0, Pool: PoolSize{Visual: 2, Audio: 2}}},
		{"negative quota", Config{N: 1, TotalTrials: 5, Targets: Quota{AudioOnly: -1}, Pool: PoolSize{Visual: 2, Audio: 2}}},
		{"negative pool", Config{N: 1, TotalTrials: 5, Pool: PoolSize{Visual: -1, Audio: 2}}},
		{"no modality", Config{N: 1, TotalTrials: 5}},
		{"targets on disabled modality", Config{N: 1, TotalTrials: 5, Targets: Quota{Both: 1}, Pool: PoolSize{Visual: 3}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := &countingSource{Source: NewSource(1)}
			_, err := Generate(tc.cfg, src)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Equal(t, KindInvalidConfig, KindOf(err))
			assert.Zero(t, src.draws)
		})
	}
}

func TestGenerate_UnsatisfiablePool(t *testing.T) {
	cfg := Config{
		N:           2,
		TotalTrials: 12,
		Targets:     Quota{VisualOnly: 2},
		Pool:        PoolSize{Visual: 1, Audio: 4},
	}

	done := make(chan error, 1)
	go func() {
		_, err := Generate(cfg, NewSource(3))
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsatisfiable)
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, DefaultOuterAttempts, ce.Attempts)
		assert.False(t, ce.Fatal())
	case <-time.After(10 * time.Second):
		t.Fatal("Generate did not terminate on an unsatisfiable pool")
	}
}

func TestGenerate_SingleStimulusAllTargets(t *testing.T) {
	// Every eligible slot is a visual target, so a pool of one never has
	// to differ from its back-reference.
	cfg := Config{
		N:           1,
		TotalTrials: 4,
		Targets:     Quota{VisualOnly: 3},
		Pool:        PoolSize{Visual: 1, Audio: 5},
	}
	seq, err := Generate(cfg, NewSource(11))
	require.NoError(t, err)
	assertProperties(t, seq, cfg)
}

func TestGenerate_LimitsRespected(t *testing.T) {
	cfg := Config{N: 1, TotalTrials: 6, Pool: PoolSize{Visual: 1, Audio: 3}}
	_, err := GenerateWithLimits(cfg, NewSource(1), Limits{OuterAttempts: 3})

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 3, ce.Attempts)
	assert.Contains(t, ce.Error(), "visual")
}

func TestResolve_RecopiesTargetAfterRepair(t *testing.T) {
	// Slot 1 accidentally repeats slot 0 and is redrawn; slot 2 is a
	// target of slot 1 and must follow the new value.
	tr := track{
		pool:   3,
		target: []bool{false, false, true},
		id:     []int{0, 0, 0},
	}
	src := &scriptedSource{values: []int{0, 2}}

	err := tr.resolve(src, 1, Limits{RedrawAttempts: 5, MaxScans: 4})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 2}, tr.id)
}

func TestRedraw_FallbackWhenExhausted(t *testing.T) {
	tr := track{pool: 4, target: make([]bool, 2), id: []int{3, 3}}
	src := &scriptedSource{values: []int{3, 3, 3}}

	ok := tr.redraw(src, 1, 3, 3)
	require.True(t, ok)
	assert.Equal(t, 0, tr.id[1], "fallback is (prev+1) mod pool")
}

func TestShuffle_Permutation(t *testing.T) {
	xs := []int{0, 1, 2, 3, 4, 5, 6, 7}
	Shuffle(NewSource(5), xs)

	seen := make(map[int]bool)
	for _, x := range xs {
		seen[x] = true
	}
	assert.Len(t, seen, 8)
}

func TestSingle(t *testing.T) {
	seq, err := Single(StreamVisual, 2, 20, 50, 9, NewSource(9))
	require.NoError(t, err)
	assert.Equal(t, 18, seq.Counts().VisualOnly, "forced count clamps to eligible slots")

	seq, err = Single(StreamVisual, 2, 20, 5, 9, NewSource(9))
	require.NoError(t, err)
	assert.Equal(t, 5, seq.Counts().VisualOnly)
	for _, s := range seq {
		assert.Zero(t, s.AudioStimulusID)
		assert.False(t, s.AudioIsTarget)
	}
}

func TestSingle_Audio(t *testing.T) {
	cfg := SingleConfig(StreamAudio, 2, 20, 5, 12)
	assert.Equal(t, Quota{AudioOnly: 5}, cfg.Targets)
	assert.Equal(t, PoolSize{Audio: 12}, cfg.Pool)

	seq, err := Single(StreamAudio, 2, 20, 5, 12, NewSource(4))
	require.NoError(t, err)
	assertProperties(t, seq, cfg)
	assert.Equal(t, 5, seq.Counts().AudioOnly)
	for _, s := range seq {
		assert.Zero(t, s.VisualStimulusID)
		assert.False(t, s.VisualIsTarget)
	}

	_, err = Single(StreamAudio, 2, 20, -3, 12, NewSource(4))
	require.NoError(t, err, "negative forced count clamps to zero")
}

func TestValidate_DetectsViolations(t *testing.T) {
	cfg := Config{N: 1, TotalTrials: 3, Targets: Quota{VisualOnly: 1}, Pool: PoolSize{Visual: 3, Audio: 3}}
	good := Sequence{
		{Index: 0, VisualStimulusID: 0, AudioStimulusID: 0},
		{Index: 1, VisualIsTarget: true, VisualStimulusID: 0, AudioStimulusID: 1},
		{Index: 2, VisualStimulusID: 2, AudioStimulusID: 0},
	}
	require.NoError(t, Validate(good, cfg))

	broken := append(Sequence(nil), good...)
	broken[1].VisualStimulusID = 1
	assert.Error(t, Validate(broken, cfg))

	accidental := append(Sequence(nil), good...)
	accidental[2].AudioStimulusID = 1
	assert.Error(t, Validate(accidental, cfg))

	early := append(Sequence(nil), good...)
	early[0].AudioIsTarget = true
	assert.Error(t, Validate(early, cfg))
}

func TestIsChainMember(t *testing.T) {
	seq := Sequence{
		{Index: 0},
		{Index: 1},
		{Index: 2, VisualIsTarget: true},
		{Index: 3, AudioIsTarget: true},
	}
	assert.True(t, seq.IsChainMember(0, 2, true))
	assert.True(t, seq.IsChainMember(2, 2, true))
	assert.False(t, seq.IsChainMember(1, 2, true))
	assert.True(t, seq.IsChainMember(1, 2, false))
	assert.False(t, seq.IsChainMember(9, 2, false))
}
