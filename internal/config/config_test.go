package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cogtask/internal/session"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("COGTASK_DATA_DIR", t.TempDir())
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, Version, cfg.Version)
	assert.True(t, strings.HasPrefix(cfg.Storage.Path, DataDir()))
	assert.Equal(t, "config.toml", filepath.Base(ConfigPath()))
}

func TestFindConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	data := t.TempDir()
	t.Setenv("COGTASK_DATA_DIR", data)
	assert.Empty(t, FindConfigFile())

	inData := filepath.Join(data, "config.yaml")
	require.NoError(t, SaveConfig(DefaultConfig(), inData))
	assert.Equal(t, inData, ConfigPath())

	require.NoError(t, SaveConfig(DefaultConfig(), "cogtask.json"))
	assert.Equal(t, "cogtask.json", FindConfigFile(), "working directory wins")
}

func TestProtocolRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, session.DefaultProtocol(), cfg.NBack.Protocol())
}

func TestStimulusCatalog(t *testing.T) {
	body := "[nback]\naudio_pool = 4\nmax_attempts = 7\n[nback.catalog]\n" +
		"audio_negative = [\"scream\", \"siren\"]\naudio_neutral = [\"bell\", \"chime\"]\n"
	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	cat := cfg.NBack.StimulusCatalog()
	assert.Equal(t, []string{"scream", "siren"}, cat.AudioNegative)
	assert.Equal(t, session.DefaultCatalog().VisualNegative, cat.VisualNegative)
	assert.Equal(t, 4, cat.AudioCapacity())
	assert.Equal(t, 7, cfg.NBack.Limits().OuterAttempts)
	assert.Zero(t, cfg.NBack.Limits().RedrawAttempts)

	cfg.NBack.AudioPool = 5
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio pool 5")
}

func TestTaskConversions(t *testing.T) {
	cfg := DefaultConfig()
	fl := cfg.Flanker.Task()
	assert.Equal(t, 20, fl.Total)
	assert.Equal(t, 2*time.Second, fl.ResponseLimit)

	st := cfg.Stroop.Task()
	assert.Equal(t, 15, st.Counts.Total())
	assert.Equal(t, 2*time.Second, st.Window)
	require.NoError(t, st.Validate())

	words, err := cfg.Flanker.Words()
	require.NoError(t, err)
	assert.NotEmpty(t, words.Negative)
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.NBack.Rounds)
}

func TestLoadFormats(t *testing.T) {
	files := map[string]string{
		"c.toml": "participant = \"P07\"\n[nback]\nstart_n = 1\nintervals_ms = [2000]\n",
		"c.yaml": "participant: P07\nnback:\n  start_n: 1\n  intervals_ms: [2000]\n",
		"c.json": `{"participant":"P07","nback":{"start_n":1,"intervals_ms":[2000]}}`,
		"c.conf": "participant = \"P07\"\n[nback]\nstart_n = 1\nintervals_ms = [2000]\n",
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0600))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "P07", cfg.Participant)
			assert.Equal(t, 1, cfg.NBack.StartN)
			assert.Equal(t, []int{2000}, cfg.NBack.IntervalsMS)
			// Untouched fields keep their defaults.
			assert.Equal(t, 20, cfg.NBack.BaseTrials)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("participant = [unterminated"), 0600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COGTASK_PARTICIPANT", "ENV01")
	t.Setenv("COGTASK_START_N", "3")
	t.Setenv("COGTASK_METRICS_ADDR", "127.0.0.1:9100")
	t.Setenv("COGTASK_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, "ENV01", cfg.Participant)
	assert.Equal(t, 3, cfg.NBack.StartN)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"version", func(c *Config) { c.Version = 9 }, "version"},
		{"participant", func(c *Config) { c.Participant = " " }, "participant"},
		{"start n", func(c *Config) { c.NBack.StartN = 5 }, "nback.start_n"},
		{"intervals", func(c *Config) { c.NBack.IntervalsMS = nil }, "nback.intervals_ms"},
		{"threshold", func(c *Config) { c.NBack.Threshold = 2 }, "nback.threshold"},
		{"quota", func(c *Config) { c.NBack.TargetsVisual = 30 }, "nback"},
		{"audio pool over catalog", func(c *Config) { c.NBack.AudioPool = 16 }, "nback.catalog"},
		{"search bounds", func(c *Config) { c.NBack.MaxRedraws = -1 }, "nback.max_attempts"},
		{"flanker negative", func(c *Config) { c.Flanker.Negative = 99 }, "flanker.negative"},
		{"stroop window", func(c *Config) { c.Stroop.WindowMS = 0 }, "stroop.window_ms"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log file", func(c *Config) { c.Logging.Output, c.Logging.FilePath = "file", "" }, "logging.file_path"},
		{"metrics", func(c *Config) { c.Metrics.Addr = "nope" }, "metrics.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			fields := make([]string, len(verrs))
			for i, v := range verrs {
				fields[i] = v.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_WordsPathIsWarning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Flanker.WordsPath = filepath.Join(t.TempDir(), "missing.yaml")

	assert.NoError(t, cfg.Validate())
	issues := CheckConfig(cfg)
	require.Len(t, issues.Warnings(), 1)
	assert.False(t, issues.HasErrors())
}

func TestSaveAndLoadOrCreate(t *testing.T) {
	for _, ext := range SupportedConfigFormats() {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "config"+ext)

			cfg, created, err := LoadOrCreate(path)
			require.NoError(t, err)
			assert.True(t, created)
			assert.FileExists(t, path)

			cfg.Participant = "P42"
			cfg.NBack.IntervalsMS = []int{1500, 2500}
			require.NoError(t, SaveConfig(cfg, path))

			again, created, err := LoadOrCreate(path)
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, "P42", again.Participant)
			assert.Equal(t, []int{1500, 2500}, again.NBack.IntervalsMS)
			assert.Equal(t, cfg.Stroop.NeutralImages, again.Stroop.NeutralImages)
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Export.Dir = filepath.Join(dir, "out", "csv")
	cfg.Storage.Path = filepath.Join(dir, "db", "cogtask.db")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "x.log")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.Export.Dir)
	assert.DirExists(t, filepath.Join(dir, "db"))
	assert.DirExists(t, filepath.Join(dir, "logs"))
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	c := cfg.Clone()
	c.NBack.IntervalsMS[0] = 1
	c.Stroop.NegativeImages[0] = "changed"
	assert.NotEqual(t, 1, cfg.NBack.IntervalsMS[0])
	assert.NotEqual(t, "changed", cfg.Stroop.NegativeImages[0])
}

func TestLoader_HotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveConfig(DefaultConfig(), path))

	l := NewLoader(path)
	l.delay = 10 * time.Millisecond
	defer l.Close()

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "anonymous", cfg.Participant)

	changed := make(chan *Config, 1)
	var calls atomic.Int32
	l.OnChange(func(c *Config) {
		calls.Add(1)
		select {
		case changed <- c:
		default:
		}
	})
	require.NoError(t, l.Watch())

	next := DefaultConfig()
	next.Participant = "RELOADED"
	require.NoError(t, SaveConfig(next, path))

	select {
	case c := <-changed:
		assert.Equal(t, "RELOADED", c.Participant)
		assert.Equal(t, "RELOADED", l.Config().Participant)
	case <-time.After(5 * time.Second):
		t.Fatal("reload not observed")
	}
}

func TestLoader_InvalidReloadKeepsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveConfig(DefaultConfig(), path))

	l := NewLoader(path)
	l.delay = 10 * time.Millisecond
	defer l.Close()
	_, err := l.Load()
	require.NoError(t, err)
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte("version = 1\n[nback]\nthreshold = 7.0\n"), 0600))

	select {
	case err := <-l.Errors():
		assert.ErrorIs(t, err, ErrInvalidConfig)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload error")
	}
	assert.Equal(t, 0.5, l.Config().NBack.Threshold)
}
