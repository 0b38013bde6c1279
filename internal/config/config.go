// Package config handles configuration loading, validation and hot reload
// for cogtask.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"cogtask/internal/flanker"
	"cogtask/internal/sequence"
	"cogtask/internal/session"
	"cogtask/internal/stroop"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Participant is the default participant id.
	Participant string `toml:"participant" json:"participant" yaml:"participant"`

	NBack   NBackConfig   `toml:"nback" json:"nback" yaml:"nback"`
	Flanker FlankerConfig `toml:"flanker" json:"flanker" yaml:"flanker"`
	Stroop  StroopConfig  `toml:"stroop" json:"stroop" yaml:"stroop"`

	Export  ExportConfig  `toml:"export" json:"export" yaml:"export"`
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// NBackConfig is the adaptive dual n-back protocol.
type NBackConfig struct {
	Rounds     int `toml:"rounds" json:"rounds" yaml:"rounds"`
	BaseTrials int `toml:"base_trials" json:"base_trials" yaml:"base_trials"`

	StartN int `toml:"start_n" json:"start_n" yaml:"start_n"`
	MinN   int `toml:"min_n" json:"min_n" yaml:"min_n"`
	MaxN   int `toml:"max_n" json:"max_n" yaml:"max_n"`

	// Target quotas per round.
	TargetsBoth   int `toml:"targets_both" json:"targets_both" yaml:"targets_both"`
	TargetsVisual int `toml:"targets_visual" json:"targets_visual" yaml:"targets_visual"`
	TargetsAudio  int `toml:"targets_audio" json:"targets_audio" yaml:"targets_audio"`

	// Stimulus pool sizes. Zero disables a modality.
	VisualPool int `toml:"visual_pool" json:"visual_pool" yaml:"visual_pool"`
	AudioPool  int `toml:"audio_pool" json:"audio_pool" yaml:"audio_pool"`

	// IntervalsMS lists the response windows to draw from.
	IntervalsMS []int `toml:"intervals_ms" json:"intervals_ms" yaml:"intervals_ms"`
	WaitSec     int   `toml:"wait_sec" json:"wait_sec" yaml:"wait_sec"`
	RestSec     int   `toml:"rest_sec" json:"rest_sec" yaml:"rest_sec"`

	// Threshold is the mean accuracy at which n goes up.
	Threshold float64 `toml:"threshold" json:"threshold" yaml:"threshold"`

	// Session-wide caps on negative stimuli.
	NegativeVisual int `toml:"negative_visual" json:"negative_visual" yaml:"negative_visual"`
	NegativeAudio  int `toml:"negative_audio" json:"negative_audio" yaml:"negative_audio"`

	// Generator search bounds. Zero keeps the built-in bounds.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	MaxRedraws  int `toml:"max_redraws" json:"max_redraws" yaml:"max_redraws"`

	// Catalog overrides the stimulus asset names. Empty lists keep the
	// built-in names.
	Catalog session.Catalog `toml:"catalog" json:"catalog" yaml:"catalog"`
}

// FlankerConfig holds the emotional flanker block.
type FlankerConfig struct {
	Trials          int `toml:"trials" json:"trials" yaml:"trials"`
	Negative        int `toml:"negative" json:"negative" yaml:"negative"`
	ResponseLimitMS int `toml:"response_limit_ms" json:"response_limit_ms" yaml:"response_limit_ms"`
	InterTrialMS    int `toml:"inter_trial_ms" json:"inter_trial_ms" yaml:"inter_trial_ms"`

	// WordsPath is a YAML word list; empty uses the built-in words.
	WordsPath string `toml:"words_path" json:"words_path" yaml:"words_path"`
}

// StroopConfig holds the emotional counting Stroop block.
type StroopConfig struct {
	Congruent           int `toml:"congruent" json:"congruent" yaml:"congruent"`
	Incongruent         int `toml:"incongruent" json:"incongruent" yaml:"incongruent"`
	Stars               int `toml:"stars" json:"stars" yaml:"stars"`
	NegativeAppearances int `toml:"negative_appearances" json:"negative_appearances" yaml:"negative_appearances"`
	WindowMS            int `toml:"window_ms" json:"window_ms" yaml:"window_ms"`

	NegativeImages []string `toml:"negative_images" json:"negative_images" yaml:"negative_images"`
	NeutralImages  []string `toml:"neutral_images" json:"neutral_images" yaml:"neutral_images"`
}

// ExportConfig controls result files.
type ExportConfig struct {
	// Dir receives the CSV and summary files.
	Dir string `toml:"dir" json:"dir" yaml:"dir"`

	// Summary enables the JSON session summary next to the CSV.
	Summary bool `toml:"summary" json:"summary" yaml:"summary"`
}

// StorageConfig holds the result database location.
type StorageConfig struct {
	// Path is the SQLite database; empty disables the store.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file when Output is "file" or "both".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `toml:"addr" json:"addr" yaml:"addr"`
}

// DefaultConfig returns a new configuration with default values.
func DefaultConfig() *Config {
	dir := DataDir()
	proto := session.DefaultProtocol()
	fl := flanker.DefaultConfig()
	st := stroop.DefaultConfig()

	intervals := make([]int, len(proto.Intervals))
	for i, d := range proto.Intervals {
		intervals[i] = int(d / time.Millisecond)
	}

	return &Config{
		Version:     Version,
		Participant: "anonymous",
		NBack: NBackConfig{
			Rounds:         proto.Rounds,
			BaseTrials:     proto.BaseTrials,
			StartN:         proto.StartN,
			MinN:           proto.MinN,
			MaxN:           proto.MaxN,
			TargetsBoth:    proto.Targets.Both,
			TargetsVisual:  proto.Targets.VisualOnly,
			TargetsAudio:   proto.Targets.AudioOnly,
			VisualPool:     proto.Pool.Visual,
			AudioPool:      proto.Pool.Audio,
			IntervalsMS:    intervals,
			WaitSec:        int(proto.WaitTime / time.Second),
			RestSec:        int(proto.RestTime / time.Second),
			Threshold:      proto.Threshold,
			NegativeVisual: proto.NegativeVisual,
			NegativeAudio:  proto.NegativeAudio,
		},
		Flanker: FlankerConfig{
			Trials:          fl.Total,
			Negative:        fl.Negative,
			ResponseLimitMS: int(fl.ResponseLimit / time.Millisecond),
			InterTrialMS:    int(fl.InterTrial / time.Millisecond),
		},
		Stroop: StroopConfig{
			Congruent:           st.Counts.Congruent,
			Incongruent:         st.Counts.Incongruent,
			Stars:               st.Counts.Stars,
			NegativeAppearances: st.NegativeAppearances,
			WindowMS:            int(st.Window / time.Millisecond),
			NegativeImages:      st.NegativeImages,
			NeutralImages:       st.NeutralImages,
		},
		Export: ExportConfig{
			Dir:     filepath.Join(dir, "results"),
			Summary: true,
		},
		Storage: StorageConfig{
			Path: filepath.Join(dir, "cogtask.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "logs", "cogtask.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Protocol converts the section into a session protocol.
func (n NBackConfig) Protocol() session.Protocol {
	intervals := make([]time.Duration, len(n.IntervalsMS))
	for i, ms := range n.IntervalsMS {
		intervals[i] = time.Duration(ms) * time.Millisecond
	}
	return session.Protocol{
		Rounds:         n.Rounds,
		BaseTrials:     n.BaseTrials,
		StartN:         n.StartN,
		MinN:           n.MinN,
		MaxN:           n.MaxN,
		Targets:        sequence.Quota{Both: n.TargetsBoth, VisualOnly: n.TargetsVisual, AudioOnly: n.TargetsAudio},
		Pool:           sequence.PoolSize{Visual: n.VisualPool, Audio: n.AudioPool},
		Intervals:      intervals,
		WaitTime:       time.Duration(n.WaitSec) * time.Second,
		RestTime:       time.Duration(n.RestSec) * time.Second,
		Threshold:      n.Threshold,
		NegativeVisual: n.NegativeVisual,
		NegativeAudio:  n.NegativeAudio,
	}
}

// StimulusCatalog is the configured catalog with empty lists filled from
// the built-in one.
func (n NBackConfig) StimulusCatalog() session.Catalog {
	return n.Catalog.WithDefaults()
}

// Limits returns the generator search bounds.
func (n NBackConfig) Limits() sequence.Limits {
	return sequence.Limits{OuterAttempts: n.MaxAttempts, RedrawAttempts: n.MaxRedraws}
}

// Task converts the section into a flanker config.
func (f FlankerConfig) Task() flanker.Config {
	return flanker.Config{
		Total:         f.Trials,
		Negative:      f.Negative,
		ResponseLimit: time.Duration(f.ResponseLimitMS) * time.Millisecond,
		InterTrial:    time.Duration(f.InterTrialMS) * time.Millisecond,
	}
}

// Words loads the configured word list, or the built-in one.
func (f FlankerConfig) Words() (flanker.WordList, error) {
	if f.WordsPath == "" {
		return flanker.DefaultWords(), nil
	}
	return flanker.LoadWordList(expandPath(f.WordsPath))
}

// Task converts the section into a stroop config.
func (s StroopConfig) Task() stroop.Config {
	return stroop.Config{
		Counts:              stroop.Counts{Congruent: s.Congruent, Incongruent: s.Incongruent, Stars: s.Stars},
		NegativeAppearances: s.NegativeAppearances,
		Window:              time.Duration(s.WindowMS) * time.Millisecond,
		NegativeImages:      slices.Clone(s.NegativeImages),
		NeutralImages:       slices.Clone(s.NeutralImages),
	}
}

// Load reads configuration from path, or from ConfigPath when path is
// empty. A missing file yields the defaults.
// The format follows the extension; unknown extensions are tried as TOML,
// JSON and YAML in turn. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the export, storage and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Export.Dir}
	if c.Storage.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(expandPath(dir), 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies COGTASK_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("COGTASK_PARTICIPANT"); v != "" {
		c.Participant = v
	}
	if v := os.Getenv("COGTASK_START_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.NBack.StartN = n
		}
	}
	if v := os.Getenv("COGTASK_EXPORT_DIR"); v != "" {
		c.Export.Dir = v
	}
	if v := os.Getenv("COGTASK_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("COGTASK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("COGTASK_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("COGTASK_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("COGTASK_FLANKER_WORDS"); v != "" {
		c.Flanker.WordsPath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.NBack.IntervalsMS = slices.Clone(c.NBack.IntervalsMS)
	clone.Stroop.NegativeImages = slices.Clone(c.Stroop.NegativeImages)
	clone.Stroop.NeutralImages = slices.Clone(c.Stroop.NeutralImages)
	cat := &clone.NBack.Catalog
	cat.VisualNegative = slices.Clone(cat.VisualNegative)
	cat.VisualNeutral = slices.Clone(cat.VisualNeutral)
	cat.AudioNegative = slices.Clone(cat.AudioNegative)
	cat.AudioNeutral = slices.Clone(cat.AudioNeutral)
	return &clone
}

// ExportDir returns the expanded export directory.
func (c *Config) ExportDir() string {
	return expandPath(c.Export.Dir)
}

// DatabasePath returns the expanded database path, "" when disabled.
func (c *Config) DatabasePath() string {
	return expandPath(c.Storage.Path)
}
