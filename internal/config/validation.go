package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidConfig matches any ValidationErrors holding an error with
// errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError is one problem with one field. Warnings do not stop
// a config from loading.
type ValidationError struct {
	Field   string
	Message string
	Warning bool
}

func (e *ValidationError) Error() string {
	kind := "config"
	if e.Warning {
		kind = "config warning"
	}
	return fmt.Sprintf("%s: %s: %s", kind, e.Field, e.Message)
}

// IsWarning reports whether the issue is non-fatal.
func (e *ValidationError) IsWarning() bool { return e.Warning }

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && e.HasErrors()
}

func (e ValidationErrors) filter(warning bool) ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.Warning == warning {
			out = append(out, v)
		}
	}
	return out
}

func (e ValidationErrors) Warnings() ValidationErrors { return e.filter(true) }
func (e ValidationErrors) Errors() ValidationErrors   { return e.filter(false) }
func (e ValidationErrors) HasErrors() bool            { return len(e.Errors()) > 0 }

func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "required field is missing"}
}

func RangeError(field string, lo, hi any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf("value must be between %v and %v", lo, hi)}
}

// ValidateConfig validates every section. Only errors are returned; use
// CheckConfig to see warnings as well.
func ValidateConfig(c *Config) error {
	errs := CheckConfig(c).Errors()
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CheckConfig returns every problem found, warnings included.
func CheckConfig(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}
	if strings.TrimSpace(c.Participant) == "" {
		errs = append(errs, *RequiredFieldError("participant"))
	}

	errs = append(errs, validateNBack(&c.NBack)...)
	errs = append(errs, validateFlanker(&c.Flanker)...)
	errs = append(errs, validateStroop(&c.Stroop)...)
	errs = append(errs, validateExport(&c.Export)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	return errs
}

func validateNBack(n *NBackConfig) ValidationErrors {
	var errs ValidationErrors

	if n.Rounds < 1 {
		errs = append(errs, ValidationError{Field: "nback.rounds", Message: "at least one round is required"})
	}
	if n.BaseTrials < 1 {
		errs = append(errs, ValidationError{Field: "nback.base_trials", Message: "must be at least 1"})
	}
	if n.MinN < 1 || n.MaxN < n.MinN {
		errs = append(errs, ValidationError{
			Field:   "nback.min_n",
			Message: fmt.Sprintf("n range [%d,%d] is empty or below 1", n.MinN, n.MaxN),
		})
	} else if n.StartN < n.MinN || n.StartN > n.MaxN {
		errs = append(errs, *RangeError("nback.start_n", n.MinN, n.MaxN))
	}
	if n.TargetsBoth < 0 || n.TargetsVisual < 0 || n.TargetsAudio < 0 {
		errs = append(errs, ValidationError{Field: "nback.targets", Message: "target quotas cannot be negative"})
	}
	if n.VisualPool < 0 || n.AudioPool < 0 {
		errs = append(errs, ValidationError{Field: "nback.pool", Message: "pool sizes cannot be negative"})
	}
	if len(n.IntervalsMS) == 0 {
		errs = append(errs, *RequiredFieldError("nback.intervals_ms"))
	}
	for _, ms := range n.IntervalsMS {
		if ms <= 0 {
			errs = append(errs, ValidationError{Field: "nback.intervals_ms", Message: "intervals must be positive"})
			break
		}
	}
	if n.WaitSec < 0 || n.RestSec < 0 {
		errs = append(errs, ValidationError{Field: "nback.rest_sec", Message: "wait and rest cannot be negative"})
	}
	if n.Threshold < 0 || n.Threshold > 1 {
		errs = append(errs, *RangeError("nback.threshold", 0, 1))
	}
	if n.NegativeVisual < 0 || n.NegativeAudio < 0 {
		errs = append(errs, ValidationError{Field: "nback.negative", Message: "negative caps cannot be negative"})
	}
	if n.MaxAttempts < 0 || n.MaxRedraws < 0 {
		errs = append(errs, ValidationError{Field: "nback.max_attempts", Message: "search bounds cannot be negative"})
	}
	if len(errs) > 0 {
		return errs
	}

	// The shape is sound; check every reachable n can be generated.
	if err := n.Protocol().Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "nback", Message: err.Error()})
	}
	if err := n.StimulusCatalog().Check(n.Protocol()); err != nil {
		errs = append(errs, ValidationError{Field: "nback.catalog", Message: err.Error()})
	}
	return errs
}

func validateFlanker(f *FlankerConfig) ValidationErrors {
	var errs ValidationErrors

	if f.Trials < 1 {
		errs = append(errs, ValidationError{Field: "flanker.trials", Message: "must be at least 1"})
	}
	if f.Negative < 0 || f.Negative > f.Trials {
		errs = append(errs, *RangeError("flanker.negative", 0, f.Trials))
	}
	if f.ResponseLimitMS <= 0 {
		errs = append(errs, ValidationError{Field: "flanker.response_limit_ms", Message: "must be positive"})
	}
	if f.InterTrialMS < 0 {
		errs = append(errs, ValidationError{Field: "flanker.inter_trial_ms", Message: "cannot be negative"})
	}
	if f.WordsPath != "" {
		if _, err := os.Stat(expandPath(f.WordsPath)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "flanker.words_path",
				Message: fmt.Sprintf("word list not readable, built-in words will be used: %v", err),
				Warning: true,
			})
		}
	}
	return errs
}

func validateStroop(s *StroopConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Congruent < 0 || s.Incongruent < 0 || s.Stars < 0 {
		errs = append(errs, ValidationError{Field: "stroop.counts", Message: "item counts cannot be negative"})
	}
	total := s.Congruent + s.Incongruent + s.Stars
	if total == 0 {
		errs = append(errs, ValidationError{Field: "stroop.counts", Message: "at least one item is required"})
	}
	if s.NegativeAppearances < 0 || s.NegativeAppearances > total {
		errs = append(errs, *RangeError("stroop.negative_appearances", 0, total))
	}
	if s.WindowMS <= 0 {
		errs = append(errs, ValidationError{Field: "stroop.window_ms", Message: "must be positive"})
	}
	return errs
}

func validateExport(e *ExportConfig) ValidationErrors {
	var errs ValidationErrors
	if e.Dir == "" {
		errs = append(errs, *RequiredFieldError("export.dir"))
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file' or 'both'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "max size must be at least 1 MB"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "max backups cannot be negative"})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors
	if m.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Addr); err != nil {
		errs = append(errs, ValidationError{Field: "metrics.addr", Message: err.Error()})
	}
	return errs
}

func expandPath(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
