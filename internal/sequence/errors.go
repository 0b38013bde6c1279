package sequence

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is against a *ConfigError.
var (
	ErrInvalidConfig        = errors.New("sequence: invalid config")
	ErrQuotaExceedsCapacity = errors.New("sequence: target quota exceeds eligible slots")
	ErrUnsatisfiable        = errors.New("sequence: constraints unsatisfiable within retry bounds")
)

// ErrorKind classifies a generation failure.
type ErrorKind int

const (
	// KindInvalidConfig is a malformed config (negative quota, N < 1, ...).
	KindInvalidConfig ErrorKind = iota + 1
	// KindQuotaExceedsCapacity means the quotas cannot fit in the eligible
	// slots. Reported before any random draw.
	KindQuotaExceedsCapacity
	// KindUnsatisfiable means the bounded randomized search was exhausted.
	KindUnsatisfiable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidConfig:
		return "invalid_config"
	case KindQuotaExceedsCapacity:
		return "quota_exceeds_capacity"
	case KindUnsatisfiable:
		return "unsatisfiable"
	default:
		return "unknown"
	}
}

// ConfigError is returned by Generate for every failure.
type ConfigError struct {
	Kind ErrorKind

	// Field names the offending config field for shape errors.
	Field string

	// Requested and Eligible are set for capacity errors.
	Requested int
	Eligible  int

	// Attempts is the number of outer attempts spent for unsatisfiable
	// configs.
	Attempts int

	Detail string
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case KindQuotaExceedsCapacity:
		return fmt.Sprintf("%v: requested %d targets, %d eligible slots", ErrQuotaExceedsCapacity, e.Requested, e.Eligible)
	case KindUnsatisfiable:
		if e.Detail != "" {
			return fmt.Sprintf("%v: %d attempts: %s", ErrUnsatisfiable, e.Attempts, e.Detail)
		}
		return fmt.Sprintf("%v: %d attempts", ErrUnsatisfiable, e.Attempts)
	default:
		return fmt.Sprintf("%v: %s: %s", ErrInvalidConfig, e.Field, e.Detail)
	}
}

// Unwrap exposes the sentinel for the error kind.
func (e *ConfigError) Unwrap() error {
	switch e.Kind {
	case KindQuotaExceedsCapacity:
		return ErrQuotaExceedsCapacity
	case KindUnsatisfiable:
		return ErrUnsatisfiable
	default:
		return ErrInvalidConfig
	}
}

// Fatal reports whether the failure is a configuration bug rather than
// bad luck in the randomized search.
func (e *ConfigError) Fatal() bool {
	return e.Kind != KindUnsatisfiable
}

// KindOf returns the kind of a generation error, or 0 if err is not a
// *ConfigError.
func KindOf(err error) ErrorKind {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
