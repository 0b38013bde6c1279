package export

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"cogtask/internal/session"
	"cogtask/internal/trial"
)

//go:embed summary.schema.json
var summarySchema []byte

const summarySchemaURL = "summary.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource(summarySchemaURL, bytes.NewReader(summarySchema)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(summarySchemaURL)
	})
	return compiled, compileErr
}

// ValidateSummary checks an encoded summary against the summary schema.
func ValidateSummary(data []byte) error {
	sch, err := schema()
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("decode summary: %w", err)
	}
	if err := sch.Validate(instance); err != nil {
		return fmt.Errorf("summary schema: %w", err)
	}
	return nil
}

// EncodeSummary marshals s and validates the result.
func EncodeSummary(s session.Summary) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	if err := ValidateSummary(data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteSummary validates s and writes it to path atomically.
func WriteSummary(path string, s session.Summary) error {
	data, err := EncodeSummary(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename summary: %w", err)
	}
	return nil
}

// ReadSummary loads and validates a summary file.
func ReadSummary(path string) (session.Summary, error) {
	var s session.Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := ValidateSummary(data); err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode summary: %w", err)
	}
	return s, nil
}

// SummaryWriter writes the summary file when the session completes. It
// implements session.Sink.
type SummaryWriter struct {
	Path string
}

var _ session.Sink = (*SummaryWriter)(nil)

func (w *SummaryWriter) TrialCompleted(context.Context, session.RoundInfo, trial.Result) error {
	return nil
}

func (w *SummaryWriter) RoundCompleted(context.Context, session.RoundInfo, session.RoundSummary) error {
	return nil
}

func (w *SummaryWriter) SessionCompleted(_ context.Context, s session.Summary) error {
	return WriteSummary(w.Path, s)
}
