package export

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cogtask/internal/session"
	"cogtask/internal/trial"
)

// NBackHeader is the column layout of n-back result files.
var NBackHeader = []string{
	"trialIndex",
	"isVisualStimulus",
	"isAudioStimulus",
	"visualCorrect",
	"audioCorrect",
	"visualReactionTime",
	"audioReactionTime",
	"visualResultType",
	"audioResultType",
	"visualStimulusType",
	"audioStimulusType",
}

// TimestampLayout formats the session start in result file names.
const TimestampLayout = "20060102_150405"

// NBackFileName is the result file name of a participant session.
func NBackFileName(started time.Time, participant string) string {
	return fmt.Sprintf("NBackResults_%s-%s.csv", started.Format(TimestampLayout), participant)
}

// FormatBool renders a boolean the way result files spell it.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseBool accepts the spellings written by FormatBool.
func ParseBool(s string) (bool, error) {
	switch s {
	case "True":
		return true, nil
	case "False":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

// FormatSeconds renders a reaction time with the shortest single
// precision representation; no response is written as -1.
func FormatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 32)
}

// NBackRow renders one result in NBackHeader order.
func NBackRow(r trial.Result) []string {
	return []string{
		strconv.Itoa(r.TrialIndex),
		FormatBool(r.VisualIsTarget),
		FormatBool(r.AudioIsTarget),
		FormatBool(r.VisualCorrect),
		FormatBool(r.AudioCorrect),
		FormatSeconds(r.VisualRT),
		FormatSeconds(r.AudioRT),
		r.VisualOutcome.String(),
		r.AudioOutcome.String(),
		string(r.VisualValence),
		string(r.AudioValence),
	}
}

// ParseNBackRow is the inverse of NBackRow. Round is not part of the row.
func ParseNBackRow(row []string) (trial.Result, error) {
	var r trial.Result
	if len(row) != len(NBackHeader) {
		return r, fmt.Errorf("row has %d columns, want %d", len(row), len(NBackHeader))
	}

	var err error
	if r.TrialIndex, err = strconv.Atoi(row[0]); err != nil {
		return r, fmt.Errorf("trialIndex: %w", err)
	}
	bools := []*bool{&r.VisualIsTarget, &r.AudioIsTarget, &r.VisualCorrect, &r.AudioCorrect}
	for i, dst := range bools {
		if *dst, err = ParseBool(row[1+i]); err != nil {
			return r, fmt.Errorf("%s: %w", NBackHeader[1+i], err)
		}
	}
	if r.VisualRT, err = strconv.ParseFloat(row[5], 32); err != nil {
		return r, fmt.Errorf("visualReactionTime: %w", err)
	}
	if r.AudioRT, err = strconv.ParseFloat(row[6], 32); err != nil {
		return r, fmt.Errorf("audioReactionTime: %w", err)
	}
	if r.VisualOutcome, err = trial.ParseOutcome(row[7]); err != nil {
		return r, fmt.Errorf("visualResultType: %w", err)
	}
	if r.AudioOutcome, err = trial.ParseOutcome(row[8]); err != nil {
		return r, fmt.Errorf("audioResultType: %w", err)
	}
	r.VisualValence = trial.Valence(row[9])
	r.AudioValence = trial.Valence(row[10])
	return r, nil
}

// ReadNBack parses an n-back result file.
func ReadNBack(rd io.Reader) ([]trial.Result, error) {
	rows, err := ReadTable(rd, NBackHeader)
	if err != nil {
		return nil, err
	}
	out := make([]trial.Result, 0, len(rows))
	for i, row := range rows {
		r, err := ParseNBackRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// NBackWriter appends n-back results as they complete. It implements
// session.Sink.
type NBackWriter struct {
	*Table
}

var _ session.Sink = (*NBackWriter)(nil)

// OpenNBack creates the result file of a new participant session under
// dir. A session started in the same second as an earlier one gets a
// numbered name instead of sharing its file.
func OpenNBack(dir string, started time.Time, participant string) (*NBackWriter, error) {
	t, err := CreateUnique(filepath.Join(dir, NBackFileName(started, participant)), NBackHeader)
	if err != nil {
		return nil, err
	}
	return &NBackWriter{Table: t}, nil
}

// SummaryPath is the summary file that belongs next to this result file.
func (w *NBackWriter) SummaryPath() string {
	dir, name := filepath.Split(w.Path())
	name = strings.TrimSuffix(name, filepath.Ext(name)) + ".json"
	return filepath.Join(dir, strings.Replace(name, "NBackResults_", "NBackSummary_", 1))
}

// OpenNBackFile opens an n-back result file at path for appending.
func OpenNBackFile(path string) (*NBackWriter, error) {
	t, err := OpenTable(path, NBackHeader)
	if err != nil {
		return nil, err
	}
	return &NBackWriter{Table: t}, nil
}

// Write appends one result.
func (w *NBackWriter) Write(r trial.Result) error {
	return w.Append(NBackRow(r))
}

func (w *NBackWriter) TrialCompleted(_ context.Context, _ session.RoundInfo, r trial.Result) error {
	return w.Write(r)
}

func (w *NBackWriter) RoundCompleted(context.Context, session.RoundInfo, session.RoundSummary) error {
	return nil
}

func (w *NBackWriter) SessionCompleted(context.Context, session.Summary) error {
	return w.Sync()
}

// SanitizeParticipant keeps participant ids safe for use in file names.
func SanitizeParticipant(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "anonymous"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
