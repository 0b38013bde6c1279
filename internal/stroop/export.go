package stroop

import (
	"fmt"
	"strconv"
	"time"

	"cogtask/internal/export"
)

// Header is the column layout of stroop result files.
var Header = []string{"trialIndex", "type", "digit", "correctCount", "image", "imageType", "response", "isCorrect", "reactionTime"}

// FileName is the result file name of a participant block.
func FileName(started time.Time, participant string) string {
	return fmt.Sprintf("StroopResults_%s-%s.csv", started.Format(export.TimestampLayout), participant)
}

// Row renders r in Header order.
func (r Result) Row() []string {
	return []string{
		strconv.Itoa(r.Index),
		r.Kind.String(),
		strconv.Itoa(r.Digit),
		strconv.Itoa(r.CorrectCount()),
		r.Image,
		string(r.ImageValence),
		strconv.Itoa(r.Reported),
		export.FormatBool(r.Correct),
		export.FormatSeconds(r.RT),
	}
}

// WriteResults appends results to the table at path.
func WriteResults(path string, results []Result) error {
	t, err := export.OpenTable(path, Header)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := t.Append(r.Row()); err != nil {
			t.Close()
			return err
		}
	}
	return t.Close()
}
