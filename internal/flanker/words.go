package flanker

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WordList holds the stimulus words of the task.
type WordList struct {
	Negative []string `yaml:"negative" json:"negative"`
	Neutral  []string `yaml:"neutral" json:"neutral"`
}

// ParseWordCSV reads a two-column word table: negative words in the first
// column, neutral in the second. The first row is a header. Blank cells
// are skipped, so the columns may differ in length.
func ParseWordCSV(r io.Reader) (WordList, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var wl WordList
	header := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return WordList{}, fmt.Errorf("parse word csv: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(rec) < 2 {
			continue
		}
		if w := cleanCell(rec[0]); w != "" {
			wl.Negative = append(wl.Negative, w)
		}
		if w := cleanCell(rec[1]); w != "" {
			wl.Neutral = append(wl.Neutral, w)
		}
	}
	return wl, nil
}

func cleanCell(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

// LoadWordList reads a YAML word list.
func LoadWordList(path string) (WordList, error) {
	var wl WordList
	data, err := os.ReadFile(path)
	if err != nil {
		return wl, fmt.Errorf("read word list: %w", err)
	}
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return wl, fmt.Errorf("parse word list: %w", err)
	}
	if len(wl.Negative) == 0 && len(wl.Neutral) == 0 {
		return wl, errors.New("word list is empty")
	}
	return wl, nil
}

// SaveWordList writes wl as YAML.
func SaveWordList(path string, wl WordList) error {
	data, err := yaml.Marshal(wl)
	if err != nil {
		return fmt.Errorf("marshal word list: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ImportCSV converts a word CSV into a YAML word list.
func ImportCSV(csvPath, yamlPath string) (WordList, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return WordList{}, err
	}
	defer f.Close()

	wl, err := ParseWordCSV(f)
	if err != nil {
		return WordList{}, err
	}
	if err := SaveWordList(yamlPath, wl); err != nil {
		return WordList{}, err
	}
	return wl, nil
}

// DefaultWords is a small built-in list used when none is configured.
func DefaultWords() WordList {
	return WordList{
		Negative: []string{"死亡", "痛苦", "恐懼", "憤怒", "悲傷", "絕望", "災難", "仇恨"},
		Neutral:  []string{"桌子", "窗戶", "書本", "椅子", "道路", "杯子", "門口", "鉛筆"},
	}
}
