package flanker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cogtask/internal/export"
	"cogtask/internal/sequence"
)

func TestParseWordCSV(t *testing.T) {
	in := "negative,neutral\n" +
		"死亡,桌子\n" +
		"\"痛苦, 很深\",  窗戶 \n" +
		"恐懼,\n" +
		",書本\n" +
		"\n" +
		"lonely\n"

	wl, err := ParseWordCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"死亡", "痛苦, 很深", "恐懼"}, wl.Negative)
	assert.Equal(t, []string{"桌子", "窗戶", "書本"}, wl.Neutral)
}

func TestWordListYAML(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "words.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("neg,neu\na,b\nc,d\n"), 0o644))

	yamlPath := filepath.Join(dir, "out", "words.yaml")
	wl, err := ImportCSV(csvPath, yamlPath)
	require.NoError(t, err)

	loaded, err := LoadWordList(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, wl, loaded)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("negative: []\n"), 0o644))
	_, err = LoadWordList(empty)
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	cfg := DefaultConfig()
	trials, err := Build(DefaultWords(), cfg, sequence.NewSource(3))
	require.NoError(t, err)
	require.Len(t, trials, 20)

	neg, red := 0, 0
	negSet := make(map[string]bool)
	for _, w := range DefaultWords().Negative {
		negSet[w] = true
	}
	for i, tr := range trials {
		assert.Equal(t, i, tr.Index)
		assert.Equal(t, tr.Negative, negSet[tr.Word])
		if tr.Negative {
			neg++
		}
		if tr.Color == Red {
			red++
		}
	}
	assert.Equal(t, 10, neg)
	assert.Greater(t, red, 0)
	assert.Less(t, red, 20)

	again, err := Build(DefaultWords(), cfg, sequence.NewSource(3))
	require.NoError(t, err)
	assert.Equal(t, trials, again)
}

func TestBuild_InvalidConfig(t *testing.T) {
	_, err := Build(DefaultWords(), Config{Total: 5, Negative: 6, ResponseLimit: time.Second}, sequence.NewSource(1))
	assert.Error(t, err)

	_, err = Build(WordList{Neutral: []string{"x"}}, Config{Total: 5, Negative: 1, ResponseLimit: time.Second}, sequence.NewSource(1))
	assert.Error(t, err)

	trials, err := Build(WordList{Neutral: []string{"x"}}, Config{Total: 3, ResponseLimit: time.Second}, sequence.NewSource(1))
	require.NoError(t, err)
	assert.Len(t, trials, 3)
}

func TestScore(t *testing.T) {
	limit := 2 * time.Second
	red := Trial{Word: "死亡", Negative: true, Color: Red}
	green := Trial{Word: "桌子", Color: Green}

	r := Score(red, KeyO, 450*time.Millisecond, limit)
	assert.Equal(t, Correct, r.Outcome)
	assert.InDelta(t, 0.45, r.RT, 1e-9)

	r = Score(green, KeyO, time.Second, limit)
	assert.Equal(t, Incorrect, r.Outcome)

	r = Score(green, KeyP, limit, limit)
	assert.Equal(t, NoResponse, r.Outcome, "press at the limit is too late")
	assert.Equal(t, -1.0, r.RT)

	r = Score(green, Key("Q"), time.Second, limit)
	assert.Equal(t, NoResponse, r.Outcome)
	assert.Equal(t, KeyNone, r.Response)
}

func TestSummarize(t *testing.T) {
	results := []Result{
		{Trial: Trial{Negative: true}, Outcome: Correct, RT: 0.6},
		{Trial: Trial{Negative: true}, Outcome: Correct, RT: 0.8},
		{Trial: Trial{}, Outcome: Correct, RT: 0.5},
		{Trial: Trial{}, Outcome: Incorrect, RT: 0.4},
		{Trial: Trial{}, Outcome: NoResponse, RT: -1},
	}
	s := Summarize(results)
	assert.Equal(t, 3, s.Correct)
	assert.Equal(t, 1, s.Incorrect)
	assert.Equal(t, 1, s.NoResponse)
	assert.InDelta(t, 0.7, s.MeanRTNegative, 1e-9)
	assert.InDelta(t, 0.5, s.MeanRTNeutral, 1e-9)
}

func TestWriteResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), "P9"))
	assert.True(t, strings.HasSuffix(path, "FlankerResults_20260102_030405-P9.csv"))

	results := []Result{
		Score(Trial{Index: 0, Word: "死亡", Negative: true, Color: Red}, KeyO, 500*time.Millisecond, 2*time.Second),
		Score(Trial{Index: 1, Word: "桌子", Color: Green}, KeyNone, 0, 2*time.Second),
	}
	require.NoError(t, WriteResults(path, results))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "trialIndex,word,isNegative,color,response,resultType,reactionTime\n" +
		"0,死亡,True,Red,O,Correct,0.5\n" +
		"1,桌子,False,Green,,NoResponse,-1\n"
	assert.Equal(t, want, string(data))

	rows, err := export.ReadTable(strings.NewReader(want), Header)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
