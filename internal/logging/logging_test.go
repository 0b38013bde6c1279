package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for level, want := range map[Level]string{
		LevelDebug: "debug",
		LevelInfo:  "info",
		LevelWarn:  "warn",
		LevelError: "error",
	} {
		if got := LevelString(level); got != want {
			t.Errorf("LevelString(%v) = %q, want %q", level, got, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func newBufferLogger(t *testing.T, format Format) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = format
	cfg.Level = LevelDebug
	cfg.Writer = &buf
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l, &buf
}

func TestJSONOutput(t *testing.T) {
	l, buf := newBufferLogger(t, FormatJSON)
	l.Info("round started", "round", 2, "n", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if entry["msg"] != "round started" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "cogtask" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["n"] != float64(3) {
		t.Errorf("n = %v", entry["n"])
	}
}

func TestRedaction(t *testing.T) {
	l, buf := newBufferLogger(t, FormatJSON)
	l.Info("session started", "participant", "Alice", "Subject", "S-9", "round", 1)
	l.WithGroup("ctx").Info("nested", "participant_id", "P-3")

	out := buf.String()
	for _, secret := range []string{"Alice", "S-9", "P-3"} {
		if strings.Contains(out, secret) {
			t.Errorf("%q leaked into logs: %s", secret, out)
		}
	}
	if strings.Count(out, Redacted) != 3 {
		t.Errorf("expected 3 redactions: %s", out)
	}
	if !strings.Contains(out, `"round":1`) {
		t.Errorf("non-identifying attributes must be kept: %s", out)
	}
}

func TestCustomRedactKeys(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf
	cfg.RedactKeys = []string{"email"}
	l, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("x", "email", "a@b.c", "participant", "Alice")

	if strings.Contains(buf.String(), "a@b.c") {
		t.Error("email not redacted")
	}
	if !strings.Contains(buf.String(), "Alice") {
		t.Error("only configured keys are redacted")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf
	cfg.Level = LevelWarn
	l, _ := New(cfg)

	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestWithComponentAndSession(t *testing.T) {
	l, buf := newBufferLogger(t, FormatText)
	l.WithComponent("store").WithSession("abc").Info("saved")

	out := buf.String()
	if !strings.Contains(out, "component=store") {
		t.Errorf("missing component: %s", out)
	}
	if !strings.Contains(out, "session_id=abc") {
		t.Errorf("missing session id: %s", out)
	}
}

func TestSessionContext(t *testing.T) {
	ctx := ContextWithSessionID(context.Background(), "s-1")
	if got := SessionIDFromContext(ctx); got != "s-1" {
		t.Errorf("SessionIDFromContext = %q", got)
	}
	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context gave %q", got)
	}

	l, buf := newBufferLogger(t, FormatText)
	l.WithContext(ctx).Info("tick")
	if !strings.Contains(buf.String(), "session_id=s-1") {
		t.Errorf("context session id missing: %s", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "cogtask.log")

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("to file")
	if err := l.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file content: %s", data)
	}
}

func TestFileRotator_RotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.log")
	const backups = 2

	r, err := NewFileRotator(path, 1, backups)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 6; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	files := r.LogFiles()
	want := []string{path, filepath.Join(filepath.Dir(path), "r.1.log"), filepath.Join(filepath.Dir(path), "r.2.log")}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Fatalf("LogFiles() = %v, want %v", files, want)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "r.3.log")); !os.IsNotExist(err) {
		t.Errorf("backup beyond the limit kept: %v", err)
	}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() != int64(len(chunk)) {
			t.Errorf("%s size = %d, want one chunk", f, info.Size())
		}
	}
}

func TestFileRotator_NoBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solo.log")
	r, err := NewFileRotator(path, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	chunk := bytes.Repeat([]byte("y"), 700*1024)
	for i := 0; i < 3; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatal(err)
		}
	}
	if files := r.LogFiles(); len(files) != 1 {
		t.Errorf("LogFiles() = %v, want only the current file", files)
	}
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	l, buf := newBufferLogger(t, FormatText)
	SetDefault(l)
	slog.Info("via default", "k", "v")
	Default().Warn("also via default")
	if !strings.Contains(buf.String(), "via default") || !strings.Contains(buf.String(), "also via default") {
		t.Errorf("default logger not used: %s", buf.String())
	}
}
