package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestNew_Production_SplitsByLevel(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	l, err := New(Options{Env: "production", Dir: dir, Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Debug().Msg("debug message")
	l.Info().Msg("info message")
	l.Error().Msg("error message")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info := readFile(t, filepath.Join(dir, "info", "info.log"))
	errs := readFile(t, filepath.Join(dir, "error", "error.log"))

	if strings.Contains(info, "debug message") {
		t.Error("debug should be filtered at info level in production")
	}
	if !strings.Contains(info, `"message":"info message"`) || !strings.Contains(info, "error message") {
		t.Errorf("info.log = %q, want JSON info and error lines", info)
	}
	if strings.Contains(errs, "info message") || !strings.Contains(errs, "error message") {
		t.Errorf("error.log = %q, want only error lines", errs)
	}
	if console.Len() != 0 {
		t.Errorf("production should not write to the console, got %q", console.String())
	}
}

func TestNew_Development_Console(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	l, err := New(Options{Env: "development", Dir: dir, Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug().Msg("visible in dev")
	l.Info().Msg("info line")
	l.Close()

	if !strings.Contains(console.String(), "visible in dev") {
		t.Errorf("console = %q, want debug line", console.String())
	}
	info := readFile(t, filepath.Join(dir, "info", "info.log"))
	if !strings.Contains(info, "info line") || strings.HasPrefix(strings.TrimSpace(info), "{") {
		t.Errorf("development files should use the console format, got %q", info)
	}
}

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		env, override string
		want          zerolog.Level
	}{
		{"development", "", zerolog.DebugLevel},
		{"production", "", zerolog.InfoLevel},
		{"test", "", zerolog.InfoLevel},
		{"production", "warn", zerolog.WarnLevel},
	}
	for _, tt := range tests {
		got, err := resolveLevel(tt.env, tt.override)
		if err != nil {
			t.Fatalf("resolveLevel(%q, %q): %v", tt.env, tt.override, err)
		}
		if got != tt.want {
			t.Errorf("resolveLevel(%q, %q) = %v, want %v", tt.env, tt.override, got, tt.want)
		}
	}

	if _, err := resolveLevel("production", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestUntilMidnight(t *testing.T) {
	now := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	if got := untilMidnight(now); got != 30*time.Minute {
		t.Errorf("untilMidnight = %v, want 30m", got)
	}
}

func TestClose_Twice(t *testing.T) {
	l, err := New(Options{Env: "test", Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestMinLevel(t *testing.T) {
	var buf bytes.Buffer
	w := MinLevel(&buf, zerolog.WarnLevel)

	w.WriteLevel(zerolog.InfoLevel, []byte("info\n"))
	w.WriteLevel(zerolog.ErrorLevel, []byte("error\n"))

	if buf.String() != "error\n" {
		t.Errorf("buffer = %q, want only the error line", buf.String())
	}
}
