// Package logging builds the process logger: zerolog writing to rotating
// per-level files, plus a colored console in development.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// File rotation limits.
const (
	MaxSizeMB  = 20
	MaxAgeDays = 14
)

// Options configure New.
type Options struct {
	// Env is development, test or production.
	Env string
	// Level overrides the environment default (debug in development,
	// info otherwise).
	Level string
	// Dir holds the error/ and info/ log directories.
	Dir string
	// Console receives the development console output. Defaults to stdout.
	Console io.Writer
}

// Logger is a zerolog.Logger that owns its log files.
type Logger struct {
	zerolog.Logger

	files []*lumberjack.Logger
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// New creates the logger and starts the daily rotation.
func New(opts Options) (*Logger, error) {
	level, err := resolveLevel(opts.Env, opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}

	l := &Logger{stop: make(chan struct{})}
	production := opts.Env == "production"

	var writers []io.Writer
	for _, sink := range []struct {
		name string
		min  zerolog.Level
	}{
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
	} {
		dir := filepath.Join(opts.Dir, sink.name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f := &lumberjack.Logger{
			Filename: filepath.Join(dir, sink.name+".log"),
			MaxSize:  MaxSizeMB,
			MaxAge:   MaxAgeDays,
		}
		l.files = append(l.files, f)

		var out io.Writer = f
		if !production {
			out = zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339}
		}
		writers = append(writers, MinLevel(out, sink.min))
	}

	if opts.Env == "development" {
		writers = append(writers, zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: time.RFC3339})
	}

	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()

	l.wg.Add(1)
	go l.rotateDaily()

	return l, nil
}

func resolveLevel(env, override string) (zerolog.Level, error) {
	if override != "" {
		level, err := zerolog.ParseLevel(override)
		if err != nil {
			return zerolog.NoLevel, fmt.Errorf("invalid log level %q", override)
		}
		return level, nil
	}
	if env == "development" {
		return zerolog.DebugLevel, nil
	}
	return zerolog.InfoLevel, nil
}

// rotateDaily rotates every file at local midnight until Close.
func (l *Logger) rotateDaily() {
	defer l.wg.Done()
	for {
		timer := time.NewTimer(untilMidnight(time.Now()))
		select {
		case <-l.stop:
			timer.Stop()
			return
		case <-timer.C:
			l.Rotate()
		}
	}
}

func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}

// Rotate starts new files for every sink.
func (l *Logger) Rotate() {
	for _, f := range l.files {
		if err := f.Rotate(); err != nil {
			l.Error().Err(err).Str("file", f.Filename).Msg("log rotation failed")
		}
	}
}

// Close stops rotation and closes the files. Safe to call more than once.
func (l *Logger) Close() error {
	var firstErr error
	l.once.Do(func() {
		close(l.stop)
		l.wg.Wait()
		for _, f := range l.files {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

// levelWriter drops events below min.
type levelWriter struct {
	w   io.Writer
	min zerolog.Level
}

// MinLevel wraps w so that only events at or above min reach it.
func MinLevel(w io.Writer, min zerolog.Level) zerolog.LevelWriter {
	return levelWriter{w: w, min: min}
}

func (lw levelWriter) Write(p []byte) (int, error) {
	return lw.w.Write(p)
}

func (lw levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < lw.min {
		return len(p), nil
	}
	return lw.w.Write(p)
}
