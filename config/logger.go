package config

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/Swind/go-dispatch/core"
	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Logger is a core.Logger whose zerolog root can be swapped at runtime, so
// a reloaded log section takes effect on queues that already hold it.
type Logger struct {
	out  io.Writer
	root atomic.Pointer[zerolog.Logger]
}

var _ core.Logger = (*Logger)(nil)

// NewLogger builds a Logger writing to w (os.Stderr when nil).
func NewLogger(w io.Writer, cfg LogConfig) (*Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	l := &Logger{out: w}
	if err := l.Apply(cfg); err != nil {
		return nil, err
	}
	return l, nil
}

// Apply rebuilds the root logger from cfg. On error the current root is kept.
func (l *Logger) Apply(cfg LogConfig) error {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	w := l.out
	if !strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		w = zerolog.ConsoleWriter{Out: l.out, TimeFormat: consoleTimeFormat}
	}
	zl := zerolog.New(w).Level(lvl).With().Timestamp().Str("component", "dispatch").Logger()
	l.root.Store(&zl)
	return nil
}

// Level returns the level currently in effect.
func (l *Logger) Level() zerolog.Level {
	return l.root.Load().GetLevel()
}

func (l *Logger) current() *core.ZerologLogger {
	return core.NewZerologLogger(*l.root.Load())
}

func (l *Logger) Debug(msg string, fields ...core.Field) { l.current().Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...core.Field)  { l.current().Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...core.Field)  { l.current().Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...core.Field) { l.current().Error(msg, fields...) }
