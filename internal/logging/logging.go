// Package logging builds the zap loggers used by the command line tools.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LevelDebug enables verbose per-operation logging.
	LevelDebug = "debug"

	// LevelInfo is the default command line level.
	LevelInfo = "info"

	// LevelNone disables logging entirely.
	LevelNone = "none"
)

// New returns a console logger writing to stderr at the given level, or a
// no-op logger for LevelNone. Any level zap understands ("debug", "info",
// "warn", "error") is accepted.
func New(level string) (*zap.Logger, error) {
	if level == LevelNone {
		return zap.NewNop(), nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	return cfg.Build()
}

// MustNew returns New's logger and panics on an unknown level. Intended for
// wiring done before flag parsing has any chance to reject bad input.
func MustNew(level string) *zap.Logger {
	l, err := New(level)
	if err != nil {
		panic(err)
	}

	return l
}
