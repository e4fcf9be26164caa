package config

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// NewLogger returns the program logger: informational messages to stdout,
// errors to stderr, colored when attached to a terminal. level is one of
// none, normal, debug.
func NewLogger(level, name string) *zap.Logger {
	lowest := zapcore.InfoLevel
	switch level {
	case "none":
		return zap.NewNop()
	case "debug":
		lowest = zapcore.DebugLevel
	}

	encoder := func(f *os.File) zapcore.Encoder {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeCaller = nil
		if term.IsTerminal(int(f.Fd())) {
			ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
			ec.TimeKey = zapcore.OmitKey
		} else {
			ec.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		return zapcore.NewConsoleEncoder(ec)
	}

	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lowest <= lvl && lvl < zapcore.ErrorLevel
	})
	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(encoder(os.Stdout), zapcore.Lock(os.Stdout), lowPriority),
		zapcore.NewCore(encoder(os.Stderr), zapcore.Lock(os.Stderr), highPriority),
	)
	return zap.New(core).Named(name)
}
