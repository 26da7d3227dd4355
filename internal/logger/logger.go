// Package logger builds the zap loggers used across fpoadmin and adapts them
// to the small key/value Logger interfaces the packages accept.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is satisfied by the package-local logger interfaces of core,
// editor and gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New builds a logger. level is debug, info, warn or error; format is json
// or console. The returned AtomicLevel changes the level at runtime.
func New(level, format string) (*zap.Logger, zap.AtomicLevel, error) {
	atomicLevel := zap.NewAtomicLevel()
	if level != "" {
		if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, atomicLevel, fmt.Errorf("parse log level %q: %w", level, err)
		}
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, atomicLevel, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = atomicLevel

	logger, err := cfg.Build()
	if err != nil {
		return nil, atomicLevel, fmt.Errorf("build logger: %w", err)
	}
	return logger, atomicLevel, nil
}

// Adapt wraps a zap logger as a key/value Logger. A nil logger discards.
func Adapt(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return sugared{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

type sugared struct {
	s *zap.SugaredLogger
}

func (a sugared) Debug(msg string, args ...any) { a.s.Debugw(msg, args...) }
func (a sugared) Info(msg string, args ...any)  { a.s.Infow(msg, args...) }
func (a sugared) Warn(msg string, args ...any)  { a.s.Warnw(msg, args...) }
func (a sugared) Error(msg string, args ...any) { a.s.Errorw(msg, args...) }
