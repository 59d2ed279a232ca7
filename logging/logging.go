// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging wires go.uber.org/zap into the sequencer, replica, and
// client processes. Every long-lived component is handed a *zap.Logger at
// construction time instead of reaching for a global.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level aliases the zapcore level type so callers don't need to import zap
// directly just to set verbosity.
type Level = zapcore.Level

const (
	Debug Level = zapcore.DebugLevel
	Info  Level = zapcore.InfoLevel
	Warn  Level = zapcore.WarnLevel
	Error Level = zapcore.ErrorLevel
)

// Config controls the shape of the constructed logger.
type Config struct {
	Level      Level
	Production bool // JSON encoding, ISO8601 timestamps; false = console encoding for dev
}

// DefaultConfig returns console-encoded, info-level logging, suitable for
// interactive use of the cmd/* binaries.
func DefaultConfig() Config {
	return Config{Level: Info, Production: false}
}

// New builds a *zap.Logger per Config. Hot-path call sites (replica loop,
// transport workers) must use structured fields, never fmt.Sprintf, to keep
// allocation off the critical path.
func New(name string, cfg Config) *zap.Logger {
	var zcfg zap.Config
	if cfg.Production {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(cfg.Level)
	zcfg.OutputPaths = []string{"stderr"}

	logger, err := zcfg.Build()
	if err != nil {
		// Build only fails on a malformed config; that's a programmer error,
		// not a runtime condition worth propagating through every caller.
		fallback := zap.NewNop()
		fallback.Error("failed to build logger, falling back to no-op", zap.Error(err))
		return fallback
	}
	if name != "" {
		logger = logger.Named(name)
	}
	return logger
}

// Nop returns a logger that discards everything, used as the default in
// tests and as a safe zero value.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// MustParseLevel is used by cmd/* flag parsing; exits with status 2 on an
// unrecognized level string, matching cobra's own flag-error convention.
func MustParseLevel(s string) Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		os.Stderr.WriteString("invalid log level " + s + "\n")
		os.Exit(2)
	}
	return lvl
}
