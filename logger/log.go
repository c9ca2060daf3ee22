// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

// Package logger centralizes backend log setup for mempoolhub: a single
// decred/slog backend fed by both stdout and a rotating log file, with one
// subsystem logger per package registered through UseLogger, the same shape
// the teacher wires up for fnodata's own subsystems.
package logger

import (
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// logRotator rotates mempoolhub's log file once it has been initialized
// with InitLogRotator.
var logRotator *rotator.Rotator

// backendLog is the logging backend used to create all subsystem loggers.
var backendLog = slog.NewBackend(logWriter{})

// logWriter implements io.Writer, sending written bytes to both standard
// out and the log rotator, mirroring the teacher's own two-sink backend.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// subsystemLoggers tracks every logger created through NewSubLogger so that
// SetLogLevels can update them all at once.
var subsystemLoggers = make(map[string]slog.Logger)

// NewSubLogger creates and registers a new subsystem logger with the given
// tag, at the given starting level.
func NewSubLogger(tag string, level slog.Level) slog.Logger {
	l := backendLog.Logger(tag)
	l.SetLevel(level)
	subsystemLoggers[tag] = l
	return l
}

// SetLogLevel sets the logging level for the named subsystem. Subsystems
// not registered through NewSubLogger, and invalid level strings, are
// ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	level, ok := slog.LevelFromString(logLevel)
	if !ok {
		return
	}
	if l, ok := subsystemLoggers[subsystemID]; ok {
		l.SetLevel(level)
	}
}

// SetLogLevels sets the log level for every registered subsystem logger.
func SetLogLevels(logLevel string) {
	level, ok := slog.LevelFromString(logLevel)
	if !ok {
		return
	}
	for _, l := range subsystemLoggers {
		l.SetLevel(level)
	}
}

// InitLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. It must be called before
// the package-level log rotator variable is used, otherwise logs will
// only write to stdout.
func InitLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir == "" {
		logDir = "."
	}
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return err
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return err
	}
	logRotator = r
	return nil
}
