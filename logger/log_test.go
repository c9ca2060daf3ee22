package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/decred/slog"
)

func Test_NewSubLogger_RegistersAtGivenLevel(t *testing.T) {
	l := NewSubLogger("TEST1", slog.LevelDebug)
	if l.Level() != slog.LevelDebug {
		t.Fatalf("Level() = %v, want %v", l.Level(), slog.LevelDebug)
	}
	if subsystemLoggers["TEST1"].Level() != slog.LevelDebug {
		t.Fatalf("expected logger to be registered in subsystemLoggers")
	}
}

func Test_SetLogLevel_KnownSubsystem(t *testing.T) {
	NewSubLogger("TEST2", slog.LevelInfo)
	SetLogLevel("TEST2", "debug")
	if subsystemLoggers["TEST2"].Level() != slog.LevelDebug {
		t.Fatalf("expected TEST2 level to become debug")
	}
}

func Test_SetLogLevel_UnknownSubsystem_NoPanic(t *testing.T) {
	// Must be a no-op, not a panic, for a subsystem that was never
	// registered via NewSubLogger.
	SetLogLevel("DOES-NOT-EXIST", "debug")
}

func Test_SetLogLevel_InvalidLevel_Ignored(t *testing.T) {
	NewSubLogger("TEST3", slog.LevelInfo)
	SetLogLevel("TEST3", "not-a-real-level")
	if subsystemLoggers["TEST3"].Level() != slog.LevelInfo {
		t.Fatalf("expected an invalid level string to leave TEST3 unchanged")
	}
}

func Test_SetLogLevels_UpdatesEveryRegisteredLogger(t *testing.T) {
	NewSubLogger("TEST4A", slog.LevelInfo)
	NewSubLogger("TEST4B", slog.LevelInfo)
	SetLogLevels("warn")

	if subsystemLoggers["TEST4A"].Level() != slog.LevelWarn {
		t.Fatalf("expected TEST4A level to become warn")
	}
	if subsystemLoggers["TEST4B"].Level() != slog.LevelWarn {
		t.Fatalf("expected TEST4B level to become warn")
	}
}

func Test_InitLogRotator_CreatesLogDirAndFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "nested", "mempoolhub.log")

	if err := InitLogRotator(logFile); err != nil {
		t.Fatalf("InitLogRotator: %v", err)
	}
	t.Cleanup(func() { logRotator = nil })

	if _, err := os.Stat(filepath.Join(dir, "nested")); err != nil {
		t.Fatalf("expected the log directory to be created: %v", err)
	}
}
