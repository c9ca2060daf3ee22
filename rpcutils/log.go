package rpcutils

import "github.com/decred/slog"

// log is the package-level logger for rpcutils, disabled until UseLogger
// is called by main's log setup (matches the per-subsystem logger wiring
// every other mempoolhub package follows).
var log = slog.Disabled

// UseLogger sets the package-wide logger used by rpcutils.
func UseLogger(logger slog.Logger) {
	log = logger
}
