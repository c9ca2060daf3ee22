package pricefeed

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the package-wide logger used by pricefeed.
func UseLogger(logger slog.Logger) {
	log = logger
}
