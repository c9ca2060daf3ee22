// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// requestShutdownChan carries at most one shutdown request; further
// requests after the first are dropped since shutdown is already underway.
var requestShutdownChan = make(chan struct{})

var shutdownRequestOnce sync.Once

// requestShutdown signals the context returned by withShutdownCancel to
// cancel. Safe to call multiple times and from multiple goroutines.
func requestShutdown() {
	shutdownRequestOnce.Do(func() {
		close(requestShutdownChan)
	})
}

// withShutdownCancel returns a context that is cancelled either when
// requestShutdown is called or when parent is cancelled.
func withShutdownCancel(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-requestShutdownChan:
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx
}

// shutdownListener listens for SIGINT and SIGTERM and requests shutdown on
// either. It returns once a signal has been received, matching main's
// "go shutdownListener()" fire-and-forget usage.
func shutdownListener() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("Received signal (%s). Shutting down...", sig)
	requestShutdown()
}

// shutdownRequested returns true if ctx has been cancelled, the same
// early-exit check main uses between long-running setup steps.
func shutdownRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
