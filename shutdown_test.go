// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

package main

import (
	"context"
	"testing"
	"time"
)

func Test_shutdownRequested_FalseUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if shutdownRequested(ctx) {
		t.Fatalf("expected shutdownRequested to be false before cancellation")
	}
	cancel()
	if !shutdownRequested(ctx) {
		t.Fatalf("expected shutdownRequested to be true after cancellation")
	}
}

func Test_withShutdownCancel_ParentCancelPropagates(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx := withShutdownCancel(parent)

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected derived context to be cancelled when parent is cancelled")
	}
}

// Test_requestShutdown_CancelsDerivedContext exercises requestShutdown,
// which closes the package-level requestShutdownChan exactly once for the
// lifetime of the process. It must run after any other test that relies on
// that channel still being open, so it's kept last in this file.
func Test_requestShutdown_CancelsDerivedContext(t *testing.T) {
	ctx := withShutdownCancel(context.Background())

	requestShutdown()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected requestShutdown to cancel the derived context")
	}

	// Safe to call again; shutdownRequestOnce must prevent a second close
	// of requestShutdownChan (which would otherwise panic).
	requestShutdown()
}
