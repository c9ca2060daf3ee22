// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

// Package fanout implements the Event Fan-Out Engine (spec section 4.2):
// on each upstream event it refreshes the Shared Snapshot, builds
// whatever per-event artifacts that event needs, and walks the live
// client set computing and sending a tailored response to each one via
// the Serialization Cache. It is the single-writer half of the
// concurrency model described in spec section 5: handlers run one at a
// time, serialized by engineMtx, so no upstream event interleaves a
// write to the Shared Snapshot mid-walk.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/blockwatch/mempoolhub/collab"
	"github.com/blockwatch/mempoolhub/config"
	"github.com/blockwatch/mempoolhub/pubsub/types"
	"github.com/blockwatch/mempoolhub/snapshot"
)

// Metrics is the optional observability hook an Engine reports client
// connect/disconnect and per-event latency to (see package metrics for
// the concrete Prometheus-backed implementation). A nil Metrics on
// Engine disables all reporting.
type Metrics interface {
	ClientConnected()
	ClientDisconnected()
	ObserveEvent(event string, elapsedSeconds float64)
}

// Client is the fan-out engine's view of one live connection: its session
// state plus a way to push a pre-serialized text frame. Send reports
// whether the frame was actually written; the caller performs the
// ready-state check before every send (spec section 5, "Cancellation") and
// simply skips clients that return false.
type Client interface {
	Session() *types.ClientSession
	Send(payload string) bool
}

// Engine holds the process-wide Shared Snapshot, the live client registry,
// and the external collaborators every event handler consults. Its
// exported Handle* methods are the entry points for upstream events;
// blockdata.ChainMonitor reaches HandleNewBlock and HandleReorg through the
// BlockDataSaver adapters in main.go.
type Engine struct {
	// engineMtx serializes event handlers, per spec section 5: "implementations
	// must serialize event handlers (mutex or single-writer queue)".
	engineMtx sync.Mutex

	clientsMtx sync.RWMutex
	clients    map[Client]struct{}

	Shared *snapshot.Shared

	Collab collab.Collaborators
	Cfg    *config.Config

	// Metrics is optional; see the Metrics interface.
	Metrics Metrics
}

// NewEngine constructs an Engine with an empty Shared Snapshot and client
// registry.
func NewEngine(collaborators collab.Collaborators, cfg *config.Config) *Engine {
	return &Engine{
		clients: make(map[Client]struct{}),
		Shared:  snapshot.New(),
		Collab:  collaborators,
		Cfg:     cfg,
	}
}

// Register adds a client to the live set, effective on the next event's
// snapshot of it.
func (e *Engine) Register(c Client) {
	e.clientsMtx.Lock()
	e.clients[c] = struct{}{}
	e.clientsMtx.Unlock()
	if e.Metrics != nil {
		e.Metrics.ClientConnected()
	}
}

// Unregister removes a client from the live set. The fan-out engine
// guarantees no further sends are attempted on it, though a handler
// already mid-walk may hold a reference from its own snapshot (spec
// section 5: "the client set is sampled at the start of fan-out").
func (e *Engine) Unregister(c Client) {
	e.clientsMtx.Lock()
	_, existed := e.clients[c]
	delete(e.clients, c)
	e.clientsMtx.Unlock()
	if existed && e.Metrics != nil {
		e.Metrics.ClientDisconnected()
	}
}

// observe reports an event's handling time to Metrics, if set. Callers
// defer observe(event, time.Now()) at the top of each Handle* method.
func (e *Engine) observe(event string, start time.Time) {
	if e.Metrics != nil {
		e.Metrics.ObserveEvent(event, time.Since(start).Seconds())
	}
}

// snapshotClients captures the live client set at the top of a handler, so
// a concurrent register/unregister never mutates the slice a handler is
// iterating.
func (e *Engine) snapshotClients() []Client {
	e.clientsMtx.RLock()
	defer e.clientsMtx.RUnlock()
	out := make([]Client, 0, len(e.clients))
	for c := range e.clients {
		out = append(out, c)
	}
	return out
}

// send writes payload to c if it is non-empty, silently skipping empty
// responses (a client that matched nothing for this event gets no frame
// at all rather than `{}`).
func send(c Client, payload string) {
	if payload == "" {
		return
	}
	c.Send(payload)
}

// ctxOrBackground is a small convenience used by handlers that are not
// themselves handed a usable context by their notification source (the
// main.go adapters that blockdata.ChainMonitor calls pass
// context.Background()).
func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
