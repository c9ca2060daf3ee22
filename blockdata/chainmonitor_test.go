package blockdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/blockwatch/mempoolhub/collab"
)

type fakeSaver struct {
	mtx    sync.Mutex
	stored []*collab.Block
	err    error
}

func (s *fakeSaver) Store(data *collab.Block, msgBlock *btcjson.GetBlockVerboseTxResult) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.stored = append(s.stored, data)
	return s.err
}

func (s *fakeSaver) count() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.stored)
}

// Test_store_SkipsNilSavers_ReturnsLastError covers ChainMonitor.store: a
// nil entry in the savers slice must not panic, every non-nil saver must
// be invoked regardless of an earlier one's error, and the last error seen
// is what's returned.
func Test_store_SkipsNilSavers_ReturnsLastError(t *testing.T) {
	ok := &fakeSaver{}
	failing := &fakeSaver{err: errors.New("boom")}

	p := &ChainMonitor{}
	savers := []BlockDataSaver{ok, nil, failing}

	err := p.store(savers, &collab.Block{Height: 1}, nil)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected the failing saver's error, got %v", err)
	}
	if ok.count() != 1 {
		t.Fatalf("expected the ok saver to be called once, got %d", ok.count())
	}
	if failing.count() != 1 {
		t.Fatalf("expected the failing saver to be called once, got %d", failing.count())
	}
}

func Test_store_AllSaversSucceed_ReturnsNil(t *testing.T) {
	a, b := &fakeSaver{}, &fakeSaver{}
	p := &ChainMonitor{}

	err := p.store([]BlockDataSaver{a, b}, &collab.Block{Height: 2}, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

// Test_BlockConnectedHandler_ExitsOnChannelClose covers the handler's
// shutdown path when its input channel is closed, without ever touching
// the node RPC connection (no hash is ever sent).
func Test_BlockConnectedHandler_ExitsOnChannelClose(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	blockChan := make(chan *chainhash.Hash)
	p := NewChainMonitor(context.Background(), nil, nil, nil, &wg, blockChan, nil)

	done := make(chan struct{})
	go func() {
		p.BlockConnectedHandler()
		close(done)
	}()

	close(blockChan)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("BlockConnectedHandler did not exit after its channel closed")
	}
}

// Test_BlockConnectedHandler_ExitsOnContextCancel covers the handler's
// shutdown path when its context is cancelled.
func Test_BlockConnectedHandler_ExitsOnContextCancel(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	blockChan := make(chan *chainhash.Hash)
	p := NewChainMonitor(ctx, nil, nil, nil, &wg, blockChan, nil)

	done := make(chan struct{})
	go func() {
		p.BlockConnectedHandler()
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("BlockConnectedHandler did not exit after context cancellation")
	}
}

// Test_ReorgHandler_ExitsOnChannelClose mirrors the block-connected case
// for the reorg notification handler.
func Test_ReorgHandler_ExitsOnChannelClose(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	reorgChan := make(chan *ReorgData)
	p := NewChainMonitor(context.Background(), nil, nil, nil, &wg, nil, reorgChan)

	done := make(chan struct{})
	go func() {
		p.ReorgHandler()
		close(done)
	}()

	close(reorgChan)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("ReorgHandler did not exit after its channel closed")
	}
}

// Test_ReorgHandler_NilReorgData_DoesNotPanic covers the defensive nil
// check: a nil *ReorgData on the channel must be skipped, not dereferenced.
func Test_ReorgHandler_NilReorgData_DoesNotPanic(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	reorgChan := make(chan *ReorgData, 1)
	p := NewChainMonitor(context.Background(), nil, nil, nil, &wg, nil, reorgChan)

	done := make(chan struct{})
	go func() {
		p.ReorgHandler()
		close(done)
	}()

	reorgChan <- nil
	close(reorgChan)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("ReorgHandler did not exit after a nil entry followed by channel close")
	}
}
