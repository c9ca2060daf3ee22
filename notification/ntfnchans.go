// Copyright (c) 2018, The Fonero developers
// Copyright (c) 2017, Jonathan Chappelow
// See LICENSE for details.

// Package notification holds the buffered channels that connect the node
// RPC notification handlers to the fan-out engine's blockdata and mempool
// event sources, adapted from the teacher's own NtfnChans down to the
// handful of channels mempoolhub's event kinds actually need (spec section
// 4.2: new block, reorg, mempool delta).
package notification

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/blockwatch/mempoolhub/blockdata"
	"github.com/blockwatch/mempoolhub/collab"
)

const (
	// blockConnChanBuffer is the size of the block connected channel buffer.
	blockConnChanBuffer = 4096

	// newTxChanBuffer is the size of the new mempool transaction channel
	// buffer.
	newTxChanBuffer = 4096
)

// NtfnChans collects the node RPC notification channels.
var NtfnChans struct {
	ConnectChan chan *chainhash.Hash
	ReorgChan   chan *blockdata.ReorgData
	NewTxChan   chan *collab.MempoolEntry
}

// MakeNtfnChans allocates the notification channels. monitorMempool gates
// whether NewTxChan is created at all, matching the teacher's own pattern
// of leaving unused channels nil so a stray send blocks loudly instead of
// silently going nowhere.
func MakeNtfnChans(monitorMempool bool) {
	NtfnChans.ConnectChan = make(chan *chainhash.Hash, blockConnChanBuffer)
	NtfnChans.ReorgChan = make(chan *blockdata.ReorgData)

	if monitorMempool {
		NtfnChans.NewTxChan = make(chan *collab.MempoolEntry, newTxChanBuffer)
	} else {
		NtfnChans.NewTxChan = nil
	}
}

// CloseNtfnChans closes every allocated notification channel.
func CloseNtfnChans() {
	if NtfnChans.ConnectChan != nil {
		close(NtfnChans.ConnectChan)
	}
	if NtfnChans.ReorgChan != nil {
		close(NtfnChans.ReorgChan)
	}
	if NtfnChans.NewTxChan != nil {
		close(NtfnChans.NewTxChan)
	}
}
