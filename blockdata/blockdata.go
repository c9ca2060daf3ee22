// Copyright (c) 2018, The Fonero developers
// Copyright (c) 2017, Jonathan Chappelow
// See LICENSE for details.

// Package blockdata collects confirmed-block data from the node RPC
// connection and hands it to whatever BlockDataSavers are registered,
// adapted from the teacher's own blockdata.Collector/chainMonitor pair for
// Bitcoin Core's getbestblockhash/getblock (verbose) RPCs instead of fnod's.
package blockdata

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/blockwatch/mempoolhub/collab"
	"github.com/blockwatch/mempoolhub/netparams"
)

// BlockDataSaver is implemented by anything that wants to be notified of
// newly collected block data, most notably the fan-out engine's new-block
// and reorg event handlers (spec section 4.2).
type BlockDataSaver interface {
	Store(data *collab.Block, msgBlock *btcjson.GetBlockVerboseTxResult) error
}

// Collector fetches confirmed block summaries from the node RPC connection.
type Collector struct {
	mtx        sync.Mutex
	nodeChainSvr *rpcclient.Client
	netParams  *netparams.Params
}

// NewCollector creates a new Collector.
func NewCollector(client *rpcclient.Client, params *netparams.Params) *Collector {
	return &Collector{
		nodeChainSvr: client,
		netParams:    params,
	}
}

// CollectHash collects data for the block with the given hash.
func (t *Collector) CollectHash(hash *chainhash.Hash) (*collab.Block, *btcjson.GetBlockVerboseTxResult, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	msgBlock, err := t.nodeChainSvr.GetBlockVerboseTx(hash)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get block %v: %w", hash, err)
	}

	block := &collab.Block{
		Height:  msgBlock.Height,
		Hash:    *hash,
		TxCount: len(msgBlock.Tx),
	}
	block.Time = time.Unix(msgBlock.Time, 0)

	return block, msgBlock, nil
}

// Collect collects data for the current best block.
func (t *Collector) Collect() (*collab.Block, *btcjson.GetBlockVerboseTxResult, error) {
	bestHash, err := t.nodeChainSvr.GetBestBlockHash()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get best block hash: %w", err)
	}
	return t.CollectHash(bestHash)
}
