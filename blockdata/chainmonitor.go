// Copyright (c) 2018, The Fonero developers
// Copyright (c) 2017, Jonathan Chappelow
// See LICENSE for details.

package blockdata

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/blockwatch/mempoolhub/collab"
)

// ReorgData carries the new chain tip a reorg settled on, plus a
// WaitGroup the ChainMonitor signals once the reorg has been fully
// handled (spec section 4.2, "Reorg").
type ReorgData struct {
	NewChainHeight int64
	NewChainHead   chainhash.Hash
	WG             *sync.WaitGroup
}

// ChainMonitor watches block-connected and reorg notifications from the
// node, collects data for the relevant block(s), and stores it with every
// registered BlockDataSaver.
type ChainMonitor struct {
	ctx             context.Context
	collector       *Collector
	dataSavers      []BlockDataSaver
	reorgDataSavers []BlockDataSaver
	wg              *sync.WaitGroup
	blockChan       chan *chainhash.Hash
	reorgChan       chan *ReorgData
	reorgLock       sync.Mutex
}

// NewChainMonitor creates a new ChainMonitor.
func NewChainMonitor(ctx context.Context, collector *Collector, savers []BlockDataSaver,
	reorgSavers []BlockDataSaver, wg *sync.WaitGroup, blockChan chan *chainhash.Hash,
	reorgChan chan *ReorgData) *ChainMonitor {
	return &ChainMonitor{
		ctx:             ctx,
		collector:       collector,
		dataSavers:      savers,
		reorgDataSavers: reorgSavers,
		wg:              wg,
		blockChan:       blockChan,
		reorgChan:       reorgChan,
	}
}

func (p *ChainMonitor) collect(hash *chainhash.Hash) (*collab.Block, *btcjson.GetBlockVerboseTxResult, error) {
	block, msgBlock, err := p.collector.CollectHash(hash)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get block %v: %w", hash, err)
	}
	log.Infof("Block height %v connected. Collecting data...", block.Height)
	return block, msgBlock, nil
}

func (p *ChainMonitor) store(savers []BlockDataSaver, block *collab.Block, raw *btcjson.GetBlockVerboseTxResult) error {
	var storeErr error
	for _, s := range savers {
		if s == nil {
			continue
		}
		if err := s.Store(block, raw); err != nil {
			log.Errorf("(%v).Store failed: %v", reflect.TypeOf(s), err)
			storeErr = err
		}
	}
	return storeErr
}

// ConnectBlock is a synchronous version of BlockConnectedHandler that
// collects and stores data for a block specified by the given hash.
func (p *ChainMonitor) ConnectBlock(hash *chainhash.Hash) error {
	p.reorgLock.Lock()
	defer p.reorgLock.Unlock()

	block, raw, err := p.collect(hash)
	if err != nil {
		return err
	}
	return p.store(p.dataSavers, block, raw)
}

// SetNewBlockChan specifies the new-block channel to be used by
// BlockConnectedHandler.
func (p *ChainMonitor) SetNewBlockChan(blockChan chan *chainhash.Hash) {
	p.blockChan = blockChan
}

// BlockConnectedHandler handles block connected notifications, which
// trigger data collection and storage.
func (p *ChainMonitor) BlockConnectedHandler() {
	defer p.wg.Done()
out:
	for {
	keepon:
		select {
		case hash, ok := <-p.blockChan:
			if !ok {
				log.Warnf("Block connected channel closed.")
				break out
			}

			p.reorgLock.Lock()
			block, raw, err := p.collect(hash)
			p.reorgLock.Unlock()
			if err != nil {
				log.Errorf("Failed to collect data for block %v: %v", hash, err)
				break keepon
			}

			p.store(p.dataSavers, block, raw)

		case <-p.ctx.Done():
			log.Debugf("Got quit signal. Exiting block connected handler.")
			break out
		}
	}
}

// ReorgHandler receives notification of a chain reorganization. A reorg is
// handled by collecting data for the new best block and storing it with
// the reorg savers only (spec section 4.2, "Reorg").
func (p *ChainMonitor) ReorgHandler() {
	defer p.wg.Done()
out:
	for {
	keepon:
		select {
		case reorgData, ok := <-p.reorgChan:
			if !ok {
				log.Warnf("Reorg channel closed.")
				break out
			}
			if reorgData == nil {
				log.Warnf("nil reorg data received!")
				break keepon
			}

			p.reorgLock.Lock()

			log.Infof("Reorganize signaled to blockdata. "+
				"Collecting data for NEW head block %v at height %d.",
				reorgData.NewChainHead, reorgData.NewChainHeight)

			block, raw, err := p.collect(&reorgData.NewChainHead)
			if err != nil {
				log.Errorf("ReorgHandler: Failed to collect data for block %v: %v", reorgData.NewChainHead, err)
				p.reorgLock.Unlock()
				reorgData.WG.Done()
				break keepon
			}

			p.store(p.reorgDataSavers, block, raw)

			p.reorgLock.Unlock()
			reorgData.WG.Done()

		case <-p.ctx.Done():
			log.Debugf("Got quit signal. Exiting reorg notification handler.")
			break out
		}
	}
}
