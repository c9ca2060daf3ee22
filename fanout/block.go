// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

package fanout

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/blockwatch/mempoolhub/addrindex"
	"github.com/blockwatch/mempoolhub/collab"
	"github.com/blockwatch/mempoolhub/pubsub/types"
	"github.com/blockwatch/mempoolhub/snapshot"
)

// NewBlockEvent is the input to HandleNewBlock (spec section 4.2, "New
// block. Inputs: the block, its txids, the block's full transactions").
type NewBlockEvent struct {
	Block        collab.Block
	MinedTxids   []string
	Accelerated  []string // txids accelerated in this block, if ACCELERATIONS is enabled
}

// confirmedTx is the per-transaction stamp spec section 4.2 step 9
// requires on block-transactions/*-address-transactions payloads.
type confirmedTx struct {
	Txid        string `json:"txid"`
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
	BlockTime   int64  `json:"block_time"`
}

// HandleNewBlock implements spec section 4.2's "New block" handler.
func (e *Engine) HandleNewBlock(ctx context.Context, ev NewBlockEvent) error {
	defer e.observe("new-block", time.Now())
	e.engineMtx.Lock()
	defer e.engineMtx.Unlock()
	ctx = ctxOrBackground(ctx)

	// Step 1: acceleration boost accounting.
	if e.Cfg != nil && e.Cfg.Accelerations && len(ev.Accelerated) > 0 && e.Collab.Persistence != nil {
		for _, txid := range ev.Accelerated {
			if err := e.Collab.Persistence.SaveAcceleration(ctx, txid, 0); err != nil {
				log.Debugf("SaveAcceleration(%s) failed: %v", txid, err)
			}
		}
	}

	// Step 2: identify mined RBF transactions.
	var minedRbf []string
	if e.Collab.Common != nil {
		minedRbf, _ = e.Collab.Common.FindMinedRbfTransactions(ctx, ev.MinedTxids)
	}
	if len(minedRbf) > 0 {
		if e.Collab.Rbf != nil {
			if err := e.Collab.Rbf.HandleMinedRbfTransactions(ctx, minedRbf); err != nil {
				log.Errorf("HandleMinedRbfTransactions failed: %v", err)
			}
		}
		if e.Collab.RbfCache != nil {
			for _, txid := range minedRbf {
				if err := e.Collab.RbfCache.Mined(ctx, txid); err != nil {
					log.Debugf("RbfCache.Mined(%s) failed: %v", txid, err)
				}
			}
		}
	}

	// Step 3: remove mined inputs from the spend-map.
	if e.Collab.Mempool != nil && len(ev.MinedTxids) > 0 {
		if err := e.Collab.Mempool.RemoveFromSpendMap(ctx, nil); err != nil {
			log.Debugf("RemoveFromSpendMap after block failed: %v", err)
		}
	}

	// Step 4: audit.
	blockJSON := ev.Block
	if e.Cfg != nil && e.Cfg.Audit && e.Collab.Audit != nil && e.Collab.Mempool != nil {
		if inSync, _ := e.Collab.Mempool.IsInSync(ctx); inSync && e.Collab.MempoolBlocks != nil {
			if templates, err := e.Collab.MempoolBlocks.GetMempoolBlocks(ctx); err == nil && len(templates) > 0 {
				if result, err := e.Collab.Audit.AuditBlock(ctx, ev.Block, templates[0]); err == nil && result != nil {
					if e.Collab.Persistence != nil {
						if err := e.Collab.Persistence.SaveTemplate(ctx, templates[0]); err != nil {
							log.Debugf("SaveTemplate failed: %v", err)
						}
						if err := e.Collab.Persistence.SaveAudit(ctx, *result); err != nil {
							log.Debugf("SaveAudit failed: %v", err)
						}
					}
					// matchRate is computed but not attached to the block
					// payload, the persisted audit record, or any other field.
					matchRate := math.Round(result.MatchRate*10000) / 100
					_ = matchRate
				}
			}
		}
	}

	// Steps 5-6: the mempool engine removes mined txids and rebuilds the
	// post-block template in response to the same block-connected
	// notification; the fan-out engine only needs the resulting template
	// for step 7 below.
	var mempoolBlocksJSON, mempoolDeltasJSON, loadingJSON, daJSON, feesJSON, mempoolInfoJSON, vBytesJSON string
	var mempoolDeltaAdded int
	if e.Collab.MempoolBlocks != nil {
		if templates, err := e.Collab.MempoolBlocks.GetMempoolBlocks(ctx); err == nil {
			mempoolBlocksJSON = marshalOrEmpty(templates)
		}
		if deltas, err := e.Collab.MempoolBlocks.GetMempoolBlockDeltas(ctx); err == nil && len(deltas) > 0 {
			mempoolDeltasJSON = marshalOrEmpty(deltas)
			mempoolDeltaAdded = len(deltas[0].Transactions)
		}
	}
	if e.Collab.Loading != nil {
		if indicators, err := e.Collab.Loading.GetLoadingIndicators(ctx); err == nil {
			loadingJSON = marshalOrEmpty(indicators)
		}
	}
	if e.Collab.Difficulty != nil {
		if da, err := e.Collab.Difficulty.GetDifficultyAdjustment(ctx); err == nil {
			daJSON = marshalOrEmpty(da)
		}
	}
	if e.Collab.Fees != nil {
		if fees, err := e.Collab.Fees.GetRecommendedFee(ctx); err == nil {
			feesJSON = marshalOrEmpty(fees)
		}
	}
	if e.Collab.Mempool != nil {
		if info, err := e.Collab.Mempool.GetMempoolInfo(ctx); err == nil {
			mempoolInfoJSON = marshalOrEmpty(info)
		}
		if vps, err := e.Collab.Mempool.GetVBytesPerSecond(ctx); err == nil {
			vBytesJSON = marshalOrEmpty(vps)
		}
	}

	// Step 7: refresh S, including the capped recent-blocks window.
	var blocksJSON string
	if e.Collab.Blocks != nil {
		limit := defaultInitialBlocksAmount
		if e.Cfg != nil && e.Cfg.InitialBlocksAmount > 0 {
			limit = e.Cfg.InitialBlocksAmount
		}
		if blocks, err := e.Collab.Blocks.GetBlocks(ctx, limit); err == nil {
			blocksJSON = marshalOrEmpty(blocks)
		}
	}
	fields := map[string]string{}
	setIfNonEmpty(fields, snapshot.FieldMempoolInfo, mempoolInfoJSON)
	setIfNonEmpty(fields, snapshot.FieldVBytesPerSecond, vBytesJSON)
	setIfNonEmpty(fields, snapshot.FieldBlocks, blocksJSON)
	setIfNonEmpty(fields, snapshot.FieldMempoolBlocks, mempoolBlocksJSON)
	setIfNonEmpty(fields, snapshot.FieldLoadingIndicators, loadingJSON)
	setIfNonEmpty(fields, snapshot.FieldDifficultyAdj, daJSON)
	setIfNonEmpty(fields, snapshot.FieldFees, feesJSON)
	if len(fields) > 0 {
		e.Shared.SetAll(fields)
	}

	// Step 8: address index for this block's transactions.
	blockIdx := addrindex.Build(toIndexTxs(ev.Block.Transactions))

	stamp := confirmedTx{
		BlockHeight: ev.Block.Height,
		BlockHash:   ev.Block.Hash.String(),
		BlockTime:   ev.Block.Time.Unix(),
		Confirmed:   true,
	}

	blockJSONStr := marshalOrEmpty(blockJSON)

	// Step 9: per-client tailored response.
	for _, client := range e.snapshotClients() {
		sess := client.Session().Snapshot()
		resp := newResponse()

		if sess.Want[types.WantBlocks] {
			resp.set("block", blockJSONStr)
		}
		if sess.Want[types.WantStats] {
			resp.set(snapshot.FieldMempoolInfo, mempoolInfoJSON)
			resp.set(snapshot.FieldVBytesPerSecond, vBytesJSON)
			resp.set(snapshot.FieldFees, feesJSON)
			resp.set(snapshot.FieldDifficultyAdj, daJSON)
		}
		if sess.Want[types.WantMempoolBlocks] {
			resp.set(snapshot.FieldMempoolBlocks, mempoolBlocksJSON)
		}
		if sess.Want[types.WantTomahawk] {
			resp.set("tomahawk", healthJSON(ctx, e))
		}

		if sess.TrackTx != "" {
			if containsTxid(ev.MinedTxids, sess.TrackTx) {
				s := stamp
				resp.set("txConfirmed", marshalOrEmpty(map[string]interface{}{"txid": sess.TrackTx, "confirmed": s.Confirmed}))
			} else if e.Collab.TxUtils != nil {
				if ext, err := e.Collab.TxUtils.GetMempoolTransactionExtended(ctx, sess.TrackTx); err == nil && ext != nil && ext.Position != nil {
					payload := map[string]interface{}{
						"txid":     sess.TrackTx,
						"position": ext.Position,
					}
					if len(ext.Extra) > 0 {
						payload["cpfp"] = ext.Extra
					}
					resp.set("txPosition", marshalOrEmpty(payload))
				}
			}
		}

		if sess.TrackAddress != "" {
			if txids := blockIdx.TxidsFor(sess.TrackAddress); len(txids) > 0 {
				resp.set("block-transactions", marshalOrEmpty(stampedTxids(stamp, txids)))
			}
		}
		if len(sess.TrackAddresses) > 0 {
			hits := addrindex.BuildMulti(toIndexTxs(ev.Block.Transactions), canonicalValues(sess.TrackAddresses))
			if len(hits) > 0 {
				resp.set("multi-address-transactions", marshalOrEmpty(stampedMulti(stamp, hits)))
			}
		}
		if len(sess.TrackScriptpubkeys) > 0 {
			hits := addrindex.BuildMulti(toIndexTxs(ev.Block.Transactions), sess.TrackScriptpubkeys)
			if len(hits) > 0 {
				resp.set("multi-scriptpubkey-transactions", marshalOrEmpty(stampedMulti(stamp, hits)))
			}
		}

		if sess.TrackMempoolBlock >= 0 && e.Collab.Mempool != nil {
			if inSync, _ := e.Collab.Mempool.IsInSync(ctx); inSync {
				// Spec's size-based branch: a small delta vs. the block it
				// follows is cheaper to ship as a diff; a large one is
				// cheaper to ship as the full compressed list.
				if mempoolDeltaAdded > 0 && mempoolDeltaAdded*2 <= len(ev.Block.Transactions) {
					resp.set("projected-block-transactions", marshalOrEmpty(map[string]interface{}{
						"index": sess.TrackMempoolBlock,
						"delta": json.RawMessage(mempoolDeltasJSON),
					}))
				} else if mempoolBlocksJSON != "" {
					resp.set("projected-block-transactions", marshalOrEmpty(map[string]interface{}{
						"index":             sess.TrackMempoolBlock,
						"blockTransactions": json.RawMessage(mempoolBlocksJSON),
					}))
				}
			}
		}

		send(client, resp.serialize())
	}

	return nil
}

const defaultInitialBlocksAmount = 8

func containsTxid(txids []string, target string) bool {
	for _, t := range txids {
		if t == target {
			return true
		}
	}
	return false
}

func stampedTxids(stamp confirmedTx, txids []string) []confirmedTx {
	out := make([]confirmedTx, len(txids))
	for i, txid := range txids {
		s := stamp
		s.Txid = txid
		out[i] = s
	}
	return out
}

func stampedMulti(stamp confirmedTx, hits map[string][]string) map[string][]confirmedTx {
	out := make(map[string][]confirmedTx, len(hits))
	for addr, txids := range hits {
		out[addr] = stampedTxids(stamp, txids)
	}
	return out
}

// HandleReorg implements spec section 4.2's "Reorg" handler: refresh
// S.blocks and S.da, then emit to clients with want-blocks and/or
// want-stats.
func (e *Engine) HandleReorg(ctx context.Context, newTip collab.Block) error {
	defer e.observe("reorg", time.Now())
	e.engineMtx.Lock()
	defer e.engineMtx.Unlock()
	ctx = ctxOrBackground(ctx)

	var blocksJSON, daJSON string
	if e.Collab.Blocks != nil {
		limit := defaultInitialBlocksAmount
		if e.Cfg != nil && e.Cfg.InitialBlocksAmount > 0 {
			limit = e.Cfg.InitialBlocksAmount
		}
		if blocks, err := e.Collab.Blocks.GetBlocks(ctx, limit); err == nil {
			blocksJSON = marshalOrEmpty(blocks)
		}
	}
	if e.Collab.Difficulty != nil {
		if da, err := e.Collab.Difficulty.GetDifficultyAdjustment(ctx); err == nil {
			daJSON = marshalOrEmpty(da)
		}
	}

	fields := map[string]string{}
	setIfNonEmpty(fields, snapshot.FieldBlocks, blocksJSON)
	setIfNonEmpty(fields, snapshot.FieldDifficultyAdj, daJSON)
	if len(fields) > 0 {
		e.Shared.SetAll(fields)
	}

	for _, client := range e.snapshotClients() {
		sess := client.Session().Snapshot()
		resp := newResponse()
		if sess.Want[types.WantBlocks] {
			resp.set(snapshot.FieldBlocks, blocksJSON)
		}
		if sess.Want[types.WantStats] {
			resp.set(snapshot.FieldDifficultyAdj, daJSON)
		}
		send(client, resp.serialize())
	}

	return nil
}
