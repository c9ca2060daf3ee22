// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/blockwatch/mempoolhub/addrindex"
	"github.com/blockwatch/mempoolhub/collab"
	"github.com/blockwatch/mempoolhub/pubsub/types"
	"github.com/blockwatch/mempoolhub/snapshot"
)

// MempoolDeltaEvent is the input to HandleMempoolDelta (spec section 4.2,
// "Mempool delta. Inputs: the new mempool map, its size, arrays of newly-
// added and deleted transactions, a list of txids whose acceleration
// status changed").
type MempoolDeltaEvent struct {
	Delta               collab.MempoolDelta
	AccelerationChanged []string
}

// outspendEntry is one entry of the outspend index built in step 8: which
// vout of a tracked transaction was spent, by which new transaction.
type outspendEntry struct {
	Vin  uint32 `json:"vin"`
	Txid string `json:"txid"`
}

// HandleMempoolDelta implements spec section 4.2's "Mempool delta" handler.
func (e *Engine) HandleMempoolDelta(ctx context.Context, ev MempoolDeltaEvent) error {
	defer e.observe("mempool-delta", time.Now())
	e.engineMtx.Lock()
	defer e.engineMtx.Unlock()
	ctx = ctxOrBackground(ctx)

	// Step 1: update projected block templates.
	if e.Collab.MempoolBlocks != nil {
		if err := e.Collab.MempoolBlocks.UpdateBlockTemplates(ctx, ev.Delta); err != nil {
			log.Errorf("UpdateBlockTemplates failed: %v", err)
		}
	}

	// Step 2: recompute headline stats.
	var mempoolInfoJSON, vBytesJSON, feesJSON, daJSON, txListJSON string
	if e.Collab.Mempool != nil {
		if info, err := e.Collab.Mempool.GetMempoolInfo(ctx); err == nil {
			mempoolInfoJSON = marshalOrEmpty(info)
		}
		if vps, err := e.Collab.Mempool.GetVBytesPerSecond(ctx); err == nil {
			vBytesJSON = marshalOrEmpty(vps)
		}
		if latest, err := e.Collab.Mempool.GetLatestTransactions(ctx, 10); err == nil {
			txListJSON = marshalOrEmpty(toTxList(latest))
		}
	}
	if e.Collab.Fees != nil {
		if fees, err := e.Collab.Fees.GetRecommendedFee(ctx); err == nil {
			feesJSON = marshalOrEmpty(fees)
		}
	}
	if e.Collab.Difficulty != nil {
		if da, err := e.Collab.Difficulty.GetDifficultyAdjustment(ctx); err == nil {
			daJSON = marshalOrEmpty(da)
		}
	}

	// Step 3: detect RBF among the added set against the deleted set's
	// spent outpoints.
	replaced := detectRbf(ev.Delta)
	var rbfSummaryJSON string
	var rbfTreesAll, rbfTreesFull []collab.RbfTree
	if len(replaced) > 0 {
		if e.Collab.Rbf != nil {
			if err := e.Collab.Rbf.HandleRbfTransactions(ctx, replaced); err != nil {
				log.Errorf("HandleRbfTransactions failed: %v", err)
			}
		}
		if e.Collab.RbfCache != nil {
			rbfTreesAll, _ = e.Collab.RbfCache.GetRbfTrees(ctx, false)
			rbfTreesFull, _ = e.Collab.RbfCache.GetRbfTrees(ctx, true)
			if summary, err := e.Collab.RbfCache.GetLatestRbfSummary(ctx, false); err == nil && summary != nil {
				rbfSummaryJSON = marshalOrEmpty(summary)
			}
		}
	}

	// Step 4: evict mined-out deleted txs from the RBF cache.
	if e.Collab.RbfCache != nil {
		for _, txid := range ev.Delta.Removed {
			if err := e.Collab.RbfCache.Evict(ctx, txid); err != nil {
				log.Debugf("RbfCache.Evict(%s) failed: %v", txid, err)
			}
		}
	}

	// Step 5: update the spend-map index.
	if e.Collab.Mempool != nil {
		// Removed transactions are known only by txid at this layer; the
		// mempool collaborator is expected to resolve which outpoints they
		// themselves spent from its own index when asked to drop them.
		if removedOutpoints := outpointsOf(ev.Delta.Removed); len(removedOutpoints) > 0 {
			if err := e.Collab.Mempool.RemoveFromSpendMap(ctx, removedOutpoints); err != nil {
				log.Debugf("RemoveFromSpendMap failed: %v", err)
			}
		}
		for _, tx := range ev.Delta.Added {
			spent := make([]collab.Outpoint, len(tx.Vin))
			for i, vin := range tx.Vin {
				spent[i] = vin
			}
			if len(spent) > 0 {
				if err := e.Collab.Mempool.AddToSpendMap(ctx, tx.Txid, spent); err != nil {
					log.Debugf("AddToSpendMap(%s) failed: %v", tx.Txid, err)
				}
			}
		}
	}

	// Step 6: refresh the Shared Snapshot.
	fields := map[string]string{}
	setIfNonEmpty(fields, snapshot.FieldMempoolInfo, mempoolInfoJSON)
	setIfNonEmpty(fields, snapshot.FieldVBytesPerSecond, vBytesJSON)
	setIfNonEmpty(fields, snapshot.FieldFees, feesJSON)
	setIfNonEmpty(fields, snapshot.FieldDifficultyAdj, daJSON)
	setIfNonEmpty(fields, snapshot.FieldTransactions, txListJSON)
	setIfNonEmpty(fields, snapshot.FieldRbfSummary, rbfSummaryJSON)
	if len(fields) > 0 {
		e.Shared.SetAll(fields)
	}

	// Step 7: build the address index for added and deleted sets.
	addedIdx := addrindex.Build(toIndexTxs(ev.Delta.Added))
	removedIdx := addrindex.Build(removedIndexTxs(ev.Delta.Removed))

	// Step 8: build the outspend index, keyed by tracked source txid.
	outspends := buildOutspendIndex(e.snapshotClients(), ev.Delta.Added)

	cache := snapshot.NewCache(e.Shared)
	addedByTxid := indexByTxid(ev.Delta.Added)

	// Step 9: per-client tailored response.
	for _, client := range e.snapshotClients() {
		sess := client.Session().Snapshot()
		resp := newResponse()

		if sess.Want[types.WantStats] {
			resp.set(snapshot.FieldMempoolInfo, mempoolInfoJSON)
			resp.set(snapshot.FieldVBytesPerSecond, vBytesJSON)
			resp.set(snapshot.FieldTransactions, txListJSON)
			resp.set(snapshot.FieldDifficultyAdj, daJSON)
			resp.set(snapshot.FieldFees, feesJSON)
		}
		if sess.Want[types.WantMempoolBlocks] {
			if v, ok := cache.Get(snapshot.FieldMempoolBlocks); ok {
				resp.set(snapshot.FieldMempoolBlocks, v)
			}
		}
		if sess.Want[types.WantTomahawk] {
			resp.set("tomahawk", healthJSON(ctx, e))
		}

		if sess.TrackMempoolTx != "" {
			if tx, ok := addedByTxid[sess.TrackMempoolTx]; ok {
				resp.set("tx", marshalOrEmpty(tx))
				client.Session().WithLock(func() { client.Session().TrackMempoolTx = "" })
			}
		}

		if sess.TrackAddress != "" {
			if txids := addedIdx.TxidsFor(sess.TrackAddress); len(txids) > 0 {
				resp.set("address-transactions", marshalOrEmpty(txidMessages(sess.TrackAddress, txids)))
			}
			if txids := removedIdx.TxidsFor(sess.TrackAddress); len(txids) > 0 {
				resp.set("address-removed-transactions", marshalOrEmpty(txidMessages(sess.TrackAddress, txids)))
			}
		}
		if len(sess.TrackAddresses) > 0 {
			canon := canonicalValues(sess.TrackAddresses)
			added := addrindex.BuildMulti(toIndexTxs(ev.Delta.Added), canon)
			if len(added) > 0 {
				resp.set("multi-address-transactions", marshalOrEmpty(added))
			}
		}
		if len(sess.TrackScriptpubkeys) > 0 {
			added := addrindex.BuildMulti(toIndexTxs(ev.Delta.Added), sess.TrackScriptpubkeys)
			if len(added) > 0 {
				resp.set("multi-scriptpubkey-transactions", marshalOrEmpty(added))
			}
		}
		if sess.TrackAsset != "" {
			if txids := addedIdx.TxidsFor(sess.TrackAsset); len(txids) > 0 {
				resp.set("address-transactions", marshalOrEmpty(txidMessages(sess.TrackAsset, txids)))
			}
		}

		if sess.TrackTx != "" {
			if spends, ok := outspends[sess.TrackTx]; ok {
				resp.set("utxoSpent", marshalOrEmpty(spends))
			}
			if newTxid, ok := replaced[sess.TrackTx]; ok {
				resp.set("rbfTransaction", marshalOrEmpty(map[string]string{"txid": newTxid}))
			}
			if tree, ok := findRbfTree(rbfTreesAll, sess.TrackTx); ok {
				resp.set("rbfInfo", marshalOrEmpty(tree))
			}
			if e.Collab.TxUtils != nil {
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

		if sess.TrackMempoolBlock >= 0 && e.Collab.Mempool != nil {
			if inSync, _ := e.Collab.Mempool.IsInSync(ctx); inSync {
				if v, ok := cache.Get(snapshot.FieldMempoolBlocks); ok {
					resp.set("projected-block-transactions", marshalOrEmpty(map[string]interface{}{
						"index": sess.TrackMempoolBlock,
						"delta": json.RawMessage(v),
					}))
				}
			}
		}

		if sess.TrackRbf == types.RbfAll && len(rbfTreesAll) > 0 {
			resp.set("rbfLatest", marshalOrEmpty(rbfTreesAll))
		} else if sess.TrackRbf == types.RbfFullRbf && len(rbfTreesFull) > 0 {
			resp.set("rbfLatest", marshalOrEmpty(rbfTreesFull))
		}
		if sess.TrackRbfSummary && rbfSummaryJSON != "" {
			resp.set("rbfLatestSummary", rbfSummaryJSON)
		}

		send(client, resp.serialize())
	}

	return nil
}
