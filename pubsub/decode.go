// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

package pubsub

import (
	"context"
	"encoding/json"

	"github.com/blockwatch/mempoolhub/addrvalidate"
	"github.com/blockwatch/mempoolhub/collab"
	"github.com/blockwatch/mempoolhub/config"
	"github.com/blockwatch/mempoolhub/fanout"
	"github.com/blockwatch/mempoolhub/pubsub/types"
	"github.com/blockwatch/mempoolhub/snapshot"
)

// inFrame is the recognized shape of one inbound client JSON object (spec
// section 4.1). Every field is optional; unrecognized keys are ignored.
type inFrame struct {
	Action             string          `json:"action"`
	Data               json.RawMessage `json:"data"`
	RefreshBlocks      bool            `json:"refresh-blocks"`
	TrackTx            string          `json:"track-tx"`
	WatchMempool       bool            `json:"watch-mempool"`
	TrackAddress       string          `json:"track-address"`
	TrackAddresses     []string        `json:"track-addresses"`
	TrackScriptpubkeys []string        `json:"track-scriptpubkeys"`
	TrackAsset         string          `json:"track-asset"`
	// TrackMempoolBlock is decoded leniently (raw JSON, not *int): spec
	// section 8 requires a non-integer value to clear the tracking slot
	// rather than fail the whole frame, so a shape mismatch here is handled
	// below instead of by json.Unmarshal on the outer inFrame.
	TrackMempoolBlock  json.RawMessage `json:"track-mempool-block"`
	TrackRbf           string          `json:"track-rbf"`
	TrackRbfSummary    bool            `json:"track-rbf-summary"`
	TrackDonation      string          `json:"track-donation"`
	TrackBisqMarket    string          `json:"track-bisq-market"`
}

// Decoder applies one inbound frame to a client session and produces the
// one-shot response for it (spec section 4.1's 12 processing steps). It
// holds only the dependencies the decoder itself needs: the Shared
// Snapshot/Serialization Cache for seeding "want" responses, the
// collaborators for on-demand lookups (RBF cache, mempool, tx position),
// and the running config for MAX_TRACKED_ADDRESSES.
type Decoder struct {
	Shared *snapshot.Shared
	Collab collab.Collaborators
	Cfg    *config.Config
}

// NewDecoder constructs a Decoder bound to the engine's shared state.
func NewDecoder(e *fanout.Engine) *Decoder {
	return &Decoder{Shared: e.Shared, Collab: e.Collab, Cfg: e.Cfg}
}

// Decode parses and applies raw to sess, returning the serialized one-shot
// response. A JSON parse failure is reported via the bool return so the
// caller can close the connection (spec section 4.1: "A parse error at any
// stage ... closes the connection").
func (d *Decoder) Decode(ctx context.Context, sess *types.ClientSession, raw []byte) (response string, ok bool) {
	var f inFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", false
	}

	out := map[string]string{}
	set := func(key string, value string) {
		if value != "" {
			out[key] = value
		}
	}

	// Step 1+2: want / seed responses.
	if f.Action == "want" && f.Data != nil {
		var classes []string
		if err := json.Unmarshal(f.Data, &classes); err == nil {
			wanted := make(map[types.WantClass]bool, len(classes))
			for _, c := range classes {
				wanted[types.WantClass(c)] = true
			}
			newlyOn := sess.SetWant(wanted)
			d.seedWantResponses(newlyOn, set)
		}
	}
	if f.RefreshBlocks {
		if v, ok := d.Shared.Get(snapshot.FieldBlocks); ok {
			set(snapshot.FieldBlocks, v)
		}
	}

	// Step 3: track-tx.
	if f.TrackTx != "" {
		d.handleTrackTx(ctx, sess, f, set)
	}

	// Step 4: track-address / track-addresses / track-scriptpubkeys.
	if f.TrackAddress != "" {
		if canon, ok := addrvalidate.Canonicalize(f.TrackAddress); ok {
			sess.WithLock(func() { sess.TrackAddress = canon })
		} else {
			sess.WithLock(func() { sess.TrackAddress = "" })
		}
	}
	if f.TrackAddresses != nil {
		d.handleTrackAddresses(sess, f.TrackAddresses, set)
	}
	if f.TrackScriptpubkeys != nil {
		d.handleTrackScriptpubkeys(sess, f.TrackScriptpubkeys, set)
	}

	// Step 5: track-asset.
	if f.TrackAsset != "" {
		if canon, ok := addrvalidate.ValidAssetID(f.TrackAsset); ok {
			sess.WithLock(func() { sess.TrackAsset = canon })
		} else {
			sess.WithLock(func() { sess.TrackAsset = "" })
		}
	}

	// Step 6: track-mempool-block. A non-integer value clears the slot
	// (spec section 8 boundary) instead of failing the whole frame.
	if f.TrackMempoolBlock != nil {
		var index int
		if err := json.Unmarshal(f.TrackMempoolBlock, &index); err != nil {
			sess.WithLock(func() { sess.TrackMempoolBlock = -1 })
		} else {
			d.handleTrackMempoolBlock(ctx, sess, index, set)
		}
	}

	// Step 7: track-rbf.
	if f.TrackRbf != "" {
		d.handleTrackRbf(ctx, sess, f.TrackRbf, set)
	}

	// Step 8: track-rbf-summary.
	if f.TrackRbfSummary {
		sess.WithLock(func() { sess.TrackRbfSummary = true })
		if d.Collab.RbfCache != nil {
			if summary, err := d.Collab.RbfCache.GetLatestRbfSummary(ctx, false); err == nil && summary != nil {
				set("rbfLatestSummary", marshal(summary))
			}
		}
	}

	// Step 9: action: init.
	if f.Action == "init" {
		d.handleInit(ctx, set)
	}

	// Step 10: action: ping.
	if f.Action == "ping" {
		set("pong", "true")
	}

	// Step 11: track-donation.
	if f.TrackDonation != "" {
		if canon, ok := addrvalidate.ValidDonationID(f.TrackDonation); ok {
			sess.WithLock(func() { sess.TrackDonation = canon })
		} else {
			sess.WithLock(func() { sess.TrackDonation = "" })
		}
	}

	// Step 12: track-bisq-market.
	if f.TrackBisqMarket != "" {
		if canon, ok := addrvalidate.ValidBisqMarket(f.TrackBisqMarket); ok {
			sess.WithLock(func() { sess.TrackBisqMarket = canon })
		} else {
			sess.WithLock(func() { sess.TrackBisqMarket = "" })
		}
	}

	return snapshot.SerializeMap(out), true
}

func (d *Decoder) seedWantResponses(newlyOn map[types.WantClass]bool, set func(string, string)) {
	if newlyOn[types.WantBlocks] {
		if v, ok := d.Shared.Get(snapshot.FieldBlocks); ok {
			set(snapshot.FieldBlocks, v)
		}
	}
	if newlyOn[types.WantMempoolBlocks] {
		if v, ok := d.Shared.Get(snapshot.FieldMempoolBlocks); ok {
			set(snapshot.FieldMempoolBlocks, v)
		}
	}
	if newlyOn[types.WantStats] {
		for _, field := range []string{snapshot.FieldMempoolInfo, snapshot.FieldVBytesPerSecond, snapshot.FieldFees, snapshot.FieldDifficultyAdj} {
			if v, ok := d.Shared.Get(field); ok {
				set(field, v)
			}
		}
	}
	if newlyOn[types.WantTomahawk] {
		set("tomahawk", d.healthJSON(context.Background()))
	}
}

func (d *Decoder) handleTrackTx(ctx context.Context, sess *types.ClientSession, f inFrame, set func(string, string)) {
	canon, valid := addrvalidate.ValidTxid(f.TrackTx)
	if !valid {
		sess.WithLock(func() { sess.TrackTx = "" })
		return
	}
	sess.WithLock(func() { sess.TrackTx = canon })

	if f.WatchMempool {
		if d.Collab.RbfCache != nil {
			if replacement, found, err := d.Collab.RbfCache.GetReplacedBy(ctx, canon); err == nil && found {
				set("txReplaced", marshal(map[string]string{"txid": canon, "replacedBy": replacement}))
				sess.WithLock(func() { sess.TrackTx = "" })
				return
			}
		}
		if d.Collab.Mempool != nil {
			if entries, err := d.Collab.Mempool.GetMempool(ctx); err == nil {
				for _, e := range entries {
					if e.Txid == canon {
						set("tx", marshal(e))
						return
					}
				}
			}
		}
		sess.WithLock(func() { sess.TrackMempoolTx = canon })
		return
	}

	if d.Collab.TxUtils != nil {
		if ext, err := d.Collab.TxUtils.GetMempoolTransactionExtended(ctx, canon); err == nil && ext != nil && ext.Position != nil {
			set("txPosition", marshal(map[string]interface{}{"txid": canon, "position": ext.Position}))
		}
	}
}

func (d *Decoder) handleTrackAddresses(sess *types.ClientSession, raw []string, set func(string, string)) {
	limit := defaultMaxTrackedAddresses
	if d.Cfg != nil && d.Cfg.MaxTrackedAddresses > 0 {
		limit = d.Cfg.MaxTrackedAddresses
	}
	if len(raw) > limit {
		set("track-addresses-error", "too many addresses")
		sess.WithLock(func() { sess.TrackAddresses = nil })
		return
	}
	canon := make(map[string]string, len(raw))
	for _, a := range raw {
		if c, ok := addrvalidate.Canonicalize(a); ok {
			canon[a] = c
		}
	}
	sess.WithLock(func() { sess.TrackAddresses = canon })
}

func (d *Decoder) handleTrackScriptpubkeys(sess *types.ClientSession, raw []string, set func(string, string)) {
	limit := defaultMaxTrackedAddresses
	if d.Cfg != nil && d.Cfg.MaxTrackedAddresses > 0 {
		limit = d.Cfg.MaxTrackedAddresses
	}
	if len(raw) > limit {
		set("track-scriptpubkeys-error", "too many scriptpubkeys")
		sess.WithLock(func() { sess.TrackScriptpubkeys = nil })
		return
	}
	canon := make([]string, 0, len(raw))
	for _, s := range raw {
		if c, ok := addrvalidate.CanonicalizeScriptpubkey(s); ok {
			canon = append(canon, c)
		}
	}
	sess.WithLock(func() { sess.TrackScriptpubkeys = canon })
}

func (d *Decoder) handleTrackMempoolBlock(ctx context.Context, sess *types.ClientSession, index int, set func(string, string)) {
	if index < 0 {
		sess.WithLock(func() { sess.TrackMempoolBlock = -1 })
		return
	}
	sess.WithLock(func() { sess.TrackMempoolBlock = index })
	if d.Collab.MempoolBlocks == nil {
		return
	}
	templates, err := d.Collab.MempoolBlocks.GetMempoolBlocks(ctx)
	if err != nil || index >= len(templates) {
		return
	}
	set("projected-block-transactions", marshal(map[string]interface{}{
		"index":             index,
		"blockTransactions": templates[index].Transactions,
	}))
}

func (d *Decoder) handleTrackRbf(ctx context.Context, sess *types.ClientSession, raw string, set func(string, string)) {
	mode, valid := types.ParseRbfMode(raw)
	if !valid {
		sess.WithLock(func() { sess.TrackRbf = types.RbfOff })
		return
	}
	sess.WithLock(func() { sess.TrackRbf = mode })
	if d.Collab.RbfCache == nil {
		return
	}
	trees, err := d.Collab.RbfCache.GetRbfTrees(ctx, mode == types.RbfFullRbf)
	if err != nil {
		return
	}
	set("rbfLatest", marshal(trees))
}

func (d *Decoder) handleInit(ctx context.Context, set func(string, string)) {
	if d.Shared.NeedsInitRefresh() {
		d.refreshSharedForInit(ctx)
	}
	if _, blocksReady := d.Shared.InitBlob(); blocksReady {
		for key, value := range d.Shared.Fields() {
			set(key, value)
		}
	}
}

// refreshSharedForInit refreshes the four init-readiness fields from their
// collaborators (spec section 4.1 item 9).
func (d *Decoder) refreshSharedForInit(ctx context.Context) {
	fields := map[string]string{}
	if d.Collab.Blocks != nil {
		limit := defaultInitialBlocksAmount
		if d.Cfg != nil && d.Cfg.InitialBlocksAmount > 0 {
			limit = d.Cfg.InitialBlocksAmount
		}
		if blocks, err := d.Collab.Blocks.GetBlocks(ctx, limit); err == nil {
			fields[snapshot.FieldBlocks] = marshal(blocks)
		}
	}
	if d.Collab.Difficulty != nil {
		if da, err := d.Collab.Difficulty.GetDifficultyAdjustment(ctx); err == nil {
			fields[snapshot.FieldDifficultyAdj] = marshal(da)
		}
	}
	if d.Collab.Backend != nil {
		if info, err := d.Collab.Backend.GetBackendInfo(ctx); err == nil {
			fields[snapshot.FieldBackendInfo] = marshal(info)
		}
	}
	if d.Collab.Price != nil {
		if prices, err := d.Collab.Price.GetLatestPrices(ctx); err == nil {
			fields[snapshot.FieldConversions] = marshal(prices)
		}
	}
	if len(fields) > 0 {
		d.Shared.SetAll(fields)
	}
}

func (d *Decoder) healthJSON(ctx context.Context) string {
	if d.Collab.BitcoinAPI == nil {
		return ""
	}
	status, err := d.Collab.BitcoinAPI.GetHealthStatus(ctx)
	if err != nil {
		return ""
	}
	return marshal(status)
}

func marshal(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("failed to marshal %T: %v", v, err)
		return ""
	}
	return string(b)
}

const (
	defaultMaxTrackedAddresses = 1000
	defaultInitialBlocksAmount = 8
)
