// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

// Package collab declares the external collaborator interfaces the fan-out
// engine depends on (spec section 6: "Collaborator contracts (consumed)").
// None of these subsystems -- the mempool engine, block template builder,
// RBF cache, fee estimator, price feed, audit/statistics subsystems -- are
// implemented here; this package only states the shapes the Event Fan-Out
// Engine expects of them, the way pubsub.wsDataSource stated the shape the
// teacher's PubSubHub expected of its block/mempool data source.
package collab

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MempoolEntry is the minimal shape of one unconfirmed transaction as the
// fan-out engine needs it: identity, fee/size for client-visible summaries,
// and the prevouts it spends (for utxoSpent detection, spec section 8
// scenario 3).
type MempoolEntry struct {
	Txid    string
	FeeSat  int64
	VSize   uint32
	Value   float64
	Vin     []Outpoint
	Vout    []TxOut
	FirstSeen time.Time
}

// Outpoint is a transaction input's previous output reference.
type Outpoint struct {
	Txid string
	Vout uint32
}

// TxOut is a transaction output as the fan-out engine needs it: value and
// the resolved address/scriptPubKey it pays, for address-index membership
// tests.
type TxOut struct {
	Value     int64
	Address   string
	ScriptHex string
}

// MempoolDelta is the added/removed transaction sets of one mempool update
// (spec section 4.2, "Mempool delta").
type MempoolDelta struct {
	Added   []MempoolEntry
	Removed []string // txids
}

// MempoolSource is `mempool.*` of spec section 6: the live, unconfirmed
// transaction set and its summary statistics.
type MempoolSource interface {
	GetMempool(ctx context.Context) ([]MempoolEntry, error)
	GetMempoolInfo(ctx context.Context) (*btcjson.GetMempoolInfoResult, error)
	GetVBytesPerSecond(ctx context.Context) (float64, error)
	GetLatestTransactions(ctx context.Context, n int) ([]MempoolEntry, error)
	IsInSync(ctx context.Context) (bool, error)
	GetSpendMap(ctx context.Context) (map[Outpoint]string, error) // outpoint -> spending txid
	AddToSpendMap(ctx context.Context, spender string, spent []Outpoint) error
	RemoveFromSpendMap(ctx context.Context, spent []Outpoint) error
}

// RbfNotifier is the mempool engine's side of RBF tracking (spec section
// 6: "…handleRbfTransactions/handleMinedRbfTransactions"), invoked by the
// fan-out engine as new/mined RBF relationships are discovered while
// applying a mempool delta.
type RbfNotifier interface {
	HandleRbfTransactions(ctx context.Context, replaced map[string]string) error // old txid -> new txid
	HandleMinedRbfTransactions(ctx context.Context, mined []string) error
}

// MempoolBlockTemplate is one projected block: the compressed transaction
// list the "mempool-blocks" feed and `track-mempool-block` responses are
// built from.
type MempoolBlockTemplate struct {
	Index        int
	BlockSize    uint32
	BlockVSize   float64
	NTx          int
	TotalFees    int64
	MedianFee    float64
	FeeRange     []float64
	Transactions []CompressedTx
}

// CompressedTx is the compact per-transaction shape the projected-block and
// mempool-blocks feeds serialize (spec section 6: "…compressTx").
type CompressedTx struct {
	Txid   string
	Fee    int64
	VSize  uint32
	Value  int64
}

// MempoolBlocksSource is `mempoolBlocks.*` of spec section 6: the block
// template builder's output, not its algorithm.
type MempoolBlocksSource interface {
	GetMempoolBlocks(ctx context.Context) ([]MempoolBlockTemplate, error)
	GetMempoolBlockDeltas(ctx context.Context) ([]MempoolBlockTemplate, error)
	GetMempoolBlocksWithTransactions(ctx context.Context) ([]MempoolBlockTemplate, error)
	UpdateBlockTemplates(ctx context.Context, delta MempoolDelta) error
	CompressTx(tx MempoolEntry) CompressedTx
}

// Block is a confirmed block summary as the fan-out engine needs it.
type Block struct {
	Height       int64
	Hash         chainhash.Hash
	Time         time.Time
	TxCount      int
	Transactions []MempoolEntry // only populated for the most recent block(s)
}

// BlocksSource is `blocks.getBlocks()` of spec section 6: the confirmed
// chain tip window (spec section 3: "Shared Snapshot ... S.blocks").
type BlocksSource interface {
	GetBlocks(ctx context.Context, count int) ([]Block, error)
}

// DifficultyAdjustment is the `da` field's payload.
type DifficultyAdjustment struct {
	ProgressPercent      float64
	DifficultyChange     float64
	EstimatedRetargetDate int64
	RemainingBlocks      int
	RemainingTime        int64
}

// DifficultyAdjustmentSource is `difficultyAdjustment.getDifficultyAdjustment()`.
type DifficultyAdjustmentSource interface {
	GetDifficultyAdjustment(ctx context.Context) (*DifficultyAdjustment, error)
}

// FeeEstimates is the `fees` field's payload (sat/vB at several target
// confirmation counts).
type FeeEstimates struct {
	FastestFee  int64
	HalfHourFee int64
	HourFee     int64
	EconomyFee  int64
	MinimumFee  int64
}

// FeeSource is `feeApi.getRecommendedFee()`.
type FeeSource interface {
	GetRecommendedFee(ctx context.Context) (*FeeEstimates, error)
}

// RbfTree describes one chain of fee-bumping replacements, rooted at the
// first-seen transaction.
type RbfTree struct {
	Tx       CompressedTx
	Time     time.Time
	Replaces []RbfTree
}

// RbfSummary is the compact `rbfLatestSummary` payload.
type RbfSummary struct {
	Count      int
	RecentTxid string
}

// RbfCache is `rbfCache.*` of spec section 6: lookup of replacement
// relationships already discovered by the mempool engine, not their
// detection.
type RbfCache interface {
	GetReplacedBy(ctx context.Context, txid string) (replacement string, ok bool, err error)
	Evict(ctx context.Context, txid string) error
	Mined(ctx context.Context, txid string) error
	GetRbfTrees(ctx context.Context, fullRbf bool) ([]RbfTree, error)
	GetRbfChanges(ctx context.Context) ([]RbfTree, error)
	GetLatestRbfSummary(ctx context.Context, fullRbf bool) (*RbfSummary, error)
}

// ExtendedTx is the enriched transaction payload `txPosition`/`address-*`
// events carry: position within the mempool/projected blocks, plus Extra
// holding the CPFP detail block (ancestor/descendant fee-bump metadata)
// when the enrichment path has one to report. A nil or empty Extra means
// no CPFP detail is attached this round.
type ExtendedTx struct {
	Txid     string
	Position *TxPosition
	Extra    map[string]interface{}
}

// TxPosition locates a transaction within the projected block templates
// (spec section 8 scenario 2: `position:{block:1,vsize:1234}`).
type TxPosition struct {
	Block int    `json:"block"`
	VSize uint32 `json:"vsize"`
}

// TransactionUtils is `transactionUtils.$getMempoolTransactionExtended` of
// spec section 6.
type TransactionUtils interface {
	GetMempoolTransactionExtended(ctx context.Context, txid string) (*ExtendedTx, error)
}

// HealthStatus is the node RPC health probe's result.
type HealthStatus struct {
	Healthy bool
	Message string
}

// BitcoinAPI is `bitcoinApi.getHealthStatus` of spec section 6: a thin
// liveness probe over the underlying node RPC connection (see
// NodeCollaborator in node.go for the concrete adapter).
type BitcoinAPI interface {
	GetHealthStatus(ctx context.Context) (*HealthStatus, error)
}

// Prices is the `conversions` field's payload: last known fiat conversion
// rates.
type Prices struct {
	Time time.Time
	Rate map[string]float64 // currency code -> BTC price
}

// PriceUpdater is `priceUpdater.getLatestPrices` of spec section 6 (see
// pricefeed.Client for the concrete gorilla/websocket-based adapter).
type PriceUpdater interface {
	GetLatestPrices(ctx context.Context) (*Prices, error)
}

// BackendInfo is the `backendInfo` field's payload.
type BackendInfo struct {
	Backend        string // "esplora" or other, per spec section 6 Configuration
	Version        string
	GitCommit      string
	RustGBT        bool
	Network        string
}

// BackendInfoSource is `backendInfo.getBackendInfo`.
type BackendInfoSource interface {
	GetBackendInfo(ctx context.Context) (*BackendInfo, error)
}

// LoadingIndicators is the `loadingIndicators` field's payload: named
// progress percentages for in-flight indexing/sync work.
type LoadingIndicators map[string]float64

// LoadingIndicatorsSource is `loadingIndicators.getLoadingIndicators`.
type LoadingIndicatorsSource interface {
	GetLoadingIndicators(ctx context.Context) (LoadingIndicators, error)
}

// Common is the grab-bag of shared helper calls named directly in spec
// section 6 (`Common.findRbfTransactions/findMinedRbfTransactions/
// getSimilarity/nativeAssetId/indexingEnabled`). It is kept as one
// interface, as the spec groups it, rather than split across the others.
type Common interface {
	FindRbfTransactions(ctx context.Context, delta MempoolDelta) (map[string]string, error)
	FindMinedRbfTransactions(ctx context.Context, mined []string) ([]string, error)
	GetSimilarity(ctx context.Context, projected, actual []CompressedTx) (float64, bool)
	NativeAssetID(ctx context.Context) (string, error)
	IndexingEnabled(ctx context.Context) bool
}

// AuditResult is the per-block audit comparison `Audit.auditBlock`
// produces: how closely the projected template matched the mined block.
type AuditResult struct {
	Height           int64
	MatchRate        float64
	MissingTxids     []string
	AddedTxids       []string
}

// Audit is `Audit.auditBlock` of spec section 6. Spec section 9 notes
// this requires a deep-cloned mempool snapshot when the audit algorithm
// differs from the live one. fanout's HandleNewBlock passes the first
// template from MempoolBlocksSource.GetMempoolBlocks as is; no clone is
// taken there.
type Audit interface {
	AuditBlock(ctx context.Context, block Block, projected MempoolBlockTemplate) (*AuditResult, error)
}

// Persistence is the `$saveTemplate/$saveAudit/$saveAcceleration` calls of
// spec section 6: durable recording of templates/audits/accelerations,
// kept entirely outside the fan-out hot path (see db/recorder for the
// concrete Postgres-backed adapter). Persistence failures are logged and
// otherwise ignored by callers (spec section 7, error kind 3).
type Persistence interface {
	SaveTemplate(ctx context.Context, tmpl MempoolBlockTemplate) error
	SaveAudit(ctx context.Context, result AuditResult) error
	SaveAcceleration(ctx context.Context, txid string, feeSat int64) error
}

// Statistics is `statistics.runStatistics` of spec section 6: the
// `live-2h-chart` feed's data source.
type Statistics interface {
	RunStatistics(ctx context.Context, window time.Duration) (interface{}, error)
}

// Collaborators bundles every external contract the Event Fan-Out Engine
// depends on, mirroring the way the teacher's PubSubHub held a single
// wsDataSource rather than a constructor argument per capability. Any
// field may be a no-op/stub adapter in a deployment that doesn't need
// that subsystem (e.g. Audit/Persistence when AUDIT=false).
type Collaborators struct {
	Mempool          MempoolSource
	Rbf              RbfNotifier
	MempoolBlocks    MempoolBlocksSource
	Blocks           BlocksSource
	Difficulty       DifficultyAdjustmentSource
	Fees             FeeSource
	RbfCache         RbfCache
	TxUtils          TransactionUtils
	BitcoinAPI       BitcoinAPI
	Price            PriceUpdater
	Backend          BackendInfoSource
	Loading          LoadingIndicatorsSource
	Common           Common
	Audit            Audit
	Persistence      Persistence
	Statistics       Statistics
}
