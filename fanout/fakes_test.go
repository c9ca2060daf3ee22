package fanout

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/blockwatch/mempoolhub/collab"
	"github.com/blockwatch/mempoolhub/pubsub/types"
)

// fakeClient is a minimal Client that records every frame it is sent, for
// assertions in the scenario tests below.
type fakeClient struct {
	sess *types.ClientSession

	mtx  sync.Mutex
	sent []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{sess: types.NewClientSession("127.0.0.1")}
}

func (c *fakeClient) Session() *types.ClientSession { return c.sess }

func (c *fakeClient) Send(payload string) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.sent = append(c.sent, payload)
	return true
}

func (c *fakeClient) last() (string, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if len(c.sent) == 0 {
		return "", false
	}
	return c.sent[len(c.sent)-1], true
}

func (c *fakeClient) count() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.sent)
}

// fakeBlocks is a scripted BlocksSource.
type fakeBlocks struct {
	blocks []collab.Block
	err    error
}

func (f *fakeBlocks) GetBlocks(ctx context.Context, count int) ([]collab.Block, error) {
	if f.err != nil {
		return nil, f.err
	}
	if count > len(f.blocks) {
		count = len(f.blocks)
	}
	return f.blocks[:count], nil
}

// fakeMempoolInfo is a scripted MempoolSource covering only what the
// handlers under test actually call.
type fakeMempoolInfo struct {
	info    *btcjson.GetMempoolInfoResult
	inSync  bool
	entries []collab.MempoolEntry
}

func (f *fakeMempoolInfo) GetMempool(ctx context.Context) ([]collab.MempoolEntry, error) {
	return f.entries, nil
}
func (f *fakeMempoolInfo) GetMempoolInfo(ctx context.Context) (*btcjson.GetMempoolInfoResult, error) {
	return f.info, nil
}
func (f *fakeMempoolInfo) GetVBytesPerSecond(ctx context.Context) (float64, error) { return 0, nil }
func (f *fakeMempoolInfo) GetLatestTransactions(ctx context.Context, n int) ([]collab.MempoolEntry, error) {
	return nil, nil
}
func (f *fakeMempoolInfo) IsInSync(ctx context.Context) (bool, error) { return f.inSync, nil }
func (f *fakeMempoolInfo) GetSpendMap(ctx context.Context) (map[collab.Outpoint]string, error) {
	return nil, nil
}
func (f *fakeMempoolInfo) AddToSpendMap(ctx context.Context, spender string, spent []collab.Outpoint) error {
	return nil
}
func (f *fakeMempoolInfo) RemoveFromSpendMap(ctx context.Context, spent []collab.Outpoint) error {
	return nil
}

// fakeTxUtils is a scripted TransactionUtils.
type fakeTxUtils struct {
	byTxid map[string]*collab.ExtendedTx
}

func (f *fakeTxUtils) GetMempoolTransactionExtended(ctx context.Context, txid string) (*collab.ExtendedTx, error) {
	return f.byTxid[txid], nil
}

// fakeMempoolBlocks is a scripted MempoolBlocksSource.
type fakeMempoolBlocks struct {
	templates []collab.MempoolBlockTemplate
	deltas    []collab.MempoolBlockTemplate
}

func (f *fakeMempoolBlocks) GetMempoolBlocks(ctx context.Context) ([]collab.MempoolBlockTemplate, error) {
	return f.templates, nil
}
func (f *fakeMempoolBlocks) GetMempoolBlockDeltas(ctx context.Context) ([]collab.MempoolBlockTemplate, error) {
	return f.deltas, nil
}
func (f *fakeMempoolBlocks) GetMempoolBlocksWithTransactions(ctx context.Context) ([]collab.MempoolBlockTemplate, error) {
	return f.templates, nil
}
func (f *fakeMempoolBlocks) UpdateBlockTemplates(ctx context.Context, delta collab.MempoolDelta) error {
	return nil
}
func (f *fakeMempoolBlocks) CompressTx(tx collab.MempoolEntry) collab.CompressedTx {
	return collab.CompressedTx{Txid: tx.Txid}
}

// fakeFees/fakeDifficulty return fixed, non-empty payloads so handlers that
// always attempt these lookups have something to marshal.
type fakeFees struct{}

func (fakeFees) GetRecommendedFee(ctx context.Context) (*collab.FeeEstimates, error) {
	return &collab.FeeEstimates{FastestFee: 10}, nil
}

type fakeDifficulty struct{}

func (fakeDifficulty) GetDifficultyAdjustment(ctx context.Context) (*collab.DifficultyAdjustment, error) {
	return &collab.DifficultyAdjustment{ProgressPercent: 50}, nil
}
