// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

package collab

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/blockwatch/mempoolhub/netparams"
)

// NodeCollaborator answers the handful of collaborator interfaces that are
// a direct, stateless read from the node RPC connection: recent blocks,
// difficulty adjustment, fee estimates, and backend identity. It is
// grounded on the teacher's own blockdata.Collector (same nodeChainSvr +
// netParams pairing), but where Collector gathers one block's full detail
// for storage, NodeCollaborator answers the fan-out engine's lighter,
// summary-shaped questions directly.
//
// The remaining collaborator interfaces (MempoolSource, RbfNotifier,
// MempoolBlocksSource, RbfCache, TransactionUtils, Common, Loading,
// Statistics) are the live mempool engine's responsibility -- a stateful
// subsystem that tracks the mempool, builds block templates, and detects
// RBF chains incrementally as transactions arrive. That subsystem is out
// of scope for this pass (see DESIGN.md); every fan-out handler already
// guards on these fields being non-nil, so leaving them unset in
// main.go's wiring is safe, not a crash risk.
type NodeCollaborator struct {
	client *rpcclient.Client
	params *netparams.Params

	backend   string
	rustGBT   bool
	version   string
	gitCommit string
}

// NewNodeCollaborator constructs a NodeCollaborator reading from client.
func NewNodeCollaborator(client *rpcclient.Client, params *netparams.Params, backend string, rustGBT bool, version, gitCommit string) *NodeCollaborator {
	return &NodeCollaborator{
		client:    client,
		params:    params,
		backend:   backend,
		rustGBT:   rustGBT,
		version:   version,
		gitCommit: gitCommit,
	}
}

var _ BlocksSource = (*NodeCollaborator)(nil)
var _ DifficultyAdjustmentSource = (*NodeCollaborator)(nil)
var _ FeeSource = (*NodeCollaborator)(nil)
var _ BackendInfoSource = (*NodeCollaborator)(nil)
var _ BitcoinAPI = (*NodeCollaborator)(nil)

// GetBlocks returns the most recent count confirmed blocks, tip first,
// satisfying BlocksSource (spec section 6, "blocks.getBlocks()").
func (n *NodeCollaborator) GetBlocks(ctx context.Context, count int) ([]Block, error) {
	bestHash, err := n.client.GetBestBlockHash()
	if err != nil {
		return nil, err
	}

	out := make([]Block, 0, count)
	hash := bestHash
	for i := 0; i < count && hash != nil; i++ {
		header, err := n.client.GetBlockVerbose(hash)
		if err != nil {
			return nil, err
		}
		out = append(out, Block{
			Height:  int64(header.Height),
			Hash:    *hash,
			Time:    time.Unix(header.Time, 0),
			TxCount: len(header.Tx),
		})
		if header.PreviousHash == "" {
			break
		}
		prevHash, err := chainhash.NewHashFromStr(header.PreviousHash)
		if err != nil {
			return out, nil
		}
		hash = prevHash
	}
	return out, nil
}

// GetDifficultyAdjustment estimates progress toward the next retarget,
// satisfying DifficultyAdjustmentSource. Bitcoin retargets every 2016
// blocks; progress and remaining-blocks are derived from the tip height
// modulo that window, and the estimated retarget time is extrapolated
// from the node's average block time over the current window.
func (n *NodeCollaborator) GetDifficultyAdjustment(ctx context.Context) (*DifficultyAdjustment, error) {
	info, err := n.client.GetBlockChainInfo()
	if err != nil {
		return nil, err
	}

	const retargetWindow = 2016
	height := int64(info.Blocks)
	windowStart := (height / retargetWindow) * retargetWindow
	blocksIn := height - windowStart
	remaining := retargetWindow - blocksIn
	progress := float64(blocksIn) / retargetWindow * 100

	var avgBlockTime float64 = 600 // seconds, Bitcoin's target spacing
	if blocksIn > 0 {
		tipHash, err := n.client.GetBlockHash(height)
		startHash, err2 := n.client.GetBlockHash(windowStart)
		if err == nil && err2 == nil {
			tipHeader, err3 := n.client.GetBlockHeaderVerbose(tipHash)
			startHeader, err4 := n.client.GetBlockHeaderVerbose(startHash)
			if err3 == nil && err4 == nil {
				elapsed := tipHeader.Time - startHeader.Time
				avgBlockTime = float64(elapsed) / float64(blocksIn)
			}
		}
	}
	remainingTime := int64(avgBlockTime * float64(remaining))

	return &DifficultyAdjustment{
		ProgressPercent:       progress,
		DifficultyChange:      0, // requires comparing to the prior window's average, not computed here
		EstimatedRetargetDate: time.Now().Unix() + remainingTime,
		RemainingBlocks:       int(remaining),
		RemainingTime:         remainingTime,
	}, nil
}

// GetRecommendedFee estimates sat/vB at a handful of target confirmation
// counts using the node's own smart fee estimator, satisfying FeeSource.
func (n *NodeCollaborator) GetRecommendedFee(ctx context.Context) (*FeeEstimates, error) {
	fastest := n.estimateSatVB(1)
	halfHour := n.estimateSatVB(3)
	hour := n.estimateSatVB(6)
	economy := n.estimateSatVB(144)

	minimum := economy
	if minimum <= 0 {
		minimum = 1
	}

	return &FeeEstimates{
		FastestFee:  fastest,
		HalfHourFee: halfHour,
		HourFee:     hour,
		EconomyFee:  economy,
		MinimumFee:  minimum,
	}, nil
}

// estimateSatVB converts the node's BTC/kB smart-fee estimate to sat/vB,
// falling back to 1 sat/vB if the node has insufficient data for target.
func (n *NodeCollaborator) estimateSatVB(target int64) int64 {
	est, err := n.client.EstimateSmartFee(target, nil)
	if err != nil || est.FeeRate == nil {
		return 1
	}
	satPerVB := int64(*est.FeeRate * 1e8 / 1000)
	if satPerVB < 1 {
		satPerVB = 1
	}
	return satPerVB
}

// GetBackendInfo reports the configured backend identity, satisfying
// BackendInfoSource. Version/commit/RustGBT are configured at startup
// (spec section 6, "Configuration") rather than discovered from the node.
func (n *NodeCollaborator) GetBackendInfo(ctx context.Context) (*BackendInfo, error) {
	network := "mainnet"
	if n.params != nil && n.params.Params != nil {
		network = n.params.Params.Name
	}
	return &BackendInfo{
		Backend:   n.backend,
		Version:   n.version,
		GitCommit: n.gitCommit,
		RustGBT:   n.rustGBT,
		Network:   network,
	}, nil
}

// GetHealthStatus reports whether the node RPC connection is responsive,
// satisfying BitcoinAPI (the `tomahawk` health-check field).
func (n *NodeCollaborator) GetHealthStatus(ctx context.Context) (*HealthStatus, error) {
	if _, err := n.client.GetBlockCount(); err != nil {
		return &HealthStatus{Healthy: false, Message: err.Error()}, nil
	}
	return &HealthStatus{Healthy: true}, nil
}
