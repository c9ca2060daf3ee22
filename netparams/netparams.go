// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2016-2017 The Fonero developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import "github.com/btcsuite/btcd/chaincfg"

// Params groups a chaincfg.Params with the default RPC port mempoolhub
// connects to on that network.
type Params struct {
	*chaincfg.Params
	RPCClientPort string
}

// MainNetParams contains parameters for running against a bitcoind/btcd
// node on the main network (wire.MainNet).
var MainNetParams = Params{
	Params:        &chaincfg.MainNetParams,
	RPCClientPort: "8332",
}

// TestNetParams contains parameters for running against a bitcoind/btcd
// node on testnet3 (wire.TestNet3).
var TestNetParams = Params{
	Params:        &chaincfg.TestNet3Params,
	RPCClientPort: "18332",
}

// SimNetParams contains parameters for the simulation test network
// (wire.SimNet).
var SimNetParams = Params{
	Params:        &chaincfg.SimNetParams,
	RPCClientPort: "18556",
}

// ByName returns the Params selected by the config's testnet/simnet flags:
// testnet wins when both are set, and mainnet is returned when neither is.
func ByName(testNet, simNet bool) Params {
	switch {
	case testNet:
		return TestNetParams
	case simNet:
		return SimNetParams
	default:
		return MainNetParams
	}
}
