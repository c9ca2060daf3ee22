// Copyright (c) 2018, The Fonero developers
// Copyright (c) 2017, Jonathan Chappelow
// See LICENSE for details.

// Package rpcutils wraps connection setup to a bitcoind/btcd node's JSON-RPC
// server, adapted from the teacher's own rpcutils.ConnectNodeRPC for the
// Bitcoin Core RPC surface (getblock, getrawmempool, sendrawtransaction)
// instead of fnod's.
package rpcutils

import (
	"fmt"
	"io/ioutil"

	"github.com/btcsuite/btcd/rpcclient"
)

// ConnectNodeRPC attempts to create a new RPC client connection to a
// bitcoind/btcd node, with the given credentials. If disableTLS is true,
// cert is ignored and the connection is made in plaintext, appropriate
// for a node listening only on localhost.
func ConnectNodeRPC(host, user, pass, cert string, disableTLS bool) (*rpcclient.Client, error) {
	var nodeCerts []byte
	var err error
	if !disableTLS {
		nodeCerts, err = ioutil.ReadFile(cert)
		if err != nil {
			log.Errorf("Failed to read node RPC cert file at %s: %s", cert, err)
			return nil, err
		}
		log.Debugf("Attempting to connect to node RPC %s as user %s using certificate in %s",
			host, user, cert)
	} else {
		log.Debugf("Attempting to connect to node RPC %s as user %s (no TLS)", host, user)
	}

	connCfg := &rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		Certificates: nodeCerts,
		DisableTLS:   disableTLS,
		HTTPPostMode: true, // bitcoind RPC is plain HTTP POST, not a persistent websocket
	}

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start node RPC client: %w", err)
	}

	if _, err := client.GetBlockChainInfo(); err != nil {
		client.Shutdown()
		return nil, fmt.Errorf("node RPC connection check failed: %w", err)
	}

	return client, nil
}
