// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/slog"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"

	"github.com/blockwatch/mempoolhub/blockdata"
	"github.com/blockwatch/mempoolhub/collab"
	"github.com/blockwatch/mempoolhub/config"
	"github.com/blockwatch/mempoolhub/db/recorder"
	"github.com/blockwatch/mempoolhub/fanout"
	"github.com/blockwatch/mempoolhub/logger"
	"github.com/blockwatch/mempoolhub/metrics"
	"github.com/blockwatch/mempoolhub/netparams"
	notify "github.com/blockwatch/mempoolhub/notification"
	"github.com/blockwatch/mempoolhub/pricefeed"
	"github.com/blockwatch/mempoolhub/pubsub"
	"github.com/blockwatch/mempoolhub/rpcutils"
)

// appVersion and appGitCommit are set via -ldflags at build time; see
// the teacher's own version package, which this repo did not carry
// forward since it has no release/build-info surface of its own beyond
// the single backendInfo field these feed.
var (
	appVersion   = "dev"
	appGitCommit = ""
)

var log = logger.NewSubLogger("MAIN", slog.LevelInfo)

func main() {
	ctx := withShutdownCancel(context.Background())
	go shutdownListener()

	if err := _main(ctx); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

// _main does all the work; main wraps it so deferred cleanup always runs
// before os.Exit, matching the teacher's own main/_main split.
func _main(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load mempoolhub config: %s\n", err.Error())
		return err
	}

	if err := logger.InitLogRotator(filepath.Join(cfg.LogDir, "mempoolhub.log")); err != nil {
		fmt.Printf("Failed to init log rotator: %s\n", err.Error())
		return err
	}

	level, ok := slog.LevelFromString(cfg.LogLevel)
	if !ok {
		level = slog.LevelInfo
	}
	fanout.UseLogger(logger.NewSubLogger("FNOT", level))
	pubsub.UseLogger(logger.NewSubLogger("PSRV", level))
	blockdata.UseLogger(logger.NewSubLogger("BLKD", level))
	rpcutils.UseLogger(logger.NewSubLogger("RPCU", level))
	pricefeed.UseLogger(logger.NewSubLogger("PRCF", level))

	if cfg.GopsEnabled {
		if err := agent.Listen(agent.Options{}); err != nil {
			return err
		}
		defer agent.Close()
	}

	params := netparams.ByName(cfg.TestNet, cfg.SimNet)

	log.Infof("Connecting to node RPC at %s...", cfg.RPCHost)
	nodeClient, err := rpcutils.ConnectNodeRPC(cfg.RPCHost, cfg.RPCUser, cfg.RPCPass, cfg.RPCCert, cfg.RPCNoTLS)
	if err != nil {
		log.Errorf("Failed to connect to node RPC: %v", err)
		return err
	}
	defer nodeClient.Shutdown()

	if shutdownRequested(ctx) {
		return nil
	}

	collaborators := collab.Collaborators{
		Blocks:     collab.NewNodeCollaborator(nodeClient, &params, cfg.Backend, cfg.RustGBT, appVersion, appGitCommit),
		Difficulty: collab.NewNodeCollaborator(nodeClient, &params, cfg.Backend, cfg.RustGBT, appVersion, appGitCommit),
		Fees:       collab.NewNodeCollaborator(nodeClient, &params, cfg.Backend, cfg.RustGBT, appVersion, appGitCommit),
		Backend:    collab.NewNodeCollaborator(nodeClient, &params, cfg.Backend, cfg.RustGBT, appVersion, appGitCommit),
		BitcoinAPI: collab.NewNodeCollaborator(nodeClient, &params, cfg.Backend, cfg.RustGBT, appVersion, appGitCommit),
		// Mempool, Rbf, MempoolBlocks, RbfCache, TxUtils, Common, Loading,
		// and Statistics are the live mempool engine's responsibility, a
		// separate stateful subsystem out of scope for this pass (see
		// DESIGN.md). Every fanout handler guards on these being non-nil.
	}

	if cfg.DBConnString != "" {
		rec, err := recorder.New(cfg.DBConnString)
		if err != nil {
			log.Errorf("Failed to connect to persistence database: %v", err)
			return err
		}
		defer rec.Close()
		collaborators.Persistence = rec
	}

	var priceClient *pricefeed.Client
	if cfg.PriceFeedURL != "" {
		priceClient = pricefeed.New(cfg.PriceFeedURL)
		go priceClient.Run(ctx)
		collaborators.Price = priceClient
	}

	engine := fanout.NewEngine(collaborators, cfg)
	engine.Metrics = metrics.New(prometheus.DefaultRegisterer)

	notify.MakeNtfnChans(false)
	defer notify.CloseNtfnChans()

	blockCollector := blockdata.NewCollector(nodeClient, &params)
	var wg sync.WaitGroup
	monitor := blockdata.NewChainMonitor(ctx, blockCollector,
		[]blockdata.BlockDataSaver{&newBlockSaver{engine: engine}},
		[]blockdata.BlockDataSaver{&reorgSaver{engine: engine}},
		&wg, notify.NtfnChans.ConnectChan, notify.NtfnChans.ReorgChan)

	wg.Add(2)
	go monitor.BlockConnectedHandler()
	go monitor.ReorgHandler()
	go pollNewBlocks(ctx, nodeClient, notify.NtfnChans.ConnectChan)

	server := pubsub.NewServer(engine)

	mux := chi.NewRouter()
	mux.Use(middleware.Logger)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Default().Handler)
	mux.Get("/ws", server.WebSocketHandler)
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:         cfg.APIListen,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	wg.Add(1)
	go func() {
		<-ctx.Done()
		log.Infof("Gracefully shutting down web server...")
		if err := httpServer.Shutdown(context.Background()); err != nil {
			log.Infof("HTTP server Shutdown: %v", err)
		}
		wg.Done()
	}()

	log.Infof("Now serving the fan-out server on %s", cfg.APIListen)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Failed to start server: %v", err)
			requestShutdown()
		}
	}()

	wg.Wait()
	return nil
}

// newBlockSaver adapts the fan-out Engine's HandleNewBlock to
// blockdata.BlockDataSaver, the interface blockdata.ChainMonitor delivers
// collected block data through on a normal block-connected notification.
type newBlockSaver struct {
	engine *fanout.Engine
}

func (s *newBlockSaver) Store(data *collab.Block, msgBlock *btcjson.GetBlockVerboseTxResult) error {
	minedTxids := make([]string, 0, len(msgBlock.Tx))
	for _, tx := range msgBlock.Tx {
		minedTxids = append(minedTxids, tx.Txid)
	}
	return s.engine.HandleNewBlock(context.Background(), fanout.NewBlockEvent{
		Block:      *data,
		MinedTxids: minedTxids,
	})
}

// reorgSaver adapts the fan-out Engine's HandleReorg to
// blockdata.BlockDataSaver, delivered the new tip's collected data when
// ChainMonitor settles a reorg (spec section 4.2, "Reorg").
type reorgSaver struct {
	engine *fanout.Engine
}

func (s *reorgSaver) Store(data *collab.Block, msgBlock *btcjson.GetBlockVerboseTxResult) error {
	return s.engine.HandleReorg(context.Background(), *data)
}

// pollNewBlocks periodically checks for a new chain tip and feeds it to
// blockChan, grounded on the teacher's ConnectChan contract
// (blockdata.ChainMonitor expects to be fed block hashes by something
// upstream). A plain bitcoind RPC connection in HTTP POST mode -- the
// only mode rpcutils.ConnectNodeRPC uses -- has no notification
// transport of its own (that needs either a persistent websocket RPC
// connection or ZMQ), so polling the best block hash is the simplest
// thing that reliably drives the chain monitor without adding another
// transport dependency.
func pollNewBlocks(ctx context.Context, client interface {
	GetBestBlockHash() (*chainhash.Hash, error)
}, blockChan chan<- *chainhash.Hash) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastHash chainhash.Hash
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hash, err := client.GetBestBlockHash()
			if err != nil {
				log.Debugf("pollNewBlocks: %v", err)
				continue
			}
			if *hash == lastHash {
				continue
			}
			lastHash = *hash
			select {
			case blockChan <- hash:
			case <-ctx.Done():
				return
			}
		}
	}
}
