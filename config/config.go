// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

// Package config loads mempoolhub's runtime configuration: a go-flags
// struct populated from an ini file, environment variables, and command
// line flags, in that precedence order, mirroring the teacher's own
// loadConfig (spec section 6, "Configuration").
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "mempoolhub.conf"
	defaultLogFilename    = "mempoolhub.log"
	defaultLogLevel       = "info"
	defaultAPIListen      = "127.0.0.1:7878"
	defaultRPCHost        = "127.0.0.1:8332"

	defaultInitialBlocksAmount = 8
	defaultMaxTrackedAddresses = 1000

	appName = "mempoolhub"
)

var (
	defaultHomeDir    = btcutil.AppDataDir(appName, false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultHomeDir, "logs")
)

// Config defines the configuration options for mempoolhub.
//
// See loadConfig for details on the configuration load process.
type Config struct {
	HomeDir    string `short:"A" long:"appdata" description:"Path to application home directory" env:"MEMPOOLHUB_APPDATA_DIR"`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	LogLevel   string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`

	APIListen string `long:"apilisten" description:"Listen address for the websocket fan-out server" env:"MEMPOOLHUB_LISTEN_URL"`

	TestNet bool `long:"testnet" description:"Use the test network"`
	SimNet  bool `long:"simnet" description:"Use the simulation test network"`

	RPCHost string `long:"rpchost" description:"Bitcoin node RPC host:port"`
	RPCUser string `long:"rpcuser" description:"Bitcoin node RPC username"`
	RPCPass string `long:"rpcpass" description:"Bitcoin node RPC password"`
	RPCCert string `long:"rpccert" description:"Bitcoin node RPC TLS certificate path"`
	RPCNoTLS bool  `long:"rpcnotls" description:"Disable TLS on the node RPC connection"`

	InitialBlocksAmount int  `long:"initialblocksamount" description:"Number of recent blocks served in the init snapshot"`
	MaxTrackedAddresses int  `long:"maxtrackedaddresses" description:"Maximum plural track-addresses/track-scriptpubkeys entries per client"`
	AdvancedGBTMempool  bool `long:"advancedgbtmempool" description:"Build mempool block templates with the advanced GBT algorithm"`
	AdvancedGBTAudit    bool `long:"advancedgbtaudit" description:"Audit mined blocks against advanced GBT templates"`
	RustGBT             bool `long:"rustgbt" description:"Report rust-gbt as the active template builder in backendInfo"`
	Backend             string `long:"backend" description:"Upstream backend kind (esplora or other)"`
	Accelerations       bool `long:"accelerations" description:"Enable the acceleration subsystem"`
	Audit               bool `long:"audit" description:"Enable the block audit subsystem"`

	DBConnString string `long:"dbconn" description:"Postgres connection string for the persistence recorder" env:"MEMPOOLHUB_DB_CONN"`

	PriceFeedURL string `long:"pricefeedurl" description:"Websocket URL of the upstream price feed"`

	GopsEnabled bool `long:"gops" description:"Start a gops diagnostics agent"`
}

// defaultConfig returns a Config populated with default values only.
func defaultConfig() Config {
	return Config{
		HomeDir:             defaultHomeDir,
		ConfigFile:          defaultConfigFile,
		LogDir:              defaultLogDir,
		LogLevel:            defaultLogLevel,
		APIListen:           defaultAPIListen,
		RPCHost:             defaultRPCHost,
		InitialBlocksAmount: defaultInitialBlocksAmount,
		MaxTrackedAddresses: defaultMaxTrackedAddresses,
		Backend:             "esplora",
	}
}

// LoadConfig initializes and parses the config using a Config struct
// pre-populated with defaults, command line flags, and then an ini file
// if one exists. The home directory and config file path may both be
// overridden by environment variables, which are consulted before the
// ini file or flags are parsed, so flags override the ini file and the ini
// file overrides env vars (config_test.go's
// TestCustomHomeDirWithEnv and TestDefaultConfigAPIListenWithEnv cover the
// env overrides).
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	defaultCfgFile := defaultConfigFile

	if homeDir, ok := os.LookupEnv("MEMPOOLHUB_APPDATA_DIR"); ok && homeDir != "" {
		cfg.HomeDir = homeDir
		defaultCfgFile = filepath.Join(homeDir, defaultConfigFilename)
		cfg.ConfigFile = defaultCfgFile
		cfg.LogDir = filepath.Join(homeDir, "logs")
	}
	if configFile, ok := os.LookupEnv("MEMPOOLHUB_CONFIG_FILE"); ok && configFile != "" {
		cfg.ConfigFile = configFile
	}
	if listen, ok := os.LookupEnv("MEMPOOLHUB_LISTEN_URL"); ok && listen != "" {
		cfg.APIListen = listen
	}
	if useTestNet, ok := os.LookupEnv("MEMPOOLHUB_USE_TESTNET"); ok {
		switch useTestNet {
		case "true":
			cfg.TestNet = true
		case "false":
			cfg.TestNet = false
		default:
			return nil, fmt.Errorf("invalid boolean value %q for MEMPOOLHUB_USE_TESTNET", useTestNet)
		}
	}

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); !ok || flagErr.Type != flags.ErrHelp {
			return nil, err
		}
		os.Exit(0)
	}
	cfg = preCfg

	// An explicitly configured config file that does not exist is an
	// error; the default config file missing is not (spec-adjacent
	// error handling, matching TestLoadCustomConfigMissing /
	// TestLoadDefaultConfigMissing).
	explicitConfigFile := cfg.ConfigFile != defaultCfgFile
	if _, err := os.Stat(cfg.ConfigFile); err != nil {
		if explicitConfigFile {
			return nil, fmt.Errorf("configuration file %q does not exist", cfg.ConfigFile)
		}
	} else {
		parser := flags.NewParser(&cfg, flags.Default)
		if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
		if _, err := parser.Parse(); err != nil {
			return nil, err
		}
	}

	if cfg.TestNet && cfg.SimNet {
		return nil, fmt.Errorf("testnet and simnet cannot both be specified")
	}

	if cfg.RPCNoTLS && cfg.RPCCert != "" {
		return nil, fmt.Errorf("rpccert is set but rpcnotls disables TLS")
	}

	return &cfg, nil
}
