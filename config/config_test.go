package config

import (
	"flag"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

var tempConfigFile *os.File
var tempAppDataDir string

func TestMain(m *testing.M) {
	// Temp config file is used to ensure there are no external influences
	// from previously set env variables or default config files.
	tempConfigFile, _ = ioutil.TempFile("", "mempoolhub_test_file.cfg")
	defer os.Remove(tempConfigFile.Name())
	os.Setenv("MEMPOOLHUB_CONFIG_FILE", tempConfigFile.Name())

	tempAppDataDir, _ = ioutil.TempDir("", "mempoolhub_test_appdata")
	defer os.RemoveAll(tempAppDataDir)

	// Parse the -test.* flags before removing them from the command line
	// arguments list, which we do to allow go-flags to succeed.
	flag.Parse()
	os.Args = os.Args[:1]
	m.Run()
	os.Unsetenv("MEMPOOLHUB_CONFIG_FILE")
}

// disableConfigFileEnv unsets MEMPOOLHUB_CONFIG_FILE, returning a func that
// restores it to its previous state.
func disableConfigFileEnv() func() {
	loc, wasSet := os.LookupEnv("MEMPOOLHUB_CONFIG_FILE")
	if wasSet {
		os.Unsetenv("MEMPOOLHUB_CONFIG_FILE")
		return func() { os.Setenv("MEMPOOLHUB_CONFIG_FILE", loc) }
	}
	return func() {}
}

func TestLoadCustomConfigPresent(t *testing.T) {
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("Failed to load mempoolhub config: %v", err)
	}
}

func TestLoadDefaultConfigMissing(t *testing.T) {
	restoreConfigFileLoc := disableConfigFileEnv()
	defer restoreConfigFileLoc()

	os.Setenv("MEMPOOLHUB_APPDATA_DIR", tempAppDataDir)
	defer os.Unsetenv("MEMPOOLHUB_APPDATA_DIR")

	if _, err := LoadConfig(); err != nil {
		t.Fatalf("Failed to load mempoolhub config: %v", err)
	}
}

func TestLoadCustomConfigMissing(t *testing.T) {
	restoreConfigFileLoc := disableConfigFileEnv()
	defer restoreConfigFileLoc()

	goneFile, _ := ioutil.TempFile("", "blah")
	os.Remove(goneFile.Name())
	os.Setenv("MEMPOOLHUB_CONFIG_FILE", goneFile.Name())

	if _, err := LoadConfig(); err == nil {
		t.Errorf("Loaded mempoolhub config, but the explicitly set config file %s does not exist.", goneFile.Name())
	}
}

func TestLoadDefaultConfigPathCustomAppdata(t *testing.T) {
	restoreConfigFileLoc := disableConfigFileEnv()
	defer restoreConfigFileLoc()

	os.Setenv("MEMPOOLHUB_APPDATA_DIR", tempAppDataDir)
	defer os.Unsetenv("MEMPOOLHUB_APPDATA_DIR")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load mempoolhub config: %v", err)
	}

	expected := filepath.Join(tempAppDataDir, defaultConfigFilename)
	if cfg.ConfigFile != expected {
		t.Errorf("Default config file expected at %s, got %s", expected, cfg.ConfigFile)
	}
}

func TestDefaultConfigAPIListen(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load mempoolhub config: %v", err)
	}
	if cfg.APIListen != defaultAPIListen {
		t.Errorf("Expected API listen URL %s, got %s", defaultAPIListen, cfg.APIListen)
	}
}

func TestDefaultConfigAPIListenWithEnv(t *testing.T) {
	customListenPath := "0.0.0.0:7777"
	os.Setenv("MEMPOOLHUB_LISTEN_URL", customListenPath)
	defer os.Unsetenv("MEMPOOLHUB_LISTEN_URL")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load mempoolhub config: %v", err)
	}
	if cfg.APIListen != customListenPath {
		t.Errorf("Expected API listen URL %s, got %s", customListenPath, cfg.APIListen)
	}
}

func TestCustomHomeDirWithEnv(t *testing.T) {
	restoreConfigFileLoc := disableConfigFileEnv()
	defer restoreConfigFileLoc()

	os.Setenv("MEMPOOLHUB_APPDATA_DIR", tempAppDataDir)
	defer os.Unsetenv("MEMPOOLHUB_APPDATA_DIR")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load mempoolhub config: %v", err)
	}
	if cfg.HomeDir != tempAppDataDir {
		t.Errorf("Expected appdata directory %s, got %s", tempAppDataDir, cfg.HomeDir)
	}
}

func TestDefaultConfigNetwork(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load mempoolhub config: %v", err)
	}
	if cfg.TestNet || cfg.SimNet {
		t.Errorf("Default config should be for mainnet but was not.")
	}
}

func TestDefaultConfigTestNetWithEnv(t *testing.T) {
	os.Setenv("MEMPOOLHUB_USE_TESTNET", "true")
	defer os.Unsetenv("MEMPOOLHUB_USE_TESTNET")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load mempoolhub config: %v", err)
	}
	if !cfg.TestNet {
		t.Errorf("Testnet was specified via environment variable, but not using testnet.")
	}
}

func TestDefaultConfigTestNetWithEnvAndBadValue(t *testing.T) {
	os.Setenv("MEMPOOLHUB_USE_TESTNET", "no")
	defer os.Unsetenv("MEMPOOLHUB_USE_TESTNET")

	if _, err := LoadConfig(); err == nil {
		t.Errorf("Invalid boolean value for MEMPOOLHUB_USE_TESTNET did not cause an error.")
	}
}

func TestTestNetAndSimNetConflict(t *testing.T) {
	os.Args = append(os.Args, "--testnet", "--simnet")
	defer func() { os.Args = os.Args[:len(os.Args)-2] }()

	if _, err := LoadConfig(); err == nil {
		t.Errorf("testnet and simnet together should be rejected")
	}
}
