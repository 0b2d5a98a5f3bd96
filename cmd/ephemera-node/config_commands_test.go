package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nymtech/ephemera/config"
)

func TestRunInitConfigWritesConfigAndKeystore(t *testing.T) {
	t.Chdir(t.TempDir())

	initConfigFile = "config.yaml"
	initConfigKeystorePass = "test-pass"
	initConfigForce = false
	t.Cleanup(func() { initConfigFile, initConfigKeystorePass, initConfigForce = "config.yaml", "", false })

	if err := runInitConfig(nil, nil); err != nil {
		t.Fatalf("runInitConfig: %v", err)
	}

	if _, err := os.Stat(initConfigFile); err != nil {
		t.Errorf("expected config file to exist: %v", err)
	}
	cfg, err := config.Load(initConfigFile)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if _, err := os.Stat(cfg.KeystorePath); err != nil {
		t.Errorf("expected keystore to exist at %s: %v", cfg.KeystorePath, err)
	}
}

func TestRunInitConfigRefusesOverwriteWithoutForce(t *testing.T) {
	t.Chdir(t.TempDir())

	initConfigFile = "config.yaml"
	initConfigKeystorePass = "test-pass"
	initConfigForce = false
	t.Cleanup(func() { initConfigFile, initConfigKeystorePass, initConfigForce = "config.yaml", "", false })

	if err := runInitConfig(nil, nil); err != nil {
		t.Fatalf("first runInitConfig: %v", err)
	}
	if err := runInitConfig(nil, nil); err == nil {
		t.Error("a second runInitConfig without --force must fail")
	}

	initConfigForce = true
	if err := runInitConfig(nil, nil); err != nil {
		t.Errorf("runInitConfig with --force must succeed: %v", err)
	}
}

func TestRunInitLocalPeersConfigRequiresAddress(t *testing.T) {
	t.Chdir(t.TempDir())
	initPeersAddress = ""
	t.Cleanup(func() { initPeersAddress = "" })

	if err := runInitLocalPeersConfig(nil, nil); err == nil {
		t.Error("runInitLocalPeersConfig must require --address")
	}
}

func TestRunInitLocalPeersConfigWritesPeersFile(t *testing.T) {
	t.Chdir(t.TempDir())

	initConfigFile = "config.yaml"
	initConfigKeystorePass = "pass"
	initConfigForce = false
	if err := runInitConfig(nil, nil); err != nil {
		t.Fatalf("runInitConfig: %v", err)
	}

	initPeersConfigFile = "config.yaml"
	initPeersFile = "peers.yaml"
	initPeersAddress = "127.0.0.1:30303"
	initPeersKeystorePass = "pass"
	t.Cleanup(func() {
		initConfigFile, initConfigKeystorePass, initConfigForce = "config.yaml", "", false
		initPeersConfigFile, initPeersFile, initPeersAddress, initPeersKeystorePass = "config.yaml", "peers.yaml", "", ""
	})

	if err := runInitLocalPeersConfig(nil, nil); err != nil {
		t.Fatalf("runInitLocalPeersConfig: %v", err)
	}

	pc, err := config.LoadPeers(initPeersFile)
	if err != nil {
		t.Fatalf("config.LoadPeers: %v", err)
	}
	if len(pc.Peers) != 1 || pc.Peers[0].Address != "127.0.0.1:30303" {
		t.Errorf("unexpected peers file contents: %+v", pc.Peers)
	}
}

func TestRunInitLocalPeersConfigMissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	initPeersConfigFile = "nonexistent.yaml"
	initPeersAddress = "127.0.0.1:1"
	t.Cleanup(func() { initPeersConfigFile, initPeersAddress = "config.yaml", "" })

	if err := runInitLocalPeersConfig(nil, nil); err == nil {
		t.Error("runInitLocalPeersConfig must fail when the config file is missing")
	}
}

func TestRunUpdateConfigRequiresProperty(t *testing.T) {
	t.Chdir(t.TempDir())
	updateConfigProperty = ""
	t.Cleanup(func() { updateConfigProperty = "" })

	if err := runUpdateConfig(nil, nil); err == nil {
		t.Error("runUpdateConfig must require --property")
	}
}

func TestRunUpdateConfigUpdatesExistingFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	initConfigFile = "config.yaml"
	initConfigKeystorePass = "pass"
	initConfigForce = false
	if err := runInitConfig(nil, nil); err != nil {
		t.Fatalf("runInitConfig: %v", err)
	}

	updateConfigFile = "config.yaml"
	updateConfigProperty = "api_auth_token"
	updateConfigValue = "new-token"
	t.Cleanup(func() {
		initConfigFile, initConfigKeystorePass, initConfigForce = "config.yaml", "", false
		updateConfigFile, updateConfigProperty, updateConfigValue = "config.yaml", "", ""
	})

	if err := runUpdateConfig(nil, nil); err != nil {
		t.Fatalf("runUpdateConfig: %v", err)
	}

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIAuthToken != "new-token" {
		t.Errorf("api_auth_token = %q, want %q", cfg.APIAuthToken, "new-token")
	}
}

func TestKeystorePasswordPrefersFlagOverEnv(t *testing.T) {
	t.Setenv("EPHEMERA_KEYSTORE_PASSWORD", "from-env")
	if got := keystorePassword("from-flag"); got != "from-flag" {
		t.Errorf("keystorePassword = %q, want %q", got, "from-flag")
	}
	if got := keystorePassword(""); got != "from-env" {
		t.Errorf("keystorePassword fallback = %q, want %q", got, "from-env")
	}
}
