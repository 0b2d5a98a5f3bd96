package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nymtech/ephemera/config"
	"github.com/nymtech/ephemera/identity"
)

var (
	initConfigFile         string
	initConfigKeystorePass string
	initConfigForce        bool
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a default node configuration and generate its keystore",
	Long: `init-config writes a default config.yaml to --config-file and
generates a fresh ed25519 node keypair at the configured keystore path,
encrypted with the password in EPHEMERA_KEYSTORE_PASSWORD (or
--keystore-password).`,
	RunE: runInitConfig,
}

func init() {
	rootCmd.AddCommand(initConfigCmd)
	initConfigCmd.Flags().StringVar(&initConfigFile, "config-file", "config.yaml", "path to write the config file")
	initConfigCmd.Flags().StringVar(&initConfigKeystorePass, "keystore-password", "", "keystore encryption password (defaults to EPHEMERA_KEYSTORE_PASSWORD)")
	initConfigCmd.Flags().BoolVar(&initConfigForce, "force", false, "overwrite an existing config file")
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	if !initConfigForce {
		if _, err := os.Stat(initConfigFile); err == nil {
			return configErr(fmt.Errorf("%s already exists; pass --force to overwrite", initConfigFile))
		}
	}

	cfg := config.DefaultConfig()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return ioErr(fmt.Errorf("create data dir: %w", err))
	}

	password := keystorePassword(initConfigKeystorePass)
	priv, pub, err := identity.GenerateKeyPair()
	if err != nil {
		return runtimeErr(fmt.Errorf("generate keypair: %w", err))
	}
	if err := identity.SaveKeystore(cfg.KeystorePath, password, priv); err != nil {
		return ioErr(fmt.Errorf("save keystore: %w", err))
	}

	if err := config.Save(cfg, initConfigFile); err != nil {
		return ioErr(fmt.Errorf("write config: %w", err))
	}

	fmt.Printf("Wrote config to %s\n", initConfigFile)
	fmt.Printf("Generated keystore at %s\n", cfg.KeystorePath)
	fmt.Printf("Peer ID: %s\n", pub.PeerID())
	return nil
}

func keystorePassword(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("EPHEMERA_KEYSTORE_PASSWORD")
}
