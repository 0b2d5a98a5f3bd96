package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nymtech/ephemera/config"
	"github.com/nymtech/ephemera/identity"
)

var (
	initPeersConfigFile   string
	initPeersFile         string
	initPeersAddress      string
	initPeersKeystorePass string
)

var initLocalPeersConfigCmd = &cobra.Command{
	Use:   "init-local-peers-config",
	Short: "Write a peers file seeded with this node's own entry",
	Long: `init-local-peers-config reads this node's keystore (as configured
in --config-file) and writes a peers file containing a single entry for the
local node, reachable at --address. Operators merge the generated peers
files from every node in the group into one shared file before run-node.`,
	RunE: runInitLocalPeersConfig,
}

func init() {
	rootCmd.AddCommand(initLocalPeersConfigCmd)
	initLocalPeersConfigCmd.Flags().StringVar(&initPeersConfigFile, "config-file", "config.yaml", "path to the node config file")
	initLocalPeersConfigCmd.Flags().StringVar(&initPeersFile, "peers-config", "peers.yaml", "path to write the peers file")
	initLocalPeersConfigCmd.Flags().StringVar(&initPeersAddress, "address", "", "this node's advertised host:port for transport dial (required)")
	initLocalPeersConfigCmd.Flags().StringVar(&initPeersKeystorePass, "keystore-password", "", "keystore decryption password (defaults to EPHEMERA_KEYSTORE_PASSWORD)")
}

func runInitLocalPeersConfig(cmd *cobra.Command, args []string) error {
	if initPeersAddress == "" {
		return configErr(fmt.Errorf("--address is required"))
	}

	cfg, err := config.Load(initPeersConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return configErr(fmt.Errorf("config file %s not found; run init-config first", initPeersConfigFile))
		}
		return configErr(err)
	}

	priv, err := identity.LoadKeystore(cfg.KeystorePath, keystorePassword(initPeersKeystorePass))
	if err != nil {
		return ioErr(fmt.Errorf("load keystore: %w", err))
	}
	pub := priv.Public()

	pc := &config.PeersConfig{
		Peers: []config.Peer{{
			PeerID:    string(pub.PeerID()),
			PublicKey: pub.Hex(),
			Address:   initPeersAddress,
		}},
	}
	if err := config.SavePeers(pc, initPeersFile); err != nil {
		return ioErr(fmt.Errorf("write peers file: %w", err))
	}

	fmt.Printf("Wrote peers file to %s (peer %s @ %s)\n", initPeersFile, pub.PeerID(), initPeersAddress)
	return nil
}
