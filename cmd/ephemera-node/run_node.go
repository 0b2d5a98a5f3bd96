package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ephemeraapi "github.com/nymtech/ephemera/api"
	"github.com/nymtech/ephemera/apphook"
	"github.com/nymtech/ephemera/apphook/example"
	"github.com/nymtech/ephemera/broadcast"
	"github.com/nymtech/ephemera/config"
	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
	"github.com/nymtech/ephemera/mempool"
	"github.com/nymtech/ephemera/membership"
	"github.com/nymtech/ephemera/metrics"
	"github.com/nymtech/ephemera/producer"
	"github.com/nymtech/ephemera/storage"
	"github.com/nymtech/ephemera/transport"
)

var (
	runNodeConfigFile       string
	runNodeKeystorePass     string
	runNodeMetricsAggregate bool
)

var runNodeCmd = &cobra.Command{
	Use:   "run-node",
	Short: "Run a single Ephemera broadcast node",
	Long: `run-node loads --config-file, unlocks the node's keystore, and
wires together membership, mempool, the PrePrepare/Prepare/Commit protocol
coordinator, transport, storage, the HTTP/WS API, and metrics, then serves
until it receives SIGINT/SIGTERM.`,
	RunE: runRunNode,
}

func init() {
	rootCmd.AddCommand(runNodeCmd)
	runNodeCmd.Flags().StringVar(&runNodeConfigFile, "config-file", "config.yaml", "path to the node config file")
	runNodeCmd.Flags().StringVar(&runNodeKeystorePass, "keystore-password", "", "keystore decryption password (defaults to EPHEMERA_KEYSTORE_PASSWORD)")
	runNodeCmd.Flags().BoolVar(&runNodeMetricsAggregate, "with-example-apphook", false, "use the bundled metrics-aggregator application hook instead of accept-all")
}

// transportHandle defers to a *transport.Node set after construction,
// breaking the Coordinator<->Node construction cycle (the node's dispatch
// loop needs a coordinator, the coordinator's broadcast action needs the
// node).
type transportHandle struct {
	node *transport.Node
}

func (h *transportHandle) Broadcast(hash identity.Hash256, phase broadcast.BroadcastPhase, block *core.Block) error {
	return h.node.Broadcast(hash, phase, block)
}

func runRunNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runNodeConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return configErr(fmt.Errorf("config file %s not found; run init-config first", runNodeConfigFile))
		}
		return configErr(err)
	}

	priv, err := identity.LoadKeystore(cfg.KeystorePath, keystorePassword(runNodeKeystorePass))
	if err != nil {
		return ioErr(fmt.Errorf("load keystore: %w", err))
	}
	pub := priv.Public()
	localPeerID := pub.PeerID()

	members, err := buildMembershipProvider(cfg)
	if err != nil {
		return configErr(err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return ioErr(fmt.Errorf("open storage: %w", err))
	}
	blockStore := storage.NewBlockStore(db)

	var hook apphook.Hook = apphook.AcceptAll{}
	if runNodeMetricsAggregate {
		hook = example.NewMetricsAggregator()
	}

	mp := mempool.New(cfg.MaxMempoolSize, hook)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	txHandle := &transportHandle{}
	coordinator := broadcast.NewCoordinator(broadcast.Config{
		LocalPeerID:       localPeerID,
		LocalPublicKey:    pub,
		Sign:              func(hash identity.Hash256) string { return identity.Sign(priv, hash[:]) },
		ThresholdFraction: cfg.ThresholdFraction,
		StaleTimeoutMs:    cfg.StaleTimeoutMs,
		TickInterval:      time.Duration(cfg.TickIntervalMs) * time.Millisecond,
		MempoolSize:       mp.Size,
	}, broadcast.SystemClock{}, members, txHandle, blockStore, hook)

	tlsCfg, err := transport.LoadTLSConfig(transport.TLSFiles{
		CACert:   tlsPathOrEmpty(cfg, func(t *config.TLSConfig) string { return t.CACert }),
		PeerCert: tlsPathOrEmpty(cfg, func(t *config.TLSConfig) string { return t.PeerCert }),
		PeerKey:  tlsPathOrEmpty(cfg, func(t *config.TLSConfig) string { return t.PeerKey }),
	})
	if err != nil {
		return configErr(fmt.Errorf("load TLS config: %w", err))
	}

	node := transport.NewNode(localPeerID, priv, members, coordinator, tlsCfg)
	txHandle.node = node
	if err := node.Start(cfg.TransportListenAddr); err != nil {
		return ioErr(fmt.Errorf("start transport: %w", err))
	}
	defer node.Stop()

	connectToKnownPeers(node, members, localPeerID)

	apiServer := ephemeraapi.NewServer(ephemeraapi.Config{
		Addr:              cfg.APIListenAddr,
		AuthToken:         cfg.APIAuthToken,
		LocalPeerID:       localPeerID,
		ThresholdFraction: cfg.ThresholdFraction,
		BlockIntervalMs:   cfg.BlockIntervalMs,
		TickIntervalMs:    cfg.TickIntervalMs,
		StaleTimeoutMs:    cfg.StaleTimeoutMs,
	}, mp, blockStore, members)
	coordinator.Subscribe(apiServer.Hub())
	if err := apiServer.Start(); err != nil {
		return ioErr(fmt.Errorf("start API server: %w", err))
	}
	defer apiServer.Stop()

	if cfg.MetricsListenAddr != "" {
		go func() {
			if err := metrics.StartServer(cfg.MetricsListenAddr); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	prod := producer.New(producer.Config{
		LocalPeerID:         localPeerID,
		PrivateKey:          priv,
		BlockInterval:       time.Duration(cfg.BlockIntervalMs) * time.Millisecond,
		MaxMessagesPerBlock: cfg.MaxMessagesPerBlock,
		ProduceEmptyBlocks:  cfg.ProduceEmptyBlocks,
	}, mp, blockStore, coordinator, hook)

	fmt.Printf("ephemera-node %s listening: api=%s transport=%s\n", localPeerID, cfg.APIListenAddr, cfg.TransportListenAddr)

	go coordinator.Run(ctx)
	prod.Run(ctx)

	return nil
}

func buildMembershipProvider(cfg *config.Config) (membership.Provider, error) {
	switch cfg.MembershipSource {
	case config.MembershipStatic:
		pc, err := config.LoadPeers(cfg.PeersConfigFile)
		if err != nil {
			return nil, fmt.Errorf("load peers config: %w", err)
		}
		peers := make([]membership.Peer, 0, len(pc.Peers))
		for _, p := range pc.Peers {
			pub, err := identity.PubKeyFromHex(p.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("peer %s: %w", p.PeerID, err)
			}
			peers = append(peers, membership.Peer{ID: identity.PeerID(p.PeerID), PublicKey: pub, Address: p.Address})
		}
		return membership.NewStaticProvider(peers), nil
	case config.MembershipHTTP:
		provider := membership.NewHTTPProvider(cfg.MembershipURL, 30*time.Second)
		if err := provider.Start(context.Background()); err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown membership_source %q", cfg.MembershipSource)
	}
}

func tlsPathOrEmpty(cfg *config.Config, f func(*config.TLSConfig) string) string {
	if cfg.TLS == nil {
		return ""
	}
	return f(cfg.TLS)
}

func connectToKnownPeers(node *transport.Node, members membership.Provider, localPeerID identity.PeerID) {
	snap, err := members.Current()
	if err != nil {
		return
	}
	for _, p := range snap.Peers() {
		if p.ID == localPeerID || p.Address == "" {
			continue
		}
		if err := node.Connect(p.ID, p.Address); err != nil {
			fmt.Fprintf(os.Stderr, "connect to peer %s @ %s: %v\n", p.ID, p.Address, err)
		}
	}
}
