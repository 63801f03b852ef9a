// Package main runs the dhtnode daemon: a standalone Tox DHT node that
// bootstraps onto the network, answers DHT and onion traffic, and drives
// its own periodic maintenance loop.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/toxdht/dhtnode/pkg/autoconfig"
	"github.com/toxdht/dhtnode/pkg/bootstrap"
	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/dht"
	"github.com/toxdht/dhtnode/pkg/dhtconfig"
	"github.com/toxdht/dhtnode/pkg/dhtlog"
	"github.com/toxdht/dhtnode/pkg/dhtmetrics"
	"github.com/toxdht/dhtnode/pkg/netio"
	"github.com/toxdht/dhtnode/pkg/packet"
)

var (
	version   = "0.1.0-dev"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file (YAML format)")
	listenAddr := flag.String("listen", "", "UDP listen address (default: from config, :33445)")
	dataDir := flag.String("data-dir", "", "Data directory for the persistent keypair (default: auto-detect)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP metrics server address (default: disabled)")
	seedsFile := flag.String("seeds", "", "Path to a custom bootstrap seed list (default: embedded list)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dhtnode version %s (built %s)\n", version, buildTime)
		fmt.Println("Pure Go Tox DHT node")
		os.Exit(0)
	}

	cfg, err := dhtconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config file: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *seedsFile != "" {
		cfg.BootstrapSeedsPath = *seedsFile
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := dhtlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	log := dhtlog.New(level, os.Stdout)

	dir := *dataDir
	if dir == "" {
		dir, err = autoconfig.GetDefaultDataDir()
		if err != nil {
			log.Error("cannot determine data directory", "error", err)
			os.Exit(1)
		}
	}
	if err := autoconfig.EnsureDataDir(dir); err != nil {
		log.Error("cannot create data directory", "error", err)
		os.Exit(1)
	}

	ownPK, ownSK, err := loadOrCreateKeypair(filepath.Join(dir, "keypair"))
	if err != nil {
		log.Error("cannot load or create keypair", "error", err)
		os.Exit(1)
	}
	log.Info("node identity", "public_key", hex.EncodeToString(ownPK[:]))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log, ownPK, ownSK); err != nil {
		log.Error("fatal error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// run wires together the socket, server, metrics exposition, and periodic
// tick loop, and blocks until a shutdown signal arrives.
func run(ctx context.Context, cfg *dhtconfig.Config, log *dhtlog.Logger, ownPK cryptobox.PublicKey, ownSK cryptobox.SecretKey) error {
	outbound := netio.NewOutboundQueue(4096)
	server, err := dht.New(ownPK, ownSK, cfg, log, outbound)
	if err != nil {
		return fmt.Errorf("constructing server: %w", err)
	}
	server.EnableIPv6Mode(cfg.EnableIPv6)
	server.EnableLANDiscovery(cfg.EnableLANDiscovery)
	if err := server.SetBootstrapInfo(uint32(cfg.Version), []byte(cfg.Motd)); err != nil {
		return fmt.Errorf("setting bootstrap info: %w", err)
	}

	seedNodes(server, loadSeeds(cfg.BootstrapSeedsPath, log), log, cfg.EnableIPv6)

	listenAddr := resolveListenAddr(cfg.ListenAddr, log)
	sock, err := netio.Listen(listenAddr, log)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}
	defer sock.Close()
	log.Info("listening", "address", sock.LocalAddr().String())

	go netio.RunWriter(sock, outbound)
	go sock.Serve(ctx, func(in netio.Inbound) {
		if err := server.HandlePacket(in.Envelope, in.From); err != nil {
			log.Debug("packet handling failed", "from", in.From.String(), "error", err)
		}
	})

	var metricsServer *dhtmetrics.Server
	if cfg.MetricsAddr != "" {
		metricsServer = dhtmetrics.NewServer(cfg.MetricsAddr, server.Metrics(), log)
		if err := metricsServer.Start(); err != nil {
			log.Warn("metrics server failed to start", "error", err)
			metricsServer = nil
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				server.Tick(now)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	log.Info("dhtnode running, press Ctrl+C to exit")
	select {
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		log.Info("context cancelled", "reason", ctx.Err())
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			log.Warn("error stopping metrics server", "error", err)
		}
	}
	return nil
}

// resolveListenAddr substitutes the configured port with the next free one
// if it's already taken, so a second node on the same host can still
// start with an unmodified config rather than failing outright.
func resolveListenAddr(addr string, log *dhtlog.Logger) string {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return addr
	}
	free := autoconfig.FindAvailableUDPPort(port)
	if free == port {
		return addr
	}
	log.Warn("configured port is busy, falling back to next free port", "configured", port, "using", free)
	return net.JoinHostPort(host, strconv.Itoa(free))
}

// loadSeeds returns the custom seed list at path, or the embedded default
// if path is empty. Failures are logged and yield an empty list rather
// than aborting startup, since a node can still be reached by others even
// if it cannot bootstrap outward itself.
func loadSeeds(path string, log *dhtlog.Logger) []bootstrap.Seed {
	if path == "" {
		seeds, err := bootstrap.DefaultSeeds()
		if err != nil {
			log.Warn("failed to load embedded bootstrap seeds", "error", err)
			return nil
		}
		return seeds
	}
	f, err := os.Open(path) // #nosec G304 -- operator-supplied path, not attacker input
	if err != nil {
		log.Warn("failed to open bootstrap seed list", "path", path, "error", err)
		return nil
	}
	defer f.Close()
	seeds, err := bootstrap.LoadSeeds(f)
	if err != nil {
		log.Warn("failed to parse bootstrap seed list", "path", path, "error", err)
		return nil
	}
	return seeds
}

// seedNodes resolves every seed and feeds the reachable ones into the
// server's bootstrap candidate bucket, logging but not failing on
// individual resolution errors.
func seedNodes(server *dht.Server, seeds []bootstrap.Seed, log *dhtlog.Logger, preferV6 bool) {
	now := time.Now()
	policy := bootstrap.DefaultRetryPolicy()
	nodes := make([]packet.PackedNode, 0, len(seeds))
	for _, seed := range seeds {
		node, err := seed.ResolveWithRetry(context.Background(), !preferV6, policy)
		if err != nil {
			log.Debug("failed to resolve bootstrap seed", "host", seed.Host, "error", err)
			continue
		}
		nodes = append(nodes, node)
	}
	server.SeedBootstrap(nodes, now)
	log.Info("bootstrap seeds resolved", "resolved", len(nodes), "total", len(seeds))
}
