package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/appealproxy/internal/config"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/proxy"
	"github.com/eigerco/appealproxy/internal/simulated"
	"github.com/eigerco/appealproxy/internal/store"
	"github.com/eigerco/appealproxy/pkg/db/pebble"
	"github.com/eigerco/appealproxy/pkg/log"
	"github.com/eigerco/appealproxy/pkg/network"
)

const shutdownTimeout = 5 * time.Second

// main runs an appeal proxy node against the simulated arbitrator and oracle.
// go run ./cmd/appealproxy -config configs/devnet.yaml
func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	genKey := flag.Bool("genkey", false, "Print a new hex ed25519 private key and its public key, then exit")
	flag.Parse()

	if *genKey {
		if err := printKey(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := initLogging(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Root.Error().Err(err).Msg("node stopped")
		os.Exit(1)
	}
}

func printKey() error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return err
	}
	fmt.Printf("private_key: %s\npublic_key: %s\naddress: %s\n",
		hex.EncodeToString(priv.Seed()), hex.EncodeToString(pub), crypto.AddressFromPublicKey(pub))
	return nil
}

func initLogging(cfg config.LogConfig) error {
	level, err := log.ParseLogLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	loggerType, err := log.ParseLoggerType(cfg.Type)
	if err != nil {
		return err
	}
	log.Init(log.Options{LogLevel: level, Type: loggerType})
	return nil
}

func run(ctx context.Context, cfg config.Config) error {
	kvStore, err := pebble.Open(pebble.Options{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	defer func() {
		if err := kvStore.Close(); err != nil {
			log.Store.Error().Err(err).Msg("failed to close kv-store")
		}
	}()

	ledger, err := store.NewLedger(kvStore, cfg.Database.CacheSize)
	if err != nil {
		return err
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			log.Store.Error().Err(err).Msg("failed to close ledger")
		}
	}()

	proxyCfg, err := cfg.ProxyConfig()
	if err != nil {
		return err
	}
	arbitratorAddress, err := cfg.ArbitratorAddress()
	if err != nil {
		return err
	}
	arbitrationCost, err := cfg.ArbitrationCost()
	if err != nil {
		return err
	}
	operators, err := cfg.OperatorKeys()
	if err != nil {
		return err
	}

	arbitrator := simulated.NewArbitrator(arbitratorAddress, arbitrationCost, nil)
	oracle := simulated.NewOracle()
	p, err := proxy.New(proxyCfg, ledger, arbitrator, oracle, simulated.NewBank())
	if err != nil {
		return err
	}
	arbitrator.SetArbitrable(p)

	key, err := cfg.NodeKey()
	if err != nil {
		return err
	}
	if key == nil {
		_, key, err = ed25519.GenerateKey(nil)
		if err != nil {
			return fmt.Errorf("failed to generate node key: %w", err)
		}
		log.Root.Warn().Msg("no private key configured, using an ephemeral one")
	}

	server, err := network.NewServer(network.ServerConfig{
		ListenAddr: cfg.Network.ListenAddr,
		Network:    cfg.Network.Name,
		PrivateKey: key,
	}, p, &network.Devnet{Arbitrator: arbitrator, Oracle: oracle, Operators: operators})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	log.Root.Info().
		Stringer("addr", server.Addr()).
		Stringer("address", crypto.AddressFromPublicKey(key.Public().(ed25519.PublicKey))).
		Int("operators", len(operators)).
		Msg("appeal proxy started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return server.Stop()
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics.Addr)
		})
	}
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Root.Warn().Err(err).Msg("metrics server shutdown")
		}
	}()

	log.Root.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
