// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command neo-replica runs one replica of the Neo ordered-multicast BFT
// core: it joins the multicast group, verifies/orders incoming requests,
// drives the voting/speculative-commit state machine, and replies to
// clients. Grounded on the teacher's cmd/consensus/main.go cobra layout.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/neobft/app"
	"github.com/luxfi/neobft/config"
	"github.com/luxfi/neobft/logging"
	"github.com/luxfi/neobft/replica"
	"github.com/luxfi/neobft/transport"
	"github.com/luxfi/neobft/wire"
)

var (
	flagConfig    string
	flagID        uint8
	flagCrypto    string
	flagF         int
	flagMulticast string
	flagListen    string
	flagCore      int
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "neo-replica",
	Short: "Run one replica of the Neo ordered-multicast BFT core",
	RunE:  runReplica,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagConfig, "config", "", "path to a NetworkConfig file (required)")
	flags.Uint8Var(&flagID, "id", 0, "this replica's index in [0, n)")
	flags.StringVar(&flagCrypto, "crypto", "", "override the configured crypto variant: siphash|p256")
	flags.IntVarP(&flagF, "f", "f", -1, "override the configured Byzantine fault threshold")
	flags.StringVar(&flagMulticast, "multicast", "", "override the configured multicast group address")
	flags.StringVar(&flagListen, "listen", "", "unicast address to bind (default: the id-th configured replica address)")
	flags.IntVar(&flagCore, "query-pacer-core", -1, "CPU core to pin the query pacer goroutine to (-1: no pinning)")
	flags.StringVar(&flagLogLevel, "log-level", "info", "debug|info|warn|error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runReplica(cmd *cobra.Command, args []string) error {
	if flagConfig == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := loadConfig(flagConfig, flagCrypto, flagF, flagMulticast)
	if err != nil {
		return err
	}
	if int(flagID) >= cfg.N {
		return fmt.Errorf("--id %d out of range for n=%d", flagID, cfg.N)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.MustParseLevel(flagLogLevel)
	logger := logging.New(fmt.Sprintf("replica.%d", flagID), logCfg)
	defer logger.Sync()

	listenAddr := cfg.Replicas[flagID]
	if flagListen != "" {
		addr, err := net.ResolveUDPAddr("udp", flagListen)
		if err != nil {
			return fmt.Errorf("parse --listen: %w", err)
		}
		listenAddr = addr
	}

	selfID := flagID
	t, err := transport.New(cfg, listenAddr, &selfID, true, logger)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer t.Close()

	metrics := replica.NewMetrics(nil)
	r := replica.New(flagID, cfg, app.Echo{}, t, logger, metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	go r.RunQueryPacer(stop, flagCore)

	envelopes := t.Run(ctx)
	t.SendReset()
	logger.Info("replica started", zap.Uint8("id", flagID), zap.Int("n", cfg.N), zap.Int("f", cfg.F))

	for {
		select {
		case <-ctx.Done():
			r.LogShutdownStats()
			return nil
		case env, ok := <-envelopes:
			if !ok {
				r.LogShutdownStats()
				return nil
			}
			dispatch(r, env)
		}
	}
}

func dispatch(r *replica.Replica, env transport.Envelope) {
	switch m := env.Message.(type) {
	case wire.OrderedRequest:
		r.HandleOrderedRequest(m)
	case wire.MulticastVote:
		r.HandleMulticastVote(m)
	case wire.Query:
		r.HandleQuery(m)
	case wire.QueryReply:
		r.HandleQueryReply(m)
	}
}

func loadConfig(path, crypto string, f int, multicast string) (config.NetworkConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return config.NetworkConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	cfg, err := config.ParseConfig(file)
	if err != nil {
		return config.NetworkConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if crypto != "" {
		variant, err := config.ParseCryptoVariant(crypto)
		if err != nil {
			return config.NetworkConfig{}, err
		}
		cfg.Crypto = variant
	}
	if f >= 0 {
		cfg.F = f
	}
	if multicast != "" {
		addr, err := net.ResolveUDPAddr("udp", multicast)
		if err != nil {
			return config.NetworkConfig{}, fmt.Errorf("parse --multicast: %w", err)
		}
		cfg.Multicast = addr
	}
	if err := cfg.Validate(); err != nil {
		return config.NetworkConfig{}, err
	}
	return cfg, nil
}
