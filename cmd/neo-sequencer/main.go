// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command neo-sequencer runs the single point of total order: it accepts
// unicast Requests from clients and multicasts the resulting OrderedRequest
// stream to every replica. Grounded on the teacher's cmd/consensus/main.go
// cobra layout and on original_source/neo100/src/bin's single-responsibility
// binary style.
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

	"github.com/luxfi/neobft/config"
	"github.com/luxfi/neobft/logging"
	"github.com/luxfi/neobft/sequencer"
	"github.com/luxfi/neobft/transport"
	"github.com/luxfi/neobft/wire"
)

var (
	flagConfig    string
	flagCrypto    string
	flagF         int
	flagMulticast string
	flagListen    string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "neo-sequencer",
	Short: "Run the Neo ordered-multicast sequencer",
	RunE:  runSequencer,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagConfig, "config", "", "path to a NetworkConfig file (required)")
	flags.StringVar(&flagCrypto, "crypto", "", "override the configured crypto variant: siphash|p256")
	flags.IntVarP(&flagF, "f", "f", -1, "override the configured Byzantine fault threshold")
	flags.StringVar(&flagMulticast, "multicast", "", "override the configured multicast group address")
	flags.StringVar(&flagListen, "listen", "", "unicast address to bind (default: the configured sequencer address)")
	flags.StringVar(&flagLogLevel, "log-level", "info", "debug|info|warn|error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSequencer(cmd *cobra.Command, args []string) error {
	if flagConfig == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := loadConfig(flagConfig, flagCrypto, flagF, flagMulticast)
	if err != nil {
		return err
	}
	if cfg.Sequencer == nil && flagListen == "" {
		return fmt.Errorf("config has no sequencer address; set it or pass --listen")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.MustParseLevel(flagLogLevel)
	logger := logging.New("sequencer", logCfg)
	defer logger.Sync()

	listenAddr := cfg.Sequencer
	if flagListen != "" {
		addr, err := net.ResolveUDPAddr("udp", flagListen)
		if err != nil {
			return fmt.Errorf("parse --listen: %w", err)
		}
		listenAddr = addr
	}

	t, err := transport.New(cfg, listenAddr, nil, false, logger)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer t.Close()

	metrics := sequencer.NewMetrics(nil)
	seq := sequencer.New(cfg, t, logger, metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Multicast != nil {
		resetListener, err := sequencer.NewResetListener(cfg.Multicast, seq, logger)
		if err != nil {
			return fmt.Errorf("start reset listener: %w", err)
		}
		defer resetListener.Close()
		go resetListener.Run(ctx)
	}

	envelopes := t.Run(ctx)
	logger.Info("sequencer started", zap.Int("n", cfg.N), zap.Int("f", cfg.F))

	for {
		select {
		case <-ctx.Done():
			logger.Info("sequencer shutting down", zap.Uint32("sequence_number", seq.SequenceNumber()))
			return nil
		case env, ok := <-envelopes:
			if !ok {
				return nil
			}
			if req, ok := env.Message.(wire.Request); ok {
				seq.HandleRequest(req)
			}
		}
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
