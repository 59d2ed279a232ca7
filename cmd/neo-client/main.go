// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command neo-client invokes operations against the Neo ordered-multicast
// BFT core, reading one operation per line from stdin and printing the
// quorum-agreed result to stdout. Grounded on the teacher's
// cmd/consensus/main.go cobra layout and on original_source/neo4/src/neo.rs's
// single_op client-driver test.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/neobft/client"
	"github.com/luxfi/neobft/config"
	"github.com/luxfi/neobft/logging"
	"github.com/luxfi/neobft/transport"
	"github.com/luxfi/neobft/wire"
)

var (
	flagConfig    string
	flagCrypto    string
	flagF         int
	flagMulticast string
	flagSeqIP     string
	flagListen    string
	flagSalt      uint8
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "neo-client",
	Short: "Invoke operations against the Neo ordered-multicast BFT core",
	RunE:  runClient,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagConfig, "config", "", "path to a NetworkConfig file (required)")
	flags.StringVar(&flagCrypto, "crypto", "", "override the configured crypto variant: siphash|p256")
	flags.IntVarP(&flagF, "f", "f", -1, "override the configured Byzantine fault threshold")
	flags.StringVar(&flagMulticast, "multicast", "", "override the configured multicast group address")
	flags.StringVar(&flagSeqIP, "seq-ip", "", "override the configured sequencer address")
	flags.StringVar(&flagListen, "listen", "127.0.0.1:0", "unicast address this client listens for replies on")
	flags.Uint8Var(&flagSalt, "salt", 0, "disambiguates multiple clients sharing one listen address")
	flags.StringVar(&flagLogLevel, "log-level", "warn", "debug|info|warn|error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	if flagConfig == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := loadConfig(flagConfig, flagCrypto, flagF, flagMulticast, flagSeqIP)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.MustParseLevel(flagLogLevel)
	logger := logging.New("client", logCfg)
	defer logger.Sync()

	listenAddr, err := net.ResolveUDPAddr("udp", flagListen)
	if err != nil {
		return fmt.Errorf("parse --listen: %w", err)
	}

	t, err := transport.New(cfg, listenAddr, nil, false, logger)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer t.Close()

	id := wire.ClientID{Addr: listenAddr, Salt: flagSalt}
	c := client.New(id, cfg, t, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	envelopes := t.Run(ctx)
	go func() {
		for env := range envelopes {
			if reply, ok := env.Message.(wire.Reply); ok {
				c.HandleReply(reply)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		op := scanner.Text()
		if op == "" {
			continue
		}
		invokeCtx, cancelInvoke := context.WithTimeout(ctx, 30*time.Second)
		result, err := c.Invoke(invokeCtx, []byte(op))
		cancelInvoke()
		if err != nil {
			logger.Error("invoke failed", zap.String("op", op), zap.Error(err))
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(string(result))
	}
	return scanner.Err()
}

func loadConfig(path, crypto string, f int, multicast, seqIP string) (config.NetworkConfig, error) {
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
	if seqIP != "" {
		addr, err := net.ResolveUDPAddr("udp", seqIP)
		if err != nil {
			return config.NetworkConfig{}, fmt.Errorf("parse --seq-ip: %w", err)
		}
		cfg.Sequencer = addr
	}
	if err := cfg.Validate(); err != nil {
		return config.NetworkConfig{}, err
	}
	return cfg, nil
}
