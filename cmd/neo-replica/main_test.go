// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"os"
	"strings"
	"testing"

	"github.com/luxfi/neobft/config"
)

const sampleConfig = `
f 1
replica 127.0.0.1:6000
replica 127.0.0.1:6001
replica 127.0.0.1:6002
replica 127.0.0.1:6003
multicast 239.0.0.1:6000
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := t.TempDir() + "/neo.conf"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	cfg, err := loadConfig(path, "p256", 0, "239.0.0.2:7000")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Crypto != config.P256 {
		t.Fatalf("expected crypto override to take effect, got %v", cfg.Crypto)
	}
	if cfg.F != 0 {
		t.Fatalf("expected f override to take effect, got %d", cfg.F)
	}
	if cfg.Multicast.String() != "239.0.0.2:7000" {
		t.Fatalf("expected multicast override to take effect, got %v", cfg.Multicast)
	}
	if cfg.N != 4 {
		t.Fatalf("expected n=4 from the four configured replicas, got %d", cfg.N)
	}
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	if _, err := loadConfig("/nonexistent/neo.conf", "", -1, ""); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadConfigRejectsBadCryptoOverride(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	_, err := loadConfig(path, "rot13", -1, "")
	if err == nil || !strings.Contains(err.Error(), "unknown crypto variant") {
		t.Fatalf("expected an unknown crypto variant error, got %v", err)
	}
}
