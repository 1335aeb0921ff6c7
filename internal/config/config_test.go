package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StateFile != "./data/state.json" {
		t.Fatalf("state file default = %q", cfg.StateFile)
	}
	if cfg.DomainName != "RangeKeeper" || cfg.DomainVersion != "1" {
		t.Fatalf("domain defaults = %q/%q", cfg.DomainName, cfg.DomainVersion)
	}
	if cfg.GuardBps != 1000 {
		t.Fatalf("guard default = %d", cfg.GuardBps)
	}
	if cfg.PollInterval != 15*time.Second || cfg.MaxRetries != 5 {
		t.Fatalf("retry defaults = %s/%d", cfg.PollInterval, cfg.MaxRetries)
	}
	if cfg.Once {
		t.Fatalf("once defaults to true")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "rpc: http://localhost:8545\npoll-interval: 30s\nguard-bps: 250\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCURL != "http://localhost:8545" {
		t.Fatalf("rpc = %q", cfg.RPCURL)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("poll interval = %s", cfg.PollInterval)
	}
	if cfg.GuardBps != 250 {
		t.Fatalf("guard = %d", cfg.GuardBps)
	}
	// Untouched keys keep their defaults.
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.Bool("once", false, "")
	if err := flags.Parse([]string{"--log-level=debug", "--once"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if !cfg.Once {
		t.Fatalf("once flag not applied")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatalf("expected error for explicit missing config file")
	}
}
