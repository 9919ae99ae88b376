package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadServeDefaults(t *testing.T) {
	cfg, err := LoadServe("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.MockPrice != "3800" || cfg.MaxRetries != 5 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.RetryBackoff != 500*time.Millisecond || cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("duration defaults: %+v", cfg)
	}
}

func TestLoadServePrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "trader.yaml")
	body := "listen: \":9000\"\nowner: \"0x00000000000000000000000000000000000000a1\"\ntoken-symbol: FILE\n"
	if err := os.WriteFile(cfgFile, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRADER_TOKEN_SYMBOL", "ENV")
	t.Setenv("TRADER_PG_DSN", "postgres://localhost/trader")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("listen", ":8080", "")
	flags.String("token-symbol", "TT", "")
	if err := flags.Parse([]string{"--listen", ":9100"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadServe(cfgFile, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9100" {
		t.Fatalf("flag should win: %s", cfg.Listen)
	}
	if cfg.TokenSymbol != "ENV" {
		t.Fatalf("env should beat file: %s", cfg.TokenSymbol)
	}
	if cfg.Owner != "0x00000000000000000000000000000000000000a1" {
		t.Fatalf("file value missing: %s", cfg.Owner)
	}
	if cfg.PGDSN != "postgres://localhost/trader" {
		t.Fatalf("env value missing: %s", cfg.PGDSN)
	}
}

func TestLoadFeedMissingConfigFile(t *testing.T) {
	if _, err := LoadFeed(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for explicit missing config file")
	}
}

func TestLoadRounds(t *testing.T) {
	t.Setenv("TRADER_FEED", "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")

	flags := pflag.NewFlagSet("rounds", pflag.ContinueOnError)
	flags.Uint64("from", 0, "")
	flags.Bool("checkpoint-enabled", true, "")
	if err := flags.Parse([]string{"--from", "19000000", "--checkpoint-enabled=false"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadRounds("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FeedAddress != "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419" {
		t.Fatalf("feed from env: %s", cfg.FeedAddress)
	}
	if cfg.FromBlock != 19000000 || cfg.CheckpointEnabled {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.BatchSize != 2000 || cfg.Out != "./data/rounds.jsonl" || cfg.ToBlock != 0 {
		t.Fatalf("defaults: %+v", cfg)
	}
}
