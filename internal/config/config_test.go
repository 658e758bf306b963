package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"forexsim/internal/slippage"
	"forexsim/internal/util"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forexsim.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "MAX_SHARES", "INITIAL_CAPITAL"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/forexsim/data"
  sqlite_path: "/tmp/forexsim/forexsim.db"
logging:
  level: "debug"
  format: "json"
backtest:
  strategy: "sma-cross"
  symbols: ["EUR_USD", "GBP_USD"]
  market: "forex"
  start: "2017-01-02"
  end: "2017-02-01"
  resolution: "M15"
  initial_capital: 50000
  tick_size: 0.00001
blotter:
  max_shares: 250000
slippage:
  model: "fixed"
  spread: 0.0002
commission:
  model: "per_trade"
  cost: 2.5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/forexsim/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/forexsim/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/forexsim/forexsim.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/forexsim/forexsim.db")
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}

	// -- Backtest --
	if len(cfg.Backtest.Symbols) != 2 || cfg.Backtest.Symbols[1] != "GBP_USD" {
		t.Errorf("Backtest.Symbols = %v", cfg.Backtest.Symbols)
	}
	if cfg.Backtest.InitialCapital != 50000 {
		t.Errorf("Backtest.InitialCapital = %v, want 50000", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.TickSize != 0.00001 {
		t.Errorf("Backtest.TickSize = %v, want 0.00001", cfg.Backtest.TickSize)
	}
	start, end, err := cfg.Backtest.Range()
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if !start.Equal(time.Date(2017, 1, 2, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2017, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Range = %v..%v", start, end)
	}

	// -- Models --
	if cfg.Blotter.MaxShares != 250000 {
		t.Errorf("Blotter.MaxShares = %d, want 250000", cfg.Blotter.MaxShares)
	}
	if cfg.Slippage.Model != slippage.ModelFixed || cfg.Slippage.Spread != 0.0002 {
		t.Errorf("Slippage = %+v", cfg.Slippage)
	}
	if cfg.Commission.Model != slippage.ModelPerTrade || cfg.Commission.Cost != 2.5 {
		t.Errorf("Commission = %+v", cfg.Commission)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "backtest:\n  symbols: [EUR_USD]\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "data" || cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("ambient defaults not applied: %+v %+v", cfg.Storage, cfg.Logging)
	}
	if cfg.Backtest.Market != "forex" || cfg.Backtest.Resolution != "M1" {
		t.Errorf("backtest defaults not applied: %+v", cfg.Backtest)
	}
	if cfg.Slippage.Model != slippage.ModelVolumeShare || cfg.Commission.Model != slippage.ModelPerShare {
		t.Errorf("model defaults = %q/%q", cfg.Slippage.Model, cfg.Commission.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/original/data"
  sqlite_path: "/original/db"
blotter:
  max_shares: 10
`)
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("MAX_SHARES", "500")
	t.Setenv("INITIAL_CAPITAL", "2500.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	// sqlite_path should remain from YAML since no env override was set.
	if cfg.Storage.SQLitePath != "/original/db" {
		t.Errorf("Storage.SQLitePath = %q, want %q (from YAML)", cfg.Storage.SQLitePath, "/original/db")
	}
	if cfg.Blotter.MaxShares != 500 {
		t.Errorf("Blotter.MaxShares = %d, want 500 (env override)", cfg.Blotter.MaxShares)
	}
	if cfg.Backtest.InitialCapital != 2500.5 {
		t.Errorf("Backtest.InitialCapital = %v, want 2500.5 (env override)", cfg.Backtest.InitialCapital)
	}

	t.Setenv("MAX_SHARES", "lots")
	if _, err := Load(path); err == nil {
		t.Error("Load accepted a non-numeric MAX_SHARES")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want ErrNotExist", err)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("FOREXSIM_CONFIG", "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
	t.Setenv("FOREXSIM_CONFIG", "/etc/forexsim.yaml")
	if got := Path(); got != "/etc/forexsim.yaml" {
		t.Errorf("Path() = %q, want override", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"market", func(c *Config) { c.Backtest.Market = "crypto" }, ErrInvalidMarket},
		{"capital", func(c *Config) { c.Backtest.InitialCapital = -1 }, ErrInvalidCapital},
		{"max shares", func(c *Config) { c.Blotter.MaxShares = -5 }, ErrInvalidMaxShares},
		{"commission", func(c *Config) { c.Commission.Cost = -0.01 }, ErrInvalidCommission},
		{"resolution", func(c *Config) { c.Backtest.Resolution = "Q1" }, util.ErrInvalidResolution},
		{"slippage model", func(c *Config) { c.Slippage.Model = "magic" }, slippage.ErrUnknownModel},
		{"commission model", func(c *Config) { c.Commission.Model = "magic" }, slippage.ErrUnknownModel},
		{"range", func(c *Config) { c.Backtest.Start, c.Backtest.End = "2017-02-01", "2017-01-01" }, ErrInvalidDateRange},
	}
	for _, tt := range tests {
		cfg := valid()
		tt.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, tt.want) {
			t.Errorf("%s: Validate() = %v, want %v", tt.name, err, tt.want)
		}
	}

	cfg := valid()
	cfg.Backtest.Start = "yesterday"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted an unparseable start date")
	}
}
