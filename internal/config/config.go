package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"forexsim/internal/domain"
	"forexsim/internal/slippage"
	"forexsim/internal/util"
)

// DefaultPath is used when FOREXSIM_CONFIG is unset.
const DefaultPath = "config/forexsim.yaml"

var (
	ErrInvalidMarket     = errors.New("invalid market")
	ErrInvalidCapital    = errors.New("initial capital must be positive")
	ErrInvalidMaxShares  = errors.New("max shares must be positive")
	ErrInvalidDateRange  = errors.New("backtest end must be after start")
	ErrInvalidCommission = errors.New("commission costs must not be negative")
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for forexsim.
type Config struct {
	Storage    Storage    `yaml:"storage"`
	Logging    Logging    `yaml:"logging"`
	Backtest   Backtest   `yaml:"backtest"`
	Blotter    Blotter    `yaml:"blotter"`
	Slippage   Slippage   `yaml:"slippage"`
	Commission Commission `yaml:"commission"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backtest describes the default run: what to trade and over which period.
type Backtest struct {
	Strategy       string   `yaml:"strategy"`
	Symbols        []string `yaml:"symbols"`
	Market         string   `yaml:"market"`
	Start          string   `yaml:"start"`
	End            string   `yaml:"end"`
	Resolution     string   `yaml:"resolution"`
	InitialCapital float64  `yaml:"initial_capital"`
	TickSize       float64  `yaml:"tick_size"`
}

// Blotter holds order book limits.
type Blotter struct {
	MaxShares int64 `yaml:"max_shares"`
}

// Slippage selects the fill model.
type Slippage struct {
	Model       string  `yaml:"model"`
	Spread      float64 `yaml:"spread"`
	VolumeLimit float64 `yaml:"volume_limit"`
}

// Commission selects the cost model.
type Commission struct {
	Model        string  `yaml:"model"`
	Cost         float64 `yaml:"cost"`
	MinTradeCost float64 `yaml:"min_trade_cost"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration path from FOREXSIM_CONFIG, or DefaultPath.
func Path() string {
	if p := os.Getenv("FOREXSIM_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults and then environment variable overrides.
// A .env file in the working directory, when present, is loaded into the
// environment first without replacing variables that are already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/forexsim.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Backtest.Strategy == "" {
		cfg.Backtest.Strategy = "sma-cross"
	}
	if cfg.Backtest.Market == "" {
		cfg.Backtest.Market = string(domain.MarketForex)
	}
	if cfg.Backtest.Resolution == "" {
		cfg.Backtest.Resolution = "M1"
	}
	if cfg.Backtest.InitialCapital == 0 {
		cfg.Backtest.InitialCapital = 100000
	}
	if cfg.Blotter.MaxShares == 0 {
		cfg.Blotter.MaxShares = 100000
	}
	if cfg.Slippage.Model == "" {
		cfg.Slippage.Model = slippage.ModelVolumeShare
	}
	if cfg.Commission.Model == "" {
		cfg.Commission.Model = slippage.ModelPerShare
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("MAX_SHARES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_SHARES: %w", err)
		}
		cfg.Blotter.MaxShares = n
	}
	if v := os.Getenv("INITIAL_CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("INITIAL_CAPITAL: %w", err)
		}
		cfg.Backtest.InitialCapital = f
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports the first setting a backtest cannot run with.
func (c *Config) Validate() error {
	switch domain.Market(c.Backtest.Market) {
	case domain.MarketForex, domain.MarketUS:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMarket, c.Backtest.Market)
	}
	if c.Backtest.InitialCapital <= 0 {
		return ErrInvalidCapital
	}
	if c.Blotter.MaxShares <= 0 {
		return ErrInvalidMaxShares
	}
	if c.Commission.Cost < 0 || c.Commission.MinTradeCost < 0 {
		return ErrInvalidCommission
	}
	if _, err := util.ParseResolution(c.Backtest.Resolution); err != nil {
		return err
	}
	if _, err := slippage.New(c.Slippage.Model, c.Slippage.Spread, c.Slippage.VolumeLimit); err != nil {
		return err
	}
	if _, err := slippage.NewCommission(c.Commission.Model, c.Commission.Cost, c.Commission.MinTradeCost); err != nil {
		return err
	}

	start, end, err := c.Backtest.Range()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return ErrInvalidDateRange
	}
	return nil
}

// Range parses the backtest start and end dates (YYYY-MM-DD, UTC). Empty
// dates come back as the zero time.
func (b Backtest) Range() (start, end time.Time, err error) {
	if b.Start != "" {
		if start, err = time.Parse(time.DateOnly, b.Start); err != nil {
			return start, end, fmt.Errorf("backtest start: %w", err)
		}
	}
	if b.End != "" {
		if end, err = time.Parse(time.DateOnly, b.End); err != nil {
			return start, end, fmt.Errorf("backtest end: %w", err)
		}
	}
	return start, end, nil
}
