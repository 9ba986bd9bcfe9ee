package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"whalecopy/internal/execution"
	"whalecopy/internal/risk"
	"whalecopy/internal/sizing"
)

// FileConfig mirrors the JSON config layout. Durations are written as
// Go duration strings ("30s", "1h") and resolved at load time.
type FileConfig struct {
	Trading   TradingConfig    `json:"trading"`
	Sizing    sizing.Config    `json:"sizing"`
	Risk      risk.Config      `json:"risk"`
	Execution execution.Config `json:"execution"`
	Durations DurationsConfig  `json:"durations"`
	Postgres  PostgresConfig   `json:"postgres"`
	Profiler  ProfilerConfig   `json:"profiler"`
}

// TradingConfig describes account level settings.
type TradingConfig struct {
	StartingBalanceUSD float64 `json:"startingBalanceUsd"`
	BatchConcurrency   int     `json:"batchConcurrency"`
	RateLimitPerSecond int     `json:"rateLimitPerSecond"`
	RateLimitBurst     int     `json:"rateLimitBurst"`
}

// DurationsConfig captures every duration tunable as a string.
type DurationsConfig struct {
	Cooldown          string `json:"cooldown"`
	FillPollInterval  string `json:"fillPollInterval"`
	FillTimeout       string `json:"fillTimeout"`
	PriceTickInterval string `json:"priceTickInterval"`
}

// PostgresConfig describes the database connection.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// ProfilerConfig captures optional continuous profiling flags.
type ProfilerConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Trading           TradingSettings
	Sizing            sizing.Config
	Risk              risk.Config
	Execution         execution.Config
	PriceTickInterval time.Duration
	Postgres          PostgresConfig
	Profiler          ProfilerConfig
}

// TradingSettings is the resolved account definition.
type TradingSettings struct {
	StartingBalanceUSD float64
	BatchConcurrency   int
	RateLimitPerSecond int
	RateLimitBurst     int
}

// Load reads a JSON config file and resolves defaults.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and applies defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	trading, err := resolveTrading(cfg.Trading)
	if err != nil {
		return Loaded{}, err
	}

	riskCfg := cfg.Risk
	execCfg := cfg.Execution
	priceInterval := time.Second

	if cfg.Durations.Cooldown != "" {
		d, err := parseDuration("cooldown", cfg.Durations.Cooldown)
		if err != nil {
			return Loaded{}, err
		}
		riskCfg.CooldownPeriod = d
	}
	if cfg.Durations.FillPollInterval != "" {
		d, err := parseDuration("fillPollInterval", cfg.Durations.FillPollInterval)
		if err != nil {
			return Loaded{}, err
		}
		execCfg.FillPollInterval = d
	}
	if cfg.Durations.FillTimeout != "" {
		d, err := parseDuration("fillTimeout", cfg.Durations.FillTimeout)
		if err != nil {
			return Loaded{}, err
		}
		execCfg.FillTimeout = d
	}
	if cfg.Durations.PriceTickInterval != "" {
		d, err := parseDuration("priceTickInterval", cfg.Durations.PriceTickInterval)
		if err != nil {
			return Loaded{}, err
		}
		priceInterval = d
	}

	sizingCfg := cfg.Sizing.WithDefaults()
	riskCfg = riskCfg.WithDefaults()
	if err := validateLimits(sizingCfg, riskCfg); err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Trading:           trading,
		Sizing:            sizingCfg,
		Risk:              riskCfg,
		Execution:         execCfg,
		PriceTickInterval: priceInterval,
		Postgres:          cfg.Postgres,
		Profiler:          cfg.Profiler,
	}, nil
}

func resolveTrading(cfg TradingConfig) (TradingSettings, error) {
	if cfg.StartingBalanceUSD < 0 {
		return TradingSettings{}, fmt.Errorf("startingBalanceUsd must be >= 0")
	}
	if cfg.StartingBalanceUSD == 0 {
		cfg.StartingBalanceUSD = 10000
	}
	if cfg.BatchConcurrency < 0 {
		return TradingSettings{}, fmt.Errorf("batchConcurrency must be >= 0")
	}
	if cfg.BatchConcurrency == 0 {
		cfg.BatchConcurrency = 10
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 2 * cfg.RateLimitPerSecond
	}
	return TradingSettings{
		StartingBalanceUSD: cfg.StartingBalanceUSD,
		BatchConcurrency:   cfg.BatchConcurrency,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	}, nil
}

func validateLimits(s sizing.Config, r risk.Config) error {
	if s.MinPositionUSD > s.MaxPositionUSD {
		return fmt.Errorf("minPositionUsd %.2f exceeds maxPositionUsd %.2f", s.MinPositionUSD, s.MaxPositionUSD)
	}
	if s.MaxPositionUSD > r.MaxPositionUSD {
		return fmt.Errorf("sizing maxPositionUsd %.2f exceeds risk maxPositionUsd %.2f", s.MaxPositionUSD, r.MaxPositionUSD)
	}
	if r.EmergencyDrawdownPct < r.MaxDrawdownPct {
		return fmt.Errorf("emergencyDrawdownPct %.2f is below maxDrawdownPct %.2f", r.EmergencyDrawdownPct, r.MaxDrawdownPct)
	}
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", field, value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration for %s must be > 0", field)
	}
	return d, nil
}
