package risk

import "time"

// Config enumerates every risk tunable with explicit defaults.
type Config struct {
	DailyLossLimit  float64       `json:"dailyLossLimit"`
	HourlyLossLimit float64       `json:"hourlyLossLimit"`
	CooldownPeriod  time.Duration `json:"cooldownPeriod"`

	MaxDrawdownPct       float64 `json:"maxDrawdownPct"`
	EmergencyDrawdownPct float64 `json:"emergencyDrawdownPct"`
	MaxConsecutiveLosses int     `json:"maxConsecutiveLosses"`

	MaxOpenPositions     int     `json:"maxOpenPositions"`
	MaxPositionUSD       float64 `json:"maxPositionUsd"`
	MaxTotalExposure     float64 `json:"maxTotalExposure"`
	MaxMarketExposure    float64 `json:"maxMarketExposure"`
	MaxCategoryExposure  float64 `json:"maxCategoryExposure"`
	MaxPositionsPerWhale int     `json:"maxPositionsPerWhale"`
	MaxPositionsPerMkt   int     `json:"maxPositionsPerMarket"`
	MaxDailyPerWhale     float64 `json:"maxDailyPerWhale"`

	StopLossPct           float64 `json:"stopLossPct"`
	TakeProfitPct         float64 `json:"takeProfitPct"`
	TrailingActivationPct float64 `json:"trailingActivationPct"`
	TrailingDistancePct   float64 `json:"trailingDistancePct"`
}

// WithDefaults resolves zero fields to their defaults.
func (c Config) WithDefaults() Config {
	if c.DailyLossLimit <= 0 {
		c.DailyLossLimit = 500
	}
	if c.HourlyLossLimit <= 0 {
		c.HourlyLossLimit = 200
	}
	if c.CooldownPeriod <= 0 {
		c.CooldownPeriod = time.Hour
	}
	if c.MaxDrawdownPct <= 0 {
		c.MaxDrawdownPct = 0.15
	}
	if c.EmergencyDrawdownPct <= 0 {
		c.EmergencyDrawdownPct = 0.20
	}
	if c.MaxConsecutiveLosses <= 0 {
		c.MaxConsecutiveLosses = 5
	}
	if c.MaxOpenPositions <= 0 {
		c.MaxOpenPositions = 20
	}
	if c.MaxPositionUSD <= 0 {
		c.MaxPositionUSD = 1000
	}
	if c.MaxTotalExposure <= 0 {
		c.MaxTotalExposure = 5000
	}
	if c.MaxMarketExposure <= 0 {
		c.MaxMarketExposure = 1000
	}
	if c.MaxCategoryExposure <= 0 {
		c.MaxCategoryExposure = 2000
	}
	if c.MaxPositionsPerWhale <= 0 {
		c.MaxPositionsPerWhale = 5
	}
	if c.MaxPositionsPerMkt <= 0 {
		c.MaxPositionsPerMkt = 2
	}
	if c.MaxDailyPerWhale <= 0 {
		c.MaxDailyPerWhale = 1000
	}
	if c.StopLossPct <= 0 {
		c.StopLossPct = 0.15
	}
	if c.TakeProfitPct <= 0 {
		c.TakeProfitPct = 0.30
	}
	if c.TrailingActivationPct <= 0 {
		c.TrailingActivationPct = 0.10
	}
	if c.TrailingDistancePct <= 0 {
		c.TrailingDistancePct = 0.05
	}
	return c
}
