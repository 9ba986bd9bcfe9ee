package sizing

// Config enumerates every sizing tunable with explicit defaults.
type Config struct {
	KellyFraction   float64 `json:"kellyFraction"`   // safety fraction of full Kelly
	BasePositionPct float64 `json:"basePositionPct"` // baseline fraction of balance
	MinPositionUSD  float64 `json:"minPositionUsd"`
	MaxPositionUSD  float64 `json:"maxPositionUsd"`

	MinLiquidity float64 `json:"minLiquidity"`
	MaxSpread    float64 `json:"maxSpread"`

	MaxOpenPositions    int     `json:"maxOpenPositions"`
	MaxTotalExposure    float64 `json:"maxTotalExposure"`
	MaxMarketExposure   float64 `json:"maxMarketExposure"`
	MaxCategoryExposure float64 `json:"maxCategoryExposure"`

	MinConfidence float64 `json:"minConfidence"`
}

// WithDefaults resolves zero fields to their defaults.
func (c Config) WithDefaults() Config {
	if c.KellyFraction <= 0 {
		c.KellyFraction = 0.25
	}
	if c.BasePositionPct <= 0 {
		c.BasePositionPct = 0.10
	}
	if c.MinPositionUSD <= 0 {
		c.MinPositionUSD = 10
	}
	if c.MaxPositionUSD <= 0 {
		c.MaxPositionUSD = 1000
	}
	if c.MinLiquidity <= 0 {
		c.MinLiquidity = 5000
	}
	if c.MaxSpread <= 0 {
		c.MaxSpread = 0.05
	}
	if c.MaxOpenPositions <= 0 {
		c.MaxOpenPositions = 20
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
	if c.MinConfidence <= 0 {
		c.MinConfidence = 20
	}
	return c
}
