package schema

import "time"

// WhaleSignal is the scored trade signal produced by the analytics
// collaborator. Quality fields are opaque inputs here.
type WhaleSignal struct {
	WhaleAddress string
	TokenID      string
	MarketID     string
	Side         Side
	Price        float64
	SizeUSD      float64
	WinRate      float64 // 0..1
	Sharpe       float64
	TotalVolume  float64
	QualityScore float64 // 0..100
	RecentReturn float64 // trailing performance, signed fraction
	ObservedAt   time.Time
}

// MarketSnapshot captures the market at decision time.
type MarketSnapshot struct {
	MarketID     string
	TokenID      string
	Category     string
	Liquidity    float64
	Spread       float64
	Volatility   float64 // 0..1
	CurrentPrice float64
	TimeToClose  time.Duration
}

// PortfolioSnapshot is derived on demand from live position state.
// It is never persisted as its own entity.
type PortfolioSnapshot struct {
	TotalBalance       float64
	AvailableBalance   float64
	OpenPositions      int
	TotalExposure      float64
	UnrealizedPnL      float64
	DailyPnL           float64
	DrawdownPct        float64
	ExposureByMarket   map[string]float64
	ExposureByCategory map[string]float64
}

// BetWeight is the sizing decision for one signal. Immutable once built.
type BetWeight struct {
	SizeUSD       float64
	PctOfBalance  float64
	Confidence    float64 // 0..100
	KellyFraction float64

	WhaleMultiplier     float64
	MarketMultiplier    float64
	RiskMultiplier      float64
	PortfolioMultiplier float64

	Reasoning string
	Warnings  []string
}
