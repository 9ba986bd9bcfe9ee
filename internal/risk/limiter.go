package risk

import (
	"fmt"
	"sync"
	"time"

	"whalecopy/internal/schema"
)

// Limiter enforces position and exposure ceilings before admission.
// Checks run in a fixed order and the first violated reason is
// returned.
type Limiter struct {
	mu  sync.Mutex
	cfg Config

	perWhale     map[string]int
	perMarket    map[string]int
	whaleDaily   map[string]float64
	whaleDayMark time.Time

	now func() time.Time
}

// NewLimiter creates a limiter with the given ceilings.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:        cfg,
		perWhale:   make(map[string]int),
		perMarket:  make(map[string]int),
		whaleDaily: make(map[string]float64),
		now:        time.Now,
	}
}

// CanOpen validates a proposed position against every ceiling.
func (l *Limiter) CanOpen(whale string, market schema.MarketSnapshot, sizeUSD float64, portfolio schema.PortfolioSnapshot) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDay()

	if portfolio.OpenPositions >= l.cfg.MaxOpenPositions {
		return false, fmt.Sprintf("open positions %d at maximum %d", portfolio.OpenPositions, l.cfg.MaxOpenPositions)
	}
	if sizeUSD > l.cfg.MaxPositionUSD {
		return false, fmt.Sprintf("position size $%.2f exceeds maximum $%.2f", sizeUSD, l.cfg.MaxPositionUSD)
	}
	if portfolio.TotalExposure+sizeUSD > l.cfg.MaxTotalExposure {
		return false, fmt.Sprintf("total exposure $%.2f would exceed maximum $%.2f", portfolio.TotalExposure+sizeUSD, l.cfg.MaxTotalExposure)
	}
	if portfolio.ExposureByMarket[market.MarketID]+sizeUSD > l.cfg.MaxMarketExposure {
		return false, fmt.Sprintf("market %s exposure would exceed maximum $%.2f", market.MarketID, l.cfg.MaxMarketExposure)
	}
	if portfolio.ExposureByCategory[market.Category]+sizeUSD > l.cfg.MaxCategoryExposure {
		return false, fmt.Sprintf("category %s exposure would exceed maximum $%.2f", market.Category, l.cfg.MaxCategoryExposure)
	}
	if l.perWhale[whale] >= l.cfg.MaxPositionsPerWhale {
		return false, fmt.Sprintf("whale %s already has %d positions", whale, l.perWhale[whale])
	}
	if l.perMarket[market.MarketID] >= l.cfg.MaxPositionsPerMkt {
		return false, fmt.Sprintf("market %s already has %d positions", market.MarketID, l.perMarket[market.MarketID])
	}
	if l.whaleDaily[whale]+sizeUSD > l.cfg.MaxDailyPerWhale {
		return false, fmt.Sprintf("whale %s daily allocation $%.2f would exceed maximum $%.2f", whale, l.whaleDaily[whale]+sizeUSD, l.cfg.MaxDailyPerWhale)
	}
	return true, ""
}

// RegisterOpen records an admitted position against the counters.
func (l *Limiter) RegisterOpen(whale, marketID string, sizeUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDay()
	l.perWhale[whale]++
	l.perMarket[marketID]++
	l.whaleDaily[whale] += sizeUSD
}

// RegisterClose releases the per-whale and per-market counters. Daily
// allocation is spent; it does not come back on close.
func (l *Limiter) RegisterClose(whale, marketID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perWhale[whale] > 0 {
		l.perWhale[whale]--
	}
	if l.perMarket[marketID] > 0 {
		l.perMarket[marketID]--
	}
}

func (l *Limiter) rollDay() {
	day := l.now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(l.whaleDayMark) {
		l.whaleDayMark = day
		l.whaleDaily = make(map[string]float64)
	}
}
