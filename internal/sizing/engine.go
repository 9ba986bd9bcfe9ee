package sizing

import (
	"fmt"
	"math"

	"whalecopy/internal/schema"
)

// Engine computes a BetWeight from signal, market and portfolio
// snapshots. Pure computation, no I/O, safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates a weighting engine with resolved defaults.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.WithDefaults()}
}

// Kelly returns the full-Kelly fraction for a binary market entry at
// the given price. Zero whenever the edge is non-positive.
func Kelly(winRate, price float64) float64 {
	if price <= 0 || price >= 1 || winRate <= 0 {
		return 0
	}
	b := (1 - price) / price
	q := 1 - winRate
	k := (winRate*b - q) / b
	if k < 0 {
		return 0
	}
	return k
}

// Compute builds the sizing decision for one signal.
func (e *Engine) Compute(signal schema.WhaleSignal, market schema.MarketSnapshot, portfolio schema.PortfolioSnapshot) schema.BetWeight {
	w := schema.BetWeight{}

	kelly := Kelly(signal.WinRate, market.CurrentPrice)
	if cap := 2 * e.cfg.BasePositionPct; kelly > cap {
		kelly = cap
		w.Warnings = append(w.Warnings, fmt.Sprintf("kelly capped at %.2f", cap))
	}
	baseWeight := kelly * e.cfg.KellyFraction
	w.KellyFraction = baseWeight

	w.WhaleMultiplier = e.whaleMultiplier(signal, &w)
	w.MarketMultiplier = e.marketMultiplier(market, &w)
	w.RiskMultiplier = e.riskMultiplier(market, portfolio, &w)
	w.PortfolioMultiplier = e.portfolioMultiplier(market, portfolio, &w)

	product := w.WhaleMultiplier * w.MarketMultiplier * w.RiskMultiplier * w.PortfolioMultiplier
	size := baseWeight * product * portfolio.TotalBalance

	if size > e.cfg.MaxPositionUSD {
		size = e.cfg.MaxPositionUSD
		w.Warnings = append(w.Warnings, fmt.Sprintf("size clamped to max $%.2f", e.cfg.MaxPositionUSD))
	}
	if size > portfolio.AvailableBalance {
		size = portfolio.AvailableBalance
		w.Warnings = append(w.Warnings, "size clamped to available balance")
	}
	if size < e.cfg.MinPositionUSD {
		if size > 0 {
			w.Warnings = append(w.Warnings, fmt.Sprintf("size $%.2f below minimum $%.2f", size, e.cfg.MinPositionUSD))
		}
		size = 0
	}

	w.SizeUSD = size
	if portfolio.TotalBalance > 0 {
		w.PctOfBalance = size / portfolio.TotalBalance
	}
	w.Confidence = e.confidence(w, product)
	w.Reasoning = fmt.Sprintf(
		"kelly=%.4f (win=%.0f%%, price=%.2f), multipliers whale=%.2f market=%.2f risk=%.2f portfolio=%.2f -> $%.2f (%.1f%% of balance)",
		kelly, signal.WinRate*100, market.CurrentPrice,
		w.WhaleMultiplier, w.MarketMultiplier, w.RiskMultiplier, w.PortfolioMultiplier,
		size, w.PctOfBalance*100,
	)
	return w
}

// whaleMultiplier grades the whale in [0.5, 2.0].
func (e *Engine) whaleMultiplier(signal schema.WhaleSignal, w *schema.BetWeight) float64 {
	m := 0.5 + signal.QualityScore/100

	// Sharpe contributes up to +0.3, saturating at 3.0.
	m += 0.3 * clamp(signal.Sharpe/3, 0, 1)

	// Win-rate bonus only above 60%.
	if signal.WinRate > 0.60 {
		m += (signal.WinRate - 0.60) * 1.0
	}

	recent := clamp(signal.RecentReturn, -0.2, 0.2)
	m += recent
	if recent < 0 {
		w.Warnings = append(w.Warnings, "whale recent performance negative")
	}

	return clamp(m, 0.5, 2.0)
}

// marketMultiplier grades the market in [0.5, 1.5].
func (e *Engine) marketMultiplier(market schema.MarketSnapshot, w *schema.BetWeight) float64 {
	m := 1.0

	if market.Liquidity < e.cfg.MinLiquidity {
		ratio := market.Liquidity / e.cfg.MinLiquidity
		m -= 0.5 * (1 - ratio)
		w.Warnings = append(w.Warnings, fmt.Sprintf("liquidity $%.0f below minimum $%.0f", market.Liquidity, e.cfg.MinLiquidity))
	} else {
		m += 0.2 * clamp(market.Liquidity/(4*e.cfg.MinLiquidity), 0, 1)
	}

	if e.cfg.MaxSpread > 0 {
		penalty := 0.2 * clamp(market.Spread/e.cfg.MaxSpread, 0, 1)
		m -= penalty
		if market.Spread > e.cfg.MaxSpread {
			w.Warnings = append(w.Warnings, fmt.Sprintf("spread %.4f above maximum %.4f", market.Spread, e.cfg.MaxSpread))
		}
	}

	// Markets resolving soon carry less drift risk.
	if h := market.TimeToClose.Hours(); h > 0 && h < 72 {
		m += 0.1
	}

	return clamp(m, 0.5, 1.5)
}

// riskMultiplier applies portfolio-health penalties in [0, 1].
func (e *Engine) riskMultiplier(market schema.MarketSnapshot, portfolio schema.PortfolioSnapshot, w *schema.BetWeight) float64 {
	m := 1.0

	if portfolio.DrawdownPct > 0.10 {
		m *= 0.5
		w.Warnings = append(w.Warnings, fmt.Sprintf("portfolio drawdown %.1f%% above 10%%", portfolio.DrawdownPct*100))
	}
	if portfolio.TotalBalance > 0 && portfolio.DailyPnL < -0.05*portfolio.TotalBalance {
		m *= 0.5
		w.Warnings = append(w.Warnings, "daily loss above 5% of balance")
	}
	if market.Volatility > 0.30 {
		m *= 0.7
		w.Warnings = append(w.Warnings, fmt.Sprintf("market volatility %.0f%% above 30%%", market.Volatility*100))
	}
	if float64(portfolio.OpenPositions) > 0.75*float64(e.cfg.MaxOpenPositions) {
		m *= 0.6
		w.Warnings = append(w.Warnings, fmt.Sprintf("open positions %d above 75%% of maximum %d", portfolio.OpenPositions, e.cfg.MaxOpenPositions))
	}

	return clamp(m, 0, 1)
}

// portfolioMultiplier shrinks size as exposure ceilings approach, in [0, 1].
func (e *Engine) portfolioMultiplier(market schema.MarketSnapshot, portfolio schema.PortfolioSnapshot, w *schema.BetWeight) float64 {
	if portfolio.OpenPositions >= e.cfg.MaxOpenPositions {
		w.Warnings = append(w.Warnings, "position count ceiling reached")
		return 0
	}

	m := headroom(portfolio.TotalExposure, e.cfg.MaxTotalExposure)
	m *= headroom(portfolio.ExposureByMarket[market.MarketID], e.cfg.MaxMarketExposure)
	m *= headroom(portfolio.ExposureByCategory[market.Category], e.cfg.MaxCategoryExposure)

	if m < 1 {
		w.Warnings = append(w.Warnings, "exposure approaching configured ceilings")
	}
	return clamp(m, 0, 1)
}

// headroom maps exposure usage to a multiplicative penalty: full weight
// below half the ceiling, linear decay to zero at the ceiling.
func headroom(used, ceiling float64) float64 {
	if ceiling <= 0 {
		return 1
	}
	u := used / ceiling
	if u >= 1 {
		return 0
	}
	if u <= 0.5 {
		return 1
	}
	return (1 - u) / 0.5
}

// confidence scores the decision 0..100: 50% whale quality, 30% market
// quality, 20% overall multiplier magnitude.
func (e *Engine) confidence(w schema.BetWeight, product float64) float64 {
	whaleScore := (w.WhaleMultiplier - 0.5) / 1.5 * 100
	marketScore := (w.MarketMultiplier - 0.5) / 1.0 * 100
	multScore := clamp(product*50, 0, 100)
	return clamp(0.5*whaleScore+0.3*marketScore+0.2*multScore, 0, 100)
}

// Validate is the final gate before a weight reaches execution.
func (e *Engine) Validate(w schema.BetWeight, portfolio schema.PortfolioSnapshot) (bool, []string) {
	var issues []string
	if w.SizeUSD < e.cfg.MinPositionUSD {
		issues = append(issues, fmt.Sprintf("size $%.2f below minimum $%.2f", w.SizeUSD, e.cfg.MinPositionUSD))
	}
	if w.SizeUSD > portfolio.AvailableBalance {
		issues = append(issues, fmt.Sprintf("size $%.2f exceeds available balance $%.2f", w.SizeUSD, portfolio.AvailableBalance))
	}
	if w.Confidence < e.cfg.MinConfidence {
		issues = append(issues, fmt.Sprintf("confidence %.0f below minimum %.0f", w.Confidence, e.cfg.MinConfidence))
	}
	if portfolio.OpenPositions >= e.cfg.MaxOpenPositions {
		issues = append(issues, fmt.Sprintf("open positions %d at maximum %d", portfolio.OpenPositions, e.cfg.MaxOpenPositions))
	}
	return len(issues) == 0, issues
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
