package risk

import (
	"fmt"

	"whalecopy/internal/alert"
	"whalecopy/internal/schema"
)

// Manager is the single authority that can forbid a trade or force an
// exit. It owns the breaker, the drawdown protector, the limiter and
// the stop engine, and publishes risk events to the alerting sink.
type Manager struct {
	cfg       Config
	breaker   *CircuitBreaker
	drawdown  *DrawdownProtector
	limiter   *Limiter
	stops     *StopEngine
	publisher alert.Publisher
}

// NewManager wires the risk subsystem. The publisher may be nil, in
// which case events go to the log sink.
func NewManager(cfg Config, publisher alert.Publisher) *Manager {
	cfg = cfg.WithDefaults()
	if publisher == nil {
		publisher = alert.LogPublisher{}
	}
	return &Manager{
		cfg:       cfg,
		breaker:   NewCircuitBreaker(cfg.DailyLossLimit, cfg.HourlyLossLimit, cfg.CooldownPeriod),
		drawdown:  NewDrawdownProtector(cfg.MaxDrawdownPct, cfg.EmergencyDrawdownPct, cfg.MaxConsecutiveLosses),
		limiter:   NewLimiter(cfg),
		stops:     NewStopEngine(cfg.TrailingActivationPct, cfg.TrailingDistancePct),
		publisher: publisher,
	}
}

// Config returns the resolved configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Breaker exposes the circuit breaker for cooldown timers and manual
// reset paths.
func (m *Manager) Breaker() *CircuitBreaker {
	return m.breaker
}

// Drawdown reports the current peak-to-trough equity drawdown fraction.
func (m *Manager) Drawdown() float64 {
	return m.drawdown.Drawdown()
}

// CanOpen gates a proposed trade: circuit breaker first, then the
// drawdown halt, then every exposure ceiling.
func (m *Manager) CanOpen(whale string, market schema.MarketSnapshot, sizeUSD float64, portfolio schema.PortfolioSnapshot) (bool, string) {
	if ok, reason := m.breaker.Allow(); !ok {
		return false, "circuit breaker open: " + reason
	}
	if halted, reason := m.drawdown.Halted(); halted {
		return false, "drawdown halt: " + reason
	}
	return m.limiter.CanOpen(whale, market, sizeUSD, portfolio)
}

// RegisterOpen records an admitted position.
func (m *Manager) RegisterOpen(whale, marketID string, sizeUSD float64) {
	m.limiter.RegisterOpen(whale, marketID, sizeUSD)
}

// OnPriceTick evaluates stop rules for one position view.
func (m *Manager) OnPriceTick(v PositionView) StopDecision {
	d := m.stops.Evaluate(v)
	if d.Action != ExitNone {
		m.publisher.Publish(alert.NewEvent(schema.SeverityWarning,
			fmt.Sprintf("%s triggered at %.4f (entry %.4f)", d.Action, v.CurrentPrice, v.EntryPrice),
			map[string]float64{"price": v.CurrentPrice, "entry": v.EntryPrice},
		))
	}
	return d
}

// OnTradeClosed feeds a realized result into the breaker and the
// drawdown protector, and publishes a trip event when the breaker
// opens as a consequence.
func (m *Manager) OnTradeClosed(whale, marketID string, pnl float64, won bool) {
	m.limiter.RegisterClose(whale, marketID)

	before := m.breaker.State()
	m.breaker.RecordTrade(pnl)
	m.drawdown.OnTradeClosed(won)

	if before == BreakerClosed && m.breaker.State() != BreakerClosed {
		m.publisher.Publish(alert.NewEvent(schema.SeverityCritical,
			"circuit breaker tripped",
			map[string]float64{"pnl": pnl, "trips": float64(m.breaker.TripCount())},
		))
	}
}

// UpdateEquity feeds marked-to-market equity into the drawdown
// protector, escalating emergency breaches to the sink.
func (m *Manager) UpdateEquity(equity float64) {
	wasEmergency := m.drawdown.Emergency()
	m.drawdown.UpdateEquity(equity)
	if !wasEmergency && m.drawdown.Emergency() {
		m.publisher.Publish(alert.NewEvent(schema.SeverityCritical,
			"emergency drawdown ceiling breached",
			map[string]float64{"equity": equity, "drawdown": m.drawdown.Drawdown()},
		))
	}
}

// InitialStops computes side-aware stop-loss and take-profit prices as
// percentage offsets from entry.
func (m *Manager) InitialStops(side schema.Side, entryPrice float64) (stopLoss, takeProfit float64) {
	if side == schema.SideBuy {
		return entryPrice * (1 - m.cfg.StopLossPct), entryPrice * (1 + m.cfg.TakeProfitPct)
	}
	return entryPrice * (1 + m.cfg.StopLossPct), entryPrice * (1 - m.cfg.TakeProfitPct)
}
