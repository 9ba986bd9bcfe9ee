package position

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"whalecopy/internal/errors"
	"whalecopy/internal/execution"
	"whalecopy/internal/risk"
	"whalecopy/internal/schema"
	"whalecopy/internal/sizing"
)

var (
	ErrUnknownPosition = errors.New("position not found")
	ErrNotOpen         = errors.New("position is not open")
	ErrInvalidClose    = errors.New("close size exceeds position size")
)

// OpenResult reports how an open attempt terminated. Rejections carry
// the human-readable reason from sizing or risk.
type OpenResult struct {
	Position *Position
	Weight   schema.BetWeight
	Rejected bool
	Reason   string
	Err      error
}

// Manager owns every position and orchestrates sizing, risk gating,
// execution and exit automation.
type Manager struct {
	sizer *sizing.Engine
	risk  *risk.Manager
	exec  *execution.Engine
	store Store

	mu        sync.RWMutex
	positions map[string]*Position

	balanceMu     sync.Mutex
	balance       float64
	dailyRealized float64
	dayMark       time.Time
}

// NewManager creates a position manager with a starting balance.
func NewManager(sizer *sizing.Engine, riskMgr *risk.Manager, exec *execution.Engine, store Store, startingBalance float64) *Manager {
	return &Manager{
		sizer:     sizer,
		risk:      riskMgr,
		exec:      exec,
		store:     store,
		positions: make(map[string]*Position),
		balance:   startingBalance,
		dayMark:   time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// Open runs the full admission pipeline for one whale signal:
// weighting, validation, risk gating, execution, then registration.
func (m *Manager) Open(ctx context.Context, signal schema.WhaleSignal, market schema.MarketSnapshot) OpenResult {
	portfolio := m.Portfolio()

	m.mu.RLock()
	sizer := m.sizer
	m.mu.RUnlock()

	weight := sizer.Compute(signal, market, portfolio)
	if weight.SizeUSD <= 0 {
		return OpenResult{Weight: weight, Rejected: true, Reason: firstReason(weight.Warnings, "sized to zero")}
	}
	if ok, issues := sizer.Validate(weight, portfolio); !ok {
		return OpenResult{Weight: weight, Rejected: true, Reason: firstReason(issues, "validation failed")}
	}
	if ok, reason := m.risk.CanOpen(signal.WhaleAddress, market, weight.SizeUSD, portfolio); !ok {
		logs.Infof("trade rejected for whale %s: %s", signal.WhaleAddress, reason)
		return OpenResult{Weight: weight, Rejected: true, Reason: reason}
	}

	price := market.CurrentPrice
	if price <= 0 {
		return OpenResult{Weight: weight, Rejected: true, Reason: "market price unavailable"}
	}
	tokens := weight.SizeUSD / price

	res := m.exec.Execute(ctx, execution.Request{
		MarketID:    market.MarketID,
		TokenID:     market.TokenID,
		Side:        signal.Side,
		Size:        tokens,
		WaitForFill: true,
	})
	if !res.Success {
		return OpenResult{Weight: weight, Err: errors.Wrap(res.Err, "execute entry")}
	}

	entryPrice := res.AvgPrice
	if entryPrice <= 0 {
		entryPrice = price
	}
	entrySize := res.FilledSize
	if entrySize <= 0 {
		entrySize = tokens
	}

	stopLoss, takeProfit := m.risk.InitialStops(signal.Side, entryPrice)
	now := time.Now().UTC()
	p := &Position{
		ID:              uuid.NewString(),
		WhaleAddress:    signal.WhaleAddress,
		MarketID:        market.MarketID,
		TokenID:         market.TokenID,
		Category:        market.Category,
		Side:            signal.Side,
		EntrySize:       entrySize,
		EntryPrice:      entryPrice,
		EntryAmount:     entrySize * entryPrice,
		CurrentSize:     entrySize,
		CurrentPrice:    entryPrice,
		MarketValue:     entrySize * entryPrice,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		Status:          StatusOpen,
		OpenedAt:        now,
		UpdatedAt:       now,
	}

	m.mu.Lock()
	m.positions[p.ID] = p
	m.mu.Unlock()
	m.risk.RegisterOpen(signal.WhaleAddress, market.MarketID, weight.SizeUSD)

	if err := m.store.SavePosition(ctx, p.Snapshot()); err != nil {
		logs.Errorf("persist position %s: %v", p.ID, err)
	}
	_ = m.store.AppendUpdate(ctx, Update{
		PositionID: p.ID, Kind: "open", Price: entryPrice, Size: entrySize, At: now,
	})

	logs.Infof("opened position %s: %s %.4f %s @ %.4f ($%.2f), stop %.4f, target %.4f",
		p.ID, p.Side, entrySize, p.TokenID, entryPrice, p.EntryAmount, stopLoss, takeProfit)
	return OpenResult{Position: p, Weight: weight}
}

// SetSizer swaps the weighting engine. Used by config reloads; open
// positions keep their original sizing.
func (m *Manager) SetSizer(sizer *sizing.Engine) {
	m.mu.Lock()
	m.sizer = sizer
	m.mu.Unlock()
}

// Get returns a snapshot of one position.
func (m *Manager) Get(id string) (Position, bool) {
	m.mu.RLock()
	p, ok := m.positions[id]
	m.mu.RUnlock()
	if !ok {
		return Position{}, false
	}
	return p.Snapshot(), true
}

// OpenPositions returns snapshots of every open position.
func (m *Manager) OpenPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		if s := p.Snapshot(); s.Status == StatusOpen {
			out = append(out, s)
		}
	}
	return out
}

// OpenTokens returns the distinct token ids held across open positions.
func (m *Manager) OpenTokens() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range m.OpenPositions() {
		if _, ok := seen[p.TokenID]; ok {
			continue
		}
		seen[p.TokenID] = struct{}{}
		out = append(out, p.TokenID)
	}
	return out
}

// OnPriceTick applies a price to one position: recompute P&L, ratchet
// the trailing stop, ask the risk manager for an exit and execute it.
// A failed exit leaves the position OPEN for retry on the next tick.
func (m *Manager) OnPriceTick(ctx context.Context, positionID string, price float64) error {
	m.mu.RLock()
	p, ok := m.positions[positionID]
	m.mu.RUnlock()
	if !ok {
		return ErrUnknownPosition
	}

	p.mu.Lock()
	if p.Status != StatusOpen || price <= 0 {
		p.mu.Unlock()
		return nil
	}

	p.CurrentPrice = price
	p.MarketValue = p.CurrentSize * price
	if p.Side == schema.SideBuy {
		p.UnrealizedPnL = p.MarketValue - p.costBasis()
	} else {
		p.UnrealizedPnL = p.costBasis() - p.MarketValue
	}
	if p.UnrealizedPnL > p.MaxProfit {
		p.MaxProfit = p.UnrealizedPnL
	}
	if p.UnrealizedPnL < p.MaxDrawdown {
		p.MaxDrawdown = p.UnrealizedPnL
	}
	p.UpdatedAt = time.Now().UTC()

	decision := m.risk.OnPriceTick(risk.PositionView{
		Side:            p.Side,
		EntryPrice:      p.EntryPrice,
		CurrentPrice:    price,
		StopLossPrice:   p.StopLossPrice,
		TakeProfitPrice: p.TakeProfitPrice,
		TrailingActive:  p.TrailingActive,
		TrailingStop:    p.TrailingStop,
	})
	p.TrailingActive = decision.TrailingActive
	p.TrailingStop = decision.TrailingStop
	p.mu.Unlock()

	m.risk.UpdateEquity(m.equity())

	if decision.Action == risk.ExitNone {
		return nil
	}
	return m.exit(ctx, positionID, price, decision.Action)
}

// exit closes a position through the execution engine. Exits are never
// assumed successful without exchange confirmation.
func (m *Manager) exit(ctx context.Context, positionID string, price float64, action risk.ExitAction) error {
	snap, ok := m.Get(positionID)
	if !ok {
		return ErrUnknownPosition
	}

	// Auto-exits must get out of the market; the slippage gate is
	// deliberately skipped here.
	res := m.exec.Execute(ctx, execution.Request{
		MarketID:          snap.MarketID,
		TokenID:           snap.TokenID,
		Side:              snap.Side.Opposite(),
		Size:              snap.CurrentSize,
		SkipSlippageCheck: true,
		WaitForFill:       true,
	})
	if !res.Success {
		logs.Warnf("auto-exit %s for position %s failed, will retry next tick: %v", action, positionID, res.Err)
		_ = m.store.AppendUpdate(ctx, Update{
			PositionID: positionID, Kind: "tick_exit", Price: price,
			Reason: string(action) + " execution failed", At: time.Now().UTC(),
		})
		return errors.Wrap(res.Err, "auto-exit execution")
	}

	exitPrice := res.AvgPrice
	if exitPrice <= 0 {
		exitPrice = price
	}
	return m.Close(ctx, positionID, exitPrice, string(action))
}

// Close realizes the full remaining P&L and archives the position.
func (m *Manager) Close(ctx context.Context, positionID string, price float64, reason string) error {
	m.mu.RLock()
	p, ok := m.positions[positionID]
	m.mu.RUnlock()
	if !ok {
		return ErrUnknownPosition
	}

	p.mu.Lock()
	if p.Status == StatusClosed {
		p.mu.Unlock()
		return ErrNotOpen
	}

	value := p.CurrentSize * price
	var pnl float64
	if p.Side == schema.SideBuy {
		pnl = value - p.costBasis()
	} else {
		pnl = p.costBasis() - value
	}
	p.RealizedPnL += pnl
	p.UnrealizedPnL = 0
	p.CurrentSize = 0
	p.CurrentPrice = price
	p.MarketValue = 0
	p.Status = StatusClosed
	p.CloseReason = reason
	now := time.Now().UTC()
	p.ClosedAt = &now
	p.UpdatedAt = now
	whale, marketID := p.WhaleAddress, p.MarketID
	total := p.RealizedPnL
	p.mu.Unlock()

	m.applyRealized(pnl)
	m.risk.OnTradeClosed(whale, marketID, total, total > 0)
	m.risk.UpdateEquity(m.equity())

	if err := m.store.SavePosition(ctx, p.Snapshot()); err != nil {
		logs.Errorf("persist closed position %s: %v", positionID, err)
	}
	_ = m.store.AppendUpdate(ctx, Update{
		PositionID: positionID, Kind: "close", Price: price, PnL: pnl, Reason: reason, At: now,
	})

	logs.Infof("closed position %s (%s): pnl $%.2f", positionID, reason, pnl)
	return nil
}

// PartialClose realizes a proportional slice of P&L and leaves the
// remainder open and re-priced.
func (m *Manager) PartialClose(ctx context.Context, positionID string, size, price float64) error {
	m.mu.RLock()
	p, ok := m.positions[positionID]
	m.mu.RUnlock()
	if !ok {
		return ErrUnknownPosition
	}

	p.mu.Lock()
	if p.Status != StatusOpen {
		p.mu.Unlock()
		return ErrNotOpen
	}
	if size <= 0 || size > p.CurrentSize {
		p.mu.Unlock()
		return ErrInvalidClose
	}

	cost := size / p.EntrySize * p.EntryAmount
	var pnl float64
	if p.Side == schema.SideBuy {
		pnl = size*price - cost
	} else {
		pnl = cost - size*price
	}
	p.RealizedPnL += pnl
	p.CurrentSize -= size
	p.CurrentPrice = price
	p.MarketValue = p.CurrentSize * price
	if p.Side == schema.SideBuy {
		p.UnrealizedPnL = p.MarketValue - p.costBasis()
	} else {
		p.UnrealizedPnL = p.costBasis() - p.MarketValue
	}
	now := time.Now().UTC()
	p.UpdatedAt = now
	p.mu.Unlock()

	m.applyRealized(pnl)
	m.risk.UpdateEquity(m.equity())

	if err := m.store.SavePosition(ctx, p.Snapshot()); err != nil {
		logs.Errorf("persist position %s: %v", positionID, err)
	}
	_ = m.store.AppendUpdate(ctx, Update{
		PositionID: positionID, Kind: "partial_close", Price: price, Size: size, PnL: pnl, At: now,
	})

	logs.Infof("partially closed position %s: %.4f @ %.4f, pnl $%.2f", positionID, size, price, pnl)
	return nil
}

// Portfolio derives the portfolio snapshot from live position state.
func (m *Manager) Portfolio() schema.PortfolioSnapshot {
	snap := schema.PortfolioSnapshot{
		ExposureByMarket:   make(map[string]float64),
		ExposureByCategory: make(map[string]float64),
	}

	for _, p := range m.OpenPositions() {
		exposure := p.EntryPrice * p.CurrentSize
		snap.OpenPositions++
		snap.TotalExposure += exposure
		snap.UnrealizedPnL += p.UnrealizedPnL
		snap.ExposureByMarket[p.MarketID] += exposure
		snap.ExposureByCategory[p.Category] += exposure
	}

	m.balanceMu.Lock()
	snap.TotalBalance = m.balance
	snap.DailyPnL = m.dailyRealized
	m.balanceMu.Unlock()

	snap.AvailableBalance = snap.TotalBalance - snap.TotalExposure
	if snap.AvailableBalance < 0 {
		snap.AvailableBalance = 0
	}
	snap.DrawdownPct = m.risk.Drawdown()
	return snap
}

// EvictClosed drops closed positions whose close time fell outside the
// retention window from the in-memory book. The persisted record is the
// archive; open positions are never touched.
func (m *Manager) EvictClosed(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, p := range m.positions {
		p.mu.Lock()
		expired := p.Status == StatusClosed && p.ClosedAt != nil && !p.ClosedAt.After(cutoff)
		p.mu.Unlock()
		if expired {
			delete(m.positions, id)
			evicted++
		}
	}
	return evicted
}

func (m *Manager) equity() float64 {
	m.balanceMu.Lock()
	balance := m.balance
	m.balanceMu.Unlock()

	unrealized := 0.0
	for _, p := range m.OpenPositions() {
		unrealized += p.UnrealizedPnL
	}
	return balance + unrealized
}

func (m *Manager) applyRealized(pnl float64) {
	m.balanceMu.Lock()
	defer m.balanceMu.Unlock()

	day := time.Now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(m.dayMark) {
		m.dayMark = day
		m.dailyRealized = 0
	}
	m.balance += pnl
	m.dailyRealized += pnl
}

func firstReason(reasons []string, fallback string) string {
	if len(reasons) > 0 {
		return reasons[0]
	}
	return fallback
}
