package risk

import "whalecopy/internal/schema"

// ExitAction names the exit a price tick triggered, if any.
type ExitAction string

const (
	ExitNone         ExitAction = ""
	ExitStopLoss     ExitAction = "stop_loss"
	ExitTakeProfit   ExitAction = "take_profit"
	ExitTrailingStop ExitAction = "trailing_stop"
)

// PositionView is the slice of position state the stop engine needs.
// Kept side-effect free so the position manager stays the only writer.
type PositionView struct {
	Side           schema.Side
	EntryPrice     float64
	CurrentPrice   float64
	StopLossPrice  float64
	TakeProfitPrice float64

	TrailingActive bool
	TrailingStop   float64
}

// StopDecision is the outcome of evaluating one tick.
type StopDecision struct {
	Action ExitAction

	// Trailing ratchet output. The stop only ever moves in the profit
	// direction; callers persist these back onto the position.
	TrailingActive bool
	TrailingStop   float64
}

// StopEngine evaluates stop-loss, take-profit and trailing-stop rules
// against a price tick. Stateless; trailing state lives on positions.
type StopEngine struct {
	activationPct float64
	distancePct   float64
}

// NewStopEngine creates a stop engine with trailing parameters.
func NewStopEngine(activationPct, distancePct float64) *StopEngine {
	return &StopEngine{activationPct: activationPct, distancePct: distancePct}
}

// Evaluate returns the exit action for a tick, plus the ratcheted
// trailing state. Hard stop-loss is checked first, then trailing, then
// take-profit.
func (s *StopEngine) Evaluate(v PositionView) StopDecision {
	d := StopDecision{TrailingActive: v.TrailingActive, TrailingStop: v.TrailingStop}
	if v.EntryPrice <= 0 || v.CurrentPrice <= 0 {
		return d
	}

	long := v.Side == schema.SideBuy

	if v.StopLossPrice > 0 {
		if (long && v.CurrentPrice <= v.StopLossPrice) || (!long && v.CurrentPrice >= v.StopLossPrice) {
			d.Action = ExitStopLoss
			return d
		}
	}

	d.TrailingActive, d.TrailingStop = s.ratchet(v, long)
	if d.TrailingActive && d.TrailingStop > 0 {
		if (long && v.CurrentPrice <= d.TrailingStop) || (!long && v.CurrentPrice >= d.TrailingStop) {
			d.Action = ExitTrailingStop
			return d
		}
	}

	if v.TakeProfitPrice > 0 {
		if (long && v.CurrentPrice >= v.TakeProfitPrice) || (!long && v.CurrentPrice <= v.TakeProfitPrice) {
			d.Action = ExitTakeProfit
			return d
		}
	}

	return d
}

// ratchet activates the trailing stop once the activation profit is
// crossed, then only ever tightens it toward the profit direction.
func (s *StopEngine) ratchet(v PositionView, long bool) (bool, float64) {
	if s.distancePct <= 0 {
		return v.TrailingActive, v.TrailingStop
	}

	var profitPct float64
	if long {
		profitPct = (v.CurrentPrice - v.EntryPrice) / v.EntryPrice
	} else {
		profitPct = (v.EntryPrice - v.CurrentPrice) / v.EntryPrice
	}

	active := v.TrailingActive
	if !active && profitPct >= s.activationPct {
		active = true
	}
	if !active {
		return false, v.TrailingStop
	}

	var candidate float64
	if long {
		candidate = v.CurrentPrice * (1 - s.distancePct)
		if candidate > v.TrailingStop {
			return true, candidate
		}
	} else {
		candidate = v.CurrentPrice * (1 + s.distancePct)
		if v.TrailingStop == 0 || candidate < v.TrailingStop {
			return true, candidate
		}
	}
	return true, v.TrailingStop
}
