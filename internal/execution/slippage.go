package execution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"whalecopy/internal/schema"
)

// SlippageEstimate is the result of walking the book for a requested size.
type SlippageEstimate struct {
	VWAP          float64
	MidPrice      float64
	Slippage      float64 // |vwap - mid| / mid
	FillableSize  float64
	LevelsWalked  int
	Recommended   bool
	Reason        string
}

// EstimateSlippage walks the relevant side of the book (asks for BUY,
// bids for SELL) accumulating size until the request is filled, and
// compares the resulting VWAP against the mid price. Book arithmetic is
// done in decimals so the estimate is the exact VWAP of the levels
// consumed.
func EstimateSlippage(book *schema.OrderBook, side schema.Side, size float64, ceiling float64) SlippageEstimate {
	est := SlippageEstimate{}
	if book == nil || size <= 0 {
		est.Reason = "empty order book"
		return est
	}

	levels := book.Asks
	if side == schema.SideSell {
		levels = book.Bids
	}
	if len(levels) == 0 {
		est.Reason = "no depth on book side"
		return est
	}

	mid := book.MidPrice()
	if mid <= 0 {
		// One-sided book; fall back to the best touch as reference.
		mid = levels[0].Price
	}
	est.MidPrice = mid

	remaining := decimal.NewFromFloat(size)
	filled := decimal.Zero
	cost := decimal.Zero
	for _, lv := range levels {
		if remaining.IsZero() {
			break
		}
		take := decimal.NewFromFloat(lv.Size)
		if take.GreaterThan(remaining) {
			take = remaining
		}
		filled = filled.Add(take)
		cost = cost.Add(take.Mul(decimal.NewFromFloat(lv.Price)))
		remaining = remaining.Sub(take)
		est.LevelsWalked++
	}

	est.FillableSize, _ = filled.Float64()
	if remaining.GreaterThan(decimal.Zero) {
		est.Reason = fmt.Sprintf("insufficient depth: %.4f of %.4f available", est.FillableSize, size)
		return est
	}

	vwap := cost.Div(filled)
	est.VWAP, _ = vwap.Float64()

	midDec := decimal.NewFromFloat(mid)
	slip := vwap.Sub(midDec).Abs().Div(midDec)
	est.Slippage, _ = slip.Float64()

	if ceiling > 0 && est.Slippage > ceiling {
		est.Reason = fmt.Sprintf("slippage %.4f exceeds ceiling %.4f", est.Slippage, ceiling)
		return est
	}

	est.Recommended = true
	return est
}
