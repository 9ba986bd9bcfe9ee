package position

import (
	"sync"
	"time"

	"whalecopy/internal/schema"
)

// Status tracks a position's lifecycle.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusClosing Status = "CLOSING"
	StatusClosed  Status = "CLOSED"
)

// Position is the authoritative record of one open copy-trade. Mutated
// only by the Manager under the per-position lock; price ticks for a
// single position apply in arrival order.
type Position struct {
	mu sync.Mutex

	ID           string
	WhaleAddress string
	MarketID     string
	TokenID      string
	Category     string
	Side         schema.Side

	EntrySize   float64 // tokens
	EntryPrice  float64
	EntryAmount float64 // cost basis, USD

	CurrentSize  float64
	CurrentPrice float64
	MarketValue  float64

	UnrealizedPnL float64
	RealizedPnL   float64

	StopLossPrice   float64
	TakeProfitPrice float64
	TrailingActive  bool
	TrailingStop    float64

	MaxProfit   float64
	MaxDrawdown float64

	Status      Status
	CloseReason string

	OpenedAt  time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// Snapshot returns a lock-free copy for readers.
func (p *Position) Snapshot() Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := Position{
		ID:              p.ID,
		WhaleAddress:    p.WhaleAddress,
		MarketID:        p.MarketID,
		TokenID:         p.TokenID,
		Category:        p.Category,
		Side:            p.Side,
		EntrySize:       p.EntrySize,
		EntryPrice:      p.EntryPrice,
		EntryAmount:     p.EntryAmount,
		CurrentSize:     p.CurrentSize,
		CurrentPrice:    p.CurrentPrice,
		MarketValue:     p.MarketValue,
		UnrealizedPnL:   p.UnrealizedPnL,
		RealizedPnL:     p.RealizedPnL,
		StopLossPrice:   p.StopLossPrice,
		TakeProfitPrice: p.TakeProfitPrice,
		TrailingActive:  p.TrailingActive,
		TrailingStop:    p.TrailingStop,
		MaxProfit:       p.MaxProfit,
		MaxDrawdown:     p.MaxDrawdown,
		Status:          p.Status,
		CloseReason:     p.CloseReason,
		OpenedAt:        p.OpenedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return cp
}

// costBasis is the cost of the remaining size. Callers hold the lock.
func (p *Position) costBasis() float64 {
	return p.EntryPrice * p.CurrentSize
}

// Update is one audit entry of a position's life.
type Update struct {
	PositionID string
	Kind       string // open, tick_exit, partial_close, close
	Price      float64
	Size       float64
	PnL        float64
	Reason     string
	At         time.Time
}
