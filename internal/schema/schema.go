package schema

import "time"

// Side describes trade direction.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the closing direction for a side.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

// OrderKind describes how an order is priced.
type OrderKind uint8

const (
	OrderKindUnknown OrderKind = iota
	OrderKindLimit
	OrderKindMarket
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindLimit:
		return "LIMIT"
	case OrderKindMarket:
		return "MARKET"
	default:
		return "UNKNOWN"
	}
}

// BookLevel is a single price level of an order book.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a point-in-time view of the book for one token.
type OrderBook struct {
	TokenID string
	Bids    []BookLevel
	Asks    []BookLevel
}

// MidPrice returns the midpoint of the best bid and ask, or 0 when
// either side is empty.
func (b *OrderBook) MidPrice() float64 {
	if b == nil || len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

// Severity grades a risk event.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// RiskEvent is published to the alerting sink on circuit-breaker trips,
// stop triggers and similar risk actions.
type RiskEvent struct {
	Timestamp time.Time
	Severity  Severity
	Message   string
	Metrics   map[string]float64
}
