package storage

import "time"

// OrderRecord mirrors the orders table.
type OrderRecord struct {
	ID              string `gorm:"primaryKey"`
	IdempotencyKey  string `gorm:"uniqueIndex"`
	MarketID        string `gorm:"index"`
	TokenID         string `gorm:"index"`
	Side            string
	Kind            string
	Size            float64
	Price           float64
	State           string `gorm:"index"`
	ExchangeOrderID string
	FilledSize      float64
	AvgFillPrice    float64
	RetryCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (OrderRecord) TableName() string { return "orders" }

// OrderTransitionRecord mirrors the order_state_transitions table. One
// row per lifecycle transition, written in the same transaction as the
// order row.
type OrderTransitionRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"index"`
	FromState string
	ToState   string
	Reason    string
	At        time.Time
}

func (OrderTransitionRecord) TableName() string { return "order_state_transitions" }

// PositionRecord mirrors the positions table.
type PositionRecord struct {
	ID              string `gorm:"primaryKey"`
	WhaleAddress    string `gorm:"index"`
	MarketID        string `gorm:"index"`
	TokenID         string `gorm:"index"`
	Category        string
	Side            string
	EntrySize       float64
	EntryPrice      float64
	EntryAmount     float64
	CurrentSize     float64
	CurrentPrice    float64
	MarketValue     float64
	UnrealizedPnL   float64
	RealizedPnL     float64
	StopLossPrice   float64
	TakeProfitPrice float64
	TrailingActive  bool
	TrailingStop    float64
	MaxProfit       float64
	MaxDrawdown     float64
	Status          string `gorm:"index"`
	CloseReason     string
	OpenedAt        time.Time
	UpdatedAt       time.Time
	ClosedAt        *time.Time
}

func (PositionRecord) TableName() string { return "positions" }

// PositionUpdateRecord mirrors the position_updates table.
type PositionUpdateRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	PositionID string `gorm:"index"`
	Kind       string
	Price      float64
	Size       float64
	PnL        float64
	Reason     string
	At         time.Time
}

func (PositionUpdateRecord) TableName() string { return "position_updates" }
