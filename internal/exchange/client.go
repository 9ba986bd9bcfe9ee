package exchange

import (
	"context"

	"whalecopy/internal/schema"
)

// OrderStatus is the exchange's view of a submitted order.
type OrderStatus string

const (
	StatusLive      OrderStatus = "LIVE"
	StatusMatched   OrderStatus = "MATCHED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusFailed    OrderStatus = "FAILED"
)

// PlacedOrder is the exchange response to an order submission.
type PlacedOrder struct {
	OrderID string
	Status  OrderStatus
}

// OpenOrder is one entry of the open-order listing used for fill polling.
type OpenOrder struct {
	OrderID    string
	TokenID    string
	Size       float64
	SizeFilled float64
	Price      float64
	Status     OrderStatus
}

// Client is the consumed CLOB exchange interface. Transport and
// authentication live behind this boundary; no call ordering is
// guaranteed across methods.
type Client interface {
	GetOrderBook(ctx context.Context, tokenID string) (*schema.OrderBook, error)
	PlaceLimitOrder(ctx context.Context, tokenID string, side schema.Side, size, price float64, idempotencyKey string) (*PlacedOrder, error)
	PlaceMarketOrder(ctx context.Context, tokenID string, side schema.Side, size float64, idempotencyKey string) (*PlacedOrder, error)
	GetOpenOrders(ctx context.Context) ([]OpenOrder, error)
	GetOrder(ctx context.Context, orderID string) (*OpenOrder, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetPrice(ctx context.Context, tokenID string) (float64, error)
}
