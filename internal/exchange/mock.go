package exchange

import (
	"context"
	"sync"

	"whalecopy/internal/schema"
)

// MockClient is a scripted in-memory exchange used by tests and the
// paper-trading entry point. Unset hooks fall back to benign defaults.
type MockClient struct {
	mu sync.Mutex

	GetOrderBookFn     func(ctx context.Context, tokenID string) (*schema.OrderBook, error)
	PlaceLimitOrderFn  func(ctx context.Context, tokenID string, side schema.Side, size, price float64, idempotencyKey string) (*PlacedOrder, error)
	PlaceMarketOrderFn func(ctx context.Context, tokenID string, side schema.Side, size float64, idempotencyKey string) (*PlacedOrder, error)
	GetOpenOrdersFn    func(ctx context.Context) ([]OpenOrder, error)
	GetOrderFn         func(ctx context.Context, orderID string) (*OpenOrder, error)
	CancelOrderFn      func(ctx context.Context, orderID string) (bool, error)
	GetPriceFn         func(ctx context.Context, tokenID string) (float64, error)

	PlaceCalls  int
	CancelCalls int
	PollCalls   int
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) GetOrderBook(ctx context.Context, tokenID string) (*schema.OrderBook, error) {
	if m.GetOrderBookFn != nil {
		return m.GetOrderBookFn(ctx, tokenID)
	}
	return &schema.OrderBook{TokenID: tokenID}, nil
}

func (m *MockClient) PlaceLimitOrder(ctx context.Context, tokenID string, side schema.Side, size, price float64, idempotencyKey string) (*PlacedOrder, error) {
	m.mu.Lock()
	m.PlaceCalls++
	m.mu.Unlock()
	if m.PlaceLimitOrderFn != nil {
		return m.PlaceLimitOrderFn(ctx, tokenID, side, size, price, idempotencyKey)
	}
	return &PlacedOrder{OrderID: "mock-" + idempotencyKey, Status: StatusLive}, nil
}

func (m *MockClient) PlaceMarketOrder(ctx context.Context, tokenID string, side schema.Side, size float64, idempotencyKey string) (*PlacedOrder, error) {
	m.mu.Lock()
	m.PlaceCalls++
	m.mu.Unlock()
	if m.PlaceMarketOrderFn != nil {
		return m.PlaceMarketOrderFn(ctx, tokenID, side, size, idempotencyKey)
	}
	return &PlacedOrder{OrderID: "mock-" + idempotencyKey, Status: StatusMatched}, nil
}

func (m *MockClient) GetOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	if m.GetOpenOrdersFn != nil {
		return m.GetOpenOrdersFn(ctx)
	}
	return nil, nil
}

func (m *MockClient) GetOrder(ctx context.Context, orderID string) (*OpenOrder, error) {
	m.mu.Lock()
	m.PollCalls++
	m.mu.Unlock()
	if m.GetOrderFn != nil {
		return m.GetOrderFn(ctx, orderID)
	}
	return &OpenOrder{OrderID: orderID, Status: StatusMatched}, nil
}

func (m *MockClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	m.CancelCalls++
	m.mu.Unlock()
	if m.CancelOrderFn != nil {
		return m.CancelOrderFn(ctx, orderID)
	}
	return true, nil
}

func (m *MockClient) GetPrice(ctx context.Context, tokenID string) (float64, error) {
	if m.GetPriceFn != nil {
		return m.GetPriceFn(ctx, tokenID)
	}
	return 0.5, nil
}
