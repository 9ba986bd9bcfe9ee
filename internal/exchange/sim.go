package exchange

import (
	"context"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"whalecopy/internal/schema"
)

const (
	simBookLevels = 5
	simLevelSize  = 500
	simHalfSpread = 0.005
	simTickJitter = 0.002
)

// SimClient is a paper-trading exchange: orders fill immediately at
// book prices against synthetic liquidity, and mid prices random-walk
// on every quote. It backs the trader binary when no live venue is
// configured and de-duplicates submissions by idempotency key the way
// a real venue would.
type SimClient struct {
	mu     sync.Mutex
	rng    *rand.Rand
	mids   map[string]float64
	orders map[string]*OpenOrder
	byKey  map[string]string
}

var _ Client = (*SimClient)(nil)

// NewSimClient creates a simulator. The seed fixes the price walk for
// reproducible runs; 0 seeds from a fixed default.
func NewSimClient(seed int64) *SimClient {
	if seed == 0 {
		seed = 1
	}
	return &SimClient{
		rng:    rand.New(rand.NewSource(seed)),
		mids:   make(map[string]float64),
		orders: make(map[string]*OpenOrder),
		byKey:  make(map[string]string),
	}
}

// SetPrice pins a token's mid price, overriding the walk.
func (s *SimClient) SetPrice(tokenID string, mid float64) {
	s.mu.Lock()
	s.mids[tokenID] = mid
	s.mu.Unlock()
}

func (s *SimClient) mid(tokenID string) float64 {
	mid, ok := s.mids[tokenID]
	if !ok {
		mid = 0.50
	}
	mid += (s.rng.Float64()*2 - 1) * simTickJitter
	if mid < 0.01 {
		mid = 0.01
	}
	if mid > 0.99 {
		mid = 0.99
	}
	s.mids[tokenID] = mid
	return mid
}

// GetOrderBook returns a synthetic five-level book around the walking
// mid price.
func (s *SimClient) GetOrderBook(_ context.Context, tokenID string) (*schema.OrderBook, error) {
	s.mu.Lock()
	mid := s.mid(tokenID)
	s.mu.Unlock()

	book := &schema.OrderBook{TokenID: tokenID}
	for i := 0; i < simBookLevels; i++ {
		step := simHalfSpread * float64(i+1)
		bid := mid - step
		ask := mid + step
		if bid > 0 {
			book.Bids = append(book.Bids, schema.BookLevel{Price: bid, Size: simLevelSize})
		}
		if ask < 1 {
			book.Asks = append(book.Asks, schema.BookLevel{Price: ask, Size: simLevelSize})
		}
	}
	return book, nil
}

// PlaceLimitOrder fills the whole order at the limit price.
func (s *SimClient) PlaceLimitOrder(_ context.Context, tokenID string, side schema.Side, size, price float64, idempotencyKey string) (*PlacedOrder, error) {
	if size <= 0 || price <= 0 || price >= 1 {
		return nil, NewError(KindInvalidPrice, "limit order outside (0, 1)")
	}
	return s.record(tokenID, size, price, idempotencyKey), nil
}

// PlaceMarketOrder fills the whole order one half-spread through mid.
func (s *SimClient) PlaceMarketOrder(_ context.Context, tokenID string, side schema.Side, size float64, idempotencyKey string) (*PlacedOrder, error) {
	if size <= 0 {
		return nil, NewError(KindInvalidPrice, "market order size must be > 0")
	}
	s.mu.Lock()
	mid := s.mid(tokenID)
	s.mu.Unlock()

	price := mid + simHalfSpread
	if side == schema.SideSell {
		price = mid - simHalfSpread
	}
	return s.record(tokenID, size, price, idempotencyKey), nil
}

func (s *SimClient) record(tokenID string, size, price float64, idempotencyKey string) *PlacedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[idempotencyKey]; ok {
		return &PlacedOrder{OrderID: id, Status: s.orders[id].Status}
	}

	id := uuid.NewString()
	s.orders[id] = &OpenOrder{
		OrderID:    id,
		TokenID:    tokenID,
		Size:       size,
		SizeFilled: size,
		Price:      price,
		Status:     StatusMatched,
	}
	if idempotencyKey != "" {
		s.byKey[idempotencyKey] = id
	}
	return &PlacedOrder{OrderID: id, Status: StatusMatched}
}

// GetOpenOrders lists orders still live on the book. Everything fills
// instantly here, so the listing is normally empty.
func (s *SimClient) GetOpenOrders(_ context.Context) ([]OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OpenOrder
	for _, o := range s.orders {
		if o.Status == StatusLive {
			out = append(out, *o)
		}
	}
	return out, nil
}

// GetOrder returns the simulator's view of one order.
func (s *SimClient) GetOrder(_ context.Context, orderID string) (*OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, NewError(KindUnknown, "order not found: "+orderID)
	}
	cp := *o
	return &cp, nil
}

// CancelOrder cancels a live order. Filled orders refuse the cancel,
// matching venue behavior.
func (s *SimClient) CancelOrder(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, NewError(KindUnknown, "order not found: "+orderID)
	}
	if o.Status != StatusLive {
		return false, nil
	}
	o.Status = StatusCancelled
	return true, nil
}

// GetPrice returns the walking mid price.
func (s *SimClient) GetPrice(_ context.Context, tokenID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mid(tokenID), nil
}
