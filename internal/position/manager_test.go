package position

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalecopy/internal/exchange"
	"whalecopy/internal/execution"
	"whalecopy/internal/order"
	"whalecopy/internal/risk"
	"whalecopy/internal/schema"
	"whalecopy/internal/sizing"
)

func testClient() *exchange.MockClient {
	return &exchange.MockClient{
		GetOrderBookFn: func(_ context.Context, tokenID string) (*schema.OrderBook, error) {
			return &schema.OrderBook{
				TokenID: tokenID,
				Bids:    []schema.BookLevel{{Price: 0.499, Size: 5000}},
				Asks:    []schema.BookLevel{{Price: 0.501, Size: 5000}},
			}, nil
		},
		GetOrderFn: func(_ context.Context, orderID string) (*exchange.OpenOrder, error) {
			return &exchange.OpenOrder{OrderID: orderID, Status: exchange.StatusMatched, Price: 0.50}, nil
		},
	}
}

func newTestManager(client *exchange.MockClient) *Manager {
	return newTestManagerWithRisk(client, risk.Config{})
}

func newTestManagerWithRisk(client *exchange.MockClient, riskCfg risk.Config) *Manager {
	machine := order.NewMachine(order.NewMemoryStore(), 3)
	engine := execution.NewEngine(client, machine, nil, execution.Config{
		FillPollInterval: time.Millisecond,
	})
	riskMgr := risk.NewManager(riskCfg, nil)
	sizer := sizing.NewEngine(sizing.Config{})
	return NewManager(sizer, riskMgr, engine, NewMemoryStore(), 10000)
}

func goodSignal() schema.WhaleSignal {
	return schema.WhaleSignal{
		WhaleAddress: "0xwhale",
		TokenID:      "tok-1",
		MarketID:     "mkt-1",
		Side:         schema.SideBuy,
		WinRate:      0.60,
		QualityScore: 50,
	}
}

func goodMarket() schema.MarketSnapshot {
	return schema.MarketSnapshot{
		MarketID:     "mkt-1",
		TokenID:      "tok-1",
		Category:     "politics",
		Liquidity:    5000,
		Spread:       0.0125,
		Volatility:   0.10,
		CurrentPrice: 0.50,
		TimeToClose:  100 * time.Hour,
	}
}

func mustOpen(t *testing.T, m *Manager) *Position {
	t.Helper()
	res := m.Open(context.Background(), goodSignal(), goodMarket())
	require.NoError(t, res.Err)
	require.False(t, res.Rejected, "reason: %s", res.Reason)
	require.NotNil(t, res.Position)
	return res.Position
}

func TestOpenPipeline(t *testing.T) {
	m := newTestManager(testClient())
	res := m.Open(context.Background(), goodSignal(), goodMarket())

	require.NoError(t, res.Err)
	require.False(t, res.Rejected, "reason: %s", res.Reason)
	require.NotNil(t, res.Position)

	// $500 at $0.50 buys 1000 tokens.
	assert.InDelta(t, 500, res.Weight.SizeUSD, 1e-6)
	p, ok := m.Get(res.Position.ID)
	require.True(t, ok)
	assert.Equal(t, StatusOpen, p.Status)
	assert.InDelta(t, 1000, p.EntrySize, 1e-6)
	assert.InDelta(t, 0.50, p.EntryPrice, 1e-9)
	assert.InDelta(t, 500, p.EntryAmount, 1e-6)
	assert.InDelta(t, 0.425, p.StopLossPrice, 1e-9)
	assert.InDelta(t, 0.65, p.TakeProfitPrice, 1e-9)

	snap := m.Portfolio()
	assert.Equal(t, 1, snap.OpenPositions)
	assert.InDelta(t, 500, snap.TotalExposure, 1e-6)
	assert.InDelta(t, 9500, snap.AvailableBalance, 1e-6)
}

func TestOpenRejectedWithoutEdge(t *testing.T) {
	m := newTestManager(testClient())
	s := goodSignal()
	s.WinRate = 0.50

	res := m.Open(context.Background(), s, goodMarket())
	assert.True(t, res.Rejected)
	assert.Equal(t, "sized to zero", res.Reason)
	assert.Nil(t, res.Position)
}

func TestOpenRejectedByRiskGate(t *testing.T) {
	client := testClient()
	m := newTestManager(client)

	// Trip the breaker before the signal arrives.
	m.risk.OnTradeClosed("0xother", "mkt-9", -600, false)

	res := m.Open(context.Background(), goodSignal(), goodMarket())
	assert.True(t, res.Rejected)
	assert.Contains(t, res.Reason, "circuit breaker open")
	assert.Zero(t, client.PlaceCalls)
}

func TestPriceTickUpdatesPnL(t *testing.T) {
	m := newTestManager(testClient())
	p := mustOpen(t, m)

	require.NoError(t, m.OnPriceTick(context.Background(), p.ID, 0.55))

	got, _ := m.Get(p.ID)
	assert.InDelta(t, 0.55, got.CurrentPrice, 1e-9)
	assert.InDelta(t, 50, got.UnrealizedPnL, 1e-6)
	assert.InDelta(t, 50, got.MaxProfit, 1e-6)
	assert.Equal(t, StatusOpen, got.Status)
}

func TestStopLossExitsPosition(t *testing.T) {
	client := testClient()
	m := newTestManager(client)
	p := mustOpen(t, m)

	client.GetOrderFn = func(_ context.Context, orderID string) (*exchange.OpenOrder, error) {
		return &exchange.OpenOrder{OrderID: orderID, Status: exchange.StatusMatched, Price: 0.40}, nil
	}
	require.NoError(t, m.OnPriceTick(context.Background(), p.ID, 0.40))

	got, _ := m.Get(p.ID)
	assert.Equal(t, StatusClosed, got.Status)
	assert.Equal(t, "stop_loss", got.CloseReason)
	assert.InDelta(t, -100, got.RealizedPnL, 1e-6)
	assert.Zero(t, got.CurrentSize)
	require.NotNil(t, got.ClosedAt)

	snap := m.Portfolio()
	assert.Zero(t, snap.OpenPositions)
	assert.InDelta(t, 9900, snap.TotalBalance, 1e-6)
	assert.InDelta(t, -100, snap.DailyPnL, 1e-6)
}

func TestFailedExitLeavesPositionOpen(t *testing.T) {
	client := testClient()
	m := newTestManager(client)
	p := mustOpen(t, m)

	client.PlaceMarketOrderFn = func(_ context.Context, _ string, _ schema.Side, _ float64, _ string) (*exchange.PlacedOrder, error) {
		return nil, exchange.NewError(exchange.KindMarketClosed, "market closed")
	}

	err := m.OnPriceTick(context.Background(), p.ID, 0.40)
	require.Error(t, err)

	got, _ := m.Get(p.ID)
	assert.Equal(t, StatusOpen, got.Status)
	assert.InDelta(t, 0.40, got.CurrentPrice, 1e-9)
}

func TestTakeProfitExit(t *testing.T) {
	client := testClient()
	m := newTestManager(client)
	p := mustOpen(t, m)

	client.GetOrderFn = func(_ context.Context, orderID string) (*exchange.OpenOrder, error) {
		return &exchange.OpenOrder{OrderID: orderID, Status: exchange.StatusMatched, Price: 0.66}, nil
	}
	require.NoError(t, m.OnPriceTick(context.Background(), p.ID, 0.66))

	got, _ := m.Get(p.ID)
	assert.Equal(t, StatusClosed, got.Status)
	assert.Equal(t, "take_profit", got.CloseReason)
	assert.InDelta(t, 160, got.RealizedPnL, 1e-6)
}

func TestPartialClose(t *testing.T) {
	m := newTestManager(testClient())
	p := mustOpen(t, m)

	require.NoError(t, m.PartialClose(context.Background(), p.ID, 400, 0.60))

	got, _ := m.Get(p.ID)
	assert.Equal(t, StatusOpen, got.Status)
	assert.InDelta(t, 600, got.CurrentSize, 1e-6)
	assert.InDelta(t, 40, got.RealizedPnL, 1e-6)
	assert.InDelta(t, 60, got.UnrealizedPnL, 1e-6)

	err := m.PartialClose(context.Background(), p.ID, 700, 0.60)
	assert.ErrorIs(t, err, ErrInvalidClose)
}

func TestDrawdownPenalizesSizing(t *testing.T) {
	client := testClient()
	m := newTestManagerWithRisk(client, risk.Config{DailyLossLimit: 100000, HourlyLossLimit: 100000})

	var ids []string
	for i, whale := range []string{"0xwhale", "0xwhale", "0xother"} {
		s := goodSignal()
		s.WhaleAddress = whale
		s.MarketID = fmt.Sprintf("mkt-%d", i+1)
		s.TokenID = fmt.Sprintf("tok-%d", i+1)
		mk := goodMarket()
		mk.MarketID = s.MarketID
		mk.TokenID = s.TokenID
		res := m.Open(context.Background(), s, mk)
		require.NoError(t, res.Err)
		require.False(t, res.Rejected, "reason: %s", res.Reason)
		ids = append(ids, res.Position.ID)
	}

	// Anchor peak equity at the starting balance, then realize three
	// deep losses: $490 each, 14.7% off the peak in total.
	require.NoError(t, m.OnPriceTick(context.Background(), ids[0], 0.50))
	for _, id := range ids {
		require.NoError(t, m.Close(context.Background(), id, 0.01, "manual"))
	}

	snap := m.Portfolio()
	assert.InDelta(t, 0.147, snap.DrawdownPct, 1e-9)

	s := goodSignal()
	s.WhaleAddress = "0xfresh"
	s.MarketID, s.TokenID = "mkt-9", "tok-9"
	mk := goodMarket()
	mk.MarketID, mk.TokenID = "mkt-9", "tok-9"
	res := m.Open(context.Background(), s, mk)
	require.NoError(t, res.Err)
	require.False(t, res.Rejected, "reason: %s", res.Reason)

	// Drawdown above 10% and daily loss above 5% of balance each halve
	// the risk multiplier: 0.05 x 0.25 x $8530 balance.
	assert.InDelta(t, 0.25, res.Weight.RiskMultiplier, 1e-9)
	assert.InDelta(t, 106.625, res.Weight.SizeUSD, 1e-6)
	require.NotEmpty(t, res.Weight.Warnings)
	assert.Contains(t, res.Weight.Warnings[0], "portfolio drawdown")
}

func TestEvictClosedRespectsRetention(t *testing.T) {
	m := newTestManager(testClient())
	closed := mustOpen(t, m)

	s := goodSignal()
	s.MarketID, s.TokenID = "mkt-2", "tok-2"
	mk := goodMarket()
	mk.MarketID, mk.TokenID = "mkt-2", "tok-2"
	kept := m.Open(context.Background(), s, mk)
	require.NoError(t, kept.Err)
	require.False(t, kept.Rejected, "reason: %s", kept.Reason)

	require.NoError(t, m.Close(context.Background(), closed.ID, 0.55, "manual"))

	// A fresh close stays inside the retention window.
	assert.Zero(t, m.EvictClosed(time.Hour))
	_, ok := m.Get(closed.ID)
	assert.True(t, ok)

	assert.Equal(t, 1, m.EvictClosed(0))
	_, ok = m.Get(closed.ID)
	assert.False(t, ok)

	// Open positions are never evicted.
	_, ok = m.Get(kept.Position.ID)
	assert.True(t, ok)
}

func TestCloseIsFinal(t *testing.T) {
	m := newTestManager(testClient())
	p := mustOpen(t, m)

	require.NoError(t, m.Close(context.Background(), p.ID, 0.55, "manual"))
	err := m.Close(context.Background(), p.ID, 0.55, "manual")
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestPriceLoopTick(t *testing.T) {
	client := testClient()
	m := newTestManager(client)
	p := mustOpen(t, m)

	client.GetPriceFn = func(_ context.Context, _ string) (float64, error) {
		return 0.55, nil
	}
	loop := NewPriceLoop(m, client, nil, time.Second)
	loop.Tick(context.Background())

	got, _ := m.Get(p.ID)
	assert.InDelta(t, 0.55, got.CurrentPrice, 1e-9)
	assert.InDelta(t, 50, got.UnrealizedPnL, 1e-6)
}
