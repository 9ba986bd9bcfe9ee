package execution

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"whalecopy/internal/schema"
)

func testBook() *schema.OrderBook {
	return &schema.OrderBook{
		TokenID: "tok-1",
		Bids: []schema.BookLevel{
			{Price: 0.54, Size: 150},
			{Price: 0.53, Size: 250},
		},
		Asks: []schema.BookLevel{
			{Price: 0.56, Size: 150},
			{Price: 0.57, Size: 250},
		},
	}
}

func TestEstimateSlippageBuyVWAP(t *testing.T) {
	// 150 at 0.56 plus 50 at 0.57 over a size of 200.
	est := EstimateSlippage(testBook(), schema.SideBuy, 200, 0.05)

	assert.True(t, est.Recommended, "reason: %s", est.Reason)
	assert.InDelta(t, 0.5625, est.VWAP, 1e-9)
	assert.InDelta(t, 0.55, est.MidPrice, 1e-9)
	assert.InDelta(t, 0.0125/0.55, est.Slippage, 1e-9)
	assert.Equal(t, 2, est.LevelsWalked)
	assert.Equal(t, 200.0, est.FillableSize)
}

func TestEstimateSlippageSellWalksBids(t *testing.T) {
	est := EstimateSlippage(testBook(), schema.SideSell, 100, 0.05)

	assert.True(t, est.Recommended, "reason: %s", est.Reason)
	assert.InDelta(t, 0.54, est.VWAP, 1e-9)
	assert.Equal(t, 1, est.LevelsWalked)
}

func TestEstimateSlippageRejections(t *testing.T) {
	testCases := []struct {
		desc    string
		book    *schema.OrderBook
		side    schema.Side
		size    float64
		ceiling float64
		reason  string
	}{
		{"nil book", nil, schema.SideBuy, 100, 0.05, "empty order book"},
		{"zero size", testBook(), schema.SideBuy, 0, 0.05, "empty order book"},
		{"no depth", &schema.OrderBook{Bids: []schema.BookLevel{{Price: 0.5, Size: 10}}}, schema.SideBuy, 10, 0.05, "no depth"},
		{"insufficient depth", testBook(), schema.SideBuy, 500, 0.05, "insufficient depth"},
		{"above ceiling", testBook(), schema.SideBuy, 200, 0.01, "exceeds ceiling"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			est := EstimateSlippage(tc.book, tc.side, tc.size, tc.ceiling)
			if est.Recommended {
				t.Fatalf("should not be recommended")
			}
			if !strings.Contains(est.Reason, tc.reason) {
				t.Fatalf("reason mismatch! should contain %q but got %q", tc.reason, est.Reason)
			}
		})
	}
}

func TestEstimateSlippageInsufficientDepthReportsFillable(t *testing.T) {
	est := EstimateSlippage(testBook(), schema.SideBuy, 500, 0.05)
	assert.False(t, est.Recommended)
	assert.Equal(t, 400.0, est.FillableSize)
}

func TestEstimateSlippageOneSidedBookFallsBackToTouch(t *testing.T) {
	book := &schema.OrderBook{
		Asks: []schema.BookLevel{{Price: 0.60, Size: 100}},
	}
	est := EstimateSlippage(book, schema.SideBuy, 50, 0.05)
	assert.True(t, est.Recommended)
	assert.InDelta(t, 0.60, est.MidPrice, 1e-9)
	assert.InDelta(t, 0, est.Slippage, 1e-9)
}
