package position

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"whalecopy/internal/exchange"
)

const (
	defaultTickInterval    = time.Second
	defaultSweepInterval   = time.Minute
	defaultStuckCeiling    = 2 * time.Minute
	defaultClosedRetention = time.Hour
)

// Sweeper times out orders stuck in flight; satisfied by the execution
// engine.
type Sweeper interface {
	SweepStuck(ctx context.Context, olderThan time.Duration) int
}

// PriceLoop drives the manager with ~1s price refreshes: distinct
// tokens fetched concurrently, then per-position updates fanned out.
// Shutdown drains in-flight work before returning.
type PriceLoop struct {
	manager *Manager
	client  exchange.Client
	sweeper Sweeper

	tickInterval    time.Duration
	sweepInterval   time.Duration
	stuckCeiling    time.Duration
	closedRetention time.Duration
}

// NewPriceLoop creates a loop over the manager's open positions. The
// sweeper may be nil to disable the stuck-order timer.
func NewPriceLoop(manager *Manager, client exchange.Client, sweeper Sweeper, tickInterval time.Duration) *PriceLoop {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	return &PriceLoop{
		manager:         manager,
		client:          client,
		sweeper:         sweeper,
		tickInterval:    tickInterval,
		sweepInterval:   defaultSweepInterval,
		stuckCeiling:    defaultStuckCeiling,
		closedRetention: defaultClosedRetention,
	}
}

// Run blocks until the context is cancelled.
func (l *PriceLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()

	sweep := time.NewTicker(l.sweepInterval)
	defer sweep.Stop()

	logs.Infof("price loop started, interval %s", l.tickInterval)
	for {
		select {
		case <-ctx.Done():
			logs.Infof("price loop stopped")
			return
		case <-sweep.C:
			if l.sweeper != nil {
				if n := l.sweeper.SweepStuck(ctx, l.stuckCeiling); n > 0 {
					logs.Warnf("stuck-order sweep timed out %d orders", n)
				}
			}
			if n := l.manager.EvictClosed(l.closedRetention); n > 0 {
				logs.Infof("archived %d closed positions", n)
			}
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick performs one refresh cycle. Exposed for tests and manual
// stepping.
func (l *PriceLoop) Tick(ctx context.Context) {
	tokens := l.manager.OpenTokens()
	if len(tokens) == 0 {
		return
	}

	prices := l.fetchPrices(ctx, tokens)
	if len(prices) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, p := range l.manager.OpenPositions() {
		price, ok := prices[p.TokenID]
		if !ok || price <= 0 {
			continue
		}
		wg.Add(1)
		go func(id string, price float64) {
			defer wg.Done()
			if err := l.manager.OnPriceTick(ctx, id, price); err != nil {
				logs.Warnf("price tick for position %s: %v", id, err)
			}
		}(p.ID, price)
	}
	wg.Wait()
}

func (l *PriceLoop) fetchPrices(ctx context.Context, tokens []string) map[string]float64 {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		prices = make(map[string]float64, len(tokens))
	)
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			price, err := l.client.GetPrice(ctx, token)
			if err != nil {
				logs.Warnf("fetch price for %s: %v", token, err)
				return
			}
			mu.Lock()
			prices[token] = price
			mu.Unlock()
		}(token)
	}
	wg.Wait()
	return prices
}
