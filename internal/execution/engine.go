package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"whalecopy/internal/errors"
	"whalecopy/internal/exchange"
	"whalecopy/internal/order"
	"whalecopy/internal/schema"
)

var (
	ErrSlippageRejected = errors.New("slippage check rejected order")
	ErrFillTimeout      = errors.New("fill confirmation timed out")
	ErrNotAcknowledged  = errors.New("order was not acknowledged by the exchange")
)

// Config enumerates every tunable of the execution engine.
type Config struct {
	MaxRetries            int           `json:"maxRetries"`
	LimitSlippageCeiling  float64       `json:"limitSlippageCeiling"`
	MarketSlippageCeiling float64       `json:"marketSlippageCeiling"`
	FillPollInterval      time.Duration `json:"fillPollInterval"`
	FillTimeout           time.Duration `json:"fillTimeout"`
	PartialFillAccept     float64       `json:"partialFillAccept"`
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.LimitSlippageCeiling <= 0 {
		c.LimitSlippageCeiling = 0.02
	}
	if c.MarketSlippageCeiling <= 0 {
		c.MarketSlippageCeiling = 0.05
	}
	if c.FillPollInterval <= 0 {
		c.FillPollInterval = 500 * time.Millisecond
	}
	if c.FillTimeout <= 0 {
		c.FillTimeout = 30 * time.Second
	}
	if c.PartialFillAccept <= 0 {
		c.PartialFillAccept = 0.80
	}
	return c
}

// Request describes one order to execute.
type Request struct {
	MarketID string
	TokenID  string
	Side     schema.Side
	Size     float64
	Price    float64 // 0 places a market order

	// SkipSlippageCheck removes the engine's only protection against
	// adverse fills; callers opt out explicitly, never by default.
	SkipSlippageCheck bool
	WaitForFill       bool
	FillTimeout       time.Duration // 0 uses the configured default
}

func (r Request) kind() schema.OrderKind {
	if r.Price > 0 {
		return schema.OrderKindLimit
	}
	return schema.OrderKindMarket
}

// Result reports how an execution terminated. Every Execute call ends
// in a terminal state or an explicitly reported pending state; orders
// are never silently dropped.
type Result struct {
	Success    bool
	OrderID    string
	Status     order.State
	FilledSize float64
	AvgPrice   float64
	Err        error
}

// Engine turns sizing/risk decisions into exchange orders with
// slippage protection, bounded retries and fill confirmation.
type Engine struct {
	client  exchange.Client
	machine *order.Machine
	limiter *RateLimiter
	cfg     Config

	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an execution engine. The limiter is shared across
// all exchange callers and may be nil in tests.
func NewEngine(client exchange.Client, machine *order.Machine, limiter *RateLimiter, cfg Config) *Engine {
	return &Engine{
		client:  client,
		machine: machine,
		limiter: limiter,
		cfg:     cfg.withDefaults(),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

// Execute runs the full pipeline for one order: slippage estimate,
// submission with retries, then fill confirmation when requested.
func (e *Engine) Execute(ctx context.Context, req Request) Result {
	if !req.SkipSlippageCheck {
		if res, ok := e.checkSlippage(ctx, req); !ok {
			return res
		}
	}

	o, err := e.machine.Create(ctx, req.MarketID, req.TokenID, req.Side, req.kind(), req.Size, req.Price)
	if err != nil {
		return Result{Err: errors.Wrap(err, "create order")}
	}

	res := e.submit(ctx, o.ID, req)
	if !res.Success || !req.WaitForFill {
		return res
	}

	timeout := req.FillTimeout
	if timeout <= 0 {
		timeout = e.cfg.FillTimeout
	}
	return e.waitForFill(ctx, o.ID, timeout)
}

func (e *Engine) checkSlippage(ctx context.Context, req Request) (Result, bool) {
	if err := e.acquire(ctx); err != nil {
		return Result{Err: err}, false
	}
	book, err := e.client.GetOrderBook(ctx, req.TokenID)
	if err != nil {
		return Result{Err: errors.Wrap(err, "fetch order book")}, false
	}
	ceiling := e.cfg.MarketSlippageCeiling
	if req.kind() == schema.OrderKindLimit {
		ceiling = e.cfg.LimitSlippageCeiling
	}
	est := EstimateSlippage(book, req.Side, req.Size, ceiling)
	if !est.Recommended {
		logs.Warnf("slippage rejected %s %s size %.2f: %s", req.Side, req.TokenID, req.Size, est.Reason)
		return Result{Err: errors.Wrap(ErrSlippageRejected, est.Reason)}, false
	}
	return Result{}, true
}

func (e *Engine) submit(ctx context.Context, orderID string, req Request) Result {
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if err := e.machine.Transition(ctx, orderID, order.StateSubmitted, fmt.Sprintf("submit attempt %d", attempt+1)); err != nil {
			return e.failed(orderID, err)
		}
		if err := e.acquire(ctx); err != nil {
			return e.failed(orderID, err)
		}

		o, _ := e.machine.Get(orderID)
		placed, err := e.place(ctx, req, o.IdempotencyKey)
		if err == nil {
			if err := e.machine.SetExchangeOrderID(ctx, orderID, placed.OrderID); err != nil {
				return e.failed(orderID, err)
			}
			if err := e.machine.Transition(ctx, orderID, order.StateAcknowledged, "exchange ack"); err != nil {
				return e.failed(orderID, err)
			}
			o, _ = e.machine.Get(orderID)
			return Result{Success: true, OrderID: orderID, Status: o.State}
		}

		kind := exchange.KindOf(err)
		state, recErr := e.machine.RecordError(ctx, orderID, err.Error())
		if recErr != nil {
			return e.failed(orderID, recErr)
		}
		if !kind.Retryable() {
			// Business rejection; retrying cannot help. Preserve the
			// audit trail and terminate.
			_ = e.machine.Transition(ctx, orderID, order.StateDeadLetter, "non-retryable: "+kind.String())
			logs.Errorf("order %s rejected (%s): %v", orderID, kind, err)
			return e.failed(orderID, err)
		}
		if state == order.StateDeadLetter {
			logs.Errorf("order %s dead-lettered: %v", orderID, err)
			return e.failed(orderID, err)
		}

		backoff := RetryBackoff(attempt)
		logs.Warnf("order %s submit attempt %d failed (%s), retrying in %s", orderID, attempt+1, kind, backoff)
		if err := e.sleep(ctx, backoff); err != nil {
			return e.failed(orderID, err)
		}
		if err := e.machine.Retry(ctx, orderID, "retry after transient error"); err != nil {
			return e.failed(orderID, err)
		}
	}
	return e.failed(orderID, ErrNotAcknowledged)
}

func (e *Engine) place(ctx context.Context, req Request, idempotencyKey string) (*exchange.PlacedOrder, error) {
	if req.kind() == schema.OrderKindLimit {
		return e.client.PlaceLimitOrder(ctx, req.TokenID, req.Side, req.Size, req.Price, idempotencyKey)
	}
	return e.client.PlaceMarketOrder(ctx, req.TokenID, req.Side, req.Size, idempotencyKey)
}

func (e *Engine) waitForFill(ctx context.Context, orderID string, timeout time.Duration) Result {
	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			_ = e.machine.Transition(ctx, orderID, order.StateTimeout, "fill timeout")
			res := e.failed(orderID, ErrFillTimeout)
			res.Status = order.StateTimeout
			return res
		}
		if err := e.sleep(ctx, e.cfg.FillPollInterval); err != nil {
			return e.failed(orderID, err)
		}

		o, ok := e.machine.Get(orderID)
		if !ok {
			return Result{OrderID: orderID, Err: order.ErrUnknownOrder}
		}
		if err := e.acquire(ctx); err != nil {
			return e.failed(orderID, err)
		}
		remote, err := e.client.GetOrder(ctx, o.ExchangeOrderID)
		if err != nil {
			logs.Warnf("poll order %s: %v", orderID, err)
			continue
		}

		switch remote.Status {
		case exchange.StatusMatched:
			if _, err := e.machine.UpdateFill(ctx, orderID, o.Size, remote.Price); err != nil {
				return e.failed(orderID, err)
			}
			if err := e.machine.Transition(ctx, orderID, order.StateConfirmed, "fill confirmed"); err != nil {
				return e.failed(orderID, err)
			}
			return e.succeeded(orderID)

		case exchange.StatusCancelled:
			_ = e.machine.Transition(ctx, orderID, order.StateCancelling, "cancelled on exchange")
			_ = e.machine.Transition(ctx, orderID, order.StateCancelled, "cancel confirmed")
			return e.failed(orderID, errors.New("order cancelled on exchange"))

		case exchange.StatusFailed:
			_ = e.machine.Transition(ctx, orderID, order.StateFailed, "failed on exchange")
			return e.failed(orderID, errors.New("order failed on exchange"))
		}

		if remote.SizeFilled > o.FilledSize {
			if _, err := e.machine.UpdateFill(ctx, orderID, remote.SizeFilled, remote.Price); err != nil {
				return e.failed(orderID, err)
			}
		}
		o, _ = e.machine.Get(orderID)
		if o.State == order.StateFilled {
			if err := e.machine.Transition(ctx, orderID, order.StateConfirmed, "fill confirmed"); err != nil {
				return e.failed(orderID, err)
			}
			return e.succeeded(orderID)
		}
		if o.FillRatio() >= e.cfg.PartialFillAccept {
			logs.Infof("order %s accepted at %.0f%% fill", orderID, o.FillRatio()*100)
			return e.succeeded(orderID)
		}
	}
}

// Cancel withdraws an order through the CANCELLING path.
func (e *Engine) Cancel(ctx context.Context, orderID, reason string) error {
	o, ok := e.machine.Get(orderID)
	if !ok {
		return order.ErrUnknownOrder
	}
	if err := e.machine.Transition(ctx, orderID, order.StateCancelling, reason); err != nil {
		return err
	}
	if err := e.acquire(ctx); err != nil {
		return err
	}
	ok, err := e.client.CancelOrder(ctx, o.ExchangeOrderID)
	if err != nil || !ok {
		_ = e.machine.Transition(ctx, orderID, order.StateFailed, "cancel rejected")
		if err == nil {
			err = errors.New("exchange refused cancel")
		}
		return errors.Wrap(err, "cancel order")
	}
	return e.machine.Transition(ctx, orderID, order.StateCancelled, "cancel confirmed")
}

// SweepStuck re-polls or times out orders that have sat in SUBMITTED or
// ACKNOWLEDGED beyond the ceiling. Runs from a background timer.
func (e *Engine) SweepStuck(ctx context.Context, olderThan time.Duration) int {
	swept := 0
	cutoff := time.Now().Add(-olderThan)
	for _, o := range e.machine.Open() {
		if o.State != order.StateSubmitted && o.State != order.StateAcknowledged {
			continue
		}
		if o.UpdatedAt.After(cutoff) {
			continue
		}
		if err := e.machine.Transition(ctx, o.ID, order.StateTimeout, "stuck-order sweep"); err != nil {
			logs.Warnf("sweep order %s: %v", o.ID, err)
			continue
		}
		swept++
		logs.Warnf("order %s timed out by sweep (idle since %s)", o.ID, o.UpdatedAt.Format(time.RFC3339))
	}
	return swept
}

func (e *Engine) failed(orderID string, err error) Result {
	res := Result{OrderID: orderID, Err: err}
	if o, ok := e.machine.Get(orderID); ok {
		res.Status = o.State
		res.FilledSize = o.FilledSize
		res.AvgPrice = o.AvgFillPrice
	}
	return res
}

func (e *Engine) succeeded(orderID string) Result {
	res := Result{Success: true, OrderID: orderID}
	if o, ok := e.machine.Get(orderID); ok {
		res.Status = o.State
		res.FilledSize = o.FilledSize
		res.AvgPrice = o.AvgFillPrice
	}
	return res
}
