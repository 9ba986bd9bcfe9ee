package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

// BreakerState is the circuit breaker lifecycle.
type BreakerState int

const (
	BreakerClosed BreakerState = iota // admitting trades
	BreakerOpen                       // tripped, rejecting everything
	BreakerCooldown                   // still rejecting, waiting out the cooldown
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "OPEN"
	case BreakerCooldown:
		return "COOLDOWN"
	default:
		return "CLOSED"
	}
}

// CircuitBreaker halts new trade admission once realized losses breach
// the daily or hourly limit, until the cooldown elapses or a manual
// reset. One instance per trading session, injected, never global.
type CircuitBreaker struct {
	mu sync.Mutex

	dailyLimit  float64
	hourlyLimit float64
	cooldown    time.Duration

	state       BreakerState
	tripTime    time.Time
	cooldownEnd time.Time
	tripCount   int
	tripReason  string

	dayStart  time.Time
	dailyLoss float64
	hourly    []lossEntry

	now func() time.Time
}

type lossEntry struct {
	at   time.Time
	loss float64
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(dailyLimit, hourlyLimit float64, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		dailyLimit:  dailyLimit,
		hourlyLimit: hourlyLimit,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// RecordTrade feeds a realized P&L into the loss windows. Profits only
// offset the daily window; the hourly window tracks losses alone.
func (cb *CircuitBreaker) RecordTrade(pnl float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.rollWindows(now)

	cb.dailyLoss -= pnl
	if pnl < 0 {
		cb.hourly = append(cb.hourly, lossEntry{at: now, loss: -pnl})
	}

	if cb.state != BreakerClosed {
		return
	}
	if cb.dailyLimit > 0 && cb.dailyLoss >= cb.dailyLimit {
		cb.trip(now, fmt.Sprintf("daily loss $%.2f reached limit $%.2f", cb.dailyLoss, cb.dailyLimit))
		return
	}
	if hourly := cb.hourlyLoss(); cb.hourlyLimit > 0 && hourly >= cb.hourlyLimit {
		cb.trip(now, fmt.Sprintf("hourly loss $%.2f reached limit $%.2f", hourly, cb.hourlyLimit))
	}
}

func (cb *CircuitBreaker) trip(now time.Time, reason string) {
	cb.state = BreakerOpen
	cb.tripTime = now
	cb.cooldownEnd = now.Add(cb.cooldown)
	cb.tripCount++
	cb.tripReason = reason
	logs.Errorf("circuit breaker OPEN (trip %d): %s", cb.tripCount, reason)
}

// Allow reports whether new trade admission is permitted, advancing the
// breaker through COOLDOWN and back to CLOSED as time passes.
func (cb *CircuitBreaker) Allow() (bool, string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.rollWindows(now)

	switch cb.state {
	case BreakerClosed:
		return true, ""
	case BreakerOpen:
		cb.state = BreakerCooldown
		fallthrough
	default:
		if now.After(cb.cooldownEnd) {
			cb.state = BreakerClosed
			logs.Infof("circuit breaker CLOSED after cooldown")
			return true, ""
		}
		return false, cb.tripReason
	}
}

// State returns the current lifecycle state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// TripCount returns how many times the breaker tripped this session.
func (cb *CircuitBreaker) TripCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.tripCount
}

// Reset forces the breaker closed. Manual intervention path.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.tripReason = ""
	logs.Infof("circuit breaker RESET")
}

func (cb *CircuitBreaker) rollWindows(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(cb.dayStart) {
		cb.dayStart = day
		cb.dailyLoss = 0
	}
	cutoff := now.Add(-time.Hour)
	i := 0
	for ; i < len(cb.hourly); i++ {
		if cb.hourly[i].at.After(cutoff) {
			break
		}
	}
	cb.hourly = cb.hourly[i:]
}

func (cb *CircuitBreaker) hourlyLoss() float64 {
	total := 0.0
	for _, e := range cb.hourly {
		total += e.loss
	}
	return total
}
