package risk

import (
	"fmt"
	"sync"

	"github.com/yanun0323/logs"
)

// DrawdownProtector tracks peak equity and halts trading when drawdown
// or the consecutive-loss streak breaches its ceiling. The emergency
// ceiling is escalated separately for shutdown-grade logging.
type DrawdownProtector struct {
	mu sync.Mutex

	maxDrawdown       float64
	emergencyDrawdown float64
	maxConsecutive    int

	peakEquity   float64
	drawdown     float64
	consecutive  int
	halted       bool
	emergency    bool
	haltedReason string
}

// NewDrawdownProtector creates a protector with the given ceilings.
func NewDrawdownProtector(maxDrawdown, emergencyDrawdown float64, maxConsecutive int) *DrawdownProtector {
	return &DrawdownProtector{
		maxDrawdown:       maxDrawdown,
		emergencyDrawdown: emergencyDrawdown,
		maxConsecutive:    maxConsecutive,
	}
}

// UpdateEquity recomputes drawdown against the running peak.
func (d *DrawdownProtector) UpdateEquity(equity float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if equity > d.peakEquity {
		d.peakEquity = equity
	}
	if d.peakEquity <= 0 {
		return
	}
	d.drawdown = (d.peakEquity - equity) / d.peakEquity

	if d.emergencyDrawdown > 0 && d.drawdown >= d.emergencyDrawdown && !d.emergency {
		d.emergency = true
		d.halted = true
		d.haltedReason = fmt.Sprintf("EMERGENCY drawdown %.1f%% >= %.1f%%", d.drawdown*100, d.emergencyDrawdown*100)
		logs.Errorf("drawdown protector: %s, shutting down trade admission", d.haltedReason)
		return
	}
	if d.maxDrawdown > 0 && d.drawdown >= d.maxDrawdown && !d.halted {
		d.halted = true
		d.haltedReason = fmt.Sprintf("drawdown %.1f%% >= %.1f%%", d.drawdown*100, d.maxDrawdown*100)
		logs.Warnf("drawdown protector halt: %s", d.haltedReason)
	}
}

// OnTradeClosed updates the consecutive-loss streak.
func (d *DrawdownProtector) OnTradeClosed(won bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if won {
		d.consecutive = 0
		return
	}
	d.consecutive++
	if d.maxConsecutive > 0 && d.consecutive >= d.maxConsecutive && !d.halted {
		d.halted = true
		d.haltedReason = fmt.Sprintf("%d consecutive losses", d.consecutive)
		logs.Warnf("drawdown protector halt: %s", d.haltedReason)
	}
}

// Halted reports whether admission is blocked and why.
func (d *DrawdownProtector) Halted() (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halted, d.haltedReason
}

// Emergency reports whether the emergency ceiling was breached.
func (d *DrawdownProtector) Emergency() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.emergency
}

// Drawdown returns the current drawdown fraction.
func (d *DrawdownProtector) Drawdown() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drawdown
}

// ConsecutiveLosses returns the current loss streak.
func (d *DrawdownProtector) ConsecutiveLosses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consecutive
}

// Resume clears a non-emergency halt after manual review.
func (d *DrawdownProtector) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.emergency {
		logs.Warnf("drawdown protector: emergency halt requires restart, resume ignored")
		return
	}
	d.halted = false
	d.haltedReason = ""
	d.consecutive = 0
	logs.Infof("drawdown protector resumed")
}
