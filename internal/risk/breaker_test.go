package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozenBreaker(daily, hourly float64, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(daily, hourly, cooldown)
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return current }
	return cb, &current
}

func TestBreakerDailyLimitTrips(t *testing.T) {
	cb, _ := frozenBreaker(500, 0, time.Hour)

	cb.RecordTrade(-490)
	assert.Equal(t, BreakerClosed, cb.State())
	ok, _ := cb.Allow()
	assert.True(t, ok)

	cb.RecordTrade(-20)
	assert.Equal(t, BreakerOpen, cb.State())
	assert.Equal(t, 1, cb.TripCount())

	ok, reason := cb.Allow()
	assert.False(t, ok)
	if !strings.Contains(reason, "daily loss") {
		t.Fatalf("reason mismatch: %q", reason)
	}
	// The first rejected check moves OPEN into COOLDOWN.
	assert.Equal(t, BreakerCooldown, cb.State())
}

func TestBreakerCooldownElapses(t *testing.T) {
	cb, now := frozenBreaker(500, 0, time.Hour)

	cb.RecordTrade(-510)
	ok, _ := cb.Allow()
	require.False(t, ok)

	*now = now.Add(30 * time.Minute)
	ok, _ = cb.Allow()
	assert.False(t, ok)

	*now = now.Add(31 * time.Minute)
	ok, _ = cb.Allow()
	assert.True(t, ok)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreakerProfitsOffsetDailyWindow(t *testing.T) {
	cb, _ := frozenBreaker(500, 0, time.Hour)

	cb.RecordTrade(-300)
	cb.RecordTrade(200)
	cb.RecordTrade(-300)
	// Net daily loss is 400, still under the limit.
	assert.Equal(t, BreakerClosed, cb.State())

	cb.RecordTrade(-150)
	assert.Equal(t, BreakerOpen, cb.State())
}

func TestBreakerHourlyWindowSlides(t *testing.T) {
	cb, now := frozenBreaker(100000, 200, time.Hour)

	cb.RecordTrade(-150)
	assert.Equal(t, BreakerClosed, cb.State())

	// The first loss ages out of the window before the second lands.
	*now = now.Add(61 * time.Minute)
	cb.RecordTrade(-150)
	assert.Equal(t, BreakerClosed, cb.State())

	*now = now.Add(10 * time.Minute)
	cb.RecordTrade(-60)
	assert.Equal(t, BreakerOpen, cb.State())
	ok, reason := cb.Allow()
	assert.False(t, ok)
	if !strings.Contains(reason, "hourly loss") {
		t.Fatalf("reason mismatch: %q", reason)
	}
}

func TestBreakerDailyWindowResetsAtMidnight(t *testing.T) {
	cb, now := frozenBreaker(500, 0, time.Hour)

	cb.RecordTrade(-490)
	*now = now.Add(24 * time.Hour)
	cb.RecordTrade(-490)
	// Yesterday's loss does not count against today.
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreakerManualReset(t *testing.T) {
	cb, _ := frozenBreaker(500, 0, time.Hour)

	cb.RecordTrade(-510)
	require.Equal(t, BreakerOpen, cb.State())

	cb.Reset()
	assert.Equal(t, BreakerClosed, cb.State())
	ok, _ := cb.Allow()
	assert.True(t, ok)
	// Trip history survives the reset.
	assert.Equal(t, 1, cb.TripCount())
}
