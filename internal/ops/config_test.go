package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalecopy/internal/risk"
	"whalecopy/internal/sizing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 10000, cfg.Trading.StartingBalanceUSD, 1e-9)
	assert.Equal(t, 10, cfg.Trading.BatchConcurrency)
	assert.Equal(t, 10, cfg.Trading.RateLimitPerSecond)
	assert.Equal(t, 20, cfg.Trading.RateLimitBurst)
	assert.Equal(t, time.Second, cfg.PriceTickInterval)
	assert.InDelta(t, 1000, cfg.Sizing.MaxPositionUSD, 1e-9)
	assert.InDelta(t, 500, cfg.Risk.DailyLossLimit, 1e-9)
	assert.Equal(t, time.Hour, cfg.Risk.CooldownPeriod)
}

func TestLoadDurations(t *testing.T) {
	path := writeConfig(t, `{
		"durations": {
			"cooldown": "30m",
			"fillPollInterval": "250ms",
			"fillTimeout": "45s",
			"priceTickInterval": "2s"
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Risk.CooldownPeriod)
	assert.Equal(t, 250*time.Millisecond, cfg.Execution.FillPollInterval)
	assert.Equal(t, 45*time.Second, cfg.Execution.FillTimeout)
	assert.Equal(t, 2*time.Second, cfg.PriceTickInterval)
}

func TestLoadRejectsBadInput(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{`, "unexpected end"},
		{"negative balance", `{"trading": {"startingBalanceUsd": -1}}`, "startingBalanceUsd"},
		{"bad duration", `{"durations": {"cooldown": "soon"}}`, "invalid duration for cooldown"},
		{"zero duration", `{"durations": {"fillTimeout": "0s"}}`, "must be > 0"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestValidateLimits(t *testing.T) {
	_, err := Resolve(FileConfig{
		Sizing: sizing.Config{MinPositionUSD: 200, MaxPositionUSD: 100},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minPositionUsd")

	_, err = Resolve(FileConfig{
		Sizing: sizing.Config{MinPositionUSD: 10, MaxPositionUSD: 5000},
		Risk:   risk.Config{MaxPositionUSD: 1000},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds risk maxPositionUsd")

	_, err = Resolve(FileConfig{
		Risk: risk.Config{MaxDrawdownPct: 0.20, EmergencyDrawdownPct: 0.10},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emergencyDrawdownPct")
}
