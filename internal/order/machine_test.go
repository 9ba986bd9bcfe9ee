package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalecopy/internal/schema"
)

func newTestMachine(t *testing.T, maxRetries int) *Machine {
	t.Helper()
	return NewMachine(NewMemoryStore(), maxRetries)
}

func TestTransitionTable(t *testing.T) {
	testCases := []struct {
		desc    string
		from    State
		to      State
		allowed bool
	}{
		{"pending to submitted", StatePending, StateSubmitted, true},
		{"pending skips to acknowledged", StatePending, StateAcknowledged, false},
		{"pending skips to filled", StatePending, StateFilled, false},
		{"submitted to acknowledged", StateSubmitted, StateAcknowledged, true},
		{"submitted fills without ack", StateSubmitted, StateFilled, true},
		{"acknowledged to partial", StateAcknowledged, StatePartiallyFilled, true},
		{"partial to filled", StatePartiallyFilled, StateFilled, true},
		{"partial back to acknowledged", StatePartiallyFilled, StateAcknowledged, false},
		{"filled to confirmed", StateFilled, StateConfirmed, true},
		{"filled to cancelled", StateFilled, StateCancelled, false},
		{"cancelling to cancelled", StateCancelling, StateCancelled, true},
		{"failed retries to pending", StateFailed, StatePending, true},
		{"failed to dead letter", StateFailed, StateDeadLetter, true},
		{"timeout to cancelling", StateTimeout, StateCancelling, true},
		{"timeout to dead letter", StateTimeout, StateDeadLetter, true},
		{"confirmed is frozen", StateConfirmed, StatePending, false},
		{"cancelled is frozen", StateCancelled, StatePending, false},
		{"dead letter is frozen", StateDeadLetter, StatePending, false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.allowed {
				t.Fatalf("%s -> %s: allowed should be %v but got %v", tc.from, tc.to, tc.allowed, got)
			}
		})
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := map[State]bool{
		StateConfirmed:  true,
		StateCancelled:  true,
		StateDeadLetter: true,
	}
	all := []State{
		StatePending, StateSubmitted, StateAcknowledged, StatePartiallyFilled,
		StateFilled, StateConfirmed, StateCancelling, StateCancelled,
		StateFailed, StateTimeout, StateDeadLetter,
	}
	for _, s := range all {
		if s.IsTerminal() != terminal[s] {
			t.Fatalf("%s: terminal should be %v", s, terminal[s])
		}
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	m := newTestMachine(t, 3)
	ctx := context.Background()

	o, err := m.Create(ctx, "mkt-1", "tok-1", schema.SideBuy, schema.OrderKindLimit, 100, 0.55)
	require.NoError(t, err)
	assert.Equal(t, StatePending, o.State)
	assert.NotEmpty(t, o.IdempotencyKey)
	assert.NotEqual(t, o.ID, o.IdempotencyKey)

	require.NoError(t, m.Transition(ctx, o.ID, StateSubmitted, "submit"))
	require.NoError(t, m.Transition(ctx, o.ID, StateAcknowledged, "ack"))

	state, err := m.UpdateFill(ctx, o.ID, 40, 0.55)
	require.NoError(t, err)
	assert.Equal(t, StatePartiallyFilled, state)

	state, err = m.UpdateFill(ctx, o.ID, 100, 0.552)
	require.NoError(t, err)
	assert.Equal(t, StateFilled, state)

	require.NoError(t, m.Transition(ctx, o.ID, StateConfirmed, "confirmed"))

	got, ok := m.Get(o.ID)
	require.True(t, ok)
	assert.Equal(t, StateConfirmed, got.State)
	assert.Equal(t, 100.0, got.FilledSize)
	assert.Equal(t, 0.552, got.AvgFillPrice)

	// One record per transition, in order.
	require.Len(t, got.Transitions, 5)
	assert.Equal(t, StatePending, got.Transitions[0].From)
	assert.Equal(t, StateConfirmed, got.Transitions[4].To)

	// Frozen once terminal.
	err = m.Transition(ctx, o.ID, StatePending, "revive")
	assert.ErrorIs(t, err, ErrTerminalOrder)
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := newTestMachine(t, 3)
	o, err := m.Create(context.Background(), "mkt-1", "tok-1", schema.SideBuy, schema.OrderKindMarket, 10, 0)
	require.NoError(t, err)

	err = m.Transition(context.Background(), o.ID, StateConfirmed, "skip ahead")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, _ := m.Get(o.ID)
	assert.Equal(t, StatePending, got.State)
	assert.Empty(t, got.Transitions)
}

func TestRecordErrorDeadLetters(t *testing.T) {
	m := newTestMachine(t, 2)
	ctx := context.Background()
	o, err := m.Create(ctx, "mkt-1", "tok-1", schema.SideSell, schema.OrderKindLimit, 10, 0.40)
	require.NoError(t, err)

	require.NoError(t, m.Transition(ctx, o.ID, StateSubmitted, "submit"))
	state, err := m.RecordError(ctx, o.ID, "connection refused")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)

	require.NoError(t, m.Retry(ctx, o.ID, "retry"))
	require.NoError(t, m.Transition(ctx, o.ID, StateSubmitted, "submit"))
	state, err = m.RecordError(ctx, o.ID, "connection refused")
	require.NoError(t, err)
	assert.Equal(t, StateDeadLetter, state)

	got, _ := m.Get(o.ID)
	assert.Equal(t, 2, got.RetryCount)
	// The dead-letter always passes through FAILED in the audit trail.
	last := got.Transitions[len(got.Transitions)-1]
	assert.Equal(t, StateFailed, last.From)
	assert.Equal(t, StateDeadLetter, last.To)
}

func TestUpdateFillValidation(t *testing.T) {
	m := newTestMachine(t, 3)
	ctx := context.Background()
	o, err := m.Create(ctx, "mkt-1", "tok-1", schema.SideBuy, schema.OrderKindLimit, 100, 0.50)
	require.NoError(t, err)
	require.NoError(t, m.Transition(ctx, o.ID, StateSubmitted, "submit"))

	_, err = m.UpdateFill(ctx, o.ID, 150, 0.50)
	assert.ErrorIs(t, err, ErrInvalidFill)

	_, err = m.UpdateFill(ctx, o.ID, 60, 0.50)
	require.NoError(t, err)

	// Fills never shrink; a stale poll result is ignored.
	state, err := m.UpdateFill(ctx, o.ID, 40, 0.49)
	require.NoError(t, err)
	assert.Equal(t, StatePartiallyFilled, state)
	got, _ := m.Get(o.ID)
	assert.Equal(t, 60.0, got.FilledSize)
	assert.Equal(t, 0.50, got.AvgFillPrice)
}

func TestRestore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	m := NewMachine(store, 3)
	open, err := m.Create(ctx, "mkt-1", "tok-1", schema.SideBuy, schema.OrderKindLimit, 100, 0.50)
	require.NoError(t, err)
	require.NoError(t, m.Transition(ctx, open.ID, StateSubmitted, "submit"))

	done, err := m.Create(ctx, "mkt-2", "tok-2", schema.SideBuy, schema.OrderKindMarket, 10, 0)
	require.NoError(t, err)
	require.NoError(t, m.Transition(ctx, done.ID, StateSubmitted, "submit"))
	require.NoError(t, m.Transition(ctx, done.ID, StateFilled, "filled"))
	require.NoError(t, m.Transition(ctx, done.ID, StateConfirmed, "confirmed"))

	revived := NewMachine(store, 3)
	n, err := revived.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := revived.Get(open.ID)
	require.True(t, ok)
	assert.Equal(t, StateSubmitted, got.State)

	_, ok = revived.Get(done.ID)
	assert.False(t, ok)

	// Restored orders keep transitioning from where they left off.
	require.NoError(t, revived.Transition(ctx, open.ID, StateAcknowledged, "ack"))
}

func TestUnknownOrder(t *testing.T) {
	m := newTestMachine(t, 3)
	err := m.Transition(context.Background(), "missing", StateSubmitted, "submit")
	assert.ErrorIs(t, err, ErrUnknownOrder)
}
