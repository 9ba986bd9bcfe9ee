package order

import (
	"time"

	"whalecopy/internal/schema"
)

// State tracks the lifecycle of a managed order.
type State string

const (
	StatePending         State = "PENDING"
	StateSubmitted       State = "SUBMITTED"
	StateAcknowledged    State = "ACKNOWLEDGED"
	StatePartiallyFilled State = "PARTIALLY_FILLED"
	StateFilled          State = "FILLED"
	StateConfirmed       State = "CONFIRMED"
	StateCancelling      State = "CANCELLING"
	StateCancelled       State = "CANCELLED"
	StateFailed          State = "FAILED"
	StateTimeout         State = "TIMEOUT"
	StateDeadLetter      State = "DEAD_LETTER"
)

// successors is the allowed-transition table. A state missing from the
// map is terminal.
var successors = map[State][]State{
	StatePending:         {StateSubmitted, StateFailed, StateCancelling},
	StateSubmitted:       {StateAcknowledged, StatePartiallyFilled, StateFilled, StateCancelling, StateFailed, StateTimeout},
	StateAcknowledged:    {StatePartiallyFilled, StateFilled, StateCancelling, StateFailed, StateTimeout},
	StatePartiallyFilled: {StateFilled, StateCancelling, StateFailed, StateTimeout},
	StateFilled:          {StateConfirmed},
	StateCancelling:      {StateCancelled, StateFailed},
	StateFailed:          {StateDeadLetter, StatePending},
	StateTimeout:         {StateCancelling, StatePending, StateDeadLetter},
}

// IsTerminal reports whether a state has no successors.
func (s State) IsTerminal() bool {
	_, ok := successors[s]
	return !ok
}

// CanTransition reports whether target is an allowed successor of s.
func (s State) CanTransition(target State) bool {
	for _, next := range successors[s] {
		if next == target {
			return true
		}
	}
	return false
}

// TransitionRecord is one entry of an order's audit trail.
type TransitionRecord struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// ManagedOrder is the gateway's view of one order. It is owned by the
// Machine and must only be mutated through validated transitions. Once
// a terminal state is reached the order is frozen.
type ManagedOrder struct {
	ID             string
	IdempotencyKey string
	MarketID       string
	TokenID        string
	Side           schema.Side
	Kind           schema.OrderKind
	Size           float64
	Price          float64 // 0 for market orders

	State           State
	ExchangeOrderID string
	FilledSize      float64
	AvgFillPrice    float64
	RetryCount      int
	Transitions     []TransitionRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining returns the unfilled size.
func (o *ManagedOrder) Remaining() float64 {
	r := o.Size - o.FilledSize
	if r < 0 {
		return 0
	}
	return r
}

// FillRatio returns filled size over requested size, 0 for empty orders.
func (o *ManagedOrder) FillRatio() float64 {
	if o.Size <= 0 {
		return 0
	}
	return o.FilledSize / o.Size
}

// Clone returns a deep copy safe to hand outside the machine.
func (o *ManagedOrder) Clone() *ManagedOrder {
	cp := *o
	cp.Transitions = make([]TransitionRecord, len(o.Transitions))
	copy(cp.Transitions, o.Transitions)
	return &cp
}
