package order

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"whalecopy/internal/errors"
	"whalecopy/internal/schema"
)

var (
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
	ErrTerminalOrder     = errors.New("order is in a terminal state")
)

const defaultMaxRetries = 3

// Machine owns every ManagedOrder and enforces the lifecycle table.
// Transitions are serialized per order; a losing racer gets
// ErrInvalidTransition instead of a silent merge.
type Machine struct {
	store      Store
	maxRetries int

	mu     sync.RWMutex
	orders map[string]*ManagedOrder
	locks  map[string]*sync.Mutex
}

// NewMachine creates an empty machine backed by the given store.
func NewMachine(store Store, maxRetries int) *Machine {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Machine{
		store:      store,
		maxRetries: maxRetries,
		orders:     make(map[string]*ManagedOrder),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Restore reloads non-terminal orders after a restart so in-flight
// lifecycles continue from the last persisted state.
func (m *Machine) Restore(ctx context.Context) (int, error) {
	open, err := m.store.ListOpen(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list open orders")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range open {
		m.orders[o.ID] = o
		m.locks[o.ID] = &sync.Mutex{}
	}
	return len(open), nil
}

// Create registers a new order in PENDING state. The idempotency key is
// distinct from the order id and is what goes on the wire, so a retried
// submission is de-duplicated by the exchange.
func (m *Machine) Create(ctx context.Context, marketID, tokenID string, side schema.Side, kind schema.OrderKind, size, price float64) (*ManagedOrder, error) {
	if size <= 0 {
		return nil, ErrInvalidFill
	}
	now := time.Now().UTC()
	o := &ManagedOrder{
		ID:             uuid.NewString(),
		IdempotencyKey: uuid.NewString(),
		MarketID:       marketID,
		TokenID:        tokenID,
		Side:           side,
		Kind:           kind,
		Size:           size,
		Price:          price,
		State:          StatePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "persist new order")
	}

	m.mu.Lock()
	m.orders[o.ID] = o
	m.locks[o.ID] = &sync.Mutex{}
	m.mu.Unlock()

	return o.Clone(), nil
}

// Get returns a copy of the order.
func (m *Machine) Get(id string) (*ManagedOrder, bool) {
	m.mu.RLock()
	o, ok := m.orders[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Open returns copies of all non-terminal orders.
func (m *Machine) Open() []*ManagedOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ManagedOrder, 0, len(m.orders))
	for _, o := range m.orders {
		if !o.State.IsTerminal() {
			out = append(out, o.Clone())
		}
	}
	return out
}

func (m *Machine) lockOrder(id string) (*ManagedOrder, *sync.Mutex, error) {
	m.mu.RLock()
	o, ok := m.orders[id]
	lock := m.locks[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, ErrUnknownOrder
	}
	lock.Lock()
	return o, lock, nil
}

// Transition moves an order to target, appending an audit record. The
// record and the state are persisted atomically before the transition
// is considered committed.
func (m *Machine) Transition(ctx context.Context, id string, target State, reason string) error {
	o, lock, err := m.lockOrder(id)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	return m.transitionLocked(ctx, o, target, reason)
}

func (m *Machine) transitionLocked(ctx context.Context, o *ManagedOrder, target State, reason string) error {
	if o.State.IsTerminal() {
		return errors.Wrapf(ErrTerminalOrder, "order %s state %s", o.ID, o.State)
	}
	if !o.State.CanTransition(target) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", o.State, target)
	}

	rec := TransitionRecord{From: o.State, To: target, Reason: reason, At: time.Now().UTC()}
	prev := o.State
	o.State = target
	o.UpdatedAt = rec.At
	o.Transitions = append(o.Transitions, rec)

	if err := m.store.SaveTransition(ctx, o, rec); err != nil {
		// Roll back the in-memory mutation; nothing was committed.
		o.State = prev
		o.Transitions = o.Transitions[:len(o.Transitions)-1]
		return errors.Wrap(err, "persist transition")
	}

	logs.Debugf("order %s %s -> %s (%s)", o.ID, rec.From, rec.To, reason)
	return nil
}

// UpdateFill records fill progress and auto-transitions to FILLED when
// nothing remains, or PARTIALLY_FILLED otherwise.
func (m *Machine) UpdateFill(ctx context.Context, id string, filledSize, avgPrice float64) (State, error) {
	o, lock, err := m.lockOrder(id)
	if err != nil {
		return "", err
	}
	defer lock.Unlock()

	if filledSize < 0 || filledSize > o.Size {
		return o.State, errors.Wrapf(ErrInvalidFill, "filled %.4f of %.4f", filledSize, o.Size)
	}
	if filledSize < o.FilledSize {
		// Fills never shrink; stale poll result.
		return o.State, nil
	}

	o.FilledSize = filledSize
	if avgPrice > 0 {
		o.AvgFillPrice = avgPrice
	}

	target := StatePartiallyFilled
	if o.Remaining() == 0 {
		target = StateFilled
	}
	if o.State == target {
		if err := m.store.SaveFill(ctx, o); err != nil {
			return o.State, errors.Wrap(err, "persist fill")
		}
		return o.State, nil
	}
	if err := m.transitionLocked(ctx, o, target, "fill update"); err != nil {
		return o.State, err
	}
	return o.State, nil
}

// SetExchangeOrderID binds the exchange-assigned id after submission.
func (m *Machine) SetExchangeOrderID(ctx context.Context, id, exchangeID string) error {
	o, lock, err := m.lockOrder(id)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	o.ExchangeOrderID = exchangeID
	o.UpdatedAt = time.Now().UTC()
	return m.store.SaveFill(ctx, o)
}

// RecordError counts a submission failure. Orders that exhaust the
// retry budget are dead-lettered instead of lost.
func (m *Machine) RecordError(ctx context.Context, id, message string) (State, error) {
	o, lock, err := m.lockOrder(id)
	if err != nil {
		return "", err
	}
	defer lock.Unlock()

	o.RetryCount++
	if o.RetryCount >= m.maxRetries {
		if o.State != StateFailed && o.State != StateTimeout {
			if err := m.transitionLocked(ctx, o, StateFailed, message); err != nil {
				return o.State, err
			}
		}
		if err := m.transitionLocked(ctx, o, StateDeadLetter, "retry budget exhausted"); err != nil {
			return o.State, err
		}
		logs.Warnf("order %s dead-lettered after %d attempts: %s", o.ID, o.RetryCount, message)
		return StateDeadLetter, nil
	}
	if o.State != StateFailed {
		if err := m.transitionLocked(ctx, o, StateFailed, message); err != nil {
			return o.State, err
		}
	}
	return StateFailed, nil
}

// Retry re-enters PENDING from FAILED or TIMEOUT.
func (m *Machine) Retry(ctx context.Context, id, reason string) error {
	return m.Transition(ctx, id, StatePending, reason)
}
