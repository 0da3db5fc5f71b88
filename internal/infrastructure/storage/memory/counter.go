package memory

import (
	"context"
	"sync"

	"seqnum/internal/core/id"
	"seqnum/internal/core/numerator"
)

// Compile-time check that Counter implements numerator.Counter interface.
var _ numerator.Counter = (*Counter)(nil)

type counterState struct {
	value     int64
	increment int64
}

// Counter is an in-process atomic counter per sequence.
// Like a database sequence, Next is not rolled back with the transaction,
// Reconfigure is.
type Counter struct {
	mu       sync.Mutex
	counters map[id.ID]*counterState
}

// NewCounter creates an empty counter set.
func NewCounter() *Counter {
	return &Counter{counters: make(map[id.ID]*counterState)}
}

// Provision implements numerator.Counter.
func (c *Counter) Provision(ctx context.Context, seqID id.ID, increment, start int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.counters[seqID]; ok {
		return nil
	}
	c.counters[seqID] = &counterState{value: start, increment: increment}

	if st := currentTx(ctx); st != nil {
		st.onRollback(func() {
			c.mu.Lock()
			delete(c.counters, seqID)
			c.mu.Unlock()
		})
	}
	return nil
}

// Exists implements numerator.Counter.
func (c *Counter) Exists(ctx context.Context, seqID id.ID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.counters[seqID]
	return ok, nil
}

// Next implements numerator.Counter.
func (c *Counter) Next(ctx context.Context, seqID id.ID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.counters[seqID]
	if !ok {
		return 0, numerator.ErrCounterMissing
	}
	value := state.value
	state.value += state.increment
	return value, nil
}

// Reconfigure implements numerator.Counter.
func (c *Counter) Reconfigure(ctx context.Context, seqID id.ID, increment, restart int64) error {
	if err := numerator.ValidateReconfigure(increment, restart); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.counters[seqID]
	if !ok {
		return nil
	}
	before := *state
	state.increment = increment
	state.value = restart

	if st := currentTx(ctx); st != nil {
		st.onRollback(func() {
			c.mu.Lock()
			*state = before
			c.mu.Unlock()
		})
	}
	return nil
}
