// Package memory provides in-process implementations of the sequence
// storage contracts. State lives for the lifetime of the process; it backs
// the "memory" storage driver and the tests.
package memory

import (
	"context"

	"seqnum/internal/core/id"
	"seqnum/internal/core/tx"
)

// Compile-time check that TxManager implements tx.Manager interface.
var _ tx.Manager = (*TxManager)(nil)

// TxManager gives in-memory writes transaction semantics: every write made
// through a Store or Counter in ctx registers an undo step, and row locks are
// held until the transaction ends.
type TxManager struct{}

// NewTxManager creates a new in-memory transaction manager.
func NewTxManager() *TxManager {
	return &TxManager{}
}

type txKey struct{}

type txState struct {
	undo    []func()
	release []func()
	held    map[id.ID]bool
}

// RunInTransaction executes fn within a transaction. An error or a panic
// from fn undoes its writes; nested calls reuse the transaction in ctx.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if currentTx(ctx) != nil {
		return fn(ctx)
	}

	st := &txState{held: make(map[id.ID]bool)}
	defer st.releaseAll()
	defer func() {
		if p := recover(); p != nil {
			st.rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		st.rollback()
		return err
	}
	return nil
}

func currentTx(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

func (t *txState) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *txState) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *txState) releaseAll() {
	for i := len(t.release) - 1; i >= 0; i-- {
		t.release[i]()
	}
	t.release = nil
}
