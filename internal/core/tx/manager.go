// Package tx defines the transaction boundary used by sequence services.
// A boundary token swap and the counter restart it triggers commit together.
package tx

import (
	"context"
)

// Manager runs fn inside a transaction carried by ctx. fn's error rolls it
// back; a nested call joins the transaction already in ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Run is RunInTransaction for functions that produce a value. The value is
// only returned when the transaction committed.
func Run[T any](ctx context.Context, m Manager, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := m.RunInTransaction(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
