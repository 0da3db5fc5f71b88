package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commitAfter struct {
	commitErr error
	calls     int
}

func (m *commitAfter) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	if err := fn(ctx); err != nil {
		return err
	}
	return m.commitErr
}

func TestRun(t *testing.T) {
	m := &commitAfter{}
	v, err := Run(context.Background(), m, func(context.Context) (int64, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	assert.Equal(t, 1, m.calls)
}

func TestRunDropsValueOnFailedCommit(t *testing.T) {
	commitErr := errors.New("serialization failure")
	m := &commitAfter{commitErr: commitErr}
	v, err := Run(context.Background(), m, func(context.Context) (int64, error) { return 42, nil })
	assert.ErrorIs(t, err, commitErr)
	assert.Zero(t, v)
}

func TestRunPropagatesFnError(t *testing.T) {
	fnErr := errors.New("boom")
	v, err := Run(context.Background(), &commitAfter{}, func(context.Context) (string, error) { return "x", fnErr })
	assert.ErrorIs(t, err, fnErr)
	assert.Empty(t, v)
}
