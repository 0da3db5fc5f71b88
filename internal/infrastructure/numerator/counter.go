// Package numerator provides the PostgreSQL counter behind standard
// sequences. It implements core/numerator.Counter with one native SEQUENCE
// object per sequence row.
package numerator

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"seqnum/internal/core/id"
	corenumerator "seqnum/internal/core/numerator"
	"seqnum/internal/infrastructure/storage/postgres"
)

// Querier interface for database operations.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Counter issues values from PostgreSQL SEQUENCE objects.
type Counter struct {
	// staticQuerier is used when no transaction manager is configured.
	staticQuerier Querier
	txm           *postgres.TxManager
}

// Ensure compile-time interface compliance.
var _ corenumerator.Counter = (*Counter)(nil)

// New creates a counter bound to a fixed querier.
func New(querier Querier) *Counter {
	return &Counter{staticQuerier: querier}
}

// NewWithTxManager creates a counter that joins the transaction in ctx.
func NewWithTxManager(txm *postgres.TxManager) *Counter {
	return &Counter{txm: txm}
}

func (c *Counter) getQuerier(ctx context.Context) Querier {
	if c.txm != nil {
		return c.txm.GetQuerier(ctx)
	}
	return c.staticQuerier
}

// CounterName is the SEQUENCE object backing seqID.
func CounterName(seqID id.ID) string {
	return "seq_" + id.Compact(seqID)
}

func quoted(seqID id.ID) string {
	return pgx.Identifier{CounterName(seqID)}.Sanitize()
}

// DDL cannot take bind parameters; every value below is an int64 or a
// sanitized identifier.

func provisionSQL(seqID id.ID, increment, start int64) string {
	return fmt.Sprintf(
		"CREATE SEQUENCE IF NOT EXISTS %s AS bigint INCREMENT BY %d MINVALUE %d MAXVALUE %d START WITH %d",
		quoted(seqID), increment, int64(math.MinInt64), int64(math.MaxInt64), start,
	)
}

func reconfigureSQL(seqID id.ID, increment, restart int64) string {
	return fmt.Sprintf("ALTER SEQUENCE IF EXISTS %s INCREMENT BY %d RESTART WITH %d",
		quoted(seqID), increment, restart)
}

const (
	existsSQL = "SELECT to_regclass($1) IS NOT NULL"
	nextSQL   = "SELECT nextval($1)"
)

// Provision implements corenumerator.Counter.
func (c *Counter) Provision(ctx context.Context, seqID id.ID, increment, start int64) error {
	if _, err := c.getQuerier(ctx).Exec(ctx, provisionSQL(seqID, increment, start)); err != nil {
		return fmt.Errorf("create counter %s: %w", CounterName(seqID), err)
	}
	return nil
}

// Exists implements corenumerator.Counter.
func (c *Counter) Exists(ctx context.Context, seqID id.ID) (bool, error) {
	var ok bool
	if err := c.getQuerier(ctx).QueryRow(ctx, existsSQL, CounterName(seqID)).Scan(&ok); err != nil {
		return false, fmt.Errorf("check counter %s: %w", CounterName(seqID), err)
	}
	return ok, nil
}

// Next implements corenumerator.Counter.
func (c *Counter) Next(ctx context.Context, seqID id.ID) (int64, error) {
	var value int64
	if err := c.getQuerier(ctx).QueryRow(ctx, nextSQL, CounterName(seqID)).Scan(&value); err != nil {
		if postgres.IsUndefinedTable(err) {
			return 0, fmt.Errorf("counter %s: %w", CounterName(seqID), corenumerator.ErrCounterMissing)
		}
		return 0, fmt.Errorf("next value %s: %w", CounterName(seqID), err)
	}
	return value, nil
}

// Reconfigure implements corenumerator.Counter. A missing counter is left
// alone.
func (c *Counter) Reconfigure(ctx context.Context, seqID id.ID, increment, restart int64) error {
	if err := corenumerator.ValidateReconfigure(increment, restart); err != nil {
		return err
	}
	if _, err := c.getQuerier(ctx).Exec(ctx, reconfigureSQL(seqID, increment, restart)); err != nil {
		return fmt.Errorf("alter counter %s: %w", CounterName(seqID), err)
	}
	return nil
}
