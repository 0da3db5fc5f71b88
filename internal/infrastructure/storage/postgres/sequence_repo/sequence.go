// Package sequence_repo provides the PostgreSQL implementation of the
// sequence definition store.
package sequence_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/id"
	"seqnum/internal/core/numerator"
	"seqnum/internal/infrastructure/storage/postgres"
)

const entityName = "sequence"

// Compile-time check that Repo implements numerator.Store interface.
var _ numerator.Store = (*Repo)(nil)

// Repo stores sequence definitions in seq_sequences.
type Repo struct {
	txm       *postgres.TxManager
	tableName string
	cols      postgres.Columns[numerator.Sequence]
}

// New creates a new sequence repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:       txm,
		tableName: postgres.SequenceTable,
		cols:      postgres.ColumnsOf[numerator.Sequence](),
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) baseSelect() squirrel.SelectBuilder {
	return r.Builder().
		Select(r.cols.Names()...).
		From(r.tableName)
}

func (r *Repo) insertQuery(seq *numerator.Sequence) squirrel.InsertBuilder {
	return r.Builder().Insert(r.tableName).SetMap(r.cols.Values(seq))
}

func (r *Repo) listQuery(filter numerator.ListFilter) squirrel.SelectBuilder {
	q := r.baseSelect()
	if filter.Code != "" {
		q = q.Where(squirrel.Eq{"code": filter.Code})
	}
	if !filter.IncludeInactive {
		q = q.Where(squirrel.Eq{"active": true})
	}
	return q.OrderBy("id")
}

func (r *Repo) lockQuery(seqID id.ID) squirrel.SelectBuilder {
	return r.baseSelect().
		Where(squirrel.Eq{"id": seqID}).
		Suffix("FOR UPDATE NOWAIT")
}

// swapTokenQuery only matches when the stored token differs, so exactly one
// caller per boundary sees an affected row.
func (r *Repo) swapTokenQuery(seqID id.ID, token string) squirrel.UpdateBuilder {
	return r.Builder().
		Update(r.tableName).
		Set("reset_token", token).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": seqID}).
		Where(squirrel.NotEq{"reset_token": token})
}

func (r *Repo) updateResetQuery(seq *numerator.Sequence) squirrel.UpdateBuilder {
	return r.Builder().
		Update(r.tableName).
		Set("auto_reset", seq.AutoReset).
		Set("reset_period", seq.ResetPeriod).
		Set("reset_value", seq.ResetValue).
		Set("reset_token", seq.ResetToken).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": seq.ID}).
		Where(squirrel.Eq{"version": seq.Version})
}

// Create implements numerator.Store.
func (r *Repo) Create(ctx context.Context, seq *numerator.Sequence) error {
	sql, args, err := r.insertQuery(seq).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate(entityName, "id", seq.ID.String()).WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", r.tableName, err)
	}
	return nil
}

// GetByID implements numerator.Store.
func (r *Repo) GetByID(ctx context.Context, seqID id.ID) (*numerator.Sequence, error) {
	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{"id": seqID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var seq numerator.Sequence
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &seq, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(entityName, seqID.String())
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return &seq, nil
}

// FindByCode implements numerator.Store.
func (r *Repo) FindByCode(ctx context.Context, code string) ([]*numerator.Sequence, error) {
	return r.List(ctx, numerator.ListFilter{Code: code})
}

// List implements numerator.Store.
func (r *Repo) List(ctx context.Context, filter numerator.ListFilter) ([]*numerator.Sequence, error) {
	sql, args, err := r.listQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []*numerator.Sequence
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.tableName, err)
	}
	return out, nil
}

// SwapResetToken implements numerator.Store.
func (r *Repo) SwapResetToken(ctx context.Context, seqID id.ID, token string) (bool, error) {
	sql, args, err := r.swapTokenQuery(seqID, token).ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		if postgres.IsLockNotAvailable(err) {
			// lock_timeout expired while another caller held the row.
			return false, fmt.Errorf("swap reset token %s: %w", seqID, numerator.ErrBusy)
		}
		return false, fmt.Errorf("swap reset token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LockRow implements numerator.Store.
func (r *Repo) LockRow(ctx context.Context, seqID id.ID) (*numerator.Sequence, error) {
	if r.txm.GetTx(ctx) == nil {
		return nil, fmt.Errorf("lock %s %s: no transaction in context", entityName, seqID)
	}

	sql, args, err := r.lockQuery(seqID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lock: %w", err)
	}

	var seq numerator.Sequence
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &seq, sql, args...); err != nil {
		if postgres.IsLockNotAvailable(err) {
			return nil, fmt.Errorf("lock %s %s: %w", entityName, seqID, numerator.ErrBusy)
		}
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(entityName, seqID.String())
		}
		return nil, fmt.Errorf("lock %s: %w", entityName, err)
	}
	return &seq, nil
}

// ResetRow implements numerator.Store.
func (r *Repo) ResetRow(ctx context.Context, seqID id.ID, token string, numberNext int64) error {
	return r.exec(ctx, seqID, "reset row", r.Builder().
		Update(r.tableName).
		Set("reset_token", token).
		Set("number_next", numberNext).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": seqID}))
}

// SetNumberNext implements numerator.Store.
func (r *Repo) SetNumberNext(ctx context.Context, seqID id.ID, value int64) error {
	return r.exec(ctx, seqID, "set number_next", r.Builder().
		Update(r.tableName).
		Set("number_next", value).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": seqID}))
}

// UpdateReset implements numerator.Store.
func (r *Repo) UpdateReset(ctx context.Context, seq *numerator.Sequence) error {
	sql, args, err := r.updateResetQuery(seq).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update reset settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(entityName, seq.ID.String())
	}
	return nil
}

func (r *Repo) exec(ctx context.Context, seqID id.ID, op string, q squirrel.UpdateBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(entityName, seqID.String())
	}
	return nil
}
