package numerator

import (
	"context"
	"errors"
	"time"

	"seqnum/internal/core/id"
)

var (
	// ErrBusy is returned when a sequence row is locked by another
	// transaction and the lock was requested without waiting.
	ErrBusy = errors.New("sequence row is locked")

	// ErrCounterMissing is returned when a standard sequence has no
	// provisioned counter to read from.
	ErrCounterMissing = errors.New("sequence counter is not provisioned")
)

// CallContext carries the caller-supplied parameters of a "next value" call.
// It is passed explicitly; nothing is read from ambient state.
type CallContext struct {
	// CompanyID is the caller's active company, used to pick among
	// sequences sharing a code.
	CompanyID *id.ID

	// Timezone is an IANA zone name for "now"; empty means UTC.
	Timezone string

	// EffectiveDate overrides the date used for reset boundaries and
	// unprefixed tokens (backdated numbering). Calendar date, time ignored.
	EffectiveDate *time.Time

	// RangeDate overrides the date behind range_* tokens.
	RangeDate *time.Time
}

// Counter is the atomic per-sequence counter behind standard sequences.
// Implementations must make Next linearizable across concurrent callers.
type Counter interface {
	// Provision creates the counter. Creating an existing counter is a no-op.
	Provision(ctx context.Context, seqID id.ID, increment, start int64) error

	// Exists reports whether the counter has been provisioned.
	Exists(ctx context.Context, seqID id.ID) (bool, error)

	// Next atomically returns the current value and advances by the increment.
	Next(ctx context.Context, seqID id.ID) (int64, error)

	// Reconfigure sets a new increment and restarts at restart.
	// On a counter that is not provisioned yet it does nothing.
	Reconfigure(ctx context.Context, seqID id.ID, increment, restart int64) error
}

// ListFilter narrows Store.List.
type ListFilter struct {
	Code            string
	IncludeInactive bool
}

// Store persists sequence definitions.
// Methods that mutate must join the transaction carried by ctx.
type Store interface {
	Create(ctx context.Context, seq *Sequence) error
	GetByID(ctx context.Context, seqID id.ID) (*Sequence, error)

	// FindByCode returns active sequences with the code, ordered by ID.
	FindByCode(ctx context.Context, code string) ([]*Sequence, error)
	List(ctx context.Context, filter ListFilter) ([]*Sequence, error)

	// SwapResetToken stores token unless it is already stored and reports
	// whether this call changed it. Concurrent callers with the same token
	// see exactly one true.
	SwapResetToken(ctx context.Context, seqID id.ID, token string) (bool, error)

	// LockRow takes an exclusive lock on the row without waiting and returns
	// its current state. A held lock yields ErrBusy.
	LockRow(ctx context.Context, seqID id.ID) (*Sequence, error)

	// ResetRow stores the boundary token and the restart value together.
	ResetRow(ctx context.Context, seqID id.ID, token string, numberNext int64) error

	SetNumberNext(ctx context.Context, seqID id.ID, value int64) error

	// UpdateReset persists auto-reset settings if seq.Version is current.
	UpdateReset(ctx context.Context, seq *Sequence) error
}

// Generator produces formatted sequence values.
// HTTP handlers and the CLI depend on this contract.
type Generator interface {
	// NextByCode returns the next value of the sequence selected by code.
	// found is false when no active sequence has the code.
	NextByCode(ctx context.Context, call CallContext, code string) (value string, found bool, err error)

	// NextByID returns the next value of a specific sequence.
	NextByID(ctx context.Context, call CallContext, seqID id.ID) (string, error)
}
