package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/id"
	"seqnum/internal/core/numerator"
)

// ErrNoTransaction is returned by operations that need a row lock outside
// of a transaction.
var ErrNoTransaction = errors.New("row lock requires a transaction")

// Compile-time check that Store implements numerator.Store interface.
var _ numerator.Store = (*Store)(nil)

// Store keeps sequence definitions in a map. Rows changed by an open
// transaction are read by everybody else as their last committed image.
type Store struct {
	mu    sync.Mutex
	rows  map[id.ID]*numerator.Sequence
	locks map[id.ID]*sync.Mutex

	committed map[id.ID]*numerator.Sequence
	writer    map[id.ID]*txState
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rows:      make(map[id.ID]*numerator.Sequence),
		locks:     make(map[id.ID]*sync.Mutex),
		committed: make(map[id.ID]*numerator.Sequence),
		writer:    make(map[id.ID]*txState),
	}
}

func clone(s *numerator.Sequence) *numerator.Sequence {
	cp := *s
	if s.CompanyID != nil {
		company := *s.CompanyID
		cp.CompanyID = &company
	}
	return &cp
}

func (s *Store) rowLock(seqID id.ID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[seqID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[seqID] = l
	}
	return l
}

// visible returns the row as seen from ctx. Caller holds s.mu.
func (s *Store) visible(ctx context.Context, seqID id.ID) (*numerator.Sequence, bool) {
	row, ok := s.rows[seqID]
	if !ok {
		return nil, false
	}
	if w, dirty := s.writer[seqID]; dirty && w != currentTx(ctx) {
		img := s.committed[seqID]
		return img, img != nil
	}
	return row, true
}

// markWritten records st as the writer of seqID, keeping before as the
// image other readers see until st ends. A nil image hides a row created by
// st. Caller holds s.mu.
func (s *Store) markWritten(st *txState, seqID id.ID, before *numerator.Sequence) {
	if _, dirty := s.writer[seqID]; dirty {
		return
	}
	s.writer[seqID] = st
	s.committed[seqID] = before
	st.release = append(st.release, func() {
		s.mu.Lock()
		delete(s.writer, seqID)
		delete(s.committed, seqID)
		s.mu.Unlock()
	})
}

// acquire takes the row lock for st, waiting like an UPDATE would, and keeps
// it until the transaction ends.
func (s *Store) acquire(st *txState, seqID id.ID) {
	if st.held[seqID] {
		return
	}
	l := s.rowLock(seqID)
	l.Lock()
	st.held[seqID] = true
	st.release = append(st.release, l.Unlock)
}

// mutate applies fn to the stored row and registers its undo with the
// transaction in ctx, if any.
func (s *Store) mutate(ctx context.Context, seqID id.ID, fn func(row *numerator.Sequence) error) error {
	st := currentTx(ctx)
	if st != nil {
		s.acquire(st, seqID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[seqID]
	if !ok {
		return apperror.NewNotFound("sequence", seqID.String())
	}
	before := clone(row)
	if err := fn(row); err != nil {
		return err
	}
	row.UpdatedAt = time.Now().UTC()

	if st == nil {
		return nil
	}
	st.onRollback(func() {
		s.mu.Lock()
		s.rows[seqID] = before
		s.mu.Unlock()
	})
	s.markWritten(st, seqID, before)
	return nil
}

// Create implements numerator.Store.
// Inside a transaction the new row stays invisible to other transactions
// until commit.
func (s *Store) Create(ctx context.Context, seq *numerator.Sequence) error {
	st := currentTx(ctx)
	if st != nil {
		s.acquire(st, seq.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[seq.ID]; exists {
		return apperror.NewDuplicate("sequence", "id", seq.ID.String())
	}
	s.rows[seq.ID] = clone(seq)

	if st == nil {
		return nil
	}
	st.onRollback(func() {
		s.mu.Lock()
		delete(s.rows, seq.ID)
		s.mu.Unlock()
	})
	s.markWritten(st, seq.ID, nil)
	return nil
}

// GetByID implements numerator.Store.
func (s *Store) GetByID(ctx context.Context, seqID id.ID) (*numerator.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.visible(ctx, seqID)
	if !ok {
		return nil, apperror.NewNotFound("sequence", seqID.String())
	}
	return clone(row), nil
}

// FindByCode implements numerator.Store.
func (s *Store) FindByCode(ctx context.Context, code string) ([]*numerator.Sequence, error) {
	return s.List(ctx, numerator.ListFilter{Code: code})
}

// List implements numerator.Store.
func (s *Store) List(ctx context.Context, filter numerator.ListFilter) ([]*numerator.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*numerator.Sequence
	for seqID := range s.rows {
		row, ok := s.visible(ctx, seqID)
		if !ok {
			continue
		}
		if filter.Code != "" && row.Code != filter.Code {
			continue
		}
		if !filter.IncludeInactive && !row.Active {
			continue
		}
		out = append(out, clone(row))
	}
	slices.SortFunc(out, func(a, b *numerator.Sequence) int {
		switch {
		case id.Less(a.ID, b.ID):
			return -1
		case id.Less(b.ID, a.ID):
			return 1
		}
		return 0
	})
	return out, nil
}

// SwapResetToken implements numerator.Store. The comparison runs under the
// row lock, so it sees the token committed by a concurrent swap.
func (s *Store) SwapResetToken(ctx context.Context, seqID id.ID, token string) (bool, error) {
	changed := false
	err := s.mutate(ctx, seqID, func(row *numerator.Sequence) error {
		if row.ResetToken == token {
			return nil
		}
		row.ResetToken = token
		changed = true
		return nil
	})
	return changed, err
}

// LockRow implements numerator.Store.
func (s *Store) LockRow(ctx context.Context, seqID id.ID) (*numerator.Sequence, error) {
	st := currentTx(ctx)
	if st == nil {
		return nil, ErrNoTransaction
	}
	if _, err := s.GetByID(ctx, seqID); err != nil {
		return nil, err
	}
	if !st.held[seqID] {
		l := s.rowLock(seqID)
		if !l.TryLock() {
			return nil, numerator.ErrBusy
		}
		st.held[seqID] = true
		st.release = append(st.release, l.Unlock)
	}
	return s.GetByID(ctx, seqID)
}

// ResetRow implements numerator.Store.
func (s *Store) ResetRow(ctx context.Context, seqID id.ID, token string, numberNext int64) error {
	return s.mutate(ctx, seqID, func(row *numerator.Sequence) error {
		row.ResetToken = token
		row.NumberNext = numberNext
		return nil
	})
}

// SetNumberNext implements numerator.Store.
func (s *Store) SetNumberNext(ctx context.Context, seqID id.ID, value int64) error {
	return s.mutate(ctx, seqID, func(row *numerator.Sequence) error {
		row.NumberNext = value
		return nil
	})
}

// UpdateReset implements numerator.Store.
func (s *Store) UpdateReset(ctx context.Context, seq *numerator.Sequence) error {
	return s.mutate(ctx, seq.ID, func(row *numerator.Sequence) error {
		if row.Version != seq.Version {
			return apperror.NewConcurrentModification("sequence", seq.ID.String())
		}
		row.AutoReset = seq.AutoReset
		row.ResetPeriod = seq.ResetPeriod
		row.ResetValue = seq.ResetValue
		row.ResetToken = seq.ResetToken
		row.Version++
		return nil
	})
}
