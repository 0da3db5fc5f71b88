package sequence_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/id"
	"seqnum/internal/core/numerator"
	"seqnum/internal/domain/sequence"
	"seqnum/internal/infrastructure/storage/memory"
)

type recorder struct {
	mu     sync.Mutex
	issued int
	resets []numerator.Period
	busy   int
}

func (r *recorder) ValueIssued(numerator.Implementation, time.Duration) {
	r.mu.Lock()
	r.issued++
	r.mu.Unlock()
}

func (r *recorder) Reset(p numerator.Period) {
	r.mu.Lock()
	r.resets = append(r.resets, p)
	r.mu.Unlock()
}

func (r *recorder) Busy() {
	r.mu.Lock()
	r.busy++
	r.mu.Unlock()
}

func (r *recorder) resetCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resets)
}

type fixture struct {
	svc     *sequence.Service
	store   *memory.Store
	counter *memory.Counter
	txm     *memory.TxManager
	clock   *clockwork.FakeClock
	obs     *recorder
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.NewStore(),
		counter: memory.NewCounter(),
		txm:     memory.NewTxManager(),
		clock:   clockwork.NewFakeClockAt(now),
		obs:     &recorder{},
	}
	f.svc = sequence.NewService(sequence.ServiceConfig{
		Store:     f.store,
		Counter:   f.counter,
		TxManager: f.txm,
		Clock:     f.clock,
		Observer:  f.obs,
	})
	return f
}

func (f *fixture) create(t *testing.T, mutate func(s *numerator.Sequence)) *numerator.Sequence {
	t.Helper()
	seq := numerator.NewSequence("inv", "Invoices")
	if mutate != nil {
		mutate(seq)
	}
	require.NoError(t, f.svc.Create(context.Background(), seq))
	return seq
}

func (f *fixture) next(t *testing.T, seqID id.ID) string {
	t.Helper()
	value, err := f.svc.NextByID(context.Background(), numerator.CallContext{}, seqID)
	require.NoError(t, err)
	return value
}

var july15 = time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)

func TestNext_StrictlyIncreasingByStep(t *testing.T) {
	for _, impl := range []numerator.Implementation{numerator.ImplementationStandard, numerator.ImplementationNoGap} {
		t.Run(string(impl), func(t *testing.T) {
			f := newFixture(t, july15)
			seq := f.create(t, func(s *numerator.Sequence) {
				s.Implementation = impl
				s.NumberNext = 10
				s.Increment = 3
			})

			assert.Equal(t, "10", f.next(t, seq.ID))
			assert.Equal(t, "13", f.next(t, seq.ID))
			assert.Equal(t, "16", f.next(t, seq.ID))
			assert.Equal(t, 3, f.obs.issued)
		})
	}
}

func TestNext_Formatting(t *testing.T) {
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) {
		s.Prefix = "INV/%(year)s/%(month)s/"
		s.Suffix = "-%(current_day)s"
		s.Padding = 5
		s.NumberNext = 42
	})

	assert.Equal(t, "INV/2024/07/00042-15", f.next(t, seq.ID))
}

func TestNext_ResetOncePerBoundary(t *testing.T) {
	for _, impl := range []numerator.Implementation{numerator.ImplementationStandard, numerator.ImplementationNoGap} {
		t.Run(string(impl), func(t *testing.T) {
			f := newFixture(t, july15)
			seq := f.create(t, func(s *numerator.Sequence) {
				s.Implementation = impl
				s.AutoReset = true
				s.ResetPeriod = numerator.PeriodMonth
				s.ResetToken = "month:07"
				s.NumberNext = 50
			})

			assert.Equal(t, "50", f.next(t, seq.ID))
			assert.Equal(t, "51", f.next(t, seq.ID))
			assert.Equal(t, 0, f.obs.resetCount(), "same month keeps counting")

			f.clock.Advance(20 * 24 * time.Hour)
			assert.Equal(t, "1", f.next(t, seq.ID))
			assert.Equal(t, "2", f.next(t, seq.ID))
			assert.Equal(t, "3", f.next(t, seq.ID))
			assert.Equal(t, 1, f.obs.resetCount())

			stored, err := f.store.GetByID(context.Background(), seq.ID)
			require.NoError(t, err)
			assert.Equal(t, "month:08", stored.ResetToken)
		})
	}
}

func TestNext_DayPeriodExample(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) {
		s.AutoReset = true
		s.ResetPeriod = numerator.PeriodDay
		s.ResetToken = "day:15"
		s.Padding = 3
	})
	require.NoError(t, f.svc.SetNextNumber(ctx, seq.ID, 999))

	assert.Equal(t, "999", f.next(t, seq.ID))
	assert.Equal(t, "1000", f.next(t, seq.ID), "padding narrower than the value does not truncate")

	f.clock.Advance(24 * time.Hour)
	assert.Equal(t, "001", f.next(t, seq.ID))
	assert.Equal(t, "002", f.next(t, seq.ID))
}

func TestNext_FirstCallRecordsBoundary(t *testing.T) {
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) {
		s.AutoReset = true
		s.ResetPeriod = numerator.PeriodYear
		s.NumberNext = 7
		s.ResetValue = 100
	})

	assert.Equal(t, "100", f.next(t, seq.ID), "an unrecorded boundary counts as a crossing")
	assert.Equal(t, "101", f.next(t, seq.ID))
}

func TestNext_EffectiveDateDrivesBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) {
		s.AutoReset = true
		s.ResetPeriod = numerator.PeriodYear
		s.ResetToken = "year:2024"
		s.Prefix = "%(year)s-"
		s.NumberNext = 30
	})

	backdated := time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC)
	value, err := f.svc.NextByID(ctx, numerator.CallContext{EffectiveDate: &backdated}, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, "2023-1", value)

	stored, err := f.store.GetByID(ctx, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, "year:2023", stored.ResetToken)
}

func TestNext_ZeroResetValueRejectedBeforeSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) {
		s.AutoReset = true
		s.ResetPeriod = numerator.PeriodMonth
		s.ResetToken = "month:06"
	})
	// Corrupt the stored configuration behind the service's back.
	seq.ResetValue = 0

	_, err := f.svc.Next(ctx, numerator.CallContext{}, seq)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	stored, err := f.store.GetByID(ctx, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, "month:06", stored.ResetToken, "token is not advanced without a reconfiguration")
}

func TestNext_InvalidTemplateConsumesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) {
		s.Prefix = "%(quarter)s/"
	})

	_, err := f.svc.NextByID(ctx, numerator.CallContext{}, seq.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTemplate))
	assert.ErrorIs(t, err, sequence.ErrInvalidTemplate)
	assert.Contains(t, err.Error(), "Invoices")

	value, err := f.counter.Next(ctx, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value, "counter was not advanced")
}

func TestNext_UnknownTimezone(t *testing.T) {
	f := newFixture(t, july15)
	seq := f.create(t, nil)

	_, err := f.svc.NextByID(context.Background(), numerator.CallContext{Timezone: "Nowhere/City"}, seq.ID)
	assert.True(t, apperror.IsValidation(err))
}

func TestNextByCode_NotFound(t *testing.T) {
	f := newFixture(t, july15)

	value, found, err := f.svc.NextByCode(context.Background(), numerator.CallContext{}, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, value)
}

func TestNextByCode_InactiveIgnored(t *testing.T) {
	f := newFixture(t, july15)
	f.create(t, func(s *numerator.Sequence) { s.Active = false })

	_, found, err := f.svc.NextByCode(context.Background(), numerator.CallContext{}, "inv")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNextByCode_CompanyTieBreak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, july15)
	companyA, companyB := id.New(), id.New()

	shared := f.create(t, func(s *numerator.Sequence) { s.Prefix = "SHARED/" })
	f.create(t, func(s *numerator.Sequence) { s.CompanyID = &companyA; s.Prefix = "A/" })
	f.create(t, func(s *numerator.Sequence) { s.CompanyID = &companyB; s.Prefix = "B/" })

	value, found, err := f.svc.NextByCode(ctx, numerator.CallContext{CompanyID: &companyB}, "inv")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "B/1", value)

	other := id.New()
	value, _, err = f.svc.NextByCode(ctx, numerator.CallContext{CompanyID: &other}, "inv")
	require.NoError(t, err)
	assert.Equal(t, "SHARED/1", value, "lowest id wins without a company match")

	value, _, err = f.svc.NextByCode(ctx, numerator.CallContext{}, "inv")
	require.NoError(t, err)
	assert.Equal(t, "SHARED/2", value)
	assert.NotNil(t, shared)
}

func TestSelect(t *testing.T) {
	company := id.New()
	first := &numerator.Sequence{ID: id.MustParse("00000000-0000-7000-8000-000000000001")}
	second := &numerator.Sequence{ID: id.MustParse("00000000-0000-7000-8000-000000000002"), CompanyID: &company}

	assert.Nil(t, sequence.Select(nil, &company))
	assert.Same(t, first, sequence.Select([]*numerator.Sequence{second, first}, nil))
	assert.Same(t, second, sequence.Select([]*numerator.Sequence{first, second}, &company))
}

func TestNoGap_BusyRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) { s.Implementation = numerator.ImplementationNoGap })

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			if _, err := f.store.LockRow(ctx, seq.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	_, err := f.svc.NextByID(ctx, numerator.CallContext{}, seq.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsResourceBusy(err))
	assert.ErrorIs(t, err, numerator.ErrBusy)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.True(t, appErr.Retryable)
	assert.Equal(t, 1, f.obs.busy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "1", f.next(t, seq.ID), "busy call did not consume a number")
}

func TestStandard_ConcurrentValuesUnique(t *testing.T) {
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) {
		s.AutoReset = true
		s.ResetPeriod = numerator.PeriodMonth
		s.ResetToken = "month:06"
		s.NumberNext = 500
	})

	const workers = 40
	values := make(chan string, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.svc.NextByID(context.Background(), numerator.CallContext{}, seq.ID)
			if err != nil {
				values <- "error: " + err.Error()
				return
			}
			values <- v
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[string]bool, workers)
	for v := range values {
		assert.False(t, seen[v], "duplicate value %s", v)
		seen[v] = true
	}
	for i := 1; i <= workers; i++ {
		assert.True(t, seen[fmt.Sprint(i)], "missing %d", i)
	}
	assert.Equal(t, 1, f.obs.resetCount(), "the boundary is crossed once")
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, july15)

	seq := numerator.NewSequence("inv", "Invoices")
	seq.NumberNext = 0
	err := f.svc.Create(context.Background(), seq)
	assert.True(t, apperror.IsValidation(err))

	seq = numerator.NewSequence("inv", "Invoices")
	seq.Increment = 0
	err = f.svc.Create(context.Background(), seq)
	assert.True(t, apperror.IsValidation(err))

	list, err := f.svc.List(context.Background(), numerator.ListFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreate_RollsBackOnProvisionFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := sequence.NewService(sequence.ServiceConfig{
		Store:     store,
		Counter:   failingCounter{Counter: memory.NewCounter()},
		TxManager: memory.NewTxManager(),
	})

	seq := numerator.NewSequence("inv", "Invoices")
	require.Error(t, svc.Create(ctx, seq))

	_, err := store.GetByID(ctx, seq.ID)
	assert.True(t, apperror.IsNotFound(err))
}

type failingCounter struct {
	*memory.Counter
}

func (failingCounter) Provision(context.Context, id.ID, int64, int64) error {
	return errors.New("permission denied for schema public")
}

func TestSetNextNumber(t *testing.T) {
	ctx := context.Background()
	for _, impl := range []numerator.Implementation{numerator.ImplementationStandard, numerator.ImplementationNoGap} {
		t.Run(string(impl), func(t *testing.T) {
			f := newFixture(t, july15)
			seq := f.create(t, func(s *numerator.Sequence) { s.Implementation = impl })
			f.next(t, seq.ID)

			require.NoError(t, f.svc.SetNextNumber(ctx, seq.ID, 700))
			assert.Equal(t, "700", f.next(t, seq.ID))

			err := f.svc.SetNextNumber(ctx, seq.ID, 0)
			assert.True(t, apperror.IsValidation(err))

			err = f.svc.SetNextNumber(ctx, id.New(), 5)
			assert.True(t, apperror.IsNotFound(err))
		})
	}
}

func TestUpdateReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) {
		s.AutoReset = true
		s.ResetPeriod = numerator.PeriodMonth
		s.ResetToken = "month:07"
	})

	updated, err := f.svc.UpdateReset(ctx, seq.ID, numerator.ResetSettings{
		AutoReset:  true,
		Period:     numerator.PeriodDay,
		ResetValue: 10,
		Version:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Empty(t, updated.ResetToken)

	_, err = f.svc.UpdateReset(ctx, seq.ID, numerator.ResetSettings{
		AutoReset: true, Period: numerator.PeriodDay, ResetValue: 10, Version: 1,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeConcurrentModification))

	_, err = f.svc.UpdateReset(ctx, seq.ID, numerator.ResetSettings{
		AutoReset: true, Period: numerator.PeriodDay, ResetValue: 0, Version: 2,
	})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.UpdateReset(ctx, seq.ID, numerator.ResetSettings{Period: "decade", ResetValue: 1, Version: 2})
	assert.True(t, apperror.IsValidation(err))

	assert.Equal(t, "10", f.next(t, seq.ID), "period change re-evaluates the boundary")
}

func TestAdvance_ReturnsTokens(t *testing.T) {
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) { s.NumberNext = 5 })

	value, tokens, err := f.svc.Advance(context.Background(), numerator.CallContext{Timezone: "Asia/Tokyo"}, seq)
	require.NoError(t, err)
	assert.Equal(t, int64(5), value)
	assert.Equal(t, "19", tokens["h24"])
}

func TestUpdateReset_WaitsForOpenRowTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, july15)
	seq := f.create(t, func(s *numerator.Sequence) { s.Implementation = numerator.ImplementationNoGap })

	locked := make(chan struct{})
	release := make(chan struct{})
	aborted := make(chan error, 1)
	go func() {
		aborted <- f.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			if _, err := f.store.LockRow(ctx, seq.ID); err != nil {
				return err
			}
			if err := f.store.SetNumberNext(ctx, seq.ID, 77); err != nil {
				return err
			}
			close(locked)
			<-release
			return errors.New("abort")
		})
	}()
	<-locked

	updated := make(chan error, 1)
	go func() {
		_, err := f.svc.UpdateReset(ctx, seq.ID, numerator.ResetSettings{
			AutoReset: true, Period: numerator.PeriodDay, ResetValue: 10, Version: 1,
		})
		updated <- err
	}()

	select {
	case err := <-updated:
		t.Fatalf("update finished while the row was locked: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.EqualError(t, <-aborted, "abort")
	require.NoError(t, <-updated)

	got, err := f.store.GetByID(ctx, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, numerator.PeriodDay, got.ResetPeriod)
	assert.Equal(t, int64(10), got.ResetValue)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, seq.NumberNext, got.NumberNext, "aborted write rolled back")
}

func TestMissingCounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, july15)

	imported := func(mutate func(s *numerator.Sequence)) *numerator.Sequence {
		seq := numerator.NewSequence("imp", "Imported")
		if mutate != nil {
			mutate(seq)
		}
		require.NoError(t, f.store.Create(ctx, seq), "row without a provisioned counter")
		return seq
	}

	plain := imported(nil)
	_, err := f.svc.NextByID(ctx, numerator.CallContext{}, plain.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, numerator.ErrCounterMissing)

	require.NoError(t, f.svc.SetNextNumber(ctx, plain.ID, 50))
	assert.Equal(t, "50", f.next(t, plain.ID), "set-next provisions the counter")
	assert.Equal(t, "51", f.next(t, plain.ID))

	resetting := imported(func(s *numerator.Sequence) {
		s.AutoReset = true
		s.ResetPeriod = numerator.PeriodMonth
		s.ResetValue = 7
	})
	assert.Equal(t, "7", f.next(t, resetting.ID), "boundary crossing provisions at the reset value")
	assert.Equal(t, "8", f.next(t, resetting.ID))
}
