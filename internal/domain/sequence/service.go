package sequence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/id"
	"seqnum/internal/core/numerator"
	"seqnum/internal/core/tx"
	"seqnum/pkg/logger"
)

var tracer = otel.Tracer("seqnum/sequence")

// Observer receives sequence events, typically for metrics.
type Observer interface {
	ValueIssued(impl numerator.Implementation, elapsed time.Duration)
	Reset(period numerator.Period)
	Busy()
}

type nopObserver struct{}

func (nopObserver) ValueIssued(numerator.Implementation, time.Duration) {}
func (nopObserver) Reset(numerator.Period)                              {}
func (nopObserver) Busy()                                               {}

// ServiceConfig wires the Service to its collaborators.
type ServiceConfig struct {
	Store     numerator.Store
	Counter   numerator.Counter
	TxManager tx.Manager

	// Clock supplies "now"; defaults to the real clock.
	Clock clockwork.Clock
	// DefaultTimezone applies when a call names none; empty means UTC.
	DefaultTimezone string
	// Observer is optional.
	Observer Observer
}

// Service issues sequence values.
type Service struct {
	store     numerator.Store
	counter   numerator.Counter
	txManager tx.Manager
	clock     clockwork.Clock
	resolver  *Resolver
	observer  Observer
}

// Ensure compile-time interface compliance.
var _ numerator.Generator = (*Service)(nil)

// NewService creates a new sequence service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Service{
		store:     cfg.Store,
		counter:   cfg.Counter,
		txManager: cfg.TxManager,
		clock:     clock,
		resolver:  NewResolver(clock, cfg.DefaultTimezone),
		observer:  observer,
	}
}

// Next advances seq and renders the result. Templates are checked before the
// counter moves, so a broken prefix or suffix does not consume a number.
func (s *Service) Next(ctx context.Context, call numerator.CallContext, seq *numerator.Sequence) (string, error) {
	tokens, err := s.resolver.Resolve(call)
	if err != nil {
		return "", err
	}
	if _, err := Format(seq.Prefix, seq.Suffix, seq.Padding, 0, tokens); err != nil {
		return "", apperror.NewInvalidTemplate(seq.DisplayName()).WithCause(err)
	}

	value, err := s.advance(ctx, seq, tokens)
	if err != nil {
		return "", err
	}

	out, err := Format(seq.Prefix, seq.Suffix, seq.Padding, value, tokens)
	if err != nil {
		return "", apperror.NewInvalidTemplate(seq.DisplayName()).WithCause(err)
	}
	return out, nil
}

// NextByCode implements numerator.Generator.
func (s *Service) NextByCode(ctx context.Context, call numerator.CallContext, code string) (string, bool, error) {
	candidates, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return "", false, fmt.Errorf("find sequence %q: %w", code, err)
	}
	seq := Select(candidates, call.CompanyID)
	if seq == nil {
		logger.Debug(ctx, "no sequence for code", "code", code)
		return "", false, nil
	}

	value, err := s.Next(ctx, call, seq)
	if err != nil {
		return "", true, err
	}
	return value, true, nil
}

// NextByID implements numerator.Generator.
func (s *Service) NextByID(ctx context.Context, call numerator.CallContext, seqID id.ID) (string, error) {
	seq, err := s.store.GetByID(ctx, seqID)
	if err != nil {
		return "", err
	}
	return s.Next(ctx, call, seq)
}

// Select picks the sequence to use among rows sharing a code: the one owned
// by companyID if any, otherwise the first by ID.
func Select(candidates []*numerator.Sequence, companyID *id.ID) *numerator.Sequence {
	if len(candidates) == 0 {
		return nil
	}
	ordered := slices.Clone(candidates)
	slices.SortStableFunc(ordered, func(a, b *numerator.Sequence) int {
		switch {
		case id.Less(a.ID, b.ID):
			return -1
		case id.Less(b.ID, a.ID):
			return 1
		}
		return 0
	})

	if companyID != nil {
		for _, seq := range ordered {
			if seq.CompanyID != nil && *seq.CompanyID == *companyID {
				return seq
			}
		}
	}
	return ordered[0]
}

// Create validates and stores seq, provisioning the counter of a standard
// sequence in the same transaction.
func (s *Service) Create(ctx context.Context, seq *numerator.Sequence) error {
	if err := seq.Validate(ctx); err != nil {
		return err
	}
	if seq.Implementation == numerator.ImplementationStandard && seq.NumberNext == 0 {
		return apperror.NewValidation("The sequence can't start at zero.")
	}
	if id.IsNil(seq.ID) {
		seq.ID = id.New()
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, seq); err != nil {
			return err
		}
		if seq.Implementation == numerator.ImplementationStandard {
			if err := s.counter.Provision(ctx, seq.ID, seq.Increment, seq.NumberNext); err != nil {
				return fmt.Errorf("provision counter: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "sequence created",
		"sequence_id", seq.ID,
		"code", seq.Code,
		"implementation", seq.Implementation,
		"auto_reset", seq.AutoReset,
	)
	return nil
}

// Get returns a sequence by ID.
func (s *Service) Get(ctx context.Context, seqID id.ID) (*numerator.Sequence, error) {
	return s.store.GetByID(ctx, seqID)
}

// List returns sequences matching filter.
func (s *Service) List(ctx context.Context, filter numerator.ListFilter) ([]*numerator.Sequence, error) {
	return s.store.List(ctx, filter)
}

// SetNextNumber makes value the next number issued (for migrations).
func (s *Service) SetNextNumber(ctx context.Context, seqID id.ID, value int64) error {
	seq, err := s.store.GetByID(ctx, seqID)
	if err != nil {
		return err
	}
	if err := numerator.ValidateReconfigure(seq.Increment, value); err != nil {
		return err
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if seq.Implementation == numerator.ImplementationNoGap {
			if _, err := s.store.LockRow(ctx, seq.ID); err != nil {
				if errors.Is(err, numerator.ErrBusy) {
					return s.busy(ctx, seq, err)
				}
				return err
			}
		} else if err := s.restartCounter(ctx, seq, value); err != nil {
			return err
		}
		return s.store.SetNumberNext(ctx, seq.ID, value)
	})
}

// UpdateReset changes the auto-reset settings of a sequence. The version
// check and the write share one transaction with the row lock.
func (s *Service) UpdateReset(ctx context.Context, seqID id.ID, settings numerator.ResetSettings) (*numerator.Sequence, error) {
	if !settings.Period.IsValid() {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown reset period %q", settings.Period)).
			WithDetail("allowed", numerator.Periods)
	}

	return tx.Run(ctx, s.txManager, func(ctx context.Context) (*numerator.Sequence, error) {
		seq, err := s.store.GetByID(ctx, seqID)
		if err != nil {
			return nil, err
		}
		if err := numerator.ValidateReconfigure(seq.Increment, settings.ResetValue); err != nil {
			return nil, err
		}
		if settings.Version != seq.Version {
			return nil, apperror.NewConcurrentModification("sequence", seqID.String())
		}

		settings.Apply(seq)
		if err := s.store.UpdateReset(ctx, seq); err != nil {
			return nil, err
		}
		seq.Version++
		return seq, nil
	})
}
