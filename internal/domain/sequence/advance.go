package sequence

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/numerator"
	"seqnum/internal/core/tx"
	"seqnum/pkg/logger"
)

// Advance returns the next raw value of seq, first restarting its counter
// when the configured reset period has rolled over.
func (s *Service) Advance(ctx context.Context, call numerator.CallContext, seq *numerator.Sequence) (int64, Tokens, error) {
	tokens, err := s.resolver.Resolve(call)
	if err != nil {
		return 0, nil, err
	}
	value, err := s.advance(ctx, seq, tokens)
	if err != nil {
		return 0, nil, err
	}
	return value, tokens, nil
}

func (s *Service) advance(ctx context.Context, seq *numerator.Sequence, tokens Tokens) (int64, error) {
	ctx, span := tracer.Start(ctx, "sequence.advance",
		trace.WithAttributes(
			attribute.String("sequence.id", seq.ID.String()),
			attribute.String("sequence.implementation", string(seq.Implementation)),
		))
	defer span.End()

	start := s.clock.Now()

	var (
		value int64
		err   error
	)
	switch seq.Implementation {
	case numerator.ImplementationNoGap:
		value, err = s.advanceNoGap(ctx, seq, tokens)
	default:
		value, err = s.advanceStandard(ctx, seq, tokens)
	}
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	s.observer.ValueIssued(seq.Implementation, s.clock.Since(start))
	return value, nil
}

// issued is what one advance transaction produced: the value and, when the
// period rolled over, the boundary token it committed.
type issued struct {
	value int64
	reset string
}

func (s *Service) finish(ctx context.Context, seq *numerator.Sequence, out issued) int64 {
	if out.reset != "" {
		seq.ResetToken = out.reset
		s.logReset(ctx, seq, out.reset)
	}
	return out.value
}

// advanceStandard handles counter-backed sequences. The boundary token swap,
// the counter reconfiguration and the read share one transaction, so a
// token is never committed without its reconfiguration.
func (s *Service) advanceStandard(ctx context.Context, seq *numerator.Sequence, tokens Tokens) (int64, error) {
	out, err := tx.Run(ctx, s.txManager, func(ctx context.Context) (issued, error) {
		var out issued
		if seq.AutoReset {
			token := BoundaryToken(seq.ResetPeriod, tokens)
			if token != seq.ResetToken {
				if err := numerator.ValidateReconfigure(seq.Increment, seq.ResetValue); err != nil {
					return out, err
				}
				won, err := s.store.SwapResetToken(ctx, seq.ID, token)
				if err != nil {
					if errors.Is(err, numerator.ErrBusy) {
						return out, s.busy(ctx, seq, err)
					}
					return out, fmt.Errorf("swap reset token: %w", err)
				}
				if won {
					if err := s.restartCounter(ctx, seq, seq.ResetValue); err != nil {
						return out, err
					}
					out.reset = token
				}
			}
		}

		next, err := s.counter.Next(ctx, seq.ID)
		if err != nil {
			if errors.Is(err, numerator.ErrCounterMissing) {
				return out, apperror.NewInternal(err).WithDetail("sequence", seq.DisplayName())
			}
			return out, fmt.Errorf("next value: %w", err)
		}
		out.value = next
		return out, nil
	})
	if err != nil {
		return 0, err
	}
	return s.finish(ctx, seq, out), nil
}

// advanceNoGap handles row-backed sequences: lock the row without waiting,
// apply a pending reset, then read and bump number_next under the lock.
func (s *Service) advanceNoGap(ctx context.Context, seq *numerator.Sequence, tokens Tokens) (int64, error) {
	out, err := tx.Run(ctx, s.txManager, func(ctx context.Context) (issued, error) {
		var out issued
		row, err := s.store.LockRow(ctx, seq.ID)
		if err != nil {
			if errors.Is(err, numerator.ErrBusy) {
				return out, s.busy(ctx, seq, err)
			}
			return out, err
		}

		next := row.NumberNext
		if row.AutoReset {
			token := BoundaryToken(row.ResetPeriod, tokens)
			if token != row.ResetToken {
				if err := numerator.ValidateReconfigure(row.Increment, row.ResetValue); err != nil {
					return out, err
				}
				if err := s.store.ResetRow(ctx, row.ID, token, row.ResetValue); err != nil {
					return out, fmt.Errorf("reset row: %w", err)
				}
				next = row.ResetValue
				out.reset = token
			}
		}

		if err := s.store.SetNumberNext(ctx, row.ID, next+row.Increment); err != nil {
			return out, fmt.Errorf("advance row: %w", err)
		}
		out.value = next
		return out, nil
	})
	if err != nil {
		return 0, err
	}
	return s.finish(ctx, seq, out), nil
}

// restartCounter makes restart the next value of seq's counter. A counter
// that was never provisioned, e.g. for a row loaded by a data migration, is
// created at restart instead of being skipped.
func (s *Service) restartCounter(ctx context.Context, seq *numerator.Sequence, restart int64) error {
	exists, err := s.counter.Exists(ctx, seq.ID)
	if err != nil {
		return fmt.Errorf("check counter: %w", err)
	}
	if !exists {
		logger.Warn(ctx, "provisioning missing counter", "sequence_id", seq.ID, "code", seq.Code, "start", restart)
		if err := s.counter.Provision(ctx, seq.ID, seq.Increment, restart); err != nil {
			return fmt.Errorf("provision counter: %w", err)
		}
		return nil
	}
	if err := s.counter.Reconfigure(ctx, seq.ID, seq.Increment, restart); err != nil {
		return fmt.Errorf("reconfigure counter: %w", err)
	}
	return nil
}

func (s *Service) busy(ctx context.Context, seq *numerator.Sequence, cause error) error {
	s.observer.Busy()
	logger.Warn(ctx, "sequence row busy", "sequence_id", seq.ID, "code", seq.Code)
	return apperror.NewResourceBusy("sequence", seq.ID.String()).WithCause(cause)
}

func (s *Service) logReset(ctx context.Context, seq *numerator.Sequence, token string) {
	s.observer.Reset(seq.ResetPeriod)
	logger.Info(ctx, "sequence reset",
		"sequence_id", seq.ID,
		"code", seq.Code,
		"boundary", token,
		"restart", seq.ResetValue,
	)
}
