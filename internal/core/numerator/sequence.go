// Package numerator provides domain contracts for sequence numbering.
// Implementations live in infrastructure layer.
package numerator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/id"
)

// Implementation selects how the numeric value of a sequence is stored.
type Implementation string

const (
	// ImplementationStandard keeps the value in a dedicated atomic counter
	// object (a PostgreSQL SEQUENCE). Fast, may leave gaps on rollback.
	ImplementationStandard Implementation = "standard"

	// ImplementationNoGap keeps the value in the sequence row itself and
	// increments it under an exclusive NOWAIT row lock.
	ImplementationNoGap Implementation = "no_gap"
)

// IsValid reports whether the implementation is known.
func (i Implementation) IsValid() bool {
	return i == ImplementationStandard || i == ImplementationNoGap
}

// Period is the calendar unit after which an auto-reset sequence restarts.
// The value doubles as the token key whose rendering identifies the period.
type Period string

const (
	PeriodYear   Period = "year"
	PeriodMonth  Period = "month"
	PeriodWeek   Period = "woy"
	PeriodDay    Period = "day"
	PeriodHour   Period = "h24"
	PeriodMinute Period = "min"
	PeriodSecond Period = "sec"
)

// Periods lists every supported reset period, coarsest first.
var Periods = []Period{
	PeriodYear, PeriodMonth, PeriodWeek, PeriodDay, PeriodHour, PeriodMinute, PeriodSecond,
}

// IsValid reports whether p is one of Periods.
func (p Period) IsValid() bool {
	for _, known := range Periods {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePeriod converts user input to a Period.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", apperror.NewValidation(fmt.Sprintf("unknown reset period %q", s)).
			WithDetail("allowed", Periods)
	}
	return p, nil
}

// Defaults applied by NewSequence.
const (
	DefaultIncrement  int64 = 1
	DefaultNumberNext int64 = 1
	DefaultResetValue int64 = 1
	DefaultPeriod           = PeriodMonth
)

// Sequence is a persisted generator of successive numbers.
type Sequence struct {
	ID             id.ID          `db:"id" json:"id"`
	Code           string         `db:"code" json:"code"`
	Name           string         `db:"name" json:"name"`
	CompanyID      *id.ID         `db:"company_id" json:"companyId,omitempty"`
	Implementation Implementation `db:"implementation" json:"implementation"`
	Active         bool           `db:"active" json:"active"`

	// NumberNext is authoritative for no_gap sequences. For standard
	// sequences it only seeds the counter at provisioning time.
	NumberNext int64  `db:"number_next" json:"numberNext"`
	Increment  int64  `db:"number_increment" json:"increment"`
	Padding    int    `db:"padding" json:"padding"`
	Prefix     string `db:"prefix" json:"prefix"`
	Suffix     string `db:"suffix" json:"suffix"`

	AutoReset   bool   `db:"auto_reset" json:"autoReset"`
	ResetPeriod Period `db:"reset_period" json:"resetPeriod"`
	// ResetToken is the last boundary seen, "<period>:<value>".
	ResetToken string `db:"reset_token" json:"resetToken"`
	ResetValue int64  `db:"reset_value" json:"resetValue"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewSequence creates a standard, non-resetting sequence with defaults.
func NewSequence(code, name string) *Sequence {
	now := time.Now().UTC()
	return &Sequence{
		ID:             id.New(),
		Code:           code,
		Name:           name,
		Implementation: ImplementationStandard,
		Active:         true,
		NumberNext:     DefaultNumberNext,
		Increment:      DefaultIncrement,
		ResetPeriod:    DefaultPeriod,
		ResetValue:     DefaultResetValue,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks sequence invariants (without database access).
func (s *Sequence) Validate(ctx context.Context) error {
	if strings.TrimSpace(s.Name) == "" {
		return apperror.NewValidation("sequence name is required")
	}
	if !s.Implementation.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown implementation %q", s.Implementation))
	}
	if s.Padding < 0 {
		return apperror.NewValidation("padding must not be negative").WithDetail("padding", s.Padding)
	}
	if !s.ResetPeriod.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown reset period %q", s.ResetPeriod)).
			WithDetail("allowed", Periods)
	}
	return ValidateReconfigure(s.Increment, s.ResetValue)
}

// DisplayName is used in messages; falls back to code.
func (s *Sequence) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Code
}

// ValidateReconfigure rejects parameters a counter must never be set to.
// It runs before any counter or row is touched.
func ValidateReconfigure(increment, restart int64) error {
	if increment == 0 {
		return apperror.NewValidation("Step must not be zero.").WithDetail("increment", increment)
	}
	if restart == 0 {
		return apperror.NewValidation("The sequence can't start at zero.").WithDetail("restart", restart)
	}
	return nil
}

// ResetSettings changes the auto-reset configuration of a sequence.
type ResetSettings struct {
	AutoReset  bool
	Period     Period
	ResetValue int64
	// Version must match the stored version (optimistic locking).
	Version int
}

// Apply copies the settings onto s. A period change forgets the recorded
// boundary so the next call re-evaluates it.
func (r ResetSettings) Apply(s *Sequence) {
	if s.ResetPeriod != r.Period {
		s.ResetToken = ""
	}
	s.AutoReset = r.AutoReset
	s.ResetPeriod = r.Period
	s.ResetValue = r.ResetValue
}
