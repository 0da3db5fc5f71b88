// Package sequence implements sequence numbering: boundary-triggered counter
// resets and prefix/suffix interpolation of date tokens.
package sequence

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/numerator"
)

// Tokens maps placeholder names to their rendered values,
// e.g. "year" -> "2024", "range_month" -> "07", "current_h24" -> "13".
type Tokens map[string]string

// Token families. Unprefixed keys come from the effective date.
const (
	RangePrefix   = "range_"
	CurrentPrefix = "current_"
)

// TokenKeys lists the date components exposed by every family.
var TokenKeys = []string{
	"year", "month", "day", "y", "doy", "woy", "weekday", "h24", "h12", "min", "sec",
}

// renderToken formats one component of t.
func renderToken(key string, t time.Time) string {
	switch key {
	case "year":
		return t.Format("2006")
	case "month":
		return t.Format("01")
	case "day":
		return t.Format("02")
	case "y":
		return t.Format("06")
	case "doy":
		return fmt.Sprintf("%03d", t.YearDay())
	case "woy":
		return fmt.Sprintf("%02d", weekOfYear(t))
	case "weekday":
		return strconv.Itoa(int(t.Weekday()))
	case "h24":
		return t.Format("15")
	case "h12":
		return t.Format("03")
	case "min":
		return t.Format("04")
	case "sec":
		return t.Format("05")
	}
	return ""
}

// weekOfYear numbers weeks with Monday as the first day. Days before the
// year's first Monday are in week 0.
func weekOfYear(t time.Time) int {
	mondayBased := (int(t.Weekday()) + 6) % 7
	return (t.YearDay() + 6 - mondayBased) / 7
}

// ResolveTokens renders the three token families. A nil effective or range
// date falls back to now; overrides are calendar dates taken at midnight in
// now's location.
func ResolveTokens(effective, rangeDate *time.Time, now time.Time) Tokens {
	eff, rng := now, now
	if effective != nil {
		eff = midnight(*effective, now.Location())
	}
	if rangeDate != nil {
		rng = midnight(*rangeDate, now.Location())
	}

	tokens := make(Tokens, len(TokenKeys)*3)
	for _, key := range TokenKeys {
		tokens[key] = renderToken(key, eff)
		tokens[RangePrefix+key] = renderToken(key, rng)
		tokens[CurrentPrefix+key] = renderToken(key, now)
	}
	return tokens
}

func midnight(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}

// BoundaryToken identifies the reset period the tokens fall in,
// e.g. "month:07".
func BoundaryToken(period numerator.Period, tokens Tokens) string {
	return string(period) + ":" + tokens[string(period)]
}

// Resolver turns a CallContext into Tokens using its clock for "now".
type Resolver struct {
	clock           clockwork.Clock
	defaultTimezone string
	locations       sync.Map // name -> *time.Location
}

// NewResolver creates a Resolver. An empty defaultTimezone means UTC.
func NewResolver(clock clockwork.Clock, defaultTimezone string) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{clock: clock, defaultTimezone: defaultTimezone}
}

// Resolve renders the tokens for a call.
func (r *Resolver) Resolve(call numerator.CallContext) (Tokens, error) {
	loc, err := r.location(call.Timezone)
	if err != nil {
		return nil, err
	}
	return ResolveTokens(call.EffectiveDate, call.RangeDate, r.clock.Now().In(loc)), nil
}

func (r *Resolver) location(name string) (*time.Location, error) {
	if name == "" {
		name = r.defaultTimezone
	}
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	if loc, ok := r.locations.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown timezone %q", name)).WithCause(err)
	}
	r.locations.Store(name, loc)
	return loc, nil
}
