package sequence

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/numerator"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestResolveTokens_AllKeys(t *testing.T) {
	now := time.Date(2024, 7, 15, 13, 45, 9, 0, time.UTC)
	tokens := ResolveTokens(nil, nil, now)

	want := map[string]string{
		"year":    "2024",
		"month":   "07",
		"day":     "15",
		"y":       "24",
		"doy":     "197",
		"woy":     "29",
		"weekday": "1",
		"h24":     "13",
		"h12":     "01",
		"min":     "45",
		"sec":     "09",
	}
	for key, value := range want {
		assert.Equal(t, value, tokens[key], key)
		assert.Equal(t, value, tokens[RangePrefix+key], RangePrefix+key)
		assert.Equal(t, value, tokens[CurrentPrefix+key], CurrentPrefix+key)
	}
	assert.Len(t, tokens, len(TokenKeys)*3)
}

func TestWeekOfYear(t *testing.T) {
	tests := []struct {
		day  time.Time
		want string
	}{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "01"},  // Monday
		{time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "00"},  // Sunday before the first Monday
		{time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), "01"},  // first Monday
		{time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), "29"}, // Monday
		{time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC), "28"}, // Sunday closes the week
		{time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), "53"},
	}
	for _, tt := range tests {
		t.Run(tt.day.Format("2006-01-02"), func(t *testing.T) {
			assert.Equal(t, tt.want, renderToken("woy", tt.day))
		})
	}
}

func TestResolveTokens_Overrides(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	now := time.Date(2024, 7, 15, 13, 45, 9, 0, tokyo)

	tokens := ResolveTokens(date(2023, 12, 31), date(2022, 3, 5), now)

	assert.Equal(t, "2023", tokens["year"])
	assert.Equal(t, "12", tokens["month"])
	assert.Equal(t, "31", tokens["day"])
	assert.Equal(t, "00", tokens["h24"], "overrides are taken at midnight")

	assert.Equal(t, "2022", tokens["range_year"])
	assert.Equal(t, "03", tokens["range_month"])
	assert.Equal(t, "05", tokens["range_day"])

	assert.Equal(t, "2024", tokens["current_year"])
	assert.Equal(t, "13", tokens["current_h24"])
}

func TestResolveTokens_RangeFollowsNowWithoutOverride(t *testing.T) {
	now := time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)
	tokens := ResolveTokens(date(2020, 1, 1), nil, now)

	assert.Equal(t, "2020", tokens["year"])
	assert.Equal(t, "2024", tokens["range_year"])
	assert.Equal(t, "07", tokens["range_month"])
}

func TestResolver_Timezone(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 7, 15, 23, 30, 0, 0, time.UTC))

	r := NewResolver(clock, "")
	tokens, err := r.Resolve(numerator.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, "15", tokens["day"])
	assert.Equal(t, "23", tokens["h24"])

	tokens, err = r.Resolve(numerator.CallContext{Timezone: "Asia/Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, "16", tokens["day"])
	assert.Equal(t, "08", tokens["h24"])
}

func TestResolver_DefaultTimezone(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC))
	r := NewResolver(clock, "Asia/Tokyo")

	tokens, err := r.Resolve(numerator.CallContext{})
	require.NoError(t, err)
	assert.Equal(t, "2025", tokens["year"])

	tokens, err = r.Resolve(numerator.CallContext{Timezone: "UTC"})
	require.NoError(t, err)
	assert.Equal(t, "2024", tokens["year"])
}

func TestResolver_UnknownTimezone(t *testing.T) {
	r := NewResolver(clockwork.NewFakeClock(), "")

	_, err := r.Resolve(numerator.CallContext{Timezone: "Mars/Olympus"})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestBoundaryToken(t *testing.T) {
	tokens := ResolveTokens(nil, nil, time.Date(2024, 7, 15, 13, 45, 9, 0, time.UTC))

	assert.Equal(t, "year:2024", BoundaryToken(numerator.PeriodYear, tokens))
	assert.Equal(t, "month:07", BoundaryToken(numerator.PeriodMonth, tokens))
	assert.Equal(t, "woy:29", BoundaryToken(numerator.PeriodWeek, tokens))
	assert.Equal(t, "day:15", BoundaryToken(numerator.PeriodDay, tokens))
	assert.Equal(t, "h24:13", BoundaryToken(numerator.PeriodHour, tokens))
	assert.Equal(t, "min:45", BoundaryToken(numerator.PeriodMinute, tokens))
	assert.Equal(t, "sec:09", BoundaryToken(numerator.PeriodSecond, tokens))
}
