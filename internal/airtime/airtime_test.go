package airtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jst(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, JST)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  time.Time
		fails bool
	}{
		{name: "date only", in: "20250101", want: jst(2025, 1, 1, 0, 0, 0)},
		{name: "padded to hour", in: "2025010105", want: jst(2025, 1, 1, 5, 0, 0)},
		{name: "full 14 digits", in: "20250101235959", want: jst(2025, 1, 1, 23, 59, 59)},
		{name: "hour 24 rolls over", in: "20250101240000", want: jst(2025, 1, 2, 0, 0, 0)},
		{name: "hour 26 late night", in: "20250101263000", want: jst(2025, 1, 2, 2, 30, 0)},
		{name: "hour 29 closes the day", in: "20250101290000", want: jst(2025, 1, 2, 5, 0, 0)},
		{name: "month rollover", in: "20250131250000", want: jst(2025, 2, 1, 1, 0, 0)},
		{name: "year rollover", in: "20251231263000", want: jst(2026, 1, 1, 2, 30, 0)},
		{name: "too short", in: "2025", fails: true},
		{name: "too long", in: "202501012400001", fails: true},
		{name: "non digit", in: "2025010a", fails: true},
		{name: "bad month", in: "20251301", fails: true},
		{name: "bad minute", in: "20250101126100", fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "Parse(%q) = %s, want %s", tt.in, got, tt.want)
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	tests := []struct {
		in     string
		padded string
	}{
		{"20250101", "20250101000000"},
		{"2025010105", "20250101050000"},
		{"20250101235959", "20250101235959"},
		{"202501011430", "20250101143000"},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.padded, Format14(got), "round trip of %q", tt.in)
	}
}

func TestFormatBroadcast14RoundTrip(t *testing.T) {
	// Hours 24 through 28 re-encode to the same late-night string.
	for _, in := range []string{
		"20250101240000",
		"20250101251500",
		"20250101263059",
		"20250101280000",
		"20250101285959",
	} {
		parsed, err := Parse(in)
		require.NoError(t, err)
		assert.Equal(t, in, FormatBroadcast14(parsed), "broadcast round trip of %q", in)
	}

	// 29:00 is the same instant as the next day's 05:00 and re-encodes
	// canonically as the latter.
	a, err := Parse("20250101290000")
	require.NoError(t, err)
	b, err := Parse("20250102050000")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Equal(t, "20250102050000", FormatBroadcast14(a))
}

func TestSpanSec(t *testing.T) {
	ft := jst(2025, 1, 10, 13, 0, 0)
	to := jst(2025, 1, 10, 14, 0, 0)

	sec, err := SpanSec(ft, to)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), sec)

	sec, err = SpanSec(ft, ft)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sec)

	_, err = SpanSec(to, ft)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestCheckInterval(t *testing.T) {
	ft := jst(2025, 1, 10, 13, 0, 0)

	assert.NoError(t, CheckInterval(ft, ft.Add(time.Hour)))
	assert.NoError(t, CheckInterval(ft, ft.Add(24*time.Hour)))
	assert.ErrorIs(t, CheckInterval(ft, ft), ErrInvalidInterval)
	assert.ErrorIs(t, CheckInterval(ft.Add(time.Hour), ft), ErrInvalidInterval)
	assert.ErrorIs(t, CheckInterval(ft, ft.Add(24*time.Hour+time.Second)), ErrInvalidInterval)
}

func TestCompareToNow(t *testing.T) {
	ft := jst(2025, 1, 10, 14, 0, 0)
	to := ft.Add(time.Hour)

	assert.Equal(t, int64(0), CompareToNow(ft, to, ft), "start instant is on air")
	assert.Equal(t, int64(0), CompareToNow(ft, to, ft.Add(30*time.Minute)))
	assert.Negative(t, CompareToNow(ft, to, to), "end instant is already over")
	assert.Negative(t, CompareToNow(ft, to, to.Add(10*time.Second)))
	assert.Equal(t, int64(600), CompareToNow(ft, to, ft.Add(-10*time.Minute)), "upcoming counts seconds to start")
}

func TestBroadcastDateOf(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{name: "afternoon", in: jst(2025, 1, 10, 14, 30, 0), want: jst(2025, 1, 10, 0, 0, 0)},
		{name: "just before boundary", in: jst(2025, 1, 10, 4, 59, 59), want: jst(2025, 1, 9, 0, 0, 0)},
		{name: "boundary opens new day", in: jst(2025, 1, 10, 5, 0, 0), want: jst(2025, 1, 10, 0, 0, 0)},
		{name: "midnight", in: jst(2025, 1, 10, 0, 0, 0), want: jst(2025, 1, 9, 0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, BroadcastDateOf(tt.in).Equal(tt.want))
		})
	}
}

func TestDayBounds(t *testing.T) {
	date := jst(2025, 1, 10, 0, 0, 0)
	assert.True(t, DayStart(date).Equal(jst(2025, 1, 10, 5, 0, 0)))
	assert.True(t, DayEnd(date).Equal(jst(2025, 1, 11, 5, 0, 0)))
}

func TestClock(t *testing.T) {
	fixed := jst(2025, 1, 10, 5, 0, 10)
	c := NewClockWith(func() time.Time { return fixed }, 20)

	assert.True(t, c.Now().Equal(fixed))
	assert.True(t, c.BroadcastNow().Equal(fixed.Add(-20*time.Second)))
	// The live pointer sits at 04:59:50, still the previous broadcast day.
	assert.True(t, c.BroadcastDate().Equal(jst(2025, 1, 9, 0, 0, 0)))
	assert.Equal(t, 20, c.DelaySec())
}

func TestFormatHelpers(t *testing.T) {
	ft := jst(2025, 1, 10, 25-24, 30, 0).AddDate(0, 0, 1) // 2025-01-11 01:30, i.e. 25:30 of Jan 10
	assert.Equal(t, "20250110", FormatDate8(jst(2025, 1, 10, 23, 0, 0)))
	assert.Equal(t, "01:30", FormatHHMM(ft))
	assert.Equal(t, "14:00-15:00", FormatSpan(jst(2025, 1, 10, 14, 0, 0), jst(2025, 1, 10, 15, 0, 0)))
}
