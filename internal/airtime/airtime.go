// Package airtime implements broadcast-day time arithmetic for the radiko
// schedule domain. A broadcast day runs 05:00 to 29:00 JST: programs aired
// between midnight and 04:59 belong to the previous day's listings, and
// feeds encode them with hours 24 through 29.
package airtime

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// JST is the broadcast reference zone. Fixed offset, no tzdata dependence.
var JST = time.FixedZone("JST", 9*60*60)

// dayStartHour is the broadcast-day boundary.
const dayStartHour = 5

// ErrInvalidInterval reports an interval whose end does not follow its start
// or whose span exceeds one broadcast day.
var ErrInvalidInterval = errors.New("airtime: invalid interval")

// Parse converts a schedule timestamp into a wall-clock JST instant.
//
// Accepted forms are yyyymmdd (8 digits) and yyyymmddHHMMSS (14 digits);
// inputs between those lengths are zero-padded on the right. Hours 24-29
// denote the small hours of the following calendar day and are normalized.
func Parse(s string) (time.Time, error) {
	if len(s) < 8 || len(s) > 14 {
		return time.Time{}, fmt.Errorf("airtime: timestamp %q must be 8 to 14 digits", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return time.Time{}, fmt.Errorf("airtime: timestamp %q contains a non-digit", s)
		}
	}
	padded := s
	for len(padded) < 14 {
		padded += "0"
	}

	year, _ := strconv.Atoi(padded[0:4])
	month, _ := strconv.Atoi(padded[4:6])
	day, _ := strconv.Atoi(padded[6:8])
	hour, _ := strconv.Atoi(padded[8:10])
	min, _ := strconv.Atoi(padded[10:12])
	sec, _ := strconv.Atoi(padded[12:14])

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("airtime: timestamp %q has no calendar date", s)
	}
	if hour > 47 || min > 59 || sec > 59 {
		return time.Time{}, fmt.Errorf("airtime: timestamp %q has no clock time", s)
	}
	if hour >= 24 {
		day++
		hour -= 24
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, JST), nil
}

// Format14 renders t as a plain 14-digit wall-clock timestamp.
func Format14(t time.Time) string {
	return t.In(JST).Format("20060102150405")
}

// FormatDate8 renders the calendar date of t as yyyymmdd.
func FormatDate8(t time.Time) string {
	return t.In(JST).Format("20060102")
}

// FormatBroadcast14 renders t in the 24-29 hour convention: instants before
// 05:00 are written against the previous calendar date with hour+24. The
// 05:00 boundary itself belongs to the new day and renders plainly, so
// "290000" inputs re-encode as the equivalent "050000" of the next date.
func FormatBroadcast14(t time.Time) string {
	t = t.In(JST)
	if t.Hour() >= dayStartHour {
		return t.Format("20060102150405")
	}
	prev := t.AddDate(0, 0, -1)
	return fmt.Sprintf("%s%02d%02d%02d", prev.Format("20060102"), t.Hour()+24, t.Minute(), t.Second())
}

// FormatHHMM renders the wall-clock time of day of t.
func FormatHHMM(t time.Time) string {
	return t.In(JST).Format("15:04")
}

// FormatSpan renders a program interval as a compact display label.
func FormatSpan(ft, to time.Time) string {
	return FormatHHMM(ft) + "-" + FormatHHMM(to)
}

// SpanSec returns b-a in whole seconds. A negative span violates the
// interval contract and reports ErrInvalidInterval.
func SpanSec(a, b time.Time) (int64, error) {
	if b.Before(a) {
		return 0, fmt.Errorf("%w: end %s precedes start %s", ErrInvalidInterval, Format14(b), Format14(a))
	}
	return int64(b.Sub(a) / time.Second), nil
}

// CheckInterval validates a program interval: the end must follow the start
// and the span must not exceed 24 hours.
func CheckInterval(ft, to time.Time) error {
	if !ft.Before(to) {
		return fmt.Errorf("%w: %s >= %s", ErrInvalidInterval, Format14(ft), Format14(to))
	}
	if to.Sub(ft) > 24*time.Hour {
		return fmt.Errorf("%w: %s-%s spans more than 24h", ErrInvalidInterval, Format14(ft), Format14(to))
	}
	return nil
}

// CompareToNow classifies now against the half-open interval [ft, to).
// On air yields 0, an upcoming program yields the positive count of seconds
// until its start, and an ended program yields a negative count of seconds
// past its end. The end instant itself already counts as over, so the
// result there is -1.
func CompareToNow(ft, to, now time.Time) int64 {
	if now.Before(ft) {
		return int64(ft.Sub(now) / time.Second)
	}
	if now.Before(to) {
		return 0
	}
	return -int64(now.Sub(to)/time.Second) - 1
}

// BroadcastDateOf returns the calendar date (midnight JST) whose 05:00
// boundary opens the broadcast day containing t.
func BroadcastDateOf(t time.Time) time.Time {
	t = t.In(JST).Add(-dayStartHour * time.Hour)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, JST)
}

// DayStart returns the 05:00 opening instant of the broadcast day for the
// given calendar date.
func DayStart(date time.Time) time.Time {
	date = date.In(JST)
	return time.Date(date.Year(), date.Month(), date.Day(), dayStartHour, 0, 0, 0, JST)
}

// DayEnd returns the exclusive 29:00 closing instant of the broadcast day
// for the given calendar date.
func DayEnd(date time.Time) time.Time {
	return DayStart(date).Add(24 * time.Hour)
}
