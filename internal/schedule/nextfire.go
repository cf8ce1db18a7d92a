// Package schedule computes when an alarm should next go off.
package schedule

import (
	"time"

	"github.com/CarlEnstrom/Goodmornin/internal/model"
)

// weeklyHorizon is today plus the following seven days.
const weeklyHorizon = 8

// NextFire returns the first instant strictly after now at which a should
// ring, evaluated in loc. ok is false when nothing is scheduled.
func NextFire(a model.AlarmDefinition, now time.Time, loc *time.Location) (time.Time, bool) {
	if a.Empty() || !a.Enabled {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	if a.OneShot() {
		y, m, d, ok := ParseDate(a.OnceDate)
		if !ok {
			return time.Time{}, false
		}
		t := time.Date(y, time.Month(m), d, a.Hour, a.Minute, 0, 0, loc)
		if !t.After(now) || firedAt(a, t) {
			return time.Time{}, false
		}
		return t, true
	}

	if a.DaysMask == 0 {
		return time.Time{}, false
	}
	for i := 0; i < weeklyHorizon; i++ {
		// time.Date normalizes day overflow and DST gaps; adding 24h would not.
		t := time.Date(now.Year(), now.Month(), now.Day()+i, a.Hour, a.Minute, 0, 0, loc)
		if !t.After(now) {
			continue
		}
		if a.DaysMask&DayBit(t.Weekday()) == 0 {
			continue
		}
		if firedAt(a, t) {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// DayBit maps a weekday onto the mask layout, bit 0 Monday through bit 6 Sunday.
func DayBit(wd time.Weekday) uint8 {
	return 1 << ((int(wd) + 6) % 7)
}

func firedAt(a model.AlarmDefinition, t time.Time) bool {
	return a.LastFiredUnix != 0 && a.LastFiredUnix == uint32(t.Unix())
}

// ParseDate accepts exactly YYYY-MM-DD with year >= 2000, month 1-12 and day
// 1-31. Month length is not checked.
func ParseDate(s string) (year, month, day int, ok bool) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return 0, 0, 0, false
	}
	num := func(part string) (int, bool) {
		n := 0
		for i := 0; i < len(part); i++ {
			c := part[i]
			if c < '0' || c > '9' {
				return 0, false
			}
			n = n*10 + int(c-'0')
		}
		return n, true
	}
	var okY, okM, okD bool
	year, okY = num(s[0:4])
	month, okM = num(s[5:7])
	day, okD = num(s[8:10])
	if !okY || !okM || !okD {
		return 0, 0, 0, false
	}
	if year < 2000 || month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, false
	}
	return year, month, day, true
}
