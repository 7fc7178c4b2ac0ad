package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSendWindowTolerance is how long after send_time a step may still go out.
const DefaultSendWindowTolerance = time.Hour

// SendWindow restricts when a step may be dispatched.
type SendWindow struct {
	// At is minutes after local midnight; nil means any time of day.
	At   *int
	Days map[time.Weekday]struct{}
}

var weekdayAliases = map[string]time.Weekday{
	"sun": time.Sunday, "dom": time.Sunday, "0": time.Sunday,
	"mon": time.Monday, "seg": time.Monday, "1": time.Monday,
	"tue": time.Tuesday, "ter": time.Tuesday, "2": time.Tuesday,
	"wed": time.Wednesday, "qua": time.Wednesday, "3": time.Wednesday,
	"thu": time.Thursday, "qui": time.Thursday, "4": time.Thursday,
	"fri": time.Friday, "sex": time.Friday, "5": time.Friday,
	"sat": time.Saturday, "sab": time.Saturday, "sáb": time.Saturday, "6": time.Saturday,
}

// ParseClockTime parses "HH:MM" into minutes after midnight.
func ParseClockTime(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid send time %q", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid send time %q", value)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid send time %q", value)
	}
	return h*60 + m, nil
}

// ParseSendDays reads a weekday filter. Empty input, "any", or a list with
// no recognizable day yields nil, meaning unrestricted. English and
// Portuguese names are accepted, full or abbreviated.
func ParseSendDays(values []string) map[time.Weekday]struct{} {
	days := make(map[time.Weekday]struct{})
	for _, raw := range values {
		key := strings.ToLower(strings.TrimSpace(raw))
		if key == "" {
			continue
		}
		if key == "any" {
			return nil
		}
		if r := []rune(key); len(r) > 3 {
			key = string(r[:3])
		}
		if day, ok := weekdayAliases[key]; ok {
			days[day] = struct{}{}
		}
	}
	if len(days) == 0 {
		return nil
	}
	return days
}

// WindowFor builds the send window of a step. A malformed send_time is
// ignored so a bad edit never blocks a subscription forever.
func WindowFor(step Step) SendWindow {
	var w SendWindow
	if step.SendTime != nil && strings.TrimSpace(*step.SendTime) != "" {
		if minutes, err := ParseClockTime(*step.SendTime); err == nil {
			w.At = &minutes
		}
	}
	w.Days = ParseSendDays(step.SendDays)
	return w
}

// Unrestricted reports whether the window allows any instant.
func (w SendWindow) Unrestricted() bool {
	return w.At == nil && len(w.Days) == 0
}

func (w SendWindow) dayAllowed(day time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	_, ok := w.Days[day]
	return ok
}

// Allows reports whether now (converted to loc) falls inside the window:
// an allowed weekday and, when a send time is set, within
// [send_time, send_time+tolerance).
func (w SendWindow) Allows(now time.Time, loc *time.Location, tolerance time.Duration) bool {
	if w.Unrestricted() {
		return true
	}
	local := now.In(loc)
	if !w.dayAllowed(local.Weekday()) {
		return false
	}
	if w.At == nil {
		return true
	}
	if tolerance <= 0 {
		tolerance = DefaultSendWindowTolerance
	}
	opens := w.openingOn(local, loc)
	return !local.Before(opens) && local.Before(opens.Add(tolerance))
}

// NextOpening returns the first instant strictly after now at which the
// window opens: the next send_time on an allowed day, or local midnight of
// the next allowed day when only days are restricted.
func (w SendWindow) NextOpening(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	for d := 0; d <= 7; d++ {
		day := local.AddDate(0, 0, d)
		if !w.dayAllowed(day.Weekday()) {
			continue
		}
		candidate := w.openingOn(day, loc)
		if candidate.After(local) {
			return candidate
		}
	}
	// Unreachable with a non-empty day set; fall back to a day later.
	return local.Add(24 * time.Hour)
}

func (w SendWindow) openingOn(day time.Time, loc *time.Location) time.Time {
	minutes := 0
	if w.At != nil {
		minutes = *w.At
	}
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc)
}
