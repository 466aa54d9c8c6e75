// Package recurrence computes next-run times for scheduled task rules.
//
// Rules are deliberately simple (once / daily / weekly / monthly) and mirror
// what the schedule form exposes. A few semantics are intentional and load
// bearing for the scheduler:
//
//   - daily always lands on the calendar day after "now", even when today's
//     configured time has not passed yet.
//   - weekly never selects today; the offset to the next scheduled weekday is
//     strictly positive (1..7 days).
//   - monthly always advances to the following calendar month, clamping the
//     configured day-of-month to that month's length (31 -> Feb 28/29).
//   - once returns the configured local wall-clock instant even when it is
//     already in the past; past-due timers fire immediately.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the recurrence class of a task rule.
type Kind string

const (
	Once    Kind = "once"
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
)

// ParseKind validates a recurrence kind coming from the API layer.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.TrimSpace(s)) {
	case Once, Daily, Weekly, Monthly:
		return Kind(strings.TrimSpace(s)), nil
	default:
		return "", fmt.Errorf("unknown recurrence kind %q", s)
	}
}

// Spec holds the kind-specific rule fields. Unused fields stay empty.
type Spec struct {
	// Date is "YYYY-MM-DD"; once only.
	Date string `json:"date,omitempty"`
	// Time is "HH:MM" local wall-clock; all kinds.
	Time string `json:"time,omitempty"`
	// Days are weekday tokens "sun".."sat"; weekly only.
	Days []string `json:"days,omitempty"`
	// DayOfMonth is "1".."31"; monthly only.
	DayOfMonth string `json:"day_of_month,omitempty"`
}

var weekdayTokens = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// NextRun computes the next fire time for a rule relative to now.
//
// Any error means "cannot schedule": the rule is incomplete or invalid and
// the task must stay unarmed. Callers surface the error, they don't retry.
func NextRun(kind Kind, spec Spec, now time.Time) (time.Time, error) {
	switch kind {
	case Once:
		return nextOnce(spec, now)
	case Daily:
		return nextDaily(spec, now)
	case Weekly:
		return nextWeekly(spec, now)
	case Monthly:
		return nextMonthly(spec, now)
	default:
		return time.Time{}, fmt.Errorf("unknown recurrence kind %q", kind)
	}
}

func nextOnce(spec Spec, now time.Time) (time.Time, error) {
	if strings.TrimSpace(spec.Date) == "" || strings.TrimSpace(spec.Time) == "" {
		return time.Time{}, fmt.Errorf("once rule requires date and time")
	}
	y, mo, d, err := parseDate(spec.Date)
	if err != nil {
		return time.Time{}, err
	}
	h, mi, err := parseHHMM(spec.Time)
	if err != nil {
		return time.Time{}, err
	}
	// The configured instant is returned as-is; the registry treats past-due
	// targets as fire-immediately.
	return time.Date(y, time.Month(mo), d, h, mi, 0, 0, now.Location()), nil
}

func nextDaily(spec Spec, now time.Time) (time.Time, error) {
	if strings.TrimSpace(spec.Time) == "" {
		return time.Time{}, fmt.Errorf("daily rule requires time")
	}
	h, mi, err := parseHHMM(spec.Time)
	if err != nil {
		return time.Time{}, err
	}
	d := now.AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), h, mi, 0, 0, now.Location()), nil
}

func nextWeekly(spec Spec, now time.Time) (time.Time, error) {
	if len(spec.Days) == 0 || strings.TrimSpace(spec.Time) == "" {
		return time.Time{}, fmt.Errorf("weekly rule requires days and time")
	}
	h, mi, err := parseHHMM(spec.Time)
	if err != nil {
		return time.Time{}, err
	}

	current := now.Weekday()
	// Today never counts: the minimal positive offset is 1..7, and a set
	// containing only today's weekday lands on the same day next week.
	daysAhead := 7
	for _, tok := range spec.Days {
		wd, ok := weekdayTokens[strings.ToLower(strings.TrimSpace(tok))]
		if !ok {
			return time.Time{}, fmt.Errorf("unknown weekday token %q", tok)
		}
		diff := (int(wd) - int(current) + 7) % 7
		if diff > 0 && diff < daysAhead {
			daysAhead = diff
		}
	}

	d := now.AddDate(0, 0, daysAhead)
	return time.Date(d.Year(), d.Month(), d.Day(), h, mi, 0, 0, now.Location()), nil
}

func nextMonthly(spec Spec, now time.Time) (time.Time, error) {
	if strings.TrimSpace(spec.DayOfMonth) == "" || strings.TrimSpace(spec.Time) == "" {
		return time.Time{}, fmt.Errorf("monthly rule requires day_of_month and time")
	}
	h, mi, err := parseHHMM(spec.Time)
	if err != nil {
		return time.Time{}, err
	}
	dom, err := strconv.Atoi(strings.TrimSpace(spec.DayOfMonth))
	if err != nil || dom < 1 || dom > 31 {
		return time.Time{}, fmt.Errorf("invalid day_of_month %q", spec.DayOfMonth)
	}

	// First day of the month after now, then clamp the configured day to that
	// month's length (e.g. 31 in February becomes 28 or 29).
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
	if n := daysInMonth(first.Year(), first.Month(), now.Location()); dom > n {
		dom = n
	}
	return time.Date(first.Year(), first.Month(), dom, h, mi, 0, 0, now.Location()), nil
}

func daysInMonth(year int, month time.Month, loc *time.Location) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func parseDate(s string) (year, month, day int, err error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	year, err = strconv.Atoi(parts[0])
	if err != nil || year < 1 {
		return 0, 0, 0, fmt.Errorf("invalid year in %q", s)
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, 0, fmt.Errorf("invalid month in %q", s)
	}
	day, err = strconv.Atoi(parts[2])
	if err != nil || day < 1 || day > 31 {
		return 0, 0, 0, fmt.Errorf("invalid day in %q", s)
	}
	return year, month, day, nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
