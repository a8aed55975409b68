package timeparse

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyDate       = errors.New("empty date")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyDateTime   = errors.New("empty date/time")
	ErrInvalidDateTime = errors.New("invalid date/time")
	ErrEmptyTimeExpr   = errors.New("empty time expression")
	ErrInvalidTimeExpr = errors.New("invalid time expression")
	ErrInvalidClock    = errors.New("invalid clock time")
	ErrInvalidWeekday  = errors.New("invalid weekday")
	ErrInvalidAge      = errors.New("invalid age")
)

// ParsedDateTime represents a parsed time expression and whether the input
// carried an explicit clock component.
type ParsedDateTime struct {
	Time    time.Time
	HasTime bool
}

// ParsedISO is an ISO-8601 timestamp plus whether it carried a zone offset.
// Zone-less inputs keep their wall clock in UTC.
type ParsedISO struct {
	Time    time.Time
	HasZone bool
}

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// On returns the clock applied to the civil date of day in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// ParseDate parses a strict date in YYYY-MM-DD format.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyDate
	}

	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}

	return t, nil
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseISO parses stored timestamps. Offsets (Z, +02:00, -0800) are kept;
// naive values are read as UTC wall clock with HasZone=false. A bare date
// is accepted as midnight.
func ParseISO(value string) (ParsedISO, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ParsedISO{}, ErrEmptyDateTime
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999-0700", "2006-01-02 15:04:05.999999999Z07:00"} {
		if t, err := time.Parse(layout, value); err == nil {
			return ParsedISO{Time: t, HasZone: true}, nil
		}
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ParsedISO{Time: t}, nil
		}
	}

	if t, err := time.ParseInLocation("2006-01-02", value, time.UTC); err == nil {
		return ParsedISO{Time: t}, nil
	}

	return ParsedISO{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, value)
}

// ParseDateTimeOrDate parses flexible date inputs commonly used across commands.
// Supported: RFC3339/RFC3339Nano, ISO-8601 numeric offset (-0800),
// YYYY-MM-DD, and local datetime layouts without timezone.
func ParseDateTimeOrDate(value string, loc *time.Location) (ParsedDateTime, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ParsedDateTime{}, ErrEmptyDateTime
	}

	if loc == nil {
		loc = time.Local
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ParsedDateTime{Time: t, HasTime: true}, nil
	}

	if t, err := time.Parse("2006-01-02T15:04:05-0700", value); err == nil {
		return ParsedDateTime{Time: t, HasTime: true}, nil
	}

	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return ParsedDateTime{Time: t, HasTime: false}, nil
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ParsedDateTime{Time: t, HasTime: true}, nil
		}
	}

	return ParsedDateTime{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, value)
}

// ParseRangeExpr parses day expressions used by history lookups.
// Supported: absolute datetime/date forms from ParseDateTimeOrDate plus
// relative forms (today/tomorrow/yesterday/monday/next monday).
func ParseRangeExpr(expr string, now time.Time, loc *time.Location) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, ErrEmptyTimeExpr
	}

	switch strings.ToLower(expr) {
	case "now":
		return now, nil
	case "today":
		return startOfDay(now), nil
	case "tomorrow":
		return startOfDay(now.AddDate(0, 0, 1)), nil
	case "yesterday":
		return startOfDay(now.AddDate(0, 0, -1)), nil
	}

	if t, ok := parseRelativeWeekday(strings.ToLower(expr), now); ok {
		return t, nil
	}

	parsed, err := ParseDateTimeOrDate(expr, loc)
	if err == nil {
		return parsed.Time, nil
	}

	return time.Time{}, fmt.Errorf("%w: %q (try: 2026-01-05, today, tomorrow, monday)", ErrInvalidTimeExpr, expr)
}

// ParseClock parses a start time such as "09:00", "9:30" or "0930".
func ParseClock(value string) (Clock, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04", "15:04:05", "1504"} {
		if t, err := time.Parse(layout, value); err == nil {
			return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return Clock{}, fmt.Errorf("%w: %q (use HH:MM)", ErrInvalidClock, value)
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

// ParseWeekday accepts full or three-letter English weekday names.
func ParseWeekday(value string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, value)
	}
	return d, nil
}

// ParseWeekdays parses a comma separated weekday list. "weekdays" and
// "weekend" expand to Mon-Fri and Sat/Sun. The result is sorted Monday first
// and deduplicated.
func ParseWeekdays(value string) ([]time.Weekday, error) {
	set := map[time.Weekday]bool{}
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch part {
		case "":
			continue
		case "weekdays":
			for d := time.Monday; d <= time.Friday; d++ {
				set[d] = true
			}
			continue
		case "weekend":
			set[time.Saturday] = true
			set[time.Sunday] = true
			continue
		}
		d, err := ParseWeekday(part)
		if err != nil {
			return nil, err
		}
		set[d] = true
	}

	out := make([]time.Weekday, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return mondayIndex(out[i]) < mondayIndex(out[j]) })
	return out, nil
}

// ParseAge parses retention values: Go durations (72h) plus day and week
// suffixes (30d, 2w).
func ParseAge(value string) (time.Duration, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAge)
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d, nil
	}
	unit := value[len(value)-1]
	n, err := strconv.Atoi(value[:len(value)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q (try: 30d, 2w, 72h)", ErrInvalidAge, value)
	}
	switch unit {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %q (try: 30d, 2w, 72h)", ErrInvalidAge, value)
	}
}

func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func parseRelativeWeekday(expr string, now time.Time) (time.Time, bool) {
	next := false
	if strings.HasPrefix(expr, "next ") {
		next = true
		expr = strings.TrimPrefix(expr, "next ")
	}

	targetDay, ok := weekdayNames[expr]
	if !ok {
		return time.Time{}, false
	}

	daysUntil := int(targetDay) - int(now.Weekday())
	if daysUntil < 0 || (daysUntil == 0 && next) {
		daysUntil += 7
	}

	return startOfDay(now.AddDate(0, 0, daysUntil)), true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
