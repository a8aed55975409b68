// Package schedule turns a vacation request into concrete event slots.
package schedule

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/steipete/vacationcal/internal/timeparse"
)

// WeekdayOrder is the canonical Monday-first order used in snapshots and output.
var WeekdayOrder = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
	time.Saturday,
	time.Sunday,
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Request describes one block of out-of-office days.
type Request struct {
	EventName         string
	NotificationEmail string
	CalendarName      string
	StartDate         time.Time
	EndDate           time.Time
	StartTime         timeparse.Clock
	DayLengthHours    float64
	Weekdays          []time.Weekday
	SendEmail         bool

	// Location for slot wall clocks; nil means time.Local.
	Location *time.Location
}

// Slot is one event to create.
type Slot struct {
	Start time.Time
	End   time.Time
}

var errNoWeekdays = errors.New("no weekdays selected")

// Build expands the request into daily slots on the selected weekdays from
// StartDate through EndDate inclusive. Every slot starts at StartTime and
// lasts DayLengthHours.
func Build(req Request) ([]Slot, error) {
	days := req.weekdaySet()
	if len(days) == 0 {
		return nil, errNoWeekdays
	}

	loc := req.location()
	start := req.StartTime.On(req.StartDate, loc)
	until := req.StartTime.On(req.EndDate, loc)
	if until.Before(start) {
		return nil, nil
	}

	byDay := make([]rrule.Weekday, 0, len(days))
	for _, d := range WeekdayOrder {
		if days[d] {
			byDay = append(byDay, rruleWeekdays[d])
		}
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.DAILY,
		Dtstart:   start,
		Until:     until,
		Byweekday: byDay,
	})
	if err != nil {
		return nil, fmt.Errorf("build recurrence: %w", err)
	}

	length := time.Duration(req.DayLengthHours * float64(time.Hour))
	occurrences := rule.All()
	out := make([]Slot, 0, len(occurrences))
	for _, occ := range occurrences {
		occ = occ.In(loc)
		out = append(out, Slot{Start: occ, End: occ.Add(length)})
	}
	return out, nil
}

// Validate returns human readable problems with the request, in display order.
// An empty result means the request can be scheduled.
func Validate(req Request) []string {
	var problems []string
	if strings.TrimSpace(req.EventName) == "" {
		problems = append(problems, "Event name is required")
	}
	if req.SendEmail && !ValidEmail(req.NotificationEmail) {
		problems = append(problems, "Notification email is invalid")
	}
	if len(req.weekdaySet()) == 0 {
		problems = append(problems, "Select at least one weekday")
	}
	if req.DayLengthHours <= 0 || req.DayLengthHours >= 24 {
		problems = append(problems, "Day length must be between 0 and 24 hours")
	}
	if civil(req.StartDate).After(civil(req.EndDate)) {
		problems = append(problems, "Start date must be on or before end date")
	}
	if strings.TrimSpace(req.CalendarName) == "" {
		problems = append(problems, "Calendar selection is required")
	}
	if slots, err := Build(req); err != nil || len(slots) == 0 {
		problems = append(problems, "No working days in range")
	}
	return problems
}

// ValidEmail reports whether s is a single bare address with a dotted domain.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	domain := s[at+1:]
	return at > 0 && strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// Snapshot is the request payload stored with every created event so an
// update can be reconstructed later.
func Snapshot(req Request) map[string]any {
	days := req.weekdaySet()
	weekdays := make(map[string]any, len(WeekdayOrder))
	for _, d := range WeekdayOrder {
		weekdays[strings.ToLower(d.String())] = days[d]
	}
	return map[string]any{
		"event_name":         req.EventName,
		"notification_email": req.NotificationEmail,
		"calendar_name":      req.CalendarName,
		"start_date":         req.StartDate.Format("2006-01-02"),
		"end_date":           req.EndDate.Format("2006-01-02"),
		"start_time":         req.StartTime.String() + ":00",
		"day_length_hours":   req.DayLengthHours,
		"weekdays":           weekdays,
		"send_email":         req.SendEmail,
	}
}

// FromSnapshot rebuilds a request from a stored snapshot. Missing or
// malformed fields are left at their zero values.
func FromSnapshot(snap map[string]any) Request {
	var req Request
	req.EventName, _ = snap["event_name"].(string)
	req.NotificationEmail, _ = snap["notification_email"].(string)
	req.CalendarName, _ = snap["calendar_name"].(string)
	if s, ok := snap["start_date"].(string); ok {
		req.StartDate, _ = timeparse.ParseDate(s)
	}
	if s, ok := snap["end_date"].(string); ok {
		req.EndDate, _ = timeparse.ParseDate(s)
	}
	if s, ok := snap["start_time"].(string); ok {
		req.StartTime, _ = timeparse.ParseClock(s)
	}
	switch v := snap["day_length_hours"].(type) {
	case float64:
		req.DayLengthHours = v
	case int:
		req.DayLengthHours = float64(v)
	}
	req.SendEmail, _ = snap["send_email"].(bool)
	if days, ok := snap["weekdays"].(map[string]any); ok {
		for _, d := range WeekdayOrder {
			if on, _ := days[strings.ToLower(d.String())].(bool); on {
				req.Weekdays = append(req.Weekdays, d)
			}
		}
	}
	return req
}

// WeekdayNames formats days Monday first as short names.
func WeekdayNames(days []time.Weekday) []string {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	out := make([]string, 0, len(set))
	for _, d := range WeekdayOrder {
		if set[d] {
			out = append(out, d.String()[:3])
		}
	}
	return out
}

func (req Request) weekdaySet() map[time.Weekday]bool {
	out := make(map[time.Weekday]bool, len(req.Weekdays))
	for _, d := range req.Weekdays {
		if d >= time.Sunday && d <= time.Saturday {
			out[d] = true
		}
	}
	return out
}

func (req Request) location() *time.Location {
	if req.Location != nil {
		return req.Location
	}
	return time.Local
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
