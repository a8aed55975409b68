package vacation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	gapi "google.golang.org/api/googleapi"

	"github.com/steipete/vacationcal/internal/notify"
)

// ErrEventGone marks a delete of an event that no longer exists.
var ErrEventGone = errors.New("event already deleted or not found")

// NewEvent is the minimal event shape vacal writes.
type NewEvent struct {
	Summary string
	Start   time.Time
	End     time.Time
}

// CalendarInfo is one entry of the user's calendar list.
type CalendarInfo struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Primary  bool   `json:"primary,omitempty"`
	Role     string `json:"accessRole,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Calendar is the provider surface the executor needs.
type Calendar interface {
	CreateEvent(ctx context.Context, calendarID string, ev NewEvent) (string, error)
	// DeleteEvent returns an error wrapping ErrEventGone for 404/410.
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]*calendar.Event, error)
	ListCalendars(ctx context.Context) ([]CalendarInfo, error)
}

// Notifier delivers notification emails.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// GoogleCalendar adapts calendar/v3.
type GoogleCalendar struct {
	svc *calendar.Service
}

func NewGoogleCalendar(svc *calendar.Service) *GoogleCalendar {
	return &GoogleCalendar{svc: svc}
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, calendarID string, ev NewEvent) (string, error) {
	event := &calendar.Event{
		Summary: ev.Summary,
		Start:   &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			ForceSendFields: []string{"UseDefault"},
		},
	}
	created, err := g.svc.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create event on %s: %w", ev.Start.Format("2006-01-02"), err)
	}
	return created.Id, nil
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := g.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var apiErr *gapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return fmt.Errorf("%w: %s", ErrEventGone, eventID)
	}
	return fmt.Errorf("delete event %s: %w", eventID, err)
}

// ListEvents returns single (expanded) events between from and to, following
// every page.
func (g *GoogleCalendar) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]*calendar.Event, error) {
	var out []*calendar.Event
	seen := map[string]bool{}
	pageToken := ""
	for {
		if seen[pageToken] {
			return nil, fmt.Errorf("pagination loop while listing events (repeated page token %q)", pageToken)
		}
		seen[pageToken] = true

		call := g.svc.Events.List(calendarID).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(2500).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		out = append(out, resp.Items...)

		pageToken = strings.TrimSpace(resp.NextPageToken)
		if pageToken == "" {
			return out, nil
		}
	}
}

func (g *GoogleCalendar) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	var out []CalendarInfo
	err := g.svc.CalendarList.List().MaxResults(250).Pages(ctx, func(resp *calendar.CalendarList) error {
		for _, item := range resp.Items {
			if item == nil {
				continue
			}
			out = append(out, CalendarInfo{
				ID:       item.Id,
				Summary:  item.Summary,
				Primary:  item.Primary,
				Role:     item.AccessRole,
				TimeZone: item.TimeZone,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	return out, nil
}

// ResolveCalendar maps a calendar name or id to an id. "primary" and empty
// input resolve to the primary calendar; names match case-insensitively.
func ResolveCalendar(ctx context.Context, cal Calendar, input string) (CalendarInfo, error) {
	in := strings.TrimSpace(input)
	if in == "" || strings.EqualFold(in, "primary") {
		return CalendarInfo{ID: "primary", Summary: "primary", Primary: true}, nil
	}

	items, err := cal.ListCalendars(ctx)
	if err != nil {
		return CalendarInfo{}, err
	}
	var matches []CalendarInfo
	for _, item := range items {
		if item.ID == in {
			return item, nil
		}
		if strings.EqualFold(strings.TrimSpace(item.Summary), in) {
			matches = append(matches, item)
		}
	}
	switch len(matches) {
	case 0:
		return CalendarInfo{}, fmt.Errorf("%w: %q", ErrCalendarNotFound, in)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		return CalendarInfo{}, fmt.Errorf("ambiguous calendar name %q (matches: %s)", in, strings.Join(ids, ", "))
	}
}
