// Package importer regroups existing calendar events into history batches.
package importer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/steipete/vacationcal/internal/history"
	"github.com/steipete/vacationcal/internal/timeparse"
)

const (
	// UntitledSummary names events that carry no summary.
	UntitledSummary = "Untitled Event"

	// MaxGapDays is the largest distance between consecutive start dates that
	// still keeps two events in the same batch.
	MaxGapDays = 3
)

// Batch is a proposed history operation built from existing events.
type Batch struct {
	Summary     string                  `json:"summary"`
	Description string                  `json:"description"`
	Events      []history.EventSnapshot `json:"events"`
}

func (b Batch) EventIDs() []string {
	out := make([]string, 0, len(b.Events))
	for _, ev := range b.Events {
		out = append(out, ev.EventID)
	}
	return out
}

// Group splits items by summary, sorts each group by start and cuts it
// wherever consecutive start dates are more than MaxGapDays apart. Events
// without a usable start or end are skipped. Groups keep the order in which
// their summary first appeared.
func Group(items []*calendar.Event, calendarID, calendarName string, now time.Time) []Batch {
	createdAt := history.NaiveAt(now)
	groups := map[string][]history.EventSnapshot{}
	var order []string

	for _, item := range items {
		if item == nil {
			continue
		}
		start, ok := eventTime(item.Start)
		if !ok {
			continue
		}
		end, ok := eventTime(item.End)
		if !ok {
			continue
		}

		summary := strings.TrimSpace(item.Summary)
		if summary == "" {
			summary = UntitledSummary
		}
		if _, seen := groups[summary]; !seen {
			order = append(order, summary)
		}
		groups[summary] = append(groups[summary], history.EventSnapshot{
			EventID:      item.Id,
			CalendarID:   calendarID,
			CalendarName: calendarName,
			EventName:    summary,
			StartTime:    start,
			EndTime:      end,
			CreatedAt:    createdAt,
		})
	}

	var out []Batch
	for _, summary := range order {
		events := groups[summary]
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].StartTime.Before(events[j].StartTime.Time)
		})

		var current []history.EventSnapshot
		for _, ev := range events {
			if len(current) > 0 && gapDays(current[len(current)-1], ev) > MaxGapDays {
				out = append(out, newBatch(summary, current))
				current = nil
			}
			current = append(current, ev)
		}
		if len(current) > 0 {
			out = append(out, newBatch(summary, current))
		}
	}
	return out
}

// WithoutTracked removes events whose ids are already tracked and drops
// batches left empty. Descriptions are recomputed for trimmed batches.
func WithoutTracked(batches []Batch, tracked map[string]struct{}) []Batch {
	out := make([]Batch, 0, len(batches))
	for _, b := range batches {
		kept := make([]history.EventSnapshot, 0, len(b.Events))
		for _, ev := range b.Events {
			if _, ok := tracked[ev.EventID]; ok {
				continue
			}
			kept = append(kept, ev)
		}
		switch {
		case len(kept) == 0:
			continue
		case len(kept) == len(b.Events):
			out = append(out, b)
		default:
			out = append(out, newBatch(b.Summary, kept))
		}
	}
	return out
}

func newBatch(summary string, events []history.EventSnapshot) Batch {
	first := events[0].StartTime.CivilDate().Format("2006-01-02")
	last := events[len(events)-1].StartTime.CivilDate().Format("2006-01-02")
	return Batch{
		Summary:     summary,
		Description: fmt.Sprintf("%s (%s - %s)", summary, first, last),
		Events:      events,
	}
}

func gapDays(prev, next history.EventSnapshot) int {
	return int(next.StartTime.CivilDate().Sub(prev.StartTime.CivilDate()).Hours() / 24)
}

// eventTime reads a timed (dateTime) or all-day (date) boundary.
func eventTime(edt *calendar.EventDateTime) (history.Timestamp, bool) {
	if edt == nil {
		return history.Timestamp{}, false
	}
	if edt.DateTime != "" {
		parsed, err := timeparse.ParseISO(edt.DateTime)
		if err != nil {
			return history.Timestamp{}, false
		}
		return history.Timestamp{Time: parsed.Time, Naive: !parsed.HasZone}, true
	}
	if edt.Date != "" {
		d, err := timeparse.ParseDate(edt.Date)
		if err != nil {
			return history.Timestamp{}, false
		}
		return history.NaiveAt(d), true
	}
	return history.Timestamp{}, false
}
