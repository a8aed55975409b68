package history

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
)

func TestWriteICS(t *testing.T) {
	s := newTestStore(t)
	addCreate(s, "2 events: Vacation",
		snap("ev-1", "Vacation", time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)),
		snap("ev-2", "Vacation", time.Date(2026, 7, 2, 9, 0, 0, 0, time.UTC)),
	)

	var buf bytes.Buffer
	if err := WriteICS(&buf, s.UndoableBatches()); err != nil {
		t.Fatalf("WriteICS: %v", err)
	}

	cal, err := ical.ParseCalendar(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("ParseCalendar: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("events=%d want 2", len(events))
	}
	if uid := events[0].Id(); uid != "ev-1" {
		t.Fatalf("uid=%s", uid)
	}
	if p := events[0].GetProperty(ical.ComponentPropertySummary); p == nil || p.Value != "Vacation" {
		t.Fatalf("summary=%v", p)
	}
	if p := events[1].GetProperty(ical.ComponentPropertyCategories); p == nil || p.Value != "op-1" {
		t.Fatalf("categories=%v", p)
	}
}

func TestWriteICSEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteICS(&buf, nil); err != nil {
		t.Fatalf("WriteICS: %v", err)
	}
	if !strings.Contains(buf.String(), "BEGIN:VCALENDAR") {
		t.Fatalf("missing calendar header: %q", buf.String())
	}
}
