package cmd

import (
	"strings"
	"testing"
)

func seedEvent(f *fakeCalendar, id, summary, day string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[id] = map[string]any{
		"id":      id,
		"summary": summary,
		"start":   map[string]any{"dateTime": day + "T09:00:00Z"},
		"end":     map[string]any{"dateTime": day + "T17:00:00Z"},
	}
}

func TestImportCmd_GroupsAndSkipsTracked(t *testing.T) {
	fake := newFakeCalendar()
	dir := useFakeGoogle(t, fake)
	createBatch(t)

	seedEvent(fake, "c1", "Conference", "2024-03-11")
	seedEvent(fake, "c2", "Conference", "2024-03-12")
	seedEvent(fake, "c3", "Conference", "2024-05-20")
	seedEvent(fake, "h1", "Holiday", "2024-04-01")

	out := captureStdout(t, func() {
		if err := runKong(t, &ImportCmd{}, nil, jsonContext(), testFlags()); err != nil {
			t.Fatalf("import: %v", err)
		}
	})
	got := decodeJSON(t, out)
	if got["count"] != float64(3) {
		t.Fatalf("expected 3 imported batches, got %v", got)
	}

	store := loadTestHistory(t, dir)
	if n := len(store.UndoableBatches()); n != 4 {
		t.Fatalf("expected 4 undoable batches, got %d", n)
	}

	out = captureStdout(t, func() {
		if err := runKong(t, &ImportCmd{}, nil, jsonContext(), testFlags()); err != nil {
			t.Fatalf("second import: %v", err)
		}
	})
	if got := decodeJSON(t, out); got["count"] != float64(0) {
		t.Fatalf("tracked events imported twice: %v", got)
	}
}

func TestImportCmd_MatchAndDryRun(t *testing.T) {
	fake := newFakeCalendar()
	dir := useFakeGoogle(t, fake)

	seedEvent(fake, "c1", "Conference", "2024-03-11")
	seedEvent(fake, "h1", "Holiday", "2024-04-01")

	flags := testFlags()
	flags.DryRun = true
	out := captureStdout(t, func() {
		if err := runKong(t, &ImportCmd{}, []string{"--match", "holi"}, jsonContext(), flags); err != nil {
			t.Fatalf("import: %v", err)
		}
	})
	got := decodeJSON(t, out)
	batches, _ := got["batches"].([]any)
	if got["dry_run"] != true || len(batches) != 1 {
		t.Fatalf("unexpected preview: %v", got)
	}
	if b, _ := batches[0].(map[string]any); b["summary"] != "Holiday" {
		t.Fatalf("unexpected batch: %v", b)
	}
	if n := loadTestHistory(t, dir).Stats().TotalBatches; n != 0 {
		t.Fatalf("dry run recorded %d batches", n)
	}
}

func TestImportCmd_RangeValidation(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())

	err := runKong(t, &ImportCmd{}, []string{"--from", "2024-05-01", "--to", "2024-04-01"}, jsonContext(), testFlags())
	if ExitCode(err) != 2 || !strings.Contains(err.Error(), "--to") {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestCalendarsCmd(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())

	out := captureStdout(t, func() {
		if err := runKong(t, &CalendarsCmd{}, []string{"--writable"}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("calendars: %v", err)
		}
	})
	got := decodeJSON(t, out)
	items, _ := got["calendars"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 writable calendars, got %v", got)
	}

	out = captureStdout(t, func() {
		if err := runKong(t, &CalendarsCmd{}, nil, nil, testFlags()); err != nil {
			t.Fatalf("calendars: %v", err)
		}
	})
	if !strings.Contains(out, "Holidays") || !strings.Contains(out, "(primary)") || !strings.HasPrefix(out, "ID") {
		t.Fatalf("unexpected table: %q", out)
	}
}
