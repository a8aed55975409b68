package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steipete/vacationcal/internal/history"
	"github.com/steipete/vacationcal/internal/outfmt"
)

func TestHistoryList_JSONAcrossStacks(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())
	first := createBatch(t)
	createBatch(t)

	_ = captureStdout(t, func() {
		if err := runKong(t, &DeleteCmd{}, []string{first}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("delete: %v", err)
		}
	})

	out := captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, []string{"list", "--stack", "all"}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("history list: %v", err)
		}
	})
	got := decodeJSON(t, out)
	rows, _ := got["operations"].([]any)
	if len(rows) != 2 || got["count"] != float64(2) {
		t.Fatalf("unexpected rows: %v", got)
	}
	stacks := []string{}
	for _, r := range rows {
		m, _ := r.(map[string]any)
		stacks = append(stacks, m["stack"].(string))
	}
	if strings.Join(stacks, ",") != string(history.CollectionUndo)+","+string(history.CollectionDelete) {
		t.Fatalf("unexpected stacks: %v", stacks)
	}
}

func TestHistoryList_FailEmpty(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())

	_ = captureStdout(t, func() {
		err := runKong(t, &HistoryCmd{}, []string{"list", "--fail-empty"}, jsonContext(), testFlags())
		if ExitCode(err) != emptyResultsExitCode {
			t.Fatalf("expected exit %d, got %v", emptyResultsExitCode, err)
		}
	})
}

func TestHistoryList_Plain(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())
	id := createBatch(t)

	ctx := outfmt.WithMode(context.Background(), outfmt.Mode{Plain: true})
	out := captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, nil, ctx, testFlags()); err != nil {
			t.Fatalf("history: %v", err)
		}
	})
	fields := strings.Split(strings.TrimSpace(out), "\t")
	if len(fields) != 7 || fields[0] != id || fields[1] != "undo" || fields[3] != "5" {
		t.Fatalf("unexpected plain row: %q", out)
	}
	if fields[4] != "2024-03-04..2024-03-08" {
		t.Fatalf("unexpected date span: %q", fields[4])
	}
}

func TestHistoryShowAndStats(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())
	id := createBatch(t)

	out := captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, []string{"show", id}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("show: %v", err)
		}
	})
	got := decodeJSON(t, out)
	if got["operation_id"] != id || got["stack"] != string(history.CollectionUndo) {
		t.Fatalf("unexpected show: %v", got)
	}
	if snaps, _ := got["event_snapshots"].([]any); len(snaps) != 5 {
		t.Fatalf("expected 5 snapshots, got %v", got["event_snapshots"])
	}

	out = captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, []string{"stats"}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("stats: %v", err)
		}
	})
	got = decodeJSON(t, out)
	if got["total_batches"] != float64(1) || got["undoable_events"] != float64(5) {
		t.Fatalf("unexpected stats: %v", got)
	}
}

func TestHistoryDate(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())
	id := createBatch(t)

	out := captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, []string{"date", "2024-03-06", "--range", "1"}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("date: %v", err)
		}
	})
	got := decodeJSON(t, out)
	rows, _ := got["operations"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["operation_id"] != id {
		t.Fatalf("unexpected date result: %v", got)
	}

	_ = captureStdout(t, func() {
		err := runKong(t, &HistoryCmd{}, []string{"date", "2024-06-01", "--fail-empty"}, jsonContext(), testFlags())
		if ExitCode(err) != emptyResultsExitCode {
			t.Fatalf("expected empty exit, got %v", err)
		}
	})
}

func TestHistoryDate_DefaultWeekWindow(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())
	id := createBatch(t)

	// The batch ends on 2024-03-08, exactly one week after the queried day.
	out := captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, []string{"date", "2024-03-01"}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("date: %v", err)
		}
	})
	got := decodeJSON(t, out)
	if got["range"] != float64(7) {
		t.Fatalf("unexpected default range: %v", got["range"])
	}
	rows, _ := got["operations"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["operation_id"] != id {
		t.Fatalf("batch outside default window: %v", got)
	}

	_ = captureStdout(t, func() {
		err := runKong(t, &HistoryCmd{}, []string{"date", "2024-02-25", "--fail-empty"}, jsonContext(), testFlags())
		if ExitCode(err) != emptyResultsExitCode {
			t.Fatalf("expected empty exit beyond a week, got %v", err)
		}
	})
}

func TestHistoryExport(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())
	createBatch(t)

	out := captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, []string{"export"}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("export: %v", err)
		}
	})
	got := decodeJSON(t, out)
	if got["version"] != float64(history.SchemaVersion) {
		t.Fatalf("unexpected version: %v", got["version"])
	}
	if undo, _ := got["undo_stack"].([]any); len(undo) != 1 {
		t.Fatalf("unexpected undo stack: %v", got["undo_stack"])
	}
	if redo, ok := got["redo_stack"].([]any); !ok || len(redo) != 0 {
		t.Fatalf("expected empty redo stack array: %v", got["redo_stack"])
	}

	path := filepath.Join(t.TempDir(), "vacation.ics")
	if err := runKong(t, &HistoryCmd{}, []string{"export", "--ics", "--out", path}, context.Background(), testFlags()); err != nil {
		t.Fatalf("export ics: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ics: %v", err)
	}
	if !strings.Contains(string(b), "BEGIN:VCALENDAR") || strings.Count(string(b), "BEGIN:VEVENT") != 5 {
		t.Fatalf("unexpected ics:\n%s", b)
	}
}

func TestHistoryPruneAndClear(t *testing.T) {
	dir := useFakeGoogle(t, newFakeCalendar())
	createBatch(t)

	out := captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, []string{"prune", "--older-than", "30d"}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("prune: %v", err)
		}
	})
	if got := decodeJSON(t, out); got["removed"] != float64(0) {
		t.Fatalf("fresh batch pruned: %v", got)
	}

	later := nowFn().AddDate(0, 0, 60)
	nowFn = func() time.Time { return later }
	out = captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, []string{"prune", "--older-than", "30d"}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("prune: %v", err)
		}
	})
	if got := decodeJSON(t, out); got["removed"] != float64(1) {
		t.Fatalf("old batch kept: %v", got)
	}
	createBatch(t)

	out = captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, []string{"clear"}, jsonContext(), testFlags()); err != nil {
			t.Fatalf("clear: %v", err)
		}
	})
	if got := decodeJSON(t, out); got["removed"] != float64(1) {
		t.Fatalf("unexpected clear: %v", got)
	}
	if st := loadTestHistory(t, dir).Stats(); st.TotalBatches != 0 {
		t.Fatalf("history not cleared: %#v", st)
	}
}

func TestHistoryClear_NoInputRefuses(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())
	createBatch(t)

	err := runKong(t, &HistoryCmd{}, []string{"clear"}, jsonContext(), &RootFlags{NoInput: true})
	if ExitCode(err) != 2 {
		t.Fatalf("expected usage exit, got %v", err)
	}
}

func TestHistoryPath_HistoryDirFlag(t *testing.T) {
	useFakeGoogle(t, newFakeCalendar())
	custom := t.TempDir()

	out := captureStdout(t, func() {
		if err := runKong(t, &HistoryCmd{}, []string{"path"}, context.Background(), &RootFlags{HistoryDir: custom}); err != nil {
			t.Fatalf("path: %v", err)
		}
	})
	if filepath.Dir(strings.TrimSpace(out)) != custom {
		t.Fatalf("unexpected path: %q", out)
	}
}
