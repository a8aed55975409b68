package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/steipete/vacationcal/internal/config"
)

func TestConfigSetGetUnset(t *testing.T) {
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())

	out := captureStdout(t, func() {
		if err := runKong(t, &ConfigCmd{}, []string{"set", "weekdays", "Mon,Wed"}, jsonContext(), nil); err != nil {
			t.Fatalf("set: %v", err)
		}
	})
	if got := decodeJSON(t, out); got["saved"] != true || got["key"] != "weekdays" {
		t.Fatalf("unexpected set output: %v", got)
	}

	out = captureStdout(t, func() {
		if err := runKong(t, &ConfigCmd{}, []string{"get", "weekdays"}, context.Background(), nil); err != nil {
			t.Fatalf("get: %v", err)
		}
	})
	if strings.TrimSpace(out) != "mon,wed" {
		t.Fatalf("unexpected value: %q", out)
	}

	_ = captureStdout(t, func() {
		if err := runKong(t, &ConfigCmd{}, []string{"unset", "weekdays"}, jsonContext(), nil); err != nil {
			t.Fatalf("unset: %v", err)
		}
	})
	cfg, err := config.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if len(cfg.Weekdays) != 0 {
		t.Fatalf("weekdays not unset: %v", cfg.Weekdays)
	}
}

func TestConfigSet_RejectsInvalidValues(t *testing.T) {
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())

	cases := [][]string{
		{"set", "email_address", "nope"},
		{"set", "start_time", "25:00"},
		{"set", "send_email", "maybe"},
		{"set", "no_such_key", "x"},
	}
	for _, args := range cases {
		if err := runKong(t, &ConfigCmd{}, args, jsonContext(), nil); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestConfigSet_DryRunDoesNotWrite(t *testing.T) {
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())

	_ = captureStdout(t, func() {
		err := runKong(t, &ConfigCmd{}, []string{"set", "calendar", "Team"}, jsonContext(), &RootFlags{DryRun: true})
		if ExitCode(err) != 0 {
			t.Fatalf("expected dry-run exit, got %v", err)
		}
	})
	exists, err := config.ConfigExists()
	if err != nil || exists {
		t.Fatalf("config written during dry run (exists=%v err=%v)", exists, err)
	}
}

func TestConfigListAndKeys(t *testing.T) {
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())

	out := captureStdout(t, func() {
		if err := runKong(t, &ConfigCmd{}, []string{"list"}, context.Background(), nil); err != nil {
			t.Fatalf("list: %v", err)
		}
	})
	if !strings.Contains(out, "start_time: "+config.DefaultStartTime+" (default)") {
		t.Fatalf("expected default hint in list: %q", out)
	}

	out = captureStdout(t, func() {
		if err := runKong(t, &ConfigCmd{}, []string{"keys"}, jsonContext(), nil); err != nil {
			t.Fatalf("keys: %v", err)
		}
	})
	keys, _ := decodeJSON(t, out)["keys"].([]any)
	if len(keys) != len(config.KeyNames()) {
		t.Fatalf("unexpected keys: %q", out)
	}
}

func TestConfigDefaultsFeedCreate(t *testing.T) {
	fake := newFakeCalendar()
	dir := useFakeGoogle(t, fake)

	_ = captureStdout(t, func() {
		for _, kv := range [][]string{
			{"set", "weekdays", "mon,wed"},
			{"set", "day_length_hours", "4"},
			{"set", "email_address", "boss@example.com"},
			{"set", "calendar", "Team"},
		} {
			if err := runKong(t, &ConfigCmd{}, kv, jsonContext(), nil); err != nil {
				t.Fatalf("%v: %v", kv, err)
			}
		}
	})

	_ = captureStdout(t, func() {
		args := []string{"--name", "Vacation", "--from", "2024-03-04", "--to", "2024-03-08", "--tz", "UTC"}
		if err := runKong(t, &CreateCmd{}, args, jsonContext(), testFlags()); err != nil {
			t.Fatalf("create: %v", err)
		}
	})
	if fake.count() != 2 {
		t.Fatalf("expected 2 events from config weekdays, got %d", fake.count())
	}
	op := loadTestHistory(t, dir).UndoableBatches()[0]
	snap := op.EventSnapshots[0]
	if snap.CalendarID != "team@group.calendar.google.com" {
		t.Fatalf("unexpected calendar: %#v", snap)
	}
	if hours := snap.EndTime.Sub(snap.StartTime.Time).Hours(); hours != 4 {
		t.Fatalf("expected 4h events, got %v", hours)
	}
}
