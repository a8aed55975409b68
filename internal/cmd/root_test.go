package cmd

import (
	"errors"
	"strings"
	"testing"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("VACAL_TEST_VALUE", "")
	if got := envOr("VACAL_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("envOr empty = %q", got)
	}
	t.Setenv("VACAL_TEST_VALUE", "On")
	if got := envOr("VACAL_TEST_VALUE", "fallback"); got != "On" {
		t.Fatalf("envOr set = %q", got)
	}
	if !envBool("VACAL_TEST_VALUE") {
		t.Fatalf("expected On to be truthy")
	}
	t.Setenv("VACAL_TEST_VALUE", "off")
	if envBool("VACAL_TEST_VALUE") {
		t.Fatalf("expected off to be falsy")
	}
}

func TestExecute_Help(t *testing.T) {
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())
	out := captureStdout(t, func() {
		_ = captureStderr(t, func() {
			if err := Execute([]string{"--help"}); err != nil {
				t.Fatalf("Execute: %v", err)
			}
		})
	})
	if !strings.Contains(out, "vacation days") && !strings.Contains(out, "Usage:") {
		t.Fatalf("unexpected help output: %q", out)
	}
	if !strings.Contains(out, "config.json") || !strings.Contains(out, "keyring backend") {
		t.Fatalf("expected config info in help output: %q", out)
	}
	for _, name := range []string{"create", "undo", "redo", "restore", "history"} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %q in help output: %q", name, out)
		}
	}
	if strings.Contains(out, "history prune") {
		t.Fatalf("expected collapsed help (no expanded subcommands), got: %q", out)
	}
}

func TestExecute_HistoryJSONEndToEnd(t *testing.T) {
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())
	out := captureStdout(t, func() {
		_ = captureStderr(t, func() {
			if err := Execute([]string{"--json", "history", "stats"}); err != nil {
				t.Fatalf("Execute: %v", err)
			}
		})
	})
	if !strings.Contains(out, "\"total_batches\": 0") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExecute_UndoEmptyExitCode(t *testing.T) {
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())
	var err error
	errText := captureStderr(t, func() {
		_ = captureStdout(t, func() {
			err = Execute([]string{"--account", "a@b.com", "undo"})
		})
	})
	if ExitCode(err) != emptyResultsExitCode {
		t.Fatalf("expected exit %d, got %v", emptyResultsExitCode, err)
	}
	if !strings.Contains(errText, "nothing to undo") {
		t.Fatalf("unexpected stderr: %q", errText)
	}
}

func TestExecute_DryRunCreateNeedsNoAccount(t *testing.T) {
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())
	out := captureStdout(t, func() {
		_ = captureStderr(t, func() {
			err := Execute([]string{"--json", "--dry-run", "create", "--name", "Vacation", "--from", "2024-03-04", "--to", "2024-03-05", "--no-email"})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
		})
	})
	if !strings.Contains(out, "\"dry_run\": true") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSplitCommaList(t *testing.T) {
	got := splitCommaList(" id, description\noperation_id ")
	if strings.Join(got, "|") != "id|description|operation_id" {
		t.Fatalf("unexpected: %v", got)
	}
	if got := splitCommaList(" , "); len(got) != 0 {
		t.Fatalf("expected no fields for blank input, got %v", got)
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	errText := captureStderr(t, func() {
		_ = captureStdout(t, func() {
			if err := Execute([]string{"no_such_cmd"}); err == nil {
				t.Fatalf("expected error")
			}
		})
	})
	if errText == "" {
		t.Fatalf("expected stderr output")
	}
}

func TestExecute_UnknownFlag(t *testing.T) {
	errText := captureStderr(t, func() {
		_ = captureStdout(t, func() {
			if err := Execute([]string{"--definitely-nope"}); err == nil {
				t.Fatalf("expected error")
			}
		})
	})
	if errText == "" {
		t.Fatalf("expected stderr output")
	}
}

func TestNewUsageError(t *testing.T) {
	if newUsageError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	cause := errors.New("bad")
	var ee *ExitError
	if err := newUsageError(cause); !errors.As(err, &ee) || ee.Code != exitCodeUsage || !errors.Is(err, cause) {
		t.Fatalf("unexpected wrapped error: %#v", err)
	}
}

func TestExecute_VersionFlag(t *testing.T) {
	withBuildVars(t, "9.9.9", "", "")
	out := executeCaptured(t, "--version")
	if strings.TrimSpace(out) != "9.9.9" {
		t.Fatalf("unexpected version output: %q", out)
	}
}
