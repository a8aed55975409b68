package googleauth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func usePendingDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, origNow := pendingDirFn, pendingNowFn
	t.Cleanup(func() { pendingDirFn, pendingNowFn = origDir, origNow })
	pendingDirFn = func() (string, error) { return dir, nil }
	return dir
}

func setPendingNow(ts time.Time) { pendingNowFn = func() time.Time { return ts } }

func TestPending_RememberFindForget(t *testing.T) {
	dir := usePendingDir(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	setPendingNow(base)

	a := pendingAuth{State: "a", RedirectURI: "http://127.0.0.1:1/cb", Client: "default", Scopes: []string{"s2", "s1"}}
	b := pendingAuth{State: "b", RedirectURI: "http://127.0.0.1:2/cb", Client: "work", Scopes: []string{"s1"}}
	for _, p := range []pendingAuth{a, b} {
		if err := rememberPending(p); err != nil {
			t.Fatalf("rememberPending: %v", err)
		}
	}

	got, ok, err := findPending(keyFor("default", []string{"s1", "s2"}, false))
	if err != nil || !ok || got.State != "a" {
		t.Fatalf("findPending = %+v %v %v", got, ok, err)
	}
	if _, ok, _ := findPending(keyFor("default", []string{"s1", "s2"}, true)); ok {
		t.Fatalf("consent mode must be part of the key")
	}

	// Same key replaces the older entry.
	a2 := a
	a2.State = "a2"
	if err := rememberPending(a2); err != nil {
		t.Fatalf("rememberPending: %v", err)
	}
	all, _ := readPending()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %+v", all)
	}

	if err := forgetPending("a2"); err != nil {
		t.Fatalf("forgetPending: %v", err)
	}
	if err := forgetPending("b"); err != nil {
		t.Fatalf("forgetPending: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, pendingFile)); !os.IsNotExist(err) {
		t.Fatalf("empty pending file should be removed: %v", err)
	}
}

func TestPending_ExpiredAndCorrupt(t *testing.T) {
	dir := usePendingDir(t)
	setPendingNow(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	if err := rememberPending(pendingAuth{State: "old", RedirectURI: "http://127.0.0.1:1/cb"}); err != nil {
		t.Fatalf("rememberPending: %v", err)
	}

	setPendingNow(time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC))
	if _, ok, err := findPending(keyFor("", nil, false)); err != nil || ok {
		t.Fatalf("expected expired miss, ok=%v err=%v", ok, err)
	}

	if err := os.WriteFile(filepath.Join(dir, pendingFile), []byte("{nope"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if all, err := readPending(); err != nil || len(all) != 0 {
		t.Fatalf("corrupt file should read as empty: %v %v", all, err)
	}
}
