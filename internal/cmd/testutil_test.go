package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/steipete/vacationcal/internal/googleauth"
	"github.com/steipete/vacationcal/internal/history"
	"github.com/steipete/vacationcal/internal/outfmt"
)

// fakeCalendar is an in-memory Calendar API: events on any calendar id plus
// a fixed calendar list.
type fakeCalendar struct {
	mu        sync.Mutex
	next      int
	events    map[string]map[string]any
	calendars []map[string]any
	deletes   []string
	failAfter int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{
		events: map[string]map[string]any{},
		calendars: []map[string]any{
			{"id": "primary-id", "summary": "a@b.com", "primary": true, "accessRole": "owner", "timeZone": "UTC"},
			{"id": "team@group.calendar.google.com", "summary": "Team", "accessRole": "writer", "timeZone": "UTC"},
			{"id": "holidays@group.v.calendar.google.com", "summary": "Holidays", "accessRole": "reader", "timeZone": "UTC"},
		},
	}
}

func (f *fakeCalendar) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeCalendar) summaries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		s, _ := ev["summary"].(string)
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/calendar/v3")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && path == "/users/me/calendarList":
		_ = json.NewEncoder(w).Encode(map[string]any{"items": f.calendars})
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/events"):
		if f.failAfter > 0 && f.next >= f.failAfter {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 403, "message": "forbidden"}})
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.next++
		id := fmt.Sprintf("ev%d", f.next)
		body["id"] = id
		f.events[id] = body
		_ = json.NewEncoder(w).Encode(body)
	case r.Method == http.MethodDelete && strings.Contains(path, "/events/"):
		id := path[strings.LastIndex(path, "/")+1:]
		f.deletes = append(f.deletes, id)
		if _, ok := f.events[id]; !ok {
			w.WriteHeader(http.StatusGone)
			return
		}
		delete(f.events, id)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/events"):
		items := make([]map[string]any, 0, len(f.events))
		ids := make([]string, 0, len(f.events))
		for id := range f.events {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			items = append(items, f.events[id])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	default:
		http.NotFound(w, r)
	}
}

// useFakeGoogle points the Calendar factory at fake, disables Gmail and
// isolates config and history in a temp dir.
func useFakeGoogle(t *testing.T, fake *fakeCalendar) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("VACAL_CONFIG_DIR", dir)

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	origCal, origGmail, origNow := newCalendarService, newGmailService, nowFn
	t.Cleanup(func() {
		newCalendarService, newGmailService, nowFn = origCal, origGmail, origNow
	})
	newCalendarService = func(ctx context.Context, _ string) (*calendar.Service, error) {
		return calendar.NewService(ctx,
			option.WithoutAuthentication(),
			option.WithHTTPClient(srv.Client()),
			option.WithEndpoint(srv.URL+"/"),
		)
	}
	newGmailService = func(context.Context, string) (*gmail.Service, error) {
		return nil, errors.New("gmail disabled in tests")
	}
	nowFn = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	return dir
}

func jsonContext() context.Context {
	return outfmt.WithMode(context.Background(), outfmt.Mode{JSON: true})
}

func testFlags() *RootFlags {
	return &RootFlags{Account: "a@b.com", Force: true}
}

func loadTestHistory(t *testing.T, dir string) *history.Store {
	t.Helper()
	store := history.New()
	store.Load(dir)
	return store
}

func decodeJSON(t *testing.T, out string) map[string]any {
	t.Helper()
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("unmarshal: %v\noutput=%q", err, out)
	}
	return got
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = orig
	b, _ := io.ReadAll(r)
	_ = r.Close()
	return string(b)
}

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w

	fn()

	_ = w.Close()
	os.Stderr = orig
	b, _ := io.ReadAll(r)
	_ = r.Close()
	return string(b)
}

func withStdin(t *testing.T, input string, fn func()) {
	t.Helper()

	orig := os.Stdin
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdin = r

	_, _ = io.WriteString(w, input)
	_ = w.Close()

	fn()

	_ = r.Close()
	os.Stdin = orig
}

func runKong(t *testing.T, cmd any, args []string, ctx context.Context, flags *RootFlags) (err error) {
	t.Helper()

	parser, err := kong.New(
		cmd,
		kong.Vars(kong.Vars{
			"auth_services": googleauth.UserServiceCSV(),
		}),
		kong.Writers(io.Discard, io.Discard),
		kong.Exit(func(code int) { panic(exitPanic{code: code}) }),
	)
	if err != nil {
		return err
	}

	defer recoverExit(&err)

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	kctx.BindTo(ctx, (*context.Context)(nil))
	if flags == nil {
		flags = &RootFlags{}
	}
	kctx.Bind(flags)

	return kctx.Run()
}
