package outfmt

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func writeAndDecode(t *testing.T, ctx context.Context, v any, into any) string {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteJSON(ctx, &buf, v); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := json.Unmarshal(buf.Bytes(), into); err != nil {
		t.Fatalf("unmarshal: %v (out=%q)", err, buf.String())
	}
	return buf.String()
}

func TestWriteJSON_IndentAndNoHTMLEscape(t *testing.T) {
	var got map[string]any
	out := writeAndDecode(t, context.Background(), map[string]any{"description": "a <b> & c"}, &got)
	if !strings.Contains(out, "\n  \"description\": \"a <b> & c\"") {
		t.Fatalf("unexpected encoding: %q", out)
	}
}

func TestWriteJSON_ResultsOnlyAndSelect(t *testing.T) {
	ctx := WithJSONTransform(context.Background(), JSONTransform{
		ResultsOnly: true,
		Select:      []string{"operation_id", "event_snapshots.0.event_id"},
	})
	payload := map[string]any{
		"count": 2,
		"stack": "undo",
		"operations": []map[string]any{
			{"operation_id": "a", "description": "one", "event_snapshots": []map[string]any{{"event_id": "ev1"}}},
			{"operation_id": "b", "description": "two"},
		},
	}

	var got []map[string]any
	writeAndDecode(t, ctx, payload, &got)
	if len(got) != 2 || got[0]["operation_id"] != "a" || got[1]["operation_id"] != "b" {
		t.Fatalf("unexpected rows: %#v", got)
	}
	if got[0]["event_snapshots.0.event_id"] != "ev1" {
		t.Fatalf("expected nested path, got %#v", got[0])
	}
	if _, ok := got[0]["description"]; ok {
		t.Fatalf("unselected field kept: %#v", got[0])
	}
	if _, ok := got[1]["event_snapshots.0.event_id"]; ok {
		t.Fatalf("missing path should be omitted: %#v", got[1])
	}
}

func TestWriteJSON_ResultsOnlyPicksPrimary(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
		wantKey string
	}{
		{
			name:    "explicit results",
			payload: map[string]any{"results": map[string]any{"x": 1}, "dates": map[string]any{}},
			wantKey: "x",
		},
		{
			name:    "single non-envelope key",
			payload: map[string]any{"dry_run": true, "request": map[string]any{"name": "Vacation"}},
			wantKey: "name",
		},
		{
			name: "known key among maps",
			payload: map[string]any{
				"dates":   map[string]any{"2024-03-04": 1},
				"summary": map[string]any{"total": 1},
			},
			wantKey: "2024-03-04",
		},
	}
	ctx := WithJSONTransform(context.Background(), JSONTransform{ResultsOnly: true})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got map[string]any
			writeAndDecode(t, ctx, tc.payload, &got)
			if _, ok := got[tc.wantKey]; !ok {
				t.Fatalf("expected %q in %#v", tc.wantKey, got)
			}
		})
	}
}

func TestWriteJSON_InactiveTransformKeepsEnvelope(t *testing.T) {
	ctx := WithJSONTransform(context.Background(), JSONTransform{})
	var got map[string]any
	writeAndDecode(t, ctx, map[string]any{"count": 1, "batches": []string{"x"}}, &got)
	if got["count"] != float64(1) {
		t.Fatalf("envelope dropped: %#v", got)
	}
}

func TestPayloadHelpers(t *testing.T) {
	if got := KeyValuePayload("calendar", "primary"); got["key"] != "calendar" || got["value"] != "primary" {
		t.Fatalf("KeyValuePayload: %#v", got)
	}
	if got := KeysPayload([]string{"a"}); len(got["keys"].([]string)) != 1 {
		t.Fatalf("KeysPayload: %#v", got)
	}
	if got := PathPayload("/tmp/history.json"); got["path"] != "/tmp/history.json" {
		t.Fatalf("PathPayload: %#v", got)
	}
}
