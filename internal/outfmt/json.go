package outfmt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// JSONTransform reshapes JSON output for scripts.
type JSONTransform struct {
	// ResultsOnly drops the envelope (count, stack, dry_run, ...) and keeps
	// the primary payload.
	ResultsOnly bool
	// Select keeps only these fields; dot paths reach into nested objects
	// and list indexes. Lists are projected element-wise.
	Select []string
}

func (t JSONTransform) active() bool { return t.ResultsOnly || len(t.Select) > 0 }

type jsonTransformKey struct{}

func WithJSONTransform(ctx context.Context, t JSONTransform) context.Context {
	return context.WithValue(ctx, jsonTransformKey{}, t)
}

func JSONTransformFromContext(ctx context.Context) (JSONTransform, bool) {
	t, ok := ctx.Value(jsonTransformKey{}).(JSONTransform)
	return t, ok
}

// envelopeKeys never hold the primary result.
var envelopeKeys = map[string]bool{
	"count":    true,
	"dry_run":  true,
	"op":       true,
	"action":   true,
	"stack":    true,
	"range":    true,
	"date":     true,
	"warnings": true,
}

// resultKeys are tried in order when more than one non-envelope key remains.
var resultKeys = []string{
	"operations",
	"batches",
	"events",
	"snapshots",
	"dates",
	"calendars",
	"accounts",
	"clients",
	"keys",
}

func WriteJSON(ctx context.Context, w io.Writer, v any) error {
	if t, ok := JSONTransformFromContext(ctx); ok && t.active() {
		shaped, err := t.apply(v)
		if err != nil {
			return fmt.Errorf("transform json: %w", err)
		}
		v = shaped
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func (t JSONTransform) apply(v any) (any, error) {
	// Round-trip through JSON so struct tags decide the field names.
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if t.ResultsOnly {
		generic = primary(generic)
	}
	if len(t.Select) > 0 {
		generic = project(generic, t.Select)
	}
	return generic, nil
}

func primary(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if r, ok := m["results"]; ok {
		return r
	}

	var rest []string
	for k := range m {
		if !envelopeKeys[k] {
			rest = append(rest, k)
		}
	}
	if len(rest) == 1 {
		return m[rest[0]]
	}
	for _, k := range rest {
		if list, ok := m[k].([]any); ok {
			return list
		}
	}
	for _, k := range resultKeys {
		if val, ok := m[k]; ok {
			return val
		}
	}
	return v
}

func project(v any, fields []string) any {
	list, ok := v.([]any)
	if !ok {
		return projectOne(v, fields)
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		out = append(out, projectOne(item, fields))
	}
	return out
}

func projectOne(v any, fields []string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if val, ok := lookup(m, f); ok {
			out[f] = val
		}
	}
	return out
}

func lookup(v any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		seg = strings.TrimSpace(seg)
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func KeyValuePayload(key string, value any) map[string]any {
	return map[string]any{"key": key, "value": value}
}

func KeysPayload(keys []string) map[string]any {
	return map[string]any{"keys": keys}
}

func PathPayload(path string) map[string]any {
	return map[string]any{"path": path}
}
