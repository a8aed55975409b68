// Package outfmt decides how commands print: aligned text for people, TSV
// with --plain, or JSON with --json.
package outfmt

import (
	"context"
	"os"
	"strings"
)

const (
	envJSON  = "VACAL_JSON"
	envPlain = "VACAL_PLAIN"
)

type Mode struct {
	JSON  bool
	Plain bool
}

// Human reports whether output is meant for a terminal reader.
func (m Mode) Human() bool { return !m.JSON && !m.Plain }

type ParseError struct{ msg string }

func (e *ParseError) Error() string { return e.msg }

func FromFlags(jsonOut bool, plainOut bool) (Mode, error) {
	if jsonOut && plainOut {
		return Mode{}, &ParseError{msg: "invalid output mode (cannot combine --json and --plain)"}
	}
	return Mode{JSON: jsonOut, Plain: plainOut}, nil
}

// FromEnv reads VACAL_JSON and VACAL_PLAIN; used as flag defaults.
func FromEnv() Mode {
	return Mode{JSON: envBool(envJSON), Plain: envBool(envPlain)}
}

type ctxKey struct{}

func WithMode(ctx context.Context, mode Mode) context.Context {
	return context.WithValue(ctx, ctxKey{}, mode)
}

func FromContext(ctx context.Context) Mode {
	if m, ok := ctx.Value(ctxKey{}).(Mode); ok {
		return m
	}
	return Mode{}
}

func IsJSON(ctx context.Context) bool  { return FromContext(ctx).JSON }
func IsPlain(ctx context.Context) bool { return FromContext(ctx).Plain }

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
