// Package ui prints human-facing output to stdout and stderr.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
)

var errInvalidColor = errors.New("invalid --color (expected auto|always|never)")

type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Color  string
}

type UI struct {
	out *Printer
	err *Printer
}

// Printer writes lines to one stream, colored when the stream supports it.
type Printer struct {
	w       io.Writer
	profile termenv.Profile
}

func New(opts Options) (*UI, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	color := strings.ToLower(strings.TrimSpace(opts.Color))
	if color == "" {
		color = "auto"
	}
	if color != "auto" && color != "always" && color != "never" {
		return nil, errInvalidColor
	}

	return &UI{
		out: newPrinter(opts.Stdout, color),
		err: newPrinter(opts.Stderr, color),
	}, nil
}

func newPrinter(w io.Writer, color string) *Printer {
	profile := termenv.Ascii
	switch color {
	case "always":
		profile = termenv.ANSI256
	case "auto":
		if os.Getenv("NO_COLOR") == "" {
			profile = termenv.NewOutput(w).EnvColorProfile()
		}
	}
	return &Printer{w: w, profile: profile}
}

// Out and Err fall back to uncolored stdio when no UI is installed.
func (u *UI) Out() *Printer {
	if u == nil {
		return &Printer{w: os.Stdout, profile: termenv.Ascii}
	}
	return u.out
}

func (u *UI) Err() *Printer {
	if u == nil {
		return &Printer{w: os.Stderr, profile: termenv.Ascii}
	}
	return u.err
}

func (p *Printer) Println(msg string) {
	_, _ = fmt.Fprintln(p.w, msg)
}

func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintln(p.w, fmt.Sprintf(format, args...))
}

func (p *Printer) Successf(format string, args ...any) {
	p.colored("2", fmt.Sprintf(format, args...))
}

func (p *Printer) Warnf(format string, args ...any) {
	p.colored("3", fmt.Sprintf(format, args...))
}

func (p *Printer) Error(msg string) {
	p.colored("1", msg)
}

func (p *Printer) Errorf(format string, args ...any) {
	p.Error(fmt.Sprintf(format, args...))
}

// Dim renders s in a muted color, for secondary columns.
func (p *Printer) Dim(s string) string {
	return p.profile.String(s).Foreground(p.profile.Color("8")).String()
}

func (p *Printer) colored(color string, msg string) {
	_, _ = fmt.Fprintln(p.w, p.profile.String(msg).Foreground(p.profile.Color(color)).String())
}

type ctxKey struct{}

func WithUI(ctx context.Context, u *UI) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func FromContext(ctx context.Context) *UI {
	if ctx == nil {
		return nil
	}
	u, _ := ctx.Value(ctxKey{}).(*UI)
	return u
}
