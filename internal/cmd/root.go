package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"github.com/steipete/vacationcal/internal/authclient"
	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/errfmt"
	"github.com/steipete/vacationcal/internal/googleauth"
	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/secrets"
	"github.com/steipete/vacationcal/internal/ui"
)

const (
	colorAuto  = "auto"
	colorNever = "never"
)

type RootFlags struct {
	Color       string `help:"Color output: auto|always|never" default:"${color}"`
	Account     string `help:"Account email used for Calendar and Gmail" aliases:"acct" short:"a" default:"${account}"`
	Client      string `help:"OAuth client name (selects stored credentials + token bucket)" default:"${client}"`
	HistoryDir  string `name:"history-dir" help:"Directory holding undo_history.json (default: config dir)" default:"${history_dir}"`
	JSON        bool   `help:"Output JSON to stdout (best for scripting)" default:"${json}" aliases:"machine" short:"j"`
	Plain       bool   `help:"Output stable, parseable text to stdout (TSV; no colors)" default:"${plain}" aliases:"tsv" short:"p"`
	ResultsOnly bool   `name:"results-only" help:"In JSON mode, emit only the primary result"`
	Select      string `name:"select" aliases:"pick" help:"In JSON mode, select comma-separated fields (supports dot paths)"`
	DryRun      bool   `help:"Do not make changes; print intended actions and exit successfully" aliases:"noop,preview" short:"n"`
	Force       bool   `help:"Skip confirmations for destructive commands" aliases:"yes,assume-yes" short:"y"`
	NoInput     bool   `help:"Never prompt; fail instead (useful for CI)" aliases:"non-interactive"`
	Verbose     bool   `help:"Enable verbose logging" short:"v"`
}

type CLI struct {
	RootFlags `embed:""`

	Version kong.VersionFlag `help:"Print version and exit"`

	Create    CreateCmd    `cmd:"" help:"Create a batch of vacation events"`
	Update    UpdateCmd    `cmd:"" help:"Replace a batch with a new schedule"`
	Delete    DeleteCmd    `cmd:"" aliases:"rm" help:"Delete a batch's events (or redo the last undone delete)"`
	Undo      UndoCmd      `cmd:"" help:"Undo the most recent batch operation"`
	Redo      RedoCmd      `cmd:"" help:"Redo the most recently undone operation"`
	Restore   RestoreCmd   `cmd:"" help:"Restore a deleted batch"`
	History   HistoryCmd   `cmd:"" aliases:"hist" help:"Inspect and maintain batch history"`
	Import    ImportCmd    `cmd:"" help:"Import existing calendar events as batches"`
	Calendars CalendarsCmd `cmd:"" aliases:"cals" help:"List your calendars"`
	Auth      AuthCmd      `cmd:"" help:"Auth and credentials"`
	Config    ConfigCmd    `cmd:"" help:"Manage configuration"`
	ExitCodes ExitCodesCmd `cmd:"" name:"exit-codes" aliases:"exitcodes" help:"Print stable exit codes"`

	VersionCmd VersionCmd `cmd:"" name:"version" help:"Print version"`
}

type exitPanic struct{ code int }

// Execute parses args, runs the selected command and returns an error whose
// ExitCode is the process status.
func Execute(args []string) (err error) {
	parser, cli, err := newParser(helpDescription())
	if err != nil {
		return err
	}
	defer recoverExit(&err)

	kctx, err := parser.Parse(args)
	if err != nil {
		err = wrapParseError(err)
		_, _ = fmt.Fprintln(os.Stderr, errfmt.Format(err))
		return err
	}

	configureLogging(cli.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, u, err := commandContext(ctx, cli)
	if err != nil {
		return err
	}

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(&cli.RootFlags)
	return reportError(u, kctx.Run())
}

// recoverExit turns kong's exit callback (help, --version) into a return value.
func recoverExit(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	ep, ok := r.(exitPanic)
	if !ok {
		panic(r)
	}
	if ep.code == 0 {
		*errp = nil
		return
	}
	*errp = &ExitError{Code: ep.code, Err: errors.New("exited")}
}

func configureLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// commandContext installs output mode, JSON shaping, OAuth client and UI.
func commandContext(ctx context.Context, cli *CLI) (context.Context, *ui.UI, error) {
	// VACAL_AUTO_JSON switches piped output to JSON unless a mode was chosen.
	if envBool("VACAL_AUTO_JSON") && !cli.JSON && !cli.Plain && !term.IsTerminal(int(os.Stdout.Fd())) {
		cli.JSON = true
	}
	mode, err := outfmt.FromFlags(cli.JSON, cli.Plain)
	if err != nil {
		return nil, nil, newUsageError(err)
	}

	color := cli.Color
	if !mode.Human() {
		color = colorNever
	}
	u, err := ui.New(ui.Options{Stdout: os.Stdout, Stderr: os.Stderr, Color: color})
	if err != nil {
		return nil, nil, err
	}

	ctx = outfmt.WithMode(ctx, mode)
	ctx = outfmt.WithJSONTransform(ctx, outfmt.JSONTransform{
		ResultsOnly: cli.ResultsOnly,
		Select:      splitCommaList(cli.Select),
	})
	ctx = authclient.WithClient(ctx, cli.Client)
	return ui.WithUI(ctx, u), u, nil
}

// reportError prints a failed command's error once on stderr. Exit-0
// sentinels from dry runs count as success.
func reportError(u *ui.UI, err error) error {
	if ExitCode(err) == exitCodeOK {
		return nil
	}
	err = stableExitCode(err)
	if msg := strings.TrimSpace(errfmt.Format(err)); msg != "" {
		u.Err().Error(msg)
	}
	return err
}

func wrapParseError(err error) error {
	var parseErr *kong.ParseError
	if errors.As(err, &parseErr) {
		return newUsageError(parseErr)
	}
	return err
}

func newUsageError(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: exitCodeUsage, Err: err}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func newParser(description string) (*kong.Kong, *CLI, error) {
	envMode := outfmt.FromEnv()
	cli := &CLI{}
	parser, err := kong.New(
		cli,
		kong.Name(config.AppName),
		kong.Description(description),
		kong.Vars{
			"auth_services": googleauth.UserServiceCSV(),
			"color":         envOr("VACAL_COLOR", colorAuto),
			"account":       envOr("VACAL_ACCOUNT", ""),
			"client":        envOr("VACAL_CLIENT", ""),
			"history_dir":   envOr("VACAL_HISTORY_DIR", ""),
			"json":          fmt.Sprint(envMode.JSON),
			"plain":         fmt.Sprint(envMode.Plain),
			"version":       VersionString(),
		},
		kong.Writers(os.Stdout, os.Stderr),
		kong.Exit(func(code int) { panic(exitPanic{code: code}) }),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true, NoExpandSubcommands: true}),
	)
	if err != nil {
		return nil, nil, err
	}
	return parser, cli, nil
}

// helpDescription appends where config and tokens live to the --help text.
func helpDescription() string {
	var b strings.Builder
	b.WriteString("Schedule vacation days on Google Calendar in batches, with undo, redo, delete and restore\n\nConfig:\n")

	if path, err := config.ConfigPath(); err != nil {
		fmt.Fprintf(&b, "  file: error: %v\n", err)
	} else {
		fmt.Fprintf(&b, "  file: %s\n", path)
	}

	info, err := secrets.ResolveKeyringBackendInfo()
	switch {
	case err != nil:
		fmt.Fprintf(&b, "  keyring backend: error: %v", err)
	default:
		fmt.Fprintf(&b, "  keyring backend: %s (source: %s)", info.Value, info.Source)
	}
	return b.String()
}

func splitCommaList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\t' || r == ' '
	})
}
