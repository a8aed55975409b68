package cmd

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/steipete/vacationcal/internal/authclient"
	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/googleapi"
	"github.com/steipete/vacationcal/internal/history"
	"github.com/steipete/vacationcal/internal/notify"
	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/ui"
	"github.com/steipete/vacationcal/internal/vacation"
)

var (
	newCalendarService = googleapi.NewCalendar
	newGmailService    = googleapi.NewGmail
	nowFn              = time.Now
)

var errNoAccount = errors.New("no account selected; pass --account <email>, set VACAL_ACCOUNT, or run: vacal config set account <email>")

// session is the loaded config plus the history store it points at.
type session struct {
	cfg   config.File
	dir   string
	store *history.Store

	cal   *vacation.GoogleCalendar
	email string
}

// openHistory loads config.json and the history file. It never touches
// the network or the keyring.
func openHistory(ctx context.Context, flags *RootFlags) (*session, error) {
	cfg, err := config.ReadConfig()
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	dir, err := config.HistoryDir(cfg)
	if err != nil {
		return nil, err
	}
	if flags != nil && strings.TrimSpace(flags.HistoryDir) != "" {
		dir, err = config.ExpandPath(flags.HistoryDir)
		if err != nil {
			return nil, err
		}
	}

	store := history.New(
		history.WithMaxHistory(cfg.MaxHistory),
		history.WithClock(nowFn),
		history.WithLogger(slog.Default()),
	)
	if u := ui.FromContext(ctx); u != nil {
		store.OnSaveFailed(func(msg string) {
			u.Err().Warnf("Could not save history: %s", msg)
		})
	}
	n := store.Load(dir)
	slog.Debug("history loaded", "dir", dir, "operations", n)

	return &session{cfg: cfg, dir: dir, store: store}, nil
}

func (s *session) save() error {
	return s.store.Save(s.dir)
}

// account picks the Google account: --account, then config.json.
func (s *session) account(flags *RootFlags) (string, error) {
	if flags != nil {
		if v := strings.TrimSpace(flags.Account); v != "" {
			return v, nil
		}
	}
	if v := strings.TrimSpace(s.cfg.Account); v != "" {
		return v, nil
	}
	return "", errNoAccount
}

// calendar opens the authenticated Calendar client for the selected account.
func (s *session) calendar(ctx context.Context, flags *RootFlags) (*vacation.GoogleCalendar, string, error) {
	if s.cal != nil {
		return s.cal, s.email, nil
	}
	account, err := s.account(flags)
	if err != nil {
		return nil, "", usage(err.Error())
	}
	svc, err := newCalendarService(ctx, account)
	if err != nil {
		return nil, "", err
	}
	s.cal, s.email = vacation.NewGoogleCalendar(svc), account
	return s.cal, account, nil
}

// service wires the executor: Calendar for events, Gmail for notices and
// progress lines on stderr.
func (s *session) service(ctx context.Context, flags *RootFlags) (*vacation.Service, error) {
	cal, account, err := s.calendar(ctx, flags)
	if err != nil {
		return nil, err
	}

	opts := []vacation.Option{
		vacation.WithHistoryDir(s.dir),
		vacation.WithLogger(slog.Default()),
		vacation.WithClock(nowFn),
	}
	if gm, err := newGmailService(ctx, account); err != nil {
		slog.Warn("gmail unavailable; notifications disabled", "account", account, "err", err)
	} else {
		opts = append(opts, vacation.WithNotifier(notify.NewGmail(gm, account)))
	}
	if u := ui.FromContext(ctx); u != nil && !outfmt.IsJSON(ctx) {
		opts = append(opts, vacation.WithProgress(func(line string) {
			u.Err().Println(line)
		}))
	}
	return vacation.New(cal, s.store, opts...), nil
}

// clientForAccount resolves the OAuth client bucket for an email.
func clientForAccount(ctx context.Context, email string) (string, error) {
	return authclient.ResolveClient(ctx, email)
}
