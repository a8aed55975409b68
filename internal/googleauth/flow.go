package googleauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/input"
)

const callbackPath = "/oauth2/callback"

type AuthorizeOptions struct {
	Scopes       []string
	Manual       bool
	ForceConsent bool
	Timeout      time.Duration
	Client       string
	// AuthURL is the redirect URL copied from the browser. In manual mode
	// it replaces the interactive prompt.
	AuthURL string
}

type ManualAuthURLResult struct {
	URL         string
	StateReused bool
}

var (
	readClientCredentials = config.ReadClientCredentialsFor
	oauthEndpoint         = google.Endpoint
	randomStateFn         = randomState
	manualRedirectURIFn   = freeLoopbackURI
	promptLineFn          = input.PromptLine
)

var (
	errAuthorization      = errors.New("authorization error")
	errInvalidRedirectURL = errors.New("invalid redirect URL")
	errMissingCode        = errors.New("missing code")
	errMissingScopes      = errors.New("missing scopes")
	errNoRefreshToken     = errors.New("no refresh token received; try again with --force-consent")
	errStateMismatch      = errors.New("state mismatch")
)

// flow is one consent exchange for a client and scope set.
type flow struct {
	opts AuthorizeOptions
	cfg  oauth2.Config
}

func newFlow(opts AuthorizeOptions) (*flow, error) {
	if len(opts.Scopes) == 0 {
		return nil, errMissingScopes
	}
	creds, err := readClientCredentials(opts.Client)
	if err != nil {
		return nil, err
	}
	return &flow{opts: opts, cfg: oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauthEndpoint,
		Scopes:       opts.Scopes,
	}}, nil
}

func (f *flow) authURL(state string) string {
	params := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if f.opts.ForceConsent {
		params = append(params, oauth2.SetAuthURLParam("prompt", "consent"))
	}
	return f.cfg.AuthCodeURL(state, params...)
}

// exchange trades code for a refresh token; offline access must yield one.
func (f *flow) exchange(ctx context.Context, code string) (string, error) {
	tok, err := f.cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", errNoRefreshToken
	}
	return tok.RefreshToken, nil
}

// Authorize runs the consent flow and returns a refresh token. By default
// it opens a browser and catches the redirect on a loopback listener.
// Manual mode prints the URL and takes the redirect URL back from the user.
func Authorize(ctx context.Context, opts AuthorizeOptions) (string, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
		if opts.Manual {
			opts.Timeout = 5 * time.Minute
		}
	}
	f, err := newFlow(opts)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if opts.Manual {
		return f.manual(ctx)
	}
	return f.loopback(ctx)
}

// ManualAuthURL returns the consent URL for the manual flow. A pending
// state for the same client and scopes is reused so the URL stays valid
// across invocations.
func ManualAuthURL(ctx context.Context, opts AuthorizeOptions) (ManualAuthURLResult, error) {
	f, err := newFlow(opts)
	if err != nil {
		return ManualAuthURLResult{}, err
	}
	p, reused, err := f.pending(ctx)
	if err != nil {
		return ManualAuthURLResult{}, err
	}
	return ManualAuthURLResult{URL: f.authURL(p.State), StateReused: reused}, nil
}

// pending returns the parked manual state for this flow, starting one if
// none is live, and points the redirect at it.
func (f *flow) pending(ctx context.Context) (pendingAuth, bool, error) {
	k := keyFor(f.opts.Client, f.opts.Scopes, f.opts.ForceConsent)
	p, ok, err := findPending(k)
	if err != nil {
		return pendingAuth{}, false, err
	}
	if !ok {
		p = pendingAuth{Client: f.opts.Client, Scopes: f.opts.Scopes, ForceConsent: f.opts.ForceConsent}
		if p.RedirectURI, err = manualRedirectURIFn(ctx); err != nil {
			return pendingAuth{}, false, err
		}
		if p.State, err = randomStateFn(); err != nil {
			return pendingAuth{}, false, err
		}
		if err := rememberPending(p); err != nil {
			return pendingAuth{}, false, err
		}
	}
	f.cfg.RedirectURL = p.RedirectURI
	return p, ok, nil
}

func (f *flow) manual(ctx context.Context) (string, error) {
	p, _, err := f.pending(ctx)
	if err != nil {
		return "", err
	}

	pasted := strings.TrimSpace(f.opts.AuthURL)
	if pasted == "" {
		fmt.Fprintf(os.Stderr, "Visit this URL to authorize:\n%s\n\n", f.authURL(p.State))
		fmt.Fprintln(os.Stderr, "The browser then lands on a loopback URL that will not load.")
		fmt.Fprintln(os.Stderr, "Copy that URL from the address bar and paste it here.")
		line, err := promptLineFn(ctx, "Redirect URL: ")
		switch {
		case errors.Is(err, io.EOF):
			return "", fmt.Errorf("authorization canceled: %w", context.Canceled)
		case err != nil:
			return "", fmt.Errorf("read redirect url: %w", err)
		}
		pasted = strings.TrimSpace(line)
	}

	cb, err := parseCallback(pasted)
	if err != nil {
		return "", err
	}
	if cb.state != p.State {
		return "", errStateMismatch
	}
	if cb.base != p.RedirectURI {
		return "", fmt.Errorf("%w: redirect %s does not match %s", errStateMismatch, cb.base, p.RedirectURI)
	}

	refresh, err := f.exchange(ctx, cb.code)
	if err != nil {
		return "", err
	}
	_ = forgetPending(p.State)
	return refresh, nil
}

// callback is the part of a redirect URL the manual flow checks.
type callback struct {
	base  string // scheme://host/path
	code  string
	state string
}

func parseCallback(raw string) (callback, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return callback{}, fmt.Errorf("parse redirect url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return callback{}, fmt.Errorf("parse redirect url: %w", errInvalidRedirectURL)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return callback{}, fmt.Errorf("%w: %s", errAuthorization, e)
	}
	if q.Get("code") == "" {
		return callback{}, errMissingCode
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return callback{
		base:  u.Scheme + "://" + u.Host + path,
		code:  q.Get("code"),
		state: q.Get("state"),
	}, nil
}

func freeLoopbackURI(ctx context.Context) (string, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("reserve loopback port: %w", err)
	}
	defer func() { _ = ln.Close() }()
	return loopbackURI(ln), nil
}

func loopbackURI(ln net.Listener) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", ln.Addr().(*net.TCPAddr).Port, callbackPath)
}

func randomState() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}
