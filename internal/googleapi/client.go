// Package googleapi builds authenticated Google API clients for an account.
package googleapi

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/steipete/vacationcal/internal/authclient"
	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/googleauth"
	"github.com/steipete/vacationcal/internal/secrets"
)

const requestTimeout = 30 * time.Second

var errServiceNotGranted = errors.New("service not granted; re-run auth add with --services")

var (
	readClientCredentials = config.ReadClientCredentialsFor
	openSecretsStore      = secrets.OpenDefault
)

func NewCalendar(ctx context.Context, email string) (*calendar.Service, error) {
	return newService(ctx, googleauth.ServiceCalendar, email, calendar.NewService)
}

func NewGmail(ctx context.Context, email string) (*gmail.Service, error) {
	return newService(ctx, googleauth.ServiceGmail, email, gmail.NewService)
}

func newService[S any](ctx context.Context, service googleauth.Service, email string, build func(context.Context, ...option.ClientOption) (S, error)) (S, error) {
	var zero S
	hc, err := accountHTTPClient(ctx, service, email)
	if err != nil {
		return zero, fmt.Errorf("%s client: %w", service, err)
	}
	svc, err := build(ctx, option.WithHTTPClient(hc))
	if err != nil {
		return zero, fmt.Errorf("create %s service: %w", service, err)
	}
	return svc, nil
}

// accountHTTPClient returns a client that signs requests with the stored
// refresh token of email and retries throttled calls.
func accountHTTPClient(ctx context.Context, service googleauth.Service, email string) (*http.Client, error) {
	scopes, err := googleauth.Scopes(service)
	if err != nil {
		return nil, err
	}
	client, err := authclient.ResolveClient(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("resolve oauth client: %w", err)
	}
	slog.Debug("google client", "service", service, "email", email, "client", client)

	creds, err := readClientCredentials(client)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	refresh, err := storedRefreshToken(service, email, client)
	if err != nil {
		return nil, err
	}

	oc := oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
	// Token refreshes use their own bounded client.
	refreshCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: requestTimeout})
	ts := oc.TokenSource(refreshCtx, &oauth2.Token{RefreshToken: refresh})

	return &http.Client{
		Transport: NewRetryTransport(&oauth2.Transport{Source: ts, Base: secureTransport()}),
		Timeout:   requestTimeout,
	}, nil
}

// storedRefreshToken loads the keyring entry for email and checks it was
// authorized for service. Tokens stored without a service list pass.
func storedRefreshToken(service googleauth.Service, email, client string) (string, error) {
	store, err := openSecretsStore()
	if err != nil {
		return "", fmt.Errorf("open secrets store: %w", err)
	}
	tok, err := store.GetToken(client, email)
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
		return "", &AuthRequiredError{Service: string(service), Email: email, Client: client, Cause: err}
	case err != nil:
		return "", fmt.Errorf("read token for %s: %w", email, err)
	}
	if len(tok.Services) > 0 && !slices.Contains(tok.Services, string(service)) {
		return "", &AuthRequiredError{Service: string(service), Email: email, Client: client, Cause: errServiceNotGranted}
	}
	return tok.RefreshToken, nil
}

// secureTransport clones the default transport, keeping proxy settings and
// requiring TLS 1.2 or newer.
func secureTransport() *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok || base == nil {
		base = &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	t := base.Clone()
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{}
	}
	if t.TLSClientConfig.MinVersion < tls.VersionTLS12 {
		t.TLSClientConfig.MinVersion = tls.VersionTLS12
	}
	return t
}
