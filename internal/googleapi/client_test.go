package googleapi

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/99designs/keyring"

	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/googleauth"
	"github.com/steipete/vacationcal/internal/secrets"
)

type fakeStore struct {
	secrets.Store
	tok  secrets.Token
	err  error
	seen []string
}

func (s *fakeStore) GetToken(client, email string) (secrets.Token, error) {
	s.seen = append(s.seen, client+"/"+email)
	return s.tok, s.err
}

func useStore(t *testing.T, store secrets.Store, openErr, credsErr error) {
	t.Helper()
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())

	origRead, origOpen := readClientCredentials, openSecretsStore
	t.Cleanup(func() { readClientCredentials, openSecretsStore = origRead, origOpen })

	readClientCredentials = func(string) (config.ClientCredentials, error) {
		return config.ClientCredentials{ClientID: "id", ClientSecret: "secret"}, credsErr
	}
	openSecretsStore = func() (secrets.Store, error) { return store, openErr }
}

func TestStoredRefreshToken(t *testing.T) {
	errLocked := errors.New("keyring locked")
	cases := []struct {
		name      string
		store     *fakeStore
		openErr   error
		wantToken string
		wantAuth  bool
		wantIs    error
	}{
		{name: "ok", store: &fakeStore{tok: secrets.Token{RefreshToken: "rt", Services: []string{"calendar", "gmail"}}}, wantToken: "rt"},
		{name: "legacy token without services", store: &fakeStore{tok: secrets.Token{RefreshToken: "rt"}}, wantToken: "rt"},
		{name: "missing", store: &fakeStore{err: keyring.ErrKeyNotFound}, wantAuth: true, wantIs: keyring.ErrKeyNotFound},
		{name: "not granted", store: &fakeStore{tok: secrets.Token{RefreshToken: "rt", Services: []string{"gmail"}}}, wantAuth: true, wantIs: errServiceNotGranted},
		{name: "read error", store: &fakeStore{err: errLocked}, wantIs: errLocked},
		{name: "open error", store: &fakeStore{}, openErr: errLocked, wantIs: errLocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			useStore(t, tc.store, tc.openErr, nil)
			got, err := storedRefreshToken(googleauth.ServiceCalendar, "a@b.com", "work")
			if got != tc.wantToken {
				t.Fatalf("token = %q, want %q (err %v)", got, tc.wantToken, err)
			}
			var are *AuthRequiredError
			if errors.As(err, &are) != tc.wantAuth {
				t.Fatalf("auth required = %v, want %v: %v", !tc.wantAuth, tc.wantAuth, err)
			}
			if tc.wantAuth && (are.Service != "calendar" || are.Client != "work" || !strings.Contains(are.Error(), "a@b.com")) {
				t.Fatalf("unexpected auth error: %#v", are)
			}
			if tc.wantIs != nil && !errors.Is(err, tc.wantIs) {
				t.Fatalf("expected %v in chain, got %v", tc.wantIs, err)
			}
		})
	}
}

func TestAccountHTTPClient_UsesConfiguredClient(t *testing.T) {
	store := &fakeStore{tok: secrets.Token{RefreshToken: "rt"}}
	useStore(t, store, nil, nil)
	if err := config.WriteConfig(config.File{Client: "work"}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	hc, err := accountHTTPClient(context.Background(), googleauth.ServiceCalendar, "a@b.com")
	if err != nil {
		t.Fatalf("accountHTTPClient: %v", err)
	}
	if hc.Timeout != requestTimeout {
		t.Fatalf("timeout = %v", hc.Timeout)
	}
	if _, ok := hc.Transport.(*RetryTransport); !ok {
		t.Fatalf("expected retry transport, got %T", hc.Transport)
	}
	if len(store.seen) != 1 || store.seen[0] != "work/a@b.com" {
		t.Fatalf("unexpected lookups: %v", store.seen)
	}
}

func TestAccountHTTPClient_MissingCredentials(t *testing.T) {
	errMissing := errors.New("no credentials.json")
	useStore(t, &fakeStore{}, nil, errMissing)
	if _, err := accountHTTPClient(context.Background(), googleauth.ServiceGmail, "a@b.com"); !errors.Is(err, errMissing) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
}

func TestNewCalendarAndGmail(t *testing.T) {
	useStore(t, &fakeStore{tok: secrets.Token{RefreshToken: "rt"}}, nil, nil)

	if svc, err := NewCalendar(context.Background(), "a@b.com"); err != nil || svc == nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	if svc, err := NewGmail(context.Background(), "a@b.com"); err != nil || svc == nil {
		t.Fatalf("NewGmail: %v", err)
	}
}

func TestNewCalendar_WrapsAuthRequired(t *testing.T) {
	useStore(t, &fakeStore{err: keyring.ErrKeyNotFound}, nil, nil)
	_, err := NewCalendar(context.Background(), "a@b.com")
	var are *AuthRequiredError
	if !errors.As(err, &are) || !strings.HasPrefix(err.Error(), "calendar client:") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSecureTransport(t *testing.T) {
	t.Setenv("HTTPS_PROXY", "http://127.0.0.1:8888")

	tr := secureTransport()
	if tr.TLSClientConfig == nil || tr.TLSClientConfig.MinVersion < tls.VersionTLS12 {
		t.Fatalf("weak TLS config: %+v", tr.TLSClientConfig)
	}
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://www.googleapis.com", nil)
	proxy, err := tr.Proxy(req)
	if err != nil || proxy == nil || proxy.Host != "127.0.0.1:8888" {
		t.Fatalf("proxy not honored: %v %v", proxy, err)
	}
}
