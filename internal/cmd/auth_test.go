package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"

	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/googleauth"
	"github.com/steipete/vacationcal/internal/secrets"
)

type memSecretsStore struct {
	tokens   map[string]secrets.Token
	defaults map[string]string
}

func newMemSecretsStore() *memSecretsStore {
	return &memSecretsStore{tokens: map[string]secrets.Token{}, defaults: map[string]string{}}
}

func memKey(client, email string) string { return client + "/" + strings.ToLower(email) }

func (s *memSecretsStore) Keys() ([]string, error) {
	out := make([]string, 0, len(s.tokens))
	for k := range s.tokens {
		out = append(out, k)
	}
	return out, nil
}

func (s *memSecretsStore) SetToken(client, email string, tok secrets.Token) error {
	s.tokens[memKey(client, email)] = tok
	return nil
}

func (s *memSecretsStore) GetToken(client, email string) (secrets.Token, error) {
	tok, ok := s.tokens[memKey(client, email)]
	if !ok {
		return secrets.Token{}, keyring.ErrKeyNotFound
	}
	return tok, nil
}

func (s *memSecretsStore) DeleteToken(client, email string) error {
	if _, ok := s.tokens[memKey(client, email)]; !ok {
		return keyring.ErrKeyNotFound
	}
	delete(s.tokens, memKey(client, email))
	return nil
}

func (s *memSecretsStore) ListTokens() ([]secrets.Token, error) {
	out := make([]secrets.Token, 0, len(s.tokens))
	for _, tok := range s.tokens {
		out = append(out, tok)
	}
	return out, nil
}

func (s *memSecretsStore) GetDefaultAccount(client string) (string, error) {
	return s.defaults[client], nil
}

func (s *memSecretsStore) SetDefaultAccount(client, email string) error {
	s.defaults[client] = email
	return nil
}

func stubAuthFlow(t *testing.T, email string) (*memSecretsStore, *googleauth.AuthorizeOptions) {
	t.Helper()
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())

	origAuth, origOpen, origFetch, origURL := authorizeGoogle, openSecretsStore, fetchAuthorizedEmail, manualAuthURL
	t.Cleanup(func() {
		authorizeGoogle, openSecretsStore, fetchAuthorizedEmail, manualAuthURL = origAuth, origOpen, origFetch, origURL
	})

	store := newMemSecretsStore()
	openSecretsStore = func() (secrets.Store, error) { return store, nil }

	var got googleauth.AuthorizeOptions
	authorizeGoogle = func(_ context.Context, opts googleauth.AuthorizeOptions) (string, error) {
		got = opts
		return "rt", nil
	}
	fetchAuthorizedEmail = func(context.Context, string, string, []string, time.Duration) (string, error) {
		return email, nil
	}
	return store, &got
}

func TestAuthAddCmd_JSON(t *testing.T) {
	store, gotOpts := stubAuthFlow(t, "user@example.com")

	out := captureStdout(t, func() {
		_ = captureStderr(t, func() {
			if err := Execute([]string{
				"--json", "auth", "add", "user@example.com",
				"--services", "calendar,gmail,calendar",
				"--manual", "--force-consent",
			}); err != nil {
				t.Fatalf("Execute: %v", err)
			}
		})
	})

	if !gotOpts.Manual || !gotOpts.ForceConsent {
		t.Fatalf("expected options set, got %+v", *gotOpts)
	}

	var parsed struct {
		Stored   bool     `json:"stored"`
		Email    string   `json:"email"`
		Services []string `json:"services"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("json parse: %v\nout=%q", err, out)
	}
	if !parsed.Stored || parsed.Email != "user@example.com" || len(parsed.Services) != 2 {
		t.Fatalf("unexpected response: %#v", parsed)
	}

	tok, err := store.GetToken(config.DefaultClientName, "user@example.com")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.RefreshToken != "rt" || strings.Join(tok.Services, ",") != "calendar,gmail" {
		t.Fatalf("unexpected token: %#v", tok)
	}
	if def, _ := store.GetDefaultAccount(config.DefaultClientName); def != "user@example.com" {
		t.Fatalf("default account not set: %q", def)
	}

	cfg, err := config.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.Account != "user@example.com" || cfg.EmailAddress != "user@example.com" {
		t.Fatalf("account not remembered: %#v", cfg)
	}
}

func TestAuthAddCmd_EmailMismatch(t *testing.T) {
	store, _ := stubAuthFlow(t, "other@example.com")

	cmd := &AuthAddCmd{Email: "user@example.com", ServicesCSV: "all"}
	err := cmd.Run(context.Background(), &RootFlags{})
	if err == nil || !strings.Contains(err.Error(), "other@example.com") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if len(store.tokens) != 0 {
		t.Fatalf("token stored for mismatched account")
	}
}

func TestAuthAddCmd_UnknownService(t *testing.T) {
	stubAuthFlow(t, "user@example.com")

	cmd := &AuthAddCmd{Email: "user@example.com", ServicesCSV: "drive"}
	if err := cmd.Run(context.Background(), &RootFlags{}); ExitCode(err) != 2 {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestAuthAddCmd_PrintURL(t *testing.T) {
	stubAuthFlow(t, "user@example.com")
	manualAuthURL = func(_ context.Context, opts googleauth.AuthorizeOptions) (googleauth.ManualAuthURLResult, error) {
		if !opts.Manual || len(opts.Scopes) == 0 {
			t.Fatalf("unexpected options: %+v", opts)
		}
		return googleauth.ManualAuthURLResult{URL: "https://accounts.example/auth?state=s"}, nil
	}

	out := captureStdout(t, func() {
		if err := runKong(t, &AuthCmd{}, []string{"add", "user@example.com", "--print-url"}, jsonContext(), nil); err != nil {
			t.Fatalf("auth add: %v", err)
		}
	})
	if got := decodeJSON(t, out); got["auth_url"] != "https://accounts.example/auth?state=s" {
		t.Fatalf("unexpected output: %v", got)
	}

	err := runKong(t, &AuthCmd{}, []string{"add", "user@example.com", "--print-url", "--auth-url", "http://127.0.0.1/cb"}, jsonContext(), nil)
	if ExitCode(err) != 2 {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestAuthListAndRemove(t *testing.T) {
	store, _ := stubAuthFlow(t, "user@example.com")
	_ = store.SetToken(config.DefaultClientName, "user@example.com", secrets.Token{
		Client: config.DefaultClientName, Email: "user@example.com", Services: []string{"calendar"},
	})

	out := captureStdout(t, func() {
		if err := runKong(t, &AuthCmd{}, []string{"list"}, jsonContext(), nil); err != nil {
			t.Fatalf("list: %v", err)
		}
	})
	accounts, _ := decodeJSON(t, out)["accounts"].([]any)
	if len(accounts) != 1 {
		t.Fatalf("unexpected accounts: %q", out)
	}

	out = captureStdout(t, func() {
		if err := runKong(t, &AuthCmd{}, []string{"remove", "user@example.com"}, jsonContext(), &RootFlags{Force: true}); err != nil {
			t.Fatalf("remove: %v", err)
		}
	})
	if got := decodeJSON(t, out); got["deleted"] != true {
		t.Fatalf("unexpected output: %v", got)
	}
	if len(store.tokens) != 0 {
		t.Fatalf("token not removed")
	}

	err := runKong(t, &AuthCmd{}, []string{"remove", "user@example.com"}, jsonContext(), &RootFlags{Force: true})
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		t.Fatalf("expected key not found, got %v", err)
	}
}

func TestAuthCredentialsSetAndList(t *testing.T) {
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())

	src := filepath.Join(t.TempDir(), "client_secret.json")
	body := `{"installed":{"client_id":"cid","client_secret":"csecret"}}`
	if err := os.WriteFile(src, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := captureStdout(t, func() {
		if err := runKong(t, &AuthCmd{}, []string{"credentials", src}, jsonContext(), nil); err != nil {
			t.Fatalf("credentials set: %v", err)
		}
	})
	if got := decodeJSON(t, out); got["saved"] != true || got["client"] != config.DefaultClientName {
		t.Fatalf("unexpected output: %v", got)
	}

	out = captureStdout(t, func() {
		if err := runKong(t, &AuthCmd{}, []string{"credentials", "list"}, jsonContext(), nil); err != nil {
			t.Fatalf("credentials list: %v", err)
		}
	})
	clients, _ := decodeJSON(t, out)["clients"].([]any)
	if len(clients) != 1 {
		t.Fatalf("unexpected clients: %q", out)
	}
}

func TestAuthStatus_JSON(t *testing.T) {
	t.Setenv("VACAL_CONFIG_DIR", t.TempDir())
	t.Setenv("VACAL_KEYRING_BACKEND", "file")

	out := captureStdout(t, func() {
		if err := runKong(t, &AuthCmd{}, []string{"status"}, jsonContext(), &RootFlags{Account: "a@b.com"}); err != nil {
			t.Fatalf("status: %v", err)
		}
	})
	got := decodeJSON(t, out)
	account, _ := got["account"].(map[string]any)
	if account["email"] != "a@b.com" || account["client"] != config.DefaultClientName || account["credentials_exists"] != false {
		t.Fatalf("unexpected status: %v", got)
	}
}

func TestParseAuthServices(t *testing.T) {
	all, err := parseAuthServices("all")
	if err != nil || len(all) != len(googleauth.AllServices()) {
		t.Fatalf("unexpected all: %v %v", all, err)
	}
	got, err := parseAuthServices("gmail, GMAIL")
	if err != nil || len(got) != 1 || got[0] != googleauth.ServiceGmail {
		t.Fatalf("unexpected: %v %v", got, err)
	}
}
