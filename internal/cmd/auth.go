package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/steipete/vacationcal/internal/authclient"
	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/googleauth"
	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/secrets"
	"github.com/steipete/vacationcal/internal/ui"
)

var (
	openSecretsStore     = secrets.OpenDefault
	authorizeGoogle      = googleauth.Authorize
	fetchAuthorizedEmail = googleauth.EmailForRefreshToken
	manualAuthURL        = googleauth.ManualAuthURL
)

const identityTimeout = 15 * time.Second

var errNoServices = errors.New("no services selected")

type AuthCmd struct {
	Credentials AuthCredentialsCmd `cmd:"" name:"credentials" help:"Manage OAuth client credentials"`
	Add         AuthAddCmd         `cmd:"" name:"add" aliases:"login" help:"Authorize an account and store its refresh token"`
	List        AuthListCmd        `cmd:"" name:"list" aliases:"ls" help:"List stored accounts"`
	Remove      AuthRemoveCmd      `cmd:"" name:"remove" aliases:"rm,logout" help:"Remove a stored refresh token"`
	Status      AuthStatusCmd      `cmd:"" name:"status" help:"Show auth configuration and keyring backend"`
}

type AuthAddCmd struct {
	Email        string        `arg:"" name:"email" help:"Google account to authorize"`
	Manual       bool          `name:"manual" help:"Browserless auth flow (paste redirect URL)"`
	PrintURL     bool          `name:"print-url" help:"Print the manual auth URL and exit; finish with --auth-url"`
	AuthURL      string        `name:"auth-url" help:"Redirect URL from the browser (manual flow)"`
	Timeout      time.Duration `name:"timeout" help:"Authorization timeout (manual flows default to 5m)"`
	ForceConsent bool          `name:"force-consent" help:"Force consent screen to obtain a refresh token"`
	ServicesCSV  string        `name:"services" help:"Services to authorize: all or comma-separated ${auth_services}" default:"all"`
}

// authRequest is what auth add will ask Google for.
type authRequest struct {
	Email        string               `json:"email"`
	Client       string               `json:"client"`
	Services     []googleauth.Service `json:"services"`
	Scopes       []string             `json:"scopes"`
	Manual       bool                 `json:"manual"`
	ForceConsent bool                 `json:"force_consent"`
}

func (r authRequest) options(c *AuthAddCmd) googleauth.AuthorizeOptions {
	return googleauth.AuthorizeOptions{
		Scopes:       r.Scopes,
		Manual:       r.Manual,
		ForceConsent: r.ForceConsent,
		Timeout:      c.Timeout,
		Client:       r.Client,
		AuthURL:      strings.TrimSpace(c.AuthURL),
	}
}

func (r authRequest) serviceNames() []string {
	out := make([]string, 0, len(r.Services))
	for _, s := range r.Services {
		out = append(out, string(s))
	}
	slices.Sort(out)
	return out
}

func (c *AuthAddCmd) request(ctx context.Context) (authRequest, error) {
	if c.PrintURL && strings.TrimSpace(c.AuthURL) != "" {
		return authRequest{}, usage("cannot combine --print-url with --auth-url")
	}
	client, err := authclient.ResolveClientWithOverride(c.Email, authclient.ClientOverrideFromContext(ctx))
	if err != nil {
		return authRequest{}, err
	}
	services, err := parseAuthServices(c.ServicesCSV)
	if err != nil {
		return authRequest{}, err
	}
	if len(services) == 0 {
		return authRequest{}, usage(errNoServices.Error())
	}
	scopes, err := googleauth.ScopesFor(services)
	if err != nil {
		return authRequest{}, err
	}
	return authRequest{
		Email:        strings.TrimSpace(c.Email),
		Client:       client,
		Services:     services,
		Scopes:       scopes,
		Manual:       c.Manual || c.PrintURL || strings.TrimSpace(c.AuthURL) != "",
		ForceConsent: c.ForceConsent,
	}, nil
}

func (c *AuthAddCmd) Run(ctx context.Context, flags *RootFlags) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	if c.PrintURL {
		return c.printURL(ctx, req)
	}
	if err := dryRunExit(ctx, flags, "authorize account", req); err != nil {
		return err
	}

	refresh, err := authorizeGoogle(ctx, req.options(c))
	if err != nil {
		return err
	}
	// The consent screen lets the user pick any account; insist on the one asked for.
	email, err := fetchAuthorizedEmail(ctx, req.Client, refresh, req.Scopes, identityTimeout)
	if err != nil {
		return fmt.Errorf("fetch authorized email: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(email), req.Email) {
		return fmt.Errorf("authorized as %s, expected %s", email, req.Email)
	}
	if err := storeAccount(ctx, req, email, refresh); err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"stored":   true,
			"email":    email,
			"services": req.serviceNames(),
			"client":   req.Client,
		})
	}
	return outfmt.WriteKV(os.Stdout,
		outfmt.KV{Key: "email", Value: email},
		outfmt.KV{Key: "services", Value: strings.Join(req.serviceNames(), ",")},
		outfmt.KV{Key: "client", Value: req.Client},
	)
}

func (c *AuthAddCmd) printURL(ctx context.Context, req authRequest) error {
	result, err := manualAuthURL(ctx, req.options(c))
	if err != nil {
		return err
	}
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"auth_url":     result.URL,
			"state_reused": result.StateReused,
		})
	}
	if err := outfmt.WriteKV(os.Stdout,
		outfmt.KV{Key: "auth_url", Value: result.URL},
		outfmt.KV{Key: "state_reused", Value: result.StateReused},
	); err != nil {
		return err
	}
	ui.FromContext(ctx).Err().Println("Open the URL, then run again with --auth-url <redirect-url>")
	return nil
}

// storeAccount saves the refresh token and makes email the default account
// for its client. The first account also becomes the config default and
// notification recipient.
func storeAccount(ctx context.Context, req authRequest, email, refresh string) error {
	store, err := openSecretsStore()
	if err != nil {
		return err
	}
	if err := store.SetToken(req.Client, email, secrets.Token{
		Client:       req.Client,
		Email:        email,
		Services:     req.serviceNames(),
		Scopes:       req.Scopes,
		CreatedAt:    nowFn().UTC(),
		RefreshToken: refresh,
	}); err != nil {
		return err
	}
	if err := store.SetDefaultAccount(req.Client, email); err != nil {
		return err
	}

	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}
	before := cfg
	if strings.TrimSpace(cfg.Account) == "" {
		cfg.Account = email
	}
	if strings.TrimSpace(cfg.EmailAddress) == "" {
		cfg.EmailAddress = email
	}
	if override := strings.TrimSpace(authclient.ClientOverrideFromContext(ctx)); override != "" {
		cfg.Client = override
	}
	if cfg.Account == before.Account && cfg.EmailAddress == before.EmailAddress && cfg.Client == before.Client {
		return nil
	}
	return config.WriteConfig(cfg)
}

// parseAuthServices accepts "all" or a comma list; duplicates collapse.
func parseAuthServices(csv string) ([]googleauth.Service, error) {
	switch strings.ToLower(strings.TrimSpace(csv)) {
	case "", "all", "user":
		return googleauth.AllServices(), nil
	}
	var out []googleauth.Service
	for _, raw := range splitCommaList(csv) {
		svc, err := googleauth.ParseService(raw)
		if err != nil {
			return nil, usage(err.Error())
		}
		if !slices.Contains(out, svc) {
			out = append(out, svc)
		}
	}
	return out, nil
}
