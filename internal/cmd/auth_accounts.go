package cmd

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/secrets"
	"github.com/steipete/vacationcal/internal/ui"
)

type AuthListCmd struct{}

func (c *AuthListCmd) Run(ctx context.Context) error {
	store, err := openSecretsStore()
	if err != nil {
		return err
	}
	tokens, err := store.ListTokens()
	if err != nil {
		return err
	}
	slices.SortFunc(tokens, func(a, b secrets.Token) int {
		return cmp.Or(strings.Compare(a.Client, b.Client), strings.Compare(a.Email, b.Email))
	})

	if outfmt.IsJSON(ctx) {
		if tokens == nil {
			tokens = []secrets.Token{}
		}
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"accounts": tokens})
	}
	if len(tokens) == 0 {
		ui.FromContext(ctx).Err().Println("No accounts stored")
		return nil
	}

	tbl := outfmt.NewTable(ctx, os.Stdout, "EMAIL", "CLIENT", "SERVICES", "CREATED")
	for _, t := range tokens {
		created := ""
		if !t.CreatedAt.IsZero() {
			created = t.CreatedAt.Format(time.RFC3339)
		}
		tbl.Row(t.Email, t.Client, strings.Join(t.Services, ","), created)
	}
	return tbl.Flush()
}

type AuthRemoveCmd struct {
	Email string `arg:"" name:"email" help:"Account to forget"`
}

func (c *AuthRemoveCmd) Run(ctx context.Context, flags *RootFlags) error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return usage("empty email")
	}
	if err := confirmDestructive(ctx, flags, fmt.Sprintf("remove stored token for %s", email)); err != nil {
		return err
	}

	client, err := clientForAccount(ctx, email)
	if err != nil {
		return err
	}
	store, err := openSecretsStore()
	if err != nil {
		return err
	}
	if err := store.DeleteToken(client, email); err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"deleted": true, "email": email, "client": client})
	}
	return outfmt.WriteKV(os.Stdout,
		outfmt.KV{Key: "deleted", Value: true},
		outfmt.KV{Key: "email", Value: email},
		outfmt.KV{Key: "client", Value: client},
	)
}

type AuthStatusCmd struct{}

type authStatus struct {
	Config struct {
		Path   string `json:"path"`
		Exists bool   `json:"exists"`
	} `json:"config"`
	Keyring struct {
		Backend string `json:"backend"`
		Source  string `json:"source"`
	} `json:"keyring"`
	Account struct {
		Email             string `json:"email"`
		Client            string `json:"client"`
		CredentialsPath   string `json:"credentials_path"`
		CredentialsExists bool   `json:"credentials_exists"`
	} `json:"account"`
}

func (s authStatus) pairs() []outfmt.KV {
	return []outfmt.KV{
		{Key: "config_path", Value: s.Config.Path},
		{Key: "config_exists", Value: s.Config.Exists},
		{Key: "keyring_backend", Value: s.Keyring.Backend},
		{Key: "keyring_backend_source", Value: s.Keyring.Source},
		{Key: "account", Value: s.Account.Email},
		{Key: "client", Value: s.Account.Client},
		{Key: "credentials_path", Value: s.Account.CredentialsPath},
		{Key: "credentials_exists", Value: s.Account.CredentialsExists},
	}
}

func (c *AuthStatusCmd) Run(ctx context.Context, flags *RootFlags) error {
	var st authStatus
	var err error
	if st.Config.Path, err = config.ConfigPath(); err != nil {
		return err
	}
	if st.Config.Exists, err = config.ConfigExists(); err != nil {
		return err
	}
	backend, err := secrets.ResolveKeyringBackendInfo()
	if err != nil {
		return err
	}
	st.Keyring.Backend, st.Keyring.Source = backend.Value, backend.Source

	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}
	st.Account.Email = strings.TrimSpace(cfg.Account)
	if flags != nil && strings.TrimSpace(flags.Account) != "" {
		st.Account.Email = strings.TrimSpace(flags.Account)
	}
	if st.Account.Client, err = clientForAccount(ctx, st.Account.Email); err != nil {
		return err
	}
	st.Account.CredentialsPath, _ = config.ClientCredentialsPathFor(st.Account.Client)
	if fi, statErr := os.Stat(st.Account.CredentialsPath); statErr == nil && !fi.IsDir() {
		st.Account.CredentialsExists = true
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, st)
	}
	return outfmt.WriteKV(os.Stdout, st.pairs()...)
}
