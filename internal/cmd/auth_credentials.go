package cmd

import (
	"context"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/steipete/vacationcal/internal/authclient"
	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/ui"
)

type AuthCredentialsCmd struct {
	Set  AuthCredentialsSetCmd  `cmd:"" default:"withargs" help:"Store OAuth client credentials"`
	List AuthCredentialsListCmd `cmd:"" name:"list" help:"List stored OAuth client credentials"`
}

type AuthCredentialsSetCmd struct {
	Path string `arg:"" name:"credentials" help:"Path to the downloaded client_secret JSON, or '-' for stdin"`
}

func readCredentialsSource(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(expanded) //nolint:gosec // user-provided path
}

func (c *AuthCredentialsSetCmd) Run(ctx context.Context, flags *RootFlags) error {
	client, err := config.NormalizeClientNameOrDefault(authclient.ClientOverrideFromContext(ctx))
	if err != nil {
		return usage(err.Error())
	}
	raw, err := readCredentialsSource(c.Path)
	if err != nil {
		return err
	}
	creds, err := config.ParseGoogleOAuthClientJSON(raw)
	if err != nil {
		return err
	}

	dest, _ := config.ClientCredentialsPathFor(client)
	if err := dryRunExit(ctx, flags, "store OAuth client credentials", map[string]any{
		"client": client,
		"path":   dest,
	}); err != nil {
		return err
	}
	if err := config.WriteClientCredentialsFor(client, creds); err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"saved": true, "path": dest, "client": client})
	}
	return outfmt.WriteKV(os.Stdout, outfmt.KV{Key: "path", Value: dest}, outfmt.KV{Key: "client", Value: client})
}

type AuthCredentialsListCmd struct{}

func (c *AuthCredentialsListCmd) Run(ctx context.Context) error {
	creds, err := config.ListClientCredentials()
	if err != nil {
		return err
	}
	slices.SortFunc(creds, func(a, b config.ClientCredentialsInfo) int { return strings.Compare(a.Client, b.Client) })

	if outfmt.IsJSON(ctx) {
		if creds == nil {
			creds = []config.ClientCredentialsInfo{}
		}
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"clients": creds})
	}
	if len(creds) == 0 {
		ui.FromContext(ctx).Err().Println("No OAuth client credentials stored")
		return nil
	}
	tbl := outfmt.NewTable(ctx, os.Stdout, "CLIENT", "PATH", "DEFAULT")
	for _, e := range creds {
		tbl.Row(e.Client, e.Path, e.Default)
	}
	return tbl.Flush()
}
