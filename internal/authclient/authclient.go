// Package authclient picks which stored OAuth client an account uses.
package authclient

import (
	"context"
	"strings"

	"github.com/steipete/vacationcal/internal/config"
)

type ctxKey struct{}

// WithClient records the --client flag value.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, ctxKey{}, strings.TrimSpace(client))
}

func ClientOverrideFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

func ResolveClient(ctx context.Context, email string) (string, error) {
	return ResolveClientWithOverride(email, ClientOverrideFromContext(ctx))
}

// ResolveClientWithOverride returns the override when set, then the client
// from config.json, then the default client.
func ResolveClientWithOverride(_ string, override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return config.NormalizeClientName(override)
	}
	cfg, err := config.ReadConfig()
	if err != nil {
		return "", err
	}
	return config.NormalizeClientNameOrDefault(cfg.Client)
}
