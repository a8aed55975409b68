package googleauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

var errNoProfileEmail = errors.New("gmail profile has no email address")

// gmailEndpoint overrides the Gmail API base URL; empty means the default.
var gmailEndpoint = ""

// EmailForRefreshToken exchanges refreshToken for an access token and asks
// Gmail which address it belongs to.
func EmailForRefreshToken(ctx context.Context, client string, refreshToken string, scopes []string, timeout time.Duration) (string, error) {
	creds, err := readClientCredentials(client)
	if err != nil {
		return "", err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cfg := oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauthEndpoint,
		Scopes:       scopes,
	}
	ts := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if gmailEndpoint != "" {
		opts = append(opts, option.WithEndpoint(gmailEndpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("create gmail service: %w", err)
	}
	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get gmail profile: %w", err)
	}
	email := strings.TrimSpace(profile.EmailAddress)
	if email == "" {
		return "", errNoProfileEmail
	}
	return email, nil
}
