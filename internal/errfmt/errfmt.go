// Package errfmt turns errors into messages for people at a terminal.
package errfmt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
	"github.com/alecthomas/kong"
	gapi "google.golang.org/api/googleapi"

	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/googleapi"
	"github.com/steipete/vacationcal/internal/vacation"
)

// UserFacingError carries a message meant to be shown as-is.
type UserFacingError struct {
	Message string
	Cause   error
}

func (e *UserFacingError) Error() string { return e.Message }
func (e *UserFacingError) Unwrap() error { return e.Cause }

func NewUserFacingError(message string, cause error) error {
	return &UserFacingError{Message: message, Cause: cause}
}

func Format(err error) string {
	if err == nil {
		return ""
	}

	var ufe *UserFacingError
	if errors.As(err, &ufe) {
		return ufe.Message
	}

	var parseErr *kong.ParseError
	if errors.As(err, &parseErr) {
		return formatParseError(parseErr)
	}

	var authErr *googleapi.AuthRequiredError
	if errors.As(err, &authErr) {
		return fmt.Sprintf("No refresh token for %s (client %s). Run: vacal auth add %s", authErr.Email, authErr.Client, authErr.Email)
	}

	var credErr *config.CredentialsMissingError
	if errors.As(err, &credErr) {
		return fmt.Sprintf("OAuth client credentials missing (%s).\nDownload a Desktop client JSON from Google Cloud Console and run: vacal auth credentials <path>", credErr.Path)
	}

	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "Secret not found in keyring. Run: vacal auth add <email>"
	}

	var verr *vacation.ValidationError
	if errors.As(err, &verr) {
		var b strings.Builder
		b.WriteString("Please fix the following:")
		for _, p := range verr.Problems {
			b.WriteString("\n  - ")
			b.WriteString(p)
		}
		return b.String()
	}

	var gerr *gapi.Error
	if errors.As(err, &gerr) {
		return formatGoogleAPIError(gerr)
	}

	return err.Error()
}

func formatParseError(err *kong.ParseError) string {
	msg := err.Error()
	if strings.Contains(msg, "did you mean") {
		return msg
	}
	if strings.Contains(msg, "unknown flag") || strings.Contains(msg, "unexpected argument") {
		return msg + "\nRun with --help for usage."
	}
	return msg
}

func formatGoogleAPIError(err *gapi.Error) string {
	reason := ""
	if len(err.Errors) > 0 {
		reason = err.Errors[0].Reason
	}
	msg := strings.TrimSpace(err.Message)
	if msg == "" {
		msg = strings.TrimSpace(err.Body)
	}
	if reason != "" {
		return fmt.Sprintf("Google API error (%d %s): %s", err.Code, reason, msg)
	}
	return fmt.Sprintf("Google API error (%d): %s", err.Code, msg)
}
