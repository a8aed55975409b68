package cmd

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/99designs/keyring"
	ggoogleapi "google.golang.org/api/googleapi"

	"github.com/steipete/vacationcal/internal/config"
	vacapi "github.com/steipete/vacationcal/internal/googleapi"
	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/vacation"
)

const (
	exitCodeOK               = 0
	exitCodeError            = 1
	exitCodeUsage            = 2
	emptyResultsExitCode     = 3
	exitCodeAuthRequired     = 4
	exitCodeNotFound         = 5
	exitCodePermissionDenied = 6
	exitCodeRateLimited      = 7
	exitCodeRetryable        = 8
	exitCodeConfig           = 10
	exitCodeCancelled        = 130
)

// exitCodeTable is the documented contract, in ascending order.
var exitCodeTable = []struct {
	Name string `json:"name"`
	Code int    `json:"code"`
}{
	{"ok", exitCodeOK},
	{"error", exitCodeError},
	{"usage", exitCodeUsage},
	{"empty_results", emptyResultsExitCode},
	{"auth_required", exitCodeAuthRequired},
	{"not_found", exitCodeNotFound},
	{"permission_denied", exitCodePermissionDenied},
	{"rate_limited", exitCodeRateLimited},
	{"retryable", exitCodeRetryable},
	{"config", exitCodeConfig},
	{"cancelled", exitCodeCancelled},
}

// sentinelExitCodes maps errors.Is targets to exit codes; first match wins.
var sentinelExitCodes = []struct {
	target error
	code   int
}{
	{context.Canceled, exitCodeCancelled},
	{keyring.ErrKeyNotFound, exitCodeAuthRequired},
	{vacation.ErrBatchNotFound, exitCodeNotFound},
	{vacation.ErrCalendarNotFound, exitCodeNotFound},
	{vacation.ErrNothingToUndo, emptyResultsExitCode},
	{vacation.ErrNothingToRedo, emptyResultsExitCode},
	{vacation.ErrNothingDeleted, emptyResultsExitCode},
	{context.DeadlineExceeded, exitCodeRetryable},
}

// stableExitCode attaches a documented exit code to known failures so
// scripts can branch on status instead of parsing stderr.
func stableExitCode(err error) error {
	var ee *ExitError
	if err == nil || errors.As(err, &ee) {
		return err
	}
	if code := classifyExit(err); code != exitCodeError {
		return &ExitError{Code: code, Err: err}
	}
	return err
}

func classifyExit(err error) int {
	var (
		authErr *vacapi.AuthRequiredError
		credErr *config.CredentialsMissingError
		verr    *vacation.ValidationError
		gerr    *ggoogleapi.Error
		ne      net.Error
	)
	switch {
	case errors.As(err, &authErr):
		return exitCodeAuthRequired
	case errors.As(err, &credErr):
		return exitCodeConfig
	case errors.As(err, &verr):
		return exitCodeUsage
	case errors.As(err, &gerr):
		return googleAPIExitCode(gerr)
	}
	for _, s := range sentinelExitCodes {
		if errors.Is(err, s.target) {
			return s.code
		}
	}
	if errors.As(err, &ne) && ne.Timeout() {
		return exitCodeRetryable
	}
	return exitCodeError
}

func googleAPIExitCode(err *ggoogleapi.Error) int {
	switch {
	case err == nil:
		return exitCodeError
	case err.Code == 401:
		return exitCodeAuthRequired
	case err.Code == 403 && rateLimited(err):
		return exitCodeRateLimited
	case err.Code == 403:
		return exitCodePermissionDenied
	case err.Code == 404, err.Code == 410:
		return exitCodeNotFound
	case err.Code == 429:
		return exitCodeRateLimited
	case err.Code >= 500:
		return exitCodeRetryable
	}
	return exitCodeError
}

func rateLimited(err *ggoogleapi.Error) bool {
	for _, item := range err.Errors {
		switch strings.ToLower(strings.TrimSpace(item.Reason)) {
		case "ratelimitexceeded", "userratelimitexceeded", "quotaexceeded", "dailylimitexceeded", "resourceexhausted":
			return true
		}
	}
	return false
}

// failEmptyExit turns an empty listing into exit code 3 when --fail-empty is set.
func failEmptyExit(failEmpty bool) error {
	if !failEmpty {
		return nil
	}
	return &ExitError{Code: emptyResultsExitCode}
}

type ExitCodesCmd struct{}

func (c *ExitCodesCmd) Run(ctx context.Context) error {
	if outfmt.IsJSON(ctx) {
		codes := make(map[string]int, len(exitCodeTable))
		for _, e := range exitCodeTable {
			codes[e.Name] = e.Code
		}
		// The contract is never reshaped by --results-only or --select.
		raw := outfmt.WithJSONTransform(ctx, outfmt.JSONTransform{})
		return outfmt.WriteJSON(raw, os.Stdout, map[string]any{"exit_codes": codes})
	}

	tbl := outfmt.NewTable(ctx, os.Stdout, "CODE", "NAME")
	for _, e := range exitCodeTable {
		tbl.Row(e.Code, e.Name)
	}
	return tbl.Flush()
}
