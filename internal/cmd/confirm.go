package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/steipete/vacationcal/internal/input"
)

var errCancelled = errors.New("cancelled")

var confirmFn = input.Confirm

// confirmDestructive gates anything that removes events or history.
//
//	--dry-run   report the action and exit 0
//	--force     proceed without asking
//	--no-input  fail with a usage error instead of prompting
func confirmDestructive(ctx context.Context, flags *RootFlags, action string) error {
	var f RootFlags
	if flags != nil {
		f = *flags
	}
	switch {
	case f.DryRun:
		return dryRunExit(ctx, &f, action, nil)
	case f.Force:
		return nil
	case f.NoInput:
		return usagef("refusing to %s without --force (non-interactive)", action)
	}

	ok, err := confirmFn(ctx, fmt.Sprintf("Proceed to %s?", action))
	switch {
	case err != nil:
		return err
	case !ok:
		return &ExitError{Code: exitCodeError, Err: errCancelled}
	}
	return nil
}
