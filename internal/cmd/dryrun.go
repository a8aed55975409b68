package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/ui"
)

type dryRunReport struct {
	DryRun  bool   `json:"dry_run"`
	Op      string `json:"op"`
	Request any    `json:"request"`
}

// dryRunExit reports what a mutating command would do and stops it with
// exit code 0. Commands call it before touching the keyring, Google or the
// history file. It is a no-op unless --dry-run is set.
func dryRunExit(ctx context.Context, flags *RootFlags, op string, request any) error {
	if flags == nil || !flags.DryRun {
		return nil
	}
	stop := &ExitError{Code: exitCodeOK}
	report := dryRunReport{DryRun: true, Op: op, Request: request}

	switch mode := outfmt.FromContext(ctx); {
	case mode.JSON:
		raw := outfmt.WithJSONTransform(ctx, outfmt.JSONTransform{})
		if err := outfmt.WriteJSON(raw, os.Stdout, report); err != nil {
			return err
		}
	case mode.Plain:
		pairs := []outfmt.KV{{Key: "dry_run", Value: true}, {Key: "op", Value: op}}
		if request != nil {
			if b, err := json.Marshal(request); err == nil {
				pairs = append(pairs, outfmt.KV{Key: "request_json", Value: string(b)})
			}
		}
		if err := outfmt.WriteKV(os.Stdout, pairs...); err != nil {
			return err
		}
	default:
		out := ui.FromContext(ctx).Out()
		out.Printf("Dry run: would %s", op)
		if request != nil {
			if b, err := json.MarshalIndent(request, "", "  "); err == nil {
				out.Println(string(b))
			}
		}
	}
	return stop
}
