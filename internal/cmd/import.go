package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/steipete/vacationcal/internal/importer"
	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/timeparse"
	"github.com/steipete/vacationcal/internal/ui"
)

type ImportCmd struct {
	Calendar string `name:"calendar" aliases:"cal" help:"Calendar name or id (default from config, else primary)"`
	From     string `name:"from" help:"Start of the range (default: 90 days ago)"`
	To       string `name:"to" help:"End of the range, exclusive (default: 365 days from now)"`
	Match    string `name:"match" help:"Only import events whose summary contains this text (case-insensitive)"`
}

func (c *ImportCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}

	now := nowFn()
	from, to := now.AddDate(0, 0, -90), now.AddDate(0, 0, 365)
	if v := strings.TrimSpace(c.From); v != "" {
		if from, err = timeparse.ParseRangeExpr(v, now, time.Local); err != nil {
			return usage(err.Error())
		}
	}
	if v := strings.TrimSpace(c.To); v != "" {
		if to, err = timeparse.ParseRangeExpr(v, now, time.Local); err != nil {
			return usage(err.Error())
		}
	}
	if !to.After(from) {
		return usage("--to must be after --from")
	}

	name := strings.TrimSpace(c.Calendar)
	if name == "" {
		name = sess.cfg.Calendar
	}
	info, err := resolveCalendar(ctx, sess, flags, name)
	if err != nil {
		return err
	}
	svc, err := sess.service(ctx, flags)
	if err != nil {
		return err
	}

	batches, err := svc.FetchImport(ctx, info, from, to)
	if err != nil {
		return err
	}
	batches = filterBatches(batches, c.Match)

	if flags != nil && flags.DryRun {
		if outfmt.IsJSON(ctx) {
			return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"dry_run": true, "batches": batches})
		}
		writeBatchPreview(ctx, batches)
		return nil
	}

	ops := svc.CommitImport(batches)
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"operations": ops,
			"count":      len(ops),
		})
	}
	if outfmt.IsPlain(ctx) {
		for _, op := range ops {
			fmt.Fprintf(os.Stdout, "%s\t%d\t%s\n", op.ID, op.EventCount(), op.Description)
		}
		return nil
	}
	if u := ui.FromContext(ctx); u != nil {
		if len(ops) == 0 {
			u.Out().Println("Nothing new to import")
			return nil
		}
		for _, op := range ops {
			u.Out().Printf("%s  %s", op.ID, op.Description)
		}
		u.Out().Successf("Imported %d batches", len(ops))
	}
	return nil
}

func filterBatches(batches []importer.Batch, match string) []importer.Batch {
	match = strings.ToLower(strings.TrimSpace(match))
	if match == "" {
		return batches
	}
	out := batches[:0:0]
	for _, b := range batches {
		if strings.Contains(strings.ToLower(b.Summary), match) {
			out = append(out, b)
		}
	}
	return out
}

func writeBatchPreview(ctx context.Context, batches []importer.Batch) {
	tbl := outfmt.NewTable(ctx, os.Stdout, "EVENTS", "SUMMARY", "DESCRIPTION")
	for _, b := range batches {
		tbl.Row(len(b.Events), b.Summary, b.Description)
	}
	_ = tbl.Flush()
}
