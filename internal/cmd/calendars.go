package cmd

import (
	"context"
	"os"

	"github.com/steipete/vacationcal/internal/outfmt"
)

type CalendarsCmd struct {
	Writable  bool `name:"writable" help:"Only calendars you can add events to (owner or writer)"`
	FailEmpty bool `name:"fail-empty" help:"Exit with code 3 when nothing is listed"`
}

func (c *CalendarsCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	cal, _, err := sess.calendar(ctx, flags)
	if err != nil {
		return err
	}
	items, err := cal.ListCalendars(ctx)
	if err != nil {
		return err
	}
	if c.Writable {
		writable := items[:0]
		for _, it := range items {
			if it.Role == "owner" || it.Role == "writer" {
				writable = append(writable, it)
			}
		}
		items = writable
	}

	if outfmt.IsJSON(ctx) {
		if err := outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"calendars": items}); err != nil {
			return err
		}
		if len(items) == 0 {
			return failEmptyExit(c.FailEmpty)
		}
		return nil
	}

	tbl := outfmt.NewTable(ctx, os.Stdout, "ID", "NAME", "ROLE", "TIMEZONE")
	for _, it := range items {
		name := it.Summary
		if it.Primary {
			name += " (primary)"
		}
		tbl.Row(it.ID, name, it.Role, it.TimeZone)
	}
	if err := tbl.Flush(); err != nil {
		return err
	}
	if len(items) == 0 {
		return failEmptyExit(c.FailEmpty)
	}
	return nil
}
