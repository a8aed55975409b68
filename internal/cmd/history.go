package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/history"
	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/timeparse"
	"github.com/steipete/vacationcal/internal/ui"
	"github.com/steipete/vacationcal/internal/vacation"
)

type HistoryCmd struct {
	List   HistoryListCmd   `cmd:"" default:"withargs" aliases:"ls" help:"List batches"`
	Show   HistoryShowCmd   `cmd:"" aliases:"get" help:"Show one batch and its events"`
	Stats  HistoryStatsCmd  `cmd:"" help:"Summarize the history"`
	Date   HistoryDateCmd   `cmd:"" aliases:"on" help:"Find batches with events near a date"`
	Export HistoryExportCmd `cmd:"" help:"Export history as JSON or iCalendar"`
	Prune  HistoryPruneCmd  `cmd:"" help:"Drop operations older than a given age"`
	Clear  HistoryClearCmd  `cmd:"" help:"Forget all history (calendar events are kept)"`
	Path   HistoryPathCmd   `cmd:"" aliases:"where" help:"Print the history file path"`
}

var stackNames = map[string]history.Collection{
	"undo":        history.CollectionUndo,
	"redo":        history.CollectionRedo,
	"deleted":     history.CollectionDelete,
	"delete":      history.CollectionDelete,
	"delete-redo": history.CollectionDeleteRedo,
}

type HistoryListCmd struct {
	Stack     string `name:"stack" help:"Which list: undo|redo|deleted|delete-redo|all" default:"undo" enum:"undo,redo,deleted,delete,delete-redo,all"`
	Max       int    `name:"max" aliases:"limit" help:"Show at most this many batches (0 = all)" default:"0"`
	FailEmpty bool   `name:"fail-empty" help:"Exit with code 3 when nothing is listed"`
}

type listedOperation struct {
	Stack history.Collection `json:"stack"`
	history.Operation
}

func (c *HistoryListCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}

	var rows []listedOperation
	add := func(coll history.Collection, ops []history.Operation) {
		for _, op := range ops {
			rows = append(rows, listedOperation{Stack: coll, Operation: op})
		}
	}
	switch c.Stack {
	case "all":
		add(history.CollectionUndo, sess.store.UndoableBatches())
		add(history.CollectionRedo, sess.store.RedoableBatches())
		add(history.CollectionDelete, newestFirst(sess.store.DeletedBatches()))
		add(history.CollectionDeleteRedo, sess.store.DeleteRedoBatches())
	case "undo":
		add(history.CollectionUndo, sess.store.UndoableBatches())
	case "redo":
		add(history.CollectionRedo, sess.store.RedoableBatches())
	case "delete-redo":
		add(history.CollectionDeleteRedo, sess.store.DeleteRedoBatches())
	default:
		add(stackNames[c.Stack], newestFirst(sess.store.DeletedBatches()))
	}
	if c.Max > 0 && len(rows) > c.Max {
		rows = rows[:c.Max]
	}

	if outfmt.IsJSON(ctx) {
		if err := outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"operations": rows,
			"count":      len(rows),
		}); err != nil {
			return err
		}
	} else if len(rows) == 0 {
		if u := ui.FromContext(ctx); u != nil {
			u.Err().Println("No batches")
		}
	} else {
		writeOperationTable(ctx, rows)
	}
	if len(rows) == 0 {
		return failEmptyExit(c.FailEmpty)
	}
	return nil
}

func newestFirst(ops []history.Operation) []history.Operation {
	out := make([]history.Operation, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		out = append(out, ops[i])
	}
	return out
}

func writeOperationTable(ctx context.Context, rows []listedOperation) {
	tbl := outfmt.NewTable(ctx, os.Stdout, "ID", "STACK", "TYPE", "EVENTS", "DATES", "CREATED", "DESCRIPTION")
	for _, r := range rows {
		tbl.Row(r.ID, stackLabel(r.Stack), r.Type, r.EventCount(), dateSpan(r.Operation),
			r.CreatedAt.Format("2006-01-02 15:04"), r.Description)
	}
	_ = tbl.Flush()
}

func stackLabel(c history.Collection) string {
	switch c {
	case history.CollectionUndo:
		return "undo"
	case history.CollectionRedo:
		return "redo"
	case history.CollectionDelete:
		return "deleted"
	case history.CollectionDeleteRedo:
		return "delete-redo"
	default:
		return string(c)
	}
}

func dateSpan(op history.Operation) string {
	first, last, ok := op.DateSpan()
	if !ok {
		return "-"
	}
	if first.Equal(last) {
		return first.Format("2006-01-02")
	}
	return first.Format("2006-01-02") + ".." + last.Format("2006-01-02")
}

type HistoryShowCmd struct {
	BatchID string `arg:"" name:"batchId" help:"Operation id"`
}

func (c *HistoryShowCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	op, coll, ok := sess.store.OperationByID(strings.TrimSpace(c.BatchID))
	if !ok {
		return fmt.Errorf("%w: %s", vacation.ErrBatchNotFound, c.BatchID)
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, listedOperation{Stack: coll, Operation: op})
	}

	if err := outfmt.WriteKV(os.Stdout,
		outfmt.KV{Key: "id", Value: op.ID},
		outfmt.KV{Key: "stack", Value: stackLabel(coll)},
		outfmt.KV{Key: "type", Value: op.Type},
		outfmt.KV{Key: "created", Value: op.CreatedAt.String()},
		outfmt.KV{Key: "description", Value: op.Description},
		outfmt.KV{Key: "events", Value: op.EventCount()},
	); err != nil {
		return err
	}

	affected := make(map[string]bool, len(op.AffectedEventIDs))
	for _, id := range op.AffectedEventIDs {
		affected[id] = true
	}
	if !outfmt.IsPlain(ctx) {
		fmt.Fprintln(os.Stdout)
	}
	tbl := outfmt.NewTable(ctx, os.Stdout, "EVENT", "START", "END", "CALENDAR", "NAME", "LIVE")
	for _, ev := range op.EventSnapshots {
		live := op.Type != history.OpUpdate || affected[ev.EventID]
		tbl.Row(ev.EventID, ev.StartTime.String(), ev.EndTime.String(), ev.CalendarID, ev.EventName, live)
	}
	return tbl.Flush()
}

type HistoryStatsCmd struct{}

func (c *HistoryStatsCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	st := sess.store.Stats()
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, st)
	}
	return outfmt.WriteKV(os.Stdout,
		outfmt.KV{Key: "total_batches", Value: st.TotalBatches},
		outfmt.KV{Key: "undoable_batches", Value: st.UndoableBatches},
		outfmt.KV{Key: "undoable_events", Value: st.UndoableEvents},
		outfmt.KV{Key: "redoable_batches", Value: st.RedoableBatches},
		outfmt.KV{Key: "redoable_events", Value: st.RedoableEvents},
		outfmt.KV{Key: "deleted_batches", Value: st.DeletedBatches},
		outfmt.KV{Key: "deleted_events", Value: st.DeletedEvents},
	)
}

type HistoryDateCmd struct {
	Date      string `arg:"" name:"date" help:"Day to look around (YYYY-MM-DD, today, monday, ...)"`
	Range     int    `name:"range" help:"Days before and after to include" default:"7"`
	FailEmpty bool   `name:"fail-empty" help:"Exit with code 3 when nothing matches"`
}

func (c *HistoryDateCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	day, err := timeparse.ParseRangeExpr(c.Date, nowFn(), time.Local)
	if err != nil {
		return usage(err.Error())
	}
	ops := sess.store.BatchesForDate(day, c.Range)

	rows := make([]listedOperation, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, listedOperation{Stack: history.CollectionUndo, Operation: op})
	}
	if outfmt.IsJSON(ctx) {
		if err := outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"date":       day.Format("2006-01-02"),
			"range":      c.Range,
			"operations": rows,
		}); err != nil {
			return err
		}
	} else if len(rows) > 0 {
		writeOperationTable(ctx, rows)
	} else if u := ui.FromContext(ctx); u != nil {
		u.Err().Printf("No batches within %d days of %s", c.Range, day.Format("2006-01-02"))
	}
	if len(rows) == 0 {
		return failEmptyExit(c.FailEmpty)
	}
	return nil
}

type HistoryExportCmd struct {
	ICS bool   `name:"ics" help:"Write iCalendar (.ics) instead of JSON"`
	Out string `name:"out" short:"o" help:"Output file (default: stdout)"`
	All bool   `name:"all" help:"Include redo and deleted batches in the iCalendar export"`
}

func (c *HistoryExportCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if strings.TrimSpace(c.Out) != "" {
		path, err := config.ExpandPath(c.Out)
		if err != nil {
			return err
		}
		f, err := os.Create(path) //nolint:gosec // user-provided path
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	if c.ICS {
		ops := sess.store.UndoableBatches()
		if c.All {
			ops = append(ops, sess.store.RedoableBatches()...)
			ops = append(ops, sess.store.DeletedBatches()...)
		}
		return history.WriteICS(w, ops)
	}

	cols := sess.store.Collections()
	return outfmt.WriteJSON(outfmt.WithJSONTransform(ctx, outfmt.JSONTransform{}), w, map[string]any{
		"version":           history.SchemaVersion,
		"undo_stack":        nonNilOps(cols[history.CollectionUndo]),
		"redo_stack":        nonNilOps(cols[history.CollectionRedo]),
		"delete_stack":      nonNilOps(cols[history.CollectionDelete]),
		"delete_redo_stack": nonNilOps(cols[history.CollectionDeleteRedo]),
	})
}

func nonNilOps(ops []history.Operation) []history.Operation {
	if ops == nil {
		return []history.Operation{}
	}
	return ops
}

type HistoryPruneCmd struct {
	OlderThan string `name:"older-than" required:"" help:"Age cutoff: 30d, 2w, 72h"`
}

func (c *HistoryPruneCmd) Run(ctx context.Context, flags *RootFlags) error {
	age, err := timeparse.ParseAge(c.OlderThan)
	if err != nil {
		return usage(err.Error())
	}
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	if err := confirmDestructive(ctx, flags, fmt.Sprintf("forget operations older than %s", c.OlderThan)); err != nil {
		return err
	}
	removed := sess.store.PruneOlderThan(age)
	if removed > 0 {
		if err := sess.save(); err != nil {
			return err
		}
	}
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"removed": removed})
	}
	fmt.Fprintf(os.Stdout, "removed\t%d\n", removed)
	return nil
}

type HistoryClearCmd struct{}

func (c *HistoryClearCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	st := sess.store.Stats()
	if err := confirmDestructive(ctx, flags, fmt.Sprintf("forget %d batches (calendar events stay)", st.TotalBatches)); err != nil {
		return err
	}
	sess.store.Clear()
	if err := sess.save(); err != nil {
		return err
	}
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"cleared": true, "removed": st.TotalBatches})
	}
	fmt.Fprintf(os.Stdout, "cleared\t%d\n", st.TotalBatches)
	return nil
}

type HistoryPathCmd struct{}

func (c *HistoryPathCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	path := sess.store.Path(sess.dir)
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, outfmt.PathPayload(path))
	}
	fmt.Fprintln(os.Stdout, path)
	return nil
}
