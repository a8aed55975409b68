package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/steipete/vacationcal/internal/history"
	"github.com/steipete/vacationcal/internal/vacation"
)

// peek returns the newest operation of a collection without moving it.
func peek(store *history.Store, c history.Collection) (history.Operation, bool) {
	list := store.Collections()[c]
	if len(list) == 0 {
		return history.Operation{}, false
	}
	return list[len(list)-1], true
}

func describe(op history.Operation) string {
	return fmt.Sprintf("%s %s (%s)", op.Type, op.ID, op.Description)
}

type UndoCmd struct{}

func (c *UndoCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	op, ok := peek(sess.store, history.CollectionUndo)
	if !ok {
		return vacation.ErrNothingToUndo
	}
	if err := confirmDestructive(ctx, flags, "undo "+describe(op)); err != nil {
		return err
	}

	svc, err := sess.service(ctx, flags)
	if err != nil {
		return err
	}
	res, err := svc.Undo(ctx)
	if err != nil {
		return err
	}
	return writeResult(ctx, "undone", res)
}

type RedoCmd struct{}

func (c *RedoCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	op, ok := peek(sess.store, history.CollectionRedo)
	if !ok {
		return vacation.ErrNothingToRedo
	}
	if err := dryRunExit(ctx, flags, "redo "+describe(op), op); err != nil {
		return err
	}

	svc, err := sess.service(ctx, flags)
	if err != nil {
		return err
	}
	res, err := svc.Redo(ctx)
	if err != nil {
		return err
	}
	return writeResult(ctx, "redone", res)
}

type DeleteCmd struct {
	BatchID string `arg:"" optional:"" name:"batchId" help:"Batch (operation) id to delete"`
	Redo    bool   `name:"redo" help:"Delete again the batch most recently brought back with 'restore --last'"`
}

func (c *DeleteCmd) Run(ctx context.Context, flags *RootFlags) error {
	id := strings.TrimSpace(c.BatchID)
	if c.Redo == (id != "") {
		return usage("pass exactly one of <batchId> or --redo")
	}
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}

	var op history.Operation
	if c.Redo {
		var ok bool
		if op, ok = peek(sess.store, history.CollectionDeleteRedo); !ok {
			return vacation.ErrNothingToRedo
		}
	} else {
		var ok bool
		if op, ok = sess.store.BatchByID(id); !ok {
			return fmt.Errorf("%w: %s", vacation.ErrBatchNotFound, id)
		}
	}
	if err := confirmDestructive(ctx, flags, fmt.Sprintf("delete %d events of batch %s (%s)", len(op.AffectedEventIDs), op.ID, op.Description)); err != nil {
		return err
	}

	svc, err := sess.service(ctx, flags)
	if err != nil {
		return err
	}
	var res vacation.Result
	if c.Redo {
		res, err = svc.RedoDelete(ctx)
	} else {
		res, err = svc.Delete(ctx, op.ID)
	}
	if err != nil {
		return err
	}
	return writeResult(ctx, "deleted", res)
}

type RestoreCmd struct {
	BatchID string `arg:"" optional:"" name:"batchId" help:"Deleted batch id to restore"`
	Last    bool   `name:"last" help:"Restore the most recently deleted batch"`
}

func (c *RestoreCmd) Run(ctx context.Context, flags *RootFlags) error {
	id := strings.TrimSpace(c.BatchID)
	if c.Last == (id != "") {
		return usage("pass exactly one of <batchId> or --last")
	}
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}

	var op history.Operation
	if c.Last {
		var ok bool
		if op, ok = peek(sess.store, history.CollectionDelete); !ok {
			return vacation.ErrNothingDeleted
		}
	} else {
		var coll history.Collection
		var ok bool
		op, coll, ok = sess.store.OperationByID(id)
		if !ok || (coll != history.CollectionDelete && coll != history.CollectionDeleteRedo) {
			return fmt.Errorf("%w: %s is not a deleted batch", vacation.ErrBatchNotFound, id)
		}
	}
	if err := dryRunExit(ctx, flags, "restore "+describe(op), op); err != nil {
		return err
	}

	svc, err := sess.service(ctx, flags)
	if err != nil {
		return err
	}
	var res vacation.Result
	if c.Last {
		res, err = svc.UndoLastDelete(ctx)
	} else {
		res, err = svc.Restore(ctx, op.ID)
	}
	if err != nil {
		return err
	}
	return writeResult(ctx, "restored", res)
}
