// Package vacation performs calendar work for batches and records the
// outcome in the batch history.
package vacation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/steipete/vacationcal/internal/history"
	"github.com/steipete/vacationcal/internal/importer"
	"github.com/steipete/vacationcal/internal/notify"
	"github.com/steipete/vacationcal/internal/schedule"
)

var (
	ErrNothingToUndo    = errors.New("nothing to undo")
	ErrNothingToRedo    = errors.New("nothing to redo")
	ErrNothingDeleted   = errors.New("no deleted batches")
	ErrBatchNotFound    = errors.New("batch not found")
	ErrCalendarNotFound = errors.New("calendar not found")
)

// ValidationError carries every problem found in a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Problems, "; ")
}

// Result summarizes one executed action.
type Result struct {
	Operation history.Operation `json:"operation"`
	Created   int               `json:"created"`
	Deleted   int               `json:"deleted"`
	Skipped   int               `json:"skipped"`
	Stopped   bool              `json:"stopped,omitempty"`
}

// Service runs batch actions against a Calendar and keeps the store in sync.
// Every store mutation is followed by a save when a history dir is set.
type Service struct {
	cal      Calendar
	notifier Notifier
	store    *history.Store

	historyDir string
	loc        *time.Location
	now        func() time.Time
	newID      func() string
	log        *slog.Logger
	progress   func(string)
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithHistoryDir enables saving after every mutation.
func WithHistoryDir(dir string) Option { return func(s *Service) { s.historyDir = dir } }

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithProgress receives one human readable line per calendar call.
func WithProgress(fn func(string)) Option { return func(s *Service) { s.progress = fn } }

func New(cal Calendar, store *history.Store, opts ...Option) *Service {
	s := &Service{
		cal:   cal,
		store: store,
		loc:   time.Local,
		now:   time.Now,
		newID: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Store() *history.Store { return s.store }

// Create schedules req on calendarID and records the batch. When ctx is
// cancelled midway the events created so far are still recorded and the
// context error is returned alongside the partial result.
func (s *Service) Create(ctx context.Context, calendarID string, req schedule.Request) (Result, error) {
	if req.Location == nil {
		req.Location = s.loc
	}
	if problems := schedule.Validate(req); len(problems) > 0 {
		return Result{}, &ValidationError{Problems: problems}
	}
	slots, err := schedule.Build(req)
	if err != nil {
		return Result{}, err
	}

	batchID := s.newID()
	created, runErr := s.createSlots(ctx, calendarID, batchID, req, slots, "Created event")
	res := Result{Created: len(created)}
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		res.Stopped = true
		s.report("Stopped before completion")
	}

	if len(created) > 0 {
		op := s.record(history.Operation{
			ID:               batchID,
			Type:             history.OpCreate,
			AffectedEventIDs: snapshotIDs(created),
			EventSnapshots:   created,
			Description:      fmt.Sprintf("%d events: %s", len(created), req.EventName),
		})
		res.Operation = op
	}
	if runErr != nil {
		return res, runErr
	}

	if req.SendEmail && len(created) > 0 {
		hours := req.DayLengthHours * float64(len(created))
		s.sendNotification(ctx, notify.CreatedMessage(req.NotificationEmail, req.EventName, req.StartDate, req.EndDate, len(created), hours))
	}
	return res, nil
}

// Update replaces the events of batch id with a new schedule. The old batch
// is replaced by an update operation whose snapshots are old + new and whose
// affected ids are the new events.
func (s *Service) Update(ctx context.Context, id, calendarID string, req schedule.Request) (Result, error) {
	op, ok := s.store.BatchByID(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if req.Location == nil {
		req.Location = s.loc
	}
	if problems := schedule.Validate(req); len(problems) > 0 {
		return Result{}, &ValidationError{Problems: problems}
	}
	slots, err := schedule.Build(req)
	if err != nil {
		return Result{}, err
	}

	old := liveSnapshots(op)
	deleted, skipped, err := s.deleteSnapshots(ctx, old, "Deleted old event")
	if err != nil {
		return Result{Deleted: deleted, Skipped: skipped}, err
	}
	s.report(fmt.Sprintf("Deleted %d old events", deleted+skipped))

	batchID := s.newID()
	created, runErr := s.createSlots(ctx, calendarID, batchID, req, slots, "Created updated event")

	s.store.RemoveOperation(id)
	snaps := append(append([]history.EventSnapshot(nil), old...), created...)
	recorded := s.record(history.Operation{
		ID:               batchID,
		Type:             history.OpUpdate,
		AffectedEventIDs: snapshotIDs(created),
		EventSnapshots:   snaps,
		Description:      fmt.Sprintf("%d updated events: %s", len(created), req.EventName),
	})
	res := Result{Operation: recorded, Created: len(created), Deleted: deleted, Skipped: skipped}
	if runErr != nil {
		return res, runErr
	}

	if req.SendEmail && len(created) > 0 {
		hours := req.DayLengthHours * float64(len(created))
		s.sendNotification(ctx, notify.UpdatedMessage(req.NotificationEmail, req.EventName, req.StartDate, req.EndDate, len(created), hours))
	}
	return res, nil
}

// Undo reverses the most recent undoable operation. On failure the store is
// rolled back so the operation stays undoable.
func (s *Service) Undo(ctx context.Context) (Result, error) {
	op, ok := s.store.Undo()
	if !ok {
		return Result{}, ErrNothingToUndo
	}

	res, err := s.reverse(ctx, op)
	if err != nil {
		s.store.Redo()
		s.save()
		return res, err
	}
	s.save()
	return res, nil
}

// Redo re-applies the most recently undone operation.
func (s *Service) Redo(ctx context.Context) (Result, error) {
	op, ok := s.store.Redo()
	if !ok {
		return Result{}, ErrNothingToRedo
	}

	res, err := s.reapply(ctx, op)
	if err != nil {
		s.store.Undo()
		s.save()
		return res, err
	}
	s.save()
	return res, nil
}

func (s *Service) reverse(ctx context.Context, op history.Operation) (Result, error) {
	res := Result{Operation: op}
	switch op.Type {
	case history.OpCreate:
		deleted, skipped, err := s.deleteSnapshots(ctx, op.EventSnapshots, "Deleted event")
		res.Deleted, res.Skipped = deleted, skipped
		if err != nil {
			return res, err
		}
		s.notifyDeleted(ctx, op, deleted, skipped)
		return res, nil
	case history.OpUpdate:
		oldSnaps, newSnaps := splitUpdate(op)
		deleted, skipped, err := s.deleteSnapshots(ctx, newSnaps, "Deleted updated event")
		res.Deleted, res.Skipped = deleted, skipped
		if err != nil {
			return res, err
		}
		recreated, err := s.recreate(ctx, oldSnaps, "Restored event")
		res.Created = len(recreated)
		if err != nil {
			s.discard(ctx, recreated)
			return res, err
		}
		s.store.ReplaceSnapshots(op.ID, op.AffectedEventIDs, append(recreated, newSnaps...))
		res.Operation, _, _ = s.store.OperationByID(op.ID)
		return res, nil
	default:
		return res, fmt.Errorf("cannot undo %s operation %s", op.Type, op.ID)
	}
}

func (s *Service) reapply(ctx context.Context, op history.Operation) (Result, error) {
	res := Result{Operation: op}
	switch op.Type {
	case history.OpCreate:
		recreated, err := s.recreate(ctx, op.EventSnapshots, "Recreated event")
		res.Created = len(recreated)
		if err != nil {
			s.discard(ctx, recreated)
			return res, err
		}
		s.store.ReplaceSnapshots(op.ID, snapshotIDs(recreated), recreated)
	case history.OpUpdate:
		oldSnaps, newSnaps := splitUpdate(op)
		deleted, skipped, err := s.deleteSnapshots(ctx, oldSnaps, "Deleted old event")
		res.Deleted, res.Skipped = deleted, skipped
		if err != nil {
			return res, err
		}
		recreated, err := s.recreate(ctx, newSnaps, "Recreated updated event")
		res.Created = len(recreated)
		if err != nil {
			s.discard(ctx, recreated)
			return res, err
		}
		s.store.ReplaceSnapshots(op.ID, snapshotIDs(recreated), append(append([]history.EventSnapshot(nil), oldSnaps...), recreated...))
	default:
		return res, fmt.Errorf("cannot redo %s operation %s", op.Type, op.ID)
	}
	res.Operation, _, _ = s.store.OperationByID(op.ID)
	return res, nil
}

// Delete removes the events of batch id and moves it to the delete stack
// under the same id.
func (s *Service) Delete(ctx context.Context, id string) (Result, error) {
	op, ok := s.store.BatchByID(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}

	live := liveSnapshots(op)
	deleted, skipped, err := s.deleteSnapshots(ctx, live, "Deleted event")
	res := Result{Deleted: deleted, Skipped: skipped}
	if err != nil {
		return res, err
	}

	res.Operation = s.record(history.Operation{
		ID:               op.ID,
		Type:             history.OpDelete,
		AffectedEventIDs: snapshotIDs(live),
		EventSnapshots:   live,
		Description:      history.DeletedPrefix + strings.TrimPrefix(op.Description, history.DeletedPrefix),
	})
	s.notifyDeleted(ctx, op, deleted, skipped)
	return res, nil
}

// Restore recreates the events of a deleted batch, in any order relative to
// other deletions, and makes it undoable again. Batches on the delete-redo
// stack already have live events and are only moved.
func (s *Service) Restore(ctx context.Context, id string) (Result, error) {
	op, c, ok := s.store.OperationByID(id)
	if !ok || (c != history.CollectionDelete && c != history.CollectionDeleteRedo) {
		return Result{}, fmt.Errorf("%w: %s is not a deleted batch", ErrBatchNotFound, id)
	}

	var recreated []history.EventSnapshot
	if c == history.CollectionDelete {
		var err error
		recreated, err = s.recreate(ctx, op.EventSnapshots, "Restored event")
		if err != nil {
			s.discard(ctx, recreated)
			return Result{}, err
		}
	}

	restored, _ := s.store.Restore(id, recreated)
	s.save()
	return Result{Operation: restored, Created: len(recreated)}, nil
}

// UndoLastDelete recreates the most recently deleted batch and parks it on
// the delete-redo stack so RedoDelete can remove it again.
func (s *Service) UndoLastDelete(ctx context.Context) (Result, error) {
	op, ok := s.store.UndoDelete()
	if !ok {
		return Result{}, ErrNothingDeleted
	}
	recreated, err := s.recreate(ctx, op.EventSnapshots, "Restored event")
	if err != nil {
		s.discard(ctx, recreated)
		s.store.RedoDelete()
		s.save()
		return Result{Operation: op}, err
	}
	s.store.ReplaceSnapshots(op.ID, snapshotIDs(recreated), recreated)
	s.save()
	op, _, _ = s.store.OperationByID(op.ID)
	return Result{Operation: op, Created: len(recreated)}, nil
}

// RedoDelete deletes again the batch most recently brought back by
// UndoLastDelete.
func (s *Service) RedoDelete(ctx context.Context) (Result, error) {
	op, ok := s.store.RedoDelete()
	if !ok {
		return Result{}, ErrNothingToRedo
	}
	deleted, skipped, err := s.deleteSnapshots(ctx, op.EventSnapshots, "Deleted event")
	res := Result{Operation: op, Deleted: deleted, Skipped: skipped}
	if err != nil {
		s.store.UndoDelete()
		s.save()
		return res, err
	}
	s.save()
	s.notifyDeleted(ctx, op, deleted, skipped)
	return res, nil
}

// FetchImport lists events in [from, to) and groups them into batches,
// leaving out events the history already tracks.
func (s *Service) FetchImport(ctx context.Context, cal CalendarInfo, from, to time.Time) ([]importer.Batch, error) {
	items, err := s.cal.ListEvents(ctx, cal.ID, from, to)
	if err != nil {
		return nil, err
	}
	s.report(fmt.Sprintf("Fetched %d events", len(items)))
	name := cal.Summary
	if cal.Primary && name == "primary" {
		name = ""
	}
	batches := importer.Group(items, cal.ID, name, s.now())
	return importer.WithoutTracked(batches, s.store.TrackedEventIDs()), nil
}

// CommitImport records each batch as a create operation and returns the
// ones still in history afterwards. Batches pushed out by the history cap
// are reported and left out of the result.
func (s *Service) CommitImport(batches []importer.Batch) []history.Operation {
	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		if len(b.Events) == 0 {
			continue
		}
		id := s.newID()
		snaps := make([]history.EventSnapshot, 0, len(b.Events))
		for _, ev := range b.Events {
			ev.BatchID = id
			snaps = append(snaps, ev)
		}
		s.store.Add(history.Operation{
			ID:               id,
			Type:             history.OpCreate,
			AffectedEventIDs: snapshotIDs(snaps),
			EventSnapshots:   snaps,
			Description:      b.Description,
		})
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	s.save()

	out := make([]history.Operation, 0, len(ids))
	for _, id := range ids {
		if op, ok := s.store.BatchByID(id); ok {
			out = append(out, op)
		}
	}
	if evicted := len(ids) - len(out); evicted > 0 {
		s.log.Warn("imported batches exceeded history limit", "evicted", evicted, "max_history", s.store.MaxHistory())
		s.report(fmt.Sprintf("%d imported batches did not fit into history (max %d)", evicted, s.store.MaxHistory()))
	}
	return out
}

func (s *Service) createSlots(ctx context.Context, calendarID, batchID string, req schedule.Request, slots []schedule.Slot, verb string) ([]history.EventSnapshot, error) {
	createdAt := history.NaiveAt(s.now())
	snap := schedule.Snapshot(req)
	out := make([]history.EventSnapshot, 0, len(slots))
	for _, slot := range slots {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		eventID, err := s.cal.CreateEvent(ctx, calendarID, NewEvent{Summary: req.EventName, Start: slot.Start, End: slot.End})
		if err != nil {
			return out, err
		}
		out = append(out, history.EventSnapshot{
			EventID:         eventID,
			CalendarID:      calendarID,
			CalendarName:    req.CalendarName,
			EventName:       req.EventName,
			StartTime:       history.At(slot.Start),
			EndTime:         history.At(slot.End),
			CreatedAt:       createdAt,
			BatchID:         batchID,
			RequestSnapshot: snap,
		})
		s.report(fmt.Sprintf("%s on %s from %s to %s", verb, slot.Start.Format("2006-01-02"), slot.Start.Format("15:04"), slot.End.Format("15:04")))
	}
	return out, nil
}

// recreate creates a copy of every snapshot and returns the snapshots with
// their new provider ids. On error the copies made so far are returned.
func (s *Service) recreate(ctx context.Context, snaps []history.EventSnapshot, verb string) ([]history.EventSnapshot, error) {
	out := make([]history.EventSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		start, end := snap.StartTime.Resolve(s.loc), snap.EndTime.Resolve(s.loc)
		eventID, err := s.cal.CreateEvent(ctx, snap.CalendarID, NewEvent{Summary: snap.EventName, Start: start, End: end})
		if err != nil {
			return out, err
		}
		snap.EventID = eventID
		out = append(out, snap)
		s.report(fmt.Sprintf("%s %s on %s", verb, snap.EventName, start.Format("2006-01-02")))
	}
	return out, nil
}

// deleteSnapshots deletes every event. Events already gone count as skipped.
func (s *Service) deleteSnapshots(ctx context.Context, snaps []history.EventSnapshot, verb string) (deleted, skipped int, err error) {
	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return deleted, skipped, err
		}
		err := s.cal.DeleteEvent(ctx, snap.CalendarID, snap.EventID)
		switch {
		case err == nil:
			deleted++
			s.report(fmt.Sprintf("%s %s (%s) on %s", verb, snap.EventID, snap.EventName, snap.StartTime.CivilDate().Format("2006-01-02")))
		case errors.Is(err, ErrEventGone):
			skipped++
			s.report(fmt.Sprintf("Skipped event %s (%s) - already deleted or not found", snap.EventID, snap.EventName))
		default:
			return deleted, skipped, err
		}
	}
	return deleted, skipped, nil
}

// discard removes events created by a failed multi-step action.
func (s *Service) discard(ctx context.Context, snaps []history.EventSnapshot) {
	if len(snaps) == 0 {
		return
	}
	if _, _, err := s.deleteSnapshots(context.WithoutCancel(ctx), snaps, "Rolled back event"); err != nil {
		s.log.Warn("rollback failed; events left on calendar", "count", len(snaps), "err", err)
	}
}

func (s *Service) record(op history.Operation) history.Operation {
	id := s.store.Add(op)
	s.save()
	recorded, _, _ := s.store.OperationByID(id)
	return recorded
}

func (s *Service) save() {
	if s.historyDir == "" {
		return
	}
	// Failures reach the user through the store's save-failed hook.
	_ = s.store.Save(s.historyDir)
}

func (s *Service) report(line string) {
	s.log.Debug(line)
	if s.progress != nil {
		s.progress(line)
	}
}

func (s *Service) notifyDeleted(ctx context.Context, op history.Operation, deleted, skipped int) {
	to, enabled := notificationTarget(op)
	if !enabled || deleted+skipped == 0 {
		return
	}
	names := map[string]bool{}
	for _, ev := range op.EventSnapshots {
		names[ev.EventName] = true
	}
	list := make([]string, 0, len(names))
	for n := range names {
		list = append(list, n)
	}
	s.sendNotification(ctx, notify.DeletedMessage(to, deleted, list, strings.TrimPrefix(op.Description, history.DeletedPrefix), skipped, s.now()))
}

func (s *Service) sendNotification(ctx context.Context, msg notify.Message) {
	if s.notifier == nil || strings.TrimSpace(msg.To) == "" {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.log.Warn("notification failed", "to", msg.To, "err", err)
		s.report("Email notification failed: " + err.Error())
		return
	}
	s.report("Email notification sent to " + msg.To)
}

// notificationTarget reads the recipient from the first request snapshot.
func notificationTarget(op history.Operation) (string, bool) {
	for _, ev := range op.EventSnapshots {
		if ev.RequestSnapshot == nil {
			continue
		}
		to, _ := ev.RequestSnapshot["notification_email"].(string)
		enabled, _ := ev.RequestSnapshot["send_email"].(bool)
		return to, enabled && to != ""
	}
	return "", false
}

// liveSnapshots returns the snapshots whose events currently exist: the new
// half of an update, everything otherwise.
func liveSnapshots(op history.Operation) []history.EventSnapshot {
	if op.Type != history.OpUpdate {
		return op.EventSnapshots
	}
	_, live := splitUpdate(op)
	return live
}

// splitUpdate separates an update's snapshots into the replaced (old) and
// replacing (new) events using the affected ids.
func splitUpdate(op history.Operation) (oldSnaps, newSnaps []history.EventSnapshot) {
	affected := make(map[string]bool, len(op.AffectedEventIDs))
	for _, id := range op.AffectedEventIDs {
		affected[id] = true
	}
	for _, ev := range op.EventSnapshots {
		if affected[ev.EventID] {
			newSnaps = append(newSnaps, ev)
		} else {
			oldSnaps = append(oldSnaps, ev)
		}
	}
	return oldSnaps, newSnaps
}

func snapshotIDs(snaps []history.EventSnapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, ev := range snaps {
		out = append(out, ev.EventID)
	}
	return out
}
