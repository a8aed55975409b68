package history

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxHistory = 50
	DefaultFileName   = "undo_history.json"
)

// Store owns the batch history: operations whose effects are live (undo),
// recently undone (redo), explicitly deleted (delete) and deletions that were
// undone (delete-redo). Each slice is ordered oldest first; the most recent
// entry is the last element.
//
// Store never calls a calendar provider. Callers execute the inverse actions
// themselves and move operations between collections with the methods below.
type Store struct {
	mu sync.Mutex

	undo       []Operation
	redo       []Operation
	deleted    []Operation
	deleteRedo []Operation

	maxHistory int
	fileName   string

	now   func() time.Time
	newID func() string
	log   *slog.Logger

	listeners listeners
}

type Option func(*Store)

func WithMaxHistory(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

func WithFileName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.fileName = name
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		maxHistory: DefaultMaxHistory,
		fileName:   DefaultFileName,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) MaxHistory() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxHistory
}

// SetMaxHistory changes the cap and trims every collection to it.
func (s *Store) SetMaxHistory(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.maxHistory = n
	s.trimAllLocked()
	s.mu.Unlock()
	s.emit(event{kind: evHistoryChanged})
}

func (s *Store) FileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileName
}

// AddOperation records a new action and returns its generated id.
func (s *Store) AddOperation(typ OperationType, affectedEventIDs []string, snapshots []EventSnapshot, description string) string {
	return s.Add(Operation{
		Type:             typ,
		AffectedEventIDs: affectedEventIDs,
		EventSnapshots:   snapshots,
		Description:      description,
	})
}

// Add records op. A missing ID is generated and a zero CreatedAt is stamped
// with the current time. Delete operations go to the delete stack, everything
// else to the undo stack. Any id already present in a collection is dropped
// first so the id stays unique. Both redo stacks are cleared.
func (s *Store) Add(op Operation) string {
	op = op.clone()
	if op.Type == "" {
		op.Type = OpCreate
	}

	s.mu.Lock()
	if op.ID == "" {
		op.ID = s.newID()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = NaiveAt(s.now())
	}
	s.removeLocked(op.ID, CollectionUndo, CollectionRedo, CollectionDelete, CollectionDeleteRedo)

	if op.Type == OpDelete {
		s.deleted = capFIFO(append(s.deleted, op), s.maxHistory)
	} else {
		s.undo = capFIFO(append(s.undo, op), s.maxHistory)
	}

	redoCleared := len(s.redo) > 0 || len(s.deleteRedo) > 0
	s.redo = nil
	s.deleteRedo = nil
	s.mu.Unlock()

	evs := []event{{kind: evHistoryChanged}, {kind: evOperationCreated, id: op.ID}}
	if redoCleared {
		evs = append(evs, event{kind: evRedoCleared})
	}
	s.emit(evs...)
	return op.ID
}

// RemoveOperation removes id from the undo stack, or failing that from the
// delete stack. A miss is not an error.
func (s *Store) RemoveOperation(id string) (Operation, bool) {
	s.mu.Lock()
	op, _, ok := s.removeLocked(id, CollectionUndo, CollectionDelete)
	s.mu.Unlock()
	if ok {
		s.emit(event{kind: evHistoryChanged})
	}
	return op, ok
}

// Undo moves the most recent undo entry onto the redo stack.
func (s *Store) Undo() (Operation, bool) {
	s.mu.Lock()
	op, ok := popLast(&s.undo)
	if ok {
		s.redo = capFIFO(append(s.redo, op), s.maxHistory)
	}
	s.mu.Unlock()
	if !ok {
		return Operation{}, false
	}
	s.emit(event{kind: evOperationUndone, id: op.ID}, event{kind: evHistoryChanged})
	return op.clone(), true
}

// Redo moves the most recent redo entry back onto the undo stack.
func (s *Store) Redo() (Operation, bool) {
	s.mu.Lock()
	op, ok := popLast(&s.redo)
	if ok {
		s.undo = capFIFO(append(s.undo, op), s.maxHistory)
	}
	s.mu.Unlock()
	if !ok {
		return Operation{}, false
	}
	s.emit(event{kind: evOperationRedone, id: op.ID}, event{kind: evHistoryChanged})
	return op.clone(), true
}

// Restore moves a deleted operation back to the undo stack in any order and
// marks it as a create so it is undoable again. The delete stack is searched
// first, then the delete-redo stack. Non-nil snapshots replace the stored
// ones (the caller recreated the events under new ids).
func (s *Store) Restore(id string, snapshots []EventSnapshot) (Operation, bool) {
	s.mu.Lock()
	op, _, ok := s.removeLocked(id, CollectionDelete, CollectionDeleteRedo)
	if ok {
		op.Type = OpCreate
		op.Description = strings.TrimPrefix(op.Description, DeletedPrefix)
		if snapshots != nil {
			op.EventSnapshots = append([]EventSnapshot(nil), snapshots...)
			op.AffectedEventIDs = eventIDs(snapshots)
		}
		s.undo = capFIFO(append(s.undo, op), s.maxHistory)
	}
	s.mu.Unlock()
	if !ok {
		return Operation{}, false
	}
	s.emit(event{kind: evHistoryChanged})
	return op.clone(), true
}

// UndoDelete moves the most recent deletion onto the delete-redo stack.
func (s *Store) UndoDelete() (Operation, bool) {
	s.mu.Lock()
	op, ok := popLast(&s.deleted)
	if ok {
		s.deleteRedo = capFIFO(append(s.deleteRedo, op), s.maxHistory)
	}
	s.mu.Unlock()
	if !ok {
		return Operation{}, false
	}
	s.emit(event{kind: evHistoryChanged})
	return op.clone(), true
}

// RedoDelete moves the most recent delete-redo entry back to the delete stack.
func (s *Store) RedoDelete() (Operation, bool) {
	s.mu.Lock()
	op, ok := popLast(&s.deleteRedo)
	if ok {
		s.deleted = capFIFO(append(s.deleted, op), s.maxHistory)
	}
	s.mu.Unlock()
	if !ok {
		return Operation{}, false
	}
	s.emit(event{kind: evHistoryChanged})
	return op.clone(), true
}

// ReplaceSnapshots swaps in a new snapshot list for id wherever it lives,
// keeping its position, type and description.
func (s *Store) ReplaceSnapshots(id string, affectedEventIDs []string, snapshots []EventSnapshot) bool {
	s.mu.Lock()
	found := false
	for _, list := range s.allLocked() {
		for i := range *list {
			if (*list)[i].ID != id {
				continue
			}
			(*list)[i].EventSnapshots = append([]EventSnapshot(nil), snapshots...)
			(*list)[i].AffectedEventIDs = append([]string(nil), affectedEventIDs...)
			found = true
		}
	}
	s.mu.Unlock()
	if found {
		s.emit(event{kind: evHistoryChanged})
	}
	return found
}

// Clear empties every collection.
func (s *Store) Clear() {
	s.mu.Lock()
	s.undo, s.redo, s.deleted, s.deleteRedo = nil, nil, nil, nil
	s.mu.Unlock()
	s.emit(event{kind: evHistoryChanged})
}

// PruneOlderThan drops operations created before now-age from every
// collection and returns how many were removed.
func (s *Store) PruneOlderThan(age time.Duration) int {
	s.mu.Lock()
	cutoff := s.now().Add(-age)
	removed := 0
	for _, list := range s.allLocked() {
		kept := (*list)[:0]
		for _, op := range *list {
			if createdBefore(op.CreatedAt, cutoff) {
				removed++
				continue
			}
			kept = append(kept, op)
		}
		*list = kept
	}
	s.mu.Unlock()
	if removed > 0 {
		s.emit(event{kind: evHistoryChanged})
	}
	return removed
}

// createdBefore reads naive timestamps as local wall clock.
func createdBefore(ts Timestamp, cutoff time.Time) bool {
	return ts.Resolve(time.Local).Before(cutoff)
}

func (s *Store) allLocked() []*[]Operation {
	return []*[]Operation{&s.undo, &s.redo, &s.deleted, &s.deleteRedo}
}

func (s *Store) listLocked(c Collection) *[]Operation {
	switch c {
	case CollectionUndo:
		return &s.undo
	case CollectionRedo:
		return &s.redo
	case CollectionDelete:
		return &s.deleted
	case CollectionDeleteRedo:
		return &s.deleteRedo
	default:
		return nil
	}
}

func (s *Store) removeLocked(id string, from ...Collection) (Operation, Collection, bool) {
	if id == "" {
		return Operation{}, CollectionNone, false
	}
	for _, c := range from {
		list := s.listLocked(c)
		if list == nil {
			continue
		}
		for i, op := range *list {
			if op.ID != id {
				continue
			}
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return op, c, true
		}
	}
	return Operation{}, CollectionNone, false
}

func (s *Store) trimAllLocked() {
	s.undo = capFIFO(s.undo, s.maxHistory)
	s.redo = capFIFO(s.redo, s.maxHistory)
	s.deleted = capFIFO(s.deleted, s.maxHistory)
	s.deleteRedo = capFIFO(s.deleteRedo, s.maxHistory)
}

// capFIFO drops the oldest entries so at most max remain.
func capFIFO(list []Operation, max int) []Operation {
	if max <= 0 || len(list) <= max {
		return list
	}
	return append([]Operation(nil), list[len(list)-max:]...)
}

func popLast(list *[]Operation) (Operation, bool) {
	n := len(*list)
	if n == 0 {
		return Operation{}, false
	}
	op := (*list)[n-1]
	*list = (*list)[:n-1]
	return op, true
}

func eventIDs(snapshots []EventSnapshot) []string {
	out := make([]string, 0, len(snapshots))
	for _, ev := range snapshots {
		out = append(out, ev.EventID)
	}
	return out
}
