package history

import "time"

// UndoableBatches lists undo-stack operations most recent first, leaving out
// delete operations.
func (s *Store) UndoableBatches() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Operation, 0, len(s.undo))
	for i := len(s.undo) - 1; i >= 0; i-- {
		if s.undo[i].Type == OpDelete {
			continue
		}
		out = append(out, s.undo[i].clone())
	}
	return out
}

// RedoableBatches lists the redo stack most recent first.
func (s *Store) RedoableBatches() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reversed(s.redo)
}

// DeletedBatches lists the delete stack in deletion order, oldest first.
func (s *Store) DeletedBatches() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloned(s.deleted)
}

// DeleteRedoBatches lists the delete-redo stack most recent first.
func (s *Store) DeleteRedoBatches() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reversed(s.deleteRedo)
}

// Collections returns copies of all four collections in stored order
// (oldest first).
func (s *Store) Collections() map[Collection][]Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[Collection][]Operation{
		CollectionUndo:       cloned(s.undo),
		CollectionRedo:       cloned(s.redo),
		CollectionDelete:     cloned(s.deleted),
		CollectionDeleteRedo: cloned(s.deleteRedo),
	}
}

// BatchByID looks id up in the undo stack.
func (s *Store) BatchByID(id string) (Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.undo {
		if op.ID == id {
			return op.clone(), true
		}
	}
	return Operation{}, false
}

// OperationByID looks id up across all collections and reports where it lives.
func (s *Store) OperationByID(id string) (Operation, Collection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range []Collection{CollectionUndo, CollectionRedo, CollectionDelete, CollectionDeleteRedo} {
		for _, op := range *s.listLocked(c) {
			if op.ID == id {
				return op.clone(), c, true
			}
		}
	}
	return Operation{}, CollectionNone, false
}

// BatchesForDate returns undo-stack operations with at least one event whose
// start date lies within dayRange days of date, inclusive on both ends.
// Results are most recent first.
func (s *Store) BatchesForDate(date time.Time, dayRange int) []Operation {
	if dayRange < 0 {
		dayRange = -dayRange
	}
	y, m, d := date.Date()
	center := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	lo := center.AddDate(0, 0, -dayRange)
	hi := center.AddDate(0, 0, dayRange)

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Operation
	for i := len(s.undo) - 1; i >= 0; i-- {
		op := s.undo[i]
		for _, ev := range op.EventSnapshots {
			day := ev.StartTime.CivilDate()
			if !day.Before(lo) && !day.After(hi) {
				out = append(out, op.clone())
				break
			}
		}
	}
	return out
}

// TrackedEventIDs returns the set of event ids referenced by the undo stack.
func (s *Store) TrackedEventIDs() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{})
	for _, op := range s.undo {
		for _, ev := range op.EventSnapshots {
			if ev.EventID != "" {
				out[ev.EventID] = struct{}{}
			}
		}
	}
	return out
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, list := range s.allLocked() {
		st.TotalBatches += len(*list)
		for _, op := range *list {
			st.TotalEvents += len(op.EventSnapshots)
		}
	}
	for _, op := range s.undo {
		if op.Type == OpDelete {
			continue
		}
		st.UndoableBatches++
		st.UndoableEvents += len(op.EventSnapshots)
	}
	for _, op := range s.redo {
		st.RedoableBatches++
		st.RedoableEvents += len(op.EventSnapshots)
	}
	for _, op := range s.deleted {
		st.DeletedBatches++
		st.DeletedEvents += len(op.EventSnapshots)
	}
	return st
}

func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo) > 0
}

func (s *Store) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo) > 0
}

// Len reports the size of one collection.
func (s *Store) Len(c Collection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if list := s.listLocked(c); list != nil {
		return len(*list)
	}
	return 0
}

func cloned(list []Operation) []Operation {
	out := make([]Operation, 0, len(list))
	for _, op := range list {
		out = append(out, op.clone())
	}
	return out
}

func reversed(list []Operation) []Operation {
	out := make([]Operation, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i].clone())
	}
	return out
}
