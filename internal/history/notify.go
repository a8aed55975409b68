package history

import (
	"sort"
	"sync"
)

type eventKind int

const (
	evHistoryChanged eventKind = iota
	evOperationCreated
	evOperationUndone
	evOperationRedone
	evRedoCleared
	evSaveFailed
)

type event struct {
	kind eventKind
	id   string
	msg  string
}

type listeners struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscriber
}

type subscriber struct {
	kind eventKind
	fn   func(event)
}

func (l *listeners) add(kind eventKind, fn func(event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subs == nil {
		l.subs = make(map[int]subscriber)
	}
	id := l.nextID
	l.nextID++
	l.subs[id] = subscriber{kind: kind, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) snapshot(kind eventKind) []func(event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int, 0, len(l.subs))
	for id, sub := range l.subs {
		if sub.kind == kind {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]func(event), 0, len(ids))
	for _, id := range ids {
		out = append(out, l.subs[id].fn)
	}
	return out
}

// emit runs callbacks synchronously. It must be called without s.mu held.
func (s *Store) emit(evs ...event) {
	for _, ev := range evs {
		for _, fn := range s.listeners.snapshot(ev.kind) {
			fn(ev)
		}
	}
}

// OnHistoryChanged registers fn for any mutation. The returned func unsubscribes.
func (s *Store) OnHistoryChanged(fn func()) func() {
	return s.listeners.add(evHistoryChanged, func(event) { fn() })
}

func (s *Store) OnOperationCreated(fn func(operationID string)) func() {
	return s.listeners.add(evOperationCreated, func(ev event) { fn(ev.id) })
}

func (s *Store) OnOperationUndone(fn func(operationID string)) func() {
	return s.listeners.add(evOperationUndone, func(ev event) { fn(ev.id) })
}

func (s *Store) OnOperationRedone(fn func(operationID string)) func() {
	return s.listeners.add(evOperationRedone, func(ev event) { fn(ev.id) })
}

// OnRedoStackCleared fires when a new operation discarded pending redo entries.
func (s *Store) OnRedoStackCleared(fn func()) func() {
	return s.listeners.add(evRedoCleared, func(event) { fn() })
}

// OnSaveFailed fires with a human message when Save could not write the file.
func (s *Store) OnSaveFailed(fn func(message string)) func() {
	return s.listeners.add(evSaveFailed, func(ev event) { fn(ev.msg) })
}
