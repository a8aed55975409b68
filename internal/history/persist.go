package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// SchemaVersion is written to every saved history file. Version 2 files
// (undo/redo stacks only) are still accepted on load.
const SchemaVersion = 1

const maxSupportedVersion = 2

type fileDoc struct {
	Version         int         `json:"version"`
	MaxHistory      int         `json:"max_history"`
	UndoStack       []Operation `json:"undo_stack"`
	RedoStack       []Operation `json:"redo_stack"`
	DeleteStack     []Operation `json:"delete_stack"`
	DeleteRedoStack []Operation `json:"delete_redo_stack"`
}

type rawDoc struct {
	Version         *int               `json:"version"`
	MaxHistory      *int               `json:"max_history"`
	UndoStack       *[]json.RawMessage `json:"undo_stack"`
	RedoStack       *[]json.RawMessage `json:"redo_stack"`
	DeleteStack     *[]json.RawMessage `json:"delete_stack"`
	DeleteRedoStack *[]json.RawMessage `json:"delete_redo_stack"`
	Batches         *[]json.RawMessage `json:"batches"`
}

// legacyBatch is the single-list shape older releases wrote under "batches".
type legacyBatch struct {
	BatchID     string          `json:"batch_id"`
	CreatedAt   Timestamp       `json:"created_at"`
	Events      []EventSnapshot `json:"events"`
	Description string          `json:"description"`
	IsUndone    bool            `json:"is_undone"`
}

// Path returns the history file location inside dir.
func (s *Store) Path(dir string) string {
	return filepath.Join(dir, s.FileName())
}

// Save writes all four collections to dir. The previous file, if any, is
// copied to a .backup sibling first. Failures are logged and reported to
// OnSaveFailed subscribers; in-memory state is never touched.
func (s *Store) Save(dir string) error {
	s.mu.Lock()
	doc := fileDoc{
		Version:         SchemaVersion,
		MaxHistory:      s.maxHistory,
		UndoStack:       nonNil(cloned(s.undo)),
		RedoStack:       nonNil(cloned(s.redo)),
		DeleteStack:     nonNil(cloned(s.deleted)),
		DeleteRedoStack: nonNil(cloned(s.deleteRedo)),
	}
	path := filepath.Join(dir, s.fileName)
	s.mu.Unlock()

	if err := writeHistoryFile(path, doc, s.log); err != nil {
		msg := fmt.Sprintf("Failed to save undo history: %v", err)
		s.log.Warn("history save failed", "path", path, "err", err)
		s.emit(event{kind: evSaveFailed, msg: msg})
		return err
	}
	s.log.Debug("history saved", "path", path, "undo", len(doc.UndoStack), "redo", len(doc.RedoStack), "deleted", len(doc.DeleteStack))
	return nil
}

func writeHistoryFile(path string, doc fileDoc, log *slog.Logger) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure history dir: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".backup"); err != nil {
			log.Warn("history backup failed", "path", path, "err", err)
		}
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, ".undo_history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod history: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Load replaces the store contents with the history file in dir and returns
// the number of operations loaded. A missing, unreadable or malformed file
// loads nothing and leaves the store untouched. Individually malformed
// operations are skipped.
func (s *Store) Load(dir string) int {
	path := s.Path(dir)
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("history read failed", "path", path, "err", err)
		}
		return 0
	}

	var raw rawDoc
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.Warn("history file is not valid JSON", "path", path, "err", err)
		return 0
	}

	version := 1
	if raw.Version != nil {
		version = *raw.Version
	}
	if version < 1 || version > maxSupportedVersion {
		s.log.Warn("unsupported history version", "path", path, "version", version)
		return 0
	}

	var undo, redo, deleted, deleteRedo []Operation
	seen := map[string]bool{}
	if raw.UndoStack == nil && raw.RedoStack == nil && raw.DeleteStack == nil && raw.DeleteRedoStack == nil && raw.Batches != nil {
		undo, redo = s.migrateBatches(*raw.Batches, seen)
	} else {
		undo = s.decodeList(raw.UndoStack, CollectionUndo, seen)
		redo = s.decodeList(raw.RedoStack, CollectionRedo, seen)
		deleted = s.decodeList(raw.DeleteStack, CollectionDelete, seen)
		deleteRedo = s.decodeList(raw.DeleteRedoStack, CollectionDeleteRedo, seen)
	}

	s.mu.Lock()
	if raw.MaxHistory != nil && *raw.MaxHistory > 0 {
		s.maxHistory = *raw.MaxHistory
	}
	s.undo, s.redo, s.deleted, s.deleteRedo = undo, redo, deleted, deleteRedo
	s.trimAllLocked()
	n := len(s.undo) + len(s.redo) + len(s.deleted) + len(s.deleteRedo)
	s.mu.Unlock()

	s.emit(event{kind: evHistoryChanged})
	s.log.Debug("history loaded", "path", path, "operations", n)
	return n
}

func (s *Store) decodeList(raw *[]json.RawMessage, c Collection, seen map[string]bool) []Operation {
	if raw == nil {
		return nil
	}
	out := make([]Operation, 0, len(*raw))
	for i, item := range *raw {
		op, err := decodeOperation(item)
		if err != nil {
			s.log.Warn("skipping malformed history record", "collection", string(c), "index", i, "err", err)
			continue
		}
		if seen[op.ID] {
			s.log.Warn("skipping duplicate history record", "collection", string(c), "id", op.ID)
			continue
		}
		seen[op.ID] = true
		out = append(out, op)
	}
	return out
}

func decodeOperation(b json.RawMessage) (Operation, error) {
	var probe struct {
		ID        *string `json:"operation_id"`
		Type      *string `json:"operation_type"`
		CreatedAt *string `json:"created_at"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return Operation{}, err
	}
	switch {
	case probe.ID == nil || *probe.ID == "":
		return Operation{}, errors.New("missing operation_id")
	case probe.Type == nil:
		return Operation{}, errors.New("missing operation_type")
	case probe.CreatedAt == nil:
		return Operation{}, errors.New("missing created_at")
	}
	typ, err := ParseOperationType(*probe.Type)
	if err != nil {
		return Operation{}, err
	}

	var op Operation
	if err := json.Unmarshal(b, &op); err != nil {
		return Operation{}, err
	}
	op.Type = typ
	return op, nil
}

// migrateBatches converts the legacy batch list: live batches become creates
// on the undo stack (oldest first), undone ones go to the redo stack.
func (s *Store) migrateBatches(raw []json.RawMessage, seen map[string]bool) (undo, redo []Operation) {
	// Legacy files list the most recent batch first.
	for i := len(raw) - 1; i >= 0; i-- {
		var b legacyBatch
		if err := json.Unmarshal(raw[i], &b); err != nil || b.BatchID == "" {
			s.log.Warn("skipping malformed legacy batch", "index", i, "err", err)
			continue
		}
		if seen[b.BatchID] {
			continue
		}
		seen[b.BatchID] = true
		op := Operation{
			ID:               b.BatchID,
			Type:             OpCreate,
			AffectedEventIDs: eventIDs(b.Events),
			EventSnapshots:   b.Events,
			CreatedAt:        b.CreatedAt,
			Description:      b.Description,
		}
		if b.IsUndone {
			redo = append(redo, op)
		} else {
			undo = append(undo, op)
		}
	}
	s.log.Info("migrated legacy history batches", "undo", len(undo), "redo", len(redo))
	return undo, redo
}

func nonNil(list []Operation) []Operation {
	if list == nil {
		return []Operation{}
	}
	return list
}
