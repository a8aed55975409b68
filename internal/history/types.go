package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/steipete/vacationcal/internal/timeparse"
)

type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

func (t OperationType) Valid() bool {
	switch t {
	case OpCreate, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}

// ParseOperationType normalizes user/file input into an OperationType.
func ParseOperationType(s string) (OperationType, error) {
	t := OperationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid operation type %q (must be create, update, or delete)", s)
	}
	return t, nil
}

// DeletedPrefix starts the description of every delete operation.
const DeletedPrefix = "Deleted: "

// Collection names one of the four ordered lists the store manages.
type Collection string

const (
	CollectionNone       Collection = ""
	CollectionUndo       Collection = "undo_stack"
	CollectionRedo       Collection = "redo_stack"
	CollectionDelete     Collection = "delete_stack"
	CollectionDeleteRedo Collection = "delete_redo_stack"
)

// Timestamp is a point in time that remembers whether it was written with a
// zone offset. Naive values keep their wall clock in UTC and are written back
// without an offset.
type Timestamp struct {
	time.Time
	Naive bool
}

const naiveLayout = "2006-01-02T15:04:05.999999"

func At(t time.Time) Timestamp { return Timestamp{Time: t} }

// NaiveAt builds a zone-less timestamp from t's wall clock.
func NaiveAt(t time.Time) Timestamp {
	y, m, d := t.Date()
	return Timestamp{
		Time:  time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC),
		Naive: true,
	}
}

func (ts Timestamp) String() string {
	if ts.IsZero() {
		return ""
	}
	if ts.Naive {
		return ts.Time.UTC().Format(naiveLayout)
	}
	return ts.Time.Format(time.RFC3339Nano)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.String())
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*ts = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := timeparse.ParseISO(s)
	if err != nil {
		return err
	}
	*ts = Timestamp{Time: parsed.Time, Naive: !parsed.HasZone}
	return nil
}

// Resolve returns the instant, reading naive values as wall clock in loc
// (time.Local when nil).
func (ts Timestamp) Resolve(loc *time.Location) time.Time {
	if !ts.Naive {
		return ts.Time
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), loc)
}

// CivilDate returns the calendar date of the stored wall clock.
func (ts Timestamp) CivilDate() time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EventSnapshot is an immutable copy of one calendar event as it existed when
// an operation was recorded.
type EventSnapshot struct {
	EventID         string         `json:"event_id"`
	CalendarID      string         `json:"calendar_id"`
	CalendarName    string         `json:"calendar_name,omitempty"`
	EventName       string         `json:"event_name"`
	StartTime       Timestamp      `json:"start_time"`
	EndTime         Timestamp      `json:"end_time"`
	CreatedAt       Timestamp      `json:"created_at"`
	BatchID         string         `json:"batch_id"`
	RequestSnapshot map[string]any `json:"request_snapshot"`
}

// Operation is one undoable unit: a batch of events created, updated or
// deleted together.
type Operation struct {
	ID               string          `json:"operation_id"`
	Type             OperationType   `json:"operation_type"`
	AffectedEventIDs []string        `json:"affected_event_ids"`
	CreatedAt        Timestamp       `json:"created_at"`
	Description      string          `json:"description"`
	EventSnapshots   []EventSnapshot `json:"event_snapshots"`
}

// EventCount is the number of snapshots carried by the operation.
func (op Operation) EventCount() int { return len(op.EventSnapshots) }

// DateSpan returns the earliest and latest snapshot start dates.
func (op Operation) DateSpan() (first, last time.Time, ok bool) {
	for i, ev := range op.EventSnapshots {
		d := ev.StartTime.CivilDate()
		if i == 0 || d.Before(first) {
			first = d
		}
		if i == 0 || d.After(last) {
			last = d
		}
	}
	return first, last, len(op.EventSnapshots) > 0
}

func (op Operation) clone() Operation {
	out := op
	out.AffectedEventIDs = append([]string(nil), op.AffectedEventIDs...)
	out.EventSnapshots = append([]EventSnapshot(nil), op.EventSnapshots...)
	return out
}

// Stats aggregates the current collection contents.
type Stats struct {
	TotalBatches    int `json:"total_batches"`
	UndoableBatches int `json:"undoable_batches"`
	TotalEvents     int `json:"total_events"`
	UndoableEvents  int `json:"undoable_events"`
	RedoableBatches int `json:"redoable_batches"`
	RedoableEvents  int `json:"redoable_events"`
	DeletedBatches  int `json:"deleted_batches"`
	DeletedEvents   int `json:"deleted_events"`
}
