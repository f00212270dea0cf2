package editlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/happydpc/flowbetween/edit"
)

// ErrBadRestore indicates that persisted log entries could not be
// restored (out-of-order sequence numbers or an invalid position).
var ErrBadRestore = errors.New("editlog: invalid persisted log")

// Entry is one committed edit: an immutable record of the operation, the
// compensating inverse captured when it was applied, and its position in
// the history.
type Entry struct {
	Seq       int64
	Timestamp time.Time
	Op        edit.Op
	Inverse   edit.Op
}

// Log is the in-memory view of the edit history. entries[:pos] are
// active; entries[pos:] is the redo tail left behind by undos.
type Log struct {
	entries []Entry
	pos     int
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Restore rebuilds a log from persisted entries. Entries must be in
// strictly increasing sequence order; pos is the number of active
// entries (entries beyond it are the persisted redo tail).
func Restore(entries []Entry, pos int) (*Log, error) {
	if pos < 0 || pos > len(entries) {
		return nil, fmt.Errorf("%w: position %d of %d entries", ErrBadRestore, pos, len(entries))
	}
	var last int64
	for i, e := range entries {
		if e.Seq <= last {
			return nil, fmt.Errorf("%w: sequence %d at index %d not increasing", ErrBadRestore, e.Seq, i)
		}
		last = e.Seq
	}
	l := &Log{entries: make([]Entry, len(entries)), pos: pos}
	copy(l.entries, entries)
	return l, nil
}

// Append commits a new entry, assigns it the next sequence number, and
// returns it. Any redo tail is truncated first: once a new edit lands
// after an undo, the old future is unreachable and the new entry takes
// over its sequence number.
func (l *Log) Append(op, inverse edit.Op, now time.Time) Entry {
	e := Entry{
		Seq:       l.NextSeq(),
		Timestamp: now,
		Op:        op,
		Inverse:   inverse,
	}
	l.entries = append(l.entries[:l.pos], e)
	l.pos = len(l.entries)
	return e
}

// NextSeq returns the sequence number the next appended entry will
// carry: one past the newest active entry. Entries sitting in the redo
// tail do not count; the fork that discards them reuses their numbers,
// in memory and in the store alike.
func (l *Log) NextSeq() int64 {
	if l.pos == 0 {
		return 1
	}
	return l.entries[l.pos-1].Seq + 1
}

// Undo moves the position pointer back by one entry and returns it. The
// entry stays in the log but is excluded from replay; its Inverse is
// what the caller applies to the in-memory model. Returns false when
// there is nothing to undo.
func (l *Log) Undo() (Entry, bool) {
	if l.pos == 0 {
		return Entry{}, false
	}
	l.pos--
	return l.entries[l.pos], true
}

// Redo re-activates the next undone entry and returns it, or false when
// the redo tail is empty (including after a fork discarded it).
func (l *Log) Redo() (Entry, bool) {
	if l.pos >= len(l.entries) {
		return Entry{}, false
	}
	e := l.entries[l.pos]
	l.pos++
	return e, true
}

// PeekUndo returns the entry Undo would return without moving the
// pointer. The caller can durably record the undo before committing to
// it in memory.
func (l *Log) PeekUndo() (Entry, bool) {
	if l.pos == 0 {
		return Entry{}, false
	}
	return l.entries[l.pos-1], true
}

// PeekRedo returns the entry Redo would return without moving the
// pointer.
func (l *Log) PeekRedo() (Entry, bool) {
	if l.pos >= len(l.entries) {
		return Entry{}, false
	}
	return l.entries[l.pos], true
}

// CanUndo reports whether Undo would succeed.
func (l *Log) CanUndo() bool { return l.pos > 0 }

// CanRedo reports whether Redo would succeed.
func (l *Log) CanRedo() bool { return l.pos < len(l.entries) }

// Active returns the active entries in sequence order. Replaying them
// from an empty model reproduces the current document state.
func (l *Log) Active() []Entry {
	out := make([]Entry, l.pos)
	copy(out, l.entries[:l.pos])
	return out
}

// Entries returns entries with from <= Seq <= to, active or not.
func (l *Log) Entries(from, to int64) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.Seq >= from && e.Seq <= to {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the total number of entries, including the redo tail.
func (l *Log) Len() int { return len(l.entries) }

// Position returns the number of active entries.
func (l *Log) Position() int { return l.pos }

// LastSeq returns the sequence number of the newest entry, or 0 for an
// empty log.
func (l *Log) LastSeq() int64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Seq
}
