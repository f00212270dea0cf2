package editlog

import (
	"errors"
	"testing"
	"time"

	"github.com/happydpc/flowbetween/edit"
)

func appendOp(l *Log, layer edit.LayerID) Entry {
	return l.Append(
		edit.AddLayer{Layer: layer},
		edit.RemoveLayer{Layer: layer},
		time.Now(),
	)
}

func TestAppend_AssignsIncreasingSeq(t *testing.T) {
	l := New()
	a := appendOp(l, 1)
	b := appendOp(l, 2)

	if a.Seq != 1 || b.Seq != 2 {
		t.Fatalf("seq = %d, %d; want 1, 2", a.Seq, b.Seq)
	}
	if l.LastSeq() != 2 || l.Len() != 2 || l.Position() != 2 {
		t.Fatalf("LastSeq/Len/Position = %d/%d/%d, want 2/2/2", l.LastSeq(), l.Len(), l.Position())
	}
}

func TestUndoRedo_Inverse(t *testing.T) {
	l := New()
	e := appendOp(l, 1)

	undone, ok := l.Undo()
	if !ok {
		t.Fatalf("Undo failed on non-empty log")
	}
	if undone.Seq != e.Seq {
		t.Fatalf("Undo returned seq %d, want %d", undone.Seq, e.Seq)
	}
	if _, ok := undone.Inverse.(edit.RemoveLayer); !ok {
		t.Fatalf("Inverse = %T, want RemoveLayer", undone.Inverse)
	}
	if len(l.Active()) != 0 {
		t.Fatalf("Active after undo = %d entries, want 0", len(l.Active()))
	}

	redone, ok := l.Redo()
	if !ok || redone.Seq != e.Seq {
		t.Fatalf("Redo = (%v, %v), want original entry back", redone, ok)
	}
	if len(l.Active()) != 1 {
		t.Fatalf("Active after redo = %d entries, want 1", len(l.Active()))
	}

	if _, ok := l.Redo(); ok {
		t.Fatalf("Redo past the end should report false")
	}
}

func TestPeek_DoesNotMovePointer(t *testing.T) {
	l := New()
	e := appendOp(l, 1)

	if p, ok := l.PeekUndo(); !ok || p.Seq != e.Seq {
		t.Fatalf("PeekUndo = %+v, %v; want entry %d", p, ok, e.Seq)
	}
	if l.Position() != 1 {
		t.Fatalf("Position after PeekUndo = %d, want 1", l.Position())
	}
	if _, ok := l.PeekRedo(); ok {
		t.Fatalf("PeekRedo succeeded with an empty redo tail")
	}

	l.Undo()
	if p, ok := l.PeekRedo(); !ok || p.Seq != e.Seq {
		t.Fatalf("PeekRedo after undo = %+v, %v; want entry %d", p, ok, e.Seq)
	}
	if _, ok := l.PeekUndo(); ok {
		t.Fatalf("PeekUndo succeeded at position 0")
	}
}

func TestUndo_EmptyLog(t *testing.T) {
	l := New()
	if _, ok := l.Undo(); ok {
		t.Fatalf("Undo on empty log should report false")
	}
}

func TestAppendAfterUndo_ForksHistory(t *testing.T) {
	l := New()
	appendOp(l, 1)
	appendOp(l, 2)
	l.Undo()

	if got := l.NextSeq(); got != 2 {
		t.Fatalf("NextSeq with an undone tail = %d, want 2", got)
	}
	forked := appendOp(l, 3)

	// The fork discards the tail entry and takes over its seq, so the
	// number committed to the store matches the one assigned here.
	if forked.Seq != 2 {
		t.Fatalf("forked entry seq = %d, want 2", forked.Seq)
	}
	if _, ok := l.Redo(); ok {
		t.Fatalf("Redo after a fork should report false: the old tail is unreachable")
	}

	active := l.Active()
	if len(active) != 2 || active[0].Seq != 1 || active[1].Seq != 2 {
		t.Fatalf("Active after fork = %+v, want seqs [1 2]", active)
	}
	if op, ok := active[1].Op.(edit.AddLayer); !ok || op.Layer != 3 {
		t.Fatalf("forked entry op = %+v, want AddLayer{Layer: 3}", active[1].Op)
	}
}

func TestEntries_Range(t *testing.T) {
	l := New()
	for i := edit.LayerID(1); i <= 5; i++ {
		appendOp(l, i)
	}

	got := l.Entries(2, 4)
	if len(got) != 3 || got[0].Seq != 2 || got[2].Seq != 4 {
		t.Fatalf("Entries(2, 4) = %+v, want seqs [2 3 4]", got)
	}
}

func TestRestore(t *testing.T) {
	l := New()
	appendOp(l, 1)
	appendOp(l, 2)
	l.Undo()

	restored, err := Restore(l.Entries(1, l.LastSeq()), l.Position())
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Position() != 1 || restored.Len() != 2 {
		t.Fatalf("restored Position/Len = %d/%d, want 1/2", restored.Position(), restored.Len())
	}
	if !restored.CanRedo() {
		t.Fatalf("restored log should still allow redo")
	}

	if _, err := Restore([]Entry{{Seq: 2}, {Seq: 1}}, 2); !errors.Is(err, ErrBadRestore) {
		t.Fatalf("Restore with descending seqs: err = %v, want ErrBadRestore", err)
	}
	if _, err := Restore([]Entry{{Seq: 1}}, 5); !errors.Is(err, ErrBadRestore) {
		t.Fatalf("Restore with bad position: err = %v, want ErrBadRestore", err)
	}
}
