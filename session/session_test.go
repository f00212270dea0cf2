package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/happydpc/flowbetween/config"
	"github.com/happydpc/flowbetween/document"
	"github.com/happydpc/flowbetween/edit"
	"github.com/happydpc/flowbetween/vector"
)

func openTestSession(t *testing.T, opts config.Options) *Session {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "anim.flo"), opts, nil)
	if err != nil {
		t.Fatalf("session.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testElement(id vector.ElementID) vector.Element {
	return vector.NewElement(id, vector.NewPath(vector.Point{X: float32(id), Y: 0},
		vector.Segment{CP1: vector.Point{X: 1, Y: 1}, CP2: vector.Point{X: 2, Y: 2}, End: vector.Point{X: 3, Y: 3}}))
}

func mustApply(t *testing.T, s *Session, op edit.Op) document.Change {
	t.Helper()
	c, err := s.Apply(context.Background(), op)
	if err != nil {
		t.Fatalf("Apply(%s) failed: %v", op.Kind(), err)
	}
	return c
}

func TestApply_NotifiesSubscribers(t *testing.T) {
	s := openTestSession(t, config.Default())
	sub := s.Subscribe()
	other := s.Subscribe()

	layer := s.NextLayerID()
	mustApply(t, s, edit.AddLayer{Layer: layer, Name: "ink"})
	mustApply(t, s, edit.AddKeyframe{Layer: layer, At: 0})

	for _, events := range []<-chan document.Change{sub.Events(), other.Events()} {
		first := <-events
		second := <-events
		if first.Seq != 1 || second.Seq != 2 {
			t.Fatalf("event seqs = %d, %d; want 1, 2", first.Seq, second.Seq)
		}
		if second.Layer != layer || second.From != 0 || second.To != 0 {
			t.Fatalf("keyframe event = %+v, want layer %d range [0, 0]", second, layer)
		}
	}
}

func TestApply_ValidationErrorEmitsNoEvent(t *testing.T) {
	s := openTestSession(t, config.Default())
	sub := s.Subscribe()

	if _, err := s.Apply(context.Background(), edit.RemoveLayer{Layer: 42}); !errors.Is(err, document.ErrUnknownLayer) {
		t.Fatalf("Apply error = %v, want ErrUnknownLayer", err)
	}
	mustApply(t, s, edit.AddLayer{Layer: 1})

	ev := <-sub.Events()
	if ev.Seq != 1 {
		t.Fatalf("first event seq = %d, want 1 (rejected edit must not notify)", ev.Seq)
	}
}

func TestUndoRedo_ThroughSession(t *testing.T) {
	s := openTestSession(t, config.Default())
	ctx := context.Background()
	layer := s.NextLayerID()
	mustApply(t, s, edit.AddLayer{Layer: layer})
	mustApply(t, s, edit.AddKeyframe{Layer: layer, At: 0})
	mustApply(t, s, edit.AddElement{Layer: layer, At: 0, Element: testElement(s.NextElementID())})

	if _, ok, err := s.Undo(ctx); err != nil || !ok {
		t.Fatalf("Undo failed: ok=%v err=%v", ok, err)
	}
	elems, err := s.ElementsAt(layer, 0)
	if err != nil || len(elems) != 0 {
		t.Fatalf("ElementsAt after undo = %d elements, %v; want none", len(elems), err)
	}
	if !s.CanRedo() {
		t.Fatalf("CanRedo false after undo")
	}
	if _, ok, err := s.Redo(ctx); err != nil || !ok {
		t.Fatalf("Redo failed: ok=%v err=%v", ok, err)
	}
	elems, err = s.ElementsAt(layer, 0)
	if err != nil || len(elems) != 1 {
		t.Fatalf("ElementsAt after redo = %d elements, %v; want one", len(elems), err)
	}

	// An undo with nothing left produces no event beyond the real ones.
	for i := 0; i < 4; i++ {
		if _, _, err := s.Undo(ctx); err != nil {
			t.Fatalf("Undo failed: %v", err)
		}
	}
	if _, ok, err := s.Undo(ctx); err != nil || ok {
		t.Fatalf("Undo on empty history = ok %v err %v, want false, nil", ok, err)
	}
}

func TestConcurrentWriters_SerializedInOrder(t *testing.T) {
	opts := config.Default()
	opts.SubscriberBuffer = 1024
	s := openTestSession(t, opts)
	sub := s.Subscribe()

	const writers = 8
	const perWriter = 16
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				if _, err := s.Apply(context.Background(), edit.AddLayer{Layer: s.NextLayerID()}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Apply failed: %v", err)
	}

	const total = writers * perWriter
	if got := len(s.Layers()); got != total {
		t.Fatalf("layer count = %d, want %d", got, total)
	}
	if got := len(s.Edits(1, total)); got != total {
		t.Fatalf("log entries = %d, want %d", got, total)
	}

	// Every commit notified exactly once, in commit order.
	for want := int64(1); want <= total; want++ {
		ev := <-sub.Events()
		if ev.Seq != want {
			t.Fatalf("event seq = %d, want %d", ev.Seq, want)
		}
	}
}

func TestConcurrentReaders_SeeConsistentSnapshots(t *testing.T) {
	s := openTestSession(t, config.Default())
	layer := s.NextLayerID()
	mustApply(t, s, edit.AddLayer{Layer: layer})
	mustApply(t, s, edit.AddKeyframe{Layer: layer, At: 0})
	elem := s.NextElementID()
	mustApply(t, s, edit.AddElement{Layer: layer, At: 0, Element: testElement(elem)})
	mustApply(t, s, edit.SetElementProperty{Element: elem, Key: "tone", Value: "a"})

	stop := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(stop)
		for i := 0; i < 100; i++ {
			value := "a"
			if i%2 == 1 {
				value = "b"
			}
			if _, err := s.Apply(context.Background(), edit.SetElementProperty{Element: elem, Key: "tone", Value: value}); err != nil {
				return err
			}
		}
		return nil
	})
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for {
				select {
				case <-stop:
					return nil
				default:
				}
				elems, err := s.ElementsAt(layer, 0)
				if err != nil {
					return err
				}
				if len(elems) != 1 {
					return errors.New("reader saw a partial frame")
				}
				if tone := elems[0].Properties["tone"]; tone != "a" && tone != "b" {
					return errors.New("reader saw a torn property value " + tone)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("stress run failed: %v", err)
	}
}

func TestSubscriber_DropOldest(t *testing.T) {
	opts := config.Default()
	opts.SubscriberBuffer = 1
	s := openTestSession(t, opts)
	sub := s.Subscribe()

	for i := 0; i < 3; i++ {
		mustApply(t, s, edit.AddLayer{Layer: s.NextLayerID()})
	}

	deadline := time.After(5 * time.Second)
	for sub.Dropped() != 2 {
		select {
		case <-deadline:
			t.Fatalf("Dropped = %d, want 2", sub.Dropped())
		case <-time.After(time.Millisecond):
		}
	}
	ev := <-sub.Events()
	if ev.Seq != 3 {
		t.Fatalf("surviving event seq = %d, want the newest (3)", ev.Seq)
	}
}

func TestQueueTimeout_WithBlockedSubscriber(t *testing.T) {
	opts := config.Default()
	opts.SubscriberBuffer = 1
	opts.Overflow = config.OverflowBlock
	opts.QueueTimeout = config.Duration(50 * time.Millisecond)
	s := openTestSession(t, opts)
	sub := s.Subscribe()

	// First apply fills the subscriber buffer; the second commits and
	// then stalls the worker in delivery. The third waits in the queue
	// past the bound.
	mustApply(t, s, edit.AddLayer{Layer: 1})
	mustApply(t, s, edit.AddLayer{Layer: 2})

	_, err := s.Apply(context.Background(), edit.AddLayer{Layer: 3})
	if !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("Apply while writer stalled error = %v, want ErrQueueTimeout", err)
	}
	sub.Close()
}

func TestMutate_CallerCancellation(t *testing.T) {
	opts := config.Default()
	opts.SubscriberBuffer = 1
	opts.Overflow = config.OverflowBlock
	s := openTestSession(t, opts)
	sub := s.Subscribe()

	mustApply(t, s, edit.AddLayer{Layer: 1})
	mustApply(t, s, edit.AddLayer{Layer: 2})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := s.Apply(ctx, edit.AddLayer{Layer: 3}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Apply with cancelled context error = %v, want context.Canceled", err)
	}
	sub.Close()
}

func TestClose(t *testing.T) {
	s := openTestSession(t, config.Default())
	sub := s.Subscribe()
	mustApply(t, s, edit.AddLayer{Layer: 1})

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.Apply(context.Background(), edit.AddLayer{Layer: 2}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Apply after Close error = %v, want ErrSessionClosed", err)
	}

	// Buffered events drain, then the stream ends.
	if ev, ok := <-sub.Events(); !ok || ev.Seq != 1 {
		t.Fatalf("buffered event after close = %+v, %v; want seq 1", ev, ok)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("event stream still open after Close")
	}
}

func TestReopen_ThroughSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anim.flo")
	ctx := context.Background()

	s, err := Open(ctx, path, config.Default(), nil)
	if err != nil {
		t.Fatalf("session.Open failed: %v", err)
	}
	layer := s.NextLayerID()
	mustApply(t, s, edit.AddLayer{Layer: layer, Name: "ink"})
	mustApply(t, s, edit.AddKeyframe{Layer: layer, At: 0})
	mustApply(t, s, edit.AddElement{Layer: layer, At: 0, Element: testElement(s.NextElementID())})
	id := s.DocumentID()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(ctx, path, config.Default(), nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	if s2.DocumentID() != id {
		t.Fatalf("reopened document id = %q, want %q", s2.DocumentID(), id)
	}
	elems, err := s2.ElementsAt(layer, 0)
	if err != nil || len(elems) != 1 {
		t.Fatalf("ElementsAt after reopen = %d elements, %v; want one", len(elems), err)
	}
	if !s2.CanUndo() {
		t.Fatalf("reopened session lost its edit history")
	}
}
