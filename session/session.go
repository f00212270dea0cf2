package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/happydpc/flowbetween/config"
	"github.com/happydpc/flowbetween/document"
	"github.com/happydpc/flowbetween/edit"
	"github.com/happydpc/flowbetween/editlog"
	"github.com/happydpc/flowbetween/engine"
	"github.com/happydpc/flowbetween/storage"
	"github.com/happydpc/flowbetween/vector"
)

var (
	// ErrSessionClosed means the session has been closed; no further
	// operations are accepted.
	ErrSessionClosed = errors.New("session: closed")

	// ErrQueueTimeout means a queued mutation waited longer than the
	// configured bound and was cancelled before it started. The document
	// is unaffected.
	ErrQueueTimeout = errors.New("session: mutation queue timeout")
)

// request is one queued mutation. queued is the context bounding the
// wait; once the worker picks the request up it runs to completion.
type request struct {
	queued   context.Context
	deadline bool
	run      func(context.Context) (document.Change, bool, error)
	reply    chan outcome
}

type outcome struct {
	change    document.Change
	committed bool
	err       error
}

// Session is one open document plus its writer queue and subscribers.
type Session struct {
	opts   config.Options
	logger *slog.Logger

	db    *sql.DB
	store *storage.Store
	doc   *document.Document

	// mu gives readers a consistent snapshot: the worker holds the write
	// side only while a mutation is being applied, never while requests
	// sit in the queue.
	mu sync.RWMutex

	requests chan *request
	quit     chan struct{}
	wg       sync.WaitGroup
	closed   sync.Once
	closeErr error

	subMu sync.Mutex
	subs  map[string]*Subscription
}

// Open opens (or initializes) the document at path and starts the
// writer. The caller closes the session when done; Close flushes and
// releases the store.
func Open(ctx context.Context, path string, opts config.Options, logger *slog.Logger) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := engine.Open(path)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, db, storage.Options{
		CacheCapacity: opts.CacheCapacity,
		StrictLoad:    opts.StrictLoad,
		Logger:        logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	doc, err := document.Open(ctx, store, document.Options{Logger: logger})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Session{
		opts:     opts,
		logger:   logger.With(slog.String("component", "session"), slog.String("document_id", doc.ID())),
		db:       db,
		store:    store,
		doc:      doc,
		requests: make(chan *request),
		quit:     make(chan struct{}),
		subs:     make(map[string]*Subscription),
	}
	s.wg.Add(1)
	go s.worker()
	s.logger.Info("session open", slog.String("path", path))
	return s, nil
}

// Close stops the writer, closes every subscription channel and
// releases the database. Queued mutations that have not started fail
// with ErrSessionClosed; an in-flight one completes first.
func (s *Session) Close() error {
	s.closed.Do(func() {
		close(s.quit)
		s.wg.Wait()

		s.subMu.Lock()
		for id, sub := range s.subs {
			close(sub.ch)
			delete(s.subs, id)
		}
		s.subMu.Unlock()

		s.closeErr = s.db.Close()
		s.logger.Info("session closed")
	})
	return s.closeErr
}

// Apply queues op, waits for the writer to validate and commit it, and
// returns the change it produced.
func (s *Session) Apply(ctx context.Context, op edit.Op) (document.Change, error) {
	c, _, err := s.mutate(ctx, func(ctx context.Context) (document.Change, bool, error) {
		c, err := s.doc.Apply(ctx, op)
		return c, err == nil, err
	})
	return c, err
}

// Undo queues an undo of the newest active edit. ok is false when there
// was nothing to undo.
func (s *Session) Undo(ctx context.Context) (document.Change, bool, error) {
	return s.mutate(ctx, func(ctx context.Context) (document.Change, bool, error) {
		return s.doc.Undo(ctx)
	})
}

// Redo queues a redo of the next undone edit. ok is false when the redo
// tail is empty.
func (s *Session) Redo(ctx context.Context) (document.Change, bool, error) {
	return s.mutate(ctx, func(ctx context.Context) (document.Change, bool, error) {
		return s.doc.Redo(ctx)
	})
}

// mutate runs fn on the writer. Arrival order is completion order; ctx
// (bounded by the configured queue timeout) can cancel the request only
// while it is still waiting.
func (s *Session) mutate(ctx context.Context, fn func(context.Context) (document.Change, bool, error)) (document.Change, bool, error) {
	queued := ctx
	deadline := false
	if t := s.opts.QueueTimeout.Std(); t > 0 {
		var cancel context.CancelFunc
		queued, cancel = context.WithTimeout(ctx, t)
		defer cancel()
		deadline = true
	}

	req := &request{queued: queued, deadline: deadline, run: fn, reply: make(chan outcome, 1)}
	select {
	case s.requests <- req:
	case <-queued.Done():
		return document.Change{}, false, s.queueErr(req, queued.Err())
	case <-s.quit:
		return document.Change{}, false, ErrSessionClosed
	}

	res := <-req.reply
	return res.change, res.committed, res.err
}

func (s *Session) queueErr(req *request, err error) error {
	if req.deadline && errors.Is(err, context.DeadlineExceeded) {
		return ErrQueueTimeout
	}
	return fmt.Errorf("session: queued mutation cancelled: %w", err)
}

// worker drains the mutation queue one request at a time, in arrival
// order. The caller is unblocked as soon as its request commits;
// notification fan-out happens after the reply, so a blocking
// subscriber delays later mutations but never the committing caller.
func (s *Session) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			for {
				select {
				case req := <-s.requests:
					req.reply <- outcome{err: ErrSessionClosed}
				default:
					return
				}
			}
		case req := <-s.requests:
			if err := req.queued.Err(); err != nil {
				req.reply <- outcome{err: s.queueErr(req, err)}
				continue
			}
			// Once started, the mutation runs to completion.
			runCtx := context.WithoutCancel(req.queued)
			s.mu.Lock()
			change, committed, err := req.run(runCtx)
			s.mu.Unlock()
			req.reply <- outcome{change: change, committed: committed, err: err}
			if err != nil {
				s.logger.Warn("mutation failed", slog.String("error", err.Error()))
				continue
			}
			if committed {
				s.broadcast(change)
			}
		}
	}
}

// ElementsAt returns the elements visible on a layer at time q. Readers
// run concurrently and observe either the pre- or post-state of any
// in-flight mutation, never an interleaving.
func (s *Session) ElementsAt(layer edit.LayerID, q edit.Time) ([]vector.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.ElementsAt(layer, q)
}

// Layers returns the document's layers in order.
func (s *Session) Layers() []document.LayerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Layers()
}

// KeyframeTimes returns every keyframe time of a layer in order.
func (s *Session) KeyframeTimes(layer edit.LayerID) ([]edit.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.KeyframeTimes(layer)
}

// LoadLayerRange materializes the keyframes visible in a time window,
// straight from the store's cache and disk.
func (s *Session) LoadLayerRange(ctx context.Context, layer edit.LayerID, from, to edit.Time) ([]storage.Keyframe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.LoadLayerRange(ctx, layer, from, to)
}

// CanvasSize returns the document canvas dimensions.
func (s *Session) CanvasSize() (width, height float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.CanvasSize()
}

// DocumentID returns the document's stable identity.
func (s *Session) DocumentID() string { return s.doc.ID() }

// CanUndo reports whether an undo would do anything.
func (s *Session) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.CanUndo()
}

// CanRedo reports whether a redo would do anything.
func (s *Session) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.CanRedo()
}

// Edits returns the log entries with from <= Seq <= to.
func (s *Session) Edits(from, to int64) []editlog.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Edits(from, to)
}

// NextLayerID hands out the next unused layer id.
func (s *Session) NextLayerID() edit.LayerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.NextLayerID()
}

// NextElementID hands out the next unused element id.
func (s *Session) NextElementID() vector.ElementID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.NextElementID()
}
