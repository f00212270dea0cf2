package document

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/happydpc/flowbetween/edit"
	"github.com/happydpc/flowbetween/editlog"
	"github.com/happydpc/flowbetween/storage"
	"github.com/happydpc/flowbetween/vector"
)

// LayerInfo describes one layer to readers.
type LayerInfo struct {
	ID   edit.LayerID
	Name string
}

// Change identifies the region a committed edit touched: the log
// sequence number, the affected layer and the affected time range.
// Whole-layer edits span the full timeline; Layer is zero when the edit
// touched more than one layer or only document properties.
type Change struct {
	Seq   int64
	Layer edit.LayerID
	From  edit.Time
	To    edit.Time
}

// Options configures a Document.
type Options struct {
	// Logger receives structured log output; nil selects slog.Default().
	Logger *slog.Logger

	// Now supplies edit timestamps; nil selects time.Now.
	Now func() time.Time
}

// Document is one open animation document: the in-memory model, its
// edit log, and the store both are persisted in.
type Document struct {
	store *storage.Store
	log   *editlog.Log
	model *model

	logger *slog.Logger
	now    func() time.Time

	nextLayer   edit.LayerID
	nextElement vector.ElementID
}

// Open materializes a document from its store: entity snapshots first,
// then the persisted edit log with its undo position, then the id
// counters. Opening an already-consistent store changes nothing, so a
// crashed session can simply reopen.
func Open(ctx context.Context, store *storage.Store, opts Options) (*Document, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	d := &Document{
		store:  store,
		model:  newModel(store.Properties()),
		logger: logger.With(slog.String("component", "document")),
		now:    now,
	}

	rows, err := store.LoadLayers(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		l := &layerState{
			id:     row.ID,
			name:   row.Name,
			frames: make(map[edit.Time]map[vector.ElementID]struct{}),
		}
		times, err := store.LoadKeyframeTimes(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		if len(times) > 0 {
			frames, err := store.LoadLayerRange(ctx, row.ID, times[0], times[len(times)-1])
			if err != nil {
				return nil, err
			}
			for _, kf := range frames {
				set := make(map[vector.ElementID]struct{}, len(kf.Elements))
				for _, e := range kf.Elements {
					d.model.elements[e.ID] = &elementState{elem: e, layer: row.ID, at: kf.At}
					set[e.ID] = struct{}{}
				}
				l.frames[kf.At] = set
				l.times = append(l.times, kf.At)
			}
		}
		d.model.layers[row.ID] = l
		d.model.insertLayer(row.ID)
	}

	entries, pos, err := store.LoadEditLog(ctx)
	if err != nil {
		return nil, err
	}
	d.log, err = editlog.Restore(entries, pos)
	if err != nil {
		return nil, err
	}

	maxLayer, err := store.MaxLayerID(ctx)
	if err != nil {
		return nil, err
	}
	maxElem, err := store.MaxElementID(ctx)
	if err != nil {
		return nil, err
	}
	d.nextLayer = maxLayer + 1
	d.nextElement = maxElem + 1

	d.logger.Info("opened document",
		slog.String("document_id", store.DocumentID()),
		slog.Int("layers", len(rows)),
		slog.Int("edits", d.log.Len()))
	return d, nil
}

// NextLayerID hands out the next unused layer id. Ids are stable across
// reloads: the counter resumes past the highest persisted id.
func (d *Document) NextLayerID() edit.LayerID {
	id := d.nextLayer
	d.nextLayer++
	return id
}

// NextElementID hands out the next unused element id.
func (d *Document) NextElementID() vector.ElementID {
	id := d.nextElement
	d.nextElement++
	return id
}

// Apply validates op, commits it durably with its entity deltas in one
// transaction, then mutates the in-memory model and appends to the log.
// On any error the document is unchanged.
func (d *Document) Apply(ctx context.Context, op edit.Op) (Change, error) {
	deltas, inverse, err := d.model.apply(op)
	if err != nil {
		return Change{}, err
	}

	entry := editlog.Entry{
		Seq:       d.log.NextSeq(),
		Timestamp: d.now(),
		Op:        op,
		Inverse:   inverse,
	}
	if err := d.store.CommitAppend(ctx, entry, deltas); err != nil {
		// The model mutated ahead of the commit; the inverse puts it back.
		d.rollback(entry.Seq, inverse)
		return Change{}, err
	}
	d.log.Append(op, inverse, entry.Timestamp)
	d.bumpIDs(op)
	return summarize(entry.Seq, deltas), nil
}

// bumpIDs keeps the id counters ahead of ids chosen by the caller
// rather than handed out by NextLayerID/NextElementID.
func (d *Document) bumpIDs(op edit.Op) {
	switch o := op.(type) {
	case edit.AddLayer:
		if o.Layer >= d.nextLayer {
			d.nextLayer = o.Layer + 1
		}
	case edit.AddElement:
		if o.Element.ID >= d.nextElement {
			d.nextElement = o.Element.ID + 1
		}
	case edit.Compound:
		for _, sub := range o.Ops {
			d.bumpIDs(sub)
		}
	}
}

// Undo deactivates the newest active edit: its inverse is applied to
// the model and the resulting deltas are committed together with the
// log position change. Returns false when there is nothing to undo.
func (d *Document) Undo(ctx context.Context) (Change, bool, error) {
	entry, ok := d.log.PeekUndo()
	if !ok {
		return Change{}, false, nil
	}
	deltas, redo, err := d.model.apply(entry.Inverse)
	if err != nil {
		return Change{}, false, fmt.Errorf("document: undo seq %d: %w", entry.Seq, err)
	}
	if err := d.store.CommitUndo(ctx, entry.Seq, deltas); err != nil {
		d.rollback(entry.Seq, redo)
		return Change{}, false, err
	}
	d.log.Undo()
	return summarize(entry.Seq, deltas), true, nil
}

// Redo re-activates the next undone edit, re-applying its operation.
// Returns false when the redo tail is empty.
func (d *Document) Redo(ctx context.Context) (Change, bool, error) {
	entry, ok := d.log.PeekRedo()
	if !ok {
		return Change{}, false, nil
	}
	deltas, undo, err := d.model.apply(entry.Op)
	if err != nil {
		return Change{}, false, fmt.Errorf("document: redo seq %d: %w", entry.Seq, err)
	}
	if err := d.store.CommitRedo(ctx, entry.Seq, deltas); err != nil {
		d.rollback(entry.Seq, undo)
		return Change{}, false, err
	}
	d.log.Redo()
	return summarize(entry.Seq, deltas), true, nil
}

// rollback re-applies a compensating operation after a failed storage
// commit. The compensation was derived from the mutation it reverts, so
// a failure here means the model no longer matches the store; that gets
// an error-level log rather than a silent half-revert.
func (d *Document) rollback(seq int64, compensate edit.Op) {
	if _, _, err := d.model.apply(compensate); err != nil {
		d.logger.Error("state rollback failed after commit error",
			slog.Int64("seq", seq),
			slog.String("error", err.Error()))
	}
}

// Replay rebuilds the in-memory model by re-applying the active edit
// history in sequence order from an empty state. upTo limits the
// rebuild to entries with Seq <= upTo; zero replays everything. The
// active log always reproduces the live state, so replaying a
// consistent document is a no-op.
func (d *Document) Replay(upTo int64) error {
	m := newModel(storage.Properties{ID: d.store.DocumentID()})
	for _, e := range d.log.Active() {
		if upTo > 0 && e.Seq > upTo {
			break
		}
		if _, _, err := m.apply(e.Op); err != nil {
			return fmt.Errorf("document: replay seq %d: %w", e.Seq, err)
		}
	}
	d.model = m
	return nil
}

// ElementsAt returns the elements visible on a layer at time q, in id
// order: the content of the nearest keyframe at or before q. The result
// is a snapshot; mutating it does not affect the document.
func (d *Document) ElementsAt(layer edit.LayerID, q edit.Time) ([]vector.Element, error) {
	return d.model.elementsAt(layer, q)
}

// Layers returns the document's layers in order.
func (d *Document) Layers() []LayerInfo {
	out := make([]LayerInfo, 0, len(d.model.order))
	for _, id := range d.model.order {
		out = append(out, LayerInfo{ID: id, Name: d.model.layers[id].name})
	}
	return out
}

// KeyframeTimes returns every keyframe time of a layer in order.
func (d *Document) KeyframeTimes(layer edit.LayerID) ([]edit.Time, error) {
	l, ok := d.model.layers[layer]
	if !ok {
		return nil, fmt.Errorf("keyframe times of layer %d: %w", layer, ErrUnknownLayer)
	}
	out := make([]edit.Time, len(l.times))
	copy(out, l.times)
	return out, nil
}

// CanvasSize returns the document canvas dimensions.
func (d *Document) CanvasSize() (width, height float32) {
	return d.model.props.CanvasWidth, d.model.props.CanvasHeight
}

// ID returns the document's stable identity.
func (d *Document) ID() string { return d.store.DocumentID() }

// CanUndo reports whether an Undo would do anything.
func (d *Document) CanUndo() bool { return d.log.CanUndo() }

// CanRedo reports whether a Redo would do anything.
func (d *Document) CanRedo() bool { return d.log.CanRedo() }

// LogLen returns the total number of log entries, redo tail included.
func (d *Document) LogLen() int { return d.log.Len() }

// Edits returns the log entries with from <= Seq <= to.
func (d *Document) Edits(from, to int64) []editlog.Entry {
	return d.log.Entries(from, to)
}

// summarize folds a delta set into the change region subscribers see.
func summarize(seq int64, deltas []storage.Delta) Change {
	c := Change{Seq: seq, From: math.MaxInt64, To: math.MinInt64}
	var layer edit.LayerID
	single, timed, whole := true, false, false
	for _, d := range deltas {
		switch d.Kind {
		case storage.PutProperties:
			continue
		case storage.PutLayer, storage.DeleteLayer:
			whole = true
		default:
			timed = true
			if d.At < c.From {
				c.From = d.At
			}
			if d.At > c.To {
				c.To = d.At
			}
		}
		if layer == 0 {
			layer = d.Layer
		} else if d.Layer != layer {
			single = false
		}
	}
	if single {
		c.Layer = layer
	}
	if whole || !timed {
		c.From, c.To = 0, math.MaxInt64
	}
	return c
}
