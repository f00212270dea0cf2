package document

import (
	"fmt"
	"sort"

	"github.com/happydpc/flowbetween/edit"
	"github.com/happydpc/flowbetween/storage"
	"github.com/happydpc/flowbetween/vector"
)

// layerState holds one layer's keyframes. times is kept sorted and
// strictly increasing; frames maps each keyframe time to the ids of the
// elements it owns.
type layerState struct {
	id     edit.LayerID
	name   string
	times  []edit.Time
	frames map[edit.Time]map[vector.ElementID]struct{}
}

// elementState is the arena entry for one element: its content plus the
// keyframe it is attached to, looked up by id rather than held by a
// parent pointer.
type elementState struct {
	elem  vector.Element
	layer edit.LayerID
	at    edit.Time
}

// model is the in-memory document state. All mutation goes through
// apply, which validates first and leaves the model untouched on error.
type model struct {
	layers   map[edit.LayerID]*layerState
	order    []edit.LayerID
	elements map[vector.ElementID]*elementState
	props    storage.Properties
}

func newModel(props storage.Properties) *model {
	return &model{
		layers:   make(map[edit.LayerID]*layerState),
		elements: make(map[vector.ElementID]*elementState),
		props:    props,
	}
}

// frameAt returns the time of the nearest keyframe at or before q, the
// frame visible at q. ok is false before the first keyframe.
func (l *layerState) frameAt(q edit.Time) (edit.Time, bool) {
	i := sort.Search(len(l.times), func(i int) bool { return l.times[i] > q })
	if i == 0 {
		return 0, false
	}
	return l.times[i-1], true
}

func (l *layerState) insertTime(at edit.Time) {
	i := sort.Search(len(l.times), func(i int) bool { return l.times[i] >= at })
	l.times = append(l.times, 0)
	copy(l.times[i+1:], l.times[i:])
	l.times[i] = at
}

func (l *layerState) removeTime(at edit.Time) {
	i := sort.Search(len(l.times), func(i int) bool { return l.times[i] >= at })
	if i < len(l.times) && l.times[i] == at {
		l.times = append(l.times[:i], l.times[i+1:]...)
	}
}

func (m *model) insertLayer(id edit.LayerID) {
	i := sort.Search(len(m.order), func(i int) bool { return m.order[i] >= id })
	m.order = append(m.order, 0)
	copy(m.order[i+1:], m.order[i:])
	m.order[i] = id
}

func (m *model) removeLayer(id edit.LayerID) {
	i := sort.Search(len(m.order), func(i int) bool { return m.order[i] >= id })
	if i < len(m.order) && m.order[i] == id {
		m.order = append(m.order[:i], m.order[i+1:]...)
	}
}

func sortedIDs(set map[vector.ElementID]struct{}) []vector.ElementID {
	ids := make([]vector.ElementID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// apply validates op against the current state, mutates the model, and
// returns the storage deltas the mutation implies together with the
// compensating inverse. On a validation error the model is unchanged.
// Applying the returned inverse restores the state exactly, property
// values included.
func (m *model) apply(op edit.Op) ([]storage.Delta, edit.Op, error) {
	switch o := op.(type) {
	case edit.AddLayer:
		if _, ok := m.layers[o.Layer]; ok {
			return nil, nil, fmt.Errorf("add layer %d: %w", o.Layer, ErrInvalidEditState)
		}
		m.layers[o.Layer] = &layerState{
			id:     o.Layer,
			name:   o.Name,
			frames: make(map[edit.Time]map[vector.ElementID]struct{}),
		}
		m.insertLayer(o.Layer)
		deltas := []storage.Delta{{Kind: storage.PutLayer, Layer: o.Layer, Name: o.Name, Ordinal: int(o.Layer)}}
		return deltas, edit.RemoveLayer{Layer: o.Layer}, nil

	case edit.RemoveLayer:
		l, ok := m.layers[o.Layer]
		if !ok {
			return nil, nil, fmt.Errorf("remove layer %d: %w", o.Layer, ErrUnknownLayer)
		}
		// The inverse rebuilds the layer with every keyframe and element
		// it held, so an undo restores the full content.
		restore := edit.Compound{Ops: []edit.Op{edit.AddLayer{Layer: o.Layer, Name: l.name}}}
		for _, at := range l.times {
			restore.Ops = append(restore.Ops, edit.AddKeyframe{Layer: o.Layer, At: at})
			for _, id := range sortedIDs(l.frames[at]) {
				restore.Ops = append(restore.Ops, edit.AddElement{
					Layer: o.Layer, At: at, Element: m.elements[id].elem.Clone(),
				})
			}
		}
		for _, frame := range l.frames {
			for id := range frame {
				delete(m.elements, id)
			}
		}
		delete(m.layers, o.Layer)
		m.removeLayer(o.Layer)
		return []storage.Delta{{Kind: storage.DeleteLayer, Layer: o.Layer}}, restore, nil

	case edit.SetLayerName:
		l, ok := m.layers[o.Layer]
		if !ok {
			return nil, nil, fmt.Errorf("set layer name %d: %w", o.Layer, ErrUnknownLayer)
		}
		prev := l.name
		l.name = o.Name
		deltas := []storage.Delta{{Kind: storage.PutLayer, Layer: o.Layer, Name: o.Name, Ordinal: int(o.Layer)}}
		return deltas, edit.SetLayerName{Layer: o.Layer, Name: prev}, nil

	case edit.SetCanvasSize:
		prev := edit.SetCanvasSize{Width: m.props.CanvasWidth, Height: m.props.CanvasHeight}
		m.props.CanvasWidth = o.Width
		m.props.CanvasHeight = o.Height
		return []storage.Delta{{Kind: storage.PutProperties, Properties: m.props}}, prev, nil

	case edit.AddKeyframe:
		l, ok := m.layers[o.Layer]
		if !ok {
			return nil, nil, fmt.Errorf("add keyframe on layer %d: %w", o.Layer, ErrUnknownLayer)
		}
		if _, ok := l.frames[o.At]; ok {
			return nil, nil, fmt.Errorf("add keyframe at %d on layer %d: %w", o.At, o.Layer, ErrInvalidEditState)
		}
		l.frames[o.At] = make(map[vector.ElementID]struct{})
		l.insertTime(o.At)
		deltas := []storage.Delta{{Kind: storage.PutKeyframe, Layer: o.Layer, At: o.At}}
		return deltas, edit.RemoveKeyframe{Layer: o.Layer, At: o.At}, nil

	case edit.RemoveKeyframe:
		l, ok := m.layers[o.Layer]
		if !ok {
			return nil, nil, fmt.Errorf("remove keyframe on layer %d: %w", o.Layer, ErrUnknownLayer)
		}
		frame, ok := l.frames[o.At]
		if !ok {
			return nil, nil, fmt.Errorf("remove keyframe at %d on layer %d: %w", o.At, o.Layer, ErrInvalidEditState)
		}
		restore := edit.Compound{Ops: []edit.Op{edit.AddKeyframe{Layer: o.Layer, At: o.At}}}
		for _, id := range sortedIDs(frame) {
			restore.Ops = append(restore.Ops, edit.AddElement{
				Layer: o.Layer, At: o.At, Element: m.elements[id].elem.Clone(),
			})
			delete(m.elements, id)
		}
		delete(l.frames, o.At)
		l.removeTime(o.At)
		deltas := []storage.Delta{{Kind: storage.DeleteKeyframe, Layer: o.Layer, At: o.At}}
		return deltas, restore, nil

	case edit.AddElement:
		id := o.Element.ID
		if _, ok := m.elements[id]; ok {
			return nil, nil, fmt.Errorf("add element %d: %w", id, ErrInvalidEditState)
		}
		l, ok := m.layers[o.Layer]
		if !ok {
			return nil, nil, fmt.Errorf("add element on layer %d: %w", o.Layer, ErrUnknownLayer)
		}
		kat, ok := l.frameAt(o.At)
		if !ok {
			return nil, nil, fmt.Errorf("add element at %d on layer %d: no keyframe at or before: %w", o.At, o.Layer, ErrTimeOrdering)
		}
		elem := o.Element.Clone()
		m.elements[id] = &elementState{elem: elem, layer: o.Layer, at: kat}
		l.frames[kat][id] = struct{}{}
		deltas := []storage.Delta{{Kind: storage.PutElement, Layer: o.Layer, At: kat, ElementID: id, Element: elem.Clone()}}
		return deltas, edit.RemoveElement{Layer: o.Layer, Element: id}, nil

	case edit.RemoveElement:
		es, ok := m.elements[o.Element]
		if !ok || es.layer != o.Layer {
			return nil, nil, fmt.Errorf("remove element %d on layer %d: %w", o.Element, o.Layer, ErrUnknownElement)
		}
		restore := edit.AddElement{Layer: es.layer, At: es.at, Element: es.elem.Clone()}
		delete(m.layers[es.layer].frames[es.at], o.Element)
		delete(m.elements, o.Element)
		deltas := []storage.Delta{{Kind: storage.DeleteElement, Layer: es.layer, At: es.at, ElementID: o.Element}}
		return deltas, restore, nil

	case edit.MoveElement:
		es, ok := m.elements[o.Element]
		if !ok {
			return nil, nil, fmt.Errorf("move element %d: %w", o.Element, ErrUnknownElement)
		}
		target, ok := m.layers[o.Layer]
		if !ok {
			return nil, nil, fmt.Errorf("move element %d to layer %d: %w", o.Element, o.Layer, ErrUnknownLayer)
		}
		kat, ok := target.frameAt(o.At)
		if !ok {
			return nil, nil, fmt.Errorf("move element %d to %d on layer %d: no keyframe at or before: %w", o.Element, o.At, o.Layer, ErrTimeOrdering)
		}
		inverse := edit.MoveElement{Element: o.Element, Layer: es.layer, At: es.at}
		if es.layer == o.Layer && es.at == kat {
			// Already on the target keyframe.
			return nil, inverse, nil
		}
		deltas := []storage.Delta{
			{Kind: storage.DeleteElement, Layer: es.layer, At: es.at, ElementID: o.Element},
			{Kind: storage.PutElement, Layer: o.Layer, At: kat, ElementID: o.Element, Element: es.elem.Clone()},
		}
		delete(m.layers[es.layer].frames[es.at], o.Element)
		target.frames[kat][o.Element] = struct{}{}
		es.layer, es.at = o.Layer, kat
		return deltas, inverse, nil

	case edit.SetElementProperty:
		es, ok := m.elements[o.Element]
		if !ok {
			return nil, nil, fmt.Errorf("set property on element %d: %w", o.Element, ErrUnknownElement)
		}
		prev := edit.SetElementProperty{Element: o.Element, Key: o.Key, Value: es.elem.Properties[o.Key]}
		if o.Value == "" {
			delete(es.elem.Properties, o.Key)
		} else {
			if es.elem.Properties == nil {
				es.elem.Properties = make(map[string]string)
			}
			es.elem.Properties[o.Key] = o.Value
		}
		deltas := []storage.Delta{{Kind: storage.PutElement, Layer: es.layer, At: es.at, ElementID: o.Element, Element: es.elem.Clone()}}
		return deltas, prev, nil

	case edit.Compound:
		var deltas []storage.Delta
		var undo []edit.Op
		for _, sub := range o.Ops {
			ds, subInv, err := m.apply(sub)
			if err != nil {
				// Roll back the members already applied.
				for i := len(undo) - 1; i >= 0; i-- {
					if _, _, rerr := m.apply(undo[i]); rerr != nil {
						return nil, nil, fmt.Errorf("%w (rollback failed: %v)", err, rerr)
					}
				}
				return nil, nil, err
			}
			deltas = append(deltas, ds...)
			undo = append(undo, subInv)
		}
		inverse := edit.Compound{Ops: make([]edit.Op, 0, len(undo))}
		for i := len(undo) - 1; i >= 0; i-- {
			inverse.Ops = append(inverse.Ops, undo[i])
		}
		return deltas, inverse, nil

	default:
		return nil, nil, fmt.Errorf("apply %s: unsupported operation: %w", op.Kind(), ErrInvalidEditState)
	}
}

// elementsAt returns clones of the elements visible on layer at time q,
// in id order. Before the first keyframe the set is empty.
func (m *model) elementsAt(layer edit.LayerID, q edit.Time) ([]vector.Element, error) {
	l, ok := m.layers[layer]
	if !ok {
		return nil, fmt.Errorf("elements at %d on layer %d: %w", q, layer, ErrUnknownLayer)
	}
	kat, ok := l.frameAt(q)
	if !ok {
		return nil, nil
	}
	ids := sortedIDs(l.frames[kat])
	out := make([]vector.Element, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.elements[id].elem.Clone())
	}
	return out, nil
}
