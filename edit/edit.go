package edit

import (
	"time"

	"github.com/happydpc/flowbetween/vector"
)

// LayerID identifies a layer. IDs are assigned by the document at
// AddLayer time and stay stable for the document's lifetime.
type LayerID int64

// Time is a point on the animation timeline in integer microseconds.
// Integer time keeps keyframe ordering exact; there is no float drift.
type Time int64

// TimeFromDuration converts a duration since the start of the animation.
func TimeFromDuration(d time.Duration) Time { return Time(d.Microseconds()) }

// Duration converts t back to a time.Duration.
func (t Time) Duration() time.Duration { return time.Duration(t) * time.Microsecond }

// Kind tags an operation variant on the wire.
type Kind string

// The closed set of operation kinds.
const (
	KindAddLayer           Kind = "add_layer"
	KindRemoveLayer        Kind = "remove_layer"
	KindSetLayerName       Kind = "set_layer_name"
	KindSetCanvasSize      Kind = "set_canvas_size"
	KindAddKeyframe        Kind = "add_keyframe"
	KindRemoveKeyframe     Kind = "remove_keyframe"
	KindAddElement         Kind = "add_element"
	KindRemoveElement      Kind = "remove_element"
	KindMoveElement        Kind = "move_element"
	KindSetElementProperty Kind = "set_element_property"
	KindCompound           Kind = "compound"
)

// Op is one variant of the closed edit set. The set is closed: only the
// types in this package implement it.
type Op interface {
	Kind() Kind
	isOp()
}

// AddLayer creates a new layer with the given ID and name.
// Applying it twice fails: the layer ID already exists.
type AddLayer struct {
	Layer LayerID `json:"layer"`
	Name  string  `json:"name,omitempty"`
}

// RemoveLayer deletes a layer and everything it holds.
// Applying it twice fails: the layer is already gone.
type RemoveLayer struct {
	Layer LayerID `json:"layer"`
}

// SetLayerName replaces a layer's name. Naturally idempotent: applying
// it twice is a no-op.
type SetLayerName struct {
	Layer LayerID `json:"layer"`
	Name  string  `json:"name"`
}

// SetCanvasSize sets the document's canvas dimensions. Naturally
// idempotent.
type SetCanvasSize struct {
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// AddKeyframe creates a keyframe on a layer at a time point.
// Applying it twice fails: keyframe times within a layer are unique.
type AddKeyframe struct {
	Layer LayerID `json:"layer"`
	At    Time    `json:"at"`
}

// RemoveKeyframe deletes a keyframe and the elements it owns.
// Applying it twice fails: the keyframe is already gone.
type RemoveKeyframe struct {
	Layer LayerID `json:"layer"`
	At    Time    `json:"at"`
}

// AddElement places an element on the keyframe of a layer nearest at or
// before the given time. Applying it twice fails: element IDs are
// document-unique.
type AddElement struct {
	Layer   LayerID        `json:"layer"`
	At      Time           `json:"at"`
	Element vector.Element `json:"-"`
}

// RemoveElement deletes an element from a layer.
// Applying it twice fails: the element is already gone.
type RemoveElement struct {
	Layer   LayerID          `json:"layer"`
	Element vector.ElementID `json:"element"`
}

// MoveElement reattaches an element to the keyframe of (Layer, At).
// Moving an element to the keyframe it already occupies is a no-op.
type MoveElement struct {
	Element vector.ElementID `json:"element"`
	Layer   LayerID          `json:"layer"`
	At      Time             `json:"at"`
}

// SetElementProperty sets one key in an element's property bag. A plain
// overwrite, naturally idempotent. An empty value clears the key.
type SetElementProperty struct {
	Element vector.ElementID `json:"element"`
	Key     string           `json:"key"`
	Value   string           `json:"value"`
}

// Compound groups operations that commit as one log entry, applied in
// order. The document produces these as the inverses of destructive
// edits, where restoring the removed content takes more than one
// operation (a removed keyframe comes back with its elements).
type Compound struct {
	Ops []Op `json:"-"`
}

func (AddLayer) Kind() Kind           { return KindAddLayer }
func (RemoveLayer) Kind() Kind        { return KindRemoveLayer }
func (SetLayerName) Kind() Kind       { return KindSetLayerName }
func (SetCanvasSize) Kind() Kind      { return KindSetCanvasSize }
func (AddKeyframe) Kind() Kind        { return KindAddKeyframe }
func (RemoveKeyframe) Kind() Kind     { return KindRemoveKeyframe }
func (AddElement) Kind() Kind         { return KindAddElement }
func (RemoveElement) Kind() Kind      { return KindRemoveElement }
func (MoveElement) Kind() Kind        { return KindMoveElement }
func (SetElementProperty) Kind() Kind { return KindSetElementProperty }
func (Compound) Kind() Kind           { return KindCompound }

func (AddLayer) isOp()           {}
func (RemoveLayer) isOp()        {}
func (SetLayerName) isOp()       {}
func (SetCanvasSize) isOp()      {}
func (AddKeyframe) isOp()        {}
func (RemoveKeyframe) isOp()     {}
func (AddElement) isOp()         {}
func (RemoveElement) isOp()      {}
func (MoveElement) isOp()        {}
func (SetElementProperty) isOp() {}
func (Compound) isOp()           {}
