package storage

import (
	"github.com/happydpc/flowbetween/edit"
	"github.com/happydpc/flowbetween/vector"
)

// DeltaKind enumerates the entity changes a commit can carry.
type DeltaKind int

const (
	// PutLayer inserts or updates a layer row.
	PutLayer DeltaKind = iota
	// DeleteLayer removes a layer row; keyframes and elements cascade.
	DeleteLayer
	// PutKeyframe inserts a keyframe row.
	PutKeyframe
	// DeleteKeyframe removes a keyframe row and the elements it owns.
	DeleteKeyframe
	// PutElement inserts or updates an element snapshot.
	PutElement
	// DeleteElement removes an element snapshot.
	DeleteElement
	// PutProperties replaces the animation properties row.
	PutProperties
)

// Delta describes one minimal entity change resulting from an edit. The
// document model computes the set of deltas for each edit; the store
// persists them together with the log entry in a single transaction.
// Which fields are meaningful depends on Kind.
type Delta struct {
	Kind       DeltaKind
	Layer      edit.LayerID
	At         edit.Time
	ElementID  vector.ElementID
	Element    vector.Element // PutElement only
	Name       string         // PutLayer only
	Ordinal    int            // PutLayer only
	Properties Properties     // PutProperties only
}
