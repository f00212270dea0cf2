package vector

// ElementID identifies a drawable element. IDs are assigned by the
// document when an element is first added and are unique for the
// document's lifetime; they survive moves between keyframes and layers.
type ElementID int64

// Element is a drawable unit: a path plus a bag of string properties
// (brush settings, colour, and similar). An element is owned by exactly
// one keyframe at a time; it moves between keyframes or layers only as
// the result of an edit.
type Element struct {
	ID         ElementID
	Path       Path
	Properties map[string]string
}

// NewElement creates an element with an empty property bag.
func NewElement(id ElementID, path Path) Element {
	return Element{ID: id, Path: path, Properties: map[string]string{}}
}

// Clone returns a deep copy of the element. The document hands out clones
// from read queries so callers can never alias its owned state.
func (e Element) Clone() Element {
	props := make(map[string]string, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	return Element{ID: e.ID, Path: e.Path.Clone(), Properties: props}
}

// Equal reports whether two elements have the same ID, path, and
// properties.
func (e Element) Equal(other Element) bool {
	if e.ID != other.ID || !e.Path.Equal(other.Path) {
		return false
	}
	if len(e.Properties) != len(other.Properties) {
		return false
	}
	for k, v := range e.Properties {
		if ov, ok := other.Properties[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Bounds returns the element's bounding region.
func (e Element) Bounds() Rect {
	return e.Path.Bounds()
}
