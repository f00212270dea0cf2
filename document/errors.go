package document

import "errors"

// Validation errors. All of them are recoverable: a rejected edit leaves
// the document unchanged and usable. Storage errors pass through
// wrapping storage.ErrStorageFailure.
var (
	// ErrUnknownLayer means the edit references a layer that does not
	// exist in this document.
	ErrUnknownLayer = errors.New("document: unknown layer")

	// ErrUnknownElement means the edit references an element that does
	// not exist, or exists on a different layer than the edit claims.
	ErrUnknownElement = errors.New("document: unknown element")

	// ErrTimeOrdering means the edit references a time before the
	// layer's first keyframe, where no frame is defined.
	ErrTimeOrdering = errors.New("document: time ordering violation")

	// ErrInvalidEditState means the edit is a duplicate of state that
	// already exists (adding a layer, keyframe or element twice).
	ErrInvalidEditState = errors.New("document: invalid edit state")
)
