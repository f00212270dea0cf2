// Package vector defines the drawable model for an animation: 2D points,
// cubic Bezier paths, and elements (identified drawable units carrying a
// path and a property bag). It includes:
//   - Point and Rect value types with the usual geometric helpers
//   - Path: an ordered sequence of cubic Bezier segments
//   - Element model with stable document-unique IDs
//   - Stable, versioned serialization for paths and elements
//   - Hit-testing helpers (distance from a query point to a path)
//
// Everything here is a pure value: no I/O, no identity beyond content
// (Elements carry an ID, but comparison is still structural).
package vector
