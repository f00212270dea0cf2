// Package edit defines the closed set of operations that mutate an
// animation document. Operations are forward-only deltas: they carry no
// back-references to prior state, which is what makes log replay
// deterministic. Every operation serializes through a versioned JSON
// envelope so old documents remain loadable after the set evolves.
//
// The idempotency policy for each variant is documented on its type and
// enforced by the document model's validation.
package edit
