// Package editlog maintains the append-only, strictly ordered history of
// committed edits together with the undo/redo position pointer. Entries
// are never mutated once appended; undo moves the pointer backward and
// marks the entry inactive, redo moves it forward again. Appending after
// an undo forks the history: the inactive tail is discarded for good.
//
// The set of active entries replayed in order always reproduces the
// document's live in-memory state; that equivalence is the log's
// correctness contract and is exercised by the document tests.
package editlog
