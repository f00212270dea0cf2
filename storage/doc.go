// Package storage maps animation documents and their edit log onto a
// SQLite database. It includes:
//   - Schema helpers creating the flo_* tables
//   - Store: transactional commits of one edit plus its entity deltas
//   - Lazy range loading of keyframes (only the requested time window,
//     plus the nearest preceding keyframe, is materialized)
//   - A bounded LRU cache of recently loaded keyframes with precise
//     invalidation on commit
//
// Every write goes through a commit method and lands in one transaction:
// on failure the transaction rolls back entirely and the error wraps
// ErrStorageFailure. Concurrent readers see either the pre-commit or the
// post-commit state, never an interleaving.
package storage
