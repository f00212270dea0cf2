// Package session owns one open animation document and provides its
// concurrency model: mutations are serialized through a request queue
// drained by a single worker in arrival order, reads run concurrently
// against a consistent snapshot, and every committed edit is multicast
// to subscribers as a change event in commit order.
package session
