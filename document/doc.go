// Package document implements the in-memory animation document: layers
// holding keyframes, keyframes holding vector elements, mutated
// exclusively through edit operations. Every successful mutation is
// appended to the edit log and committed through the storage engine as
// one unit; a failed validation leaves document, log and store
// untouched.
//
// A Document is not safe for concurrent use. The session package owns
// the instance and serializes access to it.
package document
