package storage

import "errors"

var (
	// ErrStorageFailure wraps every I/O or transaction error so callers
	// can classify failures without knowing the backing store. The
	// operation that hit it was aborted; the persisted state is
	// unchanged.
	ErrStorageFailure = errors.New("storage failure")

	// ErrCorruptRecord indicates a persisted blob that failed to decode
	// during a load. Under strict loading the load fails; otherwise the
	// record is skipped and logged.
	ErrCorruptRecord = errors.New("corrupt record")
)
