package store

import "errors"

// Storage error kinds (spec.md §7). These are sentinel values so callers
// can test with errors.Is; none of them is retried internally — they are
// surfaced as-is once classified.
var (
	// ErrStorageInit is returned by Open when the schema exists but
	// cannot be migrated to the current version.
	ErrStorageInit = errors.New("store: storage init failed")

	// ErrStorageFull indicates the backing file system rejected a write
	// after the internal retry budget was exhausted.
	ErrStorageFull = errors.New("store: storage full")

	// ErrStorageCorrupt indicates the database file itself is unreadable
	// or fails an integrity check.
	ErrStorageCorrupt = errors.New("store: storage corrupt")

	// ErrConstraintViolation indicates an invariant breach (spec.md I1-I8)
	// detected at the storage boundary — a bug, not a runtime condition.
	ErrConstraintViolation = errors.New("store: constraint violation")

	// ErrNotFound is returned by lookups that find nothing, and is not
	// itself one of the non-retryable storage kinds above.
	ErrNotFound = errors.New("store: not found")

	// ErrCannotDelete is returned by DeleteMessage for event types the
	// spec forbids tombstoning (session.start, compact.boundary) or
	// events that are already tombstoned.
	ErrCannotDelete = errors.New("store: cannot delete")

	// ErrAmbiguousPrefix is returned by GetSession when a prefix id
	// resolves to more than one session.
	ErrAmbiguousPrefix = errors.New("store: ambiguous session id prefix")
)
