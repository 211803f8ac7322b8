package store

import "github.com/oklog/ulid/v2"

// newID mints a lexicographically sortable unique id, matching the
// teacher's id minting convention across sessions, messages, and parts.
func newID() string {
	return ulid.Make().String()
}
