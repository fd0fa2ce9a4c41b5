package engine

import "github.com/google/uuid"

// IDGenerator produces the unique suffix of context ids.
// Implemented by UUIDv7Generator and testutil.SequentialIDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 suffixes.
//
// Context ids are "<name>-<uuid>", so ids sort by creation time within a
// name, which keeps debug logs readable.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
