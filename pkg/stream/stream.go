// Package stream is the append-only fingerprint log between the
// builder and the detector. Entries are immutable, ids are
// server-assigned and strictly increasing, and readers walk a cursor
// that only ever moves forward.
package stream

import (
	"context"
	"time"
)

// Tail is the cursor meaning "only entries appended after now".
const Tail = "$"

// Start is the cursor meaning "from the beginning of the stream".
const Start = "0"

// Entry is one emitted fingerprint as stored on the stream.
type Entry struct {
	ID   string
	Data string // wire form, e.g. [0.500000,0.500000]
	At   time.Time
}

// Stream is the ordered fingerprint log.
type Stream interface {
	// Append adds a fingerprint and returns its assigned id.
	Append(ctx context.Context, vec []float64) (string, error)
	// Read returns the first entry strictly after cursor, blocking up
	// to block for one to arrive. On timeout it returns (nil, cursor,
	// nil): no entry, cursor unchanged, no error.
	Read(ctx context.Context, cursor string, block time.Duration) (*Entry, string, error)
}
