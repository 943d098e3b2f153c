// Package dedup generates MessageDeduplicationId values for FIFO queues that
// do not use content-based deduplication.
package dedup

import (
	"strings"

	"github.com/google/uuid"
)

// Generator returns a new deduplication id on each call.
type Generator func() string

// prefix is fixed for the life of the process so ids from different
// processes (or restarts) are distinguishable.
var prefix = hex(uuid.New())

// Next returns a process-unique deduplication id of the form
// "<process-prefix>-<random>". Both halves are 32 hex characters, which keeps
// the id within the 128 character limit SQS places on the field.
func Next() string {
	return prefix + "-" + hex(uuid.New())
}

// Prefix returns the process-scoped part shared by every id from Next.
func Prefix() string {
	return prefix
}

func hex(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
