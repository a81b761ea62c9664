// Package pipeline moves packages in and out of the archive.
//
// Ingestion opens a submission package, parses and verifies its manifest,
// writes each payload file under the submitter's namespace and indexes the
// result as one metadata record. Either all of this happens or none of it
// is kept. Reconstruction goes the other way, rebuilding a dissemination
// package from a record with freshly computed digests. It delivers what it
// can and skips files which cannot be read.
package pipeline

import (
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
)

// DefaultWorkers is used when a worker count is not positive.
const DefaultWorkers = 4

func now(c clock.Clock) time.Time {
	if c == nil {
		return time.Now()
	}
	return c.Now()
}

func newID(f func() string) string {
	if f == nil {
		return uuid.New().String()
	}
	return f()
}

func workers(n int) int {
	if n < 1 {
		return DefaultWorkers
	}
	return n
}
