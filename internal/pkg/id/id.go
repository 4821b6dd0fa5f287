package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New returns a fresh ULID string. It names users, parked approvals and
// realtime connections; ids are never reused within a process lifetime.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
