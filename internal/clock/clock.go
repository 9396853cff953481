// Package clock abstracts time and id generation so the lifecycle engine is
// deterministic in tests.
package clock

import (
	"time"

	"github.com/google/uuid"
)

type Clock interface {
	Now() time.Time
}

// RealClock returns the current UTC time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs with an optional prefix, e.g. "doc_".
type UUIDGenerator struct {
	Prefix string
}

func (g UUIDGenerator) New() string { return g.Prefix + uuid.NewString() }
