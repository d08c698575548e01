package editor

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces block ids. The editor re-draws until the id is not
// already present in its list.
type IDGenerator interface {
	NewID() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// Sequence hands out monotonically increasing ids with a fixed prefix.
type Sequence struct {
	Prefix string
	n      atomic.Uint64
}

func (s *Sequence) NewID() string {
	return s.Prefix + strconv.FormatUint(s.n.Add(1), 10)
}
