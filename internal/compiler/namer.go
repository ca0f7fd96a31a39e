package compiler

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Namer generates display names for filters compiled without one.
type Namer interface {
	Next() string
}

// SequenceNamer yields "<prefix>-1", "<prefix>-2", ...
type SequenceNamer struct {
	prefix string
	n      atomic.Uint64
}

// NewSequenceNamer returns a namer with a fixed prefix.
func NewSequenceNamer(prefix string) *SequenceNamer {
	return &SequenceNamer{prefix: prefix}
}

// NewNamer returns a namer whose prefix is unique to this process, so
// unnamed filters from different runs never share a name.
func NewNamer() *SequenceNamer {
	return NewSequenceNamer("gowfp-" + uuid.NewString()[:8])
}

// Next returns the next name in the sequence.
func (s *SequenceNamer) Next() string {
	return fmt.Sprintf("%s-%d", s.prefix, s.n.Add(1))
}
