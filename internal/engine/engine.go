// Package engine is the boundary to the native packet-filtering engine.
//
// An Engine hands out connections; a Conn installs, deletes and enumerates
// filters. Implementations: the Windows Filtering Platform (NewWFP) and an
// in-process engine with the same semantics (NewMemory) used for tests and
// simulation.
package engine

import (
	"context"

	"github.com/bolasblack/gowfp/internal/compiler"
	"github.com/bolasblack/gowfp/internal/dsl"
)

// FilterID identifies one installed native filter. It is opaque to callers
// and only meaningful to the engine that issued it.
type FilterID string

// Record is a filter as reported by the engine's enumeration.
type Record struct {
	ID          FilterID
	Name        string
	Description string
	// Provider is the provider name the filter was installed under; empty
	// for filters owned by other software.
	Provider   string
	Layer      compiler.Layer
	Action     dsl.Action
	Weight     uint64
	Conditions []compiler.Condition
}

// OpenOptions configures a connection.
type OpenOptions struct {
	// Provider names the connection and the filters it installs.
	Provider    string
	Description string
	// Dynamic asks the engine to drop every filter added through the
	// connection when the connection closes, including on process death.
	Dynamic bool
}

// Engine opens connections to the native filtering engine.
type Engine interface {
	// Open acquires a new connection. It returns ErrAccessDenied when the
	// process lacks the privilege the engine requires.
	Open(ctx context.Context, opts OpenOptions) (Conn, error)
}

// Conn is one open connection. It is not safe for concurrent use.
type Conn interface {
	// AddFilter installs f and returns its identifier.
	AddFilter(ctx context.Context, f *compiler.Filter) (FilterID, error)

	// DeleteFilter removes one filter. It returns ErrFilterNotFound when the
	// filter no longer exists.
	DeleteFilter(ctx context.Context, id FilterID) error

	// Filters enumerates every filter currently installed in the engine.
	Filters(ctx context.Context) ([]Record, error)

	// Close releases the connection. Calls after the first return
	// ErrSessionNotOpen.
	Close() error
}
