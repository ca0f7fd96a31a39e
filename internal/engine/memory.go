package engine

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"sync"

	"github.com/bolasblack/gowfp/internal/compiler"
	"github.com/bolasblack/gowfp/internal/dsl"
)

// Compile-time interface assertions.
var (
	_ Engine = (*Memory)(nil)
	_ Conn   = (*memoryConn)(nil)
)

// Memory is an in-process filtering engine. Filter state is shared by all
// connections, like a real engine, and connections opened with Dynamic drop
// their filters on Close.
//
// Fault injection methods (DenyOpen, FailAdd, FailDelete) configure errors
// before use; call recording fields are read after.
type Memory struct {
	mu sync.Mutex

	filters []memoryFilter
	nextID  uint64
	nextCon uint64

	denyOpen   bool
	addErr     error
	deleteErrs map[FilterID]error

	opened int
	closed int

	// providers registered by a first AddFilter, in registration order.
	providers []string

	// deleteCalls records every DeleteFilter invocation, failed or not.
	deleteCalls []FilterID
}

type memoryFilter struct {
	record Record
	owner  uint64
}

// NewMemory returns an empty in-process engine.
func NewMemory() *Memory {
	return &Memory{deleteErrs: make(map[FilterID]error)}
}

// DenyOpen makes Open fail with ErrAccessDenied.
func (m *Memory) DenyOpen() *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denyOpen = true
	return m
}

// FailAdd makes every AddFilter fail with err (nil restores success).
func (m *Memory) FailAdd(err error) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addErr = err
	return m
}

// FailDelete makes DeleteFilter(id) fail with err. The filter stays installed.
func (m *Memory) FailDelete(id FilterID, err error) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErrs[id] = err
	return m
}

// Records returns a snapshot of the installed filters in install order.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// OpenConns returns the number of connections currently open.
func (m *Memory) OpenConns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened - m.closed
}

// Providers returns the providers registered so far. Like the native
// engine, a provider is registered by its first AddFilter, not by Open.
func (m *Memory) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.providers)
}

// DeleteCalls returns the IDs passed to DeleteFilter, in call order.
func (m *Memory) DeleteCalls() []FilterID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.deleteCalls)
}

// Open implements Engine.
func (m *Memory) Open(ctx context.Context, opts OpenOptions) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.denyOpen {
		return nil, ErrAccessDenied
	}
	m.nextCon++
	m.opened++
	return &memoryConn{engine: m, id: m.nextCon, opts: opts}, nil
}

func (m *Memory) snapshotLocked() []Record {
	out := make([]Record, 0, len(m.filters))
	for _, f := range m.filters {
		rec := f.record
		rec.Conditions = slices.Clone(rec.Conditions)
		out = append(out, rec)
	}
	return out
}

func (m *Memory) indexLocked(id FilterID) int {
	return slices.IndexFunc(m.filters, func(f memoryFilter) bool { return f.record.ID == id })
}

type memoryConn struct {
	engine *Memory
	id     uint64
	opts   OpenOptions
	closed bool
}

func (c *memoryConn) AddFilter(ctx context.Context, f *compiler.Filter) (FilterID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m := c.engine
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.closed {
		return "", ErrSessionNotOpen
	}
	if m.addErr != nil {
		return "", m.addErr
	}
	if !slices.Contains(m.providers, c.opts.Provider) {
		m.providers = append(m.providers, c.opts.Provider)
	}

	m.nextID++
	id := FilterID(fmt.Sprintf("mem-%d", m.nextID))
	m.filters = append(m.filters, memoryFilter{
		owner: c.id,
		record: Record{
			ID:          id,
			Name:        f.Name,
			Description: f.Description,
			Provider:    c.opts.Provider,
			Layer:       f.Layer,
			Action:      f.Action,
			Weight:      f.Weight,
			Conditions:  slices.Clone(f.Conditions),
		},
	})
	return id, nil
}

func (c *memoryConn) DeleteFilter(ctx context.Context, id FilterID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := c.engine
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.closed {
		return ErrSessionNotOpen
	}
	m.deleteCalls = append(m.deleteCalls, id)
	if err := m.deleteErrs[id]; err != nil {
		return err
	}

	i := m.indexLocked(id)
	if i < 0 {
		return ErrFilterNotFound
	}
	m.filters = slices.Delete(m.filters, i, i+1)
	return nil
}

func (c *memoryConn) Filters(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := c.engine
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.closed {
		return nil, ErrSessionNotOpen
	}
	return m.snapshotLocked(), nil
}

func (c *memoryConn) Close() error {
	m := c.engine
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.closed {
		return ErrSessionNotOpen
	}
	c.closed = true
	m.closed++

	if c.opts.Dynamic {
		m.filters = slices.DeleteFunc(m.filters, func(f memoryFilter) bool { return f.owner == c.id })
	}
	return nil
}

// Packet describes a connection attempt for Evaluate.
type Packet struct {
	Direction  dsl.Direction
	Protocol   dsl.Protocol
	RemoteAddr netip.Addr
	RemotePort uint16
	LocalPort  uint16
}

// Evaluate returns the verdict the engine would apply to p: the action of
// the highest-weight matching filter, or Allow when nothing matches.
// Among equal weights the earliest installed filter wins; real engines
// leave that order undefined.
func (m *Memory) Evaluate(p Packet) dsl.Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	verdict := dsl.Allow
	found := false
	var best uint64
	for _, f := range m.filters {
		if !Matches(f.record, p) {
			continue
		}
		if !found || f.record.Weight > best {
			found = true
			best = f.record.Weight
			verdict = f.record.Action
		}
	}
	return verdict
}

// Matches reports whether rec applies to p.
func Matches(rec Record, p Packet) bool {
	if rec.Layer.Direction != p.Direction {
		return false
	}
	if rec.Layer.Protocol != dsl.ProtoAny && rec.Layer.Protocol != p.Protocol {
		return false
	}
	for _, c := range rec.Conditions {
		if !conditionMatches(c, p) {
			return false
		}
	}
	return true
}

func conditionMatches(c compiler.Condition, p Packet) bool {
	switch c.Field {
	case compiler.FieldRemoteAddress:
		return c.Low.Compare(p.RemoteAddr) <= 0 && p.RemoteAddr.Compare(c.High) <= 0
	case compiler.FieldRemotePort:
		return c.Port == p.RemotePort
	case compiler.FieldLocalPort:
		return c.Port == p.LocalPort
	case compiler.FieldProtocol:
		return c.Protocol == p.Protocol
	default:
		return false
	}
}
