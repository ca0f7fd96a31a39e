package compiler

import (
	"net/netip"

	"github.com/bolasblack/gowfp/internal/dsl"
)

// Full IPv4 space, used when an expression has no other condition.
var (
	anyIPv4Low  = netip.AddrFrom4([4]byte{0, 0, 0, 0})
	anyIPv4High = netip.AddrFrom4([4]byte{255, 255, 255, 255})
)

// Options are per-filter overrides. Zero values mean "use the default".
type Options struct {
	Name   string
	Weight *uint64
}

// Compiler compiles expressions. It is safe for concurrent use.
type Compiler struct {
	namer         Namer
	defaultWeight uint64
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithNamer sets the namer used for unnamed filters.
func WithNamer(n Namer) Option {
	return func(c *Compiler) {
		c.namer = n
	}
}

// WithDefaultWeight sets the weight used when Options.Weight is nil.
func WithDefaultWeight(w uint64) Option {
	return func(c *Compiler) {
		c.defaultWeight = w
	}
}

// New creates a Compiler with a process-unique namer and DefaultWeight.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		namer:         NewNamer(),
		defaultWeight: DefaultWeight,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile maps a parsed expression onto a Filter. It never fails: every
// rejection happens in dsl.Parse.
//
// Direction and protocol select the layer (outbound when no direction is
// given). Each address or port clause becomes one condition, in the order
// the fields first appeared. If that leaves no condition, the layer
// protocol is materialized as a condition, or, with no protocol, a match on
// the whole IPv4 remote address space.
func (c *Compiler) Compile(expr dsl.Expression, opts Options) Filter {
	dir, ok := expr.Direction()
	if !ok {
		dir = dsl.Outbound
	}
	layer := Layer{Direction: dir, Protocol: expr.Protocol()}

	var conds []Condition
	for _, clause := range expr.Clauses() {
		switch cl := clause.(type) {
		case dsl.RemoteAddressClause:
			conds = append(conds, AddressCondition(cl.Low, cl.High))
		case dsl.PortClause:
			conds = append(conds, Condition{
				Field: portField(dir, cl.Field),
				Match: MatchEqual,
				Port:  cl.Value,
			})
		}
	}

	if len(conds) == 0 {
		if layer.Protocol != dsl.ProtoAny {
			conds = append(conds, Condition{Field: FieldProtocol, Match: MatchEqual, Protocol: layer.Protocol})
		} else {
			conds = append(conds, AddressCondition(anyIPv4Low, anyIPv4High))
		}
	}

	name := opts.Name
	if name == "" {
		name = c.namer.Next()
	}
	weight := c.defaultWeight
	if opts.Weight != nil {
		weight = *opts.Weight
	}

	return Filter{
		Name:        name,
		Description: expr.Text,
		Layer:       layer,
		Action:      expr.Action(),
		Weight:      weight,
		Conditions:  conds,
	}
}

// CompileString parses and compiles text in one step.
func (c *Compiler) CompileString(text string, opts Options) (Filter, error) {
	expr, err := dsl.Parse(text)
	if err != nil {
		return Filter{}, err
	}
	return c.Compile(expr, opts), nil
}

// portField maps a DSL port field to a native one. Destination is the
// remote end for outbound traffic and the local end for inbound traffic.
func portField(dir dsl.Direction, f dsl.PortField) Field {
	remote := f.IsDestination() == (dir != dsl.Inbound)
	if remote {
		return FieldRemotePort
	}
	return FieldLocalPort
}

// Weight returns a pointer to w, for use in Options.
func Weight(w uint64) *uint64 {
	return &w
}
