// Package compiler turns parsed filter expressions into engine-neutral
// filters: a layer, a list of typed match conditions, an action and a weight.
package compiler

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/bolasblack/gowfp/internal/dsl"
)

// DefaultWeight is the weight given to filters that do not specify one.
const DefaultWeight uint64 = 1000

// Field is a native match field.
type Field int

const (
	FieldRemoteAddress Field = iota
	FieldRemotePort
	FieldLocalPort
	FieldProtocol
)

// String returns the field name used in listings.
func (f Field) String() string {
	switch f {
	case FieldRemoteAddress:
		return "remoteaddr"
	case FieldRemotePort:
		return "remoteport"
	case FieldLocalPort:
		return "localport"
	case FieldProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// MatchType is how a condition compares a field with its value.
type MatchType int

const (
	// MatchEqual compares against a single value.
	MatchEqual MatchType = iota
	// MatchRange compares against an inclusive [Low, High] range.
	MatchRange
)

// String returns the match type name.
func (m MatchType) String() string {
	if m == MatchRange {
		return "range"
	}
	return "equal"
}

// Condition is a single (field, match type, value) triple.
// Which value fields are meaningful depends on Field:
//
//	FieldRemoteAddress: Low, High (Low == High for MatchEqual)
//	FieldRemotePort, FieldLocalPort: Port
//	FieldProtocol: Protocol
type Condition struct {
	Field    Field
	Match    MatchType
	Low      netip.Addr
	High     netip.Addr
	Port     uint16
	Protocol dsl.Protocol
}

// String renders the condition, e.g. "remoteaddr in 10.0.0.1-10.0.0.9".
func (c Condition) String() string {
	switch c.Field {
	case FieldRemoteAddress:
		if c.Match == MatchRange {
			return fmt.Sprintf("%s in %s-%s", c.Field, c.Low, c.High)
		}
		return fmt.Sprintf("%s == %s", c.Field, c.Low)
	case FieldRemotePort, FieldLocalPort:
		return fmt.Sprintf("%s == %d", c.Field, c.Port)
	case FieldProtocol:
		return fmt.Sprintf("%s == %s", c.Field, c.Protocol)
	default:
		return c.Field.String()
	}
}

// AddressCondition returns a remote-address condition for [low, high].
func AddressCondition(low, high netip.Addr) Condition {
	match := MatchRange
	if low == high {
		match = MatchEqual
	}
	return Condition{Field: FieldRemoteAddress, Match: match, Low: low, High: high}
}

// Layer is the engine attachment point. It is selected by direction and
// protocol; protocol ProtoAny attaches to all transports.
type Layer struct {
	Direction dsl.Direction
	Protocol  dsl.Protocol
}

// String returns the layer name, e.g. "outbound-transport-v4".
func (l Layer) String() string {
	return l.Direction.String() + "-transport-v4"
}

// Filter is a compiled, installable filter.
type Filter struct {
	Name        string
	Description string
	Layer       Layer
	Action      dsl.Action
	Weight      uint64
	Conditions  []Condition
}

// String renders a one-line summary of the filter.
func (f Filter) String() string {
	conds := make([]string, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		conds = append(conds, c.String())
	}
	return fmt.Sprintf("%s [%s proto=%s weight=%d] %s: %s",
		f.Name, f.Layer, f.Layer.Protocol, f.Weight, f.Action, strings.Join(conds, ", "))
}
