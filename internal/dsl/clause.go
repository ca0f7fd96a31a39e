// Package dsl parses filter expressions such as
//
//	outbound and tcp and remoteaddr == 192.168.1.3-192.168.1.4 and tcp.dstport == 8123 and action == allow
//
// into an Expression of typed clauses. Parsing is pure and never blocks.
package dsl

import (
	"fmt"
	"net/netip"
)

// Direction is the traffic direction a filter applies to.
type Direction int

const (
	// DirectionUnset means the expression carries no direction clause.
	DirectionUnset Direction = iota
	// Outbound matches connections initiated by this host.
	Outbound
	// Inbound matches connections accepted by this host.
	Inbound
)

// String returns the DSL keyword for the direction.
func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "unset"
	}
}

// Protocol represents the transport protocol of a filter.
type Protocol int

const (
	// ProtoAny matches every IP protocol (no protocol clause).
	ProtoAny Protocol = iota
	// ProtoTCP matches TCP only.
	ProtoTCP
	// ProtoUDP matches UDP only.
	ProtoUDP
)

// String returns the protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	default:
		return "any"
	}
}

// Number returns the IANA protocol number, or 0 for ProtoAny.
func (p Protocol) Number() uint8 {
	switch p {
	case ProtoTCP:
		return 6
	case ProtoUDP:
		return 17
	default:
		return 0
	}
}

// Action is the verdict applied to matching traffic.
type Action int

const (
	// ActionUnset means the expression carries no action clause.
	ActionUnset Action = iota
	// Allow permits matching traffic.
	Allow
	// Block drops matching traffic.
	Block
)

// String returns the DSL keyword for the action.
func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case Block:
		return "block"
	default:
		return "unset"
	}
}

// PortField names one of the four port fields of the DSL.
type PortField int

const (
	TCPDstPort PortField = iota
	TCPSrcPort
	UDPDstPort
	UDPSrcPort
)

// PortFields lists every port field in documentation order.
var PortFields = []PortField{TCPDstPort, TCPSrcPort, UDPDstPort, UDPSrcPort}

var portFieldNames = map[PortField]string{
	TCPDstPort: "tcp.dstport",
	TCPSrcPort: "tcp.srcport",
	UDPDstPort: "udp.dstport",
	UDPSrcPort: "udp.srcport",
}

// String returns the DSL spelling, e.g. "tcp.dstport".
func (f PortField) String() string {
	if name, ok := portFieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("portfield(%d)", int(f))
}

// Protocol returns the protocol implied by the field prefix.
func (f PortField) Protocol() Protocol {
	if f == UDPDstPort || f == UDPSrcPort {
		return ProtoUDP
	}
	return ProtoTCP
}

// IsDestination reports whether the field refers to the destination port.
func (f PortField) IsDestination() bool {
	return f == TCPDstPort || f == UDPDstPort
}

// FieldKey identifies the slot a clause occupies in an Expression.
// Two clauses with the same key overwrite each other.
type FieldKey string

const (
	KeyDirection     FieldKey = "direction"
	KeyProtocol      FieldKey = "protocol"
	KeyRemoteAddress FieldKey = "remoteaddr"
	KeyAction        FieldKey = "action"
)

// Clause is one term of a filter expression.
type Clause interface {
	// Key returns the slot this clause occupies.
	Key() FieldKey
	// String renders the clause back in DSL form.
	String() string
}

// DirectionClause is "inbound" or "outbound".
type DirectionClause struct {
	Value Direction
}

func (c DirectionClause) Key() FieldKey  { return KeyDirection }
func (c DirectionClause) String() string { return c.Value.String() }

// ProtocolClause is a bare "tcp" or "udp".
type ProtocolClause struct {
	Value Protocol
}

func (c ProtocolClause) Key() FieldKey  { return KeyProtocol }
func (c ProtocolClause) String() string { return c.Value.String() }

// RemoteAddressClause is "remoteaddr == A" or "remoteaddr == A-B".
// A single address is stored as Low == High.
type RemoteAddressClause struct {
	Low  netip.Addr
	High netip.Addr
}

func (c RemoteAddressClause) Key() FieldKey { return KeyRemoteAddress }

func (c RemoteAddressClause) String() string {
	if c.IsSingle() {
		return fmt.Sprintf("remoteaddr == %s", c.Low)
	}
	return fmt.Sprintf("remoteaddr == %s-%s", c.Low, c.High)
}

// IsSingle reports whether the clause names exactly one address.
func (c RemoteAddressClause) IsSingle() bool {
	return c.Low == c.High
}

// Contains reports whether addr lies within [Low, High].
func (c RemoteAddressClause) Contains(addr netip.Addr) bool {
	return c.Low.Compare(addr) <= 0 && addr.Compare(c.High) <= 0
}

// PortClause is "<proto>.<dst|src>port == N".
type PortClause struct {
	Field PortField
	Value uint16
}

func (c PortClause) Key() FieldKey  { return FieldKey(c.Field.String()) }
func (c PortClause) String() string { return fmt.Sprintf("%s == %d", c.Field, c.Value) }

// ActionClause is "action == allow" or "action == block".
type ActionClause struct {
	Value Action
}

func (c ActionClause) Key() FieldKey  { return KeyAction }
func (c ActionClause) String() string { return "action == " + c.Value.String() }
