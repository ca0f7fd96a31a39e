package dsl

import (
	"net/netip"
	"strconv"
	"strings"
)

// Expression is a parsed filter expression.
//
// Clauses are kept in a map keyed by field, so a later clause for the same
// field replaces an earlier one ("tcp.dstport == 80 and tcp.dstport == 81"
// keeps 81). Order records when each field was first seen.
type Expression struct {
	// Text is the original expression.
	Text string

	clauses map[FieldKey]Clause
	order   []FieldKey
}

// set stores c, overwriting any clause with the same key.
func (e *Expression) set(c Clause) {
	if e.clauses == nil {
		e.clauses = make(map[FieldKey]Clause)
	}
	key := c.Key()
	if _, seen := e.clauses[key]; !seen {
		e.order = append(e.order, key)
	}
	e.clauses[key] = c
}

// Clauses returns the effective clauses in first-appearance order.
func (e Expression) Clauses() []Clause {
	out := make([]Clause, 0, len(e.order))
	for _, key := range e.order {
		out = append(out, e.clauses[key])
	}
	return out
}

// Direction returns the direction clause value, if present.
func (e Expression) Direction() (Direction, bool) {
	c, ok := e.clauses[KeyDirection].(DirectionClause)
	return c.Value, ok
}

// Protocol returns the protocol of the expression: the explicit protocol
// clause, else the protocol implied by port clauses, else ProtoAny.
func (e Expression) Protocol() Protocol {
	if c, ok := e.clauses[KeyProtocol].(ProtocolClause); ok {
		return c.Value
	}
	if ports := e.Ports(); len(ports) > 0 {
		return ports[0].Field.Protocol()
	}
	return ProtoAny
}

// RemoteAddress returns the remoteaddr clause, if present.
func (e Expression) RemoteAddress() (RemoteAddressClause, bool) {
	c, ok := e.clauses[KeyRemoteAddress].(RemoteAddressClause)
	return c, ok
}

// Ports returns the port clauses in first-appearance order.
func (e Expression) Ports() []PortClause {
	var out []PortClause
	for _, key := range e.order {
		if c, ok := e.clauses[key].(PortClause); ok {
			out = append(out, c)
		}
	}
	return out
}

// Action returns the action of the expression. Parse guarantees it is set.
func (e Expression) Action() Action {
	c, _ := e.clauses[KeyAction].(ActionClause)
	return c.Value
}

// String renders the effective clauses back in DSL form.
func (e Expression) String() string {
	parts := make([]string, 0, len(e.order))
	for _, c := range e.Clauses() {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " and ")
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level fixtures.
func MustParse(text string) Expression {
	expr, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return expr
}

// Parse parses a filter expression.
//
// Grammar (keywords are case-insensitive):
//
//	expr       := clause ("and" clause)*
//	clause     := "inbound" | "outbound" | "tcp" | "udp"
//	            | "remoteaddr" "==" ip4 ["-" ip4]
//	            | ("tcp"|"udp") "." ("dstport"|"srcport") "==" uint16
//	            | "action" "==" ("allow" | "block")
//
// "field==value" may be written without spaces.
func Parse(text string) (Expression, error) {
	expr := Expression{Text: text}

	groups := splitClauses(text)
	if len(groups) == 0 {
		return Expression{}, newParseError(ErrEmptyExpression, text, "")
	}

	for _, group := range groups {
		clause, err := parseClause(text, group)
		if err != nil {
			return Expression{}, err
		}
		expr.set(clause)
	}

	if _, ok := expr.clauses[KeyAction]; !ok {
		return Expression{}, newParseError(ErrMissingAction, text, "")
	}
	if err := checkProtocols(expr); err != nil {
		return Expression{}, err
	}
	return expr, nil
}

// splitClauses tokenizes on whitespace and groups tokens between "and"
// separators. "==" is always split into its own token. An empty group
// (leading, trailing or doubled "and") is kept so it can be reported.
func splitClauses(text string) [][]string {
	tokens := strings.Fields(strings.ReplaceAll(text, "==", " == "))
	if len(tokens) == 0 {
		return nil
	}

	var groups [][]string
	var current []string
	for _, tok := range tokens {
		if strings.EqualFold(tok, "and") {
			groups = append(groups, current)
			current = nil
			continue
		}
		current = append(current, tok)
	}
	return append(groups, current)
}

// parseClause classifies one group of tokens.
func parseClause(text string, group []string) (Clause, error) {
	if len(group) == 0 {
		return nil, newParseError(ErrUnknownClause, text, "and")
	}

	keyword := strings.ToLower(group[0])

	if len(group) == 1 {
		switch keyword {
		case "outbound":
			return DirectionClause{Value: Outbound}, nil
		case "inbound":
			return DirectionClause{Value: Inbound}, nil
		case "tcp":
			return ProtocolClause{Value: ProtoTCP}, nil
		case "udp":
			return ProtocolClause{Value: ProtoUDP}, nil
		default:
			return nil, newParseError(ErrUnknownClause, text, group[0])
		}
	}

	if len(group) < 3 || group[1] != "==" {
		return nil, newParseError(ErrUnknownClause, text, strings.Join(group, " "))
	}

	switch keyword {
	case "remoteaddr":
		// Allow "A - B" with spaces around the dash.
		return parseRemoteAddress(text, strings.Join(group[2:], ""))
	case "action":
		if len(group) != 3 {
			return nil, newParseError(ErrUnknownClause, text, strings.Join(group, " "))
		}
		return parseAction(text, group[2])
	}

	if field, ok := lookupPortField(keyword); ok {
		if len(group) != 3 {
			return nil, newParseError(ErrInvalidPort, text, strings.Join(group[2:], " "))
		}
		return parsePort(text, field, group[2])
	}

	return nil, newParseError(ErrUnknownClause, text, group[0])
}

func lookupPortField(keyword string) (PortField, bool) {
	for field, name := range portFieldNames {
		if name == keyword {
			return field, true
		}
	}
	return 0, false
}

// parseRemoteAddress parses "A" or "A-B". Both ends must be IPv4 and
// High must not be numerically below Low.
func parseRemoteAddress(text, value string) (Clause, error) {
	lowStr, highStr, isRange := strings.Cut(value, "-")

	low, err := parseIPv4(lowStr)
	if err != nil {
		return nil, newParseError(ErrInvalidAddress, text, lowStr)
	}
	if !isRange {
		return RemoteAddressClause{Low: low, High: low}, nil
	}

	high, err := parseIPv4(highStr)
	if err != nil {
		return nil, newParseError(ErrInvalidAddress, text, highStr)
	}
	if high.Less(low) {
		return nil, newParseError(ErrInvalidRange, text, value)
	}
	return RemoteAddressClause{Low: low, High: high}, nil
}

func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if !addr.Is4() {
		return netip.Addr{}, ErrInvalidAddress
	}
	return addr, nil
}

func parsePort(text string, field PortField, value string) (Clause, error) {
	n, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return nil, newParseError(ErrInvalidPort, text, value)
	}
	return PortClause{Field: field, Value: uint16(n)}, nil
}

func parseAction(text, value string) (Clause, error) {
	switch strings.ToLower(value) {
	case "allow":
		return ActionClause{Value: Allow}, nil
	case "block":
		return ActionClause{Value: Block}, nil
	default:
		return nil, newParseError(ErrUnknownClause, text, "action == "+value)
	}
}

// checkProtocols rejects expressions whose port clauses disagree with each
// other or with an explicit protocol clause.
func checkProtocols(expr Expression) error {
	want := ProtoAny
	if c, ok := expr.clauses[KeyProtocol].(ProtocolClause); ok {
		want = c.Value
	}
	for _, p := range expr.Ports() {
		got := p.Field.Protocol()
		if want == ProtoAny {
			want = got
			continue
		}
		if got != want {
			return newParseError(ErrProtocolMismatch, expr.Text, p.String())
		}
	}
	return nil
}
