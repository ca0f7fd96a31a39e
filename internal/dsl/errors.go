package dsl

import (
	"errors"
	"fmt"
)

// Parse error kinds. Match them with errors.Is.
var (
	ErrUnknownClause = errors.New("unknown clause")
	ErrInvalidRange  = errors.New("invalid address range")
	ErrInvalidPort   = errors.New("invalid port")
	ErrMissingAction = errors.New("missing action clause")

	// ErrInvalidAddress is a malformed or non-IPv4 address. It is an
	// ErrInvalidRange as well.
	ErrInvalidAddress = fmt.Errorf("%w: not an IPv4 address", ErrInvalidRange)

	// ErrEmptyExpression is blank input.
	ErrEmptyExpression = errors.New("empty filter expression")
	// ErrProtocolMismatch is a port clause whose protocol disagrees with the
	// protocol clause or with another port clause, e.g.
	// "tcp.dstport == 80 and udp.srcport == 53".
	ErrProtocolMismatch = errors.New("conflicting protocols")
)

// ParseError reports why a filter expression was rejected. Kind is one of
// ErrUnknownClause, ErrInvalidRange (including ErrInvalidAddress),
// ErrInvalidPort or ErrMissingAction, plus ErrEmptyExpression for blank
// input and ErrProtocolMismatch for grammatically valid input that mixes
// tcp and udp: a port clause implies its protocol, so
// "tcp.dstport == 80 and udp.srcport == 53" is rejected.
type ParseError struct {
	Kind  error  // one of the Err* kinds above
	Text  string // the full expression, for correlating with the caller
	Token string // offending token, empty when the whole expression is at fault
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("filter %q: %v", e.Text, e.Kind)
	}
	return fmt.Sprintf("filter %q: %v: %q", e.Text, e.Kind, e.Token)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

func newParseError(kind error, text, token string) *ParseError {
	return &ParseError{Kind: kind, Text: text, Token: token}
}
