//go:build windows

package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
	"github.com/tailscale/wf"
	"golang.org/x/sys/windows"

	"github.com/bolasblack/gowfp/internal/compiler"
	"github.com/bolasblack/gowfp/internal/dsl"
)

// Native status codes we translate into sentinel errors.
const (
	eAccessDenied      = 0x80070005
	fwpEFilterNotFound = 0x80320003
	fwpEAlreadyExists  = 0x80320009
	sublayerWeight     = 0x8000
)

// objectNamespace seeds the stable provider and sublayer GUIDs.
var objectNamespace = uuid.MustParse("9b4f3a51-7f0c-4f59-a7a8-6f2d0c1e5b34")

// Compile-time interface assertions.
var (
	_ Engine = (*WFP)(nil)
	_ Conn   = (*wfpConn)(nil)
)

// WFP is the Windows Filtering Platform engine.
type WFP struct{}

// NewWFP returns the native engine.
func NewWFP() (Engine, error) {
	return &WFP{}, nil
}

// Open opens an engine session. The provider and sublayer the session's
// filters are installed under are registered by the first AddFilter, so
// read-only sessions leave the engine unchanged. Both have GUIDs derived
// from the provider name, so repeated sessions reuse them.
func (w *WFP) Open(ctx context.Context, opts OpenOptions) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess, err := wf.New(&wf.Options{
		Name:        opts.Provider,
		Description: opts.Description,
		Dynamic:     opts.Dynamic,
	})
	if err != nil {
		return nil, translateErr("open engine", err)
	}

	return &wfpConn{
		sess:     sess,
		objects:  sess,
		opts:     opts,
		provider: wf.ProviderID(stableGUID("provider", opts.Provider)),
		sublayer: wf.SublayerID(stableGUID("sublayer", opts.Provider)),
	}, nil
}

func stableGUID(kind, name string) windows.GUID {
	u := uuid.NewSHA1(objectNamespace, []byte(kind+":"+name))
	return windows.GUID{
		Data1: binary.BigEndian.Uint32(u[0:4]),
		Data2: binary.BigEndian.Uint16(u[4:6]),
		Data3: binary.BigEndian.Uint16(u[6:8]),
		Data4: [8]byte(u[8:16]),
	}
}

// objectRegistrar is the part of *wf.Session that registers the provider
// and sublayer.
type objectRegistrar interface {
	AddProvider(*wf.Provider) error
	AddSublayer(*wf.Sublayer) error
}

type wfpConn struct {
	sess       *wf.Session
	objects    objectRegistrar
	opts       OpenOptions
	provider   wf.ProviderID
	sublayer   wf.SublayerID
	registered bool
}

// ensureRegistered adds the provider and sublayer once per connection.
// Objects left by an earlier session are reused.
func (c *wfpConn) ensureRegistered() error {
	if c.registered {
		return nil
	}

	err := c.objects.AddProvider(&wf.Provider{
		ID:          c.provider,
		Name:        c.opts.Provider,
		Description: c.opts.Description,
	})
	if err != nil && !isStatus(err, fwpEAlreadyExists) {
		return translateErr("add provider", err)
	}

	err = c.objects.AddSublayer(&wf.Sublayer{
		ID:          c.sublayer,
		Name:        c.opts.Provider + " filters",
		Description: c.opts.Description,
		Provider:    c.provider,
		Weight:      sublayerWeight,
	})
	if err != nil && !isStatus(err, fwpEAlreadyExists) {
		return translateErr("add sublayer", err)
	}
	c.registered = true
	return nil
}

func (c *wfpConn) AddFilter(ctx context.Context, f *compiler.Filter) (FilterID, error) {
	if c.sess == nil {
		return "", ErrSessionNotOpen
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := c.ensureRegistered(); err != nil {
		return "", err
	}

	guid, err := windows.GenerateGUID()
	if err != nil {
		return "", translateErr("generate filter id", err)
	}

	rule := &wf.Rule{
		ID:          wf.RuleID(guid),
		Name:        f.Name,
		Description: f.Description,
		Layer:       layerFor(f.Layer.Direction),
		Sublayer:    c.sublayer,
		Provider:    c.provider,
		Weight:      f.Weight,
		Action:      actionFor(f.Action),
		Conditions:  matchesFor(f),
	}
	if err := c.sess.AddRule(rule); err != nil {
		return "", translateErr("add filter", err)
	}
	return FilterID(guid.String()), nil
}

func (c *wfpConn) DeleteFilter(ctx context.Context, id FilterID) error {
	if c.sess == nil {
		return ErrSessionNotOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	guid, err := windows.GUIDFromString(string(id))
	if err != nil {
		return fmt.Errorf("invalid filter id %q: %w", id, ErrFilterNotFound)
	}
	if err := c.sess.DeleteRule(wf.RuleID(guid)); err != nil {
		return translateErr("delete filter", err)
	}
	return nil
}

func (c *wfpConn) Filters(ctx context.Context) ([]Record, error) {
	if c.sess == nil {
		return nil, ErrSessionNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rules, err := c.sess.Rules()
	if err != nil {
		return nil, translateErr("enumerate filters", err)
	}

	out := make([]Record, 0, len(rules))
	for _, r := range rules {
		out = append(out, c.recordFor(r))
	}
	return out, nil
}

func (c *wfpConn) Close() error {
	if c.sess == nil {
		return ErrSessionNotOpen
	}
	err := c.sess.Close()
	c.sess = nil
	if err != nil {
		return translateErr("close engine", err)
	}
	return nil
}

func layerFor(d dsl.Direction) wf.LayerID {
	if d == dsl.Inbound {
		return wf.LayerALEAuthRecvAcceptV4
	}
	return wf.LayerALEAuthConnectV4
}

func actionFor(a dsl.Action) wf.Action {
	if a == dsl.Allow {
		return wf.ActionPermit
	}
	return wf.ActionBlock
}

func ipProtoFor(p dsl.Protocol) wf.IPProto {
	if p == dsl.ProtoUDP {
		return wf.IPProtoUDP
	}
	return wf.IPProtoTCP
}

// matchesFor converts compiled conditions into WFP matches. The ALE layers
// carry every transport, so a layer protocol becomes an explicit
// IP-protocol match unless the conditions already contain one.
func matchesFor(f *compiler.Filter) []*wf.Match {
	var out []*wf.Match
	hasProto := false
	for _, c := range f.Conditions {
		if c.Field == compiler.FieldProtocol {
			hasProto = true
		}
	}
	if f.Layer.Protocol != dsl.ProtoAny && !hasProto {
		out = append(out, &wf.Match{
			Field: wf.FieldIPProtocol,
			Op:    wf.MatchTypeEqual,
			Value: ipProtoFor(f.Layer.Protocol),
		})
	}

	for _, c := range f.Conditions {
		switch c.Field {
		case compiler.FieldRemoteAddress:
			if c.Match == compiler.MatchRange {
				out = append(out, &wf.Match{
					Field: wf.FieldIPRemoteAddress,
					Op:    wf.MatchTypeRange,
					Value: wf.Range{From: c.Low, To: c.High},
				})
			} else {
				out = append(out, &wf.Match{
					Field: wf.FieldIPRemoteAddress,
					Op:    wf.MatchTypeEqual,
					Value: c.Low,
				})
			}
		case compiler.FieldRemotePort:
			out = append(out, &wf.Match{Field: wf.FieldIPRemotePort, Op: wf.MatchTypeEqual, Value: c.Port})
		case compiler.FieldLocalPort:
			out = append(out, &wf.Match{Field: wf.FieldIPLocalPort, Op: wf.MatchTypeEqual, Value: c.Port})
		case compiler.FieldProtocol:
			out = append(out, &wf.Match{Field: wf.FieldIPProtocol, Op: wf.MatchTypeEqual, Value: ipProtoFor(c.Protocol)})
		}
	}
	return out
}

// recordFor maps an enumerated rule back onto a Record. Conditions on
// fields this package never installs are left out.
func (c *wfpConn) recordFor(r *wf.Rule) Record {
	rec := Record{
		ID:          FilterID(windows.GUID(r.ID).String()),
		Name:        r.Name,
		Description: r.Description,
		Weight:      r.Weight,
		Action:      dsl.Block,
	}
	if r.Provider == c.provider {
		rec.Provider = c.opts.Provider
	}
	if r.Action == wf.ActionPermit {
		rec.Action = dsl.Allow
	}
	switch r.Layer {
	case wf.LayerALEAuthConnectV4:
		rec.Layer.Direction = dsl.Outbound
	case wf.LayerALEAuthRecvAcceptV4:
		rec.Layer.Direction = dsl.Inbound
	}

	for _, m := range r.Conditions {
		cond, ok := conditionFor(m)
		if !ok {
			continue
		}
		if cond.Field == compiler.FieldProtocol {
			rec.Layer.Protocol = cond.Protocol
		}
		rec.Conditions = append(rec.Conditions, cond)
	}
	return rec
}

func conditionFor(m *wf.Match) (compiler.Condition, bool) {
	switch m.Field {
	case wf.FieldIPRemoteAddress:
		switch v := m.Value.(type) {
		case netip.Addr:
			return compiler.AddressCondition(v, v), true
		case wf.Range:
			from, ok1 := v.From.(netip.Addr)
			to, ok2 := v.To.(netip.Addr)
			if ok1 && ok2 {
				return compiler.AddressCondition(from, to), true
			}
		}
	case wf.FieldIPRemotePort, wf.FieldIPLocalPort:
		port, ok := m.Value.(uint16)
		if !ok {
			return compiler.Condition{}, false
		}
		field := compiler.FieldRemotePort
		if m.Field == wf.FieldIPLocalPort {
			field = compiler.FieldLocalPort
		}
		return compiler.Condition{Field: field, Match: compiler.MatchEqual, Port: port}, true
	case wf.FieldIPProtocol:
		switch m.Value {
		case wf.IPProtoTCP:
			return compiler.Condition{Field: compiler.FieldProtocol, Protocol: dsl.ProtoTCP}, true
		case wf.IPProtoUDP:
			return compiler.Condition{Field: compiler.FieldProtocol, Protocol: dsl.ProtoUDP}, true
		}
	}
	return compiler.Condition{}, false
}

func statusOf(err error) (uint32, bool) {
	var errno windows.Errno
	if errors.As(err, &errno) {
		return uint32(errno), true
	}
	return 0, false
}

func isStatus(err error, code uint32) bool {
	got, ok := statusOf(err)
	return ok && got == code
}

// translateErr maps native status codes onto the package's error taxonomy.
func translateErr(op string, err error) error {
	code, ok := statusOf(err)
	if !ok {
		return &NativeError{Op: op, Err: err}
	}
	switch code {
	case uint32(windows.ERROR_ACCESS_DENIED), eAccessDenied:
		return fmt.Errorf("%s: %w", op, ErrAccessDenied)
	case fwpEFilterNotFound:
		return fmt.Errorf("%s: %w", op, ErrFilterNotFound)
	}
	return &NativeError{Op: op, Code: code, Err: err}
}
