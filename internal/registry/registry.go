// Package registry is the read-only view over the filters installed in the
// native engine.
package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bolasblack/gowfp/internal/compiler"
	"github.com/bolasblack/gowfp/internal/dsl"
	"github.com/bolasblack/gowfp/internal/engine"
)

// Descriptor is a caller-facing copy of one installed filter.
type Descriptor struct {
	ID          engine.FilterID      `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Provider    string               `json:"provider,omitempty"`
	Weight      uint64               `json:"weight"`
	Direction   dsl.Direction        `json:"-"`
	Protocol    dsl.Protocol         `json:"-"`
	Action      dsl.Action           `json:"-"`
	Layer       string               `json:"layer"`
	Conditions  []compiler.Condition `json:"-"`
}

// Summary renders the conditions as a single line.
func (d Descriptor) Summary() string {
	if len(d.Conditions) == 0 {
		return "-"
	}
	return strings.Join(d.View().Conditions, " and ")
}

// View is the JSON shape served by the status endpoint.
type View struct {
	Descriptor
	DirectionName string   `json:"direction"`
	ProtocolName  string   `json:"protocol"`
	ActionName    string   `json:"action"`
	Conditions    []string `json:"conditions"`
}

// View returns d with enum fields rendered as strings.
func (d Descriptor) View() View {
	v := View{
		Descriptor:    d,
		DirectionName: d.Direction.String(),
		ProtocolName:  d.Protocol.String(),
		ActionName:    d.Action.String(),
		Conditions:    make([]string, 0, len(d.Conditions)),
	}
	for _, c := range d.Conditions {
		v.Conditions = append(v.Conditions, c.String())
	}
	return v
}

func fromRecord(r engine.Record) Descriptor {
	return Descriptor{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Provider:    r.Provider,
		Weight:      r.Weight,
		Direction:   r.Layer.Direction,
		Protocol:    r.Layer.Protocol,
		Action:      r.Action,
		Layer:       r.Layer.String(),
		Conditions:  slices.Clone(r.Conditions),
	}
}

// Registry enumerates filters through one engine connection. It holds no
// cache: every call asks the engine.
type Registry struct {
	conn engine.Conn
}

// New returns a Registry reading through conn.
func New(conn engine.Conn) *Registry {
	return &Registry{conn: conn}
}

// ListAll returns every filter installed in the engine, whoever owns it.
func (r *Registry) ListAll(ctx context.Context) ([]Descriptor, error) {
	recs, err := r.conn.Filters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate filters: %w", err)
	}
	out := make([]Descriptor, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

// FindByName returns the first filter named name. A missing filter is
// reported as ok == false, not as an error.
func (r *Registry) FindByName(ctx context.Context, name string) (Descriptor, bool, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return Descriptor{}, false, err
	}
	for _, d := range all {
		if d.Name == name {
			return d, true, nil
		}
	}
	return Descriptor{}, false, nil
}

// ListOwned returns the filters installed under provider.
func (r *Registry) ListOwned(ctx context.Context, provider string) ([]Descriptor, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(d Descriptor) bool { return d.Provider != provider }), nil
}
