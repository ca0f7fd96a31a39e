package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/gowfp/internal/compiler"
	"github.com/bolasblack/gowfp/internal/dsl"
	"github.com/bolasblack/gowfp/internal/engine"
)

func install(t *testing.T, c engine.Conn, name, expr string) engine.FilterID {
	t.Helper()
	f, err := compiler.New().CompileString(expr, compiler.Options{Name: name})
	require.NoError(t, err)
	id, err := c.AddFilter(context.Background(), &f)
	require.NoError(t, err)
	return id
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	mem := engine.NewMemory()

	ours, err := mem.Open(ctx, engine.OpenOptions{Provider: "gowfp"})
	require.NoError(t, err)
	theirs, err := mem.Open(ctx, engine.OpenOptions{Provider: "other"})
	require.NoError(t, err)

	allowID := install(t, ours, "Allow Filter", "outbound and tcp and remoteaddr == 192.168.1.3-192.168.1.4 and tcp.dstport == 8123 and action == allow")
	install(t, theirs, "Block Filter", "inbound and udp and action == block")
	install(t, theirs, "Allow Filter", "inbound and tcp and action == allow")

	reg := New(ours)

	t.Run("list all", func(t *testing.T) {
		all, err := reg.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)

		d := all[0]
		assert.Equal(t, allowID, d.ID)
		assert.Equal(t, dsl.Outbound, d.Direction)
		assert.Equal(t, dsl.ProtoTCP, d.Protocol)
		assert.Equal(t, dsl.Allow, d.Action)
		assert.Equal(t, "outbound-transport-v4", d.Layer)
		assert.Equal(t, compiler.DefaultWeight, d.Weight)
		assert.Equal(t, "remoteaddr in 192.168.1.3-192.168.1.4 and remoteport == 8123", d.Summary())
	})

	t.Run("find first match by name", func(t *testing.T) {
		d, ok, err := reg.FindByName(ctx, "Allow Filter")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, allowID, d.ID)
	})

	t.Run("absent name is not an error", func(t *testing.T) {
		_, ok, err := reg.FindByName(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list owned", func(t *testing.T) {
		owned, err := reg.ListOwned(ctx, "other")
		require.NoError(t, err)
		require.Len(t, owned, 2)
		for _, d := range owned {
			assert.Equal(t, "other", d.Provider)
		}
	})

	t.Run("no caching", func(t *testing.T) {
		require.NoError(t, theirs.DeleteFilter(ctx, allowID))
		_, ok, err := reg.FindByName(ctx, "Block Filter")
		require.NoError(t, err)
		assert.True(t, ok)
		all, err := reg.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("engine error propagates", func(t *testing.T) {
		require.NoError(t, ours.Close())
		_, err := reg.ListAll(ctx)
		assert.ErrorIs(t, err, engine.ErrSessionNotOpen)
	})
}

func TestDescriptor_View(t *testing.T) {
	d := Descriptor{
		ID:        "mem-1",
		Name:      "x",
		Direction: dsl.Inbound,
		Protocol:  dsl.ProtoUDP,
		Action:    dsl.Block,
		Layer:     "inbound-transport-v4",
		Conditions: []compiler.Condition{
			{Field: compiler.FieldLocalPort, Match: compiler.MatchEqual, Port: 53},
		},
	}

	data, err := json.Marshal(d.View())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "inbound", got["direction"])
	assert.Equal(t, "udp", got["protocol"])
	assert.Equal(t, "block", got["action"])
	assert.Equal(t, []any{"localport == 53"}, got["conditions"])
	assert.Equal(t, "mem-1", got["id"])
}
