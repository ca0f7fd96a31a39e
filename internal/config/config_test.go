package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/gowfp/internal/dsl"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

func TestLoadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/project/.gowfp.toml", `
[engine]
provider = "lab"
dynamic = true

[defaults]
weight = 500

[journal]
dir = "/var/lib/gowfp"

[log]
level = "debug"
json = true

[[filters]]
name = "Allow Filter"
expr = "outbound and tcp and remoteaddr == 192.168.1.3-192.168.1.4 and tcp.dstport == 8123 and action == allow"
weight = 2000

[[filters]]
expr = "outbound and tcp and action == block"
`)

	cfg, err := LoadConfig(fs, "/project/.gowfp.toml")
	require.NoError(t, err)

	assert.Equal(t, "lab", cfg.Engine.Provider)
	assert.True(t, cfg.Engine.IsDynamic())
	assert.Equal(t, "Filters installed by gowfp", cfg.Engine.Description)
	assert.Equal(t, uint64(500), cfg.Defaults.Weight)
	assert.Equal(t, "/var/lib/gowfp", cfg.Journal.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	require.Len(t, cfg.Filters, 2)
	assert.Equal(t, "Allow Filter", cfg.Filters[0].Name)
	require.NotNil(t, cfg.Filters[0].Weight)
	assert.Equal(t, uint64(2000), *cfg.Filters[0].Weight)
	assert.Empty(t, cfg.Filters[1].Name)
	assert.Nil(t, cfg.Filters[1].Weight)

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Defaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/p/.gowfp.toml", "")

	cfg, err := LoadConfig(fs, "/p/.gowfp.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultProvider, cfg.Engine.Provider)
	assert.False(t, cfg.Engine.IsDynamic())
	assert.Equal(t, uint64(1000), cfg.Defaults.Weight)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Filters)
}

func TestLoadConfig_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := LoadConfig(fs, "/missing/.gowfp.toml")
	assert.Error(t, err)

	writeFile(t, fs, "/bad/.gowfp.toml", "[engine\nprovider = 1")
	_, err = LoadConfig(fs, "/bad/.gowfp.toml")
	assert.ErrorContains(t, err, "failed to parse")
}

func TestLoadWithIncludes(t *testing.T) {
	t.Run("merges includes then self", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/p/.gowfp.toml", `
includes = ["./.gowfp.*.toml"]

[engine]
provider = "main"

[[filters]]
name = "main"
expr = "inbound and udp and action == block"
`)
		writeFile(t, fs, "/p/.gowfp.a.toml", `
[engine]
provider = "a"
dynamic = true

[[filters]]
name = "a"
expr = "outbound and tcp and action == block"
`)
		writeFile(t, fs, "/p/.gowfp.b.toml", `
[log]
level = "warn"

[[filters]]
name = "b"
expr = "outbound and udp and action == block"
`)

		cfg, err := LoadConfig(fs, "/p/.gowfp.toml")
		require.NoError(t, err)
		assert.Equal(t, "main", cfg.Engine.Provider)
		assert.True(t, cfg.Engine.IsDynamic())
		assert.Equal(t, "warn", cfg.Log.Level)
		assert.Empty(t, cfg.Includes)

		var names []string
		for _, f := range cfg.Filters {
			names = append(names, f.Name)
		}
		assert.Equal(t, []string{"a", "b", "main"}, names)
	})

	t.Run("empty glob is fine", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/p/.gowfp.toml", `includes = ["./extra/*.toml"]`)
		_, err := LoadConfig(fs, "/p/.gowfp.toml")
		assert.NoError(t, err)
	})

	t.Run("missing literal include fails", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/p/.gowfp.toml", `includes = ["./nope.toml"]`)
		_, err := LoadConfig(fs, "/p/.gowfp.toml")
		assert.ErrorContains(t, err, "nope.toml")
	})

	t.Run("circular include", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/p/a.toml", `includes = ["b.toml"]`)
		writeFile(t, fs, "/p/b.toml", `includes = ["a.toml"]`)
		_, err := LoadConfig(fs, "/p/a.toml")
		assert.ErrorContains(t, err, "circular include")
	})

	t.Run("relative path is read through fs as given", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, ".gowfp.toml", `
includes = ["rules/extra.toml"]

[[filters]]
name = "main"
expr = "inbound and udp and action == block"
`)
		writeFile(t, fs, "rules/extra.toml", `
[[filters]]
name = "extra"
expr = "outbound and tcp and action == block"
`)

		cfg, err := LoadConfig(fs, ".gowfp.toml")
		require.NoError(t, err)
		require.Len(t, cfg.Filters, 2)
		assert.Equal(t, "extra", cfg.Filters[0].Name)
		assert.Equal(t, "main", cfg.Filters[1].Name)
	})

	t.Run("relative circular include", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "a.toml", `includes = ["./b.toml"]`)
		writeFile(t, fs, "b.toml", `includes = ["a.toml"]`)
		_, err := LoadConfig(fs, "./a.toml")
		assert.ErrorContains(t, err, "circular include")
	})

	t.Run("dynamic can be turned off by overlay", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/p/base.toml", "[engine]\ndynamic = true\n")
		writeFile(t, fs, "/p/main.toml", "includes = [\"base.toml\"]\n[engine]\ndynamic = false\n")
		cfg, err := LoadConfig(fs, "/p/main.toml")
		require.NoError(t, err)
		assert.False(t, cfg.Engine.IsDynamic())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr []string
		wantIs  error
	}{
		{
			name: "valid",
			cfg:  DefaultConfig(),
		},
		{
			name:    "bad level",
			cfg:     Config{Log: Log{Level: "loud"}},
			wantErr: []string{"log.level"},
		},
		{
			name: "bad expression names index and filter",
			cfg: Config{Log: Log{Level: "info"}, Filters: []Filter{
				{Name: "ok", Expr: "outbound and action == block"},
				{Name: "broken", Expr: "outbound and tcp"},
			}},
			wantErr: []string{"filters[1] (broken)"},
			wantIs:  dsl.ErrMissingAction,
		},
		{
			name: "missing expr",
			cfg: Config{Log: Log{Level: "info"}, Filters: []Filter{
				{Name: "empty"},
			}},
			wantErr: []string{"filters[0] (empty): expr is required"},
		},
		{
			name: "duplicate names",
			cfg: Config{Log: Log{Level: "info"}, Filters: []Filter{
				{Name: "x", Expr: "outbound and action == block"},
				{Name: "x", Expr: "inbound and action == block"},
			}},
			wantErr: []string{"duplicate name, first used by filters[0]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := DefaultConfig()
	cfg.Filters = []Filter{{Name: "Block Filter", Expr: "outbound and tcp and action == block"}}

	require.NoError(t, SaveConfig(fs, "/p/.gowfp.toml", cfg))

	data, err := afero.ReadFile(fs, "/p/.gowfp.toml")
	require.NoError(t, err)
	assert.Contains(t, string(data), SchemaComment)

	loaded, err := LoadConfig(fs, "/p/.gowfp.toml")
	require.NoError(t, err)
	assert.Equal(t, cfg.Filters, loaded.Filters)
	assert.Equal(t, cfg.Engine.Provider, loaded.Engine.Provider)
}
