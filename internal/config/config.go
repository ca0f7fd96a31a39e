// Package config handles parsing and writing of gowfp configuration files (.gowfp.toml).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/bolasblack/gowfp/internal/compiler"
	"github.com/bolasblack/gowfp/internal/dsl"
	"github.com/bolasblack/gowfp/internal/logging"
)

// DefaultFilename is the config file looked up in the working directory.
const DefaultFilename = ".gowfp.toml"

// DefaultProvider names the engine session and the filters it installs.
const DefaultProvider = "gowfp"

// Engine configures the native engine connection.
type Engine struct {
	Provider    string `toml:"provider,omitempty" json:"provider,omitempty" jsonschema:"description=Provider name shown on installed filters"`
	Description string `toml:"description,omitempty" json:"description,omitempty" jsonschema:"description=Provider and session description"`
	Dynamic     *bool  `toml:"dynamic,omitempty" json:"dynamic,omitempty" jsonschema:"description=Let the engine drop filters when the session handle closes (default false)"`
}

// IsDynamic reports whether a dynamic engine session was requested.
func (e Engine) IsDynamic() bool {
	return e.Dynamic != nil && *e.Dynamic
}

// Defaults holds values applied to filters that do not set them.
type Defaults struct {
	Weight uint64 `toml:"weight,omitempty" json:"weight,omitempty" jsonschema:"description=Weight for filters without one (default 1000)"`
}

// Journal configures crash-recovery journals.
type Journal struct {
	Dir string `toml:"dir,omitempty" json:"dir,omitempty" jsonschema:"description=Directory for session journals (default <user config dir>/gowfp/sessions)"`
}

// Log configures structured logging.
type Log struct {
	Level string `toml:"level,omitempty" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,description=Minimum log level"`
	JSON  bool   `toml:"json,omitempty" json:"json,omitempty" jsonschema:"description=Emit JSON log lines"`
}

// Filter is one filter installed by gowfp run.
type Filter struct {
	Name   string  `toml:"name,omitempty" json:"name,omitempty" jsonschema:"description=Filter name (generated when empty)"`
	Expr   string  `toml:"expr" json:"expr" jsonschema:"required,description=Filter expression, e.g. outbound and tcp and action == block"`
	Weight *uint64 `toml:"weight,omitempty" json:"weight,omitempty" jsonschema:"description=Arbitration weight, higher wins"`
}

// Config represents the gowfp configuration (after processing includes).
type Config struct {
	Includes []string `toml:"includes,omitempty" json:"includes,omitempty" jsonschema:"description=Other config files to include and merge (supports glob patterns)"`
	Engine   Engine   `toml:"engine,omitempty" json:"engine,omitempty" jsonschema:"description=Native engine session settings"`
	Defaults Defaults `toml:"defaults,omitempty" json:"defaults,omitempty" jsonschema:"description=Filter defaults"`
	Journal  Journal  `toml:"journal,omitempty" json:"journal,omitempty" jsonschema:"description=Crash-recovery journal settings"`
	Log      Log      `toml:"log,omitempty" json:"log,omitempty" jsonschema:"description=Logging settings"`
	Filters  []Filter `toml:"filters,omitempty" json:"filters,omitempty" jsonschema:"description=Filters installed for the lifetime of gowfp run"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine: Engine{
			Provider:    DefaultProvider,
			Description: "Filters installed by gowfp",
		},
		Defaults: Defaults{Weight: compiler.DefaultWeight},
		Log:      Log{Level: "info"},
	}
}

// applyDefaults fills fields left empty after loading.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Engine.Provider == "" {
		c.Engine.Provider = def.Engine.Provider
	}
	if c.Engine.Description == "" {
		c.Engine.Description = def.Engine.Description
	}
	if c.Defaults.Weight == 0 {
		c.Defaults.Weight = def.Defaults.Weight
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// LoadConfig reads and parses a configuration file from the given path.
// Supports includes directive for composable configuration.
// Applies defaults for missing fields.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	cfg, err := LoadWithIncludes(fs, path)
	if err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Validate checks the log level and parses every filter expression, so a
// bad filter is reported before anything is installed. Duplicate non-empty
// filter names are rejected.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	seen := make(map[string]int)
	for i, f := range c.Filters {
		label := fmt.Sprintf("filters[%d]", i)
		if f.Name != "" {
			label = fmt.Sprintf("filters[%d] (%s)", i, f.Name)
			if prev, ok := seen[f.Name]; ok {
				errs = append(errs, fmt.Errorf("%s: duplicate name, first used by filters[%d]", label, prev))
			} else {
				seen[f.Name] = i
			}
		}
		if strings.TrimSpace(f.Expr) == "" {
			errs = append(errs, fmt.Errorf("%s: expr is required", label))
			continue
		}
		if _, err := dsl.Parse(f.Expr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
	}

	return errors.Join(errs...)
}

// SchemaComment is the TOML comment that references the JSON Schema for editor autocomplete.
const SchemaComment = "#:schema https://raw.githubusercontent.com/bolasblack/gowfp/refs/heads/master/gowfp-config.schema.json\n\n"

// SaveConfig writes the configuration to the given path with schema comment header.
func SaveConfig(fs afero.Fs, path string, cfg Config) error {
	var buf bytes.Buffer
	buf.WriteString(SchemaComment)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
