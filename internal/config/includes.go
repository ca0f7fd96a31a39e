package config

import (
	"fmt"
	"path/filepath"
	"sort"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// LoadWithIncludes loads config with includes support.
// It processes includes recursively, merging configs in the order they are specified.
func LoadWithIncludes(fs afero.Fs, path string) (Config, error) {
	return loadWithIncludes(fs, path, make(map[string]bool))
}

// loadWithIncludes is the internal recursive implementation.
func loadWithIncludes(fs afero.Fs, path string, visited map[string]bool) (Config, error) {
	path = filepath.Clean(path)

	// The absolute form only keys cycle detection; reads go through fs
	// with the path as given.
	key, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	if visited[key] {
		return Config{}, fmt.Errorf("circular include detected: %s", path)
	}
	visited[key] = true

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, err
	}

	var current Config
	if err := toml.Unmarshal(data, &current); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)

	// Includes first (depth-first), then the including file on top.
	var merged Config
	for _, includePattern := range current.Includes {
		resolvedPattern := includePattern
		if !filepath.IsAbs(includePattern) {
			resolvedPattern = filepath.Join(baseDir, includePattern)
		}

		matchedFiles, err := expandGlob(fs, resolvedPattern)
		if err != nil {
			return Config{}, fmt.Errorf("failed to expand glob %s: %w", includePattern, err)
		}

		for _, includePath := range matchedFiles {
			included, err := loadWithIncludes(fs, includePath, visited)
			if err != nil {
				return Config{}, fmt.Errorf("failed to load include %s: %w", includePath, err)
			}
			merged = mergeConfigs(merged, included)
		}
	}

	current.Includes = nil
	return mergeConfigs(merged, current), nil
}

// isGlobPattern checks if the pattern contains glob special characters.
func isGlobPattern(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// expandGlob expands a glob pattern and returns sorted matched files.
// For literal paths (no glob characters), returns error if file doesn't exist.
// For glob patterns, returns empty slice if no files match.
func expandGlob(fs afero.Fs, pattern string) ([]string, error) {
	if !isGlobPattern(pattern) {
		if _, err := fs.Stat(pattern); err != nil {
			return nil, err
		}
		return []string{pattern}, nil
	}

	matches, err := afero.Glob(fs, pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// mergeConfigs merges overlay config into base config.
// Scalars: overlay wins if set
// Filters: append (concatenate)
func mergeConfigs(base, overlay Config) Config {
	result := base

	if overlay.Engine.Provider != "" {
		result.Engine.Provider = overlay.Engine.Provider
	}
	if overlay.Engine.Description != "" {
		result.Engine.Description = overlay.Engine.Description
	}
	if overlay.Engine.Dynamic != nil {
		result.Engine.Dynamic = overlay.Engine.Dynamic
	}

	if overlay.Defaults.Weight != 0 {
		result.Defaults.Weight = overlay.Defaults.Weight
	}
	if overlay.Journal.Dir != "" {
		result.Journal.Dir = overlay.Journal.Dir
	}

	if overlay.Log.Level != "" {
		result.Log.Level = overlay.Log.Level
	}
	if overlay.Log.JSON {
		result.Log.JSON = true
	}

	if len(overlay.Filters) > 0 {
		result.Filters = append(append([]Filter(nil), result.Filters...), overlay.Filters...)
	}

	return result
}
