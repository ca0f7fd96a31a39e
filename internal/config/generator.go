// generator.go provides config templates for gowfp init.

package config

import (
	"bytes"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Template represents a configuration template type.
type Template string

const (
	// TemplateExample allows one port on a small address range and blocks
	// other outbound TCP.
	TemplateExample Template = "example"
	// TemplateInbound blocks inbound TCP and UDP except SSH.
	TemplateInbound Template = "inbound"
)

// Templates lists the available templates in display order.
var Templates = []Template{TemplateExample, TemplateInbound}

// TemplateConfig holds a Config and its associated comment.
type TemplateConfig struct {
	Config         Config
	FiltersComment string // Comment to insert before the first [[filters]] table
}

// GenerateConfig returns the TOML content for the given template.
func GenerateConfig(template Template) (string, error) {
	tc := getTemplateConfig(template)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(tc.Config); err != nil {
		return "", fmt.Errorf("encode template: %w", err)
	}

	content := buf.String()
	if tc.FiltersComment != "" {
		content = insertFiltersComment(content, tc.FiltersComment)
	}

	return SchemaComment + content, nil
}

func weight(w uint64) *uint64 {
	return &w
}

func getTemplateConfig(template Template) TemplateConfig {
	switch template {
	case TemplateExample:
		return TemplateConfig{
			Config: Config{
				Filters: []Filter{
					{
						Name:   "Allow Filter",
						Expr:   "outbound and tcp and remoteaddr == 192.168.1.3-192.168.1.4 and tcp.dstport == 8123 and action == allow",
						Weight: weight(2000),
					},
					{
						Name:   "Block Filter",
						Expr:   "outbound and tcp and action == block",
						Weight: weight(1000),
					},
				},
			},
			FiltersComment: "higher weight wins when filters overlap",
		}
	case TemplateInbound:
		return TemplateConfig{
			Config: Config{
				Filters: []Filter{
					{Name: "Allow SSH", Expr: "inbound and tcp.dstport == 22 and action == allow", Weight: weight(2000)},
					{Name: "Block inbound TCP", Expr: "inbound and tcp and action == block"},
					{Name: "Block inbound UDP", Expr: "inbound and udp and action == block"},
				},
			},
			FiltersComment: "filters without a weight use defaults.weight",
		}
	default:
		return getTemplateConfig(TemplateExample)
	}
}

// insertFiltersComment inserts a comment line before the first [[filters]] table.
func insertFiltersComment(content, comment string) string {
	lines := strings.Split(content, "\n")
	var result []string
	inserted := false

	for _, line := range lines {
		if !inserted && strings.TrimSpace(line) == "[[filters]]" {
			result = append(result, "# "+comment)
			inserted = true
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}
