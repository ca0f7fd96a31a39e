package config

import (
	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of .gowfp.toml.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		// Use toml tag for property names since config is for .gowfp.toml files
		FieldNameTag:               "toml",
		RequiredFromJSONSchemaTags: true,
	}

	schema := r.Reflect(&Config{})
	schema.Title = "gowfp Configuration"
	schema.Description = "Configuration schema for .gowfp.toml"
	schema.ID = ""
	return schema
}
