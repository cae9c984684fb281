// Package tools hosts the tool families exposed through the agent
// registry, one subpackage per family, plus shared declaration helpers.
package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a JSON schema from a tool input struct. Fields tagged
// jsonschema:"required" become required properties. Panics on marshal
// failure; tool declarations are static and built at startup.
func SchemaFor(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(v)
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	return raw
}
