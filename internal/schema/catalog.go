package schema

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// ToolSchema is the serialized form of one tool definition, exposed to the
// conversational agent as part of the tool catalogue.
type ToolSchema struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Role        Role               `json:"role,omitempty"`
	Effect      Effect             `json:"effect"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// Catalog returns the full tool catalogue in registration order, with each
// tool's parameters rendered as a JSON Schema object.
func (r *Registry) Catalog() []ToolSchema {
	out := make([]ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		def := r.defs[name]
		out = append(out, ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Role:        def.Role,
			Effect:      def.Effect,
			InputSchema: inputSchema(def),
		})
	}
	return out
}

// inputSchema renders a definition's parameter list as a JSON Schema.
func inputSchema(def *Definition) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(def.Params))
	var required []string

	for i := range def.Params {
		spec := &def.Params[i]
		properties[spec.Name] = paramSchema(spec)
		if spec.Required {
			required = append(required, spec.Name)
		}
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

func paramSchema(spec *ParamSpec) *jsonschema.Schema {
	s := &jsonschema.Schema{Description: spec.Description}

	switch spec.Type {
	case TypeString:
		s.Type = "string"
		s.Enum = enumValues(spec.Enum)
	case TypeInteger:
		s.Type = "integer"
		s.Minimum = spec.Min
		s.Maximum = spec.Max
	case TypeNumber:
		s.Type = "number"
		s.Minimum = spec.Min
		s.Maximum = spec.Max
	case TypeBoolean:
		s.Type = "boolean"
	case TypeStringArray:
		s.Type = "array"
		s.Items = &jsonschema.Schema{
			Type: "string",
			Enum: enumValues(spec.Enum),
		}
	}

	return s
}

func enumValues(enum []string) []any {
	if len(enum) == 0 {
		return nil
	}
	out := make([]any, len(enum))
	for i, v := range enum {
		out[i] = v
	}
	return out
}
