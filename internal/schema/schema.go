// Package schema holds the declarative contract for every tool the
// conversational agent may invoke, and validates incoming tool calls
// against it.
//
// The registry is built once at startup and is read-only afterwards, so
// lookups need no synchronization. Validation is pure: it never touches
// session state or any backing service.
package schema

// ParamType is the semantic type of a tool parameter.
type ParamType string

// Parameter types understood by the validator.
const (
	TypeString      ParamType = "string"
	TypeInteger     ParamType = "integer"
	TypeNumber      ParamType = "number"
	TypeBoolean     ParamType = "boolean"
	TypeStringArray ParamType = "string_array"
)

// Role is the caller role a tool requires.
type Role string

// Role requirements.
const (
	RoleNone  Role = ""
	RoleAdmin Role = "admin"
)

// Effect classifies a tool by its side effects, which determines how the
// dispatcher routes it.
type Effect string

// Side-effect classifications.
const (
	EffectStateMutating Effect = "state-mutating"
	EffectReadOnly      Effect = "read-only"
	EffectExport        Effect = "export"
)

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string

	// Enum restricts string values (or string_array elements) to the
	// listed set. Empty means unrestricted.
	Enum []string

	// Min and Max bound integer/number values. Nil means unbounded.
	Min *float64
	Max *float64
}

// Definition is the immutable contract for one tool. Definitions are
// registered at startup and never modified afterwards.
type Definition struct {
	Name        string
	Description string
	Params      []ParamSpec // ordered; order is preserved in the catalogue
	Role        Role
	Effect      Effect
}

// Float returns a pointer to v, for ParamSpec bounds literals.
func Float(v float64) *float64 {
	return &v
}
