package schema

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Validate checks args against the named tool's definition and returns a
// normalized argument map: integers as int, arrays as []string, with JSON
// decoding artifacts (float64 for whole numbers, []any) resolved.
//
// Validation is pure and side-effect-free. On failure it returns a
// *ValidationError naming the offending parameter.
func (r *Registry) Validate(name string, args map[string]any) (map[string]any, error) {
	def := r.Get(name)
	if def == nil {
		return nil, unknownTool(name)
	}

	normalized := make(map[string]any, len(args))
	known := make(map[string]*ParamSpec, len(def.Params))
	for i := range def.Params {
		known[def.Params[i].Name] = &def.Params[i]
	}

	// Reject arguments the contract does not declare.
	for key := range args {
		if _, ok := known[key]; !ok {
			return nil, constraintViolation(key, fmt.Sprintf("tool %q does not accept this parameter", name))
		}
	}

	for i := range def.Params {
		spec := &def.Params[i]
		raw, present := args[spec.Name]

		if !present || raw == nil {
			if spec.Required {
				return nil, missingParam(spec.Name)
			}
			continue
		}

		value, err := coerce(spec, raw)
		if err != nil {
			return nil, err
		}
		if err := checkConstraints(spec, value); err != nil {
			return nil, err
		}
		normalized[spec.Name] = value
	}

	return normalized, nil
}

// coerce converts a raw JSON-decoded value to the parameter's declared type.
func coerce(spec *ParamSpec, raw any) (any, error) {
	switch spec.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, invalidType(spec.Name, spec.Type, raw)
		}
		return s, nil

	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, invalidType(spec.Name, spec.Type, raw)
		}
		return b, nil

	case TypeInteger:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, invalidType(spec.Name, spec.Type, raw)
			}
			return int(v), nil
		default:
			return nil, invalidType(spec.Name, spec.Type, raw)
		}

	case TypeNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		default:
			return nil, invalidType(spec.Name, spec.Type, raw)
		}

	case TypeStringArray:
		switch v := raw.(type) {
		case []string:
			return slices.Clone(v), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, elem := range v {
				s, ok := elem.(string)
				if !ok {
					return nil, invalidType(spec.Name, spec.Type, elem)
				}
				out = append(out, s)
			}
			return out, nil
		default:
			return nil, invalidType(spec.Name, spec.Type, raw)
		}

	default:
		return nil, invalidType(spec.Name, spec.Type, raw)
	}
}

// checkConstraints enforces declared enumerations and numeric ranges on an
// already type-coerced value.
func checkConstraints(spec *ParamSpec, value any) error {
	if len(spec.Enum) > 0 {
		switch v := value.(type) {
		case string:
			if !slices.Contains(spec.Enum, v) {
				return constraintViolation(spec.Name,
					fmt.Sprintf("value %q is not one of [%s]", v, strings.Join(spec.Enum, ", ")))
			}
		case []string:
			for _, elem := range v {
				if !slices.Contains(spec.Enum, elem) {
					return constraintViolation(spec.Name,
						fmt.Sprintf("value %q is not one of [%s]", elem, strings.Join(spec.Enum, ", ")))
				}
			}
		}
	}

	var num float64
	switch v := value.(type) {
	case int:
		num = float64(v)
	case float64:
		num = v
	default:
		return nil
	}

	if spec.Min != nil && num < *spec.Min {
		return constraintViolation(spec.Name, fmt.Sprintf("value %v is below minimum %v", num, *spec.Min))
	}
	if spec.Max != nil && num > *spec.Max {
		return constraintViolation(spec.Name, fmt.Sprintf("value %v is above maximum %v", num, *spec.Max))
	}
	return nil
}
