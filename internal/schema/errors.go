package schema

import (
	"errors"
	"fmt"
)

// Kind identifies a category of validation failure. The values appear
// verbatim in outbound error envelopes.
type Kind string

// Validation failure kinds.
const (
	KindUnknownTool              Kind = "UnknownTool"
	KindMissingRequiredParameter Kind = "MissingRequiredParameter"
	KindInvalidParameterType     Kind = "InvalidParameterType"
	KindConstraintViolation      Kind = "ConstraintViolation"
)

// ErrDuplicateTool indicates a tool name was registered twice.
// Registration-time only; checked with errors.Is.
var ErrDuplicateTool = errors.New("duplicate tool")

// ValidationError reports why a tool call failed validation. Param names
// the offending parameter where one exists (empty for UnknownTool).
type ValidationError struct {
	Kind    Kind
	Param   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: parameter %q: %s", e.Kind, e.Param, e.Message)
}

func unknownTool(name string) *ValidationError {
	return &ValidationError{
		Kind:    KindUnknownTool,
		Message: fmt.Sprintf("no tool named %q is registered", name),
	}
}

func missingParam(name string) *ValidationError {
	return &ValidationError{
		Kind:    KindMissingRequiredParameter,
		Param:   name,
		Message: "required parameter is missing",
	}
}

func invalidType(name string, want ParamType, got any) *ValidationError {
	return &ValidationError{
		Kind:    KindInvalidParameterType,
		Param:   name,
		Message: fmt.Sprintf("expected %s, got %T", want, got),
	}
}

func constraintViolation(name, message string) *ValidationError {
	return &ValidationError{
		Kind:    KindConstraintViolation,
		Param:   name,
		Message: message,
	}
}
