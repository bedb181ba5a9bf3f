package dispatch

import (
	"context"
	"errors"

	"github.com/cityair/conductor/internal/docsearch"
	"github.com/cityair/conductor/internal/gate"
	"github.com/cityair/conductor/internal/schema"
)

// Kind is the error category carried in outbound error envelopes.
type Kind string

// The full error taxonomy visible on the wire.
const (
	KindUnknownTool              Kind = "UnknownTool"
	KindMissingRequiredParameter Kind = "MissingRequiredParameter"
	KindInvalidParameterType     Kind = "InvalidParameterType"
	KindConstraintViolation      Kind = "ConstraintViolation"
	KindRateLimited              Kind = "RateLimited"
	KindForbidden                Kind = "Forbidden"
	KindTimeout                  Kind = "Timeout"
	KindUpstreamUnavailable      Kind = "UpstreamUnavailable"
	KindUnknownChunk             Kind = "UnknownChunk"
	KindDuplicateTool            Kind = "DuplicateTool"
)

// Error is the structured failure payload of a tool call.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// classify maps a component error to its wire kind. Anything unrecognized is
// a backing-service failure.
func classify(err error) *Error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return &Error{Kind: Kind(verr.Kind), Message: verr.Error()}
	}

	switch {
	case errors.Is(err, gate.ErrRateLimited):
		return &Error{Kind: KindRateLimited, Message: err.Error()}
	case errors.Is(err, gate.ErrForbidden):
		return &Error{Kind: KindForbidden, Message: err.Error()}
	case errors.Is(err, docsearch.ErrUnknownChunk):
		return &Error{Kind: KindUnknownChunk, Message: err.Error()}
	case errors.Is(err, schema.ErrDuplicateTool):
		return &Error{Kind: KindDuplicateTool, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "tool execution timed out"}
	default:
		return &Error{Kind: KindUpstreamUnavailable, Message: err.Error()}
	}
}
