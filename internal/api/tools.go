package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cityair/conductor/internal/dispatch"
	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/schema"
)

// maxCallBody bounds the inbound envelope size.
const maxCallBody = 1 << 20 // 1 MiB

// ToolCaller executes one tool call. Satisfied by *dispatch.Dispatcher.
type ToolCaller interface {
	Dispatch(ctx context.Context, call dispatch.Call) dispatch.Result
}

// toolsHandler serves the tool-call endpoint and the catalogue.
type toolsHandler struct {
	dispatcher ToolCaller
	catalog    []schema.ToolSchema
	logger     log.Logger
}

// callTool handles POST /api/v1/tools/call. The request body is the inbound
// tool-call envelope; the response body is always a complete outbound
// envelope, with tool-level failures carried in its error field.
func (h *toolsHandler) callTool(w http.ResponseWriter, r *http.Request) {
	var call dispatch.Call
	body := io.LimitReader(r.Body, maxCallBody)
	if err := json.NewDecoder(body).Decode(&call); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_envelope", "request body is not a valid tool-call envelope", h.logger)
		return
	}
	if call.SessionID == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id", "session_id is required", h.logger)
		return
	}
	if call.CallerID == "" {
		writeError(w, http.StatusBadRequest, "missing_caller_id", "caller_id is required", h.logger)
		return
	}
	if call.Tool == "" {
		writeError(w, http.StatusBadRequest, "missing_tool", "tool is required", h.logger)
		return
	}

	result := h.dispatcher.Dispatch(r.Context(), call)
	writeJSON(w, statusFor(result), result, h.logger)
}

// statusFor maps an envelope to its HTTP status. Tool-level failures keep
// their full envelope body; the status code mirrors the error kind for
// clients that route on it.
func statusFor(result dispatch.Result) int {
	if result.Error == nil {
		return http.StatusOK
	}
	switch result.Error.Kind {
	case dispatch.KindUnknownTool, dispatch.KindUnknownChunk:
		return http.StatusNotFound
	case dispatch.KindMissingRequiredParameter,
		dispatch.KindInvalidParameterType,
		dispatch.KindConstraintViolation:
		return http.StatusBadRequest
	case dispatch.KindRateLimited:
		return http.StatusTooManyRequests
	case dispatch.KindForbidden:
		return http.StatusForbidden
	case dispatch.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// listTools handles GET /api/v1/tools, returning the serialized catalogue.
func (h *toolsHandler) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": h.catalog}, h.logger)
}
