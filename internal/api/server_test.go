package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cityair/conductor/internal/dispatch"
	"github.com/cityair/conductor/internal/export"
	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/schema"
	"github.com/cityair/conductor/internal/session"
)

// mockDispatcher returns a canned result and records the call it received.
type mockDispatcher struct {
	result   dispatch.Result
	lastCall dispatch.Call
	panics   bool
}

func (m *mockDispatcher) Dispatch(ctx context.Context, call dispatch.Call) dispatch.Result {
	if m.panics {
		panic("boom")
	}
	m.lastCall = call
	return m.result
}

func okResult() dispatch.Result {
	return dispatch.Result{
		Status:          "ok",
		Result:          map[string]any{"filters": map[string]any{"pollutant": "NO2"}},
		ContextSnapshot: session.NewContext("s1", time.Now()),
	}
}

func newTestServer(t *testing.T, d ToolCaller) *Server {
	t.Helper()

	spool, err := export.NewSpool(t.TempDir(), time.Hour, log.NewNop())
	if err != nil {
		t.Fatalf("NewSpool() = %v", err)
	}
	srv, err := NewServer(ServerConfig{
		Dispatcher: d,
		Catalog:    []schema.ToolSchema{{Name: "update_filters", Effect: schema.EffectStateMutating}},
		Exports:    spool,
		Logger:     log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}
	return srv
}

func postCall(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/call", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCallTool_Success(t *testing.T) {
	d := &mockDispatcher{result: okResult()}
	srv := newTestServer(t, d)

	rec := postCall(t, srv, `{
		"session_id": "s1", "caller_id": "alice",
		"tool": "update_filters", "arguments": {"pollutant": "NO2"}
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if d.lastCall.Tool != "update_filters" || d.lastCall.SessionID != "s1" {
		t.Errorf("dispatched call = %+v", d.lastCall)
	}
	if d.lastCall.Arguments["pollutant"] != "NO2" {
		t.Errorf("arguments = %v", d.lastCall.Arguments)
	}

	var envelope struct {
		Status          string          `json:"status"`
		ContextSnapshot json.RawMessage `json:"context_snapshot"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if envelope.Status != "ok" {
		t.Errorf("envelope status = %q", envelope.Status)
	}
	if len(envelope.ContextSnapshot) == 0 {
		t.Error("envelope missing context_snapshot")
	}
}

func TestCallTool_MalformedBody(t *testing.T) {
	srv := newTestServer(t, &mockDispatcher{})

	rec := postCall(t, srv, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCallTool_MissingFields(t *testing.T) {
	srv := newTestServer(t, &mockDispatcher{})

	tests := []struct {
		name string
		body string
	}{
		{"no session_id", `{"caller_id": "a", "tool": "t"}`},
		{"no caller_id", `{"session_id": "s", "tool": "t"}`},
		{"no tool", `{"session_id": "s", "caller_id": "a"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := postCall(t, srv, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCallTool_ErrorKindToStatus(t *testing.T) {
	tests := []struct {
		kind dispatch.Kind
		want int
	}{
		{dispatch.KindUnknownTool, http.StatusNotFound},
		{dispatch.KindUnknownChunk, http.StatusNotFound},
		{dispatch.KindMissingRequiredParameter, http.StatusBadRequest},
		{dispatch.KindInvalidParameterType, http.StatusBadRequest},
		{dispatch.KindConstraintViolation, http.StatusBadRequest},
		{dispatch.KindRateLimited, http.StatusTooManyRequests},
		{dispatch.KindForbidden, http.StatusForbidden},
		{dispatch.KindTimeout, http.StatusGatewayTimeout},
		{dispatch.KindUpstreamUnavailable, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			d := &mockDispatcher{result: dispatch.Result{
				Status: "error",
				Error:  &dispatch.Error{Kind: tt.kind, Message: "nope"},
			}}
			srv := newTestServer(t, d)

			rec := postCall(t, srv, `{"session_id": "s", "caller_id": "a", "tool": "t"}`)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}

			var envelope struct {
				Error *dispatch.Error `json:"error"`
			}
			json.Unmarshal(rec.Body.Bytes(), &envelope)
			if envelope.Error == nil || envelope.Error.Kind != tt.kind {
				t.Errorf("envelope error = %+v, want kind %s", envelope.Error, tt.kind)
			}
		})
	}
}

func TestListTools(t *testing.T) {
	srv := newTestServer(t, &mockDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Tools []schema.ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("catalogue is not JSON: %v", err)
	}
	if len(body.Tools) != 1 || body.Tools[0].Name != "update_filters" {
		t.Errorf("tools = %+v", body.Tools)
	}
}

func TestDownloadExport(t *testing.T) {
	spool, err := export.NewSpool(t.TempDir(), time.Hour, log.NewNop())
	if err != nil {
		t.Fatalf("NewSpool() = %v", err)
	}
	srv, err := NewServer(ServerConfig{
		Dispatcher: &mockDispatcher{},
		Exports:    spool,
		Logger:     log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}

	w, _ := spool.Create("readings.csv")
	w.Write([]byte("site_code,value\nWA001,38.2\n"))
	handle, err := w.Commit(1)
	if err != nil {
		t.Fatalf("Commit() = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/"+handle.ID, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "readings.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "WA001") {
		t.Errorf("body = %q", rec.Body)
	}
}

func TestDownloadExport_Unknown(t *testing.T) {
	srv := newTestServer(t, &mockDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthProbes(t *testing.T) {
	srv := newTestServer(t, &mockDispatcher{})

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer(t, &mockDispatcher{panics: true})

	rec := postCall(t, srv, `{"session_id": "s", "caller_id": "a", "tool": "t"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
