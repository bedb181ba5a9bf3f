package mcp

import (
	"context"
	"testing"

	"github.com/cityair/conductor/internal/dispatch"
	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/schema"
)

type mockDispatcher struct {
	lastCall dispatch.Call
}

func (m *mockDispatcher) Dispatch(ctx context.Context, call dispatch.Call) dispatch.Result {
	m.lastCall = call
	return dispatch.Result{Status: "ok"}
}

func testCatalog(t *testing.T) []schema.ToolSchema {
	t.Helper()
	r := schema.NewRegistry()
	err := r.Register(schema.Definition{
		Name:        "update_filters",
		Description: "Set data filters.",
		Effect:      schema.EffectStateMutating,
		Params: []schema.ParamSpec{
			{Name: "pollutant", Type: schema.TypeString, Enum: []string{"NO2", "PM2.5"}},
		},
	})
	if err != nil {
		t.Fatalf("Register() = %v", err)
	}
	return r.Catalog()
}

func TestNewServer(t *testing.T) {
	s, err := NewServer(Config{
		Name:       "conductor",
		Version:    "1.0.0",
		Dispatcher: &mockDispatcher{},
		Catalog:    testCatalog(t),
		Logger:     log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}
	if s.sessionID == "" {
		t.Error("server has no session ID")
	}
	if s.callerID != "mcp-client" {
		t.Errorf("callerID = %q, want default mcp-client", s.callerID)
	}
}

func TestNewServer_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing name", Config{Version: "1.0.0", Dispatcher: &mockDispatcher{}}},
		{"missing version", Config{Name: "conductor", Dispatcher: &mockDispatcher{}}},
		{"missing dispatcher", Config{Name: "conductor", Version: "1.0.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewServer(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHandler_RoutesToDispatcher(t *testing.T) {
	d := &mockDispatcher{}
	s, err := NewServer(Config{
		Name:       "conductor",
		Version:    "1.0.0",
		CallerID:   "dashboard-agent",
		Dispatcher: d,
		Catalog:    testCatalog(t),
		Logger:     log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}

	if s.callerID != "dashboard-agent" {
		t.Errorf("callerID = %q", s.callerID)
	}
	if s.dispatcher != d {
		t.Error("dispatcher not wired")
	}
}
