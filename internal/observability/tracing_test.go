package observability

import (
	"context"
	"testing"

	"github.com/cityair/conductor/internal/log"
)

func TestSetup(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Setup(ctx, Config{
		AgentHost:   "localhost:4318",
		Environment: "test",
		ServiceName: "conductor-test",
	}, log.NewNop())
	if err != nil {
		t.Fatalf("Setup() = %v", err)
	}
	if shutdown == nil {
		t.Fatal("Setup() returned nil shutdown")
	}
	if err := shutdown(ctx); err != nil {
		t.Errorf("shutdown() = %v", err)
	}
}

func TestSetup_Defaults(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatalf("Setup() = %v", err)
	}
	defer shutdown(context.Background())
}
