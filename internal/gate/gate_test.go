package gate

import (
	"errors"
	"testing"
	"time"

	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/schema"
)

var (
	publicTool = &schema.Definition{Name: "summary_statistics", Effect: schema.EffectReadOnly}
	adminTool  = &schema.Definition{Name: "refresh_data", Role: schema.RoleAdmin, Effect: schema.EffectReadOnly}
)

func TestGate_Check_QuotaExhaustion(t *testing.T) {
	g := New(20, nil, log.NewNop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	for i := 0; i < 20; i++ {
		if err := g.Check("caller-a", publicTool); err != nil {
			t.Fatalf("call %d: Check() = %v, want nil", i+1, err)
		}
	}

	if err := g.Check("caller-a", publicTool); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("call 21: Check() = %v, want ErrRateLimited", err)
	}
}

func TestGate_Check_CallersIsolated(t *testing.T) {
	g := New(20, nil, log.NewNop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	for i := 0; i < 21; i++ {
		g.Check("noisy", publicTool)
	}

	if err := g.Check("quiet", publicTool); err != nil {
		t.Errorf("Check() for unrelated caller = %v, want nil", err)
	}
}

func TestGate_Check_QuotaRefills(t *testing.T) {
	g := New(20, nil, log.NewNop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	for i := 0; i < 20; i++ {
		g.Check("caller-a", publicTool)
	}
	if err := g.Check("caller-a", publicTool); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Check() = %v, want ErrRateLimited", err)
	}

	// 20 per minute refills one token every 3 seconds.
	g.now = func() time.Time { return base.Add(4 * time.Second) }
	if err := g.Check("caller-a", publicTool); err != nil {
		t.Errorf("Check() after refill = %v, want nil", err)
	}
}

func TestGate_Check_AdminTool(t *testing.T) {
	g := New(20, []string{"ops"}, log.NewNop())

	if err := g.Check("visitor", adminTool); !errors.Is(err, ErrForbidden) {
		t.Errorf("Check() for non-admin = %v, want ErrForbidden", err)
	}
	if err := g.Check("ops", adminTool); err != nil {
		t.Errorf("Check() for admin = %v, want nil", err)
	}
}

func TestGate_Check_ForbiddenDoesNotConsumeQuota(t *testing.T) {
	g := New(2, nil, log.NewNop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		if err := g.Check("visitor", adminTool); !errors.Is(err, ErrForbidden) {
			t.Fatalf("Check() = %v, want ErrForbidden", err)
		}
	}

	// Quota is untouched by the forbidden attempts.
	if err := g.Check("visitor", publicTool); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
	if err := g.Check("visitor", publicTool); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
}

func TestGate_IsAdmin(t *testing.T) {
	g := New(20, []string{"ops"}, log.NewNop())
	if !g.IsAdmin("ops") {
		t.Error("IsAdmin(ops) = false, want true")
	}
	if g.IsAdmin("visitor") {
		t.Error("IsAdmin(visitor) = true, want false")
	}
}
