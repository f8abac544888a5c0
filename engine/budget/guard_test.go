package budget

import (
	"context"
	"testing"
	"time"

	"github.com/crisalvesdev/atendebot/engine/cache"
)

func testGuard(t *testing.T, cfg Config, at time.Time) *Guard {
	t.Helper()
	kv := cache.New(nil, cache.WithClock(func() time.Time { return at }))
	return New(kv, cfg, WithClock(func() time.Time { return at }))
}

func TestHeadroomWithinSoftCap(t *testing.T) {
	t.Parallel()
	cfg := Config{MonthlyUSD: 15, ReservePct: 0.20, MinRemainLLM: 2.50, MinRemainAudio: 1.00, LLMDailyCap: 200, EnableLLM: true, EnableAudio: true}
	g := testGuard(t, cfg, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if !g.HasHeadroom(ctx, "acme", OpLLMMessage) {
		t.Fatalf("fresh tenant should have headroom")
	}

	// soft cap = 15 - 3 = 12; spending 10 leaves 2.0 < MinRemainLLM.
	for i := 0; i < 667; i++ {
		g.Record(ctx, "acme", OpLLMMessage, 1)
	}
	fp := g.Fingerprint(ctx, "acme")
	if fp.SpentUSD < 10.0 {
		t.Fatalf("spent = %v, want >= 10", fp.SpentUSD)
	}
	if g.hasHeadroom(ctx, "acme", OpLLMMessage) {
		t.Fatalf("headroom should be denied near soft cap (remaining %v)", fp.Remaining)
	}
	// audio threshold is lower, still allowed at remaining ~2.
	if !g.hasHeadroom(ctx, "acme", OpTTSMessage) {
		t.Fatalf("audio should still be allowed at remaining %v", fp.Remaining)
	}
}

func TestDailyLLMCap(t *testing.T) {
	t.Parallel()
	cfg := Config{MonthlyUSD: 1000, ReservePct: 0, MinRemainLLM: 1, LLMDailyCap: 3, EnableLLM: true}
	g := testGuard(t, cfg, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !g.hasHeadroom(ctx, "acme", OpLLMMessage) {
			t.Fatalf("call %d should be allowed", i+1)
		}
		g.Record(ctx, "acme", OpLLMMessage, 1)
	}
	if g.hasHeadroom(ctx, "acme", OpLLMMessage) {
		t.Fatalf("daily cap of 3 should deny the 4th call")
	}
	// mini calls are not subject to the daily message cap
	if !g.hasHeadroom(ctx, "acme", OpLLMMini) {
		t.Fatalf("mini calls should not hit the daily message cap")
	}
}

func TestDisabledKinds(t *testing.T) {
	t.Parallel()
	cfg := Config{MonthlyUSD: 15, EnableLLM: false, EnableAudio: false, MinRemainLLM: 0.01, MinRemainAudio: 0.01}
	g := testGuard(t, cfg, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if g.hasHeadroom(ctx, "acme", OpLLMMessage) {
		t.Fatalf("llm disabled by config")
	}
	if g.hasHeadroom(ctx, "acme", OpSTTPer15s) {
		t.Fatalf("audio disabled by config")
	}
}

func TestTenantIsolation(t *testing.T) {
	t.Parallel()
	cfg := Config{MonthlyUSD: 15, ReservePct: 0.20, MinRemainLLM: 2.50, LLMDailyCap: 200, EnableLLM: true}
	g := testGuard(t, cfg, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 700; i++ {
		g.Record(ctx, "big-spender", OpLLMMessage, 1)
	}
	if g.hasHeadroom(ctx, "big-spender", OpLLMMessage) {
		t.Fatalf("big-spender should be exhausted")
	}
	if !g.hasHeadroom(ctx, "quiet-tenant", OpLLMMessage) {
		t.Fatalf("other tenants keep their own ledger")
	}
}

func TestCostOverrides(t *testing.T) {
	t.Parallel()
	cfg := Config{
		MonthlyUSD: 15, EnableLLM: true, MinRemainLLM: 1,
		Costs: map[string]float64{string(OpLLMMessage): 1.0},
	}
	g := testGuard(t, cfg, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	total := g.Record(ctx, "acme", OpLLMMessage, 2)
	if total != 2.0 {
		t.Fatalf("total = %v, want 2.0 with overridden unit cost", total)
	}
}

func TestFingerprintShape(t *testing.T) {
	t.Parallel()
	cfg := Config{MonthlyUSD: 15, ReservePct: 0.20, LLMDailyCap: 200, EnableLLM: true, MinRemainLLM: 2.50}
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	g := testGuard(t, cfg, at)
	ctx := context.Background()

	g.Record(ctx, "acme", OpLLMMessage, 1)
	fp := g.Fingerprint(ctx, "acme")
	if fp.Month != "2026-03" {
		t.Fatalf("month = %q", fp.Month)
	}
	if fp.SoftCapUSD != 12.0 {
		t.Fatalf("soft cap = %v, want 12", fp.SoftCapUSD)
	}
	if fp.LLMToday != 1 {
		t.Fatalf("llm today = %d, want 1", fp.LLMToday)
	}
	if fp.SpentUSD <= 0 {
		t.Fatalf("spent = %v, want > 0", fp.SpentUSD)
	}
}
