package cache

import (
	"context"
	"testing"
	"time"

	"github.com/crisalvesdev/atendebot/engine/docstore"
)

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

func TestGetDeletesExpiredEntry(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	durable := docstore.NewMemoryStore()
	c := New(durable, WithClock(fixedClock(&now)))
	ctx := context.Background()

	c.Put(ctx, "router", "plan", "cached", 10*time.Minute)

	var got string
	if !c.Get(ctx, "router", "plan", &got) || got != "cached" {
		t.Fatalf("live entry missing, got %q", got)
	}

	now = now.Add(11 * time.Minute)
	if c.Get(ctx, "router", "plan", &got) {
		t.Fatal("expired entry still readable")
	}

	// The stale durable document is removed on that read.
	if _, err := durable.Get(ctx, "cache/router/plan"); err != docstore.ErrDocNotFound {
		t.Fatalf("stale durable doc not deleted, err = %v", err)
	}
}

func TestDurableRepopulatesFreshProcess(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	durable := docstore.NewMemoryStore()
	ctx := context.Background()

	writer := New(durable, WithClock(fixedClock(&now)))
	writer.Put(ctx, "support_kb", "acme::contatos", map[string]string{"goal": "G."}, time.Hour)

	// A separate cache over the same store is a process restart.
	reader := New(durable, WithClock(fixedClock(&now)))
	var got map[string]string
	if !reader.Get(ctx, "support_kb", "acme::contatos", &got) {
		t.Fatal("entry not repopulated from durable layer")
	}
	if got["goal"] != "G." {
		t.Fatalf("goal = %q", got["goal"])
	}
}

func TestInProcessOnlyWithoutDurable(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := New(nil, WithClock(fixedClock(&now)))
	ctx := context.Background()

	c.Put(ctx, "ns", "k", 42, time.Minute)
	var got int
	if !c.Get(ctx, "ns", "k", &got) || got != 42 {
		t.Fatalf("got %d", got)
	}

	c.Delete(ctx, "ns", "k")
	if c.Get(ctx, "ns", "k", &got) {
		t.Fatal("deleted entry still readable")
	}
}

func TestEvictionPrefersExpiredThenOldest(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := New(nil, WithClock(fixedClock(&now)), WithMaxEntries(2))
	ctx := context.Background()

	c.Put(ctx, "ns", "stale", "a", time.Minute)
	now = now.Add(2 * time.Minute)
	c.Put(ctx, "ns", "live", "b", time.Hour)

	// Cap reached; the expired entry goes, the live one survives.
	now = now.Add(time.Minute)
	c.Put(ctx, "ns", "newer", "c", time.Hour)

	var got string
	if c.Get(ctx, "ns", "stale", &got) {
		t.Fatal("expired entry survived eviction")
	}
	if !c.Get(ctx, "ns", "live", &got) || got != "b" {
		t.Fatal("live entry evicted while an expired one existed")
	}
	if !c.Get(ctx, "ns", "newer", &got) || got != "c" {
		t.Fatal("new entry missing")
	}

	// No expired entries left: the oldest live entry is evicted.
	now = now.Add(time.Minute)
	c.Put(ctx, "ns", "newest", "d", time.Hour)
	if c.Get(ctx, "ns", "live", &got) {
		t.Fatal("oldest live entry survived a full-cap eviction")
	}
	if !c.Get(ctx, "ns", "newest", &got) || got != "d" {
		t.Fatal("newest entry missing")
	}
}

func TestMakeKeyNormalizes(t *testing.T) {
	t.Parallel()
	got := MakeKey("Acme", "  Spent   USD ", "2026-03")
	want := "acme::spent-usd::2026-03"
	if got != want {
		t.Fatalf("MakeKey = %q, want %q", got, want)
	}
}

func TestHashTextStable(t *testing.T) {
	t.Parallel()
	a := HashText("quanto custa?")
	b := HashText("quanto custa?")
	if a != b || len(a) != 40 {
		t.Fatalf("hash unstable or malformed: %q vs %q", a, b)
	}
	if a == HashText("outra coisa") {
		t.Fatal("distinct texts collided")
	}
}
