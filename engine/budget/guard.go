// Package budget enforces the monthly spending ceiling on metered calls.
// The ledger lives in the KV cache with TTLs running to the end of the
// month/day, so calendar rollover is just expiry.
package budget

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crisalvesdev/atendebot/engine/cache"
	"github.com/crisalvesdev/atendebot/pkg/metrics"
)

// OpKind names a metered operation.
type OpKind string

const (
	OpLLMMessage OpKind = "llm_msg"
	OpLLMMini    OpKind = "llm_mini"
	OpTTSMessage OpKind = "tts_msg"
	OpSTTPer15s  OpKind = "stt_per_15s"
)

// Ledger keys operate in the business timezone so "end of month" matches the
// tenant's billing day, not UTC.
var ledgerTZ = time.FixedZone("UTC-3", -3*60*60)

// Config holds the budget policy. All of it comes from configuration so a
// test run is deterministic.
type Config struct {
	MonthlyUSD     float64 `envconfig:"MONTHLY_USD" split_words:"true" default:"15.0"`
	ReservePct     float64 `envconfig:"RESERVE_PCT" split_words:"true" default:"0.20"`
	MinRemainLLM   float64 `envconfig:"MIN_REMAIN_LLM" split_words:"true" default:"2.50"`
	MinRemainAudio float64 `envconfig:"MIN_REMAIN_AUDIO" split_words:"true" default:"1.00"`
	LLMDailyCap    int     `envconfig:"LLM_DAILY_CAP" split_words:"true" default:"200"`
	EnableLLM      bool    `envconfig:"ENABLE_LLM" split_words:"true" default:"true"`
	EnableAudio    bool    `envconfig:"ENABLE_AUDIO" split_words:"true" default:"true"`

	// Costs in USD per unit, keyed by OpKind. Empty entries fall back to
	// the defaults below.
	Costs map[string]float64 `envconfig:"COSTS" split_words:"true"`
}

var defaultCosts = map[OpKind]float64{
	OpLLMMessage: 0.015,
	OpLLMMini:    0.0002,
	OpTTSMessage: 0.002,
	OpSTTPer15s:  0.003,
}

// Fingerprint is a diagnostic snapshot of one tenant's ledger.
type Fingerprint struct {
	Month      string  `json:"month"`
	LimitUSD   float64 `json:"limit_usd"`
	ReserveUSD float64 `json:"reserve_usd"`
	SoftCapUSD float64 `json:"soft_cap_usd"`
	SpentUSD   float64 `json:"spent_usd"`
	Remaining  float64 `json:"remaining_usd"`
	LLMToday   int     `json:"llm_today"`
	LLMCap     int     `json:"llm_daily_cap"`
}

// Guard tracks spend per tenant and gates expensive operations. It never
// produces a user-visible error; exhaustion means callers take the zero-cost
// path.
type Guard struct {
	kv  *cache.Cache
	cfg Config
	now func() time.Time
	log zerolog.Logger
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func New(kv *cache.Cache, cfg Config, opts ...Option) *Guard {
	g := &Guard{
		kv:  kv,
		cfg: cfg,
		now: time.Now,
		log: log.With().Str("component", "budget").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// HasHeadroom reports whether a metered operation of the given kind may run
// right now. Must be checked immediately before the call.
func (g *Guard) HasHeadroom(ctx context.Context, tenant string, kind OpKind) bool {
	ok := g.hasHeadroom(ctx, tenant, kind)
	if !ok {
		metrics.BudgetDenials.WithLabelValues(string(kind)).Inc()
		g.log.Info().Str("tenant", tenant).Str("kind", string(kind)).Msg("budget headroom denied")
	}
	return ok
}

func (g *Guard) hasHeadroom(ctx context.Context, tenant string, kind OpKind) bool {
	switch kind {
	case OpLLMMessage, OpLLMMini:
		if !g.cfg.EnableLLM {
			return false
		}
		if kind == OpLLMMessage && g.llmTodayCount(ctx, tenant) >= g.dailyCap() {
			return false
		}
		return g.remaining(ctx, tenant) >= g.cfg.MinRemainLLM
	case OpTTSMessage, OpSTTPer15s:
		if !g.cfg.EnableAudio {
			return false
		}
		return g.remaining(ctx, tenant) >= g.cfg.MinRemainAudio
	default:
		return true
	}
}

// Record charges cost(kind) * units against the tenant's month and returns
// the new spent total. LLM messages also bump the daily call counter.
func (g *Guard) Record(ctx context.Context, tenant string, kind OpKind, units float64) float64 {
	if units <= 0 {
		units = 1
	}
	now := g.now().In(ledgerTZ)

	if kind == OpLLMMessage {
		count := g.llmTodayCount(ctx, tenant) + int(units)
		g.kv.Put(ctx, "budget", dayKey(tenant, now), count, untilEndOfDay(now))
	}

	delta := g.costOf(kind) * units
	if delta <= 0 {
		return g.spent(ctx, tenant)
	}
	total := g.spent(ctx, tenant) + delta
	g.kv.Put(ctx, "budget", monthKey(tenant, now), total, untilEndOfMonth(now))
	return total
}

// Fingerprint snapshots the ledger for diagnostics.
func (g *Guard) Fingerprint(ctx context.Context, tenant string) Fingerprint {
	now := g.now().In(ledgerTZ)
	spent := g.spent(ctx, tenant)
	reserve := g.cfg.MonthlyUSD * g.cfg.ReservePct
	softCap := g.cfg.MonthlyUSD - reserve
	if softCap < 0 {
		softCap = 0
	}
	remaining := softCap - spent
	if remaining < 0 {
		remaining = 0
	}
	return Fingerprint{
		Month:      now.Format("2006-01"),
		LimitUSD:   g.cfg.MonthlyUSD,
		ReserveUSD: reserve,
		SoftCapUSD: softCap,
		SpentUSD:   spent,
		Remaining:  remaining,
		LLMToday:   g.llmTodayCount(ctx, tenant),
		LLMCap:     g.dailyCap(),
	}
}

func (g *Guard) remaining(ctx context.Context, tenant string) float64 {
	return g.Fingerprint(ctx, tenant).Remaining
}

func (g *Guard) spent(ctx context.Context, tenant string) float64 {
	now := g.now().In(ledgerTZ)
	var spent float64
	if g.kv.Get(ctx, "budget", monthKey(tenant, now), &spent) && spent > 0 {
		return spent
	}
	return 0
}

func (g *Guard) llmTodayCount(ctx context.Context, tenant string) int {
	now := g.now().In(ledgerTZ)
	var count int
	if g.kv.Get(ctx, "budget", dayKey(tenant, now), &count) && count > 0 {
		return count
	}
	return 0
}

func (g *Guard) costOf(kind OpKind) float64 {
	if g.cfg.Costs != nil {
		if c, ok := g.cfg.Costs[string(kind)]; ok {
			return c
		}
	}
	return defaultCosts[kind]
}

func (g *Guard) dailyCap() int {
	if g.cfg.LLMDailyCap <= 0 {
		return 200
	}
	return g.cfg.LLMDailyCap
}

func monthKey(tenant string, now time.Time) string {
	return cache.MakeKey(tenant, "spent_usd", now.Format("2006-01"))
}

func dayKey(tenant string, now time.Time) string {
	return cache.MakeKey(tenant, "llm_count", now.Format("2006-01-02"))
}

func untilEndOfMonth(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
	d := next.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return d
}

func untilEndOfDay(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	d := next.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return d
}
