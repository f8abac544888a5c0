package state

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crisalvesdev/atendebot/engine/docstore"
)

const (
	collection     = "contact_state"
	fieldAITurns   = "ai_turns"
	fieldName      = "display_name"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "last_updated"
)

// Config for the turn/state store.
type Config struct {
	TTL time.Duration `envconfig:"TTL" split_words:"true" default:"6h"`
}

type memRow struct {
	state     ContactState
	expiresAt time.Time
}

// Store is the Turn/State Store: in-process fast path mirroring a durable
// document per contact. Durable failures are logged and swallowed; the store
// degrades to in-process-only counting for the rest of the TTL window.
type Store struct {
	docs docstore.Store // nil = in-process only
	ttl  time.Duration

	mu  sync.Mutex
	mem map[string]memRow

	now func() time.Time
	log zerolog.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(docs docstore.Store, cfg Config, opts ...Option) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	s := &Store{
		docs: docs,
		ttl:  ttl,
		mem:  make(map[string]memRow),
		now:  time.Now,
		log:  log.With().Str("component", "contact_state").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Get returns the contact's state. A record past its TTL reads as absent.
func (s *Store) Get(ctx context.Context, tenant, contactKey string) (ContactState, bool) {
	id := ContactDocID(tenant, contactKey)
	if id == "" {
		return ContactState{}, false
	}
	now := s.now()

	s.mu.Lock()
	row, ok := s.mem[id]
	s.mu.Unlock()
	if ok && row.expiresAt.After(now) {
		return row.state, true
	}

	if s.docs == nil {
		return ContactState{}, false
	}
	doc, err := s.docs.Get(ctx, docPath(id))
	if err != nil {
		if err != docstore.ErrDocNotFound {
			s.log.Info().Err(err).Str("contact", id).Msg("durable state get failed")
		}
		return ContactState{}, false
	}

	st := decodeState(doc)
	if !st.Fresh(s.ttl, now) {
		return ContactState{}, false
	}
	s.mirror(id, st)
	return st, true
}

// IncrementTurns atomically bumps the contact's LLM-turn counter and returns
// the new value. Concurrent increments for the same key never lose an
// update: the durable backend applies a per-document atomic increment, and
// the in-process fallback counts under the store mutex.
func (s *Store) IncrementTurns(ctx context.Context, tenant, contactKey string) uint {
	id := ContactDocID(tenant, contactKey)
	if id == "" {
		return 1
	}
	now := s.now()

	if s.docs != nil {
		if _, fresh := s.Get(ctx, tenant, contactKey); !fresh && s.durableExists(ctx, id) {
			// The durable record outlived its TTL window; restart the count.
			s.resetDurable(ctx, id, now)
		}

		newValue, err := s.docs.Increment(ctx, docPath(id), fieldAITurns, 1)
		if err == nil {
			s.touchDurable(ctx, id, now)
			s.mirrorTurns(id, uint(newValue), now)
			return uint(newValue)
		}
		s.log.Info().Err(err).Str("contact", id).Msg("durable turn increment failed, counting in-process")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.mem[id]
	if !ok || !row.expiresAt.After(now) {
		row = memRow{state: ContactState{CreatedAt: now}}
	}
	row.state.AITurns++
	row.state.LastUpdated = now
	row.expiresAt = now.Add(s.ttl)
	s.mem[id] = row
	return row.state.AITurns
}

// SetDisplayName records a learned contact name. Best-effort on both layers.
func (s *Store) SetDisplayName(ctx context.Context, tenant, contactKey, name string) {
	id := ContactDocID(tenant, contactKey)
	if id == "" || name == "" {
		return
	}
	now := s.now()

	s.mu.Lock()
	row, ok := s.mem[id]
	if !ok || !row.expiresAt.After(now) {
		row = memRow{state: ContactState{CreatedAt: now}}
	}
	row.state.DisplayName = name
	row.state.LastUpdated = now
	row.expiresAt = now.Add(s.ttl)
	s.mem[id] = row
	s.mu.Unlock()

	if s.docs == nil {
		return
	}
	doc := docstore.Document{
		fieldName:      name,
		fieldUpdatedAt: now.UTC().Format(time.RFC3339),
	}
	if err := s.docs.Set(ctx, docPath(id), doc, true); err != nil {
		s.log.Info().Err(err).Str("contact", id).Msg("durable name write failed")
	}
}

func (s *Store) durableExists(ctx context.Context, id string) bool {
	_, err := s.docs.Get(ctx, docPath(id))
	return err == nil
}

func (s *Store) resetDurable(ctx context.Context, id string, now time.Time) {
	doc := docstore.Document{
		fieldAITurns:   int64(0),
		fieldCreatedAt: now.UTC().Format(time.RFC3339),
		fieldUpdatedAt: now.UTC().Format(time.RFC3339),
	}
	if err := s.docs.Set(ctx, docPath(id), doc, false); err != nil {
		s.log.Info().Err(err).Str("contact", id).Msg("durable state reset failed")
	}
}

func (s *Store) touchDurable(ctx context.Context, id string, now time.Time) {
	doc := docstore.Document{fieldUpdatedAt: now.UTC().Format(time.RFC3339)}
	if err := s.docs.Set(ctx, docPath(id), doc, true); err != nil {
		s.log.Debug().Err(err).Str("contact", id).Msg("durable state touch failed")
	}
}

func (s *Store) mirror(id string, st ContactState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := st.LastUpdated.Add(s.ttl)
	s.mem[id] = memRow{state: st, expiresAt: remaining}
}

func (s *Store) mirrorTurns(id string, turns uint, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.mem[id]
	if !ok || !row.expiresAt.After(now) {
		row = memRow{state: ContactState{CreatedAt: now}}
	}
	row.state.AITurns = turns
	row.state.LastUpdated = now
	row.expiresAt = now.Add(s.ttl)
	s.mem[id] = row
}

func docPath(id string) string {
	return collection + "/" + id
}

func decodeState(doc docstore.Document) ContactState {
	st := ContactState{}
	if n, ok := asUint(doc[fieldAITurns]); ok {
		st.AITurns = n
	}
	if name, ok := doc[fieldName].(string); ok {
		st.DisplayName = name
	}
	if t, ok := parseTime(doc[fieldCreatedAt]); ok {
		st.CreatedAt = t
	}
	if t, ok := parseTime(doc[fieldUpdatedAt]); ok {
		st.LastUpdated = t
	}
	return st
}

func asUint(v any) (uint, bool) {
	switch n := v.(type) {
	case int64:
		if n < 0 {
			return 0, true
		}
		return uint(n), true
	case float64:
		if n < 0 {
			return 0, true
		}
		return uint(n), true
	case int:
		if n < 0 {
			return 0, true
		}
		return uint(n), true
	default:
		return 0, false
	}
}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
