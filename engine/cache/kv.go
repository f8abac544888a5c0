// Package cache is a namespaced TTL key-value cache: durable document store
// when one is configured, bounded in-process map otherwise. Expired entries
// read back as absent and are deleted on that read.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crisalvesdev/atendebot/engine/docstore"
)

const (
	defaultMaxEntries = 5000
	fieldValue        = "value"
	fieldExpAt        = "expAt"
	fieldUpdatedAt    = "updatedAt"
)

type memEntry struct {
	raw       json.RawMessage
	expiresAt time.Time
	storedAt  time.Time
}

type Cache struct {
	durable docstore.Store // nil = in-process only

	mu         sync.Mutex
	mem        map[string]memEntry
	maxEntries int

	now func() time.Time
	log zerolog.Logger
}

type Option func(*Cache)

func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a cache. durable may be nil, in which case entries live only in
// process memory with a hard size cap.
func New(durable docstore.Store, opts ...Option) *Cache {
	c := &Cache{
		durable:    durable,
		mem:        make(map[string]memEntry),
		maxEntries: defaultMaxEntries,
		now:        time.Now,
		log:        log.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Put stores value under (namespace, key) for ttl. Durable write failures
// degrade to in-process storage; Put never fails the caller.
func (c *Cache) Put(ctx context.Context, namespace, key string, value any, ttl time.Duration) {
	id := entryID(namespace, key)
	if id == "" {
		return
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("ns", namespace).Msg("cache value not serializable, dropped")
		return
	}

	now := c.now()
	c.memPut(id, raw, now, now.Add(ttl))

	if c.durable == nil {
		return
	}
	doc := docstore.Document{
		fieldValue:     json.RawMessage(raw),
		fieldExpAt:     now.Add(ttl).UTC().Format(time.RFC3339),
		fieldUpdatedAt: now.UTC().Format(time.RFC3339),
	}
	if err := c.durable.Set(ctx, "cache/"+id, doc, false); err != nil {
		c.log.Info().Err(err).Str("ns", namespace).Msg("durable cache put failed, in-process only")
	}
}

// Get loads (namespace, key) into out, reporting whether a live entry was
// found. An entry past its expiry is deleted and treated as absent.
func (c *Cache) Get(ctx context.Context, namespace, key string, out any) bool {
	id := entryID(namespace, key)
	if id == "" {
		return false
	}
	now := c.now()

	if raw, ok := c.memGet(id, now); ok {
		return json.Unmarshal(raw, out) == nil
	}
	if c.durable == nil {
		return false
	}

	doc, err := c.durable.Get(ctx, "cache/"+id)
	if err != nil {
		if err != docstore.ErrDocNotFound {
			c.log.Info().Err(err).Str("ns", namespace).Msg("durable cache get failed")
		}
		return false
	}

	expAt, ok := parseExpiry(doc[fieldExpAt])
	if !ok || !expAt.After(now) {
		// Lazy cleanup: stale entries are removed on the read that finds
		// them.
		if delErr := c.durable.Delete(ctx, "cache/"+id); delErr != nil {
			c.log.Debug().Err(delErr).Msg("stale cache delete failed")
		}
		return false
	}

	raw, err := json.Marshal(doc[fieldValue])
	if err != nil {
		return false
	}
	c.memPut(id, raw, now, expAt)
	return json.Unmarshal(raw, out) == nil
}

// Delete removes (namespace, key) from both layers.
func (c *Cache) Delete(ctx context.Context, namespace, key string) {
	id := entryID(namespace, key)
	if id == "" {
		return
	}
	c.mu.Lock()
	delete(c.mem, id)
	c.mu.Unlock()

	if c.durable != nil {
		if err := c.durable.Delete(ctx, "cache/"+id); err != nil {
			c.log.Debug().Err(err).Msg("durable cache delete failed")
		}
	}
}

func (c *Cache) memPut(id string, raw json.RawMessage, now, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.mem[id]; !exists && len(c.mem) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.mem[id] = memEntry{raw: raw, expiresAt: expiresAt, storedAt: now}
}

func (c *Cache) memGet(id string, now time.Time) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.mem[id]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.After(now) {
		delete(c.mem, id)
		return nil, false
	}
	return entry.raw, true
}

// evictLocked frees room for one entry: expired entries go first, then the
// oldest live one.
func (c *Cache) evictLocked(now time.Time) {
	removed := false
	for id, entry := range c.mem {
		if !entry.expiresAt.After(now) {
			delete(c.mem, id)
			removed = true
		}
	}
	if removed || len(c.mem) < c.maxEntries {
		return
	}

	oldestID := ""
	var oldestAt time.Time
	for id, entry := range c.mem {
		if oldestID == "" || entry.storedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = entry.storedAt
		}
	}
	if oldestID != "" {
		delete(c.mem, oldestID)
	}
}

var wsCollapser = regexp.MustCompile(`\s+`)

// MakeKey builds a stable cache key from its parts: lowercase, whitespace
// collapsed to hyphens, parts joined with "::".
func MakeKey(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		p := strings.ToLower(strings.TrimSpace(part))
		p = wsCollapser.ReplaceAllString(p, "-")
		normalized = append(normalized, p)
	}
	return strings.Join(normalized, "::")
}

// HashText returns the stable hash used for text-derived keys and canary
// bucketing.
func HashText(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func entryID(namespace, key string) string {
	ns := strings.TrimSpace(namespace)
	k := strings.TrimSpace(key)
	if ns == "" || k == "" {
		return ""
	}
	id, err := docstore.SanitizePath(ns + "/" + k)
	if err != nil {
		return ""
	}
	return id
}

func parseExpiry(v any) (time.Time, bool) {
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
