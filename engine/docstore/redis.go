package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultKeyPrefix     = "atendebot:doc:"
	maxResponseSizeBytes = 2 << 20
)

// UpstashRedisConfig configures the Redis REST backend.
type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Configured reports whether the backend can be constructed at all.
func (c UpstashRedisConfig) Configured() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Token) != ""
}

// RedisOption customizes UpstashRedisStore.
type RedisOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// WithDocTTL bounds the lifetime of every written document. Zero disables
// expiry; callers that need finer TTLs embed them in the document.
func WithDocTTL(ttl time.Duration) RedisOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) RedisOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore persists documents as Redis hashes via the Upstash REST
// API. One hash field per document field, JSON-encoded values, so HINCRBY
// gives the atomic per-document field increment.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...RedisOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return store, nil
}

func (s *UpstashRedisStore) Get(ctx context.Context, path string) (Document, error) {
	key, err := s.redisKey(path)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"HGETALL", key})
	if err != nil {
		return nil, err
	}

	var flat []string
	if err := json.Unmarshal(resp.Result, &flat); err != nil {
		return nil, fmt.Errorf("decode hgetall result: %w", err)
	}
	if len(flat) == 0 {
		return nil, ErrDocNotFound
	}

	doc := make(Document, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		doc[flat[i]] = decodeFieldValue(flat[i+1])
	}
	return doc, nil
}

func (s *UpstashRedisStore) Set(ctx context.Context, path string, doc Document, merge bool) error {
	key, err := s.redisKey(path)
	if err != nil {
		return err
	}

	if !merge {
		if _, err := s.exec(ctx, []any{"DEL", key}); err != nil {
			return err
		}
	}
	if len(doc) > 0 {
		cmd := []any{"HSET", key}
		for field, value := range doc {
			encoded, err := encodeFieldValue(value)
			if err != nil {
				return fmt.Errorf("encode field %q: %w", field, err)
			}
			cmd = append(cmd, field, encoded)
		}
		if _, err := s.exec(ctx, cmd); err != nil {
			return err
		}
	}
	return s.applyTTL(ctx, key)
}

func (s *UpstashRedisStore) Increment(ctx context.Context, path, field string, delta int64) (int64, error) {
	key, err := s.redisKey(path)
	if err != nil {
		return 0, err
	}

	resp, err := s.exec(ctx, []any{"HINCRBY", key, field, delta})
	if err != nil {
		return 0, err
	}

	var newValue int64
	if err := json.Unmarshal(resp.Result, &newValue); err != nil {
		return 0, fmt.Errorf("decode hincrby result: %w", err)
	}
	if err := s.applyTTL(ctx, key); err != nil {
		return newValue, err
	}
	return newValue, nil
}

func (s *UpstashRedisStore) Delete(ctx context.Context, path string) error {
	key, err := s.redisKey(path)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", key})
	return err
}

func (s *UpstashRedisStore) redisKey(path string) (string, error) {
	p, err := SanitizePath(path)
	if err != nil {
		return "", err
	}
	return s.keyPrefix + p, nil
}

func (s *UpstashRedisStore) applyTTL(ctx context.Context, key string) error {
	if s.ttl <= 0 {
		return nil
	}
	_, err := s.exec(ctx, []any{"EXPIRE", key, ttlSeconds(s.ttl)})
	return err
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func encodeFieldValue(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeFieldValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// Tolerate values written by other clients as plain strings.
		return raw
	}
	return v
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
