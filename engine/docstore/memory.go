package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in-process. It honors the same atomicity
// contract as the durable backends (a single mutex guards every operation),
// which makes it the reference implementation for tests.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (m *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	p, err := SanitizePath(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[p]
	if !ok {
		return nil, ErrDocNotFound
	}
	return cloneDocument(doc), nil
}

func (m *MemoryStore) Set(ctx context.Context, path string, doc Document, merge bool) error {
	p, err := SanitizePath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !merge {
		m.docs[p] = cloneDocument(doc)
		return nil
	}
	cur, ok := m.docs[p]
	if !ok {
		cur = make(Document, len(doc))
	}
	for k, v := range cloneDocument(doc) {
		cur[k] = v
	}
	m.docs[p] = cur
	return nil
}

func (m *MemoryStore) Increment(ctx context.Context, path, field string, delta int64) (int64, error) {
	p, err := SanitizePath(path)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.docs[p]
	if !ok {
		cur = make(Document, 1)
		m.docs[p] = cur
	}
	n, err := asInt64(cur[field])
	if err != nil {
		return 0, fmt.Errorf("field %q is not an integer: %w", field, err)
	}
	n += delta
	cur[field] = n
	return n, nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	p, err := SanitizePath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, p)
	return nil
}

func cloneDocument(doc Document) Document {
	if doc == nil {
		return Document{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		out := make(Document, len(doc))
		for k, v := range doc {
			out[k] = v
		}
		return out
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		out = make(Document, len(doc))
		for k, v := range doc {
			out[k] = v
		}
	}
	return out
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
