// Package docstore is the durable document collaborator: JSON documents
// addressed by a slash-separated path, with a per-document atomic field
// increment. Backends: Upstash Redis over REST, Postgres via bun, and an
// in-process store for tests and single-node setups.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrDocNotFound = errors.New("document not found")
	ErrInvalidPath = errors.New("document path is empty")
)

// Document is one stored record. Values are JSON-compatible; counter fields
// incremented through Increment must hold integers.
type Document map[string]any

// Decode unmarshals the document into out through a JSON round trip.
func (d Document) Decode(out any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Store is the persistence contract used by the state store, the cache's
// durable backend and the budget ledger.
type Store interface {
	// Get returns the document at path, or ErrDocNotFound.
	Get(ctx context.Context, path string) (Document, error)

	// Set writes the document. With merge, existing fields not present in
	// doc are preserved.
	Set(ctx context.Context, path string, doc Document, merge bool) error

	// Increment atomically adds delta to an integer field and returns the
	// new value, creating document and field as needed.
	Increment(ctx context.Context, path, field string, delta int64) (int64, error)

	// Delete removes the document. Deleting an absent document is not an
	// error.
	Delete(ctx context.Context, path string) error
}

const maxPathLen = 480

var pathCleaner = regexp.MustCompile(`[^\w\-\.@:+=,/ ]+`)

// SanitizePath normalizes a document path the way the backends expect:
// problematic characters collapsed to underscores, bounded length.
func SanitizePath(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", ErrInvalidPath
	}
	p = pathCleaner.ReplaceAllString(p, "_")
	if len(p) > maxPathLen {
		p = p[:maxPathLen]
	}
	return p, nil
}
