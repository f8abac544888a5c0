package handlers

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/crisalvesdev/atendebot/engine/contract"
	"github.com/crisalvesdev/atendebot/engine/docstore"
	"github.com/crisalvesdev/atendebot/engine/state"
)

const (
	snapshotsCollection = "kb_snapshots"
	profilesCollection  = "contact_profiles"
)

// DocstoreCatalog serves the per-tenant catalog/persona snapshot from the
// document at kb_snapshots/<tenant>, field "snapshot".
type DocstoreCatalog struct {
	docs docstore.Store
}

var _ contract.KnowledgeProvider = (*DocstoreCatalog)(nil)

func NewDocstoreCatalog(docs docstore.Store) *DocstoreCatalog {
	return &DocstoreCatalog{docs: docs}
}

func (c *DocstoreCatalog) Snapshot(ctx context.Context, tenant string, maxChars int) (string, error) {
	path, err := docstore.SanitizePath(snapshotsCollection + "/" + tenant)
	if err != nil {
		return "", err
	}
	doc, err := c.docs.Get(ctx, path)
	if err != nil {
		return "", err
	}
	snap, _ := doc["snapshot"].(string)
	snap = strings.TrimSpace(snap)
	if maxChars > 0 && len(snap) > maxChars {
		snap = truncateRunes(snap, maxChars)
	}
	return snap, nil
}

// truncateRunes cuts s to at most max bytes, never mid-rune.
func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// DocstoreDirectory resolves the contact audience from the profile document
// at contact_profiles/<tenant>__<digits>. Profiles never expire; a contact
// stays a customer across quiet months even when the turn state lapsed.
type DocstoreDirectory struct {
	docs docstore.Store
}

var _ contract.AudienceResolver = (*DocstoreDirectory)(nil)

func NewDocstoreDirectory(docs docstore.Store) *DocstoreDirectory {
	return &DocstoreDirectory{docs: docs}
}

func (d *DocstoreDirectory) IsCustomer(ctx context.Context, tenant, contactKey string) (bool, error) {
	id := state.ContactDocID(tenant, contactKey)
	if id == "" {
		return false, nil
	}
	path, err := docstore.SanitizePath(profilesCollection + "/" + id)
	if err != nil {
		return false, err
	}
	doc, err := d.docs.Get(ctx, path)
	if err != nil {
		if err == docstore.ErrDocNotFound {
			return false, nil
		}
		return false, err
	}
	kind, _ := doc["kind"].(string)
	return strings.EqualFold(strings.TrimSpace(kind), "customer"), nil
}
