// Package state owns the per-contact conversation counters: how many
// LLM-backed turns a contact has consumed inside the current TTL window,
// plus the short name snippets the support handler learns.
package state

import (
	"strings"
	"time"
)

// ContactState is the durable record for one (tenant, contact) pair. It is
// never explicitly deleted; it becomes invisible once LastUpdated+TTL passes.
type ContactState struct {
	AITurns        uint      `json:"ai_turns"`
	DisplayName    string    `json:"display_name,omitempty"`
	LastNameUsedAt time.Time `json:"last_name_used_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Fresh reports whether the record is still inside its TTL window.
func (s ContactState) Fresh(ttl time.Duration, now time.Time) bool {
	if s.LastUpdated.IsZero() {
		return false
	}
	return s.LastUpdated.Add(ttl).After(now)
}

// ContactDocID builds the durable document id: tenant-scoped, contact key
// normalized to digits so phone-number formatting variants collapse to one
// record.
func ContactDocID(tenant, contactKey string) string {
	digits := onlyDigits(contactKey)
	if digits == "" {
		digits = strings.TrimSpace(contactKey)
	}
	t := strings.TrimSpace(tenant)
	if t == "" {
		return digits
	}
	return t + "__" + digits
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
