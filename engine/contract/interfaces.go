package contract

import "context"

// Completion is what the LLM collaborator hands back on success.
type Completion struct {
	Text  string
	Usage TokenUsage
}

// Completer is the LLM collaborator. Implementations must apply a hard
// timeout and return a typed error instead of panicking across the boundary;
// callers treat every failure as a "produce fallback" event.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (Completion, error)
}

// ReplyHandler is the uniform contract shared by the specialized handlers.
// ErrNotApplicable signals "let the caller fall through"; any other error is
// swallowed by the orchestrator's fallback chain.
type ReplyHandler interface {
	GenerateReply(ctx context.Context, tenant, text string, conv *ConversationContext) (*ReplyResult, error)
}

// KnowledgeProvider supplies the compact per-tenant catalog/persona snapshot.
// The engine treats the snapshot as an opaque, size-capped string.
type KnowledgeProvider interface {
	Snapshot(ctx context.Context, tenant string, maxChars int) (string, error)
}

// ArchiveSearcher answers content questions from the tenant's document
// archive (mini-RAG). Empty answer means "no match"; the caller falls
// through. The retrieval mechanics live outside this engine.
type ArchiveSearcher interface {
	Answer(ctx context.Context, tenant, question string) (string, error)
}

// AudienceResolver tells the lead audience apart from the tenant's own
// customers. Unknown contacts are leads; resolution errors degrade to lead.
type AudienceResolver interface {
	IsCustomer(ctx context.Context, tenant, contactKey string) (bool, error)
}
