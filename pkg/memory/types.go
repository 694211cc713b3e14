package memory

import (
	"context"
	"time"
)

// Fact is one long-term memory hit returned for a query.
type Fact struct {
	// ID identifies the stored document.
	ID string

	// Content is the stored text.
	Content string

	// Score is the retrieval similarity, higher is closer.
	Score float32

	// StoredAt is when the fact was persisted.
	StoredAt time.Time
}

// LongTerm is the durable per-tenant knowledge store. The proxy treats
// it as an opaque retrieve/store capability keyed by base tenant.
type LongTerm interface {
	// Store persists one document for a tenant.
	Store(ctx context.Context, base, id, content string, meta map[string]string) error

	// Retrieve returns up to limit facts relevant to the query.
	Retrieve(ctx context.Context, base, query string, limit int) ([]Fact, error)

	// Forget removes a tenant's stored documents.
	Forget(ctx context.Context, base string) error
}

// SessionRetriever is the ephemeral side of the merge: the session
// manager's prompt-context assembly, present only for session-scoped
// tenant keys.
type SessionRetriever interface {
	Retrieve(ctx context.Context, base, session, query string) (string, error)
}
