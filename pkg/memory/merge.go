package memory

import (
	"context"
	"log/slog"
	"strings"

	"cerebro-ai/cerebro/pkg/tenant"
)

// MergerConfig bounds the merged context block.
type MergerConfig struct {
	// LongTermLimit is the maximum number of long-term facts included.
	// Default: 5.
	LongTermLimit int

	// MaxContextChars caps the merged block size. Default: 8000.
	MaxContextChars int
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *MergerConfig) ApplyDefaults() {
	if c.LongTermLimit <= 0 {
		c.LongTermLimit = 5
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 8000
	}
}

// Merger combines long-term tenant memory with ephemeral session
// context into one prompt block. Session context leads for recency;
// long-term memory supplies durable facts. Either source may be absent
// and either may fail; the merge degrades to whatever remains.
type Merger struct {
	longTerm LongTerm
	session  SessionRetriever
	config   MergerConfig
	logger   *slog.Logger
}

// NewMerger creates a merge layer. Either store may be nil.
func NewMerger(longTerm LongTerm, session SessionRetriever, config MergerConfig) *Merger {
	config.ApplyDefaults()
	return &Merger{
		longTerm: longTerm,
		session:  session,
		config:   config,
		logger:   slog.Default().With("component", "memory.merge"),
	}
}

// Context assembles the merged memory block for a request. The query is
// typically the latest user message. An empty return means no memory
// context is available and the prompt should go out unmodified.
func (m *Merger) Context(ctx context.Context, key tenant.Key, query string) string {
	var sections []string

	if m.session != nil && key.SessionScoped() {
		text, err := m.session.Retrieve(ctx, key.Base, key.Session, query)
		if err != nil {
			m.logger.Warn("session retrieval failed, continuing without it",
				"tenant", key.String(), "error", err)
		} else if text != "" {
			sections = append(sections, "Recent conversation context:\n"+text)
		}
	}

	if m.longTerm != nil {
		facts, err := m.longTerm.Retrieve(ctx, key.Base, query, m.config.LongTermLimit)
		if err != nil {
			m.logger.Warn("long-term retrieval failed, continuing without it",
				"tenant", key.Base, "error", err)
		} else if len(facts) > 0 {
			var b strings.Builder
			b.WriteString("Known facts about this tenant:")
			for _, f := range facts {
				b.WriteString("\n- ")
				b.WriteString(f.Content)
			}
			sections = append(sections, b.String())
		}
	}

	if len(sections) == 0 {
		return ""
	}

	merged := strings.Join(sections, "\n\n")
	if len(merged) > m.config.MaxContextChars {
		merged = merged[:m.config.MaxContextChars]
	}
	return merged
}
