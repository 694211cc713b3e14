package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TurnWriterConfig bounds the background turn persistence path.
type TurnWriterConfig struct {
	// MaxRetries is how many times a failed store is retried before the
	// turn is dropped. Default: 3.
	MaxRetries int

	// Backoff is the delay before the first retry; it doubles on each
	// subsequent attempt. Default: 500ms.
	Backoff time.Duration

	// Timeout bounds one turn's write including all retries.
	// Default: 30s.
	Timeout time.Duration
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *TurnWriterConfig) ApplyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// TurnWriter persists completed conversation turns to long-term memory
// off the request path. Writes are fire and forget: a failed store is
// retried with exponential backoff up to the configured limit, then the
// turn is dropped with an error log. The request that produced the turn
// is never delayed or failed by persistence.
type TurnWriter struct {
	store  LongTerm
	config TurnWriterConfig
	logger *slog.Logger
}

// NewTurnWriter creates a turn writer over the given store.
func NewTurnWriter(store LongTerm, config TurnWriterConfig) *TurnWriter {
	config.ApplyDefaults()
	return &TurnWriter{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "memory.turns"),
	}
}

// Write dispatches a background write of one user/assistant exchange
// for the base tenant. Empty exchanges are skipped. Safe to call on a
// nil writer.
func (w *TurnWriter) Write(base, userText, assistantText string) {
	if w == nil || w.store == nil {
		return
	}
	if userText == "" && assistantText == "" {
		return
	}
	go w.write(base, userText, assistantText)
}

func (w *TurnWriter) write(base, userText, assistantText string) {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.Timeout)
	defer cancel()

	id := "turn-" + uuid.NewString()
	content := formatTurn(userText, assistantText)
	meta := map[string]string{"kind": "turn"}

	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.config.Backoff << (attempt - 1)):
			case <-ctx.Done():
				w.logger.Error("turn dropped, write timed out",
					"tenant", base,
					"id", id,
					"attempts", attempt,
					"error", lastErr,
				)
				return
			}
		}
		if err := w.store.Store(ctx, base, id, content, meta); err != nil {
			lastErr = err
			continue
		}
		if attempt > 0 {
			w.logger.Info("turn stored after retry",
				"tenant", base,
				"id", id,
				"attempts", attempt+1,
			)
		}
		return
	}

	w.logger.Error("turn dropped after retries",
		"tenant", base,
		"id", id,
		"attempts", w.config.MaxRetries+1,
		"error", lastErr,
	)
}

func formatTurn(userText, assistantText string) string {
	switch {
	case userText == "":
		return "Assistant: " + assistantText
	case assistantText == "":
		return "User: " + userText
	default:
		return "User: " + userText + "\nAssistant: " + assistantText
	}
}
