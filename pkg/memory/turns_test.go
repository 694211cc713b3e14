package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// flakyLongTerm fails the first failTimes stores, then succeeds.
type flakyLongTerm struct {
	mu        sync.Mutex
	failTimes int
	attempts  int
	stored    []string
	tenants   []string
}

func (f *flakyLongTerm) Store(ctx context.Context, base, id, content string, meta map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failTimes {
		return errors.New("store unavailable")
	}
	f.stored = append(f.stored, content)
	f.tenants = append(f.tenants, base)
	return nil
}

func (f *flakyLongTerm) Retrieve(ctx context.Context, base, query string, limit int) ([]Fact, error) {
	return nil, nil
}

func (f *flakyLongTerm) Forget(ctx context.Context, base string) error { return nil }

func TestTurnWriterStoresExchange(t *testing.T) {
	store := &flakyLongTerm{}
	w := NewTurnWriter(store, TurnWriterConfig{})

	w.write("acme", "what is the capital of Norway", "Oslo")

	if len(store.stored) != 1 {
		t.Fatalf("stored = %d, want 1", len(store.stored))
	}
	got := store.stored[0]
	if !strings.Contains(got, "capital of Norway") || !strings.Contains(got, "Oslo") {
		t.Errorf("turn content incomplete: %q", got)
	}
	if store.tenants[0] != "acme" {
		t.Errorf("tenant = %q, want acme", store.tenants[0])
	}
}

func TestTurnWriterRetriesThenSucceeds(t *testing.T) {
	store := &flakyLongTerm{failTimes: 2}
	w := NewTurnWriter(store, TurnWriterConfig{
		MaxRetries: 3,
		Backoff:    time.Millisecond,
	})

	w.write("acme", "hello", "hi")

	if len(store.stored) != 1 {
		t.Fatalf("stored = %d, want 1 after retries", len(store.stored))
	}
	if store.attempts != 3 {
		t.Errorf("attempts = %d, want 3", store.attempts)
	}
}

func TestTurnWriterDropsAfterRetriesExhausted(t *testing.T) {
	store := &flakyLongTerm{failTimes: 1 << 20}
	w := NewTurnWriter(store, TurnWriterConfig{
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})

	w.write("acme", "hello", "hi")

	if len(store.stored) != 0 {
		t.Fatalf("stored = %d, want 0 (turn dropped)", len(store.stored))
	}
	if store.attempts != 3 {
		t.Errorf("attempts = %d, want 3 (initial plus 2 retries)", store.attempts)
	}
}

func TestTurnWriterSkipsEmptyExchange(t *testing.T) {
	store := &flakyLongTerm{}
	w := NewTurnWriter(store, TurnWriterConfig{})

	w.Write("acme", "", "")
	time.Sleep(20 * time.Millisecond)

	if store.attempts != 0 {
		t.Errorf("attempts = %d, want 0 for empty exchange", store.attempts)
	}
}

func TestTurnWriterNilSafe(t *testing.T) {
	var w *TurnWriter
	w.Write("acme", "user", "assistant")
}

func TestFormatTurn(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		assistant string
		want      string
	}{
		{"both", "hi", "hello", "User: hi\nAssistant: hello"},
		{"user only", "hi", "", "User: hi"},
		{"assistant only", "", "hello", "Assistant: hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTurn(tt.user, tt.assistant); got != tt.want {
				t.Errorf("formatTurn = %q, want %q", got, tt.want)
			}
		})
	}
}
