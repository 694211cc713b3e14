package longterm

import (
	"context"
	"strings"
	"testing"

	chromem "github.com/philippgille/chromem-go"
)

// testEmbedder maps text to a fixed-dimension vector from character
// histograms, deterministic and offline.
func testEmbedder(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 32)
	for i, r := range strings.ToLower(text) {
		vec[(int(r)+i)%32]++
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		inv := 1 / sqrt32(norm)
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func sqrt32(x float32) float32 {
	z := x
	for i := 0; i < 20; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{
		DataDir:       t.TempDir(),
		EmbeddingFunc: chromem.EmbeddingFunc(testEmbedder),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStoreAndRetrieve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Store(ctx, "acme", "doc1", "the office is in Oslo", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := store.Store(ctx, "acme", "doc2", "billing runs monthly", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	facts, err := store.Retrieve(ctx, "acme", "where is the office", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("facts = %d, want 2", len(facts))
	}
	for _, f := range facts {
		if f.Content == "" || f.ID == "" {
			t.Errorf("incomplete fact: %+v", f)
		}
		if f.StoredAt.IsZero() {
			t.Errorf("stored_at not set on %s", f.ID)
		}
	}
}

func TestRetrieveIsolatedPerTenant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Store(ctx, "acme", "doc1", "acme secret", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	facts, err := store.Retrieve(ctx, "globex", "secret", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(facts) != 0 {
		t.Errorf("cross-tenant leak: %+v", facts)
	}
}

func TestRetrieveLimitClamped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Store(ctx, "acme", "doc1", "only document", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	facts, err := store.Retrieve(ctx, "acme", "document", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(facts) != 1 {
		t.Errorf("facts = %d, want 1", len(facts))
	}
}

func TestForget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Store(ctx, "acme", "doc1", "to be deleted", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := store.Forget(ctx, "acme"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	facts, err := store.Retrieve(ctx, "acme", "deleted", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(facts) != 0 {
		t.Errorf("facts survived Forget: %+v", facts)
	}
}
