package longterm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"cerebro-ai/cerebro/pkg/memory"
)

// Config configures the vector store.
type Config struct {
	// DataDir is where collections are persisted on disk.
	DataDir string

	// EmbeddingBaseURL is an OpenAI-compatible embeddings endpoint.
	// Ignored when EmbeddingFunc is set directly.
	EmbeddingBaseURL string

	// EmbeddingAPIKey authenticates against the embeddings endpoint.
	EmbeddingAPIKey string

	// EmbeddingModel is the model name sent to the endpoint.
	EmbeddingModel string

	// EmbeddingFunc overrides the endpoint-backed embedder, mainly for
	// tests.
	EmbeddingFunc chromem.EmbeddingFunc
}

// Store is the chromem-go backed memory.LongTerm implementation with
// per-tenant collections and disk persistence.
type Store struct {
	mu      sync.RWMutex
	db      *chromem.DB
	embedFn chromem.EmbeddingFunc
	logger  *slog.Logger
}

var _ memory.LongTerm = (*Store)(nil)

// New creates (or opens) the persistent store under dataDir/longterm/.
func New(config Config) (*Store, error) {
	dir := filepath.Join(config.DataDir, "longterm")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create longterm dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open longterm store: %w", err)
	}

	embedFn := config.EmbeddingFunc
	if embedFn == nil {
		embedFn = chromem.NewEmbeddingFuncOpenAICompat(
			config.EmbeddingBaseURL,
			config.EmbeddingAPIKey,
			config.EmbeddingModel,
			nil,
		)
	}

	return &Store{
		db:      db,
		embedFn: embedFn,
		logger:  slog.Default().With("component", "memory.longterm"),
	}, nil
}

func collectionName(base string) string {
	return "tenant_" + base
}

// collection returns (or creates) a tenant's collection. Caller holds
// at least the read lock.
func (s *Store) collection(base string) (*chromem.Collection, error) {
	name := collectionName(base)
	col := s.db.GetCollection(name, s.embedFn)
	if col != nil {
		return col, nil
	}
	col, err := s.db.CreateCollection(name, nil, s.embedFn)
	if err != nil {
		return nil, fmt.Errorf("create collection for tenant %q: %w", base, err)
	}
	return col, nil
}

// Store indexes one document for a tenant.
func (s *Store) Store(ctx context.Context, base, id, content string, meta map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.collection(base)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = map[string]string{}
	}
	if _, ok := meta["stored_at"]; !ok {
		meta["stored_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: meta,
	})
}

// Retrieve returns up to limit documents most similar to the query.
func (s *Store) Retrieve(ctx context.Context, base, query string, limit int) ([]memory.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.db.GetCollection(collectionName(base), s.embedFn)
	if col == nil {
		return nil, nil
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	// chromem occasionally rejects nResults at the document-count
	// boundary; step down until a query succeeds.
	var results []chromem.Result
	var err error
	for k := limit; k > 0; k-- {
		results, err = col.Query(ctx, query, k, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant %q: %w", base, err)
	}

	facts := make([]memory.Fact, 0, len(results))
	for _, r := range results {
		fact := memory.Fact{ID: r.ID, Content: r.Content, Score: r.Similarity}
		if ts, ok := r.Metadata["stored_at"]; ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				fact.StoredAt = parsed
			}
		}
		facts = append(facts, fact)
	}
	return facts, nil
}

// Forget removes a tenant's whole collection.
func (s *Store) Forget(ctx context.Context, base string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(collectionName(base)); err != nil {
		return fmt.Errorf("delete collection for tenant %q: %w", base, err)
	}
	s.logger.Info("tenant long-term memory deleted", "tenant", base)
	return nil
}
