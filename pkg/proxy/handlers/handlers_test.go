package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cerebro-ai/cerebro/pkg/memory"
	"cerebro-ai/cerebro/pkg/memory/session"
	"cerebro-ai/cerebro/pkg/providers"
	"cerebro-ai/cerebro/pkg/proxy"
	"cerebro-ai/cerebro/pkg/proxy/types"
	"cerebro-ai/cerebro/pkg/stream"
	"cerebro-ai/cerebro/pkg/telemetry/metrics"
	"cerebro-ai/cerebro/pkg/tools"
)

// fakeProvider answers every call with a fixed completion and records
// the requests it saw.
type fakeProvider struct {
	content  string
	err      error
	requests []*providers.CompletionRequest
}

func (f *fakeProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &providers.CompletionResponse{
		ID:           "upstream-1",
		Model:        req.Model,
		Content:      f.content,
		FinishReason: "stop",
	}, nil
}

func (f *fakeProvider) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	f.requests = append(f.requests, req)
	ch := make(chan *providers.StreamChunk, 4)
	go func() {
		defer close(ch)
		if f.err != nil {
			ch <- &providers.StreamChunk{Err: f.err}
			return
		}
		ch <- &providers.StreamChunk{Delta: f.content}
		ch <- &providers.StreamChunk{FinishReason: "stop"}
	}()
	return ch, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Close() error { return nil }

func newTestServer(t *testing.T, provider providers.Provider, sessions *session.Manager) (*http.ServeMux, *tools.Registry) {
	t.Helper()

	registry := tools.NewRegistry()
	executor := tools.NewExecutor(registry, nil, tools.ExecutorConfig{})

	var retriever memory.SessionRetriever
	if sessions != nil {
		retriever = sessions
	}
	merger := memory.NewMerger(nil, retriever, memory.MergerConfig{})

	chat := NewChatHandler(ChatHandlerDeps{
		Upstream:     provider,
		Executor:     executor,
		Registry:     registry,
		Sessions:     sessions,
		Merger:       merger,
		Metrics:      metrics.NewCollector(),
		StreamConfig: stream.Config{MaxIterations: 3, KeepAliveInterval: time.Second},
		DefaultModel: "gpt-4o",
	})

	mux := http.NewServeMux()
	mux.Handle("/v1/{tenant}/chat/completions", chat)
	mux.Handle("/v1/{tenant}/tools", NewToolsHandler(registry))
	mux.Handle("/v1/{tenant}/session", NewSessionHandler(sessions, nil))
	return mux, registry
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestChatHandler_SyncCompletion(t *testing.T) {
	provider := &fakeProvider{content: "Hello from upstream."}
	mux, _ := newTestServer(t, provider, nil)

	rec := postJSON(t, mux, "/v1/acme/chat/completions", types.ChatCompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "Hi"}},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices = %d, want 1", len(resp.Choices))
	}
	if got := resp.Choices[0].Message.Content; got != "Hello from upstream." {
		t.Errorf("content = %q", got)
	}
	if resp.Usage.TotalTokens == 0 {
		t.Error("usage not estimated when upstream omitted accounting")
	}
	if provider.requests[0].Model != "gpt-4o" {
		t.Errorf("model = %q, want configured default", provider.requests[0].Model)
	}
}

func TestChatHandler_Streaming(t *testing.T) {
	provider := &fakeProvider{content: "streamed text"}
	mux, _ := newTestServer(t, provider, nil)

	rec := postJSON(t, mux, "/v1/acme/chat/completions", types.ChatCompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "Hi"}},
		Stream:   true,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "streamed text") {
		t.Error("stream body missing content delta")
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream does not end with DONE, tail: %q", body[max(0, len(body)-60):])
	}
}

func TestChatHandler_InvalidTenant(t *testing.T) {
	mux, _ := newTestServer(t, &fakeProvider{content: "x"}, nil)

	rec := postJSON(t, mux, "/v1/bad%20tenant!/chat/completions", types.ChatCompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "Hi"}},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatHandler_FileUploadRejectedForSessionKey(t *testing.T) {
	mux, _ := newTestServer(t, &fakeProvider{content: "x"}, nil)

	rec := postJSON(t, mux, "/v1/acme:sess-1/chat/completions", types.ChatCompletionRequest{
		Messages: []types.Message{{
			Role: "user",
			Content: []interface{}{
				map[string]interface{}{"type": "text", "text": "summarize this"},
				map[string]interface{}{"type": "file_data", "file_data": map[string]interface{}{
					"name": "report.txt", "mime": "text/plain", "data": "aGVsbG8=",
				}},
			},
		}},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "upload_rejected") {
		t.Errorf("body = %s, want upload_rejected code", rec.Body.String())
	}
}

func TestChatHandler_SessionContextMerged(t *testing.T) {
	sessions := session.NewManager(session.Config{}, nil, nil)
	sessions.Append(context.Background(), "acme", "sess-1", session.StoredMessage{
		Role: "user", Content: "my favourite colour is teal", At: time.Now(),
	})

	provider := &fakeProvider{content: "noted"}
	mux, _ := newTestServer(t, provider, sessions)

	rec := postJSON(t, mux, "/v1/acme:sess-1/chat/completions", types.ChatCompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "what colour do I like?"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	first := provider.requests[0].Messages[0]
	if first.Role != "system" {
		t.Fatalf("first message role = %q, want injected system context", first.Role)
	}
	if !strings.Contains(first.Text(), "teal") {
		t.Errorf("system context = %q, want session recall", first.Text())
	}
}

func TestToolsHandler_RegisterListUnregister(t *testing.T) {
	mux, registry := newTestServer(t, &fakeProvider{content: "x"}, nil)

	reg := registerRequest{Tools: []tools.Registered{{
		Definition: types.Tool{
			Type: "function",
			Function: types.FunctionDefinition{
				Name:        "get_weather",
				Description: "Current weather for a city",
			},
		},
		Endpoint: "https://tools.internal/weather",
	}}}

	rec := postJSON(t, mux, "/v1/acme/tools", reg)
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(registry.List("acme")) != 1 {
		t.Fatalf("registry count = %d, want 1", len(registry.List("acme")))
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/acme/tools", nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, req)
	if getRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", getRec.Code)
	}
	var listed listResponse
	if err := json.Unmarshal(getRec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Tools) != 1 || listed.Tools[0].Definition.Function.Name != "get_weather" {
		t.Errorf("listed tools = %+v", listed.Tools)
	}

	del := httptest.NewRequest(http.MethodDelete, "/v1/acme/tools", nil)
	delRec := httptest.NewRecorder()
	mux.ServeHTTP(delRec, del)
	if delRec.Code != http.StatusOK {
		t.Fatalf("unregister status = %d", delRec.Code)
	}
	if len(registry.List("acme")) != 0 {
		t.Errorf("registry count after delete = %d, want 0", len(registry.List("acme")))
	}
}

func TestToolsHandler_RejectsUnnamedTool(t *testing.T) {
	mux, _ := newTestServer(t, &fakeProvider{content: "x"}, nil)

	rec := postJSON(t, mux, "/v1/acme/tools", registerRequest{
		Tools: []tools.Registered{{Definition: types.Tool{Type: "function"}}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSessionHandler_EndThenNotFound(t *testing.T) {
	sessions := session.NewManager(session.Config{}, nil, nil)
	sessions.GetOrCreate("acme", "sess-9")

	mux, _ := newTestServer(t, &fakeProvider{content: "x"}, sessions)

	req := httptest.NewRequest(http.MethodDelete, "/v1/acme:sess-9/session", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d, body = %s", rec.Code, rec.Body.String())
	}

	again := httptest.NewRequest(http.MethodDelete, "/v1/acme:sess-9/session", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, again)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second end status = %d, want 404", rec.Code)
	}
}

func TestSessionHandler_RequiresSessionScope(t *testing.T) {
	sessions := session.NewManager(session.Config{}, nil, nil)
	mux, _ := newTestServer(t, &fakeProvider{content: "x"}, sessions)

	req := httptest.NewRequest(http.MethodDelete, "/v1/acme/session", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

type fakeIngestor struct {
	got chan proxy.UploadedFile
}

func (f *fakeIngestor) Ingest(ctx context.Context, base string, file proxy.UploadedFile) error {
	f.got <- file
	return nil
}

func TestChatHandler_IngestorReceivesFiles(t *testing.T) {
	provider := &fakeProvider{content: "done"}
	ingestor := &fakeIngestor{got: make(chan proxy.UploadedFile, 1)}

	chat := NewChatHandler(ChatHandlerDeps{
		Upstream:     provider,
		Executor:     tools.NewExecutor(tools.NewRegistry(), nil, tools.ExecutorConfig{}),
		Registry:     tools.NewRegistry(),
		Merger:       memory.NewMerger(nil, nil, memory.MergerConfig{}),
		Ingestor:     ingestor,
		StreamConfig: stream.Config{MaxIterations: 3, KeepAliveInterval: time.Second},
		DefaultModel: "gpt-4o",
	})
	mux := http.NewServeMux()
	mux.Handle("/v1/{tenant}/chat/completions", chat)

	body := `{
		"messages": [{"role": "user", "content": [
			{"type": "text", "text": "take this"},
			{"type": "file_data", "file_data": {"name": "notes.txt", "mime": "text/plain", "data": "aGVsbG8="}}
		]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/acme/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	select {
	case file := <-ingestor.got:
		if file.Name != "notes.txt" || string(file.Data) != "hello" {
			t.Errorf("ingested file = %+v", file)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ingestor never received the file")
	}
}

func TestChatHandler_UsageHook(t *testing.T) {
	provider := &fakeProvider{content: "pong"}

	type call struct {
		tenant string
		tokens int
	}
	calls := make(chan call, 1)

	chat := NewChatHandler(ChatHandlerDeps{
		Upstream:     provider,
		Executor:     tools.NewExecutor(tools.NewRegistry(), nil, tools.ExecutorConfig{}),
		Registry:     tools.NewRegistry(),
		Merger:       memory.NewMerger(nil, nil, memory.MergerConfig{}),
		StreamConfig: stream.Config{MaxIterations: 3, KeepAliveInterval: time.Second},
		DefaultModel: "gpt-4o",
		UsageHook: func(tenant string, totalTokens int, duration time.Duration) {
			calls <- call{tenant: tenant, tokens: totalTokens}
		},
	})
	mux := http.NewServeMux()
	mux.Handle("/v1/{tenant}/chat/completions", chat)

	rec := postJSON(t, mux, "/v1/acme/chat/completions", types.ChatCompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "ping"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	select {
	case c := <-calls:
		if c.tenant != "acme" {
			t.Errorf("hook tenant = %q, want %q", c.tenant, "acme")
		}
	case <-time.After(time.Second):
		t.Fatal("usage hook never invoked")
	}
}

func TestChatHandler_UsageHookPanicContained(t *testing.T) {
	provider := &fakeProvider{content: "fine"}

	chat := NewChatHandler(ChatHandlerDeps{
		Upstream:     provider,
		Executor:     tools.NewExecutor(tools.NewRegistry(), nil, tools.ExecutorConfig{}),
		Registry:     tools.NewRegistry(),
		Merger:       memory.NewMerger(nil, nil, memory.MergerConfig{}),
		StreamConfig: stream.Config{MaxIterations: 3, KeepAliveInterval: time.Second},
		DefaultModel: "gpt-4o",
		UsageHook: func(tenant string, totalTokens int, duration time.Duration) {
			panic("accounting backend down")
		},
	})
	mux := http.NewServeMux()
	mux.Handle("/v1/{tenant}/chat/completions", chat)

	rec := postJSON(t, mux, "/v1/acme/chat/completions", types.ChatCompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "ping"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

// recordingStore is a memory.LongTerm that delivers stores on a channel.
type recordingStore struct {
	stored chan storedDoc
}

type storedDoc struct {
	base    string
	content string
	meta    map[string]string
}

func (r *recordingStore) Store(ctx context.Context, base, id, content string, meta map[string]string) error {
	r.stored <- storedDoc{base: base, content: content, meta: meta}
	return nil
}

func (r *recordingStore) Retrieve(ctx context.Context, base, query string, limit int) ([]memory.Fact, error) {
	return nil, nil
}

func (r *recordingStore) Forget(ctx context.Context, base string) error { return nil }

func TestChatHandler_TurnPersistedToLongTerm(t *testing.T) {
	provider := &fakeProvider{content: "the answer is 42"}
	store := &recordingStore{stored: make(chan storedDoc, 4)}

	chat := NewChatHandler(ChatHandlerDeps{
		Upstream:     provider,
		Executor:     tools.NewExecutor(tools.NewRegistry(), nil, tools.ExecutorConfig{}),
		Registry:     tools.NewRegistry(),
		Sessions:     session.NewManager(session.Config{}, nil, nil),
		Merger:       memory.NewMerger(nil, nil, memory.MergerConfig{}),
		LongTerm:     store,
		StreamConfig: stream.Config{MaxIterations: 3, KeepAliveInterval: time.Second},
		DefaultModel: "gpt-4o",
	})
	mux := http.NewServeMux()
	mux.Handle("/v1/{tenant}/chat/completions", chat)

	// Base-scoped and session-scoped requests both persist their turn.
	for _, path := range []string{
		"/v1/acme/chat/completions",
		"/v1/acme:sess-1/chat/completions",
	} {
		rec := postJSON(t, mux, path, types.ChatCompletionRequest{
			Messages: []types.Message{{Role: "user", Content: "what is the answer?"}},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body = %s", path, rec.Code, rec.Body.String())
		}

		select {
		case doc := <-store.stored:
			if doc.base != "acme" {
				t.Errorf("%s: stored for tenant %q, want acme", path, doc.base)
			}
			if !strings.Contains(doc.content, "what is the answer?") ||
				!strings.Contains(doc.content, "the answer is 42") {
				t.Errorf("%s: turn content incomplete: %q", path, doc.content)
			}
			if doc.meta["kind"] != "turn" {
				t.Errorf("%s: meta = %v, want kind=turn", path, doc.meta)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: turn never reached long-term memory", path)
		}
	}
}

func TestChatHandler_FailedRequestNotPersisted(t *testing.T) {
	provider := &fakeProvider{err: &providers.UpstreamError{
		Provider:   "fake",
		StatusCode: http.StatusInternalServerError,
		Message:    "upstream down",
	}}
	store := &recordingStore{stored: make(chan storedDoc, 1)}

	chat := NewChatHandler(ChatHandlerDeps{
		Upstream:     provider,
		Executor:     tools.NewExecutor(tools.NewRegistry(), nil, tools.ExecutorConfig{}),
		Registry:     tools.NewRegistry(),
		Merger:       memory.NewMerger(nil, nil, memory.MergerConfig{}),
		LongTerm:     store,
		StreamConfig: stream.Config{MaxIterations: 3, KeepAliveInterval: time.Second},
		DefaultModel: "gpt-4o",
	})
	mux := http.NewServeMux()
	mux.Handle("/v1/{tenant}/chat/completions", chat)

	postJSON(t, mux, "/v1/acme/chat/completions", types.ChatCompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hello"}},
	})

	select {
	case doc := <-store.stored:
		t.Fatalf("failed request persisted a turn: %q", doc.content)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChatHandler_StreamingUsageEstimated(t *testing.T) {
	// The fake upstream never reports token usage, so the accounting
	// hook must receive an estimate rather than zero.
	provider := &fakeProvider{content: "streamed answer with several words in it"}

	tokens := make(chan int, 1)
	chat := NewChatHandler(ChatHandlerDeps{
		Upstream:     provider,
		Executor:     tools.NewExecutor(tools.NewRegistry(), nil, tools.ExecutorConfig{}),
		Registry:     tools.NewRegistry(),
		Merger:       memory.NewMerger(nil, nil, memory.MergerConfig{}),
		StreamConfig: stream.Config{MaxIterations: 3, KeepAliveInterval: time.Second},
		DefaultModel: "gpt-4o",
		UsageHook: func(tenant string, totalTokens int, duration time.Duration) {
			tokens <- totalTokens
		},
	})
	mux := http.NewServeMux()
	mux.Handle("/v1/{tenant}/chat/completions", chat)

	rec := postJSON(t, mux, "/v1/acme/chat/completions", types.ChatCompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "tell me something"}},
		Stream:   true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	select {
	case total := <-tokens:
		if total == 0 {
			t.Error("streaming usage hook received zero tokens")
		}
	case <-time.After(time.Second):
		t.Fatal("usage hook never invoked")
	}
}
