package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"cerebro-ai/cerebro/pkg/memory"
	"cerebro-ai/cerebro/pkg/memory/session"
	"cerebro-ai/cerebro/pkg/processing/tokens"
	"cerebro-ai/cerebro/pkg/providers"
	"cerebro-ai/cerebro/pkg/proxy"
	"cerebro-ai/cerebro/pkg/proxy/middleware"
	"cerebro-ai/cerebro/pkg/proxy/types"
	"cerebro-ai/cerebro/pkg/stream"
	"cerebro-ai/cerebro/pkg/telemetry/metrics"
	"cerebro-ai/cerebro/pkg/tenant"
	"cerebro-ai/cerebro/pkg/tools"
)

// UsageHook observes completed turns for accounting. Invoked after
// every turn, streaming and non-streaming alike. A panicking hook is
// logged and never surfaces to the client.
type UsageHook func(tenant string, totalTokens int, duration time.Duration)

// ChatHandler serves POST /v1/{tenant}/chat/completions, both streaming
// and non-streaming.
type ChatHandler struct {
	upstream     providers.Provider
	executor     *tools.Executor
	registry     *tools.Registry
	sessions     *session.Manager
	merger       *memory.Merger
	ingestor     proxy.Ingestor
	turns        *memory.TurnWriter
	metrics      *metrics.Collector
	usageHook    UsageHook
	estimator    *tokens.Estimator
	streamConfig stream.Config

	// defaultModel is used when the request omits a model.
	defaultModel string

	// maxUploadBytes caps one decoded inline file.
	maxUploadBytes int

	logger *slog.Logger
}

// ChatHandlerDeps carries the collaborators a ChatHandler needs.
type ChatHandlerDeps struct {
	Upstream providers.Provider
	Executor *tools.Executor
	Registry *tools.Registry
	Sessions *session.Manager
	Merger   *memory.Merger
	LongTerm memory.LongTerm

	// Ingestor receives uploaded files. Nil falls back to storing whole
	// files in LongTerm.
	Ingestor proxy.Ingestor

	// Turns persists completed exchanges to long-term memory. Nil falls
	// back to a writer over LongTerm with default retry bounds.
	Turns *memory.TurnWriter

	Metrics      *metrics.Collector
	UsageHook    UsageHook
	StreamConfig stream.Config
	DefaultModel string
	MaxUploadMB  int
}

// NewChatHandler creates the chat completion handler.
func NewChatHandler(deps ChatHandlerDeps) *ChatHandler {
	maxUpload := deps.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 20
	}
	ingestor := deps.Ingestor
	if ingestor == nil && deps.LongTerm != nil {
		ingestor = &longTermIngestor{store: deps.LongTerm}
	}
	turns := deps.Turns
	if turns == nil && deps.LongTerm != nil {
		turns = memory.NewTurnWriter(deps.LongTerm, memory.TurnWriterConfig{})
	}
	streamConfig := deps.StreamConfig
	if streamConfig.OnKeepAlive == nil && deps.Metrics != nil {
		streamConfig.OnKeepAlive = deps.Metrics.RecordKeepAlive
	}
	return &ChatHandler{
		upstream:       deps.Upstream,
		executor:       deps.Executor,
		registry:       deps.Registry,
		sessions:       deps.Sessions,
		merger:         deps.Merger,
		ingestor:       ingestor,
		turns:          turns,
		metrics:        deps.Metrics,
		usageHook:      deps.UsageHook,
		estimator:      &tokens.Estimator{},
		streamConfig:   streamConfig,
		defaultModel:   deps.DefaultModel,
		maxUploadBytes: maxUpload << 20,
		logger:         slog.Default().With("component", "handlers.chat"),
	}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	startTime := time.Now()

	if r.Method != http.MethodPost {
		errResp := types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed. Use POST instead.", r.Method),
			"method",
			"method_not_allowed",
		)
		h.writeError(ctx, w, errResp)
		return
	}

	key, err := tenant.Parse(r.PathValue("tenant"))
	if err != nil {
		h.writeError(ctx, w, types.NewInvalidRequestError(err.Error(), "tenant", "invalid_tenant"))
		return
	}

	chatReq, err := proxy.ParseChatCompletionRequest(r)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to parse request",
			"request_id", requestID,
			"tenant", key.String(),
			"error", err,
		)
		h.writeError(ctx, w, proxy.HandleError(err))
		return
	}

	// Inline file ingestion is a base-tenant operation. Session-scoped
	// keys get a structural rejection before any decoding happens.
	messages := chatReq.Messages
	if proxy.HasFileParts(messages) {
		if key.SessionScoped() {
			rejection := &proxy.FileUploadRejectedError{
				Tenant: key.String(),
				Reason: "file ingestion requires a base tenant key",
			}
			h.writeError(ctx, w, rejection.ToErrorResponse())
			return
		}

		var files []proxy.UploadedFile
		messages, files = proxy.SplitFiles(messages, h.maxUploadBytes)
		h.ingestFiles(key.Base, files)
	}

	model := chatReq.Model
	if model == "" {
		model = h.defaultModel
	}

	// Memory context rides in as a leading system message.
	query := latestUserText(messages)
	if block := h.merger.Context(ctx, key, query); block != "" {
		messages = append([]types.Message{{Role: "system", Content: block}}, messages...)
	}

	providerReq := &providers.CompletionRequest{
		Model:            model,
		Messages:         messages,
		Tools:            h.registry.MergeDefinitions(key.Base, chatReq.Tools),
		ToolChoice:       chatReq.ToolChoice,
		Temperature:      chatReq.Temperature,
		TopP:             chatReq.TopP,
		MaxTokens:        chatReq.MaxTokens,
		Stop:             chatReq.Stop,
		PresencePenalty:  chatReq.PresencePenalty,
		FrequencyPenalty: chatReq.FrequencyPenalty,
	}

	ctrl := stream.NewController(h.upstream, h.executor, key, providerReq, h.streamConfig)

	h.logger.InfoContext(ctx, "processing chat completion",
		"request_id", requestID,
		"tenant", key.String(),
		"model", model,
		"messages", len(messages),
		"stream", chatReq.Stream,
		"completion_id", ctrl.ID(),
	)

	if chatReq.Stream {
		h.serveStream(ctx, w, key, chatReq, ctrl, startTime)
		return
	}
	h.serveSync(ctx, w, key, chatReq, ctrl, startTime)
}

// serveStream runs the controller against an SSE stream.
func (h *ChatHandler) serveStream(ctx context.Context, w http.ResponseWriter, key tenant.Key, chatReq *types.ChatCompletionRequest, ctrl *stream.Controller, startTime time.Time) {
	proxy.SetSSEHeaders(w)
	writer := proxy.NewStreamWriter(w)

	err := ctrl.Run(ctx, writer)

	status := "success"
	if err != nil {
		status = "error"
		h.logger.WarnContext(ctx, "stream ended early",
			"completion_id", ctrl.ID(),
			"tenant", key.String(),
			"error", err,
		)
	}

	h.finishRequest(key, chatReq, ctrl, "stream", status, startTime)
}

// serveSync runs the controller to completion and writes one JSON body.
func (h *ChatHandler) serveSync(ctx context.Context, w http.ResponseWriter, key tenant.Key, chatReq *types.ChatCompletionRequest, ctrl *stream.Controller, startTime time.Time) {
	resp, err := ctrl.Complete(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "completion failed",
			"completion_id", ctrl.ID(),
			"tenant", key.String(),
			"error", err,
		)
		h.writeError(ctx, w, proxy.HandleError(err))
		h.finishRequest(key, chatReq, ctrl, "sync", "error", startTime)
		return
	}

	// Upstreams that skip token accounting get a character-ratio estimate.
	if resp.Usage.TotalTokens == 0 {
		resp.Usage = h.estimator.EstimateUsage(
			ctrl.Messages(), chatReq.Tools, ctrl.FinalContent(), resp.Model,
		)
	}

	if err := proxy.WriteJSONResponse(w, http.StatusOK, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}

	h.finishRequest(key, chatReq, ctrl, "sync", "success", startTime)
}

// finishRequest records metrics and feeds the exchange into memory.
// All memory writes happen off the request path: the turn goes to
// long-term storage for every successful request, and session-scoped
// requests additionally feed the session tiers.
func (h *ChatHandler) finishRequest(key tenant.Key, chatReq *types.ChatCompletionRequest, ctrl *stream.Controller, mode, status string, startTime time.Time) {
	usage := ctrl.Usage()
	if usage.TotalTokens == 0 {
		// Upstreams that skip token accounting get a character-ratio
		// estimate, so accounting sees real numbers on both paths.
		model := chatReq.Model
		if model == "" {
			model = h.defaultModel
		}
		usage = h.estimator.EstimateUsage(ctrl.Messages(), chatReq.Tools, ctrl.FinalContent(), model)
	}
	duration := time.Since(startTime)
	if h.metrics != nil {
		h.metrics.RecordRequest(key.Base, mode, status, duration)
		h.metrics.RecordTokens(key.Base, usage.PromptTokens, usage.CompletionTokens)
		h.metrics.RecordStreamIterations(key.Base, ctrl.Iterations())
	}
	h.callUsageHook(key.Base, usage.TotalTokens, duration)

	if status != "success" {
		return
	}

	userText := latestUserText(chatReq.Messages)
	assistantText := ctrl.FinalContent()
	h.turns.Write(key.Base, userText, assistantText)

	if h.sessions == nil || !key.SessionScoped() {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		now := time.Now()
		if userText != "" {
			h.sessions.Append(ctx, key.Base, key.Session, session.StoredMessage{
				Role: "user", Content: userText, At: now,
			})
		}
		if assistantText != "" {
			h.sessions.Append(ctx, key.Base, key.Session, session.StoredMessage{
				Role: "assistant", Content: assistantText, At: now,
			})
		}
		if h.metrics != nil {
			h.metrics.SetActiveSessions(h.sessions.Count())
		}
	}()
}

// callUsageHook invokes the optional accounting callback. Hook failures
// are logged only.
func (h *ChatHandler) callUsageHook(base string, totalTokens int, duration time.Duration) {
	if h.usageHook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("usage hook panicked", "tenant", base, "panic", r)
		}
	}()
	h.usageHook(base, totalTokens, duration)
}

// ingestFiles forwards decoded uploads to the ingestor. Ingestion is
// asynchronous; a failed store loses the file but never the request.
func (h *ChatHandler) ingestFiles(base string, files []proxy.UploadedFile) {
	if h.ingestor == nil || len(files) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		for _, f := range files {
			if err := h.ingestor.Ingest(ctx, base, f); err != nil {
				h.logger.Error("file ingestion failed",
					"tenant", base,
					"file", f.Name,
					"error", err,
				)
			}
		}
	}()
}

// longTermIngestor stores whole files as long-term documents keyed by a
// generated id, with filename and mime recorded as metadata.
type longTermIngestor struct {
	store memory.LongTerm
}

func (i *longTermIngestor) Ingest(ctx context.Context, base string, file proxy.UploadedFile) error {
	id := "file-" + uuid.NewString()
	meta := map[string]string{"filename": file.Name, "mime": file.Mime}
	return i.store.Store(ctx, base, id, string(file.Data), meta)
}

func (h *ChatHandler) writeError(ctx context.Context, w http.ResponseWriter, errResp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, errResp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// latestUserText returns the text of the most recent user message.
func latestUserText(msgs []types.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Text()
		}
	}
	return ""
}
