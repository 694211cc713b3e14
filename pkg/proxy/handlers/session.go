package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"cerebro-ai/cerebro/pkg/memory/session"
	"cerebro-ai/cerebro/pkg/proxy"
	"cerebro-ai/cerebro/pkg/proxy/types"
	"cerebro-ai/cerebro/pkg/telemetry/metrics"
	"cerebro-ai/cerebro/pkg/tenant"
)

// SessionHandler serves DELETE /v1/{tenant}/session: explicit session
// end. The tenant key must be session-scoped; ending triggers the
// end-of-session snapshot exactly once.
type SessionHandler struct {
	sessions *session.Manager
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewSessionHandler creates the session lifecycle handler.
func NewSessionHandler(sessions *session.Manager, collector *metrics.Collector) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		metrics:  collector,
		logger:   slog.Default().With("component", "handlers.session"),
	}
}

// endResponse is the DELETE body.
type endResponse struct {
	Ended   bool   `json:"ended"`
	Session string `json:"session"`
}

// ServeHTTP implements http.Handler.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.writeError(w, types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed. Use DELETE instead.", r.Method),
			"method",
			"method_not_allowed",
		))
		return
	}

	key, err := tenant.Parse(r.PathValue("tenant"))
	if err != nil {
		h.writeError(w, types.NewInvalidRequestError(err.Error(), "tenant", "invalid_tenant"))
		return
	}

	if !key.SessionScoped() {
		h.writeError(w, types.NewInvalidRequestError(
			"session end requires a session-scoped tenant key",
			"tenant",
			"not_session_scoped",
		))
		return
	}

	ended := h.sessions.End(key.Base, key.Session)
	if !ended {
		h.writeError(w, types.NewNotFoundError(
			fmt.Sprintf("No live session %q for tenant %q", key.Session, key.Base),
			"session_not_found",
		))
		return
	}

	h.logger.Info("session ended",
		"tenant", key.Base,
		"session", key.Session,
	)
	// The manager's eviction hook records the end itself; only the
	// active-sessions gauge is refreshed here.
	if h.metrics != nil {
		h.metrics.SetActiveSessions(h.sessions.Count())
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, endResponse{
		Ended:   true,
		Session: key.Session,
	})
}

func (h *SessionHandler) writeError(w http.ResponseWriter, errResp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, errResp); err != nil {
		h.logger.Error("failed to write error response", "error", err)
	}
}
