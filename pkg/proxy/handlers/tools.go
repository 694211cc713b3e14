package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cerebro-ai/cerebro/pkg/proxy"
	"cerebro-ai/cerebro/pkg/proxy/types"
	"cerebro-ai/cerebro/pkg/tenant"
	"cerebro-ai/cerebro/pkg/tools"
)

// ToolsHandler manages the per-tenant tool registry over HTTP:
//
//	POST   /v1/{tenant}/tools  register or update tools
//	GET    /v1/{tenant}/tools  list registered tools
//	DELETE /v1/{tenant}/tools  unregister tools (all when body omitted)
//
// Registration always targets the base tenant; a session-scoped key
// registers for its base tenant like any other.
type ToolsHandler struct {
	registry *tools.Registry
	logger   *slog.Logger
}

// NewToolsHandler creates the tool registry handler.
func NewToolsHandler(registry *tools.Registry) *ToolsHandler {
	return &ToolsHandler{
		registry: registry,
		logger:   slog.Default().With("component", "handlers.tools"),
	}
}

// registerRequest is the POST body.
type registerRequest struct {
	Tools []tools.Registered `json:"tools"`
}

// unregisterRequest is the optional DELETE body.
type unregisterRequest struct {
	Names []string `json:"names"`
}

// listResponse is the GET body.
type listResponse struct {
	Tools []tools.Registered `json:"tools"`
}

// ServeHTTP implements http.Handler.
func (h *ToolsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, err := tenant.Parse(r.PathValue("tenant"))
	if err != nil {
		h.writeError(w, types.NewInvalidRequestError(err.Error(), "tenant", "invalid_tenant"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.register(w, r, key)
	case http.MethodGet:
		h.list(w, key)
	case http.MethodDelete:
		h.unregister(w, r, key)
	default:
		h.writeError(w, types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed", r.Method),
			"method",
			"method_not_allowed",
		))
	}
}

func (h *ToolsHandler) register(w http.ResponseWriter, r *http.Request, key tenant.Key) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, types.NewInvalidRequestError(
			fmt.Sprintf("Invalid request body: %v", err), "", "invalid_json",
		))
		return
	}

	for i, reg := range req.Tools {
		if reg.Definition.Function.Name == "" {
			h.writeError(w, types.NewInvalidRequestError(
				fmt.Sprintf("tools[%d] is missing a function name", i),
				"tools", "invalid_tool_definition",
			))
			return
		}
	}

	h.registry.Register(key.Base, req.Tools)

	h.logger.Info("tools registered",
		"tenant", key.Base,
		"count", len(req.Tools),
	)

	_ = proxy.WriteJSONResponse(w, http.StatusOK, listResponse{
		Tools: h.registry.List(key.Base),
	})
}

func (h *ToolsHandler) list(w http.ResponseWriter, key tenant.Key) {
	_ = proxy.WriteJSONResponse(w, http.StatusOK, listResponse{
		Tools: h.registry.List(key.Base),
	})
}

func (h *ToolsHandler) unregister(w http.ResponseWriter, r *http.Request, key tenant.Key) {
	var req unregisterRequest
	// An empty or absent body unregisters everything.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, types.NewInvalidRequestError(
			fmt.Sprintf("Invalid request body: %v", err), "", "invalid_json",
		))
		return
	}

	h.registry.Unregister(key.Base, req.Names)

	h.logger.Info("tools unregistered",
		"tenant", key.Base,
		"names", req.Names,
	)

	_ = proxy.WriteJSONResponse(w, http.StatusOK, listResponse{
		Tools: h.registry.List(key.Base),
	})
}

func (h *ToolsHandler) writeError(w http.ResponseWriter, errResp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, errResp); err != nil {
		h.logger.Error("failed to write error response", "error", err)
	}
}
