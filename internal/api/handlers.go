package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/chatforge/commandd/internal/cmdstore"
	"github.com/chatforge/commandd/internal/compiler"
	"github.com/chatforge/commandd/internal/config"
	"github.com/chatforge/commandd/internal/notifier"
	"github.com/chatforge/commandd/pkg/types"
)

// selfCheckScope is a reserved server id used by the diagnostics endpoint.
// Real scopes are platform snowflake ids, so the underscore cannot collide.
const selfCheckScope = "_selfcheck"

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	pipeline *compiler.Pipeline
	store    cmdstore.CommandStore
	events   notifier.EventLog // nil when the notifier backend has no read side
	config   *config.Config
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance. events may be nil if the
// configured notifier delivers through a broker instead of a readable log.
func NewHandlers(pipeline *compiler.Pipeline, store cmdstore.CommandStore, events notifier.EventLog, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		pipeline: pipeline,
		store:    store,
		events:   events,
		config:   cfg,
		logger:   logger,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking the store.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.store.AdapterInfo(ctx)
	if err != nil {
		writeErrorResponse(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavail, "command store unhealthy", nil)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"store":  info,
	})
}

// --- Command Management ---

// CompileRequest is the request body carrying a raw command graph.
type CompileRequest struct {
	Graph json.RawMessage `json:"graph"`
}

// CreateCommand handles POST /api/v1/servers/{serverId}/commands
func (h *Handlers) CreateCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serverID := mux.Vars(r)["serverId"]

	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body", nil)
		return
	}
	if len(req.Graph) == 0 {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "graph is required", nil)
		return
	}

	result, err := h.pipeline.Create(ctx, serverID, req.Graph)
	if err != nil {
		h.respondCompileError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, result)
}

// UpdateCommand handles PUT /api/v1/servers/{serverId}/commands/{id}
func (h *Handlers) UpdateCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	serverID := vars["serverId"]
	id := vars["id"]

	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body", nil)
		return
	}
	if len(req.Graph) == 0 {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "graph is required", nil)
		return
	}

	result, err := h.pipeline.Update(ctx, serverID, id, req.Graph)
	if err != nil {
		h.respondCompileError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// GetCommand handles GET /api/v1/servers/{serverId}/commands/{id}
func (h *Handlers) GetCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	cmd, err := h.store.Get(ctx, vars["serverId"], vars["id"])
	if err != nil {
		if errors.Is(err, cmdstore.ErrCommandNotFound) {
			writeErrorResponse(w, r, http.StatusNotFound, ErrCodeNotFound, "command not found", nil)
			return
		}
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to get command", nil)
		return
	}

	h.respondJSON(w, http.StatusOK, cmd)
}

// ListCommands handles GET /api/v1/servers/{serverId}/commands
// Supports ?limit= and ?offset= for pagination.
func (h *Handlers) ListCommands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serverID := mux.Vars(r)["serverId"]

	opts, err := parseListOptions(r)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	commands, err := h.store.List(ctx, serverID, opts)
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to list commands", nil)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"commands": commands})
}

// parseListOptions reads limit/offset query parameters.
func parseListOptions(r *http.Request) (*cmdstore.ListOptions, error) {
	opts := &cmdstore.ListOptions{}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return nil, errors.New("limit must be a non-negative integer")
		}
		opts.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, errors.New("offset must be a non-negative integer")
		}
		opts.Offset = offset
	}

	return opts, nil
}

// DeleteCommand handles DELETE /api/v1/servers/{serverId}/commands/{id}
func (h *Handlers) DeleteCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	if err := h.pipeline.Delete(ctx, vars["serverId"], vars["id"]); err != nil {
		if errors.Is(err, cmdstore.ErrCommandNotFound) {
			writeErrorResponse(w, r, http.StatusNotFound, ErrCodeNotFound, "command not found", nil)
			return
		}
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to delete command", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Reload Event Log ---

// ReloadEvents handles GET /api/v1/servers/{serverId}/reload-events
// The bot worker polls this with ?since=<lastEventID>.
func (h *Handlers) ReloadEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serverID := mux.Vars(r)["serverId"]

	if h.events == nil {
		writeErrorResponse(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavail,
			"reload log is not readable with the configured notifier", nil)
		return
	}

	events, err := h.events.EventsSince(ctx, serverID, r.URL.Query().Get("since"))
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to read reload events", nil)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// --- Diagnostics ---

// StoreInfo handles GET /api/v1/store/info
func (h *Handlers) StoreInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.AdapterInfo(r.Context())
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to get store info", nil)
		return
	}
	h.respondJSON(w, http.StatusOK, info)
}

// StoreSelfCheck handles GET /api/v1/store/selfcheck
// It exercises a create/find/delete round trip in a reserved scope.
func (h *Handlers) StoreSelfCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	name := "selfcheck-" + start.UTC().Format("150405")
	cmd, err := h.store.Create(ctx, &cmdstore.CreateCommandRequest{
		ServerID: selfCheckScope,
		Name:     name,
		Graph:    selfCheckGraph(name),
	})
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "selfcheck failed: create", nil)
		return
	}

	if _, err := h.store.FindByName(ctx, selfCheckScope, name); err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "selfcheck failed: find", nil)
		return
	}

	if err := h.store.Delete(ctx, selfCheckScope, cmd.ID); err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "selfcheck failed: cleanup", nil)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

// selfCheckGraph builds the minimal valid graph the selfcheck stores.
func selfCheckGraph(name string) types.Graph {
	return types.Graph{
		Nodes: []types.Node{
			{ID: "entry", Type: types.NodeTypeInput, Data: types.NodeData{Label: name}},
		},
	}
}

// --- Helper Methods ---

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// respondCompileError maps pipeline errors onto the HTTP taxonomy:
// validation 400, conflict 409, anything else a generic 500.
func (h *Handlers) respondCompileError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *compiler.ValidationError
	switch {
	case errors.As(err, &verr):
		var details map[string]interface{}
		if len(verr.Reasons) > 0 {
			details = map[string]interface{}{"reasons": verr.Reasons}
		}
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeValidation, verr.Message, details)
	case errors.Is(err, cmdstore.ErrNameTaken):
		writeErrorResponse(w, r, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	case errors.Is(err, cmdstore.ErrCommandNotFound):
		writeErrorResponse(w, r, http.StatusNotFound, ErrCodeNotFound, "command not found", nil)
	default:
		h.logger.Error("compile failed", "error", err)
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to store command", nil)
	}
}
