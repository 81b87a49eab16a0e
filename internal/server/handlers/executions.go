package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wardd-org/wardd/internal/engine"
	"github.com/wardd-org/wardd/internal/server/requestctx"
	"github.com/wardd-org/wardd/internal/server/response"
)

// NewExecutionsHandler returns the handler for GET /executions.
func NewExecutionsHandler(mgr *engine.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"executions": mgr.List()})
	})
}

// NewExecutionItemHandler returns the handler for GET /executions/{id} and
// POST /executions/{id}:kill. Status reads are pure: polling the same
// terminal execution twice yields identical payloads.
func NewExecutionItemHandler(mgr *engine.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/executions/")
		if id, ok := strings.CutSuffix(rest, ":kill"); ok {
			if r.Method != http.MethodPost {
				response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
				return
			}
			handleKill(mgr, w, r, id)
			return
		}
		if r.Method != http.MethodGet {
			response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
			return
		}
		exec, err := mgr.Snapshot(rest)
		if err != nil {
			writeExecutionNotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, exec)
	})
}

func handleKill(mgr *engine.Manager, w http.ResponseWriter, r *http.Request, id string) {
	exec, err := mgr.Kill(id)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeExecutionNotFound(w, r)
	case errors.Is(err, engine.ErrTerminal):
		response.Write(w, response.New(http.StatusConflict, "execution already finished",
			response.WithType(response.TypeConflict),
			response.WithInstance(r.URL.Path),
			response.WithExtension("state", exec.State),
		))
	case err != nil:
		response.WriteError(w, r.URL.Path, err)
	default:
		requestctx.LogSafetyDecision(r.Context(), id, "allowed", "202", "abort requested")
		writeJSON(w, http.StatusAccepted, exec)
	}
}

func writeExecutionNotFound(w http.ResponseWriter, r *http.Request) {
	response.Write(w, response.New(http.StatusNotFound, "execution not found",
		response.WithType(response.TypeNotFound),
		response.WithInstance(r.URL.Path),
	))
}
