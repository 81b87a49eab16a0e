package handlers

import (
	"net/http"
	"strconv"

	"github.com/wardd-org/wardd/internal/coredb"
	"github.com/wardd-org/wardd/internal/events"
	"github.com/wardd-org/wardd/internal/server/response"
)

const defaultAuditLimit = 100

// AuditConfig wires the audit query endpoint to its event sources. The
// journal is preferred; the in-memory sink answers when persistence is
// unavailable.
type AuditConfig struct {
	Journal *coredb.Journal
	Memory  *events.MemorySink
}

// NewAuditHandler returns the handler for GET /audit/events. Events come
// back newest first, filterable by type and execution ID.
func NewAuditHandler(cfg AuditConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
			return
		}

		q := r.URL.Query()
		limit := defaultAuditLimit
		if raw := q.Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				response.Write(w, response.New(http.StatusBadRequest, "invalid limit",
					response.WithType(response.TypeValidation),
					response.WithDetail("limit must be a positive integer"),
				))
				return
			}
			limit = parsed
		}
		eventType := q.Get("type")
		executionID := q.Get("execution_id")

		if cfg.Journal != nil {
			list, err := cfg.Journal.List(r.Context(), coredb.Query{
				EventType:   eventType,
				ExecutionID: executionID,
				Limit:       limit,
			})
			if err == nil {
				writeJSON(w, http.StatusOK, map[string]any{"events": list})
				return
			}
		}

		if cfg.Memory == nil {
			writeJSON(w, http.StatusOK, map[string]any{"events": []events.Event{}})
			return
		}
		list := cfg.Memory.List(eventType, limit)
		if executionID != "" {
			filtered := list[:0]
			for _, ev := range list {
				if ev.ExecutionID == executionID {
					filtered = append(filtered, ev)
				}
			}
			list = filtered
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": list})
	})
}
