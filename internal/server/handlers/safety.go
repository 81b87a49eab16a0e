package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/wardd-org/wardd/internal/risk"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/server/response"
	"github.com/wardd-org/wardd/internal/types"
)

var rateLimitCategories = map[string]struct{}{
	types.CategoryAuth:      {},
	types.CategorySudo:      {},
	types.CategoryService:   {},
	types.CategoryContainer: {},
	types.CategoryPackage:   {},
	types.CategoryApproval:  {},
}

// NewSafetySettingsHandler returns the handler for GET /safety/settings.
func NewSafetySettingsHandler(state *safety.State) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
			return
		}
		settings := state.Settings(risk.DestructivePatternCount(), risk.InjectionPatternCount())
		writeJSON(w, http.StatusOK, settings)
	})
}

type rateLimitRequest struct {
	Category      string `json:"category"`
	MaxRequests   int    `json:"max_requests"`
	WindowSeconds int    `json:"window_seconds"`
}

// NewRateLimitHandler returns the handler for POST /safety/rate-limit.
// Values are clamped to the administrator ranges; the effective quota is
// echoed back.
func NewRateLimitHandler(state *safety.State) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
			return
		}
		var in rateLimitRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			response.Write(w, response.New(http.StatusBadRequest, "invalid JSON body",
				response.WithType(response.TypeValidation),
				response.WithDetail(err.Error()),
			))
			return
		}
		if _, ok := rateLimitCategories[in.Category]; !ok {
			response.WriteError(w, r.URL.Path, &safety.ValidationError{
				Field: "category",
				Msg:   "unknown rate limit category",
			})
			return
		}
		effective := state.SetRateLimit(in.Category, in.MaxRequests, in.WindowSeconds)
		writeJSON(w, http.StatusOK, effective)
	})
}

// NewSafetyLimitHandler returns a handler for one integer safety setting.
// The apply function clamps and installs the value, returning the effective
// one.
func NewSafetyLimitHandler(field string, apply func(int) int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
			return
		}
		var in map[string]int
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			response.Write(w, response.New(http.StatusBadRequest, "invalid JSON body",
				response.WithType(response.TypeValidation),
				response.WithDetail(err.Error()),
			))
			return
		}
		value, ok := in[field]
		if !ok {
			response.WriteError(w, r.URL.Path, &safety.ValidationError{
				Field: field,
				Msg:   "missing value",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{field: apply(value)})
	})
}
