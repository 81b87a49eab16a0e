// SPDX-License-Identifier: AGPL-3.0-or-later
package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wardd-org/wardd/internal/events"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/server/metrics"
	"github.com/wardd-org/wardd/internal/server/requestctx"
	"github.com/wardd-org/wardd/internal/server/response"
	"github.com/wardd-org/wardd/internal/types"
)

// Middleware defines a HTTP middleware component.
type Middleware func(http.Handler) http.Handler

// chainMiddleware applies the supplied middlewares in order to the provided handler.
func chainMiddleware(h http.Handler, chain ...Middleware) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i] == nil {
			continue
		}
		h = chain[i](h)
	}
	return h
}

// loggingMiddleware records request metadata using slog.
func loggingMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			reqLogger := logger.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			meta := &requestctx.Metadata{}
			ctx := requestctx.WithMetadata(r.Context(), meta)
			ctx = requestctx.WithLogger(ctx, reqLogger)
			next.ServeHTTP(recorder, r.WithContext(ctx))
			attrs := []any{
				slog.Int("status", recorder.status),
				slog.Duration("duration", time.Since(start)),
			}
			if route, ok := requestctx.Route(ctx); ok {
				attrs = append(attrs, slog.String("route", route))
			}
			if principal, ok := requestctx.Principal(ctx); ok {
				attrs = append(attrs, slog.String("principal", principal))
			}
			reqLogger.Info("request", attrs...)
		})
	}
}

// authMiddleware enforces the static bearer token when one is configured.
// Failed attempts draw from the auth rate category and are audited, so a
// credential-guessing loop locks itself out.
func authMiddleware(cfg Config, state *safety.State, audit events.Sink) Middleware {
	if cfg.AuthToken == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOpenEndpoint(cfg, r) {
				next.ServeHTTP(w, r)
				return
			}
			token := bearerToken(r)
			if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AuthToken)) == 1 {
				ctx := requestctx.WithPrincipal(r.Context(), "token")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			events.Record(audit, events.Event{
				Type: events.TypeAuthFailed,
				Data: map[string]interface{}{"path": r.URL.Path, "remote": r.RemoteAddr},
			})
			requestctx.LogSafetyDecision(r.Context(), r.URL.Path, "denied", "401", "invalid bearer token")
			if err := state.Limiter().Allow(types.CategoryAuth); err != nil {
				metrics.Default.RecordDenial("rate_limit")
				response.WriteError(w, r.URL.Path, err)
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="wardd"`)
			response.Write(w, response.New(http.StatusUnauthorized, "Unauthorized",
				response.WithInstance(r.URL.Path)))
		})
	}
}

// isOpenEndpoint reports whether the request may skip bearer auth.
func isOpenEndpoint(cfg Config, r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	switch r.URL.Path {
	case "/healthz":
		return true
	case "/metrics":
		return cfg.MetricsEnabled && cfg.MetricsAllowUnauthenticated
	default:
		return false
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func metricsMiddleware(cfg Config) Middleware {
	if !cfg.MetricsEnabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := templateRoute(r.URL.Path)
			ctx := requestctx.WithRoute(r.Context(), route)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r.WithContext(ctx))
			duration := time.Since(start)
			metrics.Default.RecordHTTP(route, r.Method, recorder.status, duration)
		})
	}
}

func templateRoute(path string) string {
	switch {
	case path == "":
		return "/"
	case path == "/metrics":
		return "/metrics"
	case path == "/healthz":
		return "/healthz"
	case path == "/health/storage":
		return "/health/storage"
	case path == "/plans":
		return "/plans"
	case strings.HasPrefix(path, "/plans/"):
		if strings.HasSuffix(path, ":approve") {
			return "/plans/{id}:approve"
		}
		return "/plans/{id}"
	case path == "/executions":
		return "/executions"
	case strings.HasPrefix(path, "/executions/"):
		if strings.HasSuffix(path, ":kill") {
			return "/executions/{id}:kill"
		}
		return "/executions/{id}"
	case path == "/approvals":
		return "/approvals"
	case strings.HasPrefix(path, "/approvals/"):
		if strings.HasSuffix(path, ":respond") {
			return "/approvals/{id}:respond"
		}
		if strings.HasSuffix(path, "/explain") {
			return "/approvals/{id}/explain"
		}
		return "/approvals/{id}"
	case path == "/safety/settings":
		return "/safety/settings"
	case strings.HasPrefix(path, "/safety/"):
		return "/safety/{setting}"
	case path == "/audit/events":
		return "/audit/events"
	default:
		return path
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func newLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(cfg.StdOut, opts)
	default:
		handler = slog.NewTextHandler(cfg.StdOut, opts)
	}
	return slog.New(handler)
}
