package requestctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}
type metadataKey struct{}
type principalKey struct{}

var (
	ctxLoggerKey    = &loggerKey{}
	ctxMetadataKey  = &metadataKey{}
	ctxPrincipalKey = &principalKey{}
)

// Metadata stores auxiliary request attributes for structured logging.
type Metadata struct {
	Route string
}

// WithLogger stores the request-scoped logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLoggerKey, logger)
}

// Logger extracts the request-scoped logger from context, if present.
func Logger(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(ctxLoggerKey).(*slog.Logger)
	return logger
}

// WithMetadata stores request metadata in context, overwriting any existing value.
func WithMetadata(ctx context.Context, meta *Metadata) context.Context {
	if meta == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxMetadataKey, meta)
}

// MetadataFromContext retrieves the metadata pointer stored on the context, if present.
func MetadataFromContext(ctx context.Context) *Metadata {
	if ctx == nil {
		return nil
	}
	meta, _ := ctx.Value(ctxMetadataKey).(*Metadata)
	return meta
}

// WithRoute annotates metadata with the templated route string.
func WithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	meta := MetadataFromContext(ctx)
	if meta == nil {
		meta = &Metadata{}
		ctx = context.WithValue(ctx, ctxMetadataKey, meta)
	}
	meta.Route = route
	return ctx
}

// Route extracts the templated route string stored on the context, if any.
func Route(ctx context.Context) (string, bool) {
	meta := MetadataFromContext(ctx)
	if meta == nil || meta.Route == "" {
		return "", false
	}
	return meta.Route, true
}

// WithPrincipal stores the authenticated principal identifier on the context.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	if principal == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxPrincipalKey, principal)
}

// Principal retrieves the authenticated principal identifier from context.
func Principal(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	principal, _ := ctx.Value(ctxPrincipalKey).(string)
	if principal == "" {
		return "", false
	}
	return principal, true
}

// LogSafetyDecision emits a structured safety decision log using the
// request-scoped logger.
func LogSafetyDecision(ctx context.Context, subject, decision, code, reason string) {
	logger := Logger(ctx)
	if logger == nil {
		return
	}
	attrs := []any{
		slog.String("subject", subject),
		slog.String("decision", decision),
	}
	if code != "" {
		attrs = append(attrs, slog.String("code", code))
	}
	if reason != "" {
		attrs = append(attrs, slog.String("reason", reason))
	}

	switch decision {
	case "blocked", "denied", "rate_limited":
		logger.Warn("safety_decision", attrs...)
	default:
		logger.Info("safety_decision", attrs...)
	}
}
