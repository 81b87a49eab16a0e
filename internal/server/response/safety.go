package response

import (
	"errors"
	"net/http"

	"github.com/wardd-org/wardd/internal/safety"
)

// WriteError maps the safety error taxonomy onto problem responses. Unknown
// errors become an opaque 500 so internals never leak to clients.
func WriteError(w http.ResponseWriter, instance string, err error) {
	var (
		rle *safety.RateLimitError
		be  *safety.BreakerError
		ve  *safety.ValidationError
	)
	switch {
	case errors.As(err, &rle):
		Write(w, New(http.StatusTooManyRequests, "Rate limit exceeded",
			WithType(TypeRateLimit),
			WithDetail(rle.Error()),
			WithInstance(instance),
			WithRetryAfter(rle.RetryAfter),
			WithExtension("category", rle.Category),
			WithExtension("max_requests", rle.Max),
			WithExtension("window_seconds", int(rle.Window.Seconds())),
		))
	case errors.As(err, &be):
		Write(w, New(http.StatusUnprocessableEntity, "Circuit breaker tripped",
			WithType(TypeBreakerTripped),
			WithDetail(be.Error()),
			WithInstance(instance),
			WithExtension("reason", be.Reason),
			WithExtension("current", be.Current),
			WithExtension("limit", be.Limit),
		))
	case errors.As(err, &ve):
		Write(w, New(http.StatusUnprocessableEntity, "Validation failed",
			WithType(TypeValidation),
			WithDetail(ve.Error()),
			WithInstance(instance),
			WithExtension("field", ve.Field),
		))
	default:
		Write(w, New(http.StatusInternalServerError, "Internal error",
			WithInstance(instance),
		))
	}
}
