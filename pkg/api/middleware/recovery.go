package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/tickbus/tickbus/pkg/api/response"
	"github.com/tickbus/tickbus/pkg/logger"
)

// Recovery returns a middleware that turns handler panics into 500 responses.
// http.ErrAbortHandler is re-raised so the server can abort the connection.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := RequestIDOrUnknown(r.Context())
				log.Error("Panic recovered",
					"error", rec,
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", requestID,
					"stack", string(debug.Stack()),
				)

				response.Error(w,
					http.StatusInternalServerError,
					response.ErrCodeInternalServer,
					"internal server error",
					requestID,
				)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
