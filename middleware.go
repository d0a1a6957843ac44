package span

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Middleware is the standard middleware signature compatible with the entire
// Go middleware ecosystem.
type Middleware func(next http.Handler) http.Handler

// Recovery returns middleware that recovers from panics anywhere in the
// chain and responds through the error-header channel. Handler panics are
// already normalized by the pipeline; this guards the middleware stack
// itself.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic recovered",
						"panic", rec,
						"stack", string(debug.Stack()),
						"method", r.Method,
						"path", r.URL.Path,
					)
					e := ClassAPIError.New("an unknown error occurred")
					writeErrorHeaders(w.Header(), e)
					w.WriteHeader(e.Class.HTTPCode)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
