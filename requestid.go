package span

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID is the header carrying the per-request identifier.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestIDConfig customizes the RequestID middleware.
type RequestIDConfig struct {
	// Header is the request/response header name. Defaults to X-Request-ID.
	Header string
	// Generator produces new identifiers. Defaults to uuid.NewString.
	Generator func() string
}

// RequestID returns middleware that assigns a unique identifier to each
// request, echoing an inbound one when present. The id is stored on the
// request context and set on the response header.
func RequestID(cfgs ...RequestIDConfig) Middleware {
	cfg := RequestIDConfig{}
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}
	if cfg.Header == "" {
		cfg.Header = HeaderRequestID
	}
	if cfg.Generator == nil {
		cfg.Generator = uuid.NewString
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(cfg.Header)
			if id == "" {
				id = cfg.Generator()
			}
			w.Header().Set(cfg.Header, id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID returns the request id assigned by the RequestID middleware,
// or "" when the middleware is not installed.
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}
