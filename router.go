package span

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Router dispatches requests to registered routes and owns the shared
// pipeline resources: the codec registry and the projection cache. It
// implements http.Handler.
type Router struct {
	mux        *http.ServeMux
	middleware []Middleware
	routes     []*route
	patterns   map[string]bool

	registry    *Registry
	projections *projectionCache
	projCap     int

	errorHandler       ErrorHandler
	defaultContentType string

	mu       sync.Mutex
	sealOnce sync.Once
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// ErrorHandler replaces the default error-header response writer.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// WithErrorHandler sets a custom error handler for the router.
func WithErrorHandler(h ErrorHandler) RouterOption {
	return func(r *Router) { r.errorHandler = h }
}

// WithCodec registers an additional codec (or overrides a built-in).
func WithCodec(c Codec) RouterOption {
	return func(r *Router) { r.registry.Register(c) }
}

// WithDefaultContentType sets the content type used when negotiation finds
// no match (default application/json).
func WithDefaultContentType(ct string) RouterOption {
	return func(r *Router) { r.defaultContentType = ct }
}

// WithProjectionCacheSize bounds the derived-schema projection cache.
func WithProjectionCacheSize(n int) RouterOption {
	return func(r *Router) { r.projCap = n }
}

// New creates a Router with the built-in codecs registered.
func New(opts ...RouterOption) *Router {
	r := &Router{
		mux:                http.NewServeMux(),
		patterns:           make(map[string]bool),
		registry:           NewRegistry(),
		defaultContentType: ContentTypeJSON,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.projections = newProjectionCache(r.projCap)
	return r
}

// RegisterCodec installs a codec process-wide. Codecs are configuration:
// registration must happen before the router serves its first request.
func (r *Router) RegisterCodec(c Codec) {
	r.registry.Register(c)
}

// Use adds middleware to the router. Middleware is applied in the order added.
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// ProjectionStats reports projection cache activity for one route. Counters
// are route-specific: identical directives on different routes never share
// an entry.
func (r *Router) ProjectionStats(method, pattern string) CacheStats {
	return r.projections.routeStats(method + " " + pattern)
}

// ServeHTTP implements http.Handler. The first request seals the codec
// registry, ending the configuration phase.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.sealOnce.Do(r.registry.seal)

	handler := http.Handler(r.mux)
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	handler.ServeHTTP(w, req)
}

// ListenAndServe starts an HTTP server on the given address.
// It blocks until the context is cancelled, then shuts down gracefully.
func (r *Router) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Registrar implementation for Router.
func (r *Router) router() *Router               { return r }
func (r *Router) routeMiddleware() []Middleware { return nil }

// addRoute registers a route with the mux. The first route on a pattern
// also installs a method guard so unimplemented methods surface
// InvalidMethodError through the error channel instead of the mux's plain
// 405.
func (r *Router) addRoute(rt *route) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mux.Handle(rt.method+" "+rt.pattern, rt.handler)
	r.routes = append(r.routes, rt)

	if !r.patterns[rt.pattern] {
		r.patterns[rt.pattern] = true
		pattern := rt.pattern
		r.mux.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
			r.writeError(w, req, nil, nil,
				ClassInvalidMethod.Errorf("method %s is not implemented for %s", req.Method, pattern))
		})
	}
}
