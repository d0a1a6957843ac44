package span

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// HandlerFunc is the handler signature. Handlers read the request through
// *Request, populate *Response, and report failures by returning an error —
// they never touch the transport directly.
type HandlerFunc func(ctx context.Context, req *Request, resp *Response) error

// Registrar is the interface accepted by the registration functions.
// Both *Router and *Group implement it.
type Registrar interface {
	addRoute(rt *route)
	router() *Router
	routeMiddleware() []Middleware
}

// register is the internal registration function shared by the method
// helpers.
func register(reg Registrar, method, pattern string, h HandlerFunc, opts ...RouteOption) {
	rt := &route{
		method:     method,
		pattern:    pattern,
		reqPolicy:  LoadValidateAndLoad,
		respPolicy: DumpOnly,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.status == 0 {
		rt.status = http.StatusOK
	}

	rt.handler = buildHandler(rt, h, reg.router())

	routeMW := reg.routeMiddleware()
	for i := len(routeMW) - 1; i >= 0; i-- {
		rt.handler = routeMW[i](rt.handler)
	}

	reg.addRoute(rt)
}

// buildHandler wraps a HandlerFunc into an http.Handler running the full
// pipeline: body read, paging resolution, handler invocation, media
// finalization. Handler panics are normalized into a generic APIError so
// no unhandled failure reaches the transport.
func buildHandler(rt *route, h HandlerFunc, router *Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := newResponse(rt)

		body, err := readBody(w, r, rt.bodyLimit)
		if err != nil {
			router.writeError(w, r, rt, resp, ClassRequestValidation.Wrap(err, "unable to read request body"))
			return
		}
		req := newRequest(r, rt, router.registry, body)

		if rt.paging != nil {
			pg, err := resolvePaging(r, rt.paging)
			if err != nil {
				router.writeError(w, r, rt, resp, err)
				return
			}
			req.paging = pg
			resp.paging = &PagingResp{Offset: pg.Offset, Limit: pg.Limit, TotalItems: -1}
		}

		err = invoke(r.Context(), h, req, resp)
		if err != nil {
			router.writeError(w, r, rt, resp, err)
			return
		}

		router.writeResponse(w, r, rt, resp)
	})
}

func invoke(ctx context.Context, h HandlerFunc, req *Request, resp *Response) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("handler panic",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			err = ClassAPIError.New("an unknown error occurred")
		}
	}()
	return h(ctx, req, resp)
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body := r.Body
	if limit > 0 {
		body = http.MaxBytesReader(w, body, limit)
	}
	return io.ReadAll(body)
}

// Get registers a GET handler.
func Get(reg Registrar, pattern string, h HandlerFunc, opts ...RouteOption) {
	register(reg, http.MethodGet, pattern, h, opts...)
}

// Post registers a POST handler.
func Post(reg Registrar, pattern string, h HandlerFunc, opts ...RouteOption) {
	register(reg, http.MethodPost, pattern, h, opts...)
}

// Put registers a PUT handler.
func Put(reg Registrar, pattern string, h HandlerFunc, opts ...RouteOption) {
	register(reg, http.MethodPut, pattern, h, opts...)
}

// Patch registers a PATCH handler.
func Patch(reg Registrar, pattern string, h HandlerFunc, opts ...RouteOption) {
	register(reg, http.MethodPatch, pattern, h, opts...)
}

// Delete registers a DELETE handler.
func Delete(reg Registrar, pattern string, h HandlerFunc, opts ...RouteOption) {
	register(reg, http.MethodDelete, pattern, h, opts...)
}
