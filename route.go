package span

import "net/http"

// route holds everything resolved at registration time: the bound schemas
// and policies, paging configuration, and the built handler. Nothing about
// a route is inspected per request beyond reading these fields.
type route struct {
	method  string
	pattern string
	status  int

	reqSchema Schema
	reqPolicy LoadPolicy

	respSchema Schema
	respPolicy DumpPolicy

	paging      *pagingConfig
	contentType string
	bodyLimit   int64

	handler http.Handler
}

// id is the route identity used for projection cache scoping.
func (rt *route) id() string { return rt.method + " " + rt.pattern }

// RouteOption configures a route at registration time.
type RouteOption func(*route)

// WithRequestSchema binds a request schema. Bodies are loaded through it
// according to the route's LoadPolicy (default: VALIDATE_AND_LOAD).
func WithRequestSchema(s Schema) RouteOption {
	return func(rt *route) { rt.reqSchema = s }
}

// WithLoadPolicy sets how strictly request bodies are validated.
func WithLoadPolicy(p LoadPolicy) RouteOption {
	return func(rt *route) { rt.reqPolicy = p }
}

// WithResponseSchema binds a response schema. Media is dumped through it
// according to the route's DumpPolicy (default: DUMP_ONLY), and binding a
// response schema makes the route eligible for client field projection.
func WithResponseSchema(s Schema) RouteOption {
	return func(rt *route) { rt.respSchema = s }
}

// WithDumpPolicy sets how response media is serialized and validated.
func WithDumpPolicy(p DumpPolicy) RouteOption {
	return func(rt *route) { rt.respPolicy = p }
}

// WithPaging opts the route into offset/limit pagination. limit is both
// the default and the maximum page size unless adjusted by options.
func WithPaging(limit int, opts ...PagingOption) RouteOption {
	return func(rt *route) {
		cfg := &pagingConfig{defaultLimit: limit, maxLimit: limit}
		for _, opt := range opts {
			opt(cfg)
		}
		rt.paging = cfg
	}
}

// WithStatus sets the status code written on success (default 200).
func WithStatus(code int) RouteOption {
	return func(rt *route) { rt.status = code }
}

// WithResponseContentType sets the content type used when the client's
// Accept header names no registered codec (default: the router's default,
// normally application/json). Use ContentTypeText for plain-text routes.
func WithResponseContentType(ct string) RouteOption {
	return func(rt *route) { rt.contentType = ct }
}

// WithBodyLimit caps the request body size in bytes for this route.
func WithBodyLimit(maxBytes int64) RouteOption {
	return func(rt *route) { rt.bodyLimit = maxBytes }
}
