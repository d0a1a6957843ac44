// Package span is the request/response media pipeline for HTTP APIs:
// the layer between raw wire bytes and validated, typed application data.
//
// Handlers receive a *Request and a *Response and never touch
// http.ResponseWriter directly:
//
//	r := span.New()
//	span.Post(r, "/names", createName,
//		span.WithRequestSchema(span.SchemaOf[Name]()),
//		span.WithResponseSchema(span.SchemaOf[Name]()),
//	)
//
// Request bodies are decoded by a content-type codec registry (JSON, BSON,
// MessagePack, YAML, and plain text built in), then loaded through the
// route's schema according to an explicit LoadPolicy. Responses flow the
// other way: schema dump per DumpPolicy, optional client-requested field
// projection, content negotiation via the Accept header, and offset/limit
// pagination rendered into paging-* response headers.
//
// Decode and load are memoized per request: repeated calls to
// Request.Media or Request.MediaLoaded observe the same value.
//
// All failures travel one error channel and are written as error-* response
// headers; user-defined application errors are modeled as ErrorClass values.
//
// Middleware uses the standard func(http.Handler) http.Handler signature,
// so the entire Go middleware ecosystem works natively.
package span
