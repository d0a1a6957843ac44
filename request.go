package span

import (
	"net/http"
	"net/url"
)

// Request is the inbound half of a handler invocation: headers, query and
// path parameters, and memoized access to the decoded and schema-loaded
// body. A Request lives exactly as long as one handler invocation and is
// not shared across goroutines.
type Request struct {
	raw    *http.Request
	media  mediaState
	paging *PagingReq
	query  url.Values
}

func newRequest(r *http.Request, rt *route, registry *Registry, body []byte) *Request {
	return &Request{
		raw: r,
		media: mediaState{
			raw:         body,
			contentType: r.Header.Get("Content-Type"),
			registry:    registry,
			schema:      rt.reqSchema,
			policy:      rt.reqPolicy,
		},
	}
}

// Media returns the decoded request body: nil for an empty body, raw bytes
// for an unregistered content type, and the codec's decoded value
// otherwise. The result is computed once; repeated calls return the same
// value.
func (r *Request) Media() (any, error) {
	return r.media.media()
}

// MediaLoaded returns the request body after the route's load policy has
// run: the constructed object under VALIDATE_AND_LOAD, the decoded value
// under VALIDATE_ONLY and IGNORE. Memoized like Media.
func (r *Request) MediaLoaded() (any, error) {
	return r.media.mediaLoaded()
}

// SetDecodedMedia pre-seeds the decoded body with an already-parsed
// document, bypassing the decode step. The load policy still applies. It
// has no effect once media has been materialized.
func (r *Request) SetDecodedMedia(v any) {
	r.media.preseed(v)
}

// Paging returns the resolved offset/limit window. It fails with
// ErrPagingNotDeclared on routes that did not opt in via WithPaging.
func (r *Request) Paging() (*PagingReq, error) {
	if r.paging == nil {
		return nil, ErrPagingNotDeclared
	}
	return r.paging, nil
}

// ContentType returns the request's Content-Type header.
func (r *Request) ContentType() string {
	return r.raw.Header.Get("Content-Type")
}

// Header returns the request headers.
func (r *Request) Header() http.Header {
	return r.raw.Header
}

// Query returns the parsed query parameters.
func (r *Request) Query() url.Values {
	if r.query == nil {
		r.query = r.raw.URL.Query()
	}
	return r.query
}

// PathValue returns the value of the named path wildcard.
func (r *Request) PathValue(name string) string {
	return r.raw.PathValue(name)
}

// Raw exposes the underlying *http.Request for anything the pipeline does
// not model.
func (r *Request) Raw() *http.Request {
	return r.raw
}
