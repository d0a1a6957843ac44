package span

import "net/http"

// Response is the outbound half of a handler invocation: a mutable media
// slot, headers, status code, and per-response pipeline switches. The
// pipeline consumes it after the handler returns.
type Response struct {
	// ApplyProjection disables client-requested field projection for this
	// response when set to false. Checked before projection directives are
	// even parsed.
	ApplyProjection bool

	media       any
	mediaSet    bool
	status      int
	header      http.Header
	contentType string
	ctForced    bool // handler pinned the content type; skip negotiation
	paging      *PagingResp
}

func newResponse(rt *route) *Response {
	return &Response{
		ApplyProjection: true,
		status:          rt.status,
		header:          make(http.Header),
		contentType:     rt.contentType,
	}
}

// SetMedia sets the response media. What happens to it is governed by the
// route's response schema and dump policy.
func (r *Response) SetMedia(v any) {
	r.media = v
	r.mediaSet = true
}

// Media returns the media value set by the handler, if any.
func (r *Response) Media() (any, bool) {
	return r.media, r.mediaSet
}

// SetText sets a plain-text body, forcing the text/plain content type.
func (r *Response) SetText(s string) {
	r.SetMedia(s)
	r.contentType = ContentTypeText
	r.ctForced = true
}

// SetStatus overrides the response status code.
func (r *Response) SetStatus(code int) {
	r.status = code
}

// Status returns the status code the response will be written with.
func (r *Response) Status() int {
	return r.status
}

// Header returns the mutable response headers.
func (r *Response) Header() http.Header {
	return r.header
}

// SetContentType pins the response content type, overriding Accept
// negotiation. The named codec must be registered.
func (r *Response) SetContentType(ct string) {
	r.contentType = ct
	r.ctForced = true
}

// Paging returns the response paging state so the handler can report
// TotalItems. It fails with ErrPagingNotDeclared on routes that did not opt
// in via WithPaging.
func (r *Response) Paging() (*PagingResp, error) {
	if r.paging == nil {
		return nil, ErrPagingNotDeclared
	}
	return r.paging, nil
}
