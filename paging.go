package span

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Paging wire contract: request parameters (query or header) and response
// headers.
const (
	ParamPagingOffset = "paging-offset"
	ParamPagingLimit  = "paging-limit"

	HeaderPagingTotalItems  = "paging-total-items"
	HeaderPagingTotalPages  = "paging-total-pages"
	HeaderPagingLimit       = "paging-limit"
	HeaderPagingCurrentPage = "paging-current-page"
	HeaderPagingNext        = "paging-next"
	HeaderPagingPrevious    = "paging-previous"
)

// PagingReq is the resolved offset/limit window for an inbound request.
type PagingReq struct {
	Offset int
	Limit  int
}

// PagingResp is the response-side paging state. The handler sets TotalItems;
// everything else is derived when the response is written.
type PagingResp struct {
	Offset int
	Limit  int
	// TotalItems is set by the handler. Negative means "not reported":
	// total/navigation headers are omitted.
	TotalItems int
	// Next and Previous are the computed navigation URLs, populated when
	// the paging headers are rendered (or parsed via PagingFromHeaders).
	Next     string
	Previous string
}

// TotalPages derives the page count: ceil(TotalItems/Limit), minimum 1.
func (p *PagingResp) TotalPages() int {
	if p.TotalItems <= 0 {
		return 1
	}
	return (p.TotalItems + p.Limit - 1) / p.Limit
}

// CurrentPage derives the 1-based page this window falls on.
func (p *PagingResp) CurrentPage() int {
	return p.Offset/p.Limit + 1
}

type pagingConfig struct {
	defaultOffset int
	defaultLimit  int
	maxLimit      int
}

// PagingOption adjusts a route's paging configuration beyond the limit
// passed to WithPaging.
type PagingOption func(*pagingConfig)

// WithDefaultLimit sets the limit applied when the client supplies none.
func WithDefaultLimit(n int) PagingOption {
	return func(c *pagingConfig) { c.defaultLimit = n }
}

// WithDefaultOffset sets the offset applied when the client supplies none.
func WithDefaultOffset(n int) PagingOption {
	return func(c *pagingConfig) { c.defaultOffset = n }
}

// resolvePaging computes the request window. Explicit query parameters win
// over header-supplied values, which win over route defaults.
func resolvePaging(r *http.Request, cfg *pagingConfig) (*PagingReq, error) {
	pick := func(name string) string {
		if v := r.URL.Query().Get(name); v != "" {
			return v
		}
		return r.Header.Get(name)
	}

	offset := cfg.defaultOffset
	if v := pick(ParamPagingOffset); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, ClassRequestValidation.Errorf("%s: %q is not an integer", ParamPagingOffset, v)
		}
		offset = n
	}
	if offset < 0 {
		return nil, ClassRequestValidation.Errorf("%s must not be negative", ParamPagingOffset)
	}

	limit := cfg.defaultLimit
	if v := pick(ParamPagingLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, ClassRequestValidation.Errorf("%s: %q is not an integer", ParamPagingLimit, v)
		}
		limit = n
	}
	if limit < 1 {
		return nil, ClassRequestValidation.Errorf("%s must be positive", ParamPagingLimit)
	}
	if limit > cfg.maxLimit {
		return nil, ClassAPILimit.Errorf("paging limit %d exceeds route maximum %d", limit, cfg.maxLimit)
	}

	return &PagingReq{Offset: offset, Limit: limit}, nil
}

// writeHeaders renders the paging-* response headers and computes the
// navigation links against the original request URL, preserving all other
// query parameters.
func (p *PagingResp) writeHeaders(h http.Header, u *url.URL) {
	h.Set(HeaderPagingLimit, strconv.Itoa(p.Limit))
	h.Set(HeaderPagingCurrentPage, strconv.Itoa(p.CurrentPage()))

	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		p.Previous = pageURL(u, prev, p.Limit)
		h.Set(HeaderPagingPrevious, p.Previous)
	}

	if p.TotalItems < 0 {
		return
	}

	h.Set(HeaderPagingTotalItems, strconv.Itoa(p.TotalItems))
	h.Set(HeaderPagingTotalPages, strconv.Itoa(p.TotalPages()))

	if p.Offset+p.Limit < p.TotalItems {
		p.Next = pageURL(u, p.Offset+p.Limit, p.Limit)
		h.Set(HeaderPagingNext, p.Next)
	}
}

// pageURL rebuilds the request URL with the paging window substituted into
// the original query parameters.
func pageURL(u *url.URL, offset, limit int) string {
	q := u.Query()
	q.Set(ParamPagingOffset, strconv.Itoa(offset))
	q.Set(ParamPagingLimit, strconv.Itoa(limit))
	return u.Path + "?" + q.Encode()
}

// PagingFromHeaders reconstructs response paging state from the paging-*
// headers, for API clients walking paged results.
func PagingFromHeaders(h http.Header) (*PagingResp, error) {
	limitVal := h.Get(HeaderPagingLimit)
	if limitVal == "" {
		return nil, fmt.Errorf("span: response carries no paging headers")
	}
	limit, err := strconv.Atoi(limitVal)
	if err != nil || limit < 1 {
		return nil, fmt.Errorf("span: invalid %s header %q", HeaderPagingLimit, limitVal)
	}

	current := 1
	if v := h.Get(HeaderPagingCurrentPage); v != "" {
		if current, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("span: invalid %s header %q", HeaderPagingCurrentPage, v)
		}
	}

	p := &PagingResp{
		Limit:      limit,
		Offset:     (current - 1) * limit,
		TotalItems: -1,
		Next:       h.Get(HeaderPagingNext),
		Previous:   h.Get(HeaderPagingPrevious),
	}
	if v := h.Get(HeaderPagingTotalItems); v != "" {
		if p.TotalItems, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("span: invalid %s header %q", HeaderPagingTotalItems, v)
		}
	}

	// The exact offset is recovered from the navigation links when present;
	// page arithmetic alone cannot reconstruct an unaligned offset.
	if n, ok := linkOffset(p.Next); ok {
		p.Offset = n - limit
	} else if n, ok := linkOffset(p.Previous); ok {
		p.Offset = n + limit
	}
	return p, nil
}

func linkOffset(link string) (int, bool) {
	if link == "" {
		return 0, false
	}
	u, err := url.Parse(link)
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(u.Query().Get(ParamPagingOffset))
	if err != nil {
		return 0, false
	}
	return n, true
}
