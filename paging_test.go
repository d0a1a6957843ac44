package span_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/span"
	"github.com/bjaus/span/spantest"
)

// pagedItemsRouter serves a fixed list of n items windowed by the resolved
// paging state.
func pagedItemsRouter(n, limit int, opts ...span.PagingOption) *span.Router {
	items := make([]map[string]any, n)
	for i := range n {
		items[i] = map[string]any{"n": i}
	}

	router := span.New()
	span.Get(router, "/items", func(_ context.Context, req *span.Request, resp *span.Response) error {
		pg, err := req.Paging()
		if err != nil {
			return err
		}

		out, err := resp.Paging()
		if err != nil {
			return err
		}
		out.TotalItems = len(items)

		lo := min(pg.Offset, len(items))
		hi := min(pg.Offset+pg.Limit, len(items))
		resp.SetMedia(items[lo:hi])
		return nil
	}, span.WithPaging(limit, opts...))
	return router
}

func decodeItems(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var items []map[string]any
	require.NoError(t, json.Unmarshal(body, &items))
	return items
}

func TestPaging_walks_all_pages_via_next_links(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, pagedItemsRouter(10, 2))

	var seen []float64
	path := "/items"
	pages := 0
	for path != "" {
		resp := c.Do(t, http.MethodGet, path, nil, "", nil)
		body := spantest.ValidateResponse(t, resp, http.StatusOK)
		pages++

		for _, item := range decodeItems(t, body) {
			seen = append(seen, item["n"].(float64))
		}

		pg, err := span.PagingFromHeaders(resp.Header)
		require.NoError(t, err)
		assert.Equal(t, 10, pg.TotalItems)
		assert.Equal(t, 5, pg.TotalPages())
		assert.Equal(t, pages, pg.CurrentPage())

		if pages == 1 {
			assert.Empty(t, pg.Previous, "first page has no previous link")
		} else {
			assert.NotEmpty(t, pg.Previous)
		}

		path = pg.Next
	}

	assert.Equal(t, 5, pages)
	require.Len(t, seen, 10)
	for i, n := range seen {
		assert.Equal(t, float64(i), n)
	}
}

func TestPaging_explicit_offset_and_limit(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, pagedItemsRouter(10, 5))

	resp := c.Do(t, http.MethodGet, "/items?paging-offset=4&paging-limit=3", nil, "", nil)
	body := spantest.ValidateResponse(t, resp, http.StatusOK)

	items := decodeItems(t, body)
	require.Len(t, items, 3)
	assert.Equal(t, float64(4), items[0]["n"])

	assert.Equal(t, "3", resp.Header.Get(span.HeaderPagingLimit))
	assert.Equal(t, "10", resp.Header.Get(span.HeaderPagingTotalItems))
	assert.Equal(t, "4", resp.Header.Get(span.HeaderPagingTotalPages))
}

func TestPaging_header_parameters_resolve_below_query(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, pagedItemsRouter(10, 5))

	h := http.Header{}
	h.Set(span.ParamPagingOffset, "2")
	h.Set(span.ParamPagingLimit, "2")

	// Headers alone set the window.
	resp := c.Do(t, http.MethodGet, "/items", nil, "", h)
	body := spantest.ValidateResponse(t, resp, http.StatusOK)
	items := decodeItems(t, body)
	require.Len(t, items, 2)
	assert.Equal(t, float64(2), items[0]["n"])

	// A query parameter overrides the header.
	resp = c.Do(t, http.MethodGet, "/items?paging-offset=6", nil, "", h)
	body = spantest.ValidateResponse(t, resp, http.StatusOK)
	items = decodeItems(t, body)
	assert.Equal(t, float64(6), items[0]["n"])
}

func TestPaging_limit_above_route_maximum_is_api_limit_error(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, pagedItemsRouter(10, 2))

	resp := c.Do(t, http.MethodGet, "/items?paging-limit=3", nil, "", nil)
	spantest.ValidateError(t, resp, span.ClassAPILimit)
}

func TestPaging_invalid_values_are_request_validation_errors(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, pagedItemsRouter(10, 2))

	for _, query := range []string{
		"paging-offset=abc",
		"paging-offset=-1",
		"paging-limit=zero",
		"paging-limit=0",
	} {
		resp := c.Do(t, http.MethodGet, "/items?"+query, nil, "", nil)
		spantest.ValidateError(t, resp, span.ClassRequestValidation)
	}
}

func TestPaging_links_preserve_other_query_parameters(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, pagedItemsRouter(10, 2))

	resp := c.Do(t, http.MethodGet, "/items?filter=active", nil, "", nil)
	spantest.ValidateResponse(t, resp, http.StatusOK)

	next := resp.Header.Get(span.HeaderPagingNext)
	assert.Contains(t, next, "filter=active")
	assert.Contains(t, next, "paging-offset=2")
	assert.Contains(t, next, "paging-limit=2")
}

func TestPaging_unaligned_offset_recovers_from_links(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, pagedItemsRouter(10, 5))

	resp := c.Do(t, http.MethodGet, "/items?paging-offset=5&paging-limit=2", nil, "", nil)
	spantest.ValidateResponse(t, resp, http.StatusOK)

	pg, err := span.PagingFromHeaders(resp.Header)
	require.NoError(t, err)
	assert.Equal(t, 5, pg.Offset, "offset recovered from navigation links, not page arithmetic")
	assert.Equal(t, 2, pg.Limit)
}

func TestPaging_default_limit_below_maximum(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, pagedItemsRouter(10, 5, span.WithDefaultLimit(2)))

	// No parameters: the default limit applies.
	resp := c.Do(t, http.MethodGet, "/items", nil, "", nil)
	body := spantest.ValidateResponse(t, resp, http.StatusOK)
	assert.Len(t, decodeItems(t, body), 2)

	// The client may still raise the limit up to the route maximum.
	resp = c.Do(t, http.MethodGet, "/items?paging-limit=5", nil, "", nil)
	body = spantest.ValidateResponse(t, resp, http.StatusOK)
	assert.Len(t, decodeItems(t, body), 5)
}

func TestPaging_undeclared_route_reports_sentinel(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Get(router, "/plain", func(_ context.Context, req *span.Request, resp *span.Response) error {
		if _, err := req.Paging(); err != span.ErrPagingNotDeclared {
			return fmt.Errorf("request paging error = %v", err)
		}
		if _, err := resp.Paging(); err != span.ErrPagingNotDeclared {
			return fmt.Errorf("response paging error = %v", err)
		}
		resp.SetMedia(map[string]any{"ok": true})
		return nil
	})

	c := spantest.NewClient(t, router)
	resp := c.Do(t, http.MethodGet, "/plain", nil, "", nil)
	spantest.ValidateResponse(t, resp, http.StatusOK)
	assert.Empty(t, resp.Header.Get(span.HeaderPagingLimit), "no paging headers on undeclared routes")
}

func TestPaging_total_unreported_omits_navigation_totals(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Get(router, "/stream", func(_ context.Context, _ *span.Request, resp *span.Response) error {
		// TotalItems stays unset.
		resp.SetMedia([]map[string]any{{"n": 0}})
		return nil
	}, span.WithPaging(2))

	c := spantest.NewClient(t, router)
	resp := c.Do(t, http.MethodGet, "/stream", nil, "", nil)
	spantest.ValidateResponse(t, resp, http.StatusOK)

	assert.Equal(t, "2", resp.Header.Get(span.HeaderPagingLimit))
	assert.Empty(t, resp.Header.Get(span.HeaderPagingTotalItems))
	assert.Empty(t, resp.Header.Get(span.HeaderPagingTotalPages))
	assert.Empty(t, resp.Header.Get(span.HeaderPagingNext))
}

func TestPagingFromHeaders_requires_paging_headers(t *testing.T) {
	t.Parallel()

	_, err := span.PagingFromHeaders(http.Header{})
	assert.Error(t, err)
}
