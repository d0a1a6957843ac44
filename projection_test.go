package span_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/span"
	"github.com/bjaus/span/spantest"
)

type account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

var testAccount = account{ID: "a1", Name: "ada", Email: "ada@example.com", Notes: "vip"}

func accountRouter(opts ...span.RouteOption) *span.Router {
	router := span.New()
	handler := func(_ context.Context, _ *span.Request, resp *span.Response) error {
		resp.SetMedia(testAccount)
		return nil
	}
	if opts == nil {
		opts = []span.RouteOption{span.WithResponseSchema(span.SchemaOf[account]())}
	}
	span.Get(router, "/account", handler, opts...)
	return router
}

func getJSON(t *testing.T, c *spantest.Client, path string) map[string]any {
	t.Helper()
	resp := c.Do(t, http.MethodGet, path, nil, "", nil)
	body := spantest.ValidateResponse(t, resp, http.StatusOK)

	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}

func TestProjection_only_directives_select_fields(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, accountRouter())

	m := getJSON(t, c, "/account?project.id=1&project.name=1")
	assert.Equal(t, map[string]any{"id": "a1", "name": "ada"}, m)
}

func TestProjection_exclude_directives_remove_fields(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, accountRouter())

	m := getJSON(t, c, "/account?project.notes=0")
	assert.Equal(t, map[string]any{
		"id": "a1", "name": "ada", "email": "ada@example.com",
	}, m)
}

func TestProjection_no_directives_returns_full_document(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, accountRouter())

	m := getJSON(t, c, "/account")
	assert.Len(t, m, 4)
}

func TestProjection_mixed_polarity_is_rejected(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, accountRouter())

	resp := c.Do(t, http.MethodGet, "/account?project.id=1&project.notes=0", nil, "", nil)
	spantest.ValidateError(t, resp, span.ClassRequestValidation)
}

func TestProjection_bad_directive_value_is_rejected(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, accountRouter())

	resp := c.Do(t, http.MethodGet, "/account?project.id=yes", nil, "", nil)
	spantest.ValidateError(t, resp, span.ClassRequestValidation)
}

func TestProjection_repeated_directive_is_rejected(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, accountRouter())

	resp := c.Do(t, http.MethodGet, "/account?project.id=1&project.id=0", nil, "", nil)
	spantest.ValidateError(t, resp, span.ClassRequestValidation)
}

func TestProjection_selecting_hidden_field_is_rejected(t *testing.T) {
	t.Parallel()

	// The route hides notes; clients cannot reach past that.
	c := spantest.NewClient(t, accountRouter(
		span.WithResponseSchema(span.SchemaOf[account](span.Exclude("notes"))),
	))

	resp := c.Do(t, http.MethodGet, "/account?project.notes=1", nil, "", nil)
	spantest.ValidateError(t, resp, span.ClassRequestValidation)

	// Narrowing within the visible set still works.
	m := getJSON(t, c, "/account?project.name=1")
	assert.Equal(t, map[string]any{"name": "ada"}, m)
}

func TestProjection_excluding_hidden_field_is_a_noop(t *testing.T) {
	t.Parallel()

	// Client excludes union with the route's restriction: re-excluding a
	// field the route already hides succeeds and changes nothing.
	c := spantest.NewClient(t, accountRouter(
		span.WithResponseSchema(span.SchemaOf[account](span.Exclude("notes"))),
	))

	m := getJSON(t, c, "/account?project.notes=0")
	assert.Equal(t, map[string]any{
		"id": "a1", "name": "ada", "email": "ada@example.com",
	}, m)

	// Unioning with a visible exclude still subtracts it.
	m = getJSON(t, c, "/account?project.notes=0&project.email=0")
	assert.Equal(t, map[string]any{"id": "a1", "name": "ada"}, m)
}

func TestProjection_unknown_field_is_rejected(t *testing.T) {
	t.Parallel()

	c := spantest.NewClient(t, accountRouter())

	resp := c.Do(t, http.MethodGet, "/account?project.nonexistent=1", nil, "", nil)
	spantest.ValidateError(t, resp, span.ClassRequestValidation)
}

func TestProjection_route_without_schema_rejects_directives(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Get(router, "/raw", func(_ context.Context, _ *span.Request, resp *span.Response) error {
		resp.SetMedia(map[string]any{"free": "form"})
		return nil
	})

	c := spantest.NewClient(t, router)

	resp := c.Do(t, http.MethodGet, "/raw?project.free=1", nil, "", nil)
	spantest.ValidateError(t, resp, span.ClassRequestValidation)

	// Without directives the route is unaffected.
	resp = c.Do(t, http.MethodGet, "/raw", nil, "", nil)
	spantest.ValidateResponse(t, resp, http.StatusOK)
}

func TestProjection_disabled_per_response(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Get(router, "/account", func(_ context.Context, _ *span.Request, resp *span.Response) error {
		resp.ApplyProjection = false
		resp.SetMedia(testAccount)
		return nil
	}, span.WithResponseSchema(span.SchemaOf[account]()))

	c := spantest.NewClient(t, router)

	// Directives are ignored entirely, even malformed ones.
	m := getJSON(t, c, "/account?project.id=1")
	assert.Len(t, m, 4)

	resp := c.Do(t, http.MethodGet, "/account?project.id=yes", nil, "", nil)
	spantest.ValidateResponse(t, resp, http.StatusOK)
}

func TestProjection_skipped_under_dump_ignore(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Get(router, "/account", func(_ context.Context, _ *span.Request, resp *span.Response) error {
		resp.SetMedia(map[string]any{"id": "a1", "name": "ada", "notes": "vip"})
		return nil
	},
		span.WithResponseSchema(span.SchemaOf[account]()),
		span.WithDumpPolicy(span.DumpIgnore),
	)

	c := spantest.NewClient(t, router)

	// Directives still parse (and validate), but no schema derivation or
	// narrowing happens: the media passes through whole.
	m := getJSON(t, c, "/account?project.id=1")
	assert.Len(t, m, 3)
}

func TestProjection_cache_hits_are_per_route(t *testing.T) {
	t.Parallel()

	schema := span.SchemaOf[account]()
	router := span.New()
	handler := func(_ context.Context, _ *span.Request, resp *span.Response) error {
		resp.SetMedia(testAccount)
		return nil
	}
	span.Get(router, "/a", handler, span.WithResponseSchema(schema))
	span.Get(router, "/b", handler, span.WithResponseSchema(schema))

	c := spantest.NewClient(t, router)

	const n = 4
	for range n {
		getJSON(t, c, "/a?project.id=1")
	}

	statsA := router.ProjectionStats(http.MethodGet, "/a")
	assert.Equal(t, uint64(1), statsA.Misses)
	assert.Equal(t, uint64(n-1), statsA.Hits)

	// Identical directives on another route derive independently.
	getJSON(t, c, "/b?project.id=1")
	statsB := router.ProjectionStats(http.MethodGet, "/b")
	assert.Equal(t, uint64(1), statsB.Misses)
	assert.Equal(t, uint64(0), statsB.Hits)

	// Directive order does not matter: normalized sets share an entry.
	getJSON(t, c, "/a?project.name=1&project.id=1")
	getJSON(t, c, "/a?project.id=1&project.name=1")
	statsA = router.ProjectionStats(http.MethodGet, "/a")
	assert.Equal(t, uint64(2), statsA.Misses)
	assert.Equal(t, uint64(n), statsA.Hits)
}

func TestProjection_cache_evicts_least_recently_used(t *testing.T) {
	t.Parallel()

	router := span.New(span.WithProjectionCacheSize(2))
	span.Get(router, "/account", func(_ context.Context, _ *span.Request, resp *span.Response) error {
		resp.SetMedia(testAccount)
		return nil
	}, span.WithResponseSchema(span.SchemaOf[account]()))

	c := spantest.NewClient(t, router)

	getJSON(t, c, "/account?project.id=1")    // miss: {id}
	getJSON(t, c, "/account?project.name=1")  // miss: {name}
	getJSON(t, c, "/account?project.email=1") // miss: {email}, evicts {id}
	getJSON(t, c, "/account?project.id=1")    // miss again after eviction

	stats := router.ProjectionStats(http.MethodGet, "/account")
	assert.Equal(t, uint64(4), stats.Misses)
	assert.Equal(t, uint64(0), stats.Hits)
}
