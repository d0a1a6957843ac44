package span

import (
	"container/list"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// projectionPrefix marks projection directives in the query string:
// project.<field>=1 selects a field, project.<field>=0 excludes it.
const projectionPrefix = "project."

// projectionDirectives is a parsed, normalized projection request. Exactly
// one of only/exclude is populated; directives never mix polarity.
type projectionDirectives struct {
	only    []string
	exclude []string
}

// parseProjection extracts projection directives from query parameters.
// Nil means the request asked for no projection.
func parseProjection(q url.Values) (*projectionDirectives, error) {
	var d projectionDirectives
	for key, values := range q {
		field, ok := strings.CutPrefix(key, projectionPrefix)
		if !ok || field == "" {
			continue
		}
		if len(values) != 1 {
			return nil, ClassRequestValidation.Errorf("projection directive %q supplied more than once", key)
		}
		switch values[0] {
		case "1":
			d.only = append(d.only, field)
		case "0":
			d.exclude = append(d.exclude, field)
		default:
			return nil, ClassRequestValidation.Errorf("projection directive %q must be 0 or 1, got %q", key, values[0])
		}
	}

	if len(d.only) == 0 && len(d.exclude) == 0 {
		return nil, nil
	}
	if len(d.only) > 0 && len(d.exclude) > 0 {
		return nil, ClassRequestValidation.New("projection directives mix inclusion and exclusion")
	}

	sort.Strings(d.only)
	sort.Strings(d.exclude)
	return &d, nil
}

// cacheKey renders the normalized directive set for cache lookup.
func (d *projectionDirectives) cacheKey() string {
	if len(d.only) > 0 {
		return "only:" + strings.Join(d.only, ",")
	}
	return "exclude:" + strings.Join(d.exclude, ",")
}

// narrow derives the projected schema variant. The route's base restriction
// is already baked into base's visible field set, so narrowing reduces to:
// client-only must select visible fields (a selection outside the visible
// set is rejected — the client can never observe or widen past the server's
// restriction), while client excludes union with the base restriction, so
// excluding an already-hidden field is a no-op.
func (d *projectionDirectives) narrow(base Schema) (Schema, error) {
	visible := make(map[string]bool)
	for _, name := range base.Fields() {
		visible[name] = true
	}
	for _, name := range d.only {
		if !visible[name] {
			return nil, ClassRequestValidation.Errorf("cannot project field %q", name)
		}
	}

	exclude := d.exclude
	if len(exclude) > 0 {
		exclude = make([]string, 0, len(d.exclude))
		for _, name := range d.exclude {
			if visible[name] {
				exclude = append(exclude, name)
			}
		}
	}

	derived, err := base.Restrict(d.only, exclude)
	if err != nil {
		return nil, ClassRequestValidation.Wrap(err, "invalid projection")
	}
	return derived, nil
}

// CacheStats reports projection cache activity for one route. Hits are
// monotonic and route-specific.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

type projectionKey struct {
	route      string
	schema     string
	directives string
}

type projectionEntry struct {
	key    projectionKey
	schema Schema
}

// projectionCache is a bounded LRU of derived schema variants, shared
// process-wide and safe for concurrent use. Entries are scoped per route so
// identical directives on different routes never collide.
type projectionCache struct {
	mu      sync.Mutex
	cap     int
	entries map[projectionKey]*list.Element
	order   *list.List // front = most recent
	stats   map[string]*CacheStats
}

const defaultProjectionCacheSize = 128

func newProjectionCache(capacity int) *projectionCache {
	if capacity <= 0 {
		capacity = defaultProjectionCacheSize
	}
	return &projectionCache{
		cap:     capacity,
		entries: make(map[projectionKey]*list.Element),
		order:   list.New(),
		stats:   make(map[string]*CacheStats),
	}
}

// derive returns the cached schema variant for the key, computing and
// inserting it on a miss. Duplicate computation under concurrent misses of
// the same key is acceptable; the map stays consistent.
func (c *projectionCache) derive(route string, base Schema, d *projectionDirectives) (Schema, error) {
	key := projectionKey{
		route:      route,
		schema:     schemaIdentity(base),
		directives: d.cacheKey(),
	}

	c.mu.Lock()
	st := c.stats[route]
	if st == nil {
		st = &CacheStats{}
		c.stats[route] = st
	}
	if el, ok := c.entries[key]; ok {
		st.Hits++
		c.order.MoveToFront(el)
		schema := el.Value.(*projectionEntry).schema
		c.mu.Unlock()
		return schema, nil
	}
	st.Misses++
	c.mu.Unlock()

	derived, err := d.narrow(base)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		// Lost a race computing the same key; keep the existing entry.
		c.order.MoveToFront(el)
		return el.Value.(*projectionEntry).schema, nil
	}
	c.entries[key] = c.order.PushFront(&projectionEntry{key: key, schema: derived})
	for len(c.entries) > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*projectionEntry).key)
	}
	return derived, nil
}

func (c *projectionCache) routeStats(route string) CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.stats[route]; st != nil {
		return *st
	}
	return CacheStats{}
}

// schemaIdentity fingerprints the declared schema instance bound to a
// route. Declared schemas are fixed at registration, so the instance
// address is a stable identity; non-pointer schemas fall back to their
// type and field set.
func schemaIdentity(s Schema) string {
	if ss, ok := s.(*StructSchema); ok {
		return fmt.Sprintf("%p", ss)
	}
	return fmt.Sprintf("%T:%s", s, strings.Join(s.Fields(), ","))
}
