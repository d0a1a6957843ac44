package span

// Group is a collection of routes under a shared prefix with shared middleware.
type Group struct {
	owner      *Router
	prefix     string
	middleware []Middleware
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithGroupMiddleware adds middleware applied to every route in the group.
func WithGroupMiddleware(mw ...Middleware) GroupOption {
	return func(g *Group) {
		g.middleware = append(g.middleware, mw...)
	}
}

// Group creates a route group with the given prefix and options.
func (r *Router) Group(prefix string, opts ...GroupOption) *Group {
	g := &Group{
		owner:  r,
		prefix: prefix,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// addRoute implements Registrar for Group.
func (g *Group) addRoute(rt *route) {
	rt.pattern = g.prefix + rt.pattern
	g.owner.addRoute(rt)
}

func (g *Group) router() *Router { return g.owner }

func (g *Group) routeMiddleware() []Middleware { return g.middleware }
