package router

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pario-ai/toongate/pkg/config"
)

// ErrNoRoute is returned when no upstream prefix matches a path.
var ErrNoRoute = errors.New("no upstream matches path")

// Route is a resolved upstream. Index is its position in the configuration.
type Route struct {
	Index    int
	Upstream config.UpstreamConfig
	Target   *url.URL
}

// Router picks the upstream for a request path.
type Router struct {
	routes []Route
}

// New parses the configured upstreams.
func New(upstreams []config.UpstreamConfig) (*Router, error) {
	if len(upstreams) == 0 {
		return nil, fmt.Errorf("no upstreams configured")
	}
	r := &Router{}
	for i, u := range upstreams {
		target, err := url.Parse(u.URL)
		if err != nil {
			return nil, fmt.Errorf("upstream %q: invalid url: %w", u.Name, err)
		}
		if target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("upstream %q: url %q needs a scheme and host", u.Name, u.URL)
		}
		r.routes = append(r.routes, Route{Index: i, Upstream: u, Target: target})
	}
	return r, nil
}

// Routes returns the configured routes in order.
func (r *Router) Routes() []Route {
	return r.routes
}

// Resolve returns the upstream whose path prefix is the longest match for
// path. Prefixes match whole segments: "/api" matches "/api" and "/api/x"
// but not "/apix". An empty prefix matches everything. Ties go to the
// upstream configured first.
func (r *Router) Resolve(path string) (Route, error) {
	best := -1
	bestLen := -1
	for i, route := range r.routes {
		prefix := route.Upstream.PathPrefix
		if !matches(path, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = i, len(prefix)
		}
	}
	if best < 0 {
		return Route{}, fmt.Errorf("%w: %s", ErrNoRoute, path)
	}
	return r.routes[best], nil
}

func matches(path, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/'
}
