package engine

import (
	"fmt"
	"slices"

	"github.com/mockdeck/mockdeck/internal/matching"
	"github.com/mockdeck/mockdeck/pkg/mock"
)

type route struct {
	pattern matching.Pattern
	request mock.Request
}

// Router resolves a method and path to the most specific mock definition.
// It is immutable once built and safe for concurrent use.
type Router struct {
	routes map[mock.Method][]route
}

// NewRouter builds a router from a request set. Routes for each method are
// ordered most specific first.
func NewRouter(set *mock.RequestSet) (*Router, error) {
	r := &Router{routes: make(map[mock.Method][]route)}
	if set == nil {
		return r, nil
	}

	for _, req := range set.All() {
		p, err := matching.ParsePattern(req.Path)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", req.Key(), err)
		}
		r.routes[req.Method] = append(r.routes[req.Method], route{pattern: p, request: req})
	}

	for m := range r.routes {
		slices.SortStableFunc(r.routes[m], func(a, b route) int {
			return matching.Compare(b.pattern, a.pattern)
		})
	}
	return r, nil
}

// Resolve returns the definition for method and path.
func (r *Router) Resolve(method mock.Method, path string) (mock.Request, bool) {
	segments := mock.SplitPath(path)
	for _, rt := range r.routes[method] {
		if rt.pattern.Match(segments) {
			return rt.request, true
		}
	}
	return mock.Request{}, false
}

// Len returns the number of registered routes.
func (r *Router) Len() int {
	n := 0
	for _, rs := range r.routes {
		n += len(rs)
	}
	return n
}
