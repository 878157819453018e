package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Endpoint is the type-erased view of an operation used by transports.
type Endpoint interface {
	Path() string
	Kind() Kind
	Invoke(ctx context.Context, session *Session, rawInput json.RawMessage) (any, error)
}

// Router indexes endpoints by path.
type Router struct {
	endpoints map[string]Endpoint
}

// NewRouter builds a router, rejecting duplicate paths.
func NewRouter(endpoints ...Endpoint) (*Router, error) {
	router := &Router{endpoints: make(map[string]Endpoint, len(endpoints))}
	for _, endpoint := range endpoints {
		if err := router.add(endpoint); err != nil {
			return nil, err
		}
	}
	return router, nil
}

// MergeRouters combines routers into one, rejecting duplicate paths.
func MergeRouters(routers ...*Router) (*Router, error) {
	merged := &Router{endpoints: make(map[string]Endpoint)}
	for _, router := range routers {
		if router == nil {
			continue
		}
		for _, endpoint := range router.endpoints {
			if err := merged.add(endpoint); err != nil {
				return nil, err
			}
		}
	}
	return merged, nil
}

func (r *Router) add(endpoint Endpoint) error {
	if endpoint == nil {
		return fmt.Errorf("rpc: nil endpoint")
	}
	if _, exists := r.endpoints[endpoint.Path()]; exists {
		return fmt.Errorf("rpc: duplicate procedure %q", endpoint.Path())
	}
	r.endpoints[endpoint.Path()] = endpoint
	return nil
}

// Lookup returns the endpoint registered under path.
func (r *Router) Lookup(path string) (Endpoint, bool) {
	endpoint, ok := r.endpoints[path]
	return endpoint, ok
}

// Paths lists registered procedure paths in lexical order.
func (r *Router) Paths() []string {
	paths := make([]string, 0, len(r.endpoints))
	for path := range r.endpoints {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
