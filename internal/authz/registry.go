package authz

import (
	"strings"
	"sync"
)

// Registry answers route lookups from an in-memory snapshot of the mapping
// table. The snapshot is replaced wholesale after every mapping mutation, so
// readers never observe a half-applied edit.
//
// Matching is exact method+path first, then template matching where ':name'
// segments match any single path segment. Among matching templates the one
// with the longest literal prefix wins; remaining ties fall to registration
// order. Routes with no mapping are denied by the engine (fail-closed).
type Registry struct {
	mu        sync.RWMutex
	exact     map[string]RouteMapping
	templates []RouteMapping
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]RouteMapping)}
}

// Replace swaps in a full snapshot. Mappings must arrive in registration
// (ID) order; that order is the deterministic tie-breaker.
func (r *Registry) Replace(mappings []RouteMapping) {
	exact := make(map[string]RouteMapping, len(mappings))
	var templates []RouteMapping
	for _, m := range mappings {
		if strings.Contains(m.Path, ":") {
			templates = append(templates, m)
			continue
		}
		key := routeKey(m.Method, m.Path)
		if _, ok := exact[key]; !ok {
			exact[key] = m
		}
	}

	r.mu.Lock()
	r.exact = exact
	r.templates = templates
	r.mu.Unlock()
}

// Lookup finds the mapping for a request. Found=false means the route is
// unmapped.
func (r *Registry) Lookup(method, path string) (RouteMapping, bool) {
	method = strings.ToUpper(method)
	path = normalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.exact[routeKey(method, path)]; ok {
		return m, true
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	best := RouteMapping{}
	bestPrefix := -1
	found := false
	for _, m := range r.templates {
		if m.Method != method {
			continue
		}
		prefix, ok := matchTemplate(m.Path, segments)
		if !ok {
			continue
		}
		if prefix > bestPrefix {
			best = m
			bestPrefix = prefix
			found = true
		}
	}
	return best, found
}

// matchTemplate reports whether the template matches the path segments and,
// if so, how many leading literal segments it shares with the path.
func matchTemplate(template string, segments []string) (int, bool) {
	tsegs := strings.Split(strings.TrimPrefix(template, "/"), "/")
	if len(tsegs) != len(segments) {
		return 0, false
	}
	prefix := 0
	counting := true
	for i, t := range tsegs {
		if strings.HasPrefix(t, ":") {
			counting = false
			continue
		}
		if t != segments[i] {
			return 0, false
		}
		if counting {
			prefix++
		}
	}
	return prefix, true
}

func routeKey(method, path string) string {
	return method + " " + path
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
