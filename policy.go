package reqgate

import (
	"strings"
	"time"
)

// policy is the runtime form of one limiter tier: immutable after Build,
// shared read-only across concurrent evaluations.
type policy struct {
	class     PolicyClass
	max       int
	window    time.Duration
	keys      KeyResolver
	responder RejectionResponder
}

// classify maps method+path onto a policy class. Rules run in a fixed
// order and the first match wins; requests matching nothing are not rate
// limited at all.
func (g *Gate) classify(method, path string) PolicyClass {
	r := &g.config.Routing

	if r.AuthPathPrefix != "" && strings.HasPrefix(path, r.AuthPathPrefix) {
		return ClassAuth
	}
	for _, seg := range r.SensitiveSegments {
		if pathHasSegment(path, seg) {
			return ClassSensitive
		}
	}
	if r.SearchSegment != "" && pathHasSegment(path, r.SearchSegment) {
		return ClassSearch
	}
	if g.isUnsafeMethod(method) {
		return ClassWrite
	}
	if method == r.SafeReadMethod {
		return ClassRead
	}
	return ClassNone
}

func (g *Gate) isUnsafeMethod(method string) bool {
	for _, m := range g.config.Routing.UnsafeMethods {
		if method == m {
			return true
		}
	}
	return false
}

// pathHasSegment reports whether path contains seg as a whole "/"-split
// segment, so "delete" matches "/api/teams/delete/3" but not
// "/api/deletions".
func pathHasSegment(path, seg string) bool {
	for len(path) > 0 {
		path = strings.TrimPrefix(path, "/")
		next := path
		if i := strings.IndexByte(path, '/'); i >= 0 {
			next = path[:i]
			path = path[i:]
		} else {
			path = ""
		}
		if next == seg {
			return true
		}
	}
	return false
}

func buildPolicies(cfg Config, defaultKeys KeyResolver) map[PolicyClass]*policy {
	table := map[PolicyClass]PolicyConfig{
		ClassAuth:      cfg.Limits.Auth,
		ClassWrite:     cfg.Limits.Write,
		ClassRead:      cfg.Limits.Read,
		ClassSensitive: cfg.Limits.Sensitive,
		ClassSearch:    cfg.Limits.Search,
	}

	policies := make(map[PolicyClass]*policy, len(table))
	for class, pc := range table {
		if pc.Disabled {
			continue
		}
		policies[class] = &policy{
			class:  class,
			max:    pc.MaxRequests,
			window: pc.Window,
			keys:   defaultKeys,
		}
	}
	return policies
}
