// Package router matches incoming request paths to configured routes.
package router

import (
	"sort"
	"strings"

	"github.com/vyrodovalexey/edgegate/internal/config"
	"github.com/vyrodovalexey/edgegate/internal/util"
)

// Route is one resolved routing rule.
type Route struct {
	PathPrefix   string
	Service      string
	AuthRequired bool
	AllowedRoles []string
	Class        string
}

// Table holds routes ordered for longest-prefix matching. It is immutable
// after construction; configuration reloads build a new table.
type Table struct {
	routes []Route
}

// NewTable builds a table from route configuration. Routes are sorted by
// prefix length descending so the most specific prefix wins.
func NewTable(cfgs []config.RouteConfig) *Table {
	routes := make([]Route, 0, len(cfgs))
	for _, rc := range cfgs {
		routes = append(routes, Route{
			PathPrefix:   strings.TrimSuffix(rc.PathPrefix, "/"),
			Service:      rc.Service,
			AuthRequired: rc.AuthRequired,
			AllowedRoles: rc.AllowedRoles,
			Class:        rc.Class,
		})
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].PathPrefix) > len(routes[j].PathPrefix)
	})
	return &Table{routes: routes}
}

// Match finds the route whose prefix matches the request path. A prefix
// only matches on a segment boundary, so /api/user does not capture
// /api/users.
func (t *Table) Match(method, path string) (*Route, error) {
	for i := range t.routes {
		rt := &t.routes[i]
		if matchesPrefix(path, rt.PathPrefix) {
			return rt, nil
		}
	}
	return nil, util.NewRouteNotFoundError(method, path)
}

// Routes returns the table contents in matching order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// matchesPrefix reports whether path falls under prefix at a segment
// boundary.
func matchesPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
