package router

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"example.com/listingfs/internal/config"
	"example.com/listingfs/internal/logger"
	"example.com/listingfs/internal/server"
)

// Router holds the routing table and dispatches requests.
// Every matching route is tried in priority order until one handler accepts the
// request; a handler that declines forwards the request to the next route.
type Router struct {
	routes []*routeEntry
	log    *logger.Logger
}

type routeEntry struct {
	route    config.Route
	handler  server.Handler
	rank     int
	order    int
	segments []string // decoded pattern segments, used for Prefix matching
}

// MatchedRoute is one candidate for a request.
type MatchedRoute struct {
	Route   config.Route
	Handler server.Handler
	Rank    int
	// Segments are the decoded path segments below the matched pattern.
	Segments []string
}

// NewRouter creates and initializes a new Router.
// Handlers are instantiated here, once per route, so that a misconfigured
// handler fails startup instead of every request. Routes are assumed to have
// been validated by the config loader.
func NewRouter(routes []config.Route, registry *server.HandlerRegistry, lg *logger.Logger) (*Router, error) {
	if registry == nil {
		return nil, fmt.Errorf("handler registry cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	entries := make([]*routeEntry, 0, len(routes))
	for i, route := range routes {
		h, err := registry.CreateHandler(route.HandlerType, route.HandlerConfig, lg)
		if err != nil {
			lg.Error("Failed to create handler for route", logger.LogFields{
				"path_pattern": route.PathPattern,
				"handler_type": route.HandlerType,
				"error":        err.Error(),
			})
			return nil, fmt.Errorf("routing.routes[%d] (%s %s): %w", i, route.MatchType, route.PathPattern, err)
		}

		rank := server.DefaultRank
		if ranker, ok := h.(server.Ranker); ok {
			rank = ranker.Rank()
		}
		if route.Rank != nil {
			rank = *route.Rank
		}

		entries = append(entries, &routeEntry{
			route:    route,
			handler:  h,
			rank:     rank,
			order:    i,
			segments: patternSegments(route.PathPattern),
		})
	}

	// Lower rank first; at equal rank Exact beats Prefix and the longest
	// pattern wins; declaration order breaks the remaining ties.
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.route.MatchType != b.route.MatchType {
			return a.route.MatchType == config.MatchTypeExact
		}
		if len(a.route.PathPattern) != len(b.route.PathPattern) {
			return len(a.route.PathPattern) > len(b.route.PathPattern)
		}
		return a.order < b.order
	})

	for _, e := range entries {
		lg.Debug("Route registered", logger.LogFields{
			"path_pattern": e.route.PathPattern,
			"match_type":   string(e.route.MatchType),
			"handler_type": e.route.HandlerType,
			"rank":         e.rank,
		})
	}

	return &Router{routes: entries, log: lg}, nil
}

func patternSegments(pattern string) []string {
	trimmed := strings.Trim(pattern, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// splitRequestPath splits the escaped path into segments and decodes each one
// separately, so an encoded '/' stays inside its segment.
func splitRequestPath(escapedPath string) ([]string, error) {
	raw := strings.Split(strings.TrimPrefix(escapedPath, "/"), "/")
	out := make([]string, len(raw))
	for i, seg := range raw {
		dec, err := url.PathUnescape(seg)
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

// FindRoutes returns every route matching req, in the order they are tried.
func (r *Router) FindRoutes(req *http.Request) []MatchedRoute {
	reqSegments, err := splitRequestPath(req.URL.EscapedPath())
	if err != nil {
		r.log.Debug("Undecodable request path", logger.LogFields{"path": req.URL.EscapedPath(), "error": err.Error()})
		return nil
	}

	var matches []MatchedRoute
	for _, e := range r.routes {
		switch e.route.MatchType {
		case config.MatchTypeExact:
			if req.URL.Path != e.route.PathPattern {
				continue
			}
			matches = append(matches, MatchedRoute{Route: e.route, Handler: e.handler, Rank: e.rank})
		case config.MatchTypePrefix:
			rest, ok := stripPrefix(reqSegments, e.segments)
			if !ok {
				continue
			}
			matches = append(matches, MatchedRoute{Route: e.route, Handler: e.handler, Rank: e.rank, Segments: rest})
		}
	}
	return matches
}

// stripPrefix reports whether the request segments start with the pattern
// segments and returns what follows them.
func stripPrefix(reqSegments, pattern []string) ([]string, bool) {
	if len(reqSegments) < len(pattern) {
		return nil, false
	}
	for i, p := range pattern {
		if reqSegments[i] != p {
			return nil, false
		}
	}
	return append([]string(nil), reqSegments[len(pattern):]...), true
}

// ServeHTTP tries every matching route in order. If none of them accepts the
// request it sends a 404 Not Found response.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	for _, m := range r.FindRoutes(req) {
		if m.Handler.ServeRoute(w, req, m.Segments) {
			return
		}
		r.log.Debug("Route forwarded request", logger.LogFields{
			"path":         req.URL.Path,
			"path_pattern": m.Route.PathPattern,
			"handler_type": m.Route.HandlerType,
		})
	}

	r.log.Info("No route matched for request", logger.LogFields{
		"path":   req.URL.Path,
		"method": req.Method,
	})
	server.WriteErrorResponse(w, req, http.StatusNotFound, "", r.log)
}
