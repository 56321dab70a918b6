package core

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// DefaultExclusions are the paths the gate never evaluates: API routes,
// static assets, the image endpoint, well-known public files and anything
// ending in a file extension.
var DefaultExclusions = []string{
	`^/api(/.*)?$`,
	`^/static/`,
	`^/_image(/.*)?$`,
	`^/metrics$`,
	`^/favicon\.ico$`,
	`^/logo\.png$`,
	`/[^/]*\.[A-Za-z0-9]+$`,
}

// ExclusionMatcher matches paths the gate lets through without a lookup.
type ExclusionMatcher struct {
	patterns []*regexp.Regexp
}

// NewExclusionMatcher compiles patterns as regular expressions.
func NewExclusionMatcher(patterns []string) (*ExclusionMatcher, error) {
	m := &ExclusionMatcher{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether path matches any exclusion pattern.
func (m *ExclusionMatcher) Match(path string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Gate applies the access rules in front of the page handlers.
type Gate struct {
	rules      AccessRules
	lookup     SessionLookup
	exclusions *ExclusionMatcher
	metrics    *Metrics
	logger     *zap.Logger
}

func NewGate(lookup SessionLookup, rules AccessRules, exclusions *ExclusionMatcher, metrics *Metrics, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		rules:      rules,
		lookup:     lookup,
		exclusions: exclusions,
		metrics:    metrics,
		logger:     logger,
	}
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := NormalizePath(r.URL.Path)
		if g.exclusions.Match(path) {
			next.ServeHTTP(w, r)
			return
		}

		verdict := g.Decide(r)
		if verdict == Allow {
			next.ServeHTTP(w, r)
			return
		}

		http.Redirect(w, r, verdict.Location(), http.StatusTemporaryRedirect)
	})
}

// Decide runs the session lookup once and evaluates the request path.
func (g *Gate) Decide(r *http.Request) Verdict {
	path := NormalizePath(r.URL.Path)
	hasSession := g.hasSession(r)

	verdict := g.rules.Evaluate(path, hasSession)
	g.metrics.observeDecision(g.rules.Classify(path), verdict)
	return verdict
}

// hasSession treats every lookup failure, including a panic, as no session.
func (g *Gate) hasSession(r *http.Request) (present bool) {
	start := time.Now()
	failed := false
	defer func() {
		if rec := recover(); rec != nil {
			failed = true
			present = false
			g.logger.Error("session lookup panicked",
				zap.String("path", r.URL.Path),
				zap.Any("panic", rec),
			)
		}
		g.metrics.observeLookup(time.Since(start).Seconds(), failed)
	}()

	ok, err := g.lookup.Check(r.Context(), r.Header)
	if err != nil {
		failed = true
		g.logger.Warn("session lookup failed, treating request as signed out",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		return false
	}
	return ok
}
