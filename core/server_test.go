package core_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"authgate/core"
	"authgate/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var githubAndMagicLink = core.MapSource{
	"GITHUB_CLIENT_ID":     "gh-id",
	"GITHUB_CLIENT_SECRET": "gh-secret",
	"MAGIC_LINK":           "true",
}

type testServer struct {
	handler http.Handler
	repo    *storage.MockRepository
}

func setupTestServer(t *testing.T, source core.ConfigSource, limiter *core.RateLimiter) *testServer {
	t.Helper()

	config := &core.Config{}
	config.Session.CacheSecret = testCacheSecret
	config.ApplyDefaults()

	repo := storage.NewMockRepository()
	cache := core.NewSessionCache(config.Session.CacheSecret, config.Session.CacheDuration())
	sessions := core.NewSessionService(repo, cache, &config.Session, nil)

	exclusions, err := core.NewExclusionMatcher(config.Gate.Exclude)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	gate := core.NewGate(sessions, core.AccessRules{}, exclusions, core.NewMetrics(registry), nil)

	server, err := core.NewServer(sessions, config, source, nil)
	require.NoError(t, err)

	return &testServer{
		handler: server.Routes(core.RouterOptions{
			Gate:    gate,
			Limiter: limiter,
			Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}),
		repo: repo,
	}
}

func (s *testServer) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.AddCookie(tokenCookie(token))
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func TestHandleHome(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	for _, token := range []string{"", storage.Session1Token} {
		w := server.do(http.MethodGet, "/", token)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, w.Body.String(), "Your Homepage")
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}
}

func TestHandleSignIn_ListsConfiguredMethods(t *testing.T) {
	server := setupTestServer(t, githubAndMagicLink, nil)

	w := server.do(http.MethodGet, "/auth/sign", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Continue with GitHub")
	assert.Contains(t, body, "provider=github")
	assert.Contains(t, body, "callbackURL=http%3A%2F%2Flocalhost%3A3000%2Fprofile")
	assert.NotContains(t, body, "Continue with Google")
	assert.Contains(t, body, `action="/api/auth/sign-in/magic-link"`)
	assert.NotContains(t, body, "No sign-in methods are configured.")
}

func TestHandleSignIn_NothingConfigured(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	w := server.do(http.MethodGet, "/auth/sign", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No sign-in methods are configured.")
	assert.NotContains(t, w.Body.String(), "<form")
}

func TestHandleSignIn_ShowsError(t *testing.T) {
	server := setupTestServer(t, githubAndMagicLink, nil)

	w := server.do(http.MethodGet, "/auth/sign?error=%3Cb%3Edenied%3C%2Fb%3E", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "&lt;b&gt;denied&lt;/b&gt;")
}

func TestHandleSignIn_SignedInRedirectsToProfile(t *testing.T) {
	server := setupTestServer(t, githubAndMagicLink, nil)

	w := server.do(http.MethodGet, "/auth/sign", storage.Session1Token)

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/profile", w.Header().Get("Location"))
}

func TestHandleProfile_Anonymous(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	w := server.do(http.MethodGet, "/profile", "")

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/auth/sign", w.Header().Get("Location"))
}

func TestHandleProfile_SignedIn(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	w := server.do(http.MethodGet, "/profile", storage.Session1Token)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Mock User One")
	assert.Contains(t, body, "user1@mock.test")
	assert.Contains(t, body, "Email Verified")
	assert.Contains(t, body, "203.0.113.10")

	var cacheCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == core.DefaultCacheCookie {
			cacheCookie = c
		}
	}
	require.NotNil(t, cacheCookie)
	assert.NotEmpty(t, cacheCookie.Value)
}

func TestHandleProfile_AnonymousUserName(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	w := server.do(http.MethodGet, "/profile", storage.Session2Token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Anonymous User")
	assert.Contains(t, w.Body.String(), "Email Not Verified")
}

func TestHandleProfile_SessionWithoutUser(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	w := server.do(http.MethodGet, "/profile", storage.SessionOrphanToken)

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/auth/sign", w.Header().Get("Location"))
}

func TestHandleSignOut(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	w := server.do(http.MethodPost, "/auth/sign-out", storage.Session1Token)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/auth/sign", w.Header().Get("Location"))
	assert.False(t, server.repo.HasSession(storage.Session1.ID))
	assert.Equal(t, 1, server.repo.DeleteSessionCalls)

	cleared := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	assert.True(t, cleared[core.DefaultTokenCookie])
	assert.True(t, cleared[core.DefaultCacheCookie])

	w = server.do(http.MethodGet, "/profile", storage.Session1Token)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
}

func TestHandleSignOut_RequiresPost(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	w := server.do(http.MethodGet, "/auth/sign-out", storage.Session1Token)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.True(t, server.repo.HasSession(storage.Session1.ID))
}

func TestHandleProviders(t *testing.T) {
	server := setupTestServer(t, githubAndMagicLink, nil)

	w := server.do(http.MethodGet, "/api/providers", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Providers []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"providers"`
		MagicLink bool `json:"magic_link"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Providers, 1)
	assert.Equal(t, "github", resp.Providers[0].ID)
	assert.Equal(t, "GitHub", resp.Providers[0].Name)
	assert.True(t, resp.MagicLink)
}

func TestHandleProviders_EmptyList(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	w := server.do(http.MethodGet, "/api/providers", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"providers":[],"magic_link":false}`, w.Body.String())
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	w := server.do(http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestNotFound(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)

	w := server.do(http.MethodGet, "/does-not-exist", storage.Session1Token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "does not exist")

	// Unknown paths are protected, so anonymous visitors are sent to sign in first.
	w = server.do(http.MethodGet, "/does-not-exist", "")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, nil)
	server.do(http.MethodGet, "/profile", "")

	w := server.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "authgate_gate_decisions_total"))
}

func TestRateLimit(t *testing.T) {
	server := setupTestServer(t, core.MapSource{}, core.NewRateLimiter(1))

	w := server.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = server.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "rate_limited", resp["error"])

	// Pages outside the limited routes are unaffected.
	w = server.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// browse follows redirects from path the way a browser would, keeping the
// cookies the responses set or clear in jar.
func (s *testServer) browse(t *testing.T, path string, jar map[string]string) (*httptest.ResponseRecorder, string) {
	t.Helper()

	for hop := 0; hop < 6; hop++ {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for name, value := range jar {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
		w := httptest.NewRecorder()
		s.handler.ServeHTTP(w, req)

		for _, c := range w.Result().Cookies() {
			if c.MaxAge < 0 {
				delete(jar, c.Name)
			} else {
				jar[c.Name] = c.Value
			}
		}

		if w.Code < 300 || w.Code >= 400 {
			return w, path
		}
		path = w.Header().Get("Location")
	}

	t.Fatalf("still redirecting after 6 hops, last location %q", path)
	return nil, ""
}

func TestHandleProfile_RevokedSessionWithCacheCookie(t *testing.T) {
	server := setupTestServer(t, githubAndMagicLink, nil)
	jar := map[string]string{core.DefaultTokenCookie: storage.Session1Token}

	w, _ := server.browse(t, "/profile", jar)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, jar, core.DefaultCacheCookie)

	require.NoError(t, server.repo.DeleteAllUserSessions(context.Background(), storage.User1.ID))

	w, final := server.browse(t, "/profile", jar)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/auth/sign", final)
	assert.Contains(t, w.Body.String(), "Continue with GitHub")
	assert.NotContains(t, jar, core.DefaultTokenCookie)
	assert.NotContains(t, jar, core.DefaultCacheCookie)
}

func TestHandleProfile_SessionWithoutUserReachesSignIn(t *testing.T) {
	server := setupTestServer(t, githubAndMagicLink, nil)
	jar := map[string]string{core.DefaultTokenCookie: storage.SessionOrphanToken}

	w, final := server.browse(t, "/profile", jar)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/auth/sign", final)
}
