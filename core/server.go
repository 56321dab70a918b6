package core

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	socialSignInPath    = "/api/auth/sign-in/social"
	magicLinkSignInPath = "/api/auth/sign-in/magic-link"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "sign", "profile", "not_found", "error"}

var templateFuncs = template.FuncMap{
	"displayName": func(name string) string {
		if name == "" {
			return "Anonymous User"
		}
		return name
	},
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return "N/A"
		}
		return t.Format("January 2, 2006")
	},
	"formatTime": func(t time.Time) string {
		return t.Format("January 2, 2006 15:04")
	},
}

type Server struct {
	sessions *SessionService
	config   *Config
	source   ConfigSource
	pages    map[string]*template.Template
	logger   *zap.Logger
}

// NewServer parses the page templates. source supplies provider credentials
// and the magic link flag, and is read on every request.
func NewServer(sessions *SessionService, config *Config, source ConfigSource, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = t
	}

	return &Server{
		sessions: sessions,
		config:   config,
		source:   source,
		pages:    pages,
		logger:   logger,
	}, nil
}

type RouterOptions struct {
	Gate    *Gate
	Limiter *RateLimiter
	Metrics http.Handler
}

// Routes wires the pages behind the access gate.
func (s *Server) Routes(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	if opts.Gate != nil {
		r.Use(opts.Gate.Middleware)
	}

	r.Get(HomePath, s.HandleHome)
	r.Get(SignInPath, s.HandleSignIn)
	r.Get(ProfilePath, s.HandleProfile)
	r.With(opts.Limiter.Middleware).Post("/auth/sign-out", s.HandleSignOut)

	r.Route("/api", func(r chi.Router) {
		r.Use(opts.Limiter.Middleware)
		r.Get("/health", s.HandleHealth)
		r.Get("/providers", s.HandleProviders)
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.NotFound(s.HandleNotFound)

	return r
}

func (s *Server) HandleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "home", nil)
}

type providerButton struct {
	ID   Provider
	Name string
	Href string
}

type signPage struct {
	Providers       []providerButton
	MagicLink       bool
	MagicLinkAction string
	CallbackURL     string
	Error           string
}

func (s *Server) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	page := signPage{
		MagicLink:       ResolveMagicLinkEnabled(s.source),
		MagicLinkAction: magicLinkSignInPath,
		CallbackURL:     s.callbackURL(),
		Error:           r.URL.Query().Get("error"),
	}

	for _, p := range ResolveAvailableProviders(s.source) {
		q := url.Values{}
		q.Set("provider", string(p))
		q.Set("callbackURL", page.CallbackURL)
		page.Providers = append(page.Providers, providerButton{
			ID:   p,
			Name: ProviderName(p),
			Href: socialSignInPath + "?" + q.Encode(),
		})
	}

	s.render(w, http.StatusOK, "sign", page)
}

type profilePage struct {
	User    *User
	Session *Session
}

func (s *Server) HandleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, user, err := s.sessions.Current(ctx, r.Header)
	if err != nil {
		if isSignedOut(err) {
			// Drop the cache cookie too, or the gate keeps sending the
			// browser back here from the sign-in page.
			s.sessions.ClearCookies(w)
			http.Redirect(w, r, SignInPath, http.StatusTemporaryRedirect)
			return
		}
		s.logger.Error("failed to load profile", zap.Error(err))
		s.renderError(w, http.StatusInternalServerError, "We could not load your profile.")
		return
	}

	if err := s.sessions.IssueCache(w, session); err != nil {
		s.logger.Warn("failed to issue session cache", zap.String("session_id", session.ID), zap.Error(err))
	}

	s.render(w, http.StatusOK, "profile", profilePage{User: user, Session: session})
}

func (s *Server) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if !validateMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.sessions.SignOut(r.Context(), r.Header); err != nil {
		s.logger.Error("failed to sign out", zap.Error(err))
		s.renderError(w, http.StatusInternalServerError, "Failed to sign out.")
		return
	}

	s.sessions.ClearCookies(w)
	http.Redirect(w, r, SignInPath, http.StatusSeeOther)
}

type providerInfo struct {
	ID   Provider `json:"id"`
	Name string   `json:"name"`
}

type providersResponse struct {
	Providers []providerInfo `json:"providers"`
	MagicLink bool           `json:"magic_link"`
}

func (s *Server) HandleProviders(w http.ResponseWriter, r *http.Request) {
	resp := providersResponse{
		Providers: []providerInfo{},
		MagicLink: ResolveMagicLinkEnabled(s.source),
	}
	for _, p := range ResolveAvailableProviders(s.source) {
		resp.Providers = append(resp.Providers, providerInfo{ID: p, Name: ProviderName(p)})
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusNotFound, "not_found", nil)
}

// Helper functions

// callbackURL is where the authentication library sends the browser after
// a successful sign-in.
func (s *Server) callbackURL() string {
	return strings.TrimSuffix(s.config.BaseURL, "/") + ProfilePath
}

func isSignedOut(err error) bool {
	return errors.Is(err, ErrNoSession) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrExpiredToken)
}

func (s *Server) render(w http.ResponseWriter, statusCode int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.pages[name].Execute(&buf, data); err != nil {
		s.logger.Error("failed to render page", zap.String("page", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	w.Write(buf.Bytes())
}

func (s *Server) renderError(w http.ResponseWriter, statusCode int, message string) {
	s.render(w, statusCode, "error", map[string]string{"Message": message})
}

func validateMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
