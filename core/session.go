package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrNoSession means the request carries no session cookie.
var ErrNoSession = errors.New("no session")

var tracer = otel.Tracer("authgate/core")

// SessionLookup answers whether the request headers carry a valid session.
// The error result is reserved for lookups that could not decide.
type SessionLookup interface {
	Check(ctx context.Context, header http.Header) (bool, error)
}

// SessionLookupFunc adapts a function to SessionLookup.
type SessionLookupFunc func(ctx context.Context, header http.Header) (bool, error)

func (f SessionLookupFunc) Check(ctx context.Context, header http.Header) (bool, error) {
	return f(ctx, header)
}

// SessionService reads sessions issued by the authentication library.
type SessionService struct {
	repo   Repository
	cache  *SessionCache
	config *SessionConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSessionService creates the store-backed lookup. cache may be nil.
func NewSessionService(repo Repository, cache *SessionCache, config *SessionConfig, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:   repo,
		cache:  cache,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Check reports whether header names a live session with an existing user,
// the same test Current applies. A valid cache cookie answers without the store.
func (s *SessionService) Check(ctx context.Context, header http.Header) (bool, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Check")
	defer span.End()

	if cached, err := s.fromCache(header); err == nil {
		span.SetAttributes(attribute.Bool("session.cached", true))
		s.logger.Debug("session served from cache", zap.String("session_id", cached.SessionID))
		return true, nil
	}

	_, _, err := s.Current(ctx, header)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrExpiredToken):
		span.SetAttributes(attribute.String("session.absent_reason", err.Error()))
		return false, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "session lookup failed")
		return false, err
	}
}

// Resolve loads and validates the session named by the token cookie.
func (s *SessionService) Resolve(ctx context.Context, header http.Header) (*Session, error) {
	parts, err := s.tokenFromHeader(header)
	if err != nil {
		return nil, err
	}

	session, err := s.repo.FindSessionByID(ctx, parts.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if session.Expired(s.now()) {
		if err := s.repo.DeleteSessionByID(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Warn("failed to delete expired session", zap.String("session_id", session.ID), zap.Error(err))
		}
		return nil, ErrExpiredToken
	}

	if !VerifyTokenKey(parts.Key, session.TokenKeyHash) {
		return nil, ErrInvalidToken
	}

	return session, nil
}

// Current returns the session and its user.
func (s *SessionService) Current(ctx context.Context, header http.Header) (*Session, *User, error) {
	session, err := s.Resolve(ctx, header)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.repo.FindUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}

	return session, user, nil
}

// SignOut deletes the session named by the token cookie. A missing or
// unknown session is not an error.
func (s *SessionService) SignOut(ctx context.Context, header http.Header) error {
	parts, err := s.tokenFromHeader(header)
	if err != nil {
		return nil
	}

	if err := s.repo.DeleteSessionByID(ctx, parts.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RevokeUser deletes every session of userID.
func (s *SessionService) RevokeUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.DeleteAllUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

func (s *SessionService) PruneExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return count, nil
}

// IssueCache writes the cache cookie for session. It is a no-op when the
// cache is disabled.
func (s *SessionService) IssueCache(w http.ResponseWriter, session *Session) error {
	if s.cache == nil {
		return nil
	}

	signed, expiresAt, err := s.cache.Sign(session)
	if err != nil {
		return err
	}

	setCookie(w, s.config.CacheCookie, signed, expiresAt, s.config.SecureCookies)
	return nil
}

// ClearCookies removes both session cookies from the client.
func (s *SessionService) ClearCookies(w http.ResponseWriter) {
	clearCookie(w, s.config.TokenCookie, s.config.SecureCookies)
	clearCookie(w, s.config.CacheCookie, s.config.SecureCookies)
}

// fromCache accepts a cache cookie only alongside a token cookie for the
// same session.
func (s *SessionService) fromCache(header http.Header) (*CachedSession, error) {
	if s.cache == nil {
		return nil, ErrNoSession
	}

	raw, err := cookieValue(header, s.config.CacheCookie)
	if err != nil {
		return nil, err
	}

	parts, err := s.tokenFromHeader(header)
	if err != nil {
		return nil, err
	}

	cached, err := s.cache.Verify(raw)
	if err != nil {
		return nil, err
	}
	if cached.SessionID != parts.ID {
		return nil, ErrInvalidSessionCache
	}

	return cached, nil
}

func (s *SessionService) tokenFromHeader(header http.Header) (*SessionTokenParts, error) {
	raw, err := cookieValue(header, s.config.TokenCookie)
	if err != nil {
		return nil, err
	}
	return ParseSessionToken(raw)
}
