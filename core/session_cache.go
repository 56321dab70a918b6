package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidSessionCache = errors.New("invalid session cache")

type cacheClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// CachedSession is the subset of a session carried in the cache cookie.
type CachedSession struct {
	SessionID string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// SessionCache signs short-lived snapshots of a session so that repeat
// requests skip the store lookup.
type SessionCache struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewSessionCache(secret string, maxAge time.Duration) *SessionCache {
	return &SessionCache{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Sign returns a token that expires after maxAge or at the session's own
// expiry, whichever comes first.
func (c *SessionCache) Sign(session *Session) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.maxAge)
	if session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}

	claims := &cacheClaims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session cache: %w", err)
	}

	return signed, expiresAt, nil
}

func (c *SessionCache) Verify(tokenString string) (*CachedSession, error) {
	var claims cacheClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidSessionCache
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidSessionCache
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidSessionCache
	}

	return &CachedSession{
		SessionID: claims.SessionID,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
