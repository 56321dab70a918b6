package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Repository is the store shared with the authentication library. The
// library writes users and sessions; this service reads them, and deletes
// sessions on sign-out and pruning.
type Repository interface {
	// User operations

	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	CreateUser(ctx context.Context, user *User) error

	// Session operations

	CreateSession(ctx context.Context, session *Session) error

	FindSessionByID(ctx context.Context, sessionID string) (*Session, error)

	DeleteSessionByID(ctx context.Context, sessionID string) error

	DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error

	DeleteExpiredSessions(ctx context.Context) (int64, error)

	Close() error
}
