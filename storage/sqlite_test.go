package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"authgate/core"
	"authgate/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// repositoryContract runs against any core.Repository implementation.
type repositoryContract struct {
	suite.Suite
	newRepo func() core.Repository
	repo    core.Repository
	ctx     context.Context
}

func (s *repositoryContract) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.newRepo()
}

func (s *repositoryContract) TearDownTest() {
	s.repo.Close()
}

func (s *repositoryContract) createUser(email string) *core.User {
	now := time.Now().Truncate(time.Second)
	user := &core.User{
		ID:            uuid.New(),
		Name:          "Test User",
		Email:         email,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.Require().NoError(s.repo.CreateUser(s.ctx, user))
	return user
}

func (s *repositoryContract) createSession(userID uuid.UUID, expiresIn time.Duration) (*core.Session, string) {
	token, parts, err := core.GenerateSessionToken()
	s.Require().NoError(err)

	session := &core.Session{
		ID:           parts.ID,
		TokenKeyHash: core.HashTokenKey(parts.Key),
		UserID:       userID,
		CreatedAt:    time.Now().Truncate(time.Second),
		ExpiresAt:    time.Now().Add(expiresIn).Truncate(time.Second),
		IPAddress:    "198.51.100.7",
		UserAgent:    "test-agent",
	}
	s.Require().NoError(s.repo.CreateSession(s.ctx, session))
	return session, token
}

func (s *repositoryContract) TestUserRoundTrip() {
	user := s.createUser("roundtrip@example.com")

	found, err := s.repo.FindUserByID(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal(user.ID, found.ID)
	s.Equal(user.Email, found.Email)
	s.True(found.EmailVerified)
	s.True(user.CreatedAt.Equal(found.CreatedAt))

	_, err = s.repo.FindUserByID(s.ctx, uuid.New())
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *repositoryContract) TestDuplicateUser() {
	user := s.createUser("dup@example.com")

	err := s.repo.CreateUser(s.ctx, user)
	s.ErrorIs(err, core.ErrAlreadyExists)
}

func (s *repositoryContract) TestSessionRoundTrip() {
	user := s.createUser("session@example.com")
	session, token := s.createSession(user.ID, time.Hour)

	parts, err := core.ParseSessionToken(token)
	s.Require().NoError(err)

	found, err := s.repo.FindSessionByID(s.ctx, parts.ID)
	s.Require().NoError(err)
	s.Equal(session.UserID, found.UserID)
	s.Equal("198.51.100.7", found.IPAddress)
	s.True(core.VerifyTokenKey(parts.Key, found.TokenKeyHash))
	s.True(session.ExpiresAt.Equal(found.ExpiresAt))

	s.ErrorIs(s.repo.CreateSession(s.ctx, session), core.ErrAlreadyExists)
}

func (s *repositoryContract) TestDeleteSession() {
	user := s.createUser("delete@example.com")
	session, _ := s.createSession(user.ID, time.Hour)

	s.Require().NoError(s.repo.DeleteSessionByID(s.ctx, session.ID))

	_, err := s.repo.FindSessionByID(s.ctx, session.ID)
	s.ErrorIs(err, core.ErrNotFound)
	s.ErrorIs(s.repo.DeleteSessionByID(s.ctx, session.ID), core.ErrNotFound)
}

func (s *repositoryContract) TestDeleteAllUserSessions() {
	user := s.createUser("all@example.com")
	other := s.createUser("other@example.com")
	first, _ := s.createSession(user.ID, time.Hour)
	second, _ := s.createSession(user.ID, time.Hour)
	kept, _ := s.createSession(other.ID, time.Hour)

	s.Require().NoError(s.repo.DeleteAllUserSessions(s.ctx, user.ID))

	for _, id := range []string{first.ID, second.ID} {
		_, err := s.repo.FindSessionByID(s.ctx, id)
		s.ErrorIs(err, core.ErrNotFound)
	}
	_, err := s.repo.FindSessionByID(s.ctx, kept.ID)
	s.NoError(err)
}

type SQLiteRepositorySuite struct {
	repositoryContract
}

func TestSQLiteRepository(t *testing.T) {
	s := &SQLiteRepositorySuite{}
	s.newRepo = func() core.Repository {
		repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "authgate.db"))
		if err != nil {
			t.Fatalf("failed to open sqlite repository: %v", err)
		}
		return repo
	}
	suite.Run(t, s)
}

func (s *SQLiteRepositorySuite) TestDeleteExpiredSessions() {
	user := s.createUser("expired@example.com")
	live, _ := s.createSession(user.ID, time.Hour)
	expired, _ := s.createSession(user.ID, -time.Hour)

	count, err := s.repo.DeleteExpiredSessions(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	_, err = s.repo.FindSessionByID(s.ctx, expired.ID)
	s.ErrorIs(err, core.ErrNotFound)
	_, err = s.repo.FindSessionByID(s.ctx, live.ID)
	s.NoError(err)
}

func (s *SQLiteRepositorySuite) TestSessionRequiresUser() {
	_, parts, err := core.GenerateSessionToken()
	s.Require().NoError(err)

	err = s.repo.CreateSession(s.ctx, &core.Session{
		ID:           parts.ID,
		TokenKeyHash: core.HashTokenKey(parts.Key),
		UserID:       uuid.New(),
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	s.Error(err)
}

type MockRepositorySuite struct {
	repositoryContract
}

func TestMockRepository(t *testing.T) {
	s := &MockRepositorySuite{}
	s.newRepo = func() core.Repository {
		return storage.NewMockRepository()
	}
	suite.Run(t, s)
}

func (s *MockRepositorySuite) TestFixtures() {
	session, err := s.repo.FindSessionByID(s.ctx, storage.Session1.ID)
	s.Require().NoError(err)

	parts, err := core.ParseSessionToken(storage.Session1Token)
	s.Require().NoError(err)
	s.True(core.VerifyTokenKey(parts.Key, session.TokenKeyHash))

	_, err = s.repo.FindUserByID(s.ctx, storage.SessionOrphan.UserID)
	s.ErrorIs(err, core.ErrNotFound)

	count, err := s.repo.DeleteExpiredSessions(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}
