package storage

import (
	"context"
	"sync"
	"time"

	"authgate/core"

	"github.com/google/uuid"
)

var (
	User1 = &core.User{
		ID:            uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Name:          "Mock User One",
		Email:         "user1@mock.test",
		EmailVerified: true,
		Image:         "https://mock.test/avatar1.jpg",
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	User2 = &core.User{
		ID:        uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Email:     "user2@mock.test",
		CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	AllUsers = []*core.User{User1, User2}
)

const (
	Session1Key       = "test_key_1"
	Session2Key       = "test_key_2"
	Session3Key       = "test_key_3"
	SessionOrphanKey  = "test_key_orphan"
	orphanUserIDValue = "99999999-9999-9999-9999-999999999999"
)

var (
	Session1 = &core.Session{
		ID:           "session_id_1",
		TokenKeyHash: core.HashTokenKey(Session1Key),
		UserID:       User1.ID,
		CreatedAt:    time.Now().Add(-24 * time.Hour),
		ExpiresAt:    time.Now().Add(7 * 24 * time.Hour),
		IPAddress:    "203.0.113.10",
		UserAgent:    "Mozilla/5.0 (mock)",
	}

	Session2 = &core.Session{
		ID:           "session_id_2",
		TokenKeyHash: core.HashTokenKey(Session2Key),
		UserID:       User2.ID,
		CreatedAt:    time.Now().Add(-24 * time.Hour),
		ExpiresAt:    time.Now().Add(7 * 24 * time.Hour),
	}

	Session3 = &core.Session{
		ID:           "session_id_3_expired",
		TokenKeyHash: core.HashTokenKey(Session3Key),
		UserID:       User1.ID,
		CreatedAt:    time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:    time.Date(2023, 1, 31, 23, 59, 59, 0, time.UTC),
	}

	SessionOrphan = &core.Session{
		ID:           "session_id_orphan",
		TokenKeyHash: core.HashTokenKey(SessionOrphanKey),
		UserID:       uuid.MustParse(orphanUserIDValue),
		CreatedAt:    time.Now().Add(-time.Hour),
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	Session1Token      = "AGS_session_id_1." + Session1Key
	Session2Token      = "AGS_session_id_2." + Session2Key
	Session3Token      = "AGS_session_id_3_expired." + Session3Key
	SessionOrphanToken = "AGS_session_id_orphan." + SessionOrphanKey

	AllSessions = []*core.Session{Session1, Session2, Session3, SessionOrphan}
)

// MockRepository is an in-memory Repository seeded with the fixtures above.
type MockRepository struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*core.User
	sessions map[string]*core.Session

	// Track method calls for verification
	FindUserByIDCalls    int
	FindSessionByIDCalls int
	DeleteSessionCalls   int
}

func NewMockRepository() *MockRepository {
	repo := &MockRepository{
		users:    make(map[uuid.UUID]*core.User),
		sessions: make(map[string]*core.Session),
	}

	for _, user := range AllUsers {
		u := *user
		repo.users[u.ID] = &u
	}

	for _, session := range AllSessions {
		s := *session
		repo.sessions[s.ID] = &s
	}

	return repo
}

func (m *MockRepository) Close() error {
	return nil
}

func (m *MockRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindUserByIDCalls++

	user, ok := m.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (m *MockRepository) CreateUser(ctx context.Context, user *core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return core.ErrAlreadyExists
	}
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return core.ErrAlreadyExists
		}
	}

	u := *user
	m.users[u.ID] = &u
	return nil
}

func (m *MockRepository) CreateSession(ctx context.Context, session *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return core.ErrAlreadyExists
	}

	s := *session
	m.sessions[s.ID] = &s
	return nil
}

func (m *MockRepository) FindSessionByID(ctx context.Context, sessionID string) (*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindSessionByIDCalls++

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, core.ErrNotFound
	}
	s := *session
	return &s, nil
}

func (m *MockRepository) DeleteSessionByID(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteSessionCalls++

	if _, ok := m.sessions[sessionID]; !ok {
		return core.ErrNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *MockRepository) DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, session := range m.sessions {
		if session.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MockRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var count int64
	for id, session := range m.sessions {
		if session.Expired(now) {
			delete(m.sessions, id)
			count++
		}
	}
	return count, nil
}

// HasSession reports whether sessionID is still stored.
func (m *MockRepository) HasSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	return ok
}
