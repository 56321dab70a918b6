package integration_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"authgate/core"
	"authgate/storage"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type ProvidersResponse struct {
	Providers []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"providers"`
	MagicLink bool `json:"magic_link"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// newClient returns a client that reports redirects instead of following them.
func newClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(baseURL, path, token string) (*http.Response, error) {
	req, _ := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: core.DefaultTokenCookie, Value: token})
	}
	return newClient().Do(req)
}

func signOut(baseURL, token string) (*http.Response, error) {
	req, _ := http.NewRequest(http.MethodPost, baseURL+"/auth/sign-out", nil)
	req.AddCookie(&http.Cookie{Name: core.DefaultTokenCookie, Value: token})
	return newClient().Do(req)
}

// seedSession writes a user and a session the way the authentication
// library would, and returns the session token cookie value.
func seedSession(dsn, email string, expiresIn time.Duration) (string, string, error) {
	repo, err := storage.NewSQLiteRepository(dsn)
	if err != nil {
		return "", "", err
	}
	defer repo.Close()

	ctx := context.Background()
	now := time.Now()
	user := &core.User{
		ID:            uuid.New(),
		Name:          "Integration User",
		Email:         email,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return "", "", err
	}

	token, parts, err := core.GenerateSessionToken()
	if err != nil {
		return "", "", err
	}
	session := &core.Session{
		ID:           parts.ID,
		TokenKeyHash: core.HashTokenKey(parts.Key),
		UserID:       user.ID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(expiresIn),
		UserAgent:    "integration-test",
	}
	if err := repo.CreateSession(ctx, session); err != nil {
		return "", "", err
	}

	return token, parts.ID, nil
}

func countSessions(dsn string) (int, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}

func sessionExists(dsn, sessionID string) (bool, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID).Scan(&count)
	return count > 0, err
}

func sessionUserID(dsn, sessionID string) (string, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return "", err
	}
	defer db.Close()

	var userID string
	err = db.QueryRow("SELECT user_id FROM sessions WHERE id = ?", sessionID).Scan(&userID)
	return userID, err
}

func cleanDatabase(dsn string) error {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec("DELETE FROM sessions"); err != nil {
		return err
	}
	_, err = db.Exec("DELETE FROM users")
	return err
}

func parseProvidersResponse(resp *http.Response) (*ProvidersResponse, error) {
	var result ProvidersResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func parseStatusResponse(resp *http.Response) (*StatusResponse, error) {
	var result StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func waitForServer(baseURL string, maxAttempts int) error {
	client := &http.Client{Timeout: 1 * time.Second}
	for i := 0; i < maxAttempts; i++ {
		resp, err := client.Get(baseURL + "/api/health")
		if err == nil && resp.StatusCode == 200 {
			resp.Body.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("server failed to start after %d attempts", maxAttempts)
}
