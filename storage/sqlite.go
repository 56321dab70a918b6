package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgate/core"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite/schema.sql
var sqliteSchema string

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	if _, err := r.db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return err
	}
	_, err := r.db.Exec(sqliteSchema)
	return err
}

func (r *SQLiteRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*core.User, error) {
	query := `
		SELECT id, name, email, email_verified, image, created_at, updated_at
		FROM users
		WHERE id = ?
	`

	var user core.User
	var idStr string
	var createdAt, updatedAt int64

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.EmailVerified,
		&user.Image,
		&createdAt,
		&updatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", idStr, err)
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, user *core.User) error {
	query := `
		INSERT INTO users (id, name, email, email_verified, image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID.String(),
		user.Name,
		user.Email,
		user.EmailVerified,
		user.Image,
		user.CreatedAt.Unix(),
		user.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrAlreadyExists
		}
		return err
	}

	return nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, session *core.Session) error {
	query := `
		INSERT INTO sessions (id, token_key_hash, user_id, created_at, expires_at, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.TokenKeyHash,
		session.UserID.String(),
		session.CreatedAt.Unix(),
		session.ExpiresAt.Unix(),
		session.IPAddress,
		session.UserAgent,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrAlreadyExists
		}
		return err
	}

	return nil
}

func (r *SQLiteRepository) FindSessionByID(ctx context.Context, sessionID string) (*core.Session, error) {
	query := `
		SELECT id, token_key_hash, user_id, created_at, expires_at, ip_address, user_agent
		FROM sessions
		WHERE id = ?
	`

	var session core.Session
	var userIDStr string
	var createdAt, expiresAt int64

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.TokenKeyHash,
		&userIDStr,
		&createdAt,
		&expiresAt,
		&session.IPAddress,
		&session.UserAgent,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	session.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userIDStr, err)
	}
	session.CreatedAt = time.Unix(createdAt, 0)
	session.ExpiresAt = time.Unix(expiresAt, 0)

	return &session, nil
}

func (r *SQLiteRepository) DeleteSessionByID(ctx context.Context, sessionID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrNotFound
	}

	return nil
}

func (r *SQLiteRepository) DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID.String())
	return err
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return count, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "PRIMARY KEY") ||
		strings.Contains(errMsg, "unique")
}
