package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"authgate/core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/postgres/schema.sql
var postgresSchema string

const pgUniqueViolation = "23505"

// PostgresRepository reads the users and sessions tables in the database
// the authentication library writes to.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*core.User, error) {
	query := `
		SELECT id, name, email, email_verified, image, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user core.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.EmailVerified,
		&user.Image,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user *core.User) error {
	query := `
		INSERT INTO users (id, name, email, email_verified, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.EmailVerified,
		user.Image,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return translatePgError(err)
}

func (r *PostgresRepository) CreateSession(ctx context.Context, session *core.Session) error {
	query := `
		INSERT INTO sessions (id, token_key_hash, user_id, created_at, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.TokenKeyHash,
		session.UserID,
		session.CreatedAt,
		session.ExpiresAt,
		session.IPAddress,
		session.UserAgent,
	)
	return translatePgError(err)
}

func (r *PostgresRepository) FindSessionByID(ctx context.Context, sessionID string) (*core.Session, error) {
	query := `
		SELECT id, token_key_hash, user_id, created_at, expires_at, ip_address, user_agent
		FROM sessions
		WHERE id = $1
	`

	var session core.Session
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.TokenKeyHash,
		&session.UserID,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.IPAddress,
		&session.UserAgent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *PostgresRepository) DeleteSessionByID(ctx context.Context, sessionID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return core.ErrAlreadyExists
	}
	return err
}
