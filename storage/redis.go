package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"authgate/core"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps sessions as JSON values whose TTL matches the
// session expiry, so expired sessions disappear on their own.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

func NewRedisRepository(ctx context.Context, cfg RedisConfig) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisRepositoryFromClient(client, cfg.Prefix), nil
}

func NewRedisRepositoryFromClient(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "authgate:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func (r *RedisRepository) userKey(id uuid.UUID) string {
	return r.prefix + "user:" + id.String()
}

func (r *RedisRepository) sessionKey(id string) string {
	return r.prefix + "session:" + id
}

func (r *RedisRepository) userSessionsKey(id uuid.UUID) string {
	return r.prefix + "user_sessions:" + id.String()
}

func (r *RedisRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*core.User, error) {
	var user core.User
	if err := r.getJSON(ctx, r.userKey(id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *RedisRepository) CreateUser(ctx context.Context, user *core.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.userKey(user.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !created {
		return core.ErrAlreadyExists
	}
	return nil
}

func (r *RedisRepository) CreateSession(ctx context.Context, session *core.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s: expires_at must be in the future", session.ID)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.sessionKey(session.ID), data, ttl).Result()
	if err != nil {
		return err
	}
	if !created {
		return core.ErrAlreadyExists
	}

	return r.client.SAdd(ctx, r.userSessionsKey(session.UserID), session.ID).Err()
}

func (r *RedisRepository) FindSessionByID(ctx context.Context, sessionID string) (*core.Session, error) {
	var session core.Session
	if err := r.getJSON(ctx, r.sessionKey(sessionID), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *RedisRepository) DeleteSessionByID(ctx context.Context, sessionID string) error {
	session, err := r.FindSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.sessionKey(sessionID))
		pipe.SRem(ctx, r.userSessionsKey(session.UserID), sessionID)
		return nil
	})
	return err
}

func (r *RedisRepository) DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	setKey := r.userSessionsKey(userID)
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, r.sessionKey(id))
		}
		pipe.Del(ctx, setKey)
		return nil
	})
	return err
}

// DeleteExpiredSessions only trims stale IDs from the per-user index;
// the session values themselves expire through their TTL.
func (r *RedisRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	var removed int64
	iter := r.client.Scan(ctx, 0, r.prefix+"user_sessions:*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		ids, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return removed, err
		}
		for _, id := range ids {
			exists, err := r.client.Exists(ctx, r.sessionKey(id)).Result()
			if err != nil {
				return removed, err
			}
			if exists == 0 {
				if err := r.client.SRem(ctx, setKey, id).Err(); err != nil {
					return removed, err
				}
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (r *RedisRepository) getJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
