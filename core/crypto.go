package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const sessionTokenPrefix = "AGS_"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type SessionTokenParts struct {
	ID  string // Session ID
	Key string // Secret part, stored only as a hash
}

// GenerateSessionToken creates a token of the form AGS_<id>.<key>.
func GenerateSessionToken() (fullToken string, parts *SessionTokenParts, err error) {
	idBytes := make([]byte, 24)
	if _, err := rand.Read(idBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	id := base64.RawURLEncoding.EncodeToString(idBytes)
	key := base64.RawURLEncoding.EncodeToString(keyBytes)

	return sessionTokenPrefix + id + "." + key, &SessionTokenParts{ID: id, Key: key}, nil
}

func ParseSessionToken(token string) (*SessionTokenParts, error) {
	body, ok := strings.CutPrefix(token, sessionTokenPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s prefix", ErrInvalidToken, sessionTokenPrefix)
	}

	id, key, found := strings.Cut(body, ".")
	if !found {
		return nil, fmt.Errorf("%w: missing separator", ErrInvalidToken)
	}
	if id == "" || key == "" {
		return nil, fmt.Errorf("%w: empty ID or Key", ErrInvalidToken)
	}

	return &SessionTokenParts{ID: id, Key: key}, nil
}

// HashTokenKey hashes a session key for storage. Keys are 256-bit random
// values and are hashed unsalted.
func HashTokenKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func VerifyTokenKey(key, hash string) bool {
	expected := HashTokenKey(key)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(hash)) == 1
}
