// Package auth issues and validates the bearer tokens that bind a WebSocket
// connection to a user identity.
//
// A token has the form "<token-id>.<secret>". The token ID selects a single
// stored row and the secret is checked against that row's bcrypt hash, so
// validation costs one bcrypt comparison regardless of how many tokens exist.
//
// Security considerations:
//   - Secrets carry 256 bits of entropy from crypto/rand
//   - Only bcrypt hashes are stored; the raw token is shown once when issued
//   - Deleting a token row revokes it for all future connections
package auth

import (
	"errors"
	"time"

	"github.com/boardsync/collab/internal/storage"
)

// UserToken is an alias for storage.UserToken to avoid duplicating the struct.
type UserToken = storage.UserToken

// ErrTokenInvalid is returned when a token is malformed, unknown or revoked.
var ErrTokenInvalid = errors.New("invalid token")

// TokenStore defines the interface for persisting user tokens.
// This interface is implemented by storage.SQLiteStore.
// Implementations must be safe for concurrent access.
type TokenStore interface {
	// SaveToken persists a token, replacing any token with the same ID.
	SaveToken(token *UserToken) error

	// GetToken retrieves a token by ID.
	// Returns nil, nil if the token does not exist.
	GetToken(id string) (*UserToken, error)

	// UpdateLastSeen records when a token was last used.
	UpdateLastSeen(id string, t time.Time) error
}
