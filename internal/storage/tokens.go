package storage

// tokens.go contains SQLiteStore methods for user bearer tokens.
// A token binds a WebSocket connection to a user identity.

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// UserToken is an issued bearer token. Only its bcrypt hash is stored.
type UserToken struct {
	ID        string
	UserID    string
	Name      string
	TokenHash string
	CreatedAt time.Time
	LastSeen  time.Time
}

// SaveToken persists a token.
// Uses INSERT OR REPLACE to handle both new tokens and updates.
func (s *SQLiteStore) SaveToken(token *UserToken) error {
	if token == nil {
		return errors.New("token cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: saving token %s for user %s", token.ID, token.UserID)

	const query = `
		INSERT OR REPLACE INTO user_tokens
			(id, user_id, name, token_hash, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		token.ID,
		token.UserID,
		token.Name,
		token.TokenHash,
		token.CreatedAt.Format(time.RFC3339Nano),
		token.LastSeen.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	return nil
}

// GetToken retrieves a token by ID.
// Returns nil, nil if the token does not exist.
func (s *SQLiteStore) GetToken(id string) (*UserToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, user_id, name, token_hash, created_at, last_seen
		FROM user_tokens
		WHERE id = ?
	`

	token, err := scanToken(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	return token, nil
}

// ListTokens returns all issued tokens, oldest first.
func (s *SQLiteStore) ListTokens() ([]*UserToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, user_id, name, token_hash, created_at, last_seen
		FROM user_tokens
		ORDER BY created_at ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*UserToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}

	return tokens, nil
}

// DeleteToken removes a token from storage.
// Returns nil if the token does not exist (idempotent delete).
func (s *SQLiteStore) DeleteToken(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: deleting token %s", id)

	if _, err := s.db.Exec("DELETE FROM user_tokens WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}

	return nil
}

// UpdateLastSeen updates the last_seen timestamp for a token.
// Returns ErrTokenNotFound if the token does not exist.
func (s *SQLiteStore) UpdateLastSeen(id string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE user_tokens SET last_seen = ? WHERE id = ?`, t.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrTokenNotFound
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*UserToken, error) {
	var (
		token     UserToken
		createdAt string
		lastSeen  string
	)

	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Name,
		&token.TokenHash,
		&createdAt,
		&lastSeen,
	)
	if err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	token.CreatedAt = t

	t, err = time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	token.LastSeen = t

	return &token, nil
}
