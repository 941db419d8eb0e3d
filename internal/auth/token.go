package auth

import (
	"crypto/rand"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenValidator validates user tokens for authentication.
// It looks up tokens in the token store and updates last-seen timestamps.
type TokenValidator struct {
	store   TokenStore
	timeNow func() time.Time
}

// NewTokenValidator creates a new token validator.
func NewTokenValidator(store TokenStore) *TokenValidator {
	return &TokenValidator{
		store:   store,
		timeNow: time.Now,
	}
}

// ValidateToken checks if the given token is valid and returns the user ID
// it was issued to. Returns ErrTokenInvalid for malformed, unknown or
// mismatched tokens; store failures are returned as-is.
func (tv *TokenValidator) ValidateToken(token string) (userID string, err error) {
	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return "", ErrTokenInvalid
	}

	stored, err := tv.store.GetToken(id)
	if err != nil {
		return "", fmt.Errorf("lookup token: %w", err)
	}
	if stored == nil {
		log.Printf("auth: token validation failed (unknown token id)")
		return "", ErrTokenInvalid
	}

	// bcrypt.CompareHashAndPassword handles timing-safe comparison
	if err := bcrypt.CompareHashAndPassword([]byte(stored.TokenHash), []byte(secret)); err != nil {
		log.Printf("auth: token validation failed for token %s", id)
		return "", ErrTokenInvalid
	}

	if err := tv.store.UpdateLastSeen(id, tv.timeNow()); err != nil {
		// Log but don't fail - validation succeeded
		log.Printf("auth: failed to update last_seen for token %s: %v", id, err)
	}

	return stored.UserID, nil
}

// Issuer mints new tokens for users.
type Issuer struct {
	store   TokenStore
	cost    int
	timeNow func() time.Time
}

// NewIssuer creates an Issuer hashing with bcrypt.DefaultCost.
func NewIssuer(store TokenStore) *Issuer {
	return &Issuer{
		store:   store,
		cost:    bcrypt.DefaultCost,
		timeNow: time.Now,
	}
}

// Issue creates a token for userID and returns the stored record along with
// the raw token. The raw token is not recoverable afterwards.
func (i *Issuer) Issue(userID, name string) (*UserToken, string, error) {
	if userID == "" {
		return nil, "", fmt.Errorf("user id is required")
	}

	id := uuid.New().String()
	secret := generateSecureToken()

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), i.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash token: %w", err)
	}

	now := i.timeNow().UTC()
	record := &UserToken{
		ID:        id,
		UserID:    userID,
		Name:      name,
		TokenHash: string(hash),
		CreatedAt: now,
		LastSeen:  now,
	}

	if err := i.store.SaveToken(record); err != nil {
		return nil, "", fmt.Errorf("save token: %w", err)
	}

	log.Printf("auth: issued token %s for user %s", id, userID)
	return record, id + "." + secret, nil
}

// generateSecureToken generates a secure random secret.
// Returns a hex-encoded string suitable for use in a bearer token.
func generateSecureToken() string {
	// 32 bytes = 256 bits of entropy
	const tokenBytes = 32

	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		// This should never happen with crypto/rand
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}

	return fmt.Sprintf("%x", b)
}
