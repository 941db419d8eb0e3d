package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/boardsync/collab/internal/storage"
)

// TokenStore is the slice of token storage the revoke endpoint needs.
// storage.SQLiteStore implements it.
type TokenStore interface {
	GetToken(id string) (*storage.UserToken, error)
	DeleteToken(id string) error
}

// RevokeTokenHandler handles POST /tokens/{id}/revoke. It deletes the token,
// then closes live sessions that authenticated with it.
type RevokeTokenHandler struct {
	server *Server
	store  TokenStore
}

// NewRevokeTokenHandler creates a handler for the /tokens/{id}/revoke endpoint.
func NewRevokeTokenHandler(server *Server, store TokenStore) *RevokeTokenHandler {
	return &RevokeTokenHandler{server: server, store: store}
}

// RevokeResponse is the success body of the revoke endpoint.
type RevokeResponse struct {
	TokenID           string `json:"token_id"`
	UserID            string `json:"user_id"`
	ConnectionsClosed int    `json:"connections_closed"`
}

// ServeHTTP handles the revoke request. Loopback only.
func (h *RevokeTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		log.Printf("server: rejected token revoke from non-loopback address: %s", r.RemoteAddr)
		writeJSONError(w, http.StatusForbidden, "forbidden", "Token revocation is only available from localhost")
		return
	}

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST is allowed")
		return
	}

	// Path format: /tokens/{id}/revoke
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "tokens" || parts[2] != "revoke" || parts[1] == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_path", "Expected path format: /tokens/{id}/revoke")
		return
	}
	tokenID := parts[1]

	token, err := h.store.GetToken(tokenID)
	if err != nil {
		log.Printf("server: failed to lookup token %s: %v", tokenID, err)
		writeJSONError(w, http.StatusInternalServerError, "lookup_failed", "Failed to lookup token")
		return
	}
	if token == nil {
		writeJSONError(w, http.StatusNotFound, "not_found", "Token not found")
		return
	}

	// Delete first so no new handshake can validate the token.
	if err := h.store.DeleteToken(tokenID); err != nil {
		log.Printf("server: failed to delete token %s: %v", tokenID, err)
		writeJSONError(w, http.StatusInternalServerError, "delete_failed", "Failed to delete token")
		return
	}
	closed := h.server.CloseTokenConnections(tokenID)

	log.Printf("server: revoked token %s for user %s, closed %d session(s)", tokenID, token.UserID, closed)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(RevokeResponse{
		TokenID:           tokenID,
		UserID:            token.UserID,
		ConnectionsClosed: closed,
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
