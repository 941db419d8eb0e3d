package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/boardsync/collab/internal/errors"
	"github.com/boardsync/collab/internal/presence"
)

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Handle WebSocket connections at the /ws endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Health check endpoint for monitoring
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.mu.RLock()
	statusHandler := s.statusHandler
	revokeHandler := s.revokeHandler
	s.mu.RUnlock()

	// Status endpoint: /status, queried by "collab status".
	if statusHandler != nil {
		mux.Handle("/status", statusHandler)
		log.Printf("server: status endpoint registered at /status")
	}

	// Token revocation endpoint: /tokens/{id}/revoke, used by
	// "collab token revoke" to drop live sessions immediately.
	if revokeHandler != nil {
		mux.Handle("/tokens/", revokeHandler)
		log.Printf("server: token revocation endpoint registered at /tokens/{id}/revoke")
	}

	return mux
}

// handleWebSocket authenticates and upgrades a connection, then starts the
// session's pumps. The session starts Unbound.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	requireAuth := s.requireAuth
	tokenValidator := s.tokenValidator
	stopped := s.stopped
	sendBuffer := s.sendBuffer
	cursorInterval := s.cursorInterval
	s.mu.RUnlock()

	if stopped {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	var userID, tokenID string

	if requireAuth && tokenValidator != nil {
		token := extractBearerToken(r)
		if token == "" {
			log.Printf("server: connection rejected: missing authorization token")
			http.Error(w, apperrors.CodeAuthRequired+": missing token", http.StatusUnauthorized)
			return
		}

		var err error
		userID, err = tokenValidator(token)
		if err != nil {
			log.Printf("server: connection rejected: invalid token: %v", err)
			http.Error(w, apperrors.CodeAuthInvalid+": invalid token", http.StatusUnauthorized)
			return
		}
		tokenID, _, _ = strings.Cut(token, ".")
	}

	// Upgrade performs the handshake and enforces the Origin allow-list.
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: WebSocket upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		conn:     conn,
		send:     make(chan Message, sendBuffer),
		done:     make(chan struct{}),
		server:   s,
		id:       uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		throttle: presence.NewThrottle(cursorInterval),
		tokenID:  tokenID,
		userID:   userID,
		state:    StateConnecting,
	}

	s.mu.Lock()
	_, revoked := s.revokedTokens[tokenID]
	if s.stopped || revoked {
		s.mu.Unlock()
		if revoked {
			log.Printf("server: connection rejected: token %s revoked during handshake", tokenID)
		}
		cancel()
		conn.Close()
		return
	}
	s.clients[client] = true
	s.pumps.Add(2)
	s.mu.Unlock()

	client.setState(StateUnbound)
	if userID != "" {
		log.Printf("server: session %s connected for user %s (%d total)", client.id, userID, s.ClientCount())
	} else {
		log.Printf("server: session %s connected (%d total)", client.id, s.ClientCount())
	}

	go client.writePump()
	go client.readPump()
}

// extractBearerToken extracts the token from an Authorization header.
// Browsers cannot set headers on a WebSocket handshake, so the "token"
// query parameter is accepted as a fallback.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth != "" {
		const bearerPrefix = "Bearer "
		if len(auth) > len(bearerPrefix) {
			prefix := auth[:len(bearerPrefix)]
			if prefix == bearerPrefix || prefix == "bearer " {
				return auth[len(bearerPrefix):]
			}
		}
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}
