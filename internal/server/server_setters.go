package server

import (
	"log"
	"net/http"
	"time"

	apperrors "github.com/boardsync/collab/internal/errors"
	"github.com/boardsync/collab/internal/presence"
)

// Addr returns the server's listening address.
// This is used by the status handler to report the configured address.
func (s *Server) Addr() string {
	return s.addr
}

// ClientCount returns the number of live sessions.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// RoomCount returns the number of workspaces with at least one session.
func (s *Server) RoomCount() int {
	return s.rooms.RoomCount()
}

// MembersOf returns the connection IDs of the sessions bound to workspaceID.
func (s *Server) MembersOf(workspaceID string) []string {
	members := s.rooms.MembersOf(workspaceID)
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if c, ok := m.(*Client); ok {
			ids = append(ids, c.id)
		}
	}
	return ids
}

// SetTokenValidator sets the function used to validate bearer tokens.
func (s *Server) SetTokenValidator(validator TokenValidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenValidator = validator
}

// SetRequireAuth sets whether /ws requires a valid bearer token.
func (s *Server) SetRequireAuth(require bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireAuth = require
}

// RequireAuth reports whether authentication is required.
func (s *Server) RequireAuth() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requireAuth
}

// SetAllowedOrigins restricts WebSocket upgrades to the given Origin values.
// An empty list allows any origin.
func (s *Server) SetAllowedOrigins(origins []string) {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(allowed) == 0 {
		s.allowedOrigins = nil
		return
	}
	s.allowedOrigins = allowed
}

// SetJoinVerifier replaces the access verifier built from the store.
func (s *Server) SetJoinVerifier(v JoinVerifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = v
}

func (s *Server) joinVerifier() JoinVerifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifier
}

// SetCursorInterval sets the minimum spacing between relayed cursor events
// for sessions that connect afterwards. Non-positive uses the default.
func (s *Server) SetCursorInterval(d time.Duration) {
	if d <= 0 {
		d = presence.DefaultInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursorInterval = d
}

// SetSendBuffer sets the per-session outbound queue length for sessions
// that connect afterwards. Non-positive uses the default.
func (s *Server) SetSendBuffer(n int) {
	if n <= 0 {
		n = channelBufferSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendBuffer = n
}

// SetMaxProtocolViolations sets how many malformed events close a session.
// Negative means never; zero uses the default.
func (s *Server) SetMaxProtocolViolations(n int) {
	if n == 0 {
		n = defaultMaxProtocolViolations
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxProtocolViolations = n
}

// MaxProtocolViolations returns the configured limit (negative = never).
func (s *Server) MaxProtocolViolations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxProtocolViolations
}

// SetStatusHandler sets the handler for the /status endpoint.
func (s *Server) SetStatusHandler(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusHandler = h
}

// SetRevokeHandler sets the handler for the /tokens/{id}/revoke endpoint.
func (s *Server) SetRevokeHandler(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeHandler = h
}

// CloseTokenConnections closes every session that authenticated with the
// given token and refuses the token for any handshake still in flight.
// Each closed session goes through normal disconnect cleanup.
// Returns the number of sessions closed.
func (s *Server) CloseTokenConnections(tokenID string) int {
	if tokenID == "" {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokedTokens[tokenID] = struct{}{}

	var closed int
	for client := range s.clients {
		if client.tokenID == tokenID {
			client.closeWith(apperrors.Unauthorized("token revoked"))
			closed++
		}
	}
	if closed > 0 {
		log.Printf("server: closed %d session(s) for revoked token %s", closed, tokenID)
	}
	return closed
}
