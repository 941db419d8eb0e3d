package server

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/boardsync/collab/internal/document"
)

// StatusResponse contains server status returned by the /status endpoint.
// The "collab status" command renders it.
type StatusResponse struct {
	// ListeningAddress is the address the server is listening on.
	ListeningAddress string `json:"listening_address"`

	// ConnectedSessions is the number of live WebSocket sessions.
	ConnectedSessions int `json:"connected_sessions"`

	// ActiveRooms is the number of workspaces with at least one session.
	ActiveRooms int `json:"active_rooms"`

	// UptimeSeconds is how long the server has been running, in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// TLSEnabled indicates whether the server is using TLS.
	TLSEnabled bool `json:"tls_enabled"`

	// RequireAuth indicates whether /ws requires a bearer token.
	RequireAuth bool `json:"require_auth"`

	// ProtocolVersion is the version tag carried on document events.
	ProtocolVersion string `json:"protocol_version"`
}

// StatusHandler handles HTTP requests for server status.
// This endpoint is restricted to local machine addresses.
type StatusHandler struct {
	server     *Server
	startTime  time.Time
	tlsEnabled bool
}

// NewStatusHandler creates a new StatusHandler.
// The handler captures the current time as the start time for uptime.
func NewStatusHandler(s *Server, tlsEnabled bool) *StatusHandler {
	return &StatusHandler{
		server:     s,
		startTime:  time.Now(),
		tlsEnabled: tlsEnabled,
	}
}

// ServeHTTP handles GET /status. Non-local requests receive 403 and other
// methods receive 405.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "Forbidden: status endpoint is local-only", http.StatusForbidden)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		ListeningAddress:  h.server.Addr(),
		ConnectedSessions: h.server.ClientCount(),
		ActiveRooms:       h.server.RoomCount(),
		UptimeSeconds:     int64(time.Since(h.startTime).Seconds()),
		TLSEnabled:        h.tlsEnabled,
		RequireAuth:       h.server.RequireAuth(),
		ProtocolVersion:   document.ProtocolVersion,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// isLoopbackRequest checks if the HTTP request came from a loopback address.
// Returns true for 127.0.0.0/8 (IPv4) and ::1 (IPv6).
func isLoopbackRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		log.Printf("server: failed to parse RemoteAddr %q: %v", r.RemoteAddr, err)
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		log.Printf("server: failed to parse IP from host %q", host)
		return false
	}

	return ip.IsLoopback()
}
