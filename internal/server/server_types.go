package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	// gorilla/websocket provides the upgrader, framed reads/writes and
	// ping/pong handling used by every session.
	"github.com/gorilla/websocket"

	"github.com/boardsync/collab/internal/access"
	"github.com/boardsync/collab/internal/document"
	apperrors "github.com/boardsync/collab/internal/errors"
	"github.com/boardsync/collab/internal/presence"
	"github.com/boardsync/collab/internal/room"
)

// channelBufferSize is the default per-session send buffer. A session whose
// buffer fills with document traffic is closed; cursor traffic to a full
// buffer is dropped.
const channelBufferSize = 256

// defaultMaxProtocolViolations is how many malformed or unknown events a
// session may send before it is closed.
const defaultMaxProtocolViolations = 5

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a session may stay silent before it is dropped.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = 30 * time.Second

	// maxMessageSize caps inbound frames. Documents are sent whole.
	maxMessageSize = 4 * 1024 * 1024
)

// Store is everything the server needs from persistence.
// storage.SQLiteStore implements it.
type Store interface {
	access.ProjectStore
	document.Store
}

// JoinVerifier decides join eligibility. access.Verifier implements it.
type JoinVerifier interface {
	CanJoin(ctx context.Context, userID, workspaceID, projectID string) bool
}

// TokenValidator validates bearer tokens for WebSocket connections.
// Returns the user the token was issued to, or an error.
type TokenValidator func(token string) (userID string, err error)

// SessionState is the lifecycle state of a session.
type SessionState int

const (
	// StateConnecting: handshake in progress, no events accepted.
	StateConnecting SessionState = iota
	// StateUnbound: open, only join-workspace is accepted.
	StateUnbound
	// StateBound: joined a workspace.
	StateBound
	// StateClosed: terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Server accepts WebSocket connections and keeps the sessions bound to each
// workspace in sync. It is constructed explicitly and its lifecycle is
// controlled by the caller through StartAsync and Stop.
type Server struct {
	// addr is the address to listen on (e.g., "127.0.0.1:3001")
	addr string

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	// clients tracks all live sessions.
	clients map[*Client]bool

	// revokedTokens holds token IDs revoked while the server runs. A
	// handshake that validated a token before its revocation is refused
	// when it tries to register.
	revokedTokens map[string]struct{}

	// pumps counts running read and write pumps. Stop waits on it so no
	// handler touches the store after Stop returns.
	pumps sync.WaitGroup

	// mu protects clients, revokedTokens, stopped and the settings below.
	mu sync.RWMutex

	// stopped indicates whether the server has been stopped.
	stopped bool

	// httpServer is the underlying HTTP server for shutdown.
	httpServer *http.Server

	// startTime is used for uptime reporting.
	startTime time.Time

	rooms      *room.Registry
	verifier   JoinVerifier
	dispatcher *document.Dispatcher

	// tokenValidator validates tokens for WebSocket authentication.
	tokenValidator TokenValidator

	// requireAuth controls whether /ws rejects connections without a valid
	// token. When false the session adopts the userId of its first join.
	requireAuth bool

	// allowedOrigins restricts the Origin header on upgrade. Empty allows any.
	allowedOrigins map[string]bool

	cursorInterval        time.Duration
	sendBuffer            int
	maxProtocolViolations int

	// statusHandler and revokeHandler are optional loopback endpoints.
	statusHandler http.Handler
	revokeHandler http.Handler
}

// Client is one live session: a WebSocket connection, the user it acts for
// and the workspace it is bound to.
type Client struct {
	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send is a buffered channel for outgoing messages. writePump drains it.
	// It is never closed; done signals shutdown instead.
	send chan Message

	// done is closed to signal the session should shut down.
	done chan struct{}

	// sendOnce guards closing done.
	sendOnce sync.Once

	// cleanupOnce guards the Closed-state cleanup.
	cleanupOnce sync.Once

	// server is a reference back to the parent server.
	server *Server

	// id is the ephemeral connection identifier shown to peers.
	id string

	// ctx is canceled when the session closes, aborting its in-flight work.
	ctx    context.Context
	cancel context.CancelFunc

	// throttle limits cursor and pointer relays.
	throttle *presence.Throttle

	// tokenID is the bearer token this session authenticated with, if any.
	tokenID string

	// violations counts malformed or unknown events.
	// Only the readPump goroutine touches it.
	violations int

	// mu guards the fields below.
	mu sync.Mutex

	// userID is the user this session acts for. Fixed at upgrade when
	// authenticated, otherwise adopted on the first successful join.
	userID string

	// closeReason is why the server closed the session, nil for a normal
	// close. The first reason recorded wins.
	closeReason *apperrors.CodedError

	// workspace is the bound workspace, "" when unbound. Only the room
	// registry writes it.
	workspace string

	state SessionState
}
