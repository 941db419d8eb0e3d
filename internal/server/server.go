package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/boardsync/collab/internal/access"
	"github.com/boardsync/collab/internal/document"
	apperrors "github.com/boardsync/collab/internal/errors"
	"github.com/boardsync/collab/internal/presence"
	"github.com/boardsync/collab/internal/room"
)

// NewServer creates a server that listens on addr and reads and writes
// workspaces through store. Nothing is started until StartAsync.
func NewServer(addr string, store Store) *Server {
	s := &Server{
		addr:                  addr,
		clients:               make(map[*Client]bool),
		revokedTokens:         make(map[string]struct{}),
		startTime:             time.Now(),
		rooms:                 room.NewRegistry(),
		verifier:              access.NewVerifier(store),
		cursorInterval:        presence.DefaultInterval,
		sendBuffer:            channelBufferSize,
		maxProtocolViolations: defaultMaxProtocolViolations,
	}
	s.dispatcher = document.NewDispatcher(store, s)
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

// PublishUpdate sends a persisted update to every member of the room except
// the session that submitted it. The dispatcher calls it in per-workspace
// submission order.
func (s *Server) PublishUpdate(workspaceID string, origin room.Member, u document.Updated) {
	s.rooms.Broadcast(workspaceID, origin, NewWorkspaceUpdatedMessage(u))
}

// checkOrigin enforces the Origin allow-list. Requests without an Origin
// header come from non-browser clients and are allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	s.mu.RLock()
	allowed := s.allowedOrigins
	s.mu.RUnlock()

	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || allowed[origin] {
		return true
	}
	log.Printf("server: rejected WebSocket origin %q", origin)
	return false
}

// removeClient runs the Closed-state cleanup exactly once: the session is
// evicted from its room and former peers are told it left.
func (s *Server) removeClient(c *Client) {
	c.cleanupOnce.Do(func() {
		c.closeSend()

		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()

		userID := c.UserID()
		if workspaceID := s.rooms.Evict(c); workspaceID != "" {
			n := s.rooms.Broadcast(workspaceID, nil, NewUserLeftMessage(userID, c.id))
			log.Printf("server: session %s (user %s) left workspace %s, notified %d peer(s)", c.id, userID, workspaceID, n)
		}
		c.setState(StateClosed)

		log.Printf("server: session %s disconnected (%d remaining)", c.id, s.ClientCount())
	})
}

// ID returns the session's connection identifier.
func (c *Client) ID() string {
	return c.id
}

// UserID returns the user this session acts for, or "" before its first
// join when authentication is off.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Workspace returns the bound workspace, or "".
func (c *Client) Workspace() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workspace
}

// SetWorkspace records the binding. Called by the room registry.
func (c *Client) SetWorkspace(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workspace = workspaceID
	if c.state == StateClosed {
		return
	}
	if workspaceID == "" {
		c.state = StateUnbound
	} else {
		c.state = StateBound
	}
}

// State returns the session's lifecycle state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// Deliver queues a room broadcast for this session without blocking.
func (c *Client) Deliver(msg any) {
	m, ok := msg.(Message)
	if !ok {
		log.Printf("server: dropping non-message broadcast %T", msg)
		return
	}
	c.trySend(m)
}

// trySend queues msg without blocking. If the buffer is full, ephemeral
// messages are dropped and anything else closes the session: a session
// never stays open after missing a document update.
func (c *Client) trySend(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		if msg.Type.Ephemeral() {
			return false
		}
		log.Printf("server: session %s send buffer full, closing slow consumer", c.id)
		c.closeWith(apperrors.New(apperrors.CodeServerSendFailed, "send buffer full"))
		return false
	}
}

// sendError reports err to this session only. Causes stay in the log; an
// error without a code goes out as error.internal.
func (c *Client) sendError(id string, err error) {
	if apperrors.GetCode(err) == apperrors.CodeUnknown {
		log.Printf("server: session %s internal error: %v", c.id, err)
		err = apperrors.Internal("internal server error", err)
	}
	code, message := apperrors.ToCodeAndMessage(err)
	c.trySend(NewErrorMessage(id, code, message))
}

// protocolViolation reports a malformed or unexpected event and closes the
// session once the configured limit is reached.
func (c *Client) protocolViolation(id, reason string) {
	c.violations++
	violation := apperrors.InvalidMessage(reason)
	c.sendError(id, violation)

	limit := c.server.MaxProtocolViolations()
	if limit >= 0 && c.violations >= limit {
		log.Printf("server: session %s closed after %d protocol violations (last: %s)", c.id, c.violations, reason)
		c.closeWith(violation)
	}
}

// resolveUser returns the user an event acts for. A payload userId that
// disagrees with the session's user is rejected.
func (c *Client) resolveUser(payloadUserID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID == "" {
		return payloadUserID, nil
	}
	if payloadUserID != "" && payloadUserID != c.userID {
		return "", apperrors.Unauthorized("userId does not match this session")
	}
	return c.userID, nil
}

// handleMessage routes one inbound frame.
func (c *Client) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.protocolViolation("", "malformed message")
		return
	}

	switch msg.Type {
	case MessageTypeJoinWorkspace:
		c.handleJoinWorkspace(msg)
	case MessageTypeWorkspaceUpdate:
		c.handleWorkspaceUpdate(msg)
	case MessageTypeCursorUpdate:
		c.handleCursorUpdate(msg)
	case MessageTypePointerUpdate:
		c.handlePointerUpdate(msg)
	default:
		c.protocolViolation(msg.ID, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// handleJoinWorkspace verifies access and binds the session to a workspace.
// A failed join leaves any previous binding in place.
func (c *Client) handleJoinWorkspace(msg inboundMessage) {
	var p JoinWorkspacePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.WorkspaceID == "" {
		c.protocolViolation(msg.ID, "join-workspace requires workspaceId")
		return
	}

	userID, err := c.resolveUser(p.UserID)
	if err != nil {
		c.sendError(msg.ID, err)
		return
	}
	if userID == "" {
		c.protocolViolation(msg.ID, "join-workspace requires userId")
		return
	}

	s := c.server
	if !s.joinVerifier().CanJoin(c.ctx, userID, p.WorkspaceID, p.ProjectID) {
		log.Printf("server: session %s denied join to workspace %s for user %s", c.id, p.WorkspaceID, userID)
		c.sendError(msg.ID, apperrors.Unauthorized("access denied to workspace"))
		return
	}

	c.mu.Lock()
	if c.userID == "" {
		c.userID = userID
	}
	c.mu.Unlock()

	if c.Workspace() == p.WorkspaceID {
		c.trySend(NewWorkspaceJoinedMessage(msg.ID, p.WorkspaceID, c.id))
		return
	}

	if previous := s.rooms.Admit(c, p.WorkspaceID); previous != "" {
		s.rooms.Broadcast(previous, nil, NewUserLeftMessage(userID, c.id))
		log.Printf("server: session %s (user %s) left workspace %s", c.id, userID, previous)
	}
	n := s.rooms.Broadcast(p.WorkspaceID, c, NewUserJoinedMessage(userID, c.id))
	c.trySend(NewWorkspaceJoinedMessage(msg.ID, p.WorkspaceID, c.id))

	log.Printf("server: session %s (user %s) joined workspace %s with %d peer(s)", c.id, userID, p.WorkspaceID, n)
}

// handleWorkspaceUpdate hands a document to the dispatcher and confirms it
// to the sender once persisted.
func (c *Client) handleWorkspaceUpdate(msg inboundMessage) {
	var p WorkspaceUpdatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.WorkspaceID == "" {
		c.protocolViolation(msg.ID, "workspace-update requires workspaceId")
		return
	}

	userID, err := c.resolveUser(p.UserID)
	if err != nil {
		c.sendError(msg.ID, err)
		return
	}

	ts, err := c.server.dispatcher.ApplyUpdate(c.ctx, c, document.Update{
		WorkspaceID: p.WorkspaceID,
		UserID:      userID,
		Elements:    p.Elements,
		ViewState:   p.ViewState,
	})
	switch {
	case err == nil:
		c.trySend(NewUpdateConfirmedMessage(msg.ID, document.Confirmation(ts)))
	case errors.Is(err, context.Canceled):
		// Session is closing.
	case apperrors.IsCode(err, apperrors.CodeServerInvalidMessage):
		c.protocolViolation(msg.ID, apperrors.GetMessage(err))
	default:
		c.sendError(msg.ID, err)
	}
}

// bindingFor checks that the session is bound to workspaceID and that the
// payload's userId agrees with it. Presence events share these rules.
func (c *Client) bindingFor(id, workspaceID, payloadUserID string) (userID string, ok bool) {
	userID, err := c.resolveUser(payloadUserID)
	if err != nil {
		c.sendError(id, err)
		return "", false
	}
	if bound := c.Workspace(); bound == "" || bound != workspaceID {
		c.sendError(id, apperrors.Unauthorized("not authorized for this workspace"))
		return "", false
	}
	return userID, true
}

// handleCursorUpdate relays a cursor to room peers, subject to the throttle.
func (c *Client) handleCursorUpdate(msg inboundMessage) {
	var p CursorUpdatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.WorkspaceID == "" {
		c.protocolViolation(msg.ID, "cursor-update requires workspaceId")
		return
	}

	userID, ok := c.bindingFor(msg.ID, p.WorkspaceID, p.UserID)
	if !ok {
		return
	}
	if !c.throttle.ShouldForward(time.Now()) {
		return
	}
	c.server.rooms.Broadcast(p.WorkspaceID, c, NewCursorUpdatedMessage(userID, p.Cursor, c.id))
}

// handlePointerUpdate relays canvas pointer presence. It shares the cursor
// throttle so the two event kinds together stay under the same ceiling.
func (c *Client) handlePointerUpdate(msg inboundMessage) {
	var p PointerUpdatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.WorkspaceID == "" {
		c.protocolViolation(msg.ID, "pointer-update requires workspaceId")
		return
	}

	userID, ok := c.bindingFor(msg.ID, p.WorkspaceID, p.UserID)
	if !ok {
		return
	}
	if !c.throttle.ShouldForward(time.Now()) {
		return
	}
	c.server.rooms.Broadcast(p.WorkspaceID, c, NewPointerUpdatedMessage(userID, p, c.id))
}
