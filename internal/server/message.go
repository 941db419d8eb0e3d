// Package server provides the WebSocket endpoint that keeps collaborators on
// a workspace in sync. It owns sessions, routes their events to the access
// verifier, the room registry, the update dispatcher and the cursor
// throttle, and cleans up after them when they disconnect.
package server

import (
	"encoding/json"

	"github.com/boardsync/collab/internal/document"
)

// MessageType identifies the kind of message being sent over WebSocket.
// Each type has a specific payload structure defined below.
type MessageType string

const (
	// MessageTypeJoinWorkspace is sent by clients to bind to a workspace.
	// Payload: JoinWorkspacePayload
	MessageTypeJoinWorkspace MessageType = "join-workspace"

	// MessageTypeWorkspaceUpdate is sent by clients with a full document.
	// Payload: WorkspaceUpdatePayload
	MessageTypeWorkspaceUpdate MessageType = "workspace-update"

	// MessageTypeCursorUpdate is sent by clients with their cursor position.
	// Payload: CursorUpdatePayload
	MessageTypeCursorUpdate MessageType = "cursor-update"

	// MessageTypePointerUpdate is the richer presence event used by the
	// drawing canvas (pointer, button state, display name and color).
	// Payload: PointerUpdatePayload
	MessageTypePointerUpdate MessageType = "pointer-update"

	// MessageTypeWorkspaceJoined acknowledges a successful join to the joiner.
	// Payload: WorkspaceJoinedPayload
	MessageTypeWorkspaceJoined MessageType = "workspace-joined"

	// MessageTypeUserJoined tells room peers that someone arrived.
	// Payload: PresencePayload
	MessageTypeUserJoined MessageType = "user-joined"

	// MessageTypeUserLeft tells former room peers that someone left.
	// Payload: PresencePayload
	MessageTypeUserLeft MessageType = "user-left"

	// MessageTypeWorkspaceUpdated carries a persisted update to room peers.
	// Payload: document.Updated
	MessageTypeWorkspaceUpdated MessageType = "workspace-updated"

	// MessageTypeUpdateConfirmed acknowledges a persisted update to its sender.
	// Payload: document.Confirmed
	MessageTypeUpdateConfirmed MessageType = "update-confirmed"

	// MessageTypeCursorUpdated relays a cursor to room peers.
	// Payload: CursorUpdatedPayload
	MessageTypeCursorUpdated MessageType = "cursor-updated"

	// MessageTypePointerUpdated relays a pointer to room peers.
	// Payload: PointerUpdatedPayload
	MessageTypePointerUpdated MessageType = "pointer-updated"

	// MessageTypeError sends error information to the offending session.
	// Payload: ErrorPayload
	MessageTypeError MessageType = "error"
)

// Ephemeral reports whether messages of this type may be dropped for a slow
// consumer instead of closing it.
func (t MessageType) Ephemeral() bool {
	return t == MessageTypeCursorUpdated || t == MessageTypePointerUpdated
}

// Message is the envelope for all WebSocket messages.
// Every message has a type and a payload; the payload structure depends on
// the type.
type Message struct {
	// Type identifies what kind of message this is.
	Type MessageType `json:"type"`

	// ID is an optional message identifier for correlation.
	// Replies to a client request echo the request's ID.
	ID string `json:"id,omitempty"`

	// Payload contains the message-specific data.
	Payload interface{} `json:"payload"`
}

// inboundMessage is a client message with its payload left undecoded until
// the type is known.
type inboundMessage struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// JoinWorkspacePayload requests a binding to a workspace.
type JoinWorkspacePayload struct {
	WorkspaceID string `json:"workspaceId"`

	// ProjectID, when set, must be the workspace's owning project.
	ProjectID string `json:"projectId,omitempty"`

	// UserID must match the authenticated user when auth is enabled.
	UserID string `json:"userId,omitempty"`
}

// WorkspaceUpdatePayload carries a full replacement document.
type WorkspaceUpdatePayload struct {
	WorkspaceID string          `json:"workspaceId"`
	Elements    json.RawMessage `json:"elements"`
	ViewState   json.RawMessage `json:"viewState"`
	UserID      string          `json:"userId,omitempty"`
}

// CursorUpdatePayload carries an opaque cursor (position, tool).
type CursorUpdatePayload struct {
	WorkspaceID string          `json:"workspaceId"`
	Cursor      json.RawMessage `json:"cursor"`
	UserID      string          `json:"userId,omitempty"`
}

// PointerUpdatePayload carries canvas pointer presence.
type PointerUpdatePayload struct {
	WorkspaceID string          `json:"workspaceId"`
	Pointer     json.RawMessage `json:"pointer"`
	Button      string          `json:"button,omitempty"`
	Username    string          `json:"username,omitempty"`
	Color       json.RawMessage `json:"color,omitempty"`
	Timestamp   int64           `json:"timestamp,omitempty"` // client clock, unix ms
	UserID      string          `json:"userId,omitempty"`
}

// WorkspaceJoinedPayload confirms a join to the joiner.
type WorkspaceJoinedPayload struct {
	WorkspaceID     string `json:"workspaceId"`
	ConnectionID    string `json:"connectionId"`
	ProtocolVersion string `json:"protocolVersion"`
}

// PresencePayload identifies a session arriving in or leaving a room.
type PresencePayload struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// CursorUpdatedPayload relays a cursor to peers.
type CursorUpdatedPayload struct {
	UserID       string          `json:"userId"`
	Cursor       json.RawMessage `json:"cursor"`
	ConnectionID string          `json:"connectionId"`
}

// PointerUpdatedPayload relays a pointer to peers.
type PointerUpdatedPayload struct {
	UserID       string          `json:"userId"`
	Pointer      json.RawMessage `json:"pointer"`
	Button       string          `json:"button,omitempty"`
	Username     string          `json:"username,omitempty"`
	Color        json.RawMessage `json:"color,omitempty"`
	Timestamp    int64           `json:"timestamp,omitempty"`
	ConnectionID string          `json:"connectionId"`
}

// ErrorPayload contains error information.
type ErrorPayload struct {
	// Code is a stable error code for programmatic handling.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// NewWorkspaceJoinedMessage creates a workspace-joined reply.
func NewWorkspaceJoinedMessage(id, workspaceID, connectionID string) Message {
	return Message{
		Type: MessageTypeWorkspaceJoined,
		ID:   id,
		Payload: WorkspaceJoinedPayload{
			WorkspaceID:     workspaceID,
			ConnectionID:    connectionID,
			ProtocolVersion: document.ProtocolVersion,
		},
	}
}

// NewUserJoinedMessage creates a user-joined notification.
func NewUserJoinedMessage(userID, connectionID string) Message {
	return Message{
		Type:    MessageTypeUserJoined,
		Payload: PresencePayload{UserID: userID, ConnectionID: connectionID},
	}
}

// NewUserLeftMessage creates a user-left notification.
func NewUserLeftMessage(userID, connectionID string) Message {
	return Message{
		Type:    MessageTypeUserLeft,
		Payload: PresencePayload{UserID: userID, ConnectionID: connectionID},
	}
}

// NewWorkspaceUpdatedMessage wraps a persisted update for peers.
func NewWorkspaceUpdatedMessage(u document.Updated) Message {
	return Message{
		Type:    MessageTypeWorkspaceUpdated,
		Payload: u,
	}
}

// NewUpdateConfirmedMessage creates the sender's acknowledgement.
func NewUpdateConfirmedMessage(id string, c document.Confirmed) Message {
	return Message{
		Type:    MessageTypeUpdateConfirmed,
		ID:      id,
		Payload: c,
	}
}

// NewCursorUpdatedMessage creates a cursor relay.
func NewCursorUpdatedMessage(userID string, cursor json.RawMessage, connectionID string) Message {
	return Message{
		Type: MessageTypeCursorUpdated,
		Payload: CursorUpdatedPayload{
			UserID:       userID,
			Cursor:       cursor,
			ConnectionID: connectionID,
		},
	}
}

// NewPointerUpdatedMessage creates a pointer relay from the sender's payload.
func NewPointerUpdatedMessage(userID string, p PointerUpdatePayload, connectionID string) Message {
	return Message{
		Type: MessageTypePointerUpdated,
		Payload: PointerUpdatedPayload{
			UserID:       userID,
			Pointer:      p.Pointer,
			Button:       p.Button,
			Username:     p.Username,
			Color:        p.Color,
			Timestamp:    p.Timestamp,
			ConnectionID: connectionID,
		},
	}
}

// NewErrorMessage creates an error message with a code and description.
func NewErrorMessage(id, code, message string) Message {
	return Message{
		Type: MessageTypeError,
		ID:   id,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
