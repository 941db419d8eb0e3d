// Package document applies workspace updates: it persists the durable shape
// of a document and fans the wire shape out to the room.
//
// A document travels in two shapes. The persisted shape is what the store
// keeps: the element array and the view state minus presence fields. The
// wire shape is what peers receive: exactly what the sender submitted,
// presence included. The two transforms below are the only place either
// shape is produced.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion tags every broadcast and confirmation.
const ProtocolVersion = "1.0.0"

// transientViewKeys are view-state keys that describe who is looking at the
// document rather than the document itself.
var transientViewKeys = map[string]struct{}{
	"collaborators": {},
}

// Update is a document change submitted by one session.
type Update struct {
	WorkspaceID string
	UserID      string
	Elements    json.RawMessage // JSON array, may be empty
	ViewState   json.RawMessage // JSON object, may be empty
}

// Updated is the wire shape peers receive after an update is persisted.
type Updated struct {
	Elements        json.RawMessage `json:"elements"`
	ViewState       json.RawMessage `json:"viewState"`
	UserID          string          `json:"userId"`
	Timestamp       time.Time       `json:"timestamp"`
	ProtocolVersion string          `json:"protocolVersion"`
}

// Confirmed acknowledges a persisted update to its sender. It never carries
// the document.
type Confirmed struct {
	Timestamp       time.Time `json:"timestamp"`
	ProtocolVersion string    `json:"protocolVersion"`
}

// ToPersisted returns the elements and view state to store for u.
//
// Elements must be a JSON array and view state a JSON object; absent or null
// values become [] and {}. Transient presence keys are removed from the view
// state; every other key, including null-valued ones, is kept. The element
// array is stored as submitted.
func ToPersisted(u Update) (elements, viewState json.RawMessage, err error) {
	elements, err = persistedElements(u.Elements)
	if err != nil {
		return nil, nil, err
	}
	viewState, err = persistedViewState(u.ViewState)
	if err != nil {
		return nil, nil, err
	}
	return elements, viewState, nil
}

// ToWire returns the broadcast payload for u. The submitted elements and view
// state pass through untouched.
func ToWire(u Update, ts time.Time) Updated {
	return Updated{
		Elements:        u.Elements,
		ViewState:       u.ViewState,
		UserID:          u.UserID,
		Timestamp:       ts,
		ProtocolVersion: ProtocolVersion,
	}
}

// Confirmation returns the acknowledgement for an update stored at ts.
func Confirmation(ts time.Time) Confirmed {
	return Confirmed{Timestamp: ts, ProtocolVersion: ProtocolVersion}
}

func persistedElements(raw json.RawMessage) (json.RawMessage, error) {
	if isNull(raw) {
		return json.RawMessage(`[]`), nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("elements must be an array: %w", err)
	}
	return raw, nil
}

func persistedViewState(raw json.RawMessage) (json.RawMessage, error) {
	if isNull(raw) {
		return json.RawMessage(`{}`), nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("viewState must be an object: %w", err)
	}

	kept := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if _, transient := transientViewKeys[k]; transient {
			continue
		}
		kept[k] = v
	}

	out, err := json.Marshal(kept)
	if err != nil {
		return nil, fmt.Errorf("encode view state: %w", err)
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
