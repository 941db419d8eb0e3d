package storage

// workspaces.go contains SQLiteStore methods for workspace documents.
// A workspace row holds only the latest accepted document; there is no
// history table.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/boardsync/collab/internal/errors"
)

// Workspace is a persisted collaborative document and the project it belongs to.
type Workspace struct {
	ID        string
	ProjectID string
	Name      string
	Elements  json.RawMessage // JSON array of drawable elements
	ViewState json.RawMessage // JSON object of durable view attributes
	CreatedAt time.Time
	UpdatedAt time.Time
}

// timeNow is swapped by tests that need deterministic timestamps.
var timeNow = time.Now

// CreateWorkspace inserts an empty workspace under an existing project.
// Returns ErrProjectNotFound if the project does not exist.
func (s *SQLiteStore) CreateWorkspace(ctx context.Context, id, projectID, name string) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM projects WHERE id = ?", projectID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check project: %w", err)
	}

	now := timeNow().UTC()
	ws := &Workspace{
		ID:        id,
		ProjectID: projectID,
		Name:      name,
		Elements:  json.RawMessage(`[]`),
		ViewState: json.RawMessage(`{}`),
		CreatedAt: now,
		UpdatedAt: now,
	}

	const query = `
		INSERT INTO workspaces
			(id, project_id, name, elements, view_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		ws.ID,
		ws.ProjectID,
		ws.Name,
		string(ws.Elements),
		string(ws.ViewState),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	log.Printf("storage: created workspace %s in project %s", id, projectID)
	return ws, nil
}

// LoadWorkspace retrieves a workspace by ID.
// Returns ErrWorkspaceNotFound if it does not exist.
func (s *SQLiteStore) LoadWorkspace(ctx context.Context, id string) (*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, project_id, name, elements, view_state, created_at, updated_at
		FROM workspaces
		WHERE id = ?
	`

	var (
		ws        Workspace
		elements  string
		viewState string
		createdAt string
		updatedAt string
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ws.ID,
		&ws.ProjectID,
		&ws.Name,
		&elements,
		&viewState,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}

	ws.Elements = json.RawMessage(elements)
	ws.ViewState = json.RawMessage(viewState)

	if ws.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if ws.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &ws, nil
}

// WorkspaceProject returns the ID of the project that owns a workspace.
// Returns ErrWorkspaceNotFound if the workspace does not exist.
func (s *SQLiteStore) WorkspaceProject(ctx context.Context, workspaceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var projectID string
	err := s.db.QueryRowContext(ctx, "SELECT project_id FROM workspaces WHERE id = ?", workspaceID).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrWorkspaceNotFound
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeStorageQueryFailed, "get workspace project", err)
	}
	return projectID, nil
}

// SaveWorkspace replaces a workspace's document and stamps updated_at.
// The previous document is overwritten in full (last write wins).
// Returns the recorded timestamp, or ErrWorkspaceNotFound if the row is gone,
// in which case nothing was written.
func (s *SQLiteStore) SaveWorkspace(ctx context.Context, id string, elements, viewState json.RawMessage) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(elements) == 0 {
		elements = json.RawMessage(`[]`)
	}
	if len(viewState) == 0 {
		viewState = json.RawMessage(`{}`)
	}

	// Millisecond precision matches what browser clients can represent.
	now := timeNow().UTC().Truncate(time.Millisecond)

	const query = `
		UPDATE workspaces
		SET elements = ?, view_state = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		string(elements),
		string(viewState),
		now.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("save workspace: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return time.Time{}, ErrWorkspaceNotFound
	}

	return now, nil
}
