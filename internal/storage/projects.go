package storage

// projects.go contains SQLiteStore methods for projects and membership.
// The project app owns these rows; the collaboration server reads them to
// authorize joins and writes them only through the admin CLI.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/boardsync/collab/internal/errors"
)

// Project is a project row; OwnerID is always allowed into its workspaces.
type Project struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// CreateProject inserts a project.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *Project) error {
	if p == nil {
		return errors.New("project cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = timeNow().UTC()
	}

	const query = `
		INSERT INTO projects (id, name, owner_id, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.OwnerID, p.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	log.Printf("storage: created project %s (owner %s)", p.ID, p.OwnerID)
	return nil
}

// GetProject retrieves a project by ID.
// Returns ErrProjectNotFound if it does not exist.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p         Project
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, owner_id, created_at FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.OwnerID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &p, nil
}

// AddProjectMember adds userID to a project. Adding an existing member
// updates their role.
func (s *SQLiteStore) AddProjectMember(ctx context.Context, projectID, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if role == "" {
		role = "member"
	}

	const query = `
		INSERT INTO project_members (project_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = excluded.role
	`

	_, err := s.db.ExecContext(ctx, query, projectID, userID, role, timeNow().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add project member: %w", err)
	}

	log.Printf("storage: added %s to project %s as %s", userID, projectID, role)
	return nil
}

// RemoveProjectMember removes userID from a project. Idempotent.
func (s *SQLiteStore) RemoveProjectMember(ctx context.Context, projectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM project_members WHERE project_id = ? AND user_id = ?", projectID, userID)
	if err != nil {
		return fmt.Errorf("remove project member: %w", err)
	}
	return nil
}

// IsMemberOrOwner reports whether userID owns projectID or is a member of it.
// Returns ErrProjectNotFound if the project does not exist.
func (s *SQLiteStore) IsMemberOrOwner(ctx context.Context, userID, projectID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT
			p.owner_id = ?,
			EXISTS (
				SELECT 1 FROM project_members m
				WHERE m.project_id = p.id AND m.user_id = ?
			)
		FROM projects p
		WHERE p.id = ?
	`

	var isOwner, isMember bool
	err := s.db.QueryRowContext(ctx, query, userID, userID, projectID).Scan(&isOwner, &isMember)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrProjectNotFound
	}
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "check membership", err)
	}

	return isOwner || isMember, nil
}
