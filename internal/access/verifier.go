// Package access decides whether a user may join a workspace.
//
// The decision is made fresh on every join attempt. Nothing is cached:
// membership can change in the project app between two connections, and a
// revoked member must be refused on their next join.
package access

import (
	"context"
	"errors"
	"log"

	"github.com/boardsync/collab/internal/storage"
)

// ProjectStore is the slice of the project database the verifier reads.
// storage.SQLiteStore implements it.
type ProjectStore interface {
	// WorkspaceProject returns the project that owns a workspace, or
	// storage.ErrWorkspaceNotFound.
	WorkspaceProject(ctx context.Context, workspaceID string) (string, error)

	// IsMemberOrOwner reports whether userID owns or belongs to projectID.
	IsMemberOrOwner(ctx context.Context, userID, projectID string) (bool, error)
}

// Verifier checks join eligibility against the project store.
// It holds no state besides the store handle and is safe for concurrent use.
type Verifier struct {
	store ProjectStore
}

// NewVerifier creates a Verifier backed by store.
func NewVerifier(store ProjectStore) *Verifier {
	return &Verifier{store: store}
}

// CanJoin reports whether userID may join workspaceID.
//
// It succeeds only when the workspace exists, belongs to projectID (when
// projectID is non-empty) and the user owns or is a member of the owning
// project. Any lookup failure, including a canceled context, yields false.
func (v *Verifier) CanJoin(ctx context.Context, userID, workspaceID, projectID string) bool {
	if userID == "" || workspaceID == "" {
		return false
	}

	owner, err := v.store.WorkspaceProject(ctx, workspaceID)
	if err != nil {
		if !errors.Is(err, storage.ErrWorkspaceNotFound) {
			log.Printf("access: workspace lookup failed for %s: %v", workspaceID, err)
		}
		return false
	}

	if projectID != "" && projectID != owner {
		log.Printf("access: workspace %s does not belong to project %s", workspaceID, projectID)
		return false
	}

	ok, err := v.store.IsMemberOrOwner(ctx, userID, owner)
	if err != nil {
		log.Printf("access: membership lookup failed for user %s in project %s: %v", userID, owner, err)
		return false
	}

	return ok
}
