package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMemberOrOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateProject(ctx, &Project{ID: "p1", Name: "Roadmap", OwnerID: "owner-1"}))
	require.NoError(t, store.AddProjectMember(ctx, "p1", "member-1", ""))

	tests := []struct {
		name   string
		userID string
		want   bool
	}{
		{"owner", "owner-1", true},
		{"member", "member-1", true},
		{"stranger", "stranger", false},
		{"empty user", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.IsMemberOrOwner(ctx, tt.userID, "p1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsMemberOrOwner_UnknownProject(t *testing.T) {
	store := newTestStore(t)

	ok, err := store.IsMemberOrOwner(context.Background(), "u", "missing")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestRemoveProjectMember_RevokesAccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateProject(ctx, &Project{ID: "p1", Name: "Roadmap", OwnerID: "owner-1"}))
	require.NoError(t, store.AddProjectMember(ctx, "p1", "member-1", "editor"))
	require.NoError(t, store.RemoveProjectMember(ctx, "p1", "member-1"))
	require.NoError(t, store.RemoveProjectMember(ctx, "p1", "member-1"), "remove is idempotent")

	ok, err := store.IsMemberOrOwner(ctx, "member-1", "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddProjectMember_UpdatesRole(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateProject(ctx, &Project{ID: "p1", Name: "Roadmap", OwnerID: "owner-1"}))
	require.NoError(t, store.AddProjectMember(ctx, "p1", "member-1", "viewer"))
	require.NoError(t, store.AddProjectMember(ctx, "p1", "member-1", "editor"))

	var role string
	require.NoError(t, store.db.QueryRow(
		"SELECT role FROM project_members WHERE project_id = 'p1' AND user_id = 'member-1'").Scan(&role))
	assert.Equal(t, "editor", role)
}

func TestGetProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.CreateProject(ctx, &Project{ID: "p1", Name: "Roadmap", OwnerID: "owner-1", CreatedAt: created}))

	p, err := store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", p.Name)
	assert.Equal(t, "owner-1", p.OwnerID)
	assert.True(t, p.CreatedAt.Equal(created))

	_, err = store.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestWorkspaceProject(t *testing.T) {
	store := newTestStore(t)
	seedWorkspace(t, store)

	projectID, err := store.WorkspaceProject(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "p1", projectID)
}
